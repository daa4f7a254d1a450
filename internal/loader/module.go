package loader

import (
	"plugin"
)

// Module is one dynamically loaded unit of externally authored code.
type Module interface {
	// Lookup returns the exported symbol with the given name, or an error
	// when the module exports no such symbol.
	Lookup(name string) (any, error)

	// Symbols enumerates the module's exported symbols for diagnostics.
	// Backends that cannot enumerate (the stdlib plugin backend) return nil,
	// in which case missing-symbol errors omit the discovery hint.
	Symbols() map[string]any
}

// Opener loads a Module from a file on disk. It is an injectable collaborator
// so tests and build-time plugin tables can supply their own module backend.
type Opener interface {
	// Ext is the file extension (including the dot) a loadable unit must have.
	Ext() string

	// Open loads the module at path. Open must either fully succeed or leave
	// no observable state behind.
	Open(path string) (Module, error)
}

// PluginOpener loads compiled Go plugin units (.so files) via the stdlib
// plugin package. Plugins export constructor variables matching the factory
// type of the capability they implement, e.g.
//
//	var NewUppercaseParser parser.Factory = func() parser.Parser { ... }
//
// Unlike a source-level loader, the plugin ABI cannot enumerate exported
// symbols, so missing-symbol errors carry no discovery hint.
type PluginOpener struct{}

func (PluginOpener) Ext() string { return ".so" }

func (PluginOpener) Open(path string) (Module, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, err
	}
	return pluginModule{p: p}, nil
}

type pluginModule struct {
	p *plugin.Plugin
}

func (m pluginModule) Lookup(name string) (any, error) {
	sym, err := m.p.Lookup(name)
	if err != nil {
		return nil, err
	}
	return any(sym), nil
}

func (m pluginModule) Symbols() map[string]any { return nil }
