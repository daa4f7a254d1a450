// Package loader resolves spec strings to implementation factories.
//
// A spec is either "builtin:<name>" (looked up in a capability's builtin
// registry), "<path>:<Symbol>" (loaded from an external plugin unit), or a
// bare legacy name (treated as builtin when recognized). Loaded modules are
// cached process-wide by canonical path, so repeated specs pointing at the
// same file reuse one loaded module.
package loader

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// Loader opens and caches plugin modules. The zero value is not usable; use
// New. The cache is guarded by a mutex, so concurrent first-time loads of the
// same path open the module once.
type Loader struct {
	opener  Opener
	mu      sync.Mutex
	modules map[string]Module
}

// Option configures a Loader.
type Option func(*Loader)

// WithOpener replaces the default plugin-file opener.
func WithOpener(o Opener) Option {
	return func(l *Loader) { l.opener = o }
}

// New creates a Loader backed by the stdlib plugin opener unless overridden.
func New(opts ...Option) *Loader {
	l := &Loader{
		opener:  PluginOpener{},
		modules: make(map[string]Module),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Default is the process-wide loader used by the parser and agent factories.
var Default = New()

// Reset drops every cached module. Intended for tests.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.modules = make(map[string]Module)
}

// Resolve resolves a spec string to a factory of type F, validated against the
// given builtin registry. baseDir, when non-empty, anchors relative plugin
// paths (typically the directory of the config file that carried the spec).
func Resolve[F any](l *Loader, spec string, reg *Registry[F], baseDir string) (F, error) {
	var zero F

	spec = strings.TrimSpace(spec)
	if spec == "" {
		return zero, loadErrorf("invalid spec: must be a non-empty string")
	}

	if name, ok := strings.CutPrefix(spec, "builtin:"); ok {
		return resolveBuiltin(name, reg)
	}

	if strings.Contains(spec, ":") {
		return resolveFromPath(l, spec, reg, baseDir)
	}

	// Legacy support: plain names resolve as builtins.
	if f, ok := reg.Lookup(spec); ok {
		slog.Debug("treating plain name as builtin (legacy spec)", "spec", spec)
		return f, nil
	}

	if strings.ContainsAny(spec, `/\`) {
		return zero, loadErrorf(
			"invalid spec %q: path specs must include a symbol name: 'path/to/plugin%s:Symbol'",
			spec, l.opener.Ext())
	}

	return zero, loadErrorf(
		"unknown spec %q: use 'builtin:<name>' or 'path:Symbol' (available builtins: %s)",
		spec, strings.Join(reg.Names(), ", "))
}

func resolveBuiltin[F any](name string, reg *Registry[F]) (F, error) {
	var zero F
	if CanonicalName(name) == "" {
		return zero, loadErrorf("empty builtin name")
	}
	f, ok := reg.Lookup(name)
	if !ok {
		return zero, loadErrorf("unknown builtin %q (available: %s)",
			name, strings.Join(reg.Names(), ", "))
	}
	return f, nil
}

func resolveFromPath[F any](l *Loader, spec string, reg *Registry[F], baseDir string) (F, error) {
	var zero F

	// Split on the last colon so Windows drive-letter paths stay unambiguous.
	idx := strings.LastIndex(spec, ":")
	pathStr := spec[:idx]
	symName := strings.TrimSpace(spec[idx+1:])

	if symName == "" {
		return zero, loadErrorf("missing symbol name in spec %q", spec)
	}
	if pathStr == "" {
		return zero, loadErrorf("missing path in spec %q", spec)
	}

	path, err := l.resolvePath(pathStr, baseDir)
	if err != nil {
		return zero, err
	}

	mod, err := l.load(path)
	if err != nil {
		return zero, err
	}

	sym, err := mod.Lookup(symName)
	if err != nil {
		hint := ""
		if matches := satisfyingSymbols[F](mod); len(matches) > 0 {
			hint = fmt.Sprintf(" (available: %s)", strings.Join(matches, ", "))
		}
		return zero, loadErrorf("symbol %q not found in %s%s", symName, path, hint)
	}

	f, ok := asFactory[F](sym)
	if !ok {
		return zero, symbolTypeError[F](sym, symName, path)
	}

	slog.Info("loaded custom symbol", "symbol", symName, "path", path)
	return f, nil
}

// resolvePath expands, anchors, and validates a plugin file path.
func (l *Loader) resolvePath(pathStr, baseDir string) (string, error) {
	path := expandHome(pathStr)
	if !filepath.IsAbs(path) {
		if baseDir != "" {
			path = filepath.Join(baseDir, path)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", loadErrorf("cannot resolve path %q: %v", pathStr, err)
		}
		path = abs
	}
	path = filepath.Clean(path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return "", loadErrorf("plugin file not found: %s", path)
	}
	if err != nil {
		return "", loadErrorf("cannot stat %s: %v", path, err)
	}
	if !info.Mode().IsRegular() {
		return "", loadErrorf("not a file: %s", path)
	}
	if ext := l.opener.Ext(); !strings.EqualFold(filepath.Ext(path), ext) {
		return "", loadErrorf("plugin must be a %s file: %s", ext, path)
	}
	return path, nil
}

// load opens a module, keyed by a hash of the resolved path so the same file
// is opened once per process. A failed open leaves no cache entry behind, so
// a later retry gets a clean attempt.
func (l *Loader) load(path string) (Module, error) {
	key := moduleKey(path)

	l.mu.Lock()
	defer l.mu.Unlock()

	if mod, ok := l.modules[key]; ok {
		slog.Debug("reusing cached plugin module", "path", path)
		return mod, nil
	}

	mod, err := l.opener.Open(path)
	if err != nil {
		return nil, loadErrorf("error loading module %s: %v", path, err)
	}
	l.modules[key] = mod
	return mod, nil
}

// moduleKey derives a stable cache key from the canonical absolute path.
func moduleKey(path string) string {
	h := fnv.New64a()
	h.Write([]byte(path))
	return fmt.Sprintf("clink_plugin_%016x", h.Sum64())
}

// asFactory coerces an exported symbol to the factory type F. The stdlib
// plugin backend returns a pointer to exported variables, so one level of
// pointer indirection is unwrapped.
func asFactory[F any](sym any) (F, bool) {
	var zero F
	if f, ok := sym.(F); ok {
		return f, true
	}
	if p, ok := sym.(*F); ok && p != nil {
		return *p, true
	}
	rv := reflect.ValueOf(sym)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		if f, ok := rv.Elem().Interface().(F); ok {
			return f, true
		}
	}
	return zero, false
}

// symbolTypeError distinguishes "not a constructor at all" from "constructor
// of the wrong capability", reporting the symbol's actual type either way.
func symbolTypeError[F any](sym any, symName, path string) *LoadError {
	want := reflect.TypeOf((*F)(nil)).Elem()

	got := reflect.TypeOf(sym)
	if got != nil && got.Kind() == reflect.Pointer {
		got = got.Elem()
	}
	if got == nil || got.Kind() != reflect.Func {
		return loadErrorf("symbol %q in %s is not a constructor function (got %v)",
			symName, path, got)
	}
	return loadErrorf("symbol %q in %s must have type %v, but has type %v",
		symName, path, want, got)
}

// satisfyingSymbols lists module symbols coercible to F, as a discovery aid
// for missing-symbol errors. Returns nil when the backend cannot enumerate.
func satisfyingSymbols[F any](mod Module) []string {
	var names []string
	for name, sym := range mod.Symbols() {
		if _, ok := asFactory[F](sym); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// expandHome expands a leading ~/ to the user's home directory.
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
