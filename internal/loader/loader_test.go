package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// widgetFactory is the capability factory type used throughout these tests.
type widgetFactory func() string

func makeWidget(name string) widgetFactory {
	return func() string { return name }
}

type fakeModule map[string]any

func (m fakeModule) Lookup(name string) (any, error) {
	if v, ok := m[name]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("symbol %q not found", name)
}

func (m fakeModule) Symbols() map[string]any { return m }

// fakeOpener serves pre-registered modules keyed by absolute path and counts
// how often each path is opened.
type fakeOpener struct {
	ext     string
	modules map[string]Module
	errs    map[string]error
	opens   map[string]int
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{
		ext:     ".so",
		modules: make(map[string]Module),
		errs:    make(map[string]error),
		opens:   make(map[string]int),
	}
}

func (o *fakeOpener) Ext() string { return o.ext }

func (o *fakeOpener) Open(path string) (Module, error) {
	o.opens[path]++
	if err, ok := o.errs[path]; ok {
		return nil, err
	}
	if mod, ok := o.modules[path]; ok {
		return mod, nil
	}
	return nil, fmt.Errorf("no module registered for %s", path)
}

// touch creates an empty file so the loader's existence checks pass.
func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte{}, 0o644))
}

func newTestRegistry() *Registry[widgetFactory] {
	reg := NewRegistry[widgetFactory]()
	reg.Register("alpha", makeWidget("alpha"))
	reg.Register("beta", makeWidget("beta"))
	return reg
}

func TestResolve_Builtin(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry()
	l := New(WithOpener(newFakeOpener()))

	tests := map[string]struct {
		spec string
		want string
	}{
		"lowercase":        {spec: "builtin:alpha", want: "alpha"},
		"uppercase":        {spec: "builtin:ALPHA", want: "alpha"},
		"mixed case":       {spec: "builtin:Beta", want: "beta"},
		"padded name":      {spec: "builtin: alpha ", want: "alpha"},
		"surrounding ws":   {spec: "  builtin:alpha  ", want: "alpha"},
		"bare legacy name": {spec: "alpha", want: "alpha"},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			f, err := Resolve(l, tt.spec, reg, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, f())
		})
	}
}

func TestResolve_SpecErrors(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry()
	l := New(WithOpener(newFakeOpener()))

	tests := map[string]struct {
		spec    string
		wantMsg string
	}{
		"empty spec":          {spec: "", wantMsg: "non-empty"},
		"whitespace spec":     {spec: "   ", wantMsg: "non-empty"},
		"empty builtin name":  {spec: "builtin:", wantMsg: "empty builtin name"},
		"unknown builtin":     {spec: "builtin:gamma", wantMsg: "available: alpha, beta"},
		"unknown bare name":   {spec: "gamma", wantMsg: "available builtins: alpha, beta"},
		"path without symbol": {spec: "plugins/custom.so", wantMsg: "must include a symbol name"},
		"missing symbol":      {spec: "plugins/custom.so:", wantMsg: "missing symbol name"},
		"missing path":        {spec: ":Widget", wantMsg: "missing path"},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Resolve(l, tt.spec, reg, "")
			require.Error(t, err)
			var loadErr *LoadError
			require.ErrorAs(t, err, &loadErr)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestResolve_PathValidation(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry()
	dir := t.TempDir()

	opener := newFakeOpener()
	l := New(WithOpener(opener))

	t.Run("file not found", func(t *testing.T) {
		_, err := Resolve(l, filepath.Join(dir, "missing.so")+":Widget", reg, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("directory instead of file", func(t *testing.T) {
		sub := filepath.Join(dir, "adir.so")
		require.NoError(t, os.MkdirAll(sub, 0o755))
		_, err := Resolve(l, sub+":Widget", reg, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a file")
	})

	t.Run("wrong extension", func(t *testing.T) {
		path := filepath.Join(dir, "widget.dll")
		touch(t, path)
		_, err := Resolve(l, path+":Widget", reg, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be a .so file")
	})
}

func TestResolve_PathAnchoring(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry()
	base := t.TempDir()
	path := filepath.Join(base, "plugins", "widget.so")
	touch(t, path)

	opener := newFakeOpener()
	opener.modules[path] = fakeModule{"Widget": makeWidget("custom")}
	l := New(WithOpener(opener))

	t.Run("relative to base dir", func(t *testing.T) {
		f, err := Resolve(l, "plugins/widget.so:Widget", reg, base)
		require.NoError(t, err)
		assert.Equal(t, "custom", f())
	})

	t.Run("absolute path ignores base dir", func(t *testing.T) {
		f, err := Resolve(l, path+":Widget", reg, t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, "custom", f())
	})
}

func TestResolve_HomeExpansion(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := filepath.Join(home, "plugins", "widget.so")
	touch(t, path)

	opener := newFakeOpener()
	opener.modules[path] = fakeModule{"Widget": makeWidget("home")}
	l := New(WithOpener(opener))

	f, err := Resolve(l, "~/plugins/widget.so:Widget", newTestRegistry(), "")
	require.NoError(t, err)
	assert.Equal(t, "home", f())
}

func TestResolve_ModuleCache(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry()
	dir := t.TempDir()
	path := filepath.Join(dir, "widget.so")
	touch(t, path)

	opener := newFakeOpener()
	opener.modules[path] = fakeModule{"Widget": makeWidget("cached")}
	l := New(WithOpener(opener))

	for i := 0; i < 3; i++ {
		f, err := Resolve(l, path+":Widget", reg, "")
		require.NoError(t, err)
		assert.Equal(t, "cached", f())
	}
	assert.Equal(t, 1, opener.opens[path], "module should be opened exactly once")

	l.Reset()
	_, err := Resolve(l, path+":Widget", reg, "")
	require.NoError(t, err)
	assert.Equal(t, 2, opener.opens[path], "Reset should drop the cached module")
}

func TestResolve_FailedOpenDoesNotPoisonCache(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry()
	dir := t.TempDir()
	path := filepath.Join(dir, "widget.so")
	touch(t, path)

	opener := newFakeOpener()
	opener.errs[path] = errors.New("symbol table corrupt")
	l := New(WithOpener(opener))

	_, err := Resolve(l, path+":Widget", reg, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "symbol table corrupt")

	// Clear the failure: the retry must attempt a fresh open.
	delete(opener.errs, path)
	opener.modules[path] = fakeModule{"Widget": makeWidget("recovered")}

	f, err := Resolve(l, path+":Widget", reg, "")
	require.NoError(t, err)
	assert.Equal(t, "recovered", f())
	assert.Equal(t, 2, opener.opens[path])
}

func TestResolve_MissingSymbolHint(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry()
	dir := t.TempDir()

	t.Run("hint lists capability matches", func(t *testing.T) {
		path := filepath.Join(dir, "many.so")
		touch(t, path)
		opener := newFakeOpener()
		opener.modules[path] = fakeModule{
			"GoodOne":  makeWidget("one"),
			"GoodTwo":  makeWidget("two"),
			"NotAFunc": 42,
		}
		l := New(WithOpener(opener))

		_, err := Resolve(l, path+":Nope", reg, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `symbol "Nope" not found`)
		assert.Contains(t, err.Error(), "available: GoodOne, GoodTwo")
		assert.NotContains(t, err.Error(), "NotAFunc")
	})

	t.Run("hint omitted when nothing satisfies", func(t *testing.T) {
		path := filepath.Join(dir, "bare.so")
		touch(t, path)
		opener := newFakeOpener()
		opener.modules[path] = fakeModule{"NotAFunc": 42}
		l := New(WithOpener(opener))

		_, err := Resolve(l, path+":Nope", reg, "")
		require.Error(t, err)
		assert.NotContains(t, err.Error(), "available:")
	})
}

func TestResolve_SymbolTypeChecks(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry()
	dir := t.TempDir()
	path := filepath.Join(dir, "typed.so")
	touch(t, path)

	wrongSig := func(n int) int { return n }
	opener := newFakeOpener()
	opener.modules[path] = fakeModule{
		"Constant": "just a string",
		"WrongSig": wrongSig,
	}
	l := New(WithOpener(opener))

	t.Run("non-function symbol", func(t *testing.T) {
		_, err := Resolve(l, path+":Constant", reg, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a constructor function")
	})

	t.Run("wrong factory signature", func(t *testing.T) {
		_, err := Resolve(l, path+":WrongSig", reg, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must have type")
		assert.Contains(t, err.Error(), "func(int) int")
	})
}

func TestResolve_PointerToVarSymbol(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry()
	dir := t.TempDir()
	path := filepath.Join(dir, "ptr.so")
	touch(t, path)

	// The stdlib plugin backend hands back pointers to exported variables.
	exported := makeWidget("deref")
	opener := newFakeOpener()
	opener.modules[path] = fakeModule{"Widget": &exported}
	l := New(WithOpener(opener))

	f, err := Resolve(l, path+":Widget", reg, "")
	require.NoError(t, err)
	assert.Equal(t, "deref", f())
}

func TestRegistry_Normalize(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry()

	tests := map[string]struct {
		spec string
		want string
	}{
		"bare builtin gains prefix":  {spec: "alpha", want: "builtin:alpha"},
		"case-insensitive match":     {spec: "Alpha", want: "builtin:Alpha"},
		"already prefixed untouched": {spec: "builtin:alpha", want: "builtin:alpha"},
		"path spec untouched":        {spec: "plugins/x.so:Widget", want: "plugins/x.so:Widget"},
		"backslash path untouched":   {spec: `plugins\x.so`, want: `plugins\x.so`},
		"unknown bare untouched":     {spec: "gamma", want: "gamma"},
		"empty untouched":            {spec: "", want: ""},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, reg.Normalize(tt.spec))
		})
	}
}

func TestRegistry_Names(t *testing.T) {
	t.Parallel()
	reg := NewRegistry[widgetFactory]()
	reg.Register("Zeta", makeWidget("z"))
	reg.Register("alpha", makeWidget("a"))
	assert.Equal(t, []string{"alpha", "zeta"}, reg.Names())
}
