package component

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waivern/wct/pkg/schema"
)

type fakeFactory struct {
	name    string
	inputs  []schema.Schema
	outputs []schema.Schema
}

func (f *fakeFactory) Name() string                  { return f.name }
func (f *fakeFactory) InputSchemas() []schema.Schema { return f.inputs }
func (f *fakeFactory) OutputSchemas() []schema.Schema {
	return f.outputs
}
func (f *fakeFactory) ServiceDependencies() []string         { return nil }
func (f *fakeFactory) CanCreate(map[string]any) error        { return nil }
func (f *fakeFactory) Create(map[string]any, *Container) (any, error) {
	return nil, nil
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	f := &fakeFactory{name: "filesystem", outputs: []schema.Schema{schema.New("standard_input", "1.0.0")}}
	require.NoError(t, reg.Register(f))

	got, err := reg.Lookup("filesystem")
	require.NoError(t, err)
	assert.Equal(t, "filesystem", got.Name())

	_, err = reg.Lookup("ghost")
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&fakeFactory{name: "dup"}))
	err := reg.Register(&fakeFactory{name: "dup"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistryNamesSorted(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&fakeFactory{name: "zeta"}))
	require.NoError(t, reg.Register(&fakeFactory{name: "alpha"}))
	assert.Equal(t, []string{"alpha", "zeta"}, reg.Names())
}

func TestDecodeConfig(t *testing.T) {
	type cfg struct {
		Path    string `json:"path"`
		Maximum int    `json:"maximum"`
	}

	var c cfg
	require.NoError(t, DecodeConfig(map[string]any{"path": "/data", "maximum": 5}, &c))
	assert.Equal(t, cfg{Path: "/data", Maximum: 5}, c)

	err := DecodeConfig(map[string]any{"path": "/data", "pth": "typo"}, &cfg{})
	require.ErrorIs(t, err, ErrConfig)

	err = DecodeConfig(map[string]any{"maximum": "five"}, &cfg{})
	require.ErrorIs(t, err, ErrConfig)
}

func TestContainerSingletonSharesInstance(t *testing.T) {
	c := NewContainer()
	builds := 0
	c.RegisterSingleton("svc", func(*Container) (any, error) {
		builds++
		return &builds, nil
	})

	first, err := c.Resolve("svc")
	require.NoError(t, err)
	second, err := c.Resolve("svc")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, builds)
}

func TestContainerTransientBuildsEachTime(t *testing.T) {
	c := NewContainer()
	builds := 0
	c.RegisterTransient("svc", func(*Container) (any, error) {
		builds++
		return builds, nil
	})

	first, err := c.Resolve("svc")
	require.NoError(t, err)
	second, err := c.Resolve("svc")
	require.NoError(t, err)
	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestContainerRegisterValue(t *testing.T) {
	c := NewContainer()
	c.RegisterValue("answer", 42)

	v, err := c.Resolve("answer")
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.True(t, c.Has("answer"))
	assert.False(t, c.Has("question"))
}

func TestContainerResolveErrors(t *testing.T) {
	c := NewContainer()
	_, err := c.Resolve("missing")
	require.ErrorIs(t, err, ErrServiceNotFound)

	c.RegisterSingleton("broken", func(*Container) (any, error) {
		return nil, errors.New("boom")
	})
	_, err = c.Resolve("broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestContainerConstructorResolvesDependencies(t *testing.T) {
	c := NewContainer()
	c.RegisterValue("prefix", "wct")
	c.RegisterSingleton("greeting", func(c *Container) (any, error) {
		p, err := c.Resolve("prefix")
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("%s: hello", p), nil
	})

	v, err := c.Resolve("greeting")
	require.NoError(t, err)
	assert.Equal(t, "wct: hello", v)
}

func TestContainerResolveOptional(t *testing.T) {
	c := NewContainer()
	assert.Nil(t, c.ResolveOptional("absent"))

	c.RegisterValue("present", "yes")
	assert.Equal(t, "yes", c.ResolveOptional("present"))
}
