package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func greet() ActionDescriptor {
	return ActionDescriptor{
		ID:          "greet",
		Description: "Greets a person",
		Parameters:  []ParameterDescriptor{{Name: "name", TypeID: "string", Examples: []string{"Ada", "Grace"}}},
	}
}

func report() ActionDescriptor {
	return ActionDescriptor{
		ID:          "report",
		Description: "Runs a report query",
		Parameters: []ParameterDescriptor{
			{Name: "query", TypeID: "query"},
			{Name: "limit", TypeID: "int", Examples: []string{"10"}},
		},
	}
}

func TestRegistry_RegisterAndFind(t *testing.T) {
	reg := NewRegistry().MustRegister(greet(), report())

	d, ok := reg.FindDescriptor("greet")
	require.True(t, ok)
	assert.Equal(t, greet(), d)

	_, ok = reg.FindDescriptor("farewell")
	assert.False(t, ok)

	ids := []string{}
	for _, d := range reg.ListDescriptors() {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"greet", "report"}, ids)
	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, []string{"query", "limit"}, report().ParameterNames())
}

// TestRegistry_ReturnsCopies verifies stored descriptors cannot be mutated
// through values handed in or out.
func TestRegistry_ReturnsCopies(t *testing.T) {
	in := greet()
	reg := NewRegistry()
	require.NoError(t, reg.Register(in))

	in.Parameters[0].Name = "mutated"
	in.Parameters[0].Examples[0] = "mutated"

	out, _ := reg.FindDescriptor("greet")
	out.Parameters[0].TypeID = "int"

	again, _ := reg.FindDescriptor("greet")
	assert.Equal(t, greet(), again)
}

func TestRegistry_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		d    ActionDescriptor
		code string
	}{
		{"empty id", ActionDescriptor{ID: " "}, ErrCodeEmptyID},
		{"unnamed param", ActionDescriptor{ID: "a", Parameters: []ParameterDescriptor{{TypeID: "string"}}}, ErrCodeInvalidParam},
		{"untyped param", ActionDescriptor{ID: "a", Parameters: []ParameterDescriptor{{Name: "x"}}}, ErrCodeInvalidParam},
		{"duplicate param", ActionDescriptor{ID: "a", Parameters: []ParameterDescriptor{
			{Name: "x", TypeID: "string"}, {Name: "x", TypeID: "int"},
		}}, ErrCodeInvalidParam},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRegistry().Register(tt.d)
			var derr *DescriptorError
			require.True(t, errors.As(err, &derr))
			assert.Equal(t, tt.code, derr.Code)
		})
	}

	reg := NewRegistry().MustRegister(greet())
	err := reg.Register(greet())
	var derr *DescriptorError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, ErrCodeDuplicate, derr.Code)
	assert.Contains(t, err.Error(), "action: greet")

	assert.Panics(t, func() { NewRegistry().MustRegister(ActionDescriptor{}) })
}

func TestRegistry_ConcurrentRegistration(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = reg.Register(ActionDescriptor{ID: fmt.Sprintf("action-%d", i)})
			_, _ = reg.FindDescriptor("action-0")
			_ = reg.ListDescriptors()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, reg.Len())
}

func TestLoad_YAML(t *testing.T) {
	src := `
actions:
  - id: greet
    description: Greets a person
    parameters:
      - name: name
        type: string
        examples: ["Ada", "Grace"]
  - id: report
    description: Runs a report query
    parameters:
      - name: query
        type: query
      - name: limit
        type: int
        examples: ["10"]
`
	reg, err := Load(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, []ActionDescriptor{greet(), report()}, reg.ListDescriptors())

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))
	fromFile, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, fromFile.Len())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(strings.NewReader("actions:\n  - id: a\n    colour: red\n"))
	assert.Error(t, err, "unknown fields are rejected")

	_, err = Load(strings.NewReader("actions:\n  - id: a\n  - id: a\n"))
	assert.Error(t, err)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	reg, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Zero(t, reg.Len())
}

func TestWriteCatalogText(t *testing.T) {
	reg := NewRegistry().MustRegister(greet(), report())

	var buf bytes.Buffer
	require.NoError(t, WriteCatalogText(&buf, reg))
	assert.Equal(t, `Action: greet
Description: Greets a person
Parameters:
  - name: string (e.g. Ada)

Action: report
Description: Runs a report query
Parameters:
  - query: query
  - limit: int (e.g. 10)
`, buf.String())

	var again bytes.Buffer
	require.NoError(t, WriteCatalogText(&again, reg))
	assert.Equal(t, buf.String(), again.String())

	var empty bytes.Buffer
	require.NoError(t, WriteCatalogText(&empty, NewRegistry()))
	assert.Empty(t, empty.String())
}

func TestFingerprint(t *testing.T) {
	a, err := Fingerprint(greet())
	require.NoError(t, err)
	b, err := Fingerprint(greet())
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	changed := greet()
	changed.Parameters[0].TypeID = "int"
	c, err := Fingerprint(changed)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	reg1 := NewRegistry().MustRegister(greet(), report())
	reg2 := NewRegistry().MustRegister(report(), greet())
	f1, err := CatalogFingerprint(reg1)
	require.NoError(t, err)
	f2, err := CatalogFingerprint(reg2)
	require.NoError(t, err)
	assert.NotEqual(t, f1, f2, "registration order is part of the catalog identity")
}
