package project

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadGoModule(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"/svc/go.mod": "module example.com/test\n\ngo 1.25.0\n\nrequire github.com/spf13/afero v1.15.0\n"})

	mod, err := ReadGoModule(fs, "/svc")
	require.NoError(t, err)
	require.NotNil(t, mod)
	assert.Equal(t, "example.com/test", mod.Path)
	assert.Equal(t, "1.25.0", mod.GoVersion)
	assert.Equal(t, "example.com/test (go 1.25.0)", mod.String())
}

func TestReadGoModule_Missing(t *testing.T) {
	mod, err := ReadGoModule(afero.NewMemMapFs(), "/none")
	assert.NoError(t, err)
	assert.Nil(t, mod)
}

func TestReadGoModule_NoModuleDirective(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"/bad/go.mod": "go 1.22\n"})

	_, err := ReadGoModule(fs, "/bad")
	assert.ErrorContains(t, err, "module directive not found")
}

func TestScan_GoModule(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/svc/go.mod":  "module example.com/svc\n\ngo 1.24\n",
		"/svc/main.go": "package main\n",
	})

	snap, err := NewScanner(fs).Scan("/svc")
	require.NoError(t, err)
	assert.Equal(t, "go", snap.Language)
	require.NotNil(t, snap.GoModule)
	assert.Equal(t, "example.com/svc", snap.GoModule.Path)
	assert.Contains(t, snap.Files, "main.go")
}
