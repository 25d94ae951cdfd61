package project

import (
	"fmt"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0644))
	}
}

func TestScan_FiltersAndOrders(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/repo/package.json":                    `{"name":"site","dependencies":{"next":"15.0.0","react":"19.0.0"}}`,
		"/repo/tsconfig.json":                   `{}`,
		"/repo/src/app/page.tsx":                "export default function Page() {}",
		"/repo/src/app/about/page.tsx":          "x",
		"/repo/src/app/about/deep/too-deep.tsx": "x",
		"/repo/.github/workflows/ci.yml":        "on: push",
		"/repo/.env":                            "SECRET=1",
		"/repo/.next/cache.json":                "{}",
		"/repo/node_modules/react/index.js":     "x",
		"/repo/public/logo.png":                 "binary",
		"/repo/README.md":                       "# site",
	})

	snap, err := NewScanner(fs).Scan("/repo")
	require.NoError(t, err)

	assert.Equal(t, []string{
		".github/workflows/ci.yml",
		"README.md",
		"package.json",
		"src/app/page.tsx",
		"tsconfig.json",
	}, snap.Files)
	assert.NotContains(t, snap.Files, "src/app/about/page.tsx", "depth limit excludes a third directory level")
	assert.Equal(t, "typescript", snap.Language)
	require.NotNil(t, snap.Manifest)
	assert.Equal(t, "site", snap.Manifest.Name)
	assert.Equal(t, []string{"next", "react"}, snap.Manifest.DependencyNames())
}

func TestScan_Cap(t *testing.T) {
	fs := afero.NewMemMapFs()
	for i := 0; i < 150; i++ {
		require.NoError(t, afero.WriteFile(fs, fmt.Sprintf("/repo/f%03d.ts", i), []byte("x"), 0644))
	}
	snap, err := NewScanner(fs).Scan("/repo")
	require.NoError(t, err)
	assert.Len(t, snap.Files, MaxEntries)
	assert.Equal(t, "f000.ts", snap.Files[0])
}

func TestScan_MissingRoot(t *testing.T) {
	_, err := NewScanner(afero.NewMemMapFs()).Scan("/nope")
	assert.Error(t, err)
}

func TestSnapshot_Cached(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"/repo/a.ts": "x"})
	s := NewScanner(fs)

	first, err := s.Snapshot("/repo")
	require.NoError(t, err)
	assert.Len(t, first.Files, 1)

	writeFiles(t, fs, map[string]string{"/repo/b.ts": "x"})
	cached, err := s.Snapshot("/repo")
	require.NoError(t, err)
	assert.Same(t, first, cached)

	s.Invalidate("/repo")
	fresh, err := s.Snapshot("/repo")
	require.NoError(t, err)
	assert.Len(t, fresh.Files, 2)
}

func TestIsRelevant(t *testing.T) {
	assert.True(t, IsRelevant("button.module.css"))
	assert.True(t, IsRelevant("main.go"))
	assert.False(t, IsRelevant("logo.svg"))
}

func TestDetectLanguage(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"/go/go.mod": "module x", "/js/package.json": "{}"})
	assert.Equal(t, "go", DetectLanguage(fs, "/go"))
	assert.Equal(t, "javascript", DetectLanguage(fs, "/js"))
	assert.Equal(t, "", DetectLanguage(fs, "/none"))
}

func TestReadPackageManifest(t *testing.T) {
	fs := afero.NewMemMapFs()
	m, err := ReadPackageManifest(fs, "/repo")
	assert.NoError(t, err)
	assert.Nil(t, m)

	writeFiles(t, fs, map[string]string{"/repo/package.json": "{broken"})
	_, err = ReadPackageManifest(fs, "/repo")
	assert.Error(t, err)
}
