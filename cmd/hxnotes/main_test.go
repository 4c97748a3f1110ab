package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, "--config", filepath.Join(t.TempDir(), "absent.yml")))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "collectstatic"} {
		assert.True(t, names[want], want)
	}

	sub := map[string]bool{}
	for _, c := range migrateCmd.Commands() {
		sub[c.Name()] = true
	}
	assert.Equal(t, map[string]bool{"plan": true, "apply": true, "status": true}, sub)
}

func TestCollectstatic(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "css"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "img"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "css", "app.css"), []byte("body{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "img", "logo.svg"), []byte("<svg/>"), 0o644))

	root := filepath.Join(t.TempDir(), "public")
	t.Setenv("STATIC_ROOT", root)
	t.Setenv("STATIC_SOURCES", src)
	t.Setenv("LOG_LEVEL", "error")

	out, err := run(t, "collectstatic", "--clear")
	require.NoError(t, err)
	assert.Contains(t, out, "static files copied")

	css, err := os.ReadFile(filepath.Join(root, "css", "app.css"))
	require.NoError(t, err)
	assert.Equal(t, "body{}", string(css))
	assert.FileExists(t, filepath.Join(root, "js", "app.js"))
	assert.FileExists(t, filepath.Join(root, "img", "logo.svg"))
	assert.FileExists(t, filepath.Join(root, "manifest.json"))
}

func TestCollectstatic_RequiresRoot(t *testing.T) {
	t.Setenv("STATIC_ROOT", "")
	t.Setenv("STATIC_SOURCES", "")

	_, err := run(t, "collectstatic")
	assert.ErrorContains(t, err, "STATIC_ROOT")
}

func TestCollectstatic_MissingSource(t *testing.T) {
	t.Setenv("STATIC_ROOT", filepath.Join(t.TempDir(), "public"))
	t.Setenv("STATIC_SOURCES", filepath.Join(t.TempDir(), "nope"))

	_, err := run(t, "collectstatic")
	assert.ErrorContains(t, err, "static source")
}

func TestCollectstatic_RefusesRootAsSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "css"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "css", "site.css"), []byte("body{color:red}"), 0o644))

	t.Setenv("STATIC_ROOT", dir)
	t.Setenv("STATIC_SOURCES", dir)

	_, err := run(t, "collectstatic", "--clear")
	assert.ErrorContains(t, err, "overlaps the collect root")

	b, err := os.ReadFile(filepath.Join(dir, "css", "site.css"))
	require.NoError(t, err, "--clear must not remove the source")
	assert.Equal(t, "body{color:red}", string(b))
}
