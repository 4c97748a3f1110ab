// Package assets owns the static files served under the static URL. The
// defaults are embedded; collectstatic merges them with project directories
// into one serving root and records a content manifest.
package assets

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed static
var embedded embed.FS

// ManifestName is the file Collect writes at the root of dst.
const ManifestName = "manifest.json"

// Required lists the files every page links to.
var Required = []string{"css/app.css", "js/app.js"}

// ErrSourceOverlapsRoot is returned when a source is the collect root, lies
// inside it, or contains it. Collecting would overwrite or delete the source.
var ErrSourceOverlapsRoot = errors.New("static source overlaps the collect root")

// Manifest maps a slash-separated asset path to the hex sha256 of its content.
type Manifest map[string]string

// Paths returns the manifest entries in sorted order.
func (m Manifest) Paths() []string {
	out := make([]string, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Default returns the embedded assets rooted at "static".
func Default() fs.FS {
	sub, err := fs.Sub(embedded, "static")
	if err != nil {
		panic(err) // the embed pattern guarantees the directory
	}
	return sub
}

// Open returns the directory at root, or the embedded defaults when root is empty.
func Open(root string) fs.FS {
	if root == "" {
		return Default()
	}
	return os.DirFS(root)
}

// Check returns the required paths that are missing from fsys.
func Check(fsys fs.FS, required ...string) []string {
	var missing []string
	for _, p := range required {
		info, err := fs.Stat(fsys, p)
		if err != nil || info.IsDir() {
			missing = append(missing, p)
		}
	}
	return missing
}

// Collect copies every file of sources into dst. When two sources contain
// the same path, the later source wins. The result is written to
// dst/manifest.json and returned; running Collect twice over the same
// sources produces the same tree and manifest.
func Collect(dst string, sources ...fs.FS) (Manifest, error) {
	if len(sources) == 0 {
		return nil, errors.New("collect: no sources")
	}

	for i, src := range sources {
		if overlapsRoot(src, dst) {
			return nil, fmt.Errorf("collect: source %d: %w", i, ErrSourceOverlapsRoot)
		}
	}

	owner := make(map[string]fs.FS)
	for i, src := range sources {
		err := fs.WalkDir(src, ".", func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || p == ManifestName {
				return nil
			}
			owner[p] = src
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("collect: walk source %d: %w", i, err)
		}
	}

	manifest := make(Manifest, len(owner))
	for p, src := range owner {
		sum, err := copyFile(src, p, filepath.Join(dst, filepath.FromSlash(p)))
		if err != nil {
			return nil, fmt.Errorf("collect: %s: %w", p, err)
		}
		manifest[p] = sum
	}

	b, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dst, ManifestName), append(b, '\n'), 0o644); err != nil {
		return nil, fmt.Errorf("collect: write manifest: %w", err)
	}
	return manifest, nil
}

// overlapsRoot reports whether the directory behind src is dst, one of its
// ancestors or one of its subdirectories. Sources that are not backed by the
// OS filesystem (embedded, in-memory) never overlap.
func overlapsRoot(src fs.FS, dst string) bool {
	root, err := fs.Stat(src, ".")
	if err != nil || !root.IsDir() {
		return false
	}
	abs, err := filepath.Abs(dst)
	if err != nil {
		return false
	}
	for dir := abs; ; dir = filepath.Dir(dir) {
		if info, err := os.Stat(dir); err == nil && os.SameFile(root, info) {
			return true
		}
		if filepath.Dir(dir) == dir {
			break
		}
	}
	found := false
	_ = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil && os.SameFile(root, info) {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	return found
}

// Overlaps reports whether the directories a and b are the same or one
// contains the other. Symlinks are resolved where the paths exist.
func Overlaps(a, b string) bool {
	a, b = resolve(a), resolve(b)
	return within(a, b) || within(b, a)
}

// resolve makes p absolute and resolves symlinks in its longest existing prefix.
func resolve(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	rest := ""
	for dir := abs; ; dir = filepath.Dir(dir) {
		if real, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(real, rest)
		}
		if filepath.Dir(dir) == dir {
			return abs
		}
		rest = filepath.Join(filepath.Base(dir), rest)
	}
}

// within reports whether p is dir or below it.
func within(p, dir string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func copyFile(src fs.FS, name, dst string) (string, error) {
	in, err := src.Open(name)
	if err != nil {
		return "", err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(out, h), in); err != nil {
		out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ReadManifest loads the manifest written by Collect from fsys.
func ReadManifest(fsys fs.FS) (Manifest, error) {
	b, err := fs.ReadFile(fsys, ManifestName)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ManifestName, err)
	}
	return m, nil
}
