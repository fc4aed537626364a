package script

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"costa/internal/costa"
)

var errNotFound = fs.ErrNotExist

// Resolve maps a managed module id to the absolute path of the file that
// implements it. Absolute ids are resolved directly; bare ids are looked up
// in searchPaths in order. Relative ids have no meaning without a requiring
// file and are rejected.
func Resolve(id string, searchPaths []string) (string, error) {
	notFound := func(err error) error {
		return &costa.ModuleNotFoundError{
			Ecosystem:   costa.Managed,
			ID:          id,
			SearchPaths: append([]string(nil), searchPaths...),
			Err:         err,
		}
	}
	switch {
	case id == "":
		return "", notFound(errors.New("empty module id"))
	case isRelative(id):
		return "", notFound(fmt.Errorf("relative id %q needs a requiring script", id))
	case filepath.IsAbs(id):
		if p, ok := resolvePath(filepath.Clean(id)); ok {
			return p, nil
		}
		return "", notFound(errNotFound)
	}
	if p, ok := lookup(id, searchPaths); ok {
		return p, nil
	}
	return "", notFound(errNotFound)
}

// resolveFrom resolves an id required by the script at from. Relative and
// absolute ids are taken against the script's directory; bare ids walk up
// the node_modules chain of the script before trying the fallback paths.
func resolveFrom(from, id string, fallback []string) (string, error) {
	dir := filepath.Dir(from)
	if isRelative(id) || filepath.IsAbs(id) {
		p := id
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, id)
		}
		if resolved, ok := resolvePath(filepath.Clean(p)); ok {
			return resolved, nil
		}
		return "", &costa.ModuleNotFoundError{Ecosystem: costa.Managed, ID: id, SearchPaths: []string{dir}, Err: errNotFound}
	}

	paths := append(nodeModulesChain(dir), fallback...)
	if p, ok := lookup(id, paths); ok {
		return p, nil
	}
	return "", &costa.ModuleNotFoundError{Ecosystem: costa.Managed, ID: id, SearchPaths: paths, Err: errNotFound}
}

func lookup(id string, dirs []string) (string, bool) {
	for _, d := range dirs {
		if d == "" {
			continue
		}
		if p, ok := resolvePath(filepath.Join(d, filepath.FromSlash(id))); ok {
			return p, true
		}
	}
	return "", false
}

func resolvePath(base string) (string, bool) {
	if p, ok := resolveFile(base); ok {
		return p, true
	}
	return resolveDir(base)
}

func resolveFile(base string) (string, bool) {
	for _, p := range []string{base, base + ".js", base + ".json"} {
		if isFile(p) {
			return absPath(p), true
		}
	}
	return "", false
}

type packageJSON struct {
	Main string `json:"main"`
}

func resolveDir(dir string) (string, bool) {
	if raw, err := os.ReadFile(filepath.Join(dir, "package.json")); err == nil {
		var pkg packageJSON
		if json.Unmarshal(raw, &pkg) == nil && pkg.Main != "" {
			main := filepath.Join(dir, filepath.FromSlash(pkg.Main))
			if p, ok := resolveFile(main); ok {
				return p, true
			}
			if p, ok := resolveIndex(main); ok {
				return p, true
			}
		}
	}
	return resolveIndex(dir)
}

func resolveIndex(dir string) (string, bool) {
	for _, name := range []string{"index.js", "index.json"} {
		p := filepath.Join(dir, name)
		if isFile(p) {
			return absPath(p), true
		}
	}
	return "", false
}

// nodeModulesChain lists dir/node_modules and every ancestor's node_modules,
// nearest first.
func nodeModulesChain(dir string) []string {
	var out []string
	for {
		if filepath.Base(dir) != "node_modules" {
			out = append(out, filepath.Join(dir, "node_modules"))
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return out
		}
		dir = parent
	}
}

// HostSearchPaths returns the global module folders of the host: NODE_PATH
// entries, then $HOME/.node_modules and $HOME/.node_libraries.
func HostSearchPaths() []string {
	var out []string
	for _, p := range filepath.SplitList(os.Getenv("NODE_PATH")) {
		if p != "" {
			out = append(out, p)
		}
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		out = append(out, filepath.Join(home, ".node_modules"), filepath.Join(home, ".node_libraries"))
	}
	return out
}

func isRelative(id string) bool {
	return id == "." || id == ".." || strings.HasPrefix(id, "./") || strings.HasPrefix(id, "../")
}

func isFile(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

func absPath(p string) string {
	if a, err := filepath.Abs(p); err == nil {
		return a
	}
	return p
}
