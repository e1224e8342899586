package store

import (
	"fmt"
	"path"
	"strings"
)

// CleanPath normalizes a client-supplied name into a rooted store path.
// Relative names are taken relative to the root, and ".." never escapes it.
func CleanPath(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty name: %w", ErrInvalidPath)
	}
	if strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("name contains NUL: %w", ErrInvalidPath)
	}
	return path.Clean("/" + name), nil
}

// Parent returns the directory containing p. The parent of "/" is "/".
func Parent(p string) string {
	return path.Dir(p)
}

// Base returns the last element of p.
func Base(p string) string {
	return path.Base(p)
}

// IsWithin reports whether p is dir or lies below it.
func IsWithin(p, dir string) bool {
	if dir == "/" {
		return true
	}
	return p == dir || strings.HasPrefix(p, dir+"/")
}

// Ancestors returns every directory from the root down to p, excluding "/"
// and including p itself. Ancestors("/a/b") is ["/a", "/a/b"].
func Ancestors(p string) []string {
	if p == "/" {
		return nil
	}
	parts := strings.Split(strings.TrimPrefix(p, "/"), "/")
	out := make([]string, 0, len(parts))
	cur := ""
	for _, part := range parts {
		cur += "/" + part
		out = append(out, cur)
	}
	return out
}
