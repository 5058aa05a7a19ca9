// Package vpath manipulates the virtual folder paths of the catalog.
//
// A folder path is absolute and carries a trailing separator: "/" is the
// root, "/a/b/" is folder b inside folder a. Leaf names are kept apart from
// their folder path and never contain a separator.
package vpath

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/evidencekeeper/internal/common"
)

const (
	Separator = "/"
	Root      = "/"
)

// Normalize converts p into folder form. Empty input is the root. Duplicate
// separators collapse; "." and ".." segments are rejected.
func Normalize(p string) (string, error) {
	segs, err := split(p)
	if err != nil {
		return "", err
	}
	return FromSegments(segs), nil
}

// IsNormalized reports whether p is already in folder form.
func IsNormalized(p string) bool {
	n, err := Normalize(p)
	return err == nil && n == p
}

// Segments returns the folder names along p, outermost first.
func Segments(p string) []string {
	segs, _ := split(p)
	return segs
}

// FromSegments builds a folder path from its segments.
func FromSegments(segs []string) string {
	if len(segs) == 0 {
		return Root
	}
	return Separator + strings.Join(segs, Separator) + Separator
}

// Join returns the folder path of the child folder name inside parent.
func Join(parent, name string) string {
	return parent + name + Separator
}

// Split returns the parent folder path and the final segment of folder p.
// The root has no parent: Split("/") returns ("/", "").
func Split(p string) (parent, name string) {
	segs := Segments(p)
	if len(segs) == 0 {
		return Root, ""
	}
	return FromSegments(segs[:len(segs)-1]), segs[len(segs)-1]
}

// ValidName checks a leaf or folder name.
func ValidName(name string) error {
	if name == "" || name == "." || name == ".." || strings.Contains(name, Separator) {
		return fmt.Errorf("%w: name %q", common.ErrInvalidPath, name)
	}
	return nil
}

// StripPrefix removes the folder prefix from p. When p does not live under
// prefix it is returned unchanged.
func StripPrefix(p, prefix string) string {
	if prefix == "" || prefix == Root || !strings.HasPrefix(p, prefix) {
		return p
	}
	return Root + strings.TrimPrefix(p, prefix)
}

// HasPrefix reports whether folder p lives under (or is) folder prefix.
func HasPrefix(p, prefix string) bool {
	return strings.HasPrefix(p, prefix)
}

func split(p string) ([]string, error) {
	raw := strings.Split(p, Separator)
	segs := make([]string, 0, len(raw))
	for _, s := range raw {
		switch s {
		case "":
			continue
		case ".", "..":
			return nil, fmt.Errorf("%w: %q", common.ErrInvalidPath, p)
		}
		segs = append(segs, s)
	}
	return segs, nil
}
