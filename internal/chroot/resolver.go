// Package chroot canonicalizes paths as they resolve inside an alternate root.
//
// Host-side canonicalization would follow absolute symlinks against the real
// root, so resolution is delegated to a helper that runs realpath chrooted
// into the alternate root.
package chroot

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var ErrPathResolutionFailed = errors.New("chroot: path resolution failed")

// Helper performs a chroot-scoped realpath.
type Helper interface {
	ResolvePathUnderRoot(root string, path string) (string, error)
}

// Resolved is a path canonicalized inside Root.
type Resolved struct {
	Root string
	// Path is absolute inside Root and carries no Root prefix.
	Path string
}

// Host returns Path in the caller's coordinate space.
func (r Resolved) Host() string {
	return filepath.Join(r.Root, r.Path)
}

type Resolver struct {
	helper Helper
}

func NewResolver(helper Helper) *Resolver {
	return &Resolver{helper: helper}
}

// Resolve canonicalizes path as if root were "/". Helper errors keep their
// classification (missing helper vs bad path) in the chain.
func (r *Resolver) Resolve(root string, path string) (Resolved, error) {
	out, err := r.helper.ResolvePathUnderRoot(root, path)
	if err != nil {
		return Resolved{}, fmt.Errorf("%w: root=%q path=%q: %w", ErrPathResolutionFailed, root, path, err)
	}
	out = strings.TrimSpace(out)
	if !filepath.IsAbs(out) {
		return Resolved{}, fmt.Errorf("%w: root=%q path=%q: helper returned non-absolute path %q", ErrPathResolutionFailed, root, path, out)
	}
	return Resolved{Root: root, Path: filepath.Clean(out)}, nil
}
