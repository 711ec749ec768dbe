// Package pointer publishes system pointers: symlinks naming the current and
// booted system closures.
package pointer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const (
	CurrentSystem = "current-system"
	BootedSystem  = "booted-system"
)

var ErrPointerPublishFailed = errors.New("pointer: publish failed")

// Publish points link at target. Readers observe either the old or the new
// target, never a missing link: the new symlink is created under a temporary
// name in the same directory and renamed over link.
func Publish(target string, link string) error {
	dir := filepath.Dir(link)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%s", filepath.Base(link), uuid.NewString()))

	if err := os.Symlink(target, tmp); err != nil {
		return fmt.Errorf("%w: link=%q target=%q: %w", ErrPointerPublishFailed, link, target, err)
	}
	if err := os.Rename(tmp, link); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: link=%q target=%q: %w", ErrPointerPublishFailed, link, target, err)
	}
	return nil
}

// Target reads where link currently points.
func Target(link string) (string, error) {
	return os.Readlink(link)
}
