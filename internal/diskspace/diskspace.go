// Package diskspace checks that local staging folders have enough free space.
package diskspace

import (
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

var ErrInsufficientSpace = errors.New("insufficient free space")

// FreeFunc returns the bytes available to unprivileged users on the file system of path.
type FreeFunc func(path string) (uint64, error)

// Free reports the space available on the file system holding path.
func Free(path string) (uint64, error) {
	var st unix.Statfs_t
	err := unix.Statfs(path, &st)
	if err != nil {
		return 0, errors.Wrapf(err, "unable to statfs %s", path)
	}

	return st.Bavail * uint64(st.Bsize), nil //nolint:unconvert // Bsize type differs per platform
}

// ParseSize parses sizes such as "1 GB" or "500MiB".
func ParseSize(s string) (uint64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid size %q", s)
	}

	return n, nil
}

// Check fails with ErrInsufficientSpace when a path has less than minFree bytes available.
// Folders that do not exist yet are checked on their closest existing parent.
func Check(free FreeFunc, minFree uint64, paths ...string) error {
	for _, path := range paths {
		if path == "" {
			continue
		}

		existing := closestExisting(path)
		avail, err := free(existing)
		if err != nil {
			return err
		}

		if avail < minFree {
			return errors.Wrapf(ErrInsufficientSpace, "%s has %s available, %s required",
				path, humanize.Bytes(avail), humanize.Bytes(minFree))
		}
	}

	return nil
}

func closestExisting(path string) string {
	path = filepath.Clean(path)
	for {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}
