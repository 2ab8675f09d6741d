// Package fsutil holds the file-system operations shared by the stages: copying files
// and trees while keeping mode and modification time, and listing files.
package fsutil

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const dirMode = 0o755

// CopyFile copies src to dst, replacing dst. Mode and modification time follow src.
func CopyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return errors.Wrap(err, "unable to stat source")
	}
	if !info.Mode().IsRegular() {
		return errors.Errorf("%s is not a regular file", src)
	}

	err = os.MkdirAll(filepath.Dir(dst), dirMode)
	if err != nil {
		return errors.Wrap(err, "unable to create destination folder")
	}

	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "unable to open source")
	}
	defer in.Close()

	// A previous copy may carry read-only bits from its source.
	err = os.Remove(dst)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrap(err, "unable to replace destination")
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm()|0o200)
	if err != nil {
		return errors.Wrap(err, "unable to open destination")
	}

	_, err = io.Copy(out, in)
	if err != nil {
		_ = out.Close()
		return errors.Wrapf(err, "unable to copy %s", src)
	}

	err = out.Close()
	if err != nil {
		return errors.Wrapf(err, "unable to close %s", dst)
	}

	err = os.Chmod(dst, info.Mode().Perm())
	if err != nil {
		return errors.Wrap(err, "unable to set destination mode")
	}

	err = os.Chtimes(dst, info.ModTime(), info.ModTime())
	if err != nil {
		return errors.Wrap(err, "unable to set destination times")
	}

	return nil
}

// CopyDirFiles copies the regular files directly inside src into dst and returns how many
// were copied. Sub-folders are ignored.
func CopyDirFiles(src, dst string) (int, error) {
	entries, err := os.ReadDir(src)
	if err != nil {
		return 0, errors.Wrap(err, "unable to read source folder")
	}

	err = os.MkdirAll(dst, dirMode)
	if err != nil {
		return 0, errors.Wrap(err, "unable to create destination folder")
	}

	copied := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		err := CopyFile(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name()))
		if err != nil {
			return copied, err
		}
		copied++
	}

	return copied, nil
}

// CopyTree copies the whole tree below src into dst and returns how many files were copied.
func CopyTree(src, dst string) (int, error) {
	copied := 0
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return errors.Wrap(err, "unable to compute relative path")
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			return os.MkdirAll(target, dirMode)
		case d.Type().IsRegular():
			err := CopyFile(path, target)
			if err != nil {
				return err
			}
			copied++
		}

		return nil
	})
	if err != nil {
		return copied, errors.Wrapf(err, "unable to copy tree %s", src)
	}

	return copied, nil
}

// Files lists the regular files below root, in lexical order.
func Files(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to list %s", root)
	}

	return files, nil
}

// IsEmptyDir reports whether path is missing or holds no regular file at any depth.
func IsEmptyDir(path string) (bool, error) {
	files, err := Files(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true, nil
		}
		return false, err
	}

	return len(files) == 0, nil
}
