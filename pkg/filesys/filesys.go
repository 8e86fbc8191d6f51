// Package filesys provides the directory-level file system operations the
// engine needs for disk accounting and backup: measuring a directory's
// total size and copying it while excluding specific entries.
package filesys

import (
	"errors"
	"io"
	"os"
	"path/filepath"
)

var (
	ErrIsNotDir = errors.New("path isn't a directory")
)

// CopyDirExcluding behaves like an ordinary recursive directory copy but
// skips any top-level entry whose base name appears in `exclude`. This is
// how an engine backs itself up without shipping its own advisory lock file.
func CopyDirExcluding(src, dest string, exclude []string) error {
	srcStat, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !srcStat.IsDir() {
		return ErrIsNotDir
	}

	excluded := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		excluded[name] = true
	}

	if err := os.MkdirAll(dest, srcStat.Mode()); err != nil {
		return err
	}

	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if excluded[info.Name()] {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		destPath := filepath.Join(dest, path[len(src)+1:])
		if err := os.MkdirAll(filepath.Dir(destPath), os.ModePerm); err != nil {
			return err
		}

		srcFile, err := os.Open(path)
		if err != nil {
			return err
		}
		defer srcFile.Close()

		destFile, err := os.Create(destPath)
		if err != nil {
			return err
		}
		defer destFile.Close()

		_, err = io.Copy(destFile, srcFile)
		return err
	})
}

// DirSize sums the apparent size, in bytes, of every regular file
// under dir.
func DirSize(dir string) (int64, error) {
	var total int64
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}
