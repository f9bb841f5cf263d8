// Package filex enumerates local file selections and detects MIME types.
package filex

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
)

// Selection is a path selection expanded into every folder and file it
// covers. Folders are sorted so a parent always precedes its children.
type Selection struct {
	Folders []string
	Files   []string
}

// Expand walks every selected folder recursively. Duplicate and overlapping
// paths are reported once.
func Expand(fsys afero.Fs, paths []string) (*Selection, error) {
	seen := make(map[string]bool)
	sel := &Selection{}

	for _, p := range paths {
		p = filepath.Clean(p)
		info, err := fsys.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			if !seen[p] {
				seen[p] = true
				sel.Files = append(sel.Files, p)
			}
			continue
		}

		err = afero.Walk(fsys, p, func(path string, info fs.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if seen[path] {
				return nil
			}
			seen[path] = true
			if info.IsDir() {
				sel.Folders = append(sel.Folders, path)
			} else if info.Mode().IsRegular() {
				sel.Files = append(sel.Files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", p, err)
		}
	}

	sort.Strings(sel.Folders)
	sort.Strings(sel.Files)
	return sel, nil
}

const sniffLen = 512

// DetectMimeType guesses from the extension first and from the content
// otherwise.
func DetectMimeType(fsys afero.Fs, path string) (string, error) {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t, nil
	}

	f, err := fsys.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", err
	}
	return http.DetectContentType(buf[:n]), nil
}

// EnsureDir creates dir and returns its absolute form.
func EnsureDir(fsys afero.Fs, dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("abs %s: %w", dir, err)
	}
	if err := fsys.MkdirAll(abs, 0o700); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", abs, err)
	}
	return abs, nil
}
