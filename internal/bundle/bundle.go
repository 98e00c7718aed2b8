package bundle

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFile holds extra exclusion patterns (gitignore syntax) at the
// workflow root.
const IgnoreFile = ".omicsignore"

// defaultIgnoreDirs are never packed, at any depth.
var defaultIgnoreDirs = []string{".git", ".github", ".devcontainer", "docs"}

// Options controls what is packed.
type Options struct {
	// Ignore adds gitignore-style patterns on top of the defaults.
	Ignore []string
}

// Result holds the output of bundling a workflow.
type Result struct {
	Zip   []byte   // Deflate-compressed zip of the workflow tree
	Files []string // Packed entries, slash-separated and relative to the root
	Name  string   // Workflow name (derived from the directory)
}

// Bundle zips every regular file under dir. Entry names are relative to dir.
func Bundle(dir string, opts Options) (*Result, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("stat workflow: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workflow %s is not a directory", dir)
	}

	matcher, err := loadIgnore(absDir, opts.Ignore)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	var files []string

	err = filepath.WalkDir(absDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == absDir {
			return nil
		}
		rel, err := filepath.Rel(absDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if isDefaultIgnored(d.Name()) || matcher.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || rel == IgnoreFile || matcher.MatchesPath(rel) {
			return nil
		}
		if err := addFile(zw, path, rel); err != nil {
			return fmt.Errorf("add %s: %w", rel, err)
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bundle workflow: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finish zip: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("bundle workflow: no files under %s", dir)
	}

	return &Result{
		Zip:   buf.Bytes(),
		Files: files,
		Name:  nameFromPath(absDir),
	}, nil
}

func loadIgnore(dir string, extra []string) (*ignore.GitIgnore, error) {
	lines := append([]string(nil), extra...)
	data, err := os.ReadFile(filepath.Join(dir, IgnoreFile))
	switch {
	case err == nil:
		lines = append(lines, strings.Split(string(data), "\n")...)
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read %s: %w", IgnoreFile, err)
	}
	return ignore.CompileIgnoreLines(lines...), nil
}

func isDefaultIgnored(name string) bool {
	for _, d := range defaultIgnoreDirs {
		if name == d {
			return true
		}
	}
	return false
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}

// nameFromPath derives a workflow name from its directory.
func nameFromPath(path string) string {
	return filepath.Base(filepath.Clean(path))
}
