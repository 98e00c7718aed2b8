// Package nextflow inspects Nextflow workflow sources: it finds the container
// images each process uses and renders the files needed to run the workflow
// against private registry copies of those images.
package nextflow

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Process is one process definition and the container it runs in.
type Process struct {
	Name      string `json:"name"`
	Container string `json:"container"`
	File      string `json:"file"`
}

// Workflow is the result of scanning a workflow directory.
type Workflow struct {
	Dir       string    `json:"dir"`
	Processes []Process `json:"processes"`
}

var (
	processRe   = regexp.MustCompile(`^\s*process\s+([A-Za-z_][A-Za-z0-9_]*)\s*\{`)
	containerRe = regexp.MustCompile(`^\s*container\s+(.+?)\s*$`)
	singleRe    = regexp.MustCompile(`'([^']*)'`)
)

// skipDirs are never descended into while scanning.
var skipDirs = map[string]bool{".git": true, "work": true, ".nextflow": true}

// Scan walks dir for *.nf files and collects every process that declares a
// container. Processes are sorted by name.
func Scan(dir string) (*Workflow, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("scan workflow: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan workflow: %s is not a directory", dir)
	}

	wf := &Workflow{Dir: dir}
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".nf" {
			return nil
		}
		procs, err := scanFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, path)
		for i := range procs {
			procs[i].File = filepath.ToSlash(rel)
		}
		wf.Processes = append(wf.Processes, procs...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan workflow: %w", err)
	}

	sort.SliceStable(wf.Processes, func(i, j int) bool {
		return wf.Processes[i].Name < wf.Processes[j].Name
	})
	return wf, nil
}

func scanFile(path string) ([]Process, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var (
		procs   []Process
		current string
		pending strings.Builder // continuation of a multi-line container expression
	)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()

		if pending.Len() > 0 {
			pending.WriteString(" ")
			pending.WriteString(strings.TrimSpace(line))
			if strings.Contains(line, "}") {
				procs = appendContainer(procs, current, pending.String())
				pending.Reset()
			}
			continue
		}

		if m := processRe.FindStringSubmatch(line); m != nil {
			current = m[1]
			continue
		}
		if current == "" {
			continue
		}
		m := containerRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		expr := m[1]
		if strings.HasPrefix(expr, `"${`) && !strings.Contains(expr, "}") {
			pending.WriteString(expr)
			continue
		}
		procs = appendContainer(procs, current, expr)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return procs, nil
}

func appendContainer(procs []Process, name, expr string) []Process {
	uri := containerURI(expr)
	if uri == "" {
		return procs
	}
	return append(procs, Process{Name: name, Container: uri})
}

// containerURI extracts the docker image from a container directive. For the
// conditional form `"${ cond ? 'singularity-uri' : 'docker-uri' }"` the last
// quoted alternative is the docker image.
func containerURI(expr string) string {
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(expr, `"${`) || strings.Contains(expr, "?") {
		quoted := singleRe.FindAllStringSubmatch(expr, -1)
		if len(quoted) == 0 {
			return ""
		}
		return strings.TrimSpace(quoted[len(quoted)-1][1])
	}
	// unquoted values are variable references, not images
	if len(expr) < 2 {
		return ""
	}
	first, last := expr[0], expr[len(expr)-1]
	if (first != '\'' && first != '"') || first != last {
		return ""
	}
	expr = expr[1 : len(expr)-1]
	if strings.ContainsAny(expr, "'\"$ ") {
		return ""
	}
	return expr
}

// Manifest returns the sorted distinct images used by the workflow after
// substitutions are applied.
func (w *Workflow) Manifest(substitutions map[string]string) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range w.Processes {
		uri := Substitute(p.Container, substitutions)
		if uri == "" || seen[uri] {
			continue
		}
		seen[uri] = true
		out = append(out, uri)
	}
	sort.Strings(out)
	return out
}

// Substitute returns the replacement for uri, or uri itself.
func Substitute(uri string, substitutions map[string]string) string {
	if s, ok := substitutions[uri]; ok && s != "" {
		return s
	}
	return uri
}
