package nextflow

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// OmicsInclude is appended to nextflow.config so the generated omics.config
// is picked up. Pass --omics=false to the workflow to disable it.
const OmicsInclude = `// Load omics.config
params.omics = true
if (params.omics) {
    process.debug          = true
    workflow.profile       = 'docker'
    conda.enabled          = false
    docker.enabled         = true
    singularity.enabled    = false
    includeConfig 'omics.config'
}
`

// OmicsConfig renders an omics.config that points every process at the
// private copy of its container image.
func (w *Workflow) OmicsConfig(account, region string, namespaces, substitutions map[string]string) (string, error) {
	var b strings.Builder
	b.WriteString("process {\n")
	seen := map[string]bool{}
	for _, p := range w.Processes {
		if seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		img, err := ParseImage(Substitute(p.Container, substitutions))
		if err != nil {
			return "", fmt.Errorf("process %s: %w", p.Name, err)
		}
		fmt.Fprintf(&b, "withName: '(.+:)?%s' { container = '%s' }\n",
			p.Name, PrivateImageURI(img, account, region, namespaces))
	}
	b.WriteString("}\n")
	return b.String(), nil
}

// AppendOmicsInclude adds the omics include block to dir/nextflow.config
// unless it is already present. It reports whether the file was changed.
func AppendOmicsInclude(dir string) (bool, error) {
	path := filepath.Join(dir, "nextflow.config")
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("read nextflow.config: %w", err)
	}
	if strings.Contains(string(data), OmicsInclude) {
		return false, nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return false, fmt.Errorf("open nextflow.config: %w", err)
	}
	defer f.Close()

	block := OmicsInclude
	if len(data) > 0 && !strings.HasSuffix(string(data), "\n") {
		block = "\n" + block
	}
	if _, err := f.WriteString(block); err != nil {
		return false, fmt.Errorf("append nextflow.config: %w", err)
	}
	return true, nil
}

// LoadSubstitutions reads an image substitution map (source URI to
// replacement URI). YAML and JSON are both accepted. An empty path yields an
// empty map.
func LoadSubstitutions(path string) (map[string]string, error) {
	subs := map[string]string{}
	if path == "" {
		return subs, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read substitutions: %w", err)
	}
	if err := yaml.Unmarshal(data, &subs); err != nil {
		return nil, fmt.Errorf("parse substitutions %s: %w", path, err)
	}
	return subs, nil
}
