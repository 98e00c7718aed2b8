package nextflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Parameter is one entry of a workflow parameter template.
type Parameter struct {
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
}

// ignoredSchemaGroups are schema groups never exposed as run parameters.
var ignoredSchemaGroups = map[string]bool{"institutional_config_options": true}

type schemaDocument struct {
	Definitions map[string]schemaGroup `json:"definitions"`
	Defs        map[string]schemaGroup `json:"$defs"`
}

type schemaGroup struct {
	Properties map[string]struct {
		Description *string `json:"description"`
	} `json:"properties"`
}

// ParameterTemplate builds the parameter template from dir/nextflow_schema.json.
// Every parameter is optional, and an "omics" parameter is always present.
func ParameterTemplate(dir string) (map[string]Parameter, error) {
	data, err := os.ReadFile(filepath.Join(dir, "nextflow_schema.json"))
	if err != nil {
		return nil, fmt.Errorf("read nextflow_schema.json: %w", err)
	}
	var doc schemaDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse nextflow_schema.json: %w", err)
	}

	params := map[string]Parameter{
		"omics": {Description: "Include omics config.", Optional: true},
	}
	for _, groups := range []map[string]schemaGroup{doc.Definitions, doc.Defs} {
		for key, group := range groups {
			if ignoredSchemaGroups[key] {
				continue
			}
			for name, prop := range group.Properties {
				if name == "" {
					continue
				}
				desc := ""
				if prop.Description != nil {
					desc = sanitizeDescription(*prop.Description)
				}
				if desc == "" {
					desc = name
				}
				params[name] = Parameter{Description: desc, Optional: true}
			}
		}
	}
	return params, nil
}

var descriptionReplacer = strings.NewReplacer("(", " ", ")", " ", "\n", " ")

func sanitizeDescription(s string) string {
	return descriptionReplacer.Replace(s)
}
