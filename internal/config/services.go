package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServiceSpec declares one external name-lookup endpoint (from services.yaml).
//
// The endpoint is queried with GET {url}?{query_param}={token} and must answer
// with a JSON object; the display name and confidence are read from
// name_field and confidence_field. 404 or an empty name means no match.
type ServiceSpec struct {
	Name            string            `yaml:"name" json:"name"`
	URL             string            `yaml:"url" json:"url"`
	QueryParam      string            `yaml:"query_param,omitempty" json:"queryParam,omitempty"`
	NameField       string            `yaml:"name_field,omitempty" json:"nameField,omitempty"`
	ConfidenceField string            `yaml:"confidence_field,omitempty" json:"confidenceField,omitempty"`
	Headers         map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Enabled         *bool             `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// IsEnabled returns whether the service is enabled (default true).
func (s ServiceSpec) IsEnabled() bool {
	if s.Enabled == nil {
		return true
	}
	return *s.Enabled
}

// servicesFile is the top-level structure of services.yaml.
type servicesFile struct {
	Services []ServiceSpec `yaml:"services"`
}

// LoadServices reads and parses a services.yaml file. A missing file means
// no external services. Defaults are filled for optional fields and
// disabled services are dropped.
func LoadServices(path string) ([]ServiceSpec, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read services.yaml: %w", err)
	}

	var f servicesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse services.yaml: %w", err)
	}

	var specs []ServiceSpec
	for i, s := range f.Services {
		if !s.IsEnabled() {
			continue
		}
		if s.URL == "" {
			return nil, fmt.Errorf("services.yaml: service #%d (%q) has no url", i+1, s.Name)
		}
		if s.Name == "" {
			s.Name = s.URL
		}
		if s.QueryParam == "" {
			s.QueryParam = "q"
		}
		if s.NameField == "" {
			s.NameField = "name"
		}
		if s.ConfidenceField == "" {
			s.ConfidenceField = "confidence"
		}
		specs = append(specs, s)
	}
	return specs, nil
}

// ExampleServicesYAML is written by `charbot onboard`.
const ExampleServicesYAML = `# External character-name lookup services.
# Each service is queried with GET <url>?<query_param>=<token> and must return
# a JSON object holding the display name and a confidence in [0, 1].
services:
  - name: local-index
    url: http://127.0.0.1:8088/lookup
    query_param: q
    name_field: name
    confidence_field: confidence
    enabled: false
`
