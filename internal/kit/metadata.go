// Package kit loads and validates the Kit Metadata tree a kit supplies:
// certificate and credential specifications grouped by feature, plus
// hook script paths and required-config declarations. The core treats
// the tree as mostly opaque, interpreting only its certificates.<feature>
// and credentials.<feature> subtrees; everything else passes through
// untouched to callers such as the Environment Composer.
package kit

import (
	"fmt"

	genesiserrors "github.com/genesis-deploy/genesis/internal/errors"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// Metadata is a loaded, schema-validated kit metadata tree.
type Metadata struct {
	Name            string                 `yaml:"name"`
	Version         string                 `yaml:"version"`
	Certifications  map[string]interface{} `yaml:"certifications,omitempty"`
	Certificates    map[string]interface{} `yaml:"certificates"`
	Credentials     map[string]interface{} `yaml:"credentials"`
	RequiredConfigs []ConfigRequirement    `yaml:"required_configs,omitempty"`
	Hooks           map[string]string      `yaml:"hooks,omitempty"`
	Compatibility   []string               `yaml:"feature_compatibility,omitempty"`
}

// ConfigRequirement names a BOSH-director config the kit expects to
// exist before deploy, consumed by the Config Fetcher.
type ConfigRequirement struct {
	Type string `yaml:"type"`
	Name string `yaml:"name"`
}

// metadataSchema is the JSON Schema a kit's certificates.yaml /
// credentials.yaml tree must satisfy before the Secret Plan Parser ever
// sees it. Kept intentionally permissive on the certificates/credentials
// subtrees themselves (the parser does the detailed per-field
// validation); this schema only enforces the top-level shape.
const metadataSchema = `{
  "type": "object",
  "required": ["name", "version"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "version": {"type": "string", "minLength": 1},
    "certificates": {"type": "object"},
    "credentials": {"type": "object"},
    "required_configs": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type", "name"],
        "properties": {
          "type": {"type": "string"},
          "name": {"type": "string"}
        }
      }
    },
    "hooks": {"type": "object"},
    "feature_compatibility": {
      "type": "array",
      "items": {"type": "string"}
    }
  }
}`

// Load parses raw YAML kit metadata and validates it against the
// embedded schema before returning a typed Metadata.
func Load(raw []byte) (*Metadata, error) {
	var generic interface{}
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, genesiserrors.ConfigError{Message: "invalid kit metadata YAML: " + err.Error()}
	}
	generic = normalizeForJSON(generic)

	schemaLoader := gojsonschema.NewStringLoader(metadataSchema)
	docLoader := gojsonschema.NewGoLoader(generic)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return nil, genesiserrors.ConfigError{Message: "schema validation failed: " + err.Error()}
	}
	if !result.Valid() {
		msg := "kit metadata does not match required shape:"
		for _, e := range result.Errors() {
			msg += "\n  - " + e.String()
		}
		return nil, genesiserrors.ConfigError{Message: msg}
	}

	var meta Metadata
	if err := yaml.Unmarshal(raw, &meta); err != nil {
		return nil, genesiserrors.ConfigError{Message: "failed to decode kit metadata: " + err.Error()}
	}
	return &meta, nil
}

// IsFeatureCompatible reports whether engineVersion is listed as
// compatible. Per the spec's Open Question resolution, absent
// compatibility metadata is treated as incompatible (fail closed)
// rather than the source's permissive default.
func (m *Metadata) IsFeatureCompatible(engineVersion string) bool {
	if len(m.Compatibility) == 0 {
		return false
	}
	for _, v := range m.Compatibility {
		if v == engineVersion {
			return true
		}
	}
	return false
}

// FeatureTree returns the certificates/credentials subtree for feature,
// or nil if the kit declares nothing for it.
func (m *Metadata) FeatureTree(kind, feature string) (map[string]interface{}, bool) {
	var root map[string]interface{}
	switch kind {
	case "certificates":
		root = m.Certificates
	case "credentials":
		root = m.Credentials
	default:
		return nil, false
	}
	sub, ok := root[feature]
	if !ok {
		return nil, false
	}
	tree, ok := sub.(map[string]interface{})
	return tree, ok
}

// normalizeForJSON converts map[interface{}]interface{} nodes produced by
// yaml.v3's generic decode into map[string]interface{}, which
// gojsonschema's GoLoader requires.
func normalizeForJSON(in interface{}) interface{} {
	switch v := in.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[k] = normalizeForJSON(val)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[fmt.Sprintf("%v", k)] = normalizeForJSON(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = normalizeForJSON(val)
		}
		return out
	default:
		return v
	}
}
