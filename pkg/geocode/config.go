package geocode

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Config holds the per-provider request shaping rules.
type Config map[string]ProviderConfig

// ProviderConfig describes which address fields a provider receives and how
// they map onto its API parameters.
type ProviderConfig struct {
	// Requested fields always enter the request when the task supplies them.
	Requested []string `yaml:"requested"`

	// Arbitrary fields are optional, ordered most to least important. They
	// are shed tailwise when the service returns nothing.
	Arbitrary []string `yaml:"arbitrary"`

	// Mapping renames task fields to API parameters. A multi-valued entry
	// joins the present fields with a space.
	Mapping map[string]FieldRef `yaml:"mapping"`
}

// FieldRef is one mapping target: a single field name or an ordered list.
type FieldRef []string

// UnmarshalYAML accepts both a scalar field name and a sequence.
func (f *FieldRef) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*f = FieldRef{s}
		return nil
	}
	var list []string
	if err := node.Decode(&list); err != nil {
		return err
	}
	*f = list
	return nil
}

// LoadConfig reads the provider configuration file.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "reading provider config %s", path)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, eris.Wrapf(err, "parsing provider config %s", path)
	}
	return cfg, nil
}

// mapFields applies the provider mapping to the projected address fields.
func (p ProviderConfig) mapFields(fields map[string]string) map[string]string {
	mapped := make(map[string]string, len(p.Mapping))
	for param, ref := range p.Mapping {
		var parts []string
		for _, field := range ref {
			if v, ok := fields[field]; ok {
				parts = append(parts, v)
			}
		}
		if len(parts) > 0 {
			mapped[param] = joinSpace(parts)
		}
	}
	return mapped
}

func joinSpace(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += " " + p
	}
	return out
}
