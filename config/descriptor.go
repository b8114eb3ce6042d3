package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// NodeDescriptor is one node entry in the dataflow YAML.
type NodeDescriptor struct {
	ID      string   `yaml:"id"`
	Path    string   `yaml:"path"`
	Inputs  []string `yaml:"inputs"`
	Outputs []string `yaml:"outputs"`
}

// Descriptor is the parsed form of the dataflow YAML the daemon embeds in
// NodeConfig.DataflowDescriptorRaw (spec.md §3). Only the shape this node
// runtime needs to reason about is modeled; the full dataflow-descriptor
// schema is an external collaborator (spec.md §1).
type Descriptor struct {
	Nodes []NodeDescriptor `yaml:"nodes"`
}

// ParseDescriptor re-serializes the raw map the daemon embedded in
// NodeConfig back to YAML and decodes it into a Descriptor. Doing it via a
// round trip (rather than threading a second parse path through the
// NodeConfig decode) keeps this function as the single place a malformed
// descriptor can fail, matching spec.md §3's "may be absent/invalid".
func ParseDescriptor(raw map[string]any) (Descriptor, error) {
	if raw == nil {
		return Descriptor{}, fmt.Errorf("config: dataflow descriptor is absent")
	}
	bytes, err := yaml.Marshal(raw)
	if err != nil {
		return Descriptor{}, fmt.Errorf("config: could not re-encode dataflow descriptor: %w", err)
	}
	var d Descriptor
	if err := yaml.Unmarshal(bytes, &d); err != nil {
		return Descriptor{}, fmt.Errorf("config: failed to parse dataflow descriptor: %w", err)
	}
	return d, nil
}
