// Package manifest loads service specs from YAML files.
//
// A file holds one spec, a list of specs under "services", or several YAML
// documents of either form.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/melih/lighthouse/internal/adapters/git"
	"github.com/melih/lighthouse/internal/core/domain"
)

type document struct {
	Services []*domain.ServiceSpec `yaml:"services"`
}

// Load reads, validates and returns the specs of path. Relative source paths
// are resolved against the manifest's directory, which is also the default
// source.
func Load(path string) ([]*domain.ServiceSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	specs, err := Parse(data, filepath.Dir(abs))
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return specs, nil
}

// Parse decodes every document of data. baseDir anchors relative paths.
func Parse(data []byte, baseDir string) ([]*domain.ServiceSpec, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))

	var specs []*domain.ServiceSpec
	for {
		var node yaml.Node
		if err := dec.Decode(&node); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%v: %w", err, domain.ErrInvalidSpec)
		}
		decoded, err := decodeNode(&node)
		if err != nil {
			return nil, err
		}
		specs = append(specs, decoded...)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("no services declared: %w", domain.ErrInvalidSpec)
	}

	seen := make(map[string]struct{}, len(specs))
	for _, s := range specs {
		if _, ok := seen[s.Name]; ok {
			return nil, fmt.Errorf("service %s declared twice: %w", s.Name, domain.ErrInvalidSpec)
		}
		seen[s.Name] = struct{}{}

		s.Path = resolvePath(s.Path, baseDir)
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	return specs, nil
}

func decodeNode(node *yaml.Node) ([]*domain.ServiceSpec, error) {
	if isList(node) {
		var doc document
		if err := strict(node, &doc); err != nil {
			return nil, err
		}
		return doc.Services, nil
	}
	spec := &domain.ServiceSpec{}
	if err := strict(node, spec); err != nil {
		return nil, err
	}
	return []*domain.ServiceSpec{spec}, nil
}

// strict decodes node into out, rejecting unknown fields. Node.Decode has no
// strict mode, so the node goes through an encoder first.
func strict(node *yaml.Node, out any) error {
	data, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrInvalidSpec)
	}
	return nil
}

// isList reports whether a document maps a top-level "services" key.
func isList(node *yaml.Node) bool {
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == "services" {
			return true
		}
	}
	return false
}

func resolvePath(path, baseDir string) string {
	switch {
	case path == "":
		return baseDir
	case git.IsURL(path), filepath.IsAbs(path):
		return path
	}
	return filepath.Join(baseDir, path)
}
