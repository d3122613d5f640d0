package io

import (
	"context"
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v3"

	"github.com/slok/activator/internal/model"
)

// ResourcesYAMLRepository loads resource definitions from YAML files.
type ResourcesYAMLRepository struct {
	fs fs.FS
}

// NewResourcesYAMLRepository creates a new YAML resource definitions repository.
func NewResourcesYAMLRepository(filesystem fs.FS) *ResourcesYAMLRepository {
	return &ResourcesYAMLRepository{fs: filesystem}
}

// GetDefinitions loads the resource definitions from a YAML file and returns validated domain models.
func (r *ResourcesYAMLRepository) GetDefinitions(ctx context.Context, path string) ([]model.ResourceDefinition, error) {
	data, err := fs.ReadFile(r.fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading resources file: %w", err)
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var file ResourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	if err := file.validate(); err != nil {
		return nil, fmt.Errorf("invalid resources: %w", err)
	}

	return file.toModel(), nil
}

// ResourcesFile represents the YAML structure of a resource definitions file.
type ResourcesFile struct {
	Resources []ResourceConfig `yaml:"resources"`
}

// ResourceConfig represents the YAML structure of a single resource.
type ResourceConfig struct {
	Name       string            `yaml:"name"`
	Kind       string            `yaml:"kind"`
	Attributes map[string]string `yaml:"attributes"`
	DependsOn  []string          `yaml:"depends_on"`
}

func (f ResourcesFile) validate() error {
	if len(f.Resources) == 0 {
		return fmt.Errorf("at least one resource is required")
	}

	names := map[string]bool{}
	for i, rc := range f.Resources {
		if err := rc.toModel().Validate(); err != nil {
			return fmt.Errorf("resource %d (%s): %w", i, rc.Name, err)
		}
		if names[rc.Name] {
			return fmt.Errorf("resource %q is defined more than once", rc.Name)
		}
		names[rc.Name] = true
	}

	return nil
}

func (f ResourcesFile) toModel() []model.ResourceDefinition {
	defs := make([]model.ResourceDefinition, 0, len(f.Resources))
	for _, rc := range f.Resources {
		defs = append(defs, rc.toModel())
	}
	return defs
}

func (c ResourceConfig) toModel() model.ResourceDefinition {
	return model.ResourceDefinition{
		Name:       c.Name,
		Kind:       model.ResourceKind(c.Kind),
		Attributes: c.Attributes,
		DependsOn:  c.DependsOn,
	}
}
