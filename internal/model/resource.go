package model

import (
	"fmt"
	"time"
)

// ResourceKind is the kind of a provisionable resource.
type ResourceKind string

const (
	ResourceKindOrganization        ResourceKind = "organization"
	ResourceKindSpace               ResourceKind = "space"
	ResourceKindRoute               ResourceKind = "route"
	ResourceKindApp                 ResourceKind = "app"
	ResourceKindManagedService      ResourceKind = "managed-service"
	ResourceKindUserProvidedService ResourceKind = "user-provided-service"
	ResourceKindDatabase            ResourceKind = "database"
)

// ResourceKinds returns all the known resource kinds in activation order.
func ResourceKinds() []ResourceKind {
	return []ResourceKind{
		ResourceKindOrganization,
		ResourceKindSpace,
		ResourceKindRoute,
		ResourceKindDatabase,
		ResourceKindManagedService,
		ResourceKindUserProvidedService,
		ResourceKindApp,
	}
}

// Validate checks the kind is a known one.
func (k ResourceKind) Validate() error {
	for _, known := range ResourceKinds() {
		if k == known {
			return nil
		}
	}
	return fmt.Errorf("unknown resource kind %q: %w", k, ErrNotValid)
}

// LifecycleState is the coarse state of a resource on its provider.
type LifecycleState string

const (
	LifecycleStateUnprovisioned LifecycleState = "UNPROVISIONED"
	LifecycleStateCreated       LifecycleState = "CREATED"
	LifecycleStateStarted       LifecycleState = "STARTED"
	LifecycleStateStopped       LifecycleState = "STOPPED"
	LifecycleStateRemoved       LifecycleState = "REMOVED"
	LifecycleStateUnknown       LifecycleState = "UNKNOWN"
)

// Validate checks the state is a known one.
func (s LifecycleState) Validate() error {
	switch s {
	case LifecycleStateUnprovisioned, LifecycleStateCreated, LifecycleStateStarted,
		LifecycleStateStopped, LifecycleStateRemoved, LifecycleStateUnknown:
		return nil
	}
	return fmt.Errorf("unknown lifecycle state %q: %w", s, ErrNotValid)
}

// Resource is a provisionable entity on an external provider.
type Resource struct {
	ID         string
	Kind       ResourceKind
	Name       string
	State      LifecycleState
	ExternalID string
	Attributes map[string]string
	DependsOn  []string
	// Version is the optimistic locking counter, stores reject updates with a stale version.
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActivated returns true when the resource exists on its provider.
func (r Resource) IsActivated() bool {
	switch r.State {
	case LifecycleStateCreated, LifecycleStateStarted, LifecycleStateStopped:
		return true
	}
	return false
}

// IsUnknown returns true when the provider state of the resource is not known.
func (r Resource) IsUnknown() bool { return r.State == LifecycleStateUnknown }

// Attribute returns a resource attribute or the default value if missing.
func (r Resource) Attribute(key, def string) string {
	if v, ok := r.Attributes[key]; ok && v != "" {
		return v
	}
	return def
}

// Copy returns a deep copy of the resource.
func (r Resource) Copy() Resource {
	c := r
	if r.Attributes != nil {
		c.Attributes = make(map[string]string, len(r.Attributes))
		for k, v := range r.Attributes {
			c.Attributes[k] = v
		}
	}
	if r.DependsOn != nil {
		c.DependsOn = append([]string{}, r.DependsOn...)
	}
	return c
}

// Validate validates the resource.
func (r Resource) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required: %w", ErrNotValid)
	}
	if r.Name == "" {
		return fmt.Errorf("name is required: %w", ErrNotValid)
	}
	if err := r.Kind.Validate(); err != nil {
		return err
	}
	if err := r.State.Validate(); err != nil {
		return err
	}
	for _, dep := range r.DependsOn {
		if dep == r.ID {
			return fmt.Errorf("resource %s can't depend on itself: %w", r.ID, ErrNotValid)
		}
	}
	return nil
}

// ResourceDefinition is the user provided description of a resource to register.
type ResourceDefinition struct {
	Name       string
	Kind       ResourceKind
	Attributes map[string]string
	// DependsOn are resource names.
	DependsOn []string
}

// Validate validates the definition.
func (d ResourceDefinition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("name is required: %w", ErrNotValid)
	}
	if err := d.Kind.Validate(); err != nil {
		return err
	}
	for _, dep := range d.DependsOn {
		if dep == d.Name {
			return fmt.Errorf("resource %s can't depend on itself: %w", d.Name, ErrNotValid)
		}
	}
	return nil
}
