package persona

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Registry is an immutable set of personas with a designated default.
// It is built once at startup and shared by all requests without locking.
type Registry struct {
	personas  map[string]Persona
	defaultID string
}

// NewRegistry validates the personas and returns a registry that falls back
// to defaultID for unknown ids.
func NewRegistry(defaultID string, personas ...Persona) (*Registry, error) {
	if len(personas) == 0 {
		return nil, errors.New("at least one persona is required")
	}
	m := make(map[string]Persona, len(personas))
	for _, p := range personas {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return nil, errors.New("persona with empty id")
		}
		if strings.TrimSpace(p.SystemInstructions) == "" {
			return nil, fmt.Errorf("persona %q has empty instructions", id)
		}
		if _, exists := m[id]; exists {
			return nil, fmt.Errorf("persona %q defined more than once", id)
		}
		p.ID = id
		m[id] = p
	}
	defaultID = strings.TrimSpace(defaultID)
	if _, ok := m[defaultID]; !ok {
		return nil, fmt.Errorf("default persona %q is not defined", defaultID)
	}
	return &Registry{personas: m, defaultID: defaultID}, nil
}

// Resolve returns the persona for id. Empty or unknown ids silently resolve
// to the default persona.
func (r *Registry) Resolve(id string) Persona {
	if p, ok := r.personas[strings.TrimSpace(id)]; ok {
		return p
	}
	return r.personas[r.defaultID]
}

// Lookup returns the persona for id without falling back.
func (r *Registry) Lookup(id string) (Persona, bool) {
	p, ok := r.personas[strings.TrimSpace(id)]
	return p, ok
}

// DefaultID returns the id used for unknown personas.
func (r *Registry) DefaultID() string {
	return r.defaultID
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.personas))
	for id := range r.personas {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type fileFormat struct {
	Default  string        `yaml:"default"`
	Personas []filePersona `yaml:"personas"`
}

type filePersona struct {
	ID           string `yaml:"id"`
	Instructions string `yaml:"instructions"`
	MinimumPlan  string `yaml:"minimum_plan"`
}

// Load reads a persona file. defaultOverride, when non-empty, replaces the
// file's default id.
func Load(path, defaultOverride string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse persona file: %w", err)
	}

	personas := make([]Persona, 0, len(f.Personas))
	for _, fp := range f.Personas {
		plan := PlanNone
		if s := strings.TrimSpace(fp.MinimumPlan); s != "" && !strings.EqualFold(s, "none") {
			plan = ParsePlan(s)
			if plan == PlanNone {
				return nil, fmt.Errorf("persona %q has unknown minimum_plan %q", fp.ID, fp.MinimumPlan)
			}
		}
		personas = append(personas, Persona{
			ID:                 fp.ID,
			SystemInstructions: fp.Instructions,
			MinimumPlan:        plan,
		})
	}

	def := f.Default
	if strings.TrimSpace(defaultOverride) != "" {
		def = defaultOverride
	}
	return NewRegistry(def, personas...)
}
