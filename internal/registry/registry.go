// Package registry keeps the configured model descriptors in memory.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/guilhermeleaosoares/llm-council/internal/models"
)

// ErrModelNotFound is returned when an id names no configured model.
var ErrModelNotFound = errors.New("model not found")

// Registry provides thread-safe access to model descriptors.
// Readers always receive copies so callers can never mutate stored entries.
type Registry struct {
	mu     sync.RWMutex
	models []models.ModelDescriptor
	king   string
}

// New creates a registry seeded with the given descriptors.
func New(seed []models.ModelDescriptor, kingModelID string) *Registry {
	r := &Registry{king: kingModelID}
	r.models = make([]models.ModelDescriptor, len(seed))
	copy(r.models, seed)
	return r
}

// List returns every descriptor in configuration order.
func (r *Registry) List() []models.ModelDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.ModelDescriptor, len(r.models))
	copy(out, r.models)
	return out
}

// Get returns the descriptor with the given id.
func (r *Registry) Get(id string) (models.ModelDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.models {
		if m.ID == id {
			return m, nil
		}
	}
	return models.ModelDescriptor{}, fmt.Errorf("%w: %s", ErrModelNotFound, id)
}

// Enabled returns the enabled descriptors of one modality in configuration order.
func (r *Registry) Enabled(modality models.Modality) []models.ModelDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.ModelDescriptor
	for _, m := range r.models {
		if m.Enabled && m.Modality == modality {
			out = append(out, m)
		}
	}
	return out
}

// Add appends a descriptor. Ids must be unique.
func (r *Registry) Add(m models.ModelDescriptor) error {
	if m.ID == "" {
		return errors.New("model id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.models {
		if existing.ID == m.ID {
			return fmt.Errorf("model %q already exists", m.ID)
		}
	}
	r.models = append(r.models, m)
	return nil
}

// Update replaces the descriptor with the same id. An empty APIKey keeps the
// stored key so redacted round-trips from the API do not wipe credentials.
func (r *Registry) Update(m models.ModelDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.models {
		if existing.ID != m.ID {
			continue
		}
		if m.APIKey == "" {
			m.APIKey = existing.APIKey
		}
		r.models[i] = m
		return nil
	}
	return fmt.Errorf("%w: %s", ErrModelNotFound, m.ID)
}

// Remove deletes the descriptor with the given id.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, m := range r.models {
		if m.ID == id {
			r.models = append(r.models[:i], r.models[i+1:]...)
			if r.king == id {
				r.king = ""
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrModelNotFound, id)
}

// KingModelID returns the pinned King, if any.
func (r *Registry) KingModelID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.king
}

// SetKingModelID pins a King. An empty id clears the pin.
func (r *Registry) SetKingModelID(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id != "" {
		found := false
		for _, m := range r.models {
			if m.ID == id {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrModelNotFound, id)
		}
	}
	r.king = id
	return nil
}

// Wipe drops every descriptor and the King pin. Used when the upstream
// credential holder restarts.
func (r *Registry) Wipe() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.models = nil
	r.king = ""
}

// Size returns the number of configured descriptors.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.models)
}
