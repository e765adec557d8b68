package expert

import (
	"context"
	"fmt"
	"strings"
)

// Task names the operation an expert is asked to perform. The set is
// open: backends decide which tasks they support.
type Task string

const (
	TaskProcess Task = "process"
	TaskEmbed   Task = "embed"
	TaskAnalyze Task = "analyze"
)

// Expert is an opaque backend capability. Invoke receives the canonical
// text form of the request payload and must honor ctx cancellation for
// anything long-running.
type Expert interface {
	Invoke(ctx context.Context, text string, task Task) (string, error)
}

// Descriptor binds a registered expert to its stable registry index.
// The index is the gate's output dimension for this expert.
type Descriptor struct {
	Name   string
	Index  int
	Expert Expert
}

// Registry is the ordered, immutable set of experts built once at
// startup and read concurrently by all in-flight requests.
type Registry struct {
	descriptors []Descriptor
	byName      map[string]*Descriptor
}

// NewRegistry builds a registry from an ordered list of named experts.
// Registration order defines indices; names must be unique.
func NewRegistry(names []string, experts []Expert) (*Registry, error) {
	if len(names) != len(experts) {
		return nil, fmt.Errorf("expert: %d names for %d experts", len(names), len(experts))
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("expert: registry needs at least one expert")
	}

	r := &Registry{
		descriptors: make([]Descriptor, 0, len(names)),
		byName:      make(map[string]*Descriptor, len(names)),
	}
	for i, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("expert: empty name at index %d", i)
		}
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("expert: duplicate name %q", name)
		}
		if experts[i] == nil {
			return nil, fmt.Errorf("expert: nil capability for %q", name)
		}
		r.descriptors = append(r.descriptors, Descriptor{
			Name:   name,
			Index:  i,
			Expert: experts[i],
		})
	}
	for i := range r.descriptors {
		d := &r.descriptors[i]
		r.byName[d.Name] = d
	}
	return r, nil
}

// Len reports the number of registered experts.
func (r *Registry) Len() int {
	return len(r.descriptors)
}

// Names returns expert names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.descriptors))
	for i, d := range r.descriptors {
		out[i] = d.Name
	}
	return out
}

// ByIndex returns the descriptor at a registry index.
func (r *Registry) ByIndex(i int) (Descriptor, bool) {
	if i < 0 || i >= len(r.descriptors) {
		return Descriptor{}, false
	}
	return r.descriptors[i], true
}

// ByName resolves an expert by name.
func (r *Registry) ByName(name string) (Descriptor, bool) {
	d, ok := r.byName[name]
	if !ok {
		return Descriptor{}, false
	}
	return *d, true
}
