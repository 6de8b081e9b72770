package descriptor

import (
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/core-tools/hsu-procset/pkg/errors"
)

// Set is the ordered, write-once collection of process specs. The zero value
// is an empty set. A *Set is safe for concurrent readers.
type Set struct {
	specs []ProcessSpec
	index map[string]int
}

func newSet(specs []ProcessSpec) *Set {
	set := &Set{
		specs: specs,
		index: make(map[string]int, len(specs)),
	}
	for i, spec := range specs {
		set.index[spec.Name] = i
	}
	return set
}

// Specs returns the specs in source order. The result is a deep copy.
func (s *Set) Specs() []ProcessSpec {
	if s == nil {
		return nil
	}
	specs := make([]ProcessSpec, len(s.specs))
	for i, spec := range s.specs {
		specs[i] = spec.clone()
	}
	return specs
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.specs)
}

// Names returns process names in source order
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.specs))
	for i, spec := range s.specs {
		names[i] = spec.Name
	}
	return names
}

func (s *Set) Lookup(name string) (ProcessSpec, bool) {
	if s == nil {
		return ProcessSpec{}, false
	}
	i, ok := s.index[name]
	if !ok {
		return ProcessSpec{}, false
	}
	return s.specs[i].clone(), true
}

// Select returns a new set holding only the named specs, in source order
func (s *Set) Select(names ...string) (*Set, error) {
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := s.Lookup(name); !ok {
			return nil, errors.NewNotFoundError("process not found: "+name, nil).WithContext("name", name)
		}
		wanted[name] = true
	}

	specs := make([]ProcessSpec, 0, len(wanted))
	for _, spec := range s.Specs() {
		if wanted[spec.Name] {
			specs = append(specs, spec)
		}
	}
	return newSet(specs), nil
}

var specComparer = cmpopts.EquateEmpty()

// Equivalent reports whether both sets hold the same specs, ignoring order
func (s *Set) Equivalent(other *Set) bool {
	if s.Len() != other.Len() {
		return false
	}
	for _, spec := range s.Specs() {
		theirs, ok := other.Lookup(spec.Name)
		if !ok || !cmp.Equal(spec, theirs, specComparer) {
			return false
		}
	}
	return true
}
