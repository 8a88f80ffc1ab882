package propset

import (
	"strings"
	"time"
)

// Property is a single named value attached to an entity.
type Property struct {
	Name   string
	Value  string
	SetAt  int64 // unix seconds
	Setter string
}

// Set is an insertion-ordered collection of properties with unique names.
// The zero value is an empty set ready for use.
type Set struct {
	props []*Property
}

// Find returns the property with exactly the given name, or nil.
func (s *Set) Find(name string) *Property {
	for _, p := range s.props {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Add stores value under name, replacing any previous entry. The new entry
// is appended at the end and stamped with the current time.
func (s *Set) Add(name, value, setter string) *Property {
	s.Delete(name)

	p := &Property{
		Name:   name,
		Value:  value,
		SetAt:  time.Now().Unix(),
		Setter: setter,
	}
	s.props = append(s.props, p)
	return p
}

// Delete removes the named property. Unknown names are ignored.
func (s *Set) Delete(name string) {
	for i, p := range s.props {
		if p.Name == name {
			s.props = append(s.props[:i], s.props[i+1:]...)
			return
		}
	}
}

// Clear empties the set.
func (s *Set) Clear() {
	s.props = nil
}

// Len returns the number of stored properties.
func (s *Set) Len() int {
	return len(s.props)
}

// All returns the properties in insertion order.
func (s *Set) All() []*Property {
	out := make([]*Property, len(s.props))
	copy(out, s.props)
	return out
}

// Match returns the properties whose name appears, ignoring case, inside
// filter. A filter such as "topic,url" therefore selects both keys.
func (s *Set) Match(filter string) []*Property {
	lower := strings.ToLower(filter)
	var out []*Property
	for _, p := range s.props {
		if strings.Contains(lower, strings.ToLower(p.Name)) {
			out = append(out, p)
		}
	}
	return out
}
