// Package model holds the plain value types shared by the service package's
// Collection and Item objects. There is no store or repository type here
// deliberately: each live object owns its data and its own lock directly,
// so a separate data-access layer would just be a second index duplicating
// the object server's path → object mapping.
package model

import "time"

// Attributes is a free-form string→string attribute map attached to an item.
type Attributes map[string]string

// Clone returns a shallow copy of the attribute map.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Equal reports whether a and b contain exactly the same (key, value) pairs.
// Matching is exact set-equality, not subset: used by Collection.SearchItems
// and by CreateItem's duplicate-detection when replace=true.
func (a Attributes) Equal(b Attributes) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

// ItemData holds one item's mutable state: its secret and metadata. The
// owning service.Item wraps this in a mutex and the D-Bus path bookkeeping;
// ItemData itself has no behavior beyond copying.
type ItemData struct {
	Label      string
	Attributes Attributes
	Secret     []byte
	Created    time.Time
	Modified   time.Time
	Locked     bool
}

// CollectionData holds one collection's mutable state, excluding its child
// items (which the owning service.Collection tracks in its own maps).
type CollectionData struct {
	Label    string
	Alias    string
	Locked   bool
	Created  time.Time
	Modified time.Time
}
