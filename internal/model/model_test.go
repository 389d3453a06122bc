package model

import "testing"

func TestAttributesEqual(t *testing.T) {
	tests := []struct {
		name string
		a    Attributes
		b    Attributes
		want bool
	}{
		{"both empty", Attributes{}, Attributes{}, true},
		{"nil vs empty", nil, Attributes{}, true},
		{"identical", Attributes{"k": "v"}, Attributes{"k": "v"}, true},
		{"different value", Attributes{"k": "v"}, Attributes{"k": "w"}, false},
		{"superset not equal", Attributes{"a": "1", "b": "2"}, Attributes{"a": "1"}, false},
		{"subset not equal", Attributes{"a": "1"}, Attributes{"a": "1", "b": "2"}, false},
		{"disjoint keys same size", Attributes{"a": "1"}, Attributes{"b": "1"}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.Equal(tc.b); got != tc.want {
				t.Errorf("Equal(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
			if got := tc.b.Equal(tc.a); got != tc.want {
				t.Errorf("Equal(%v, %v) (reversed) = %v, want %v", tc.b, tc.a, got, tc.want)
			}
		})
	}
}

func TestAttributesClone(t *testing.T) {
	original := Attributes{"k": "v"}
	clone := original.Clone()

	clone["k"] = "changed"
	if original["k"] != "v" {
		t.Errorf("Clone mutation leaked into original: got %v", original["k"])
	}
}
