package util

import (
	"strings"
	"testing"
)

func TestNewIDPrefix(t *testing.T) {
	id := NewID("prop")
	if !strings.HasPrefix(id, "prop_") {
		t.Errorf("expected prop_ prefix, got %s", id)
	}
	if len(id) != len("prop_")+32 {
		t.Errorf("unexpected length %d", len(id))
	}

	bare := NewID("")
	if strings.Contains(bare, "_") {
		t.Errorf("bare id should have no separator, got %s", bare)
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := NewID("x")
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Palermo Soho", "palermo-soho"},
		{"  Villa Crespo  ", "villa-crespo"},
		{"Núñez", "n-ez"},
		{"Belgrano R / C", "belgrano-r-c"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
