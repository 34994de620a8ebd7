package export

import (
	"strings"
	"testing"
)

func TestRenderFlyerHTML(t *testing.T) {
	data := FlyerData{
		AgencyName:   "Casavia Realty",
		Title:        "Palermo Loft",
		Code:         "CAS-0042",
		Description:  "Bright loft with terrace",
		Type:         "sale",
		Price:        "USD 250000.00",
		Bedrooms:     2,
		Bathrooms:    1,
		AreaM2:       85,
		Address:      "Gorriti 4800",
		City:         "Buenos Aires",
		Neighborhood: "Palermo",
		Features:     []string{"terrace", "parking"},
		ImageURLs:    []string{"https://media.test/a_card.jpg"},
		ContactEmail: "hello@casavia.test",
	}

	html, err := RenderFlyerHTML(data)
	if err != nil {
		t.Fatalf("RenderFlyerHTML: %v", err)
	}

	for _, want := range []string{
		"Palermo Loft",
		"CAS-0042",
		"USD 250000.00",
		"Gorriti 4800",
		"terrace",
		"https://media.test/a_card.jpg",
		"hello@casavia.test",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("flyer missing %q", want)
		}
	}
}

func TestRenderFlyerRentSuffix(t *testing.T) {
	html, err := RenderFlyerHTML(FlyerData{Title: "Studio", Type: "rent", Price: "USD 1200.00"})
	if err != nil {
		t.Fatalf("RenderFlyerHTML: %v", err)
	}
	if !strings.Contains(html, "/ month") {
		t.Error("rent flyer should show monthly price suffix")
	}
}

func TestRenderFlyerEscapesHTML(t *testing.T) {
	html, err := RenderFlyerHTML(FlyerData{Title: "<script>alert(1)</script>"})
	if err != nil {
		t.Fatalf("RenderFlyerHTML: %v", err)
	}
	if strings.Contains(html, "<script>alert(1)</script>") {
		t.Error("template must escape markup in property fields")
	}
}

func TestFormatPrice(t *testing.T) {
	if got := FormatPrice(25000000, "USD"); got != "USD 250000.00" {
		t.Errorf("FormatPrice = %q", got)
	}
	if got := FormatPrice(99, ""); got != "USD 0.99" {
		t.Errorf("FormatPrice = %q", got)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"CAS-0042 Palermo Loft", "CAS-0042-Palermo-Loft"},
		{"déptó / palermo!", "dpt-palermo"},
		{"", "property"},
		{strings.Repeat("a", 80), strings.Repeat("a", 50)},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	got := percentEncodeForDataURL("a b+c")
	if got != "a%20b%2Bc" {
		t.Errorf("percentEncodeForDataURL = %q", got)
	}
}
