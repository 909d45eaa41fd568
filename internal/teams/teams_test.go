package teams

import "testing"

func TestCanonical(t *testing.T) {
	r := New()

	tests := []struct {
		name     string
		input    string
		expected string
		resolved bool
	}{
		{"exact alias", "Ole Miss", "Mississippi", true},
		{"reference spelling maps to itself", "Pittsburgh", "Pittsburgh", true},
		{"diacritics folded", "San José State", "San Jose State", true},
		{"apostrophe variant", "Hawai'i", "Hawaii", true},
		{"hyphen variant", "Louisiana-Monroe", "UL Monroe", true},
		{"normalized case match", "ole miss", "Mississippi", true},
		{"prefix with mascot suffix", "Connecticut Huskies", "Connecticut", true},
		{"prefix excluded by State suffix", "North Carolina", "North Carolina", false},
		{"unknown team passes through", "Quantum Tech Institute", "Quantum Tech Institute", false},
		{"empty name passes through", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.Canonical(tt.input)
			if got != tt.expected || ok != tt.resolved {
				t.Errorf("Canonical(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.expected, tt.resolved)
			}
		})
	}
}

func TestPrefixNeverCrossesExcludedSuffix(t *testing.T) {
	r := NewWithAliases(map[string]string{
		"Ohio":       "Ohio",
		"Ohio State": "Ohio State",
		"Texas":      "Texas",
		"Texas A&M":  "Texas A&M",
	})

	// Exact entries resolve to themselves.
	for _, name := range []string{"Ohio", "Ohio State", "Texas", "Texas A&M"} {
		got, ok := r.Canonical(name)
		if !ok || got != name {
			t.Errorf("Canonical(%q) = (%q, %v), want identity", name, got, ok)
		}
	}

	// A mascot-suffixed spelling of the shorter program must not land on the
	// longer one.
	got, ok := r.Canonical("Ohio Bobcats")
	if !ok || got != "Ohio" {
		t.Errorf("Canonical(%q) = (%q, %v), want (Ohio, true)", "Ohio Bobcats", got, ok)
	}

	got, ok = r.Canonical("Texas Longhorns")
	if !ok || got != "Texas" {
		t.Errorf("Canonical(%q) = (%q, %v), want (Texas, true)", "Texas Longhorns", got, ok)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Texas A&M", "texas a m"},
		{"San José State", "san jose state"},
		{"Miami (OH)", "miami oh"},
		{"  Appalachian   State ", "appalachian state"},
		{"Hawai'i", "hawai i"},
	}

	for _, tt := range tests {
		if got := Normalize(tt.input); got != tt.expected {
			t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
