package engine

import "testing"

func TestEmailAllowed(t *testing.T) {
	domains := []string{"ehu.lt", "student.ehu.lt"}

	tests := []struct {
		email string
		want  bool
	}{
		{"user@ehu.lt", true},
		{"first.last@student.ehu.lt", true},
		{"user@notehu.lt", false},
		{"user@ehu.lt.evil.com", false},
		{"@ehu.lt", false},
		{"ehu.lt", false},
		{"user@EHU.LT", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := EmailAllowed(tt.email, domains); got != tt.want {
			t.Errorf("EmailAllowed(%q) = %v, want %v", tt.email, got, tt.want)
		}
	}
}

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(6)
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	if len(code) != 6 {
		t.Errorf("len = %d, want 6", len(code))
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			t.Errorf("non-digit character %q in code %q", c, code)
		}
	}
}

func TestGenerateCodeVaries(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		code, err := GenerateCode(8)
		if err != nil {
			t.Fatalf("GenerateCode: %v", err)
		}
		seen[code] = true
	}
	if len(seen) < 2 {
		t.Error("20 generated codes were all identical")
	}
}
