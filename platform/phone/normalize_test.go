package phone

import "testing"

func TestNormalizeE164(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"06 12 34 56 78", "+33612345678"},
		{"+33 1 23 45 67 89", "+33123456789"},
		{"  ", ""},
		{"not a number", "not a number"},
	}

	for _, tc := range tests {
		if got := NormalizeE164(tc.in); got != tc.want {
			t.Errorf("NormalizeE164(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsValid(t *testing.T) {
	if !IsValid("0612345678") {
		t.Error("expected French mobile number to be valid")
	}
	if IsValid("12") {
		t.Error("expected short number to be invalid")
	}
}
