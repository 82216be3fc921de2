package phone

import "testing"

func TestNormalizeDashedTenDigitVariants(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"(317) 555-1234", "317-555-1234"},
		{"+13175551234", "317-555-1234"},
		{"317 555 1234", "317-555-1234"},
		{"317.555.1234", "317-555-1234"},
		{"13175551234", "317-555-1234"},
		{"317-555-1234", "317-555-1234"},
	}

	for _, tc := range cases {
		if got := NormalizeDashed(tc.input); got != tc.want {
			t.Fatalf("NormalizeDashed(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestNormalizeDashedNonTenDigitPassthrough(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"12345", "12345"},
		{"+44 20 7946 0958", "442079460958"},
		{"", ""},
		{"  ", ""},
	}

	for _, tc := range cases {
		if got := NormalizeDashed(tc.input); got != tc.want {
			t.Fatalf("NormalizeDashed(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}
