package utils

import "testing"

func TestNormalizeUserAgent(t *testing.T) {
	firefox := "Mozilla/5.0 (X11; Linux x86_64; rv:133.0) Gecko/20100101 Firefox/133.0"
	cases := []struct {
		in   string
		want string
	}{
		{"", defaultUserAgent},
		{"   ", defaultUserAgent},
		{"curl/8.0", defaultUserAgent},
		{firefox, firefox},
	}
	for _, tc := range cases {
		if got := NormalizeUserAgent(tc.in); got != tc.want {
			t.Errorf("NormalizeUserAgent(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
