package common

import "testing"

func TestHasAnyFold(t *testing.T) {
	cases := []struct {
		s    string
		subs []string
		want bool
	}{
		{"Very Unhealthy", []string{"very", "unhealthy"}, true},
		{"Good air quality", []string{"GOOD"}, true},
		{"Moderate", []string{"poor"}, false},
		{"", []string{"good"}, false},
		{"anything", nil, false},
	}
	for _, tc := range cases {
		if got := HasAnyFold(tc.s, tc.subs...); got != tc.want {
			t.Errorf("HasAnyFold(%q, %v) = %v, want %v", tc.s, tc.subs, got, tc.want)
		}
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := FirstNonEmpty("", "  ", "Rohini", "x"); got != "Rohini" {
		t.Fatalf("expected Rohini, got %q", got)
	}
	if got := FirstNonEmpty(); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
