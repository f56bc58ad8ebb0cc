package slug

import (
	"regexp"
	"testing"
)

func TestMake(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Acme Corp", "acme-corp"},
		{"  Test   Corp!  ", "test-corp"},
		{"Ops/SRE Team", "ops-sre-team"},
		{"--already--slugged--", "already-slugged"},
		{"42 Widgets", "42-widgets"},
		{"???", "org"},
		{"", "org"},
	}
	for _, tc := range cases {
		if got := Make(tc.in); got != tc.want {
			t.Fatalf("Make(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAllocateFirstFree(t *testing.T) {
	got, err := Allocate("Test Corp", func(string) (bool, error) { return false, nil })
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if got != "test-corp" {
		t.Fatalf("slug = %q, want test-corp", got)
	}
}

func TestAllocateProbesNumericSuffixes(t *testing.T) {
	used := map[string]bool{"test-corp": true, "test-corp-1": true}
	got, err := Allocate("Test Corp", func(s string) (bool, error) { return used[s], nil })
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if got != "test-corp-2" {
		t.Fatalf("slug = %q, want test-corp-2", got)
	}
	if !regexp.MustCompile(`^test-corp-\d+$`).MatchString(got) {
		t.Fatalf("slug %q does not match collision pattern", got)
	}
}

func TestAllocateRequiresProbe(t *testing.T) {
	if _, err := Allocate("x", nil); err == nil {
		t.Fatal("expected error for nil probe")
	}
}
