package policy

import "testing"

func TestMatchToolPath(t *testing.T) {
	cases := []struct {
		pattern, path string
		want          bool
	}{
		{"github.issues.close", "github.issues.close", true},
		{"github.issues.close", "github.issues.open", false},
		{"github.*.close", "github.issues.close", true},
		{"github.*.close", "github.issues.pulls.close", false},
		{"github.**", "github.issues.pulls.close", true},
		{"github.**", "github", true},
		{"calendar.*", "calendar.list", true},
	}
	for _, c := range cases {
		if got := matchToolPath(c.pattern, c.path); got != c.want {
			t.Errorf("matchToolPath(%q, %q) = %v, want %v", c.pattern, c.path, got, c.want)
		}
	}
}
