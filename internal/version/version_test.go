package version

import "testing"

func TestStringIncludesAllFields(t *testing.T) {
	defer func(v, c, d string) { Version, Commit, BuildDate = v, c, d }(Version, Commit, BuildDate)

	Version, Commit, BuildDate = "1.2.3", "abcdef", "2026-07-31"
	got := String()
	want := "1.2.3 (abcdef, 2026-07-31)"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
