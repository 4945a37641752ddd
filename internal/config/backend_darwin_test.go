//go:build darwin

package config

import "testing"

func TestParsePlistArray(t *testing.T) {
	out := "(\n    \"/opt/homebrew/bin\",\n    \"~/.local/bin\",\n    plain\n)"
	got := parsePlistArray(out)
	want := []string{"/opt/homebrew/bin", "~/.local/bin", "plain"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if got := parsePlistArray("(\n)"); len(got) != 0 {
		t.Errorf("empty array = %v", got)
	}
}
