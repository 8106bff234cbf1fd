//go:build !windows

package window

import "testing"

func TestParseWMClass(t *testing.T) {
	tests := []struct {
		raw, want string
	}{
		{"gnome-terminal-server\x00Gnome-terminal\x00", "Gnome-terminal"},
		{"xterm\x00\x00", "xterm"},
		{"firefox", "firefox"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := parseWMClass(tt.raw); got != tt.want {
			t.Errorf("parseWMClass(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestCardinals(t *testing.T) {
	raw := []byte{0x01, 0x00, 0x00, 0x00, 0x78, 0x56, 0x34, 0x12, 0xff}
	got := cardinals(raw)
	if len(got) != 2 {
		t.Fatalf("cardinals returned %d values, want 2 (trailing partial word dropped)", len(got))
	}
	if got[0] != 1 || got[1] != 0x12345678 {
		t.Fatalf("cardinals = %#x", got)
	}
}
