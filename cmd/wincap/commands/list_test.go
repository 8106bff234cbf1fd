package commands

import (
	"bytes"
	"strings"
	"testing"

	"github.com/bryanchriswhite/wincap/internal/window"
)

func TestFilterWindows(t *testing.T) {
	windows := []window.Descriptor{
		{Title: "Mozilla Firefox", Class: "firefox"},
		{Title: "Untitled - Notepad", Class: "Notepad"},
		{Title: "~/src", Class: "kitty"},
	}

	tests := []struct {
		pattern string
		want    int
		wantErr bool
	}{
		{pattern: "", want: 3},
		{pattern: "(?i)firefox", want: 1},
		{pattern: "^kitty$", want: 1},
		{pattern: "Note", want: 1},
		{pattern: "nomatch", want: 0},
		{pattern: "(", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			got, err := filterWindows(windows, tt.pattern)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Fatalf("got %d windows, want %d", len(got), tt.want)
			}
		})
	}
}

func TestPrintWindowsTable(t *testing.T) {
	var buf bytes.Buffer
	err := printWindowsTable(&buf, []window.Descriptor{{
		Title:    "Terminal",
		Class:    "xterm",
		PID:      42,
		Handle:   0x1a00003,
		Geometry: window.Geometry{X: 10, Y: 20, Width: 800, Height: 600},
	}})
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"TITLE", "Terminal", "xterm", "42", "0x1a00003", "800x600+10+20"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
}
