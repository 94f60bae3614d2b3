// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"
)

func TestSpliceOverlay(t *testing.T) {
	view := "aaaaaaaa\nbbbbbbbb\ncccccccc"
	result := ansi.Strip(SpliceOverlay(view, []string{"XY", "ZW"}, 3, 1))
	want := "aaaaaaaa\nbbbXYbbb\ncccZWccc"
	if result != want {
		t.Errorf("SpliceOverlay =\n%s\nwant\n%s", result, want)
	}
}

func TestSpliceOverlayPadsShortLines(t *testing.T) {
	result := ansi.Strip(SpliceOverlay("ab\n", []string{"X"}, 4, 0))
	if first := strings.Split(result, "\n")[0]; first != "ab  X" {
		t.Errorf("first line = %q, want %q", first, "ab  X")
	}
}

func TestCenterOverlay(t *testing.T) {
	view := strings.Repeat(strings.Repeat(".", 10)+"\n", 4) + strings.Repeat(".", 10)
	result := strings.Split(ansi.Strip(CenterOverlay(view, "##\n##", 10, 5)), "\n")
	if result[1] != "....##...." || result[2] != "....##...." {
		t.Errorf("overlay not centered:\n%s", strings.Join(result, "\n"))
	}
	if result[0] != ".........." || result[3] != ".........." {
		t.Errorf("overlay leaked outside its box:\n%s", strings.Join(result, "\n"))
	}
}

func TestRenderScrollbar(t *testing.T) {
	if got := RenderScrollbar(DefaultTheme, 0, 10, 5, 0, false); got != "" {
		t.Errorf("zero height should render nothing, got %q", got)
	}

	fits := strings.Split(ansi.Strip(RenderScrollbar(DefaultTheme, 4, 3, 4, 0, true)), "\n")
	for index, line := range fits {
		if line != "┃" {
			t.Errorf("line %d = %q, want a full-height thumb", index, line)
		}
	}

	bottom := strings.Split(ansi.Strip(RenderScrollbar(DefaultTheme, 4, 20, 10, 10, false)), "\n")
	if bottom[0] != "│" || bottom[3] != "┃" {
		t.Errorf("scrolled to the end: %q, want the thumb at the bottom", bottom)
	}
}
