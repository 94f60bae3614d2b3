// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dmui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/bureau-dm/lib/tui"
)

func strippedBody(input string, width int) string {
	return ansi.Strip(renderMessageBody(input, tui.DefaultTheme, width))
}

func TestRenderMessageBodyPlain(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"whitespace", "  \n ", ""},
		{"single line", "hello", "hello"},
		{"line breaks kept", "first line\nsecond line", "first line\nsecond line"},
		{"paragraphs", "one\n\ntwo", "one\n\ntwo"},
		{"punctuation", "it's 5 o'clock, right?", "it's 5 o'clock, right?"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := strippedBody(test.input, 80); got != test.want {
				t.Errorf("renderMessageBody(%q) = %q, want %q", test.input, got, test.want)
			}
		})
	}
}

func TestRenderMessageBodyWraps(t *testing.T) {
	input := strings.Repeat("word ", 20)
	for _, line := range strings.Split(strippedBody(input, 30), "\n") {
		if width := ansi.StringWidth(line); width > 30 {
			t.Errorf("line %q is %d columns wide, want at most 30", line, width)
		}
	}
}

func TestRenderMessageBodyEmphasis(t *testing.T) {
	input := "this is **important** and ~~wrong~~"
	if got := strippedBody(input, 80); got != "this is important and wrong" {
		t.Errorf("stripped = %q", got)
	}
	if raw := renderMessageBody(input, tui.DefaultTheme, 80); raw == strippedBody(input, 80) {
		t.Error("expected ANSI styling for emphasis")
	}
}

func TestRenderMessageBodyCode(t *testing.T) {
	result := strippedBody("look:\n\n```go\nfunc main() {}\n```", 80)
	if !strings.Contains(result, "look:") || !strings.Contains(result, "func main() {}") {
		t.Errorf("code block content missing:\n%s", result)
	}

	raw := renderMessageBody("```go\npackage main\n```", tui.DefaultTheme, 80)
	if !strings.Contains(raw, "\x1b[") {
		t.Error("expected ANSI escapes from syntax highlighting")
	}

	if got := strippedBody("run `make test` first", 80); got != "run make test first" {
		t.Errorf("code span = %q", got)
	}
}

func TestRenderMessageBodyList(t *testing.T) {
	result := strippedBody("- apples\n- pears", 80)
	if result != "• apples\n• pears" {
		t.Errorf("list = %q", result)
	}
	ordered := strippedBody("1. first\n2. second", 80)
	if ordered != "1. first\n2. second" {
		t.Errorf("ordered list = %q", ordered)
	}
}

func TestRenderMessageBodyLinks(t *testing.T) {
	result := strippedBody("see [the docs](https://example.org/docs)", 80)
	if result != "see the docs (https://example.org/docs)" {
		t.Errorf("link = %q", result)
	}
	if got := strippedBody("https://example.org", 80); got != "https://example.org" {
		t.Errorf("autolink = %q", got)
	}
}

func TestRenderMessageBodyQuote(t *testing.T) {
	result := strippedBody("> quoted\n\nreply", 80)
	if !strings.HasPrefix(result, "│ quoted") {
		t.Errorf("quote = %q", result)
	}
	if !strings.HasSuffix(result, "reply") {
		t.Errorf("text after quote missing: %q", result)
	}
}
