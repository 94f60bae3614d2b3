// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dm

import (
	"strings"
	"testing"

	"github.com/bureau-foundation/bureau-dm/messaging"
)

func TestMessageContent(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		wantFormatted string // substring; empty means plain
	}{
		{"plain", "hello there", ""},
		{"plain with punctuation", "it's 5 o'clock & \"fine\"", ""},
		{"multi-line prose", "first line\nsecond line", ""},
		{"paragraphs", "one\n\ntwo", ""},
		{"bold", "this is **bold**", "<strong>bold</strong>"},
		{"inline code", "run `make test`", "<code>make test</code>"},
		{"fenced code", "```go\nfmt.Println()\n```", "<pre><code class=\"language-go\">"},
		{"list", "- one\n- two", "<li>one</li>"},
		{"link", "see [docs](https://example.org)", "<a href=\"https://example.org\">docs</a>"},
		{"strikethrough", "~~gone~~", "<del>gone</del>"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			content := MessageContent(test.body)
			if content.MsgType != messaging.MsgTypeText {
				t.Errorf("MsgType = %q", content.MsgType)
			}
			if content.Body != test.body {
				t.Errorf("Body = %q, want the input unchanged", content.Body)
			}
			if test.wantFormatted == "" {
				if content.Format != "" || content.FormattedBody != "" {
					t.Errorf("plain text got formatted_body %q", content.FormattedBody)
				}
				return
			}
			if content.Format != messaging.FormatHTML {
				t.Errorf("Format = %q, want %q", content.Format, messaging.FormatHTML)
			}
			if !strings.Contains(content.FormattedBody, test.wantFormatted) {
				t.Errorf("FormattedBody = %q, want it to contain %q", content.FormattedBody, test.wantFormatted)
			}
		})
	}
}
