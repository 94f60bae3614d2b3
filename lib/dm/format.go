// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dm

import (
	"bytes"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"

	"github.com/bureau-foundation/bureau-dm/messaging"
)

// The goldmark instance is immutable after construction and safe to
// share; parsing allocates per-call state.
var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

func getMarkdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		)
	})
	return markdownInstance
}

// MessageContent returns the m.room.message content for body. A body
// that is plain prose is sent as a bare m.text; one that uses Markdown
// also carries an org.matrix.custom.html rendering in formatted_body.
// The plain body is always the text the user typed.
func MessageContent(body string) messaging.MessageContent {
	source := []byte(body)
	markdown := getMarkdown()
	document := markdown.Parser().Parse(text.NewReader(source))
	if isPlainText(document) {
		return messaging.NewTextMessage(body)
	}

	var rendered bytes.Buffer
	if err := markdown.Renderer().Render(&rendered, source, document); err != nil {
		return messaging.NewTextMessage(body)
	}
	return messaging.NewFormattedTextMessage(body, strings.TrimSpace(rendered.String()))
}

// isPlainText reports whether document consists only of paragraphs of
// unadorned text, which renders identically with or without HTML.
func isPlainText(document ast.Node) bool {
	for block := document.FirstChild(); block != nil; block = block.NextSibling() {
		if block.Kind() != ast.KindParagraph {
			return false
		}
		for inline := block.FirstChild(); inline != nil; inline = inline.NextSibling() {
			textNode, ok := inline.(*ast.Text)
			if !ok || textNode.HardLineBreak() {
				return false
			}
		}
	}
	return true
}
