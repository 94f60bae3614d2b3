// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dmui

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/bureau-foundation/bureau-dm/lib/tui"
)

// Message bodies are chat-sized: tables and definition lists are left
// as literal text rather than laid out.
var (
	bodyParserInstance goldmark.Markdown
	bodyParserOnce     sync.Once
)

func getBodyParser() goldmark.Markdown {
	bodyParserOnce.Do(func() {
		bodyParserInstance = goldmark.New(
			goldmark.WithExtensions(
				extension.Strikethrough,
				extension.Linkify,
				extension.TaskList,
			),
		)
	})
	return bodyParserInstance
}

// renderMessageBody renders a message body as styled terminal text
// wrapped to width. Bodies are Markdown as typed by the sender; a body
// without Markdown renders as its own text. Single newlines are kept,
// since chat users press Enter meaning a line break.
func renderMessageBody(body string, theme tui.Theme, width int) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}
	source := []byte(body)
	document := getBodyParser().Parser().Parse(text.NewReader(source))

	// Force ANSI256: output is always for the TUI, and auto-detection
	// would strip colors when there is no TTY (tests, log capture).
	lipRenderer := lipgloss.NewRenderer(os.Stderr, termenv.WithProfile(termenv.ANSI256))
	lipRenderer.SetColorProfile(termenv.ANSI256)

	renderer := &bodyRenderer{
		source:      source,
		theme:       theme,
		width:       width,
		lipRenderer: lipRenderer,
	}
	ast.Walk(document, renderer.walk)
	return strings.TrimRight(renderer.output.String(), "\n")
}

// bodyRenderer walks a goldmark AST accumulating inline content per
// block and word-wrapping it when the block closes.
type bodyRenderer struct {
	source []byte
	theme  tui.Theme
	width  int

	output strings.Builder
	inline strings.Builder

	prefix      string // Blockquote and list continuation indent.
	prefixWidth int
	prefixes    []int // Widths pushed onto prefix, for popping.

	// pendingBullet replaces prefix for the next emitted line.
	pendingBullet string

	boldCount          int
	italicCount        int
	strikethroughCount int

	lists []listState

	lipRenderer *lipgloss.Renderer

	trailingNewlines int
}

type listState struct {
	ordered bool
	counter int
	tight   bool
}

func (renderer *bodyRenderer) newStyle() lipgloss.Style {
	return renderer.lipRenderer.NewStyle()
}

func (renderer *bodyRenderer) currentWidth() int {
	return max(renderer.width-renderer.prefixWidth, 10)
}

func (renderer *bodyRenderer) pushPrefix(prefixText string) {
	width := ansi.StringWidth(prefixText)
	renderer.prefix += prefixText
	renderer.prefixWidth += width
	renderer.prefixes = append(renderer.prefixes, len(prefixText))
}

func (renderer *bodyRenderer) popPrefix() {
	if len(renderer.prefixes) == 0 {
		return
	}
	size := renderer.prefixes[len(renderer.prefixes)-1]
	renderer.prefixes = renderer.prefixes[:len(renderer.prefixes)-1]
	removed := renderer.prefix[len(renderer.prefix)-size:]
	renderer.prefix = renderer.prefix[:len(renderer.prefix)-size]
	renderer.prefixWidth -= ansi.StringWidth(removed)
}

func (renderer *bodyRenderer) inTightList() bool {
	return len(renderer.lists) > 0 && renderer.lists[len(renderer.lists)-1].tight
}

func (renderer *bodyRenderer) write(s string) {
	if s == "" {
		return
	}
	renderer.output.WriteString(s)
	trimmed := strings.TrimRight(s, "\n")
	newlines := len(s) - len(trimmed)
	if trimmed == "" {
		renderer.trailingNewlines += newlines
	} else {
		renderer.trailingNewlines = newlines
	}
}

func (renderer *bodyRenderer) ensureNewline() {
	if renderer.output.Len() > 0 && renderer.trailingNewlines < 1 {
		renderer.write("\n")
	}
}

func (renderer *bodyRenderer) ensureBlankLine() {
	if renderer.output.Len() == 0 {
		return
	}
	for renderer.trailingNewlines < 2 {
		renderer.write("\n")
	}
}

func (renderer *bodyRenderer) linePrefix() string {
	if renderer.pendingBullet != "" {
		bullet := renderer.pendingBullet
		renderer.pendingBullet = ""
		return bullet
	}
	return renderer.prefix
}

func (renderer *bodyRenderer) applyPrefixes(content string) string {
	lines := strings.Split(content, "\n")
	for index, line := range lines {
		lines[index] = renderer.linePrefix() + line
	}
	return strings.Join(lines, "\n")
}

func (renderer *bodyRenderer) flushInline() {
	content := renderer.inline.String()
	renderer.inline.Reset()
	if content == "" {
		return
	}
	wrapped := ansi.Wrap(content, renderer.currentWidth(), " ,.;-+|")
	renderer.write(renderer.applyPrefixes(wrapped))
	renderer.ensureNewline()
}

func (renderer *bodyRenderer) styledText(content string) string {
	style := renderer.newStyle().Foreground(renderer.theme.NormalText)
	if renderer.boldCount > 0 {
		style = style.Bold(true)
	}
	if renderer.italicCount > 0 {
		style = style.Italic(true)
	}
	if renderer.strikethroughCount > 0 {
		style = style.Strikethrough(true)
	}
	return style.Render(content)
}

func (renderer *bodyRenderer) highlightCode(code, language string) string {
	faint := renderer.newStyle().Foreground(renderer.theme.FaintText)
	if language == "" {
		return faint.Render(code)
	}
	var buffer strings.Builder
	if err := quick.Highlight(&buffer, code, language, "terminal256", "monokai"); err != nil {
		return faint.Render(code)
	}
	return buffer.String()
}

func (renderer *bodyRenderer) walk(node ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node.Kind() {
	case ast.KindParagraph, ast.KindTextBlock:
		if entering {
			renderer.inline.Reset()
			return ast.WalkContinue, nil
		}
		renderer.flushInline()
		if !renderer.inTightList() {
			renderer.ensureBlankLine()
		}

	case ast.KindHeading:
		if entering {
			renderer.inline.Reset()
			return ast.WalkContinue, nil
		}
		content := ansi.Strip(renderer.inline.String())
		renderer.inline.Reset()
		heading := renderer.newStyle().Bold(true).Foreground(renderer.theme.HeaderForeground)
		renderer.inline.WriteString(heading.Render(content))
		renderer.flushInline()
		renderer.ensureBlankLine()

	case ast.KindFencedCodeBlock, ast.KindCodeBlock:
		if entering {
			renderer.renderCode(node)
			return ast.WalkSkipChildren, nil
		}

	case ast.KindBlockquote:
		if entering {
			renderer.pushPrefix(renderer.newStyle().Foreground(renderer.theme.BorderColor).Render("│") + " ")
		} else {
			renderer.popPrefix()
			renderer.ensureBlankLine()
		}

	case ast.KindList:
		list := node.(*ast.List)
		if entering {
			renderer.lists = append(renderer.lists, listState{
				ordered: list.IsOrdered(),
				counter: list.Start,
				tight:   list.IsTight,
			})
		} else {
			renderer.lists = renderer.lists[:len(renderer.lists)-1]
			if !renderer.inTightList() {
				renderer.ensureBlankLine()
			}
		}

	case ast.KindListItem:
		if entering {
			renderer.enterListItem()
		} else {
			renderer.popPrefix()
			renderer.ensureNewline()
		}

	case ast.KindThematicBreak:
		if entering {
			rule := renderer.newStyle().Foreground(renderer.theme.BorderColor).
				Render(strings.Repeat("─", min(renderer.currentWidth(), 20)))
			renderer.write(renderer.applyPrefixes(rule))
			renderer.ensureNewline()
		}

	case ast.KindHTMLBlock:
		if entering {
			var html strings.Builder
			lines := node.Lines()
			for index := 0; index < lines.Len(); index++ {
				segment := lines.At(index)
				html.Write(segment.Value(renderer.source))
			}
			renderer.inline.WriteString(renderer.styledText(strings.TrimSpace(html.String())))
			renderer.flushInline()
			return ast.WalkSkipChildren, nil
		}

	case ast.KindText:
		if entering {
			textNode := node.(*ast.Text)
			renderer.inline.WriteString(renderer.styledText(string(textNode.Segment.Value(renderer.source))))
			if textNode.SoftLineBreak() || textNode.HardLineBreak() {
				renderer.inline.WriteString("\n")
			}
		}

	case ast.KindString:
		if entering {
			renderer.inline.WriteString(renderer.styledText(string(node.(*ast.String).Value)))
		}

	case ast.KindEmphasis:
		emphasis := node.(*ast.Emphasis)
		counter := &renderer.italicCount
		if emphasis.Level >= 2 {
			counter = &renderer.boldCount
		}
		if entering {
			*counter++
		} else {
			*counter--
		}

	case ast.KindCodeSpan:
		if entering {
			var code strings.Builder
			for child := node.FirstChild(); child != nil; child = child.NextSibling() {
				if textNode, ok := child.(*ast.Text); ok {
					code.Write(textNode.Segment.Value(renderer.source))
				}
			}
			renderer.inline.WriteString(renderer.newStyle().Foreground(renderer.theme.FaintText).Render(code.String()))
			return ast.WalkSkipChildren, nil
		}

	case ast.KindLink:
		link := node.(*ast.Link)
		if !entering {
			destination := string(link.Destination)
			linkStyle := renderer.newStyle().Foreground(renderer.theme.LinkForeground)
			renderer.inline.WriteString(" " + linkStyle.Render("("+destination+")"))
		}

	case ast.KindAutoLink:
		if entering {
			url := string(node.(*ast.AutoLink).URL(renderer.source))
			renderer.inline.WriteString(renderer.newStyle().Foreground(renderer.theme.LinkForeground).Render(url))
			return ast.WalkSkipChildren, nil
		}

	case ast.KindImage:
		if entering {
			image := node.(*ast.Image)
			renderer.inline.WriteString(renderer.newStyle().Foreground(renderer.theme.FaintText).
				Render(fmt.Sprintf("[image: %s]", image.Destination)))
			return ast.WalkSkipChildren, nil
		}

	case ast.KindRawHTML:
		if entering {
			raw := node.(*ast.RawHTML)
			for index := 0; index < raw.Segments.Len(); index++ {
				segment := raw.Segments.At(index)
				renderer.inline.WriteString(renderer.styledText(string(segment.Value(renderer.source))))
			}
		}

	case extast.KindStrikethrough:
		if entering {
			renderer.strikethroughCount++
		} else {
			renderer.strikethroughCount--
		}

	case extast.KindTaskCheckBox:
		if entering {
			box := "[ ] "
			if node.(*extast.TaskCheckBox).IsChecked {
				box = "[x] "
			}
			renderer.inline.WriteString(renderer.styledText(box))
		}
	}
	return ast.WalkContinue, nil
}

func (renderer *bodyRenderer) renderCode(node ast.Node) {
	var code strings.Builder
	lines := node.Lines()
	for index := 0; index < lines.Len(); index++ {
		segment := lines.At(index)
		code.Write(segment.Value(renderer.source))
	}
	language := ""
	if fenced, ok := node.(*ast.FencedCodeBlock); ok {
		language = string(fenced.Language(renderer.source))
	}

	renderer.ensureBlankLine()
	highlighted := renderer.highlightCode(strings.TrimRight(code.String(), "\n"), language)
	for _, line := range strings.Split(highlighted, "\n") {
		renderer.write(renderer.linePrefix() + "  " + line)
		renderer.ensureNewline()
	}
	renderer.ensureBlankLine()
}

func (renderer *bodyRenderer) enterListItem() {
	if len(renderer.lists) == 0 {
		return
	}
	top := &renderer.lists[len(renderer.lists)-1]
	bullet := "• "
	if top.ordered {
		bullet = fmt.Sprintf("%d. ", top.counter)
		top.counter++
	}
	renderer.pendingBullet = renderer.prefix + bullet
	renderer.pushPrefix(strings.Repeat(" ", ansi.StringWidth(bullet)))
}
