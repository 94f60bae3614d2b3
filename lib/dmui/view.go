// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dmui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"

	"github.com/bureau-foundation/bureau-dm/lib/dm"
	"github.com/bureau-foundation/bureau-dm/lib/tui"
	"github.com/bureau-foundation/bureau-dm/messaging"
)

// Chat screen chrome: one header line above the panes, a separator and
// the status/help line below them. Inside the timeline pane a title
// line sits above the messages and a rule plus the compose box below.
const (
	chromeLines         = 3
	timelineChromeLines = 3

	listWidthMin = 24
	listWidthMax = 40
)

func (model Model) contentHeight() int {
	return max(model.height-chromeLines, 1)
}

func (model Model) listWidth() int {
	width := min(max(model.width*3/10, listWidthMin), listWidthMax)
	return max(min(width, model.width-20), 1)
}

func (model Model) timelineWidth() int {
	return max(model.width-model.listWidth()-1, 1)
}

// filterVisible reports whether the filter input takes the first row
// of the list pane.
func (model Model) filterVisible() bool {
	return model.focus == FocusFilter || model.filter.Value() != ""
}

// listRows returns how many conversation rows fit in the list pane.
func (model Model) listRows() int {
	rows := model.contentHeight()
	if model.filterVisible() {
		rows--
	}
	if len(model.invites) > 0 {
		rows--
	}
	return max(rows, 0)
}

// updateLayout resizes the panes after a terminal resize or screen
// change.
func (model *Model) updateLayout() {
	if !model.ready {
		return
	}
	model.viewport.Width = max(model.timelineWidth()-2, 1)
	model.viewport.Height = max(model.contentHeight()-timelineChromeLines, 1)
	model.compose.Width = max(model.timelineWidth()-6, 1)
	model.filter.Width = max(model.listWidth()-4, 1)
	model.ensureCursorVisible()
	model.refreshTimeline(false)
}

// ensureCursorVisible adjusts scrollOffset so the cursor row is shown.
func (model *Model) ensureCursorVisible() {
	visible := model.listRows()
	if visible <= 0 {
		return
	}
	maxOffset := max(len(model.listed)-visible, 0)
	model.scrollOffset = min(model.scrollOffset, maxOffset)
	if model.cursor < model.scrollOffset {
		model.scrollOffset = model.cursor
	}
	if model.cursor >= model.scrollOffset+visible {
		model.scrollOffset = model.cursor - visible + 1
	}
}

// refreshTimeline re-renders the timeline into the viewport. The view
// follows new messages when it was already at the bottom.
func (model *Model) refreshTimeline(forceBottom bool) {
	atBottom := model.viewport.AtBottom()
	model.viewport.SetContent(model.renderTimeline())
	if forceBottom || atBottom {
		model.viewport.GotoBottom()
	}
}

func (model Model) renderChat() string {
	content := lipgloss.JoinHorizontal(lipgloss.Top,
		model.renderListPane(),
		model.renderDivider(),
		model.renderTimelinePane(),
	)
	separator := lipgloss.NewStyle().
		Foreground(model.theme.BorderColor).
		Render(strings.Repeat("─", model.width))

	footer := model.renderHelp()
	if model.status.text != "" {
		footer = model.renderStatus()
	}

	output := strings.Join([]string{model.renderHeader(), content, separator, footer}, "\n")
	if model.modal != nil {
		output = tui.CenterOverlay(output, model.modal.render(model), model.width, model.height)
	}
	return output
}

func (model Model) renderHeader() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(model.theme.HeaderForeground).Render(" bureau-dm ")
	identity := ""
	if model.session != nil {
		identity = lipgloss.NewStyle().Foreground(model.theme.FaintText).
			Render(" " + model.session.UserID().String() + " ")
	}
	line := title + identity
	fill := model.width - ansi.StringWidth(line)
	if fill > 0 {
		line += lipgloss.NewStyle().Foreground(model.theme.BorderColor).Render(strings.Repeat("─", fill))
	}
	return ansi.Truncate(line, model.width, "")
}

func (model Model) renderListPane() string {
	width := model.listWidth()
	rowWidth := max(width-1, 1)
	height := model.contentHeight()
	visible := model.listRows()

	var lines []string
	if model.filterVisible() {
		lines = append(lines, ansi.Truncate(model.filter.View(), rowWidth, "…"))
	}

	switch {
	case len(model.conversations) == 0:
		faint := lipgloss.NewStyle().Foreground(model.theme.FaintText)
		empty := faint.Render("No conversations yet") + "\n" +
			lipgloss.NewStyle().Foreground(model.theme.HelpText).Render("Press n to start one")
		lines = append(lines, lipgloss.Place(rowWidth, visible, lipgloss.Center, lipgloss.Center, empty))
	case len(model.listed) == 0:
		faint := lipgloss.NewStyle().Foreground(model.theme.FaintText)
		lines = append(lines, lipgloss.Place(rowWidth, visible, lipgloss.Center, lipgloss.Center, faint.Render("No matches")))
	default:
		for index := model.scrollOffset; index < model.scrollOffset+visible && index < len(model.listed); index++ {
			lines = append(lines, model.renderListRow(model.listed[index], rowWidth, index == model.cursor))
		}
	}

	if len(model.invites) > 0 {
		used := 0
		if len(lines) > 0 {
			used = lipgloss.Height(strings.Join(lines, "\n"))
		}
		lines = append(lines, model.renderInviteBanner(rowWidth, used))
	}

	scrollbar := tui.RenderScrollbar(model.theme, height,
		len(model.listed)+boolInt(model.filterVisible()), height, model.scrollOffset,
		model.focus == FocusList || model.focus == FocusFilter)

	contentStyle := lipgloss.NewStyle().Width(rowWidth).Height(height).MaxHeight(height)
	return lipgloss.JoinHorizontal(lipgloss.Top,
		contentStyle.Render(strings.Join(lines, "\n")),
		scrollbar,
	)
}

// renderInviteBanner pins the first pending invitation to the bottom of
// the list pane. used is the number of lines already rendered above it.
func (model Model) renderInviteBanner(width, used int) string {
	text := "✉ " + model.invites[0].Label()
	if more := len(model.invites) - 1; more > 0 {
		text += fmt.Sprintf(" (+%d)", more)
	}
	if model.accepting {
		text += "  joining…"
	} else {
		text += "  a accept"
	}
	padding := strings.Repeat("\n", max(model.contentHeight()-used-1, 0))
	banner := lipgloss.NewStyle().Foreground(model.theme.FocusAccent).Bold(true).
		Width(width).MaxWidth(width).Render(ansi.Truncate(text, width, "…"))
	return padding + banner
}

// renderListRow renders one conversation: a selection marker, the label
// with filter matches highlighted, and the relative time of the last
// activity right-aligned.
func (model Model) renderListRow(listed listedConversation, width int, cursor bool) string {
	activity := ""
	if !listed.conversation.LastActivity.IsZero() {
		activity = humanize.RelTime(listed.conversation.LastActivity, model.clock.Now(), "ago", "from now")
	}

	marker := "  "
	if listed.conversation.ID == model.selected {
		marker = lipgloss.NewStyle().Foreground(model.theme.FocusAccent).Render("▌ ")
	}

	labelWidth := width - 2
	if activity != "" {
		labelWidth -= ansi.StringWidth(activity) + 1
	}
	label := ansi.Truncate(model.highlightLabel(listed), max(labelWidth, 1), "…")

	gap := max(width-2-ansi.StringWidth(label)-ansi.StringWidth(activity), 1)
	row := marker + label + strings.Repeat(" ", gap) +
		lipgloss.NewStyle().Foreground(model.theme.FaintText).Render(activity)

	style := lipgloss.NewStyle().Width(width).MaxWidth(width)
	if cursor {
		style = style.Background(model.theme.SelectedBackground).Foreground(model.theme.SelectedForeground)
	}
	return style.Render(ansi.Truncate(row, width, ""))
}

func (model Model) highlightLabel(listed listedConversation) string {
	normal := lipgloss.NewStyle().Foreground(model.theme.NormalText)
	if len(listed.positions) == 0 {
		return normal.Render(listed.label)
	}
	highlight := normal.Background(model.theme.SearchHighlightBackground)
	matched := make(map[int]bool, len(listed.positions))
	for _, position := range listed.positions {
		matched[position] = true
	}
	var builder strings.Builder
	for index, character := range []rune(listed.label) {
		if matched[index] {
			builder.WriteString(highlight.Render(string(character)))
		} else {
			builder.WriteString(normal.Render(string(character)))
		}
	}
	return builder.String()
}

func (model Model) renderDivider() string {
	height := model.contentHeight()
	lines := make([]string, height)
	for index := range lines {
		lines[index] = "│"
	}
	return lipgloss.NewStyle().Foreground(model.theme.BorderColor).
		Width(1).Height(height).Render(strings.Join(lines, "\n"))
}

func (model Model) renderTimelinePane() string {
	width := model.timelineWidth()
	height := model.contentHeight()
	faint := lipgloss.NewStyle().Foreground(model.theme.FaintText)

	if model.selected.IsZero() {
		return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, faint.Render("Select a conversation"))
	}

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(model.theme.HeaderForeground)
	title := titleStyle.Render(model.selected.String()) + faint.Render("  waiting for the other person to join")
	if conversation, ok := model.services.Directory.Conversation(model.session, model.selected); ok {
		title = titleStyle.Render(conversationLabel(conversation))
		if conversation.Name != "" && !conversation.Counterpart.IsZero() {
			title += faint.Render("  " + conversation.Counterpart.String())
		}
	}
	titleLine := ansi.Truncate(" "+title, width, "…")

	scrollbar := tui.RenderScrollbar(model.theme, model.viewport.Height,
		model.viewport.TotalLineCount(), model.viewport.Height, model.viewport.YOffset,
		model.focus == FocusCompose)
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().PaddingLeft(1).Width(width-1).Render(model.viewport.View()),
		scrollbar,
	)

	ruleColor := model.theme.BorderColor
	if model.focus == FocusCompose {
		ruleColor = model.theme.FocusAccent
	}
	rule := lipgloss.NewStyle().Foreground(ruleColor).Render(strings.Repeat("─", width))

	composeLine := " " + model.compose.View()
	if model.sending {
		composeLine += faint.Render("  sending…")
	}
	composeLine = ansi.Truncate(composeLine, width, "")

	return lipgloss.NewStyle().Width(width).Height(height).MaxHeight(height).
		Render(strings.Join([]string{titleLine, body, rule, composeLine}, "\n"))
}

// renderTimeline renders the open conversation's messages for the
// viewport, oldest first.
func (model Model) renderTimeline() string {
	if model.selected.IsZero() {
		return ""
	}
	width := max(model.viewport.Width, 1)
	if len(model.timeline) == 0 {
		faint := lipgloss.NewStyle().Foreground(model.theme.FaintText)
		return lipgloss.Place(width, max(model.viewport.Height, 1), lipgloss.Center, lipgloss.Center,
			faint.Render("No messages yet. Start the conversation!"))
	}

	faint := lipgloss.NewStyle().Foreground(model.theme.FaintText)
	var blocks []string
	for _, event := range model.timeline {
		sender := lipgloss.NewStyle().Bold(true).Foreground(model.theme.SenderColor(event.Own)).
			Render(senderName(event))
		header := sender
		if !event.Timestamp.IsZero() {
			header += "  " + faint.Render(event.Timestamp.Local().Format("15:04"))
		}

		theme := model.theme
		if event.Confirmation == dm.Pending {
			header += "  " + lipgloss.NewStyle().Foreground(model.theme.PendingText).Render("sending…")
			theme.NormalText = theme.PendingText
		}

		rendered := renderMessageBody(event.Body, theme, max(width-2, 10))
		if event.MsgType == messaging.MsgTypeEmote {
			rendered = "* " + senderName(event) + " " + rendered
		}
		indented := "  " + strings.ReplaceAll(rendered, "\n", "\n  ")
		blocks = append(blocks, header+"\n"+indented)
	}
	return strings.Join(blocks, "\n")
}

func senderName(event dm.MessageEvent) string {
	if event.Sender.IsZero() {
		return "unknown"
	}
	if localpart := event.Sender.Localpart(); localpart != "" {
		return localpart
	}
	return event.Sender.String()
}

func (model Model) renderHelp() string {
	var help string
	switch model.focus {
	case FocusCompose:
		help = " Enter send  Tab/Esc list  C-u/C-d scroll  C-l log out  C-c quit"
	case FocusFilter:
		help = " type to filter  Enter done  Esc clear"
	case FocusNewConversation:
		help = " Enter start  Esc cancel"
	default:
		help = " q quit  ↑↓ select  Tab compose  / filter  n new  C-u/C-d scroll  C-l log out"
		if len(model.invites) > 0 {
			help = " a accept invitation " + help
		}
	}
	return lipgloss.NewStyle().Foreground(model.theme.HelpText).Render(ansi.Truncate(help, model.width, "…"))
}

func boolInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
