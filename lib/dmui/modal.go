// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dmui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const modalWidth = 48

// newConversationModal prompts for the user ID of the person to message.
type newConversationModal struct {
	input   textinput.Model
	err     string
	pending bool
}

func newNewConversationModal() *newConversationModal {
	input := textinput.New()
	input.Prompt = ""
	input.Placeholder = "@name:server"
	input.Width = modalWidth - 6
	input.CharLimit = 255
	return &newConversationModal{input: input}
}

func (model Model) handleModalKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	modal := model.modal
	switch {
	case key.Matches(message, model.keys.Cancel):
		model.modal = nil
		model.focus = FocusList
		return model, nil

	case key.Matches(message, model.keys.Submit):
		if modal.pending {
			return model, nil
		}
		modal.err = ""
		modal.pending = true
		return model, startConversation(
			model.services.Directory,
			model.session,
			modal.input.Value(),
			model.requestTimeout,
		)
	}

	var command tea.Cmd
	modal.input, command = modal.input.Update(message)
	return model, command
}

func (modal *newConversationModal) render(model Model) string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(model.theme.HeaderForeground)
	helpStyle := lipgloss.NewStyle().Foreground(model.theme.HelpText)

	lines := []string{
		titleStyle.Render("New conversation"),
		"",
		modal.input.View(),
		"",
	}
	switch {
	case modal.pending:
		lines = append(lines, lipgloss.NewStyle().Foreground(model.theme.WarnText).Render("Creating room..."))
	case modal.err != "":
		lines = append(lines, lipgloss.NewStyle().Foreground(model.theme.ErrorText).Width(modalWidth-6).Render(modal.err))
	default:
		lines = append(lines, helpStyle.Render("Enter start  Esc cancel"))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(model.theme.FocusAccent).
		Foreground(model.theme.ModalForeground).
		Background(model.theme.ModalBackground).
		Padding(1, 2).
		Width(modalWidth).
		Render(strings.Join(lines, "\n"))
}
