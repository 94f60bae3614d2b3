// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dmui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/bureau-dm/lib/dm"
)

// Sign-in form field indices. The confirmation field only exists in
// registration mode.
const (
	fieldUsername = iota
	fieldPassword
	fieldConfirm
)

const signInFieldWidth = 32

// signInForm is the login/registration form state.
type signInForm struct {
	mode    dm.Mode
	fields  [3]textinput.Model
	focused int

	// err is the inline error from the last submission.
	err string

	// pending is true while a submission is in flight. Input is
	// ignored until it resolves.
	pending bool

	// attempt numbers submissions so a result can be matched to the
	// submission that caused it.
	attempt int
}

func newSignInForm() signInForm {
	var form signInForm
	placeholders := [3]string{"username", "password", "repeat password"}
	for index := range form.fields {
		field := textinput.New()
		field.Placeholder = placeholders[index]
		field.Prompt = ""
		field.Width = signInFieldWidth
		field.CharLimit = 255
		if index != fieldUsername {
			field.EchoMode = textinput.EchoPassword
			field.EchoCharacter = '•'
		}
		form.fields[index] = field
	}
	form.fields[fieldUsername].Focus()
	return form
}

func (form *signInForm) fieldCount() int {
	if form.mode == dm.ModeRegister {
		return 3
	}
	return 2
}

func (form *signInForm) focusField(index int) tea.Cmd {
	form.fields[form.focused].Blur()
	form.focused = index
	return form.fields[index].Focus()
}

func (form *signInForm) toggleMode() tea.Cmd {
	if form.mode == dm.ModeLogin {
		form.mode = dm.ModeRegister
	} else {
		form.mode = dm.ModeLogin
		form.fields[fieldConfirm].Reset()
	}
	form.err = ""
	if form.focused >= form.fieldCount() {
		return form.focusField(fieldUsername)
	}
	return nil
}

func (form *signInForm) credentials() dm.Credentials {
	credentials := dm.Credentials{
		Mode:     form.mode,
		Username: form.fields[fieldUsername].Value(),
		Password: form.fields[fieldPassword].Value(),
	}
	if form.mode == dm.ModeRegister {
		credentials.Confirm = form.fields[fieldConfirm].Value()
	}
	return credentials
}

// clearSecrets empties the password fields after a successful sign-in.
func (form *signInForm) clearSecrets() {
	form.fields[fieldPassword].Reset()
	form.fields[fieldConfirm].Reset()
}

// handleSignInKeys routes keystrokes on the sign-in screen. Only
// ctrl+c quits here; q is an ordinary character in a username.
func (model Model) handleSignInKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	form := &model.form
	if message.Type == tea.KeyCtrlC {
		return model, tea.Quit
	}
	if form.pending {
		return model, nil
	}

	switch {
	case key.Matches(message, model.keys.ToggleMode):
		return model, form.toggleMode()

	case key.Matches(message, model.keys.NextField):
		return model, form.focusField((form.focused + 1) % form.fieldCount())

	case key.Matches(message, model.keys.PreviousField):
		count := form.fieldCount()
		return model, form.focusField((form.focused + count - 1) % count)

	case key.Matches(message, model.keys.Submit):
		return model.submitSignIn()
	}

	var command tea.Cmd
	form.fields[form.focused], command = form.fields[form.focused].Update(message)
	return model, command
}

// submitSignIn validates the form locally and, if it passes, starts the
// login or registration.
func (model Model) submitSignIn() (tea.Model, tea.Cmd) {
	credentials := model.form.credentials()
	if err := credentials.Validate(); err != nil {
		model.form.err = err.Error()
		return model, nil
	}
	model.form.err = ""
	model.form.pending = true
	model.form.attempt++
	return model, beginSession(
		model.services.Manager,
		model.serverAddress,
		credentials,
		model.form.attempt,
		model.requestTimeout,
	)
}

func (model Model) handleSessionBegun(message sessionBegunMsg) (tea.Model, tea.Cmd) {
	if model.screen != ScreenSignIn || message.attempt != model.form.attempt {
		return model, nil
	}
	model.form.pending = false
	if message.err != nil {
		model.form.err = describeError(message.err)
		return model, nil
	}

	model.form.err = ""
	model.form.clearSecrets()
	command := model.enterChat(message.session)
	return model, command
}

func (model Model) renderSignIn() string {
	form := model.form
	labelStyle := lipgloss.NewStyle().Foreground(model.theme.FaintText).Width(10)
	focusedLabel := labelStyle.Foreground(model.theme.FocusAccent)
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(model.theme.HeaderForeground)
	faint := lipgloss.NewStyle().Foreground(model.theme.FaintText)

	title := "Log in"
	if form.mode == dm.ModeRegister {
		title = "Create an account"
	}

	lines := []string{
		titleStyle.Render("bureau-dm"),
		faint.Render(fmt.Sprintf("%s on %s", title, model.serverAddress)),
		"",
	}
	labels := [3]string{"Username", "Password", "Confirm"}
	for index := 0; index < form.fieldCount(); index++ {
		style := labelStyle
		if index == form.focused {
			style = focusedLabel
		}
		lines = append(lines, style.Render(labels[index])+form.fields[index].View())
	}
	lines = append(lines, "")

	switch {
	case form.pending:
		verb := "Signing in..."
		if form.mode == dm.ModeRegister {
			verb = "Creating account..."
		}
		lines = append(lines, lipgloss.NewStyle().Foreground(model.theme.WarnText).Render(verb))
	case form.err != "":
		errorStyle := lipgloss.NewStyle().Foreground(model.theme.ErrorText).Width(signInFieldWidth + 10)
		lines = append(lines, errorStyle.Render(form.err))
	default:
		lines = append(lines, "")
	}
	lines = append(lines, "")

	otherMode := "register"
	if form.mode == dm.ModeRegister {
		otherMode = "log in"
	}
	help := fmt.Sprintf("Enter submit  Tab next field  C-r %s  C-c quit", otherMode)
	lines = append(lines, lipgloss.NewStyle().Foreground(model.theme.HelpText).Render(help))

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(model.theme.BorderColor).
		Padding(1, 3).
		Render(strings.Join(lines, "\n"))

	view := lipgloss.Place(model.width, model.height, lipgloss.Center, lipgloss.Center, box)
	if model.status.text != "" {
		view = lipgloss.JoinVertical(lipgloss.Left,
			lipgloss.Place(model.width, model.height-1, lipgloss.Center, lipgloss.Center, box),
			model.renderStatus(),
		)
	}
	return view
}
