// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package tagpick

import (
	"io"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

func testOptions() []Option {
	return []Option{
		{Label: "production", Value: "tok-prod"},
		{Label: "staging", Value: "tok-stage"},
		{Label: "ci", Value: "tok-ci"},
	}
}

// send feeds messages to the chooser and returns the final model and
// the last command.
func send(t *testing.T, chooser Chooser, messages ...tea.Msg) (Chooser, tea.Cmd) {
	t.Helper()
	var command tea.Cmd
	for _, message := range messages {
		var model tea.Model
		model, command = chooser.Update(message)
		chooser = model.(Chooser)
	}
	return chooser, command
}

func runes(text string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)}
}

func values(options []Option) []string {
	var result []string
	for _, option := range options {
		result = append(result, option.Value)
	}
	return result
}

func TestChooserToggleAndConfirm(t *testing.T) {
	chooser, command := send(t, NewChooser("Tags", testOptions()),
		tea.KeyMsg{Type: tea.KeySpace},
		tea.KeyMsg{Type: tea.KeyDown},
		tea.KeyMsg{Type: tea.KeyDown},
		tea.KeyMsg{Type: tea.KeySpace},
		tea.KeyMsg{Type: tea.KeyEnter},
	)
	if command == nil {
		t.Fatal("enter did not quit the chooser")
	}
	got := strings.Join(values(chooser.Selected()), ",")
	if got != "tok-prod,tok-ci" {
		t.Errorf("Selected() = %s, want tok-prod,tok-ci", got)
	}
	if chooser.Cancelled() {
		t.Error("confirmed chooser reports cancelled")
	}
}

func TestChooserConfirmTakesCursor(t *testing.T) {
	chooser, _ := send(t, NewChooser("Tags", testOptions()),
		tea.KeyMsg{Type: tea.KeyUp},
		tea.KeyMsg{Type: tea.KeyEnter},
	)
	if got := values(chooser.Selected()); len(got) != 1 || got[0] != "tok-ci" {
		t.Errorf("Selected() = %v, want the wrapped cursor option tok-ci", got)
	}
}

func TestChooserFilter(t *testing.T) {
	chooser, _ := send(t, NewChooser("Tags", testOptions()), runes("stg"))
	if len(chooser.visible) != 1 || chooser.options[chooser.visible[0]].Label != "staging" {
		t.Fatalf("visible after filter = %v, want only staging", chooser.visible)
	}
	if !strings.Contains(chooser.View(), "filter: stg") {
		t.Errorf("View() does not show the filter:\n%s", chooser.View())
	}

	chooser, _ = send(t, chooser, runes("zz"))
	if len(chooser.visible) != 0 {
		t.Errorf("visible = %v, want none", chooser.visible)
	}
	if _, command := send(t, chooser, tea.KeyMsg{Type: tea.KeyEnter}); command != nil {
		t.Error("enter with nothing to pick quit the chooser")
	}

	chooser, _ = send(t, chooser,
		tea.KeyMsg{Type: tea.KeyBackspace},
		tea.KeyMsg{Type: tea.KeyBackspace},
		tea.KeyMsg{Type: tea.KeyBackspace},
		tea.KeyMsg{Type: tea.KeyBackspace},
		tea.KeyMsg{Type: tea.KeyBackspace},
	)
	if len(chooser.visible) != len(testOptions()) {
		t.Errorf("visible after clearing the filter = %v, want all options", chooser.visible)
	}
}

func TestChooserCancel(t *testing.T) {
	chooser, command := send(t, NewChooser("Tags", testOptions()), tea.KeyMsg{Type: tea.KeyEsc})
	if command == nil || !chooser.Cancelled() {
		t.Error("esc did not cancel the chooser")
	}
	if chooser.View() != "" {
		t.Errorf("View() after cancel = %q, want empty", chooser.View())
	}
}

func TestChooserView(t *testing.T) {
	view := NewChooser("Tags for the new secret", testOptions()).View()
	for _, want := range []string{"Tags for the new secret", "production", "staging", "ci", "enter confirm"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q:\n%s", want, view)
		}
	}
}

func TestChooserViewPlain(t *testing.T) {
	plain := lipgloss.NewRenderer(io.Discard, termenv.WithProfile(termenv.Ascii))
	chooser := NewChooser("Tags for the new secret", testOptions()).WithRenderer(plain)
	chooser, _ = send(t, chooser, tea.KeyMsg{Type: tea.KeyDown}, tea.KeyMsg{Type: tea.KeySpace})

	want := strings.Join([]string{
		"Tags for the new secret",
		" [ ] production ",
		" [x] staging    ",
		" [ ] ci         ",
		"↑ up · ↓ down · space toggle · enter confirm · esc cancel",
		"",
	}, "\n")
	if got := chooser.View(); got != want {
		t.Errorf("View() =\n%s\nwant\n%s", got, want)
	}
}

func TestChooseRejectsEmpty(t *testing.T) {
	if _, err := Choose("Tags", nil, strings.NewReader(""), &strings.Builder{}); err == nil {
		t.Error("Choose() with no options succeeded")
	}
}
