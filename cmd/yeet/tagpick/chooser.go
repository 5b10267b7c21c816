// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package tagpick

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
)

// ErrCancelled is returned by Choose when the user dismisses the
// chooser.
var ErrCancelled = errors.New("tagpick: cancelled")

// Option is a single selectable tag.
type Option struct {
	Label string // Tag name shown to the user.
	Value string // Tag token sent to the server.
}

type styles struct {
	title    lipgloss.Style
	cursor   lipgloss.Style
	selected lipgloss.Style
	faint    lipgloss.Style
	match    lipgloss.Style
}

func newStyles(renderer *lipgloss.Renderer) styles {
	return styles{
		title:    renderer.NewStyle().Bold(true),
		cursor:   renderer.NewStyle().Background(lipgloss.Color("24")).Foreground(lipgloss.Color("231")),
		selected: renderer.NewStyle().Foreground(lipgloss.Color("114")),
		faint:    renderer.NewStyle().Foreground(lipgloss.Color("243")),
		match:    renderer.NewStyle().Underline(true),
	}
}

// Chooser is a bubbletea model for picking one or more options.
// Typing filters the list by fuzzy match; space toggles the option
// under the cursor; enter confirms. Confirming with nothing toggled
// picks the option under the cursor.
type Chooser struct {
	title   string
	options []Option
	keys    KeyMap
	styles  styles

	filter   string
	visible  []int         // indices into options, in display order
	matched  map[int][]int // option index -> matched rune positions
	cursor   int           // index into visible
	selected map[int]bool

	confirmed bool
	cancelled bool
}

// NewChooser returns a chooser over options.
func NewChooser(title string, options []Option) Chooser {
	chooser := Chooser{
		title:    title,
		options:  options,
		keys:     DefaultKeyMap,
		styles:   newStyles(lipgloss.DefaultRenderer()),
		selected: make(map[int]bool),
	}
	chooser.applyFilter()
	return chooser
}

// WithRenderer returns the chooser styled for renderer's color
// profile.
func (chooser Chooser) WithRenderer(renderer *lipgloss.Renderer) Chooser {
	chooser.styles = newStyles(renderer)
	return chooser
}

// Init implements tea.Model.
func (chooser Chooser) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (chooser Chooser) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	keyMessage, ok := message.(tea.KeyMsg)
	if !ok {
		return chooser, nil
	}

	switch {
	case key.Matches(keyMessage, chooser.keys.Cancel):
		chooser.cancelled = true
		return chooser, tea.Quit

	case key.Matches(keyMessage, chooser.keys.Confirm):
		if len(chooser.Selected()) == 0 {
			return chooser, nil
		}
		chooser.confirmed = true
		return chooser, tea.Quit

	case key.Matches(keyMessage, chooser.keys.Up):
		chooser.move(-1)

	case key.Matches(keyMessage, chooser.keys.Down):
		chooser.move(1)

	case key.Matches(keyMessage, chooser.keys.Toggle):
		if index, ok := chooser.current(); ok {
			chooser.selected[index] = !chooser.selected[index]
		}

	case keyMessage.Type == tea.KeyBackspace:
		if chooser.filter != "" {
			runes := []rune(chooser.filter)
			chooser.filter = string(runes[:len(runes)-1])
			chooser.applyFilter()
		}

	case keyMessage.Type == tea.KeyRunes:
		chooser.filter += string(keyMessage.Runes)
		chooser.applyFilter()
	}
	return chooser, nil
}

// View implements tea.Model.
func (chooser Chooser) View() string {
	if chooser.confirmed || chooser.cancelled {
		return ""
	}

	var builder strings.Builder
	builder.WriteString(chooser.styles.title.Render(chooser.title))
	builder.WriteString("\n")
	if chooser.filter != "" {
		builder.WriteString(chooser.styles.faint.Render("filter: ") + chooser.filter + "\n")
	}

	width := 0
	for _, option := range chooser.options {
		width = max(width, ansi.StringWidth(option.Label))
	}

	if len(chooser.visible) == 0 {
		builder.WriteString(chooser.styles.faint.Render("  no matching tags") + "\n")
	}
	for position, index := range chooser.visible {
		marker := "[ ]"
		if chooser.selected[index] {
			marker = chooser.styles.selected.Render("[x]")
		}
		label := highlight(chooser.options[index].Label, chooser.matched[index], chooser.styles.match)
		padding := strings.Repeat(" ", width-ansi.StringWidth(chooser.options[index].Label))
		line := fmt.Sprintf(" %s %s%s ", marker, label, padding)
		if position == chooser.cursor {
			line = chooser.styles.cursor.Render(line)
		}
		builder.WriteString(line + "\n")
	}

	var help []string
	for _, binding := range chooser.keys.bindings() {
		help = append(help, binding.Help().Key+" "+binding.Help().Desc)
	}
	builder.WriteString(chooser.styles.faint.Render(strings.Join(help, " · ")))
	builder.WriteString("\n")
	return builder.String()
}

// Selected returns the toggled options in their original order, or
// the option under the cursor when none is toggled.
func (chooser Chooser) Selected() []Option {
	var result []Option
	for index, option := range chooser.options {
		if chooser.selected[index] {
			result = append(result, option)
		}
	}
	if len(result) == 0 {
		if index, ok := chooser.current(); ok {
			result = append(result, chooser.options[index])
		}
	}
	return result
}

// Cancelled reports whether the user dismissed the chooser.
func (chooser Chooser) Cancelled() bool { return chooser.cancelled }

func (chooser Chooser) current() (int, bool) {
	if chooser.cursor < 0 || chooser.cursor >= len(chooser.visible) {
		return 0, false
	}
	return chooser.visible[chooser.cursor], true
}

// move shifts the cursor, wrapping at both ends.
func (chooser *Chooser) move(delta int) {
	count := len(chooser.visible)
	if count == 0 {
		return
	}
	chooser.cursor = ((chooser.cursor+delta)%count + count) % count
}

func (chooser *Chooser) applyFilter() {
	labels := make([]string, len(chooser.options))
	byLabel := make(map[string][]int)
	for index, option := range chooser.options {
		labels[index] = option.Label
		byLabel[option.Label] = append(byLabel[option.Label], index)
	}

	chooser.visible = nil
	chooser.matched = make(map[int][]int)
	if chooser.filter == "" {
		for index := range chooser.options {
			chooser.visible = append(chooser.visible, index)
		}
	} else {
		seen := make(map[string]bool)
		for _, match := range Rank(chooser.filter, labels) {
			if seen[match.Text] {
				continue
			}
			seen[match.Text] = true
			for _, index := range byLabel[match.Text] {
				chooser.visible = append(chooser.visible, index)
				chooser.matched[index] = match.Positions
			}
		}
	}
	chooser.cursor = 0
}

// highlight renders the runes of label at positions with style.
func highlight(label string, positions []int, style lipgloss.Style) string {
	if len(positions) == 0 {
		return label
	}
	marked := make(map[int]bool, len(positions))
	for _, position := range positions {
		marked[position] = true
	}
	var builder strings.Builder
	for index, r := range []rune(label) {
		if marked[index] {
			builder.WriteString(style.Render(string(r)))
		} else {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}

// Choose runs the chooser on the given terminal streams and returns
// the picked options.
func Choose(title string, options []Option, input io.Reader, output io.Writer) ([]Option, error) {
	if len(options) == 0 {
		return nil, fmt.Errorf("tagpick: nothing to choose from")
	}
	// The color profile follows the stream the chooser draws on, which
	// is not stdout.
	renderer := lipgloss.NewRenderer(output, termenv.WithColorCache(true))
	chooser := NewChooser(title, options).WithRenderer(renderer)
	program := tea.NewProgram(chooser, tea.WithInput(input), tea.WithOutput(output))
	final, err := program.Run()
	if err != nil {
		return nil, fmt.Errorf("tagpick: %w", err)
	}
	chooser = final.(Chooser)
	if chooser.Cancelled() {
		return nil, ErrCancelled
	}
	return chooser.Selected(), nil
}
