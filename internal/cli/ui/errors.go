package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Level is the severity of a message
type Level int

const (
	LevelError Level = iota
	LevelWarning
	LevelInfo
)

// Message is a formatted diagnostic for the terminal
type Message struct {
	Level       Level
	Context     string
	Problem     string
	Suggestions []string
	Hints       []string
	NoColor     bool
}

func (l Level) colors() (header, body *color.Color, symbol string) {
	switch l {
	case LevelWarning:
		return color.New(color.FgYellow, color.Bold), color.New(color.FgYellow), "!"
	case LevelInfo:
		return color.New(color.FgCyan, color.Bold), color.New(color.FgCyan), "i"
	default:
		return color.New(color.FgRed, color.Bold), color.New(color.FgRed), "x"
	}
}

// Format renders the message.
//
//	x UNKNOWN MODEL: Plna
//	   Did you mean: Plan?
//
//	   → List models: trident models
func (m Message) Format() string {
	var b strings.Builder

	header, body, symbol := m.Level.colors()
	accent := color.New(color.FgCyan)
	if m.NoColor {
		header.DisableColor()
		body.DisableColor()
		accent.DisableColor()
	}

	if m.Context != "" {
		header.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(m.Context), m.Problem)
	} else {
		header.Fprintf(&b, "%s %s\n", symbol, m.Problem)
	}

	if len(m.Suggestions) > 0 {
		body.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(m.Suggestions, ", "))
	}

	if len(m.Hints) > 0 {
		b.WriteString("\n")
		for _, hint := range m.Hints {
			accent.Fprintf(&b, "   → %s\n", hint)
		}
	}
	return b.String()
}

// Write writes the formatted message to w
func (m Message) Write(w io.Writer) {
	fmt.Fprint(w, m.Format())
}

// Success formats a confirmation line
func Success(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}

// UnknownModel reports a model name missing from the registry
func UnknownModel(name string, known []string, noColor bool) Message {
	return Message{
		Level:       LevelError,
		Context:     "unknown model",
		Problem:     name,
		Suggestions: Suggest(name, known, 3),
		Hints:       []string{"List models: trident models"},
		NoColor:     noColor,
	}
}

// UnknownRelationship reports an include entry that is not a relationship
func UnknownRelationship(model, name string, relationships []string, noColor bool) Message {
	return Message{
		Level:       LevelError,
		Context:     "unknown relationship",
		Problem:     fmt.Sprintf("%s has no relationship %q", model, name),
		Suggestions: Suggest(name, relationships, 3),
		Hints:       []string{fmt.Sprintf("Show relationships: trident models %s", model)},
		NoColor:     noColor,
	}
}

// ConfigProblem reports an invalid configuration
func ConfigProblem(err error, noColor bool) Message {
	return Message{
		Level:   LevelError,
		Context: "configuration error",
		Problem: err.Error(),
		Hints: []string{
			"View config: cat trident.yml",
			"Get help: trident --help",
		},
		NoColor: noColor,
	}
}

// Warning formats a warning
func Warning(message string, noColor bool) Message {
	return Message{Level: LevelWarning, Problem: message, NoColor: noColor}
}
