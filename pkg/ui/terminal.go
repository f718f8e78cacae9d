// Package ui prints human-facing command output.
package ui

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Banner printed by interactive commands
const Banner = `
  ╦ ╦╔═╗╦╔╗ ╔═╗  ╦ ╦╔═╗╦═╗╦  ╦╔═╗╔═╗╔╦╗
  ║║║║╣ ║╠╩╗║ ║  ╠═╣╠═╣╠╦╝╚╗╔╝║╣ ╚═╗ ║
  ╚╩╝╚═╝╩╚═╝╚═╝  ╩ ╩╩ ╩╩╚═ ╚╝ ╚═╝╚═╝ ╩
`

var (
	mu       sync.Mutex
	out      io.Writer = os.Stdout
	renderer           = lipgloss.NewRenderer(os.Stdout)
	quiet    bool
)

// Palette
var (
	cyan    = lipgloss.Color("6")
	yellow  = lipgloss.Color("3")
	red     = lipgloss.Color("1")
	green   = lipgloss.Color("2")
	magenta = lipgloss.Color("5")
)

// Color functions for terminal output. They render plain text when the
// output is not a terminal.
var (
	Cyan    = colorize(cyan, false)
	Yellow  = colorize(yellow, false)
	Red     = colorize(red, true)
	Green   = colorize(green, true)
	Magenta = colorize(magenta, true)
)

func colorize(c lipgloss.Color, bold bool) func(string) string {
	return func(text string) string {
		mu.Lock()
		r := renderer
		mu.Unlock()
		return r.NewStyle().Foreground(c).Bold(bold).Render(text)
	}
}

// SetOutput redirects all printing to w. Color follows w: it is enabled
// only when w is a terminal.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	renderer = lipgloss.NewRenderer(w)
}

// SetColor forces color on or off
func SetColor(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	if enabled {
		renderer.SetColorProfile(termenv.ANSI)
	} else {
		renderer.SetColorProfile(termenv.Ascii)
	}
}

// SetQuietMode suppresses everything except errors
func SetQuietMode(q bool) {
	mu.Lock()
	quiet = q
	mu.Unlock()
}

// Writer returns the current output writer
func Writer() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return out
}

func emit(always bool, s string) {
	mu.Lock()
	w, q := out, quiet
	mu.Unlock()
	if q && !always {
		return
	}
	fmt.Fprintln(w, s)
}

// PrintBanner prints the banner
func PrintBanner() {
	emit(false, Cyan(Banner))
}

// PrintError prints an error message in red. It is never suppressed.
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		emit(true, Red(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		emit(true, Red(msg))
	}
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	emit(false, Green(msg))
}

// PrintInfo prints a label and value
func PrintInfo(label string, value string) {
	emit(false, fmt.Sprintf("%s: %s", Cyan(label), Yellow(value)))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if len(args) > 0 {
		emit(false, Yellow(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		emit(false, Yellow(msg))
	}
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	emit(false, Magenta(msg))
}
