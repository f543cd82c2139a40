package ui

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/Hierosoft/hierosoft/pkg/types"
)

// Colors using AdaptiveColor for light/dark switching
var (
	SuccessColor = lipgloss.AdaptiveColor{Light: "#28A745", Dark: "#4CDD76"}
	ErrorColor   = lipgloss.AdaptiveColor{Light: "#DC3545", Dark: "#FF6B7D"}
	WarningColor = lipgloss.AdaptiveColor{Light: "#FFC107", Dark: "#FFD54F"}
	InfoColor    = lipgloss.AdaptiveColor{Light: "#17A2B8", Dark: "#4DD0E1"}
	HeadingColor = lipgloss.AdaptiveColor{Light: "#212529", Dark: "#F8F9FA"}
	MutedColor   = lipgloss.AdaptiveColor{Light: "#6C757D", Dark: "#ADB5BD"}
	PathColor    = lipgloss.AdaptiveColor{Light: "#0EA5E9", Dark: "#38BDF8"}
)

// modeWidth pads the mode column of decision lines.
const modeWidth = 8

// Styles are bound to one renderer so that text output carries no escape
// sequences regardless of the global terminal state.
type Styles struct {
	Title   lipgloss.Style
	Muted   lipgloss.Style
	Path    lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style

	modes map[types.Mode]lipgloss.Style
	plain lipgloss.Style
}

// NewStyles builds the styles for format on w. Text and JSON output get
// an ASCII renderer; forceColor keeps colors when w is not a terminal.
func NewStyles(w io.Writer, format Format, forceColor bool) Styles {
	var r *lipgloss.Renderer
	switch {
	case format != FormatTerminal:
		r = lipgloss.NewRenderer(w, termenv.WithProfile(termenv.Ascii))
	case forceColor:
		r = lipgloss.NewRenderer(w, termenv.WithProfile(termenv.ANSI256))
	default:
		r = lipgloss.NewRenderer(w)
	}

	mode := r.NewStyle().Width(modeWidth)
	return Styles{
		Title:   r.NewStyle().Foreground(HeadingColor).Bold(true),
		Muted:   r.NewStyle().Foreground(MutedColor),
		Path:    r.NewStyle().Foreground(PathColor),
		Success: r.NewStyle().Foreground(SuccessColor).Bold(true),
		Error:   r.NewStyle().Foreground(ErrorColor).Bold(true),
		Warning: r.NewStyle().Foreground(WarningColor).Bold(true),
		Info:    r.NewStyle().Foreground(InfoColor),
		modes: map[types.Mode]lipgloss.Style{
			types.ModeAdd:     mode.Foreground(SuccessColor),
			types.ModeDelete:  mode.Foreground(ErrorColor),
			types.ModeSkip:    mode.Foreground(MutedColor),
			types.ModeRecurse: mode.Foreground(InfoColor),
			types.ModeError:   mode.Foreground(ErrorColor).Bold(true),
		},
		plain: mode,
	}
}

// Mode styles the mode column of a decision line.
func (s Styles) Mode(m types.Mode) lipgloss.Style {
	if st, ok := s.modes[m]; ok {
		return st
	}
	return s.plain
}
