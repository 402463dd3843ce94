package report

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Palette from the Tokyo Night scheme.
var (
	colorAccent  = lipgloss.Color("#7aa2f7")
	colorSuccess = lipgloss.Color("#9ece6a")
	colorWarning = lipgloss.Color("#e0af68")
	colorError   = lipgloss.Color("#f7768e")
	colorDim     = lipgloss.Color("#565f89")
	colorBorder  = lipgloss.Color("#414868")
)

// styles are bound to a renderer so color is only emitted when the
// destination supports it.
type styles struct {
	Title   lipgloss.Style
	Header  lipgloss.Style
	Cell    lipgloss.Style
	Dim     lipgloss.Style
	Pass    lipgloss.Style
	Partial lipgloss.Style
	Fail    lipgloss.Style
	Border  lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		Title:   r.NewStyle().Bold(true).Foreground(colorAccent),
		Header:  r.NewStyle().Bold(true).Foreground(colorAccent).Padding(0, 1),
		Cell:    r.NewStyle().Padding(0, 1),
		Dim:     r.NewStyle().Foreground(colorDim),
		Pass:    r.NewStyle().Foreground(colorSuccess).Padding(0, 1),
		Partial: r.NewStyle().Foreground(colorWarning).Padding(0, 1),
		Fail:    r.NewStyle().Foreground(colorError).Padding(0, 1),
		Border:  r.NewStyle(),
	}
}
