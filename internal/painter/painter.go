// Package painter renders coloured and styled prompt text. Colours are given
// by name in the configuration and resolved to fatih/color attributes.
package painter

import (
	"strings"

	"github.com/fatih/color"

	"Cosh/internal/config"
)

// Painter holds the styles of the prompt's parts.
type Painter struct {
	path   *color.Color // working directory
	status *color.Color // nonzero exit status
}

// New creates a Painter from the prompt settings. Unknown colour names leave
// the text uncoloured. Whether escape sequences are emitted at all follows
// color.NoColor, which is off when stdout is not a terminal.
func New(cfg config.Prompt) Painter {
	return Painter{
		path:   style(cfg.PathColour, cfg.Bold),
		status: style(cfg.StatusColour, cfg.Bold),
	}
}

// SetEnabled forces colouring on or off regardless of the terminal.
func (p Painter) SetEnabled(enabled bool) {
	for _, c := range []*color.Color{p.path, p.status} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
}

// Path paints the working directory.
func (p Painter) Path(text string) string {
	return p.path.Sprint(text)
}

// Status paints an exit status.
func (p Painter) Status(text string) string {
	return p.status.Sprint(text)
}

func style(name string, bold bool) *color.Color {

	c := color.New()

	if attr, ok := resolveColour(name); ok {
		c.Add(attr)
	}
	if bold {
		c.Add(color.Bold)
	}

	return c
}

// resolveColour converts a colour name into a foreground attribute.
func resolveColour(name string) (color.Attribute, bool) {

	switch strings.ToLower(strings.TrimSpace(name)) {
	case "black":
		return color.FgBlack, true
	case "red":
		return color.FgRed, true
	case "green":
		return color.FgGreen, true
	case "yellow":
		return color.FgYellow, true
	case "bright yellow":
		return color.FgHiYellow, true
	case "blue":
		return color.FgBlue, true
	case "bright blue":
		return color.FgHiBlue, true
	case "magenta":
		return color.FgMagenta, true
	case "cyan":
		return color.FgCyan, true
	case "white":
		return color.FgWhite, true
	default:
		return 0, false
	}

}
