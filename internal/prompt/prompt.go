// Package prompt builds the interactive shell prompt: the current working
// directory, abbreviated with "~" for the user's home, followed by the last
// exit status when it was nonzero.
package prompt

import (
	"fmt"
	"os"
	"strings"

	"Cosh/internal/painter"
)

// DefaultPrompt is used when the working directory cannot be determined.
const DefaultPrompt = "cosh$ "

// maxComponents is the number of path components shown before the path is
// shortened to its last two.
const maxComponents = 3

// Update returns the prompt for the next line given the status of the
// previous one.
func Update(p painter.Painter, status int) string {

	cwd, err := os.Getwd()
	if err != nil {
		return DefaultPrompt
	}

	home, _ := os.UserHomeDir()

	return Render(p, Abbreviate(cwd, home), status)
}

// Render formats the prompt for an already abbreviated path.
func Render(p painter.Painter, path string, status int) string {

	var b strings.Builder

	b.WriteString(p.Path(path))
	if status != 0 {
		b.WriteByte(' ')
		b.WriteString(p.Status(fmt.Sprintf("[%d]", status)))
	}
	b.WriteString(" $ ")

	return b.String()
}

// Abbreviate replaces a leading home directory with "~" and shortens paths
// deeper than maxComponents to ".../parent/child" under their root.
func Abbreviate(path, home string) string {

	root := ""
	rest := path

	switch {
	case home != "" && (path == home || strings.HasPrefix(path, home+"/")):
		root = "~"
		rest = strings.TrimPrefix(path, home)
	case strings.HasPrefix(path, "/"):
		root = ""
	default:
		return path
	}

	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 1 && parts[0] == "" {
		if root == "" {
			return "/"
		}
		return root
	}

	if len(parts) > maxComponents {
		parts = append([]string{"..."}, parts[len(parts)-2:]...)
	}

	return root + "/" + strings.Join(parts, "/")
}
