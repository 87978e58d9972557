// Package cli holds the terminal helpers of fsmctl: boxed banners for
// reports and promptui-backed prompts.
package cli

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	boxTopLeft     = "╒"
	boxBottomLeft  = "└"
	boxTopRight    = "╕"
	boxBottomRight = "┘"
	boxSide        = "│"
	boxTop         = "═"
	boxBottom      = "─"
	dividerLeft    = "┠"
	dividerMiddle  = "─"
	dividerRight   = "┨"
	ellipsis       = "…"
)

// Alignment of banner lines.
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignCenter
	AlignRight
)

const (
	// DefaultWidth is the report width used by fsmctl.
	DefaultWidth = 80

	borderWidth = 2
)

// Divider returns a horizontal rule width runes wide, newline terminated.
func Divider(width int) string {
	if width < borderWidth {
		return "\n"
	}

	return dividerLeft + strings.Repeat(dividerMiddle, width-borderWidth) + dividerRight + "\n"
}

// Banner boxes every line of s. Lines too long for width are truncated with
// an ellipsis. It returns "" for an empty s or a width with no room inside.
func Banner(s string, width int, alignment Alignment) string {
	inner := width - borderWidth
	if s == "" || inner < 1 {
		return ""
	}

	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")

	parts := make([]string, 0, len(lines)+2)
	parts = append(parts, boxTopLeft+strings.Repeat(boxTop, inner)+boxTopRight)

	for _, l := range lines {
		parts = append(parts, boxSide+pad(l, inner, alignment)+boxSide)
	}

	parts = append(parts, boxBottomLeft+strings.Repeat(boxBottom, inner)+boxBottomRight)

	return strings.Join(parts, "\n")
}

func countGraphic(s string) int {
	count := 0

	for _, r := range s {
		if unicode.IsGraphic(r) {
			count++
		}
	}

	return count
}

// truncateGraphic keeps the first n-1 graphic runes of s.
func truncateGraphic(s string, n int) (string, int) {
	var out strings.Builder

	count := 0

	for _, r := range s {
		if unicode.IsGraphic(r) {
			count++
		}

		if count >= n {
			break
		}

		out.WriteRune(r)
	}

	return out.String(), count
}

func pad(text string, width int, alignment Alignment) string {
	length := countGraphic(text)

	str := text
	if length > width {
		str, length = truncateGraphic(str, width)
		str += ellipsis
	}

	diff := max(width-length, 0)

	switch alignment {
	case AlignCenter:
		left := diff / 2 //nolint:mnd

		return fmt.Sprintf("%s%s%s", strings.Repeat(" ", left), str, strings.Repeat(" ", diff-left))
	case AlignRight:
		return strings.Repeat(" ", diff) + str
	default:
		return str + strings.Repeat(" ", diff)
	}
}
