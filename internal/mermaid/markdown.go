package mermaid

import (
	"strings"
)

const fenceOpen = "```mermaid"

// SanitizeMarkdown runs Sanitize over every ```mermaid block of a markdown
// document and returns the rewritten document with the number of blocks that
// changed. Other fences are left alone, as is a block with no closing fence.
func SanitizeMarkdown(doc string) (string, int) {
	lines := strings.Split(doc, "\n")
	out := make([]string, 0, len(lines))
	changed := 0

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if !isMermaidFence(line) {
			out = append(out, line)
			continue
		}

		end := closingFence(lines, i+1)
		if end < 0 {
			out = append(out, lines[i:]...)
			break
		}

		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		body := dedent(lines[i+1:end], indent)
		cleaned := Sanitize(body)
		if cleaned != strings.TrimSpace(body) {
			changed++
		}

		out = append(out, line)
		if cleaned != "" {
			out = append(out, indentLines(cleaned, indent)...)
		}
		out = append(out, lines[end])
		i = end
	}

	return strings.Join(out, "\n"), changed
}

// dedent removes the fence's indentation from each body line.
func dedent(lines []string, indent string) string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = strings.TrimPrefix(l, indent)
	}
	return strings.Join(out, "\n")
}

// indentLines puts cleaned lines back at the fence's indentation. Blank lines
// stay empty.
func indentLines(cleaned, indent string) []string {
	lines := strings.Split(cleaned, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = indent + l
		}
	}
	return lines
}

func isMermaidFence(line string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, fenceOpen) {
		return false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(trimmed, fenceOpen))
	return rest == "" || strings.HasPrefix(rest, "{")
}

func closingFence(lines []string, from int) int {
	for j := from; j < len(lines); j++ {
		if strings.TrimSpace(lines[j]) == "```" {
			return j
		}
	}
	return -1
}
