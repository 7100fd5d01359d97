package mermaid

import (
	"regexp"
	"strings"
	"unicode"
)

// Dialect identifies which family of diagram syntax a source belongs to.
type Dialect string

const (
	DialectSequence Dialect = "sequence"
	DialectFlow     Dialect = "flow"
)

const sequenceMarker = "sequenceDiagram"

// quoteEntity is the renderer's entity form of a double quote inside a
// quoted label.
const quoteEntity = "#quot;"

var (
	// SRC ->>+ TARGET: message
	reActivation = regexp.MustCompile(`^.+?->>\+\s*([^:]+?)\s*:`)
	// SRC -->>- TARGET: message (ASCII minus or U+2212)
	reDeactivation = regexp.MustCompile(`^.+?-->>(?:-|−)\s*([^:]+?)\s*:`)

	// IDENT[LABEL] or IDENT[LABEL<end of line>
	reNodeLabel = regexp.MustCompile(`(?m)(\w+)\[([^\]\n]*?)(\]|$)`)
	// ["LABEL"], left alone by NormalizeArrows
	reQuotedLabel = regexp.MustCompile(`\["[^"\]\n]*"\]`)
	reArrow     = regexp.MustCompile(`[ \t]*(<?(?:={2,}>|-{2,}>|-\.+->))[ \t]*`)
	reSpaceRun  = regexp.MustCompile(`\s+`)
)

// DetectDialect reports which pass Sanitize applies to source.
func DetectDialect(source string) Dialect {
	if strings.HasPrefix(strings.TrimSpace(source), sequenceMarker) {
		return DialectSequence
	}
	return DialectFlow
}

// Sanitize repairs common syntax defects so the renderer has a better chance
// of accepting the diagram. It never fails; input it cannot repair is passed
// through.
func Sanitize(source string) string {
	if strings.TrimSpace(source) == "" {
		return ""
	}

	var out string
	switch DetectDialect(source) {
	case DialectSequence:
		out = MatchLifecycles(source)
	default:
		out = NormalizeArrows(source)
		out = FixNodeLabels(out)
	}
	return NormalizeWhitespace(out)
}

// MatchLifecycles drops deactivation messages whose target is not currently
// active. All other lines are kept as they are.
func MatchLifecycles(source string) string {
	lines := strings.Split(source, "\n")
	active := make(map[string]bool)
	kept := make([]string, 0, len(lines))

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if m := reDeactivation.FindStringSubmatch(trimmed); m != nil {
			target := participantKey(m[1])
			if !active[target] {
				continue
			}
			active[target] = false
			kept = append(kept, line)
			continue
		}

		if m := reActivation.FindStringSubmatch(trimmed); m != nil {
			active[participantKey(m[1])] = true
		}
		kept = append(kept, line)
	}

	return strings.Join(kept, "\n")
}

// participantKey folds whitespace so names compare the same before and after
// NormalizeWhitespace.
func participantKey(name string) string {
	return reSpaceRun.ReplaceAllString(strings.TrimSpace(name), " ")
}

// FixNodeLabels quotes node labels the renderer cannot parse bare and closes
// brackets left open at the end of a line.
//
// The expression is applied once over the whole source, so a label left open
// in the middle of a line swallows the rest of that line.
func FixNodeLabels(source string) string {
	return reNodeLabel.ReplaceAllStringFunc(source, func(match string) string {
		m := reNodeLabel.FindStringSubmatch(match)
		if m == nil {
			return match
		}
		id, label, closed := m[1], m[2], m[3] == "]"

		if !closed {
			label = strings.TrimRightFunc(label, unicode.IsSpace)
		}
		// an opening quote whose closing half was cut off
		if strings.HasPrefix(label, `"`) && strings.Count(label, `"`) == 1 {
			label = strings.TrimRightFunc(label, unicode.IsSpace) + `"`
		}

		switch {
		case isQuoted(label):
			return id + "[" + label + "]"
		case needsQuoting(label):
			return id + `["` + strings.ReplaceAll(label, `"`, quoteEntity) + `"]`
		case !closed:
			return id + "[" + label + "]"
		default:
			return match
		}
	})
}

func isQuoted(label string) bool {
	return len(label) >= 2 && strings.HasPrefix(label, `"`) && strings.HasSuffix(label, `"`)
}

// needsQuoting treats every Unicode space as whitespace, a superset of what
// NormalizeWhitespace folds.
func needsQuoting(label string) bool {
	return strings.IndexFunc(label, unicode.IsSpace) >= 0 || strings.ContainsAny(label, "()[")
}

// NormalizeArrows puts exactly one space on each side of flow arrows.
// Quoted labels are copied as they are.
func NormalizeArrows(source string) string {
	var b strings.Builder
	last := 0
	for _, loc := range reQuotedLabel.FindAllStringIndex(source, -1) {
		b.WriteString(reArrow.ReplaceAllString(source[last:loc[0]], " $1 "))
		b.WriteString(source[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(reArrow.ReplaceAllString(source[last:], " $1 "))
	return b.String()
}

// NormalizeWhitespace trims every line, collapses internal whitespace runs
// and trims the result.
func NormalizeWhitespace(source string) string {
	lines := strings.Split(source, "\n")
	for i, line := range lines {
		lines[i] = reSpaceRun.ReplaceAllString(strings.TrimSpace(line), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
