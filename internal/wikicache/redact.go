package wikicache

import (
	"regexp"

	"github.com/cexll/repowiki/internal/mermaid"
)

const redacted = "[REDACTED_TOKEN]"

var (
	reInvisible  = regexp.MustCompile("[\u200B\u200C\u200D\uFEFF]")
	reControl    = regexp.MustCompile("[\u0000-\u0008\u000B\u000C\u000E-\u001F\u007F-\u009F]")
	reSoftHyphen = regexp.MustCompile("\u00AD")
	reBidi       = regexp.MustCompile("[\u202A-\u202E\u2066-\u2069]")

	tokenPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36}\b`),
		regexp.MustCompile(`\bgithub_pat_[A-Za-z0-9_]{11,221}\b`),
		regexp.MustCompile(`\bglpat-[A-Za-z0-9_-]{20,}`),
		regexp.MustCompile(`\bATBB[A-Za-z0-9_=.-]{24,}`),
	}
)

// StripInvisibleCharacters removes zero-width, control, soft hyphen and
// bidirectional override characters. Tabs and newlines are kept.
func StripInvisibleCharacters(s string) string {
	s = reInvisible.ReplaceAllString(s, "")
	s = reControl.ReplaceAllString(s, "")
	s = reSoftHyphen.ReplaceAllString(s, "")
	return reBidi.ReplaceAllString(s, "")
}

// RedactTokens replaces GitHub, GitLab and Bitbucket access tokens.
func RedactTokens(s string) string {
	for _, re := range tokenPatterns {
		s = re.ReplaceAllString(s, redacted)
	}
	return s
}

// CleanText redacts tokens and strips invisible characters.
func CleanText(s string) string {
	return RedactTokens(StripInvisibleCharacters(s))
}

// CleanContent is CleanText plus repair of the page's diagram blocks.
func CleanContent(s string) string {
	cleaned, _ := mermaid.SanitizeMarkdown(CleanText(s))
	return cleaned
}
