// Package markup translates Trac wiki markup into GitHub flavored markdown.
package markup

import (
	"fmt"
	"regexp"
	"strings"
)

// The rules below are order dependent: code fences are rewritten before the
// revision and ticket reference rules so that fenced content containing
// digits is already unwrapped, and the four changeset spellings run from the
// narrowest pattern to the widest so none shadows another.
var (
	lineEndings = regexp.MustCompile(`\r\n?`)

	// Trac wraps commit messages in a CommitTicketReference code block. The
	// message itself should surface as plain markdown, not as code.
	commitRefBlock = regexp.MustCompile(`(?s)\{\{\{\n#!CommitTicketReference[^\n]*\n(.*?)\n*\}\}\}`)
	commitRefLine  = regexp.MustCompile(`(?m)^#!CommitTicketReference[^\n]*\n?`)

	inlineCode = regexp.MustCompile(`\{\{\{(.+?)\}\}\}`)
	blockCode  = regexp.MustCompile(`(?s)\{\{\{(.+?)\}\}\}`)

	heading4 = regexp.MustCompile(`====\s([^\n]+?)\s====[ \t]*`)
	heading3 = regexp.MustCompile(`===\s([^\n]+?)\s===[ \t]*`)
	heading2 = regexp.MustCompile(`==\s([^\n]+?)\s==[ \t]*`)
	heading1 = regexp.MustCompile(`=\s([^\n]+?)\s=[ \t]*`)

	bracketLink   = regexp.MustCompile(`\[(https?://[^\s\[\]]+)\s+([^\[\]]+)\]`)
	camelEscape   = regexp.MustCompile(`!((?:[A-Z][a-z0-9]+){2,})`)
	bold          = regexp.MustCompile(`'''(.+?)'''`)
	italic        = regexp.MustCompile(`''(.+?)''`)
	slashEmphasis = regexp.MustCompile(`(^|\s)//(.*?[^:])//`)

	bulletItem   = regexp.MustCompile(`(?m)^\s\*`)
	numberedItem = regexp.MustCompile(`(?m)^\s(\d+)\.`)

	// The four legacy changeset spellings, narrowest first.
	changesetURL    = regexp.MustCompile(`https?://\S+?/changeset/(\d+)\S*`)
	changesetQuoted = regexp.MustCompile(`\[changeset:"(\d+)[^"]*"[^\]]*\]`)
	changesetBare   = regexp.MustCompile(`\[changeset:(\d+)\]`)
	revisionToken   = regexp.MustCompile(`\br(\d+)\b`)

	ticketRef = regexp.MustCompile(`ticket:(\d+)`)
)

// Converter rewrites one Trac wiki document at a time. It never fails:
// unmatched constructs pass through untouched.
type Converter struct {
	revisions map[string]string
	commitURL string
}

// NewConverter returns a converter resolving Subversion revisions through the
// given revision to commit map. When commitURL is non-empty, resolved
// revisions render as markdown links under that base (".../commit");
// otherwise the bare commit id is emitted in backticks. Both arguments may be
// empty.
func NewConverter(revisions map[string]string, commitURL string) *Converter {
	return &Converter{
		revisions: revisions,
		commitURL: strings.TrimSuffix(commitURL, "/"),
	}
}

// Convert translates one Trac wiki document into markdown and quotes the
// whole result as a block quote, since converted bodies are always nested
// under a rendered event header.
func (c *Converter) Convert(text string) string {
	text = lineEndings.ReplaceAllString(text, "\n")

	text = commitRefBlock.ReplaceAllString(text, "$1")
	text = commitRefLine.ReplaceAllString(text, "")

	text = inlineCode.ReplaceAllString(text, "`$1`")
	text = blockCode.ReplaceAllString(text, "```$1```")
	text = strings.ReplaceAll(text, "```#!", "```")

	text = heading4.ReplaceAllString(text, "#### $1")
	text = heading3.ReplaceAllString(text, "### $1")
	text = heading2.ReplaceAllString(text, "## $1")
	text = heading1.ReplaceAllString(text, "# $1")

	text = bracketLink.ReplaceAllString(text, "[$2]($1)")
	text = camelEscape.ReplaceAllString(text, "$1")

	text = bold.ReplaceAllString(text, "**$1**")
	text = italic.ReplaceAllString(text, "*$1*")
	text = slashEmphasis.ReplaceAllString(text, "$1*$2*")

	text = bulletItem.ReplaceAllString(text, "-")
	text = numberedItem.ReplaceAllString(text, "$1.")

	text = c.replaceRevisions(text, changesetURL)
	text = c.replaceRevisions(text, changesetQuoted)
	text = c.replaceRevisions(text, changesetBare)
	text = c.replaceRevisions(text, revisionToken)

	text = ticketRef.ReplaceAllString(text, "#$1")

	return quote(text)
}

// replaceRevisions rewrites every match of re, whose first group captures a
// revision number, to either a link to the mapped commit or the uniform
// [changeset:NNNN] form when the revision is unknown.
func (c *Converter) replaceRevisions(text string, re *regexp.Regexp) string {
	return re.ReplaceAllStringFunc(text, func(match string) string {
		rev := re.FindStringSubmatch(match)[1]
		sha, ok := c.revisions[rev]
		if !ok {
			return fmt.Sprintf("[changeset:%s]", rev)
		}
		if c.commitURL == "" {
			return fmt.Sprintf("`%s`", sha)
		}
		return fmt.Sprintf("[%s](%s/%s)", shortCommit(sha), c.commitURL, sha)
	})
}

func shortCommit(sha string) string {
	if len(sha) > 10 {
		return sha[:10]
	}
	return sha
}

// quote prefixes every line, including the first, with the block quote
// marker. Empty lines get a bare ">" to keep the quote contiguous.
func quote(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if line == "" {
			lines[i] = ">"
		} else {
			lines[i] = "> " + line
		}
	}
	return strings.Join(lines, "\n")
}
