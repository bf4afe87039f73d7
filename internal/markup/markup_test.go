package markup

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// unquote strips the block quote markers Convert always adds, so tests can
// focus on the rule under test.
func unquote(t *testing.T, text string) string {
	t.Helper()
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		switch {
		case line == ">":
			lines[i] = ""
		case strings.HasPrefix(line, "> "):
			lines[i] = line[2:]
		default:
			t.Fatalf("line %d is not quoted: %q", i, line)
		}
	}
	return strings.Join(lines, "\n")
}

func convert(t *testing.T, c *Converter, input string) string {
	t.Helper()
	return unquote(t, c.Convert(input))
}

func TestConvertRules(t *testing.T) {
	c := NewConverter(nil, "")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Line endings normalized",
			input:    "one\r\ntwo\rthree",
			expected: "one\ntwo\nthree",
		},
		{
			name:     "Commit ticket reference unwrapped from fence",
			input:    "{{{\n#!CommitTicketReference repository=\"\" revision=\"42\"\nFix the frobnicator.\n}}}",
			expected: "Fix the frobnicator.",
		},
		{
			name:     "Bare commit ticket reference line dropped",
			input:    "#!CommitTicketReference repository=\"\" revision=\"42\"\nkept",
			expected: "kept",
		},
		{
			name:     "Inline code",
			input:    "run {{{make all}}} now",
			expected: "run `make all` now",
		},
		{
			name:     "Block code",
			input:    "{{{\nfirst\nsecond\n}}}",
			expected: "```\nfirst\nsecond\n```",
		},
		{
			name:     "Shebang directive stripped after fence",
			input:    "{{{#!python\nprint(1)\n}}}",
			expected: "```python\nprint(1)\n```",
		},
		{
			name:     "Headings",
			input:    "= One =\n== Two ==\n=== Three ===\n==== Four ====",
			expected: "# One\n## Two\n### Three\n#### Four",
		},
		{
			name:     "Heading trailing whitespace trimmed",
			input:    "== Two ==  ",
			expected: "## Two",
		},
		{
			name:     "Bracket link",
			input:    "see [https://example.org/docs the docs] here",
			expected: "see [the docs](https://example.org/docs) here",
		},
		{
			name:     "CamelCase escape stripped",
			input:    "not a link: !WikiPage",
			expected: "not a link: WikiPage",
		},
		{
			name:     "Bold and italic",
			input:    "'''bold''' and ''italic''",
			expected: "**bold** and *italic*",
		},
		{
			name:     "Slash emphasis",
			input:    "this is //emphasized// text",
			expected: "this is *emphasized* text",
		},
		{
			name:     "Slash emphasis does not eat URLs",
			input:    "see http://example.org/page",
			expected: "see http://example.org/page",
		},
		{
			name:     "Bullet list normalized",
			input:    " * first\n * second",
			expected: "- first\n- second",
		},
		{
			name:     "Numbered list preserved",
			input:    " 1. first\n 2. second",
			expected: "1. first\n2. second",
		},
		{
			name:     "Ticket reference",
			input:    "duplicate of ticket:17",
			expected: "duplicate of #17",
		},
		{
			name:     "Empty input",
			input:    "",
			expected: "",
		},
		{
			name:     "Unmatched constructs pass through",
			input:    "{{{unterminated and [broken",
			expected: "{{{unterminated and [broken",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, convert(t, c, tt.input))
		})
	}
}

func TestConvertRevisionReferences(t *testing.T) {
	withMap := NewConverter(map[string]string{"123": "abcdef0"}, "https://github.com/example/project/commit")
	withoutMap := NewConverter(nil, "")

	tests := []struct {
		name     string
		conv     *Converter
		input    string
		expected string
	}{
		{
			name:     "Bare revision token resolved",
			conv:     withMap,
			input:    "fixed in r123",
			expected: "fixed in [abcdef0](https://github.com/example/project/commit/abcdef0)",
		},
		{
			name:     "Bare revision token unresolved",
			conv:     withoutMap,
			input:    "fixed in r123",
			expected: "fixed in [changeset:123]",
		},
		{
			name:     "Quoted changeset directive",
			conv:     withMap,
			input:    `[changeset:"123/trunk"]`,
			expected: "[abcdef0](https://github.com/example/project/commit/abcdef0)",
		},
		{
			name:     "Bare changeset directive",
			conv:     withMap,
			input:    "[changeset:123]",
			expected: "[abcdef0](https://github.com/example/project/commit/abcdef0)",
		},
		{
			name:     "Raw changeset URL",
			conv:     withMap,
			input:    "https://trac.example.org/changeset/123",
			expected: "[abcdef0](https://github.com/example/project/commit/abcdef0)",
		},
		{
			name:     "Unresolved changeset directive normalized",
			conv:     withoutMap,
			input:    `[changeset:"999"]`,
			expected: "[changeset:999]",
		},
		{
			name:     "Revision inside word untouched",
			conv:     withMap,
			input:    "error123",
			expected: "error123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, convert(t, tt.conv, tt.input))
		})
	}
}

func TestConvertResolvedCommitWithoutLinkBase(t *testing.T) {
	c := NewConverter(map[string]string{"7": "0123456789abcdef"}, "")
	assert.Equal(t, "`0123456789abcdef`", convert(t, c, "r7"))
}

func TestConvertQuotesEveryLine(t *testing.T) {
	c := NewConverter(nil, "")

	assert.Equal(t, "> one\n>\n> two", c.Convert("one\n\ntwo"))
	assert.Equal(t, ">", c.Convert(""))
}

// Applying the heading, emphasis and list rules to already converted output
// must change nothing further.
func TestConvertIdempotentRules(t *testing.T) {
	c := NewConverter(nil, "")

	inputs := []string{
		"== Heading ==",
		"'''bold''' and ''italic''",
		" * item one\n * item two",
		" 1. one\n 2. two",
	}

	for _, input := range inputs {
		once := convert(t, c, input)
		twice := convert(t, c, once)
		assert.Equal(t, once, twice, "input %q not idempotent", input)
	}
}
