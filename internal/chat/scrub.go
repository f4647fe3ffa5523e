package chat

import (
	"regexp"
	"strings"
)

// thinkBlock matches a balanced reasoning block and any trailing whitespace.
var thinkBlock = regexp.MustCompile(`(?is)<think>.*?</think>\s*`)

// openThink and closeThink locate unpaired tags. Offsets must come from the
// original text; lowercasing a copy can change rune widths and shift them.
var (
	openThink  = regexp.MustCompile(`(?i)<think>`)
	closeThink = regexp.MustCompile(`(?i)</think>`)
)

// fillerLine matches any character that marks a line as real content. Lines
// without one are filler some models emit after the answer (stray CJK or
// punctuation runs). German umlauts count as content.
var fillerLine = regexp.MustCompile(`[a-zA-Z0-9äöüÄÖÜß]`)

// Scrub removes model reasoning from text: balanced <think> blocks are cut,
// an unclosed opening tag truncates the rest, a stray closing tag drops
// everything through it. With dropFiller set, non-blank lines without any
// Latin or German letter or digit are removed as well.
func Scrub(text string, dropFiller bool) string {
	out := thinkBlock.ReplaceAllString(text, "")

	if locs := openThink.FindAllStringIndex(out, -1); len(locs) > 0 {
		out = out[:locs[len(locs)-1][0]]
	}
	if locs := closeThink.FindAllStringIndex(out, -1); len(locs) > 0 {
		out = out[locs[len(locs)-1][1]:]
	}

	if dropFiller {
		lines := strings.Split(out, "\n")
		kept := lines[:0]
		for _, line := range lines {
			if strings.TrimSpace(line) == "" || fillerLine.MatchString(line) {
				kept = append(kept, line)
			}
		}
		out = strings.Join(kept, "\n")
	}
	return strings.TrimSpace(out)
}
