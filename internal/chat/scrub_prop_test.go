package chat

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genReasoningText builds strings from the fragments that actually appear in
// model output: prose, think tags in both cases, and filler punctuation.
func genReasoningText() gopter.Gen {
	fragment := gen.OneConstOf(
		"<think>", "</think>", "<THINK>", "</THINK>",
		"Hallo Marlon! ", "Die Antwort ist 42.\n", "überlegen... ",
		"\n\n", "。。。\n", "！？", " ", "ein <b>tag</b> ",
		"ȺȺȺȺ", // grows under ToLower; offsets must stay byte-accurate
	)
	return gen.SliceOf(fragment).Map(func(parts []string) string {
		return strings.Join(parts, "")
	})
}

func TestScrubNeverLeaksThinkTags(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("no think tag survives scrubbing", prop.ForAll(
		func(text string, dropFiller bool) bool {
			out := strings.ToLower(Scrub(text, dropFiller))
			return !strings.Contains(out, "<think>") && !strings.Contains(out, "</think>")
		},
		genReasoningText(),
		gen.Bool(),
	))

	properties.Property("scrubbed output is trimmed", prop.ForAll(
		func(text string, dropFiller bool) bool {
			out := Scrub(text, dropFiller)
			return out == strings.TrimSpace(out)
		},
		genReasoningText(),
		gen.Bool(),
	))

	properties.Property("tagless text only loses whitespace and filler", prop.ForAll(
		func(text string) bool {
			if strings.Contains(strings.ToLower(text), "think") {
				return true
			}
			return Scrub(text, false) == strings.TrimSpace(text)
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
