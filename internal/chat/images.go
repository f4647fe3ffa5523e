package chat

import "regexp"

// generatedImage matches markdown images pointing at the daemon's own
// generated-media directory. Tool outputs use this form to hand images to
// the client.
var generatedImage = regexp.MustCompile(`!\[([^\]]*)\]\((/generated/[^)\s]+)\)`)

// extractImages emits one image event per generated-image reference in a
// tool result and replaces each reference with the placeholder so the model
// does not echo the markdown back at the user.
func extractImages(result string, sink Sink, placeholder string) string {
	matches := generatedImage.FindAllStringSubmatch(result, -1)
	if len(matches) == 0 {
		return result
	}
	for _, m := range matches {
		sink.Image(m[2], m[1])
	}
	return generatedImage.ReplaceAllString(result, placeholder)
}
