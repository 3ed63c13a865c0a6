package mailsource

import (
	"log/slog"
	"strings"

	readability "codeberg.org/readeck/go-readability"
)

// ContentExtractor reduces an HTML message body to readable text so the
// classifier spends its context window on words, not markup.
type ContentExtractor struct{}

func NewContentExtractor() *ContentExtractor {
	return &ContentExtractor{}
}

// Run extracts the text content of an HTML body. On any failure the raw
// body is returned unchanged; a worse classifier input beats a lost message.
func (e *ContentExtractor) Run(html string) string {
	if strings.TrimSpace(html) == "" {
		return html
	}

	article, err := readability.FromReader(strings.NewReader(html), nil)
	if err != nil {
		slog.Debug("Content extraction failed, using raw body", "error", err)
		return html
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return html
	}

	return text
}
