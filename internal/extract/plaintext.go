package extract

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// PlainText is the built-in TextExtractor for UTF-8 text and markdown
// exports. Scanned papers need an external parser behind the same
// interface; this one covers documents already converted to text.
type PlainText struct{}

// ExtractText splits the input on form-feed characters, one page per
// segment. Inputs that are not valid UTF-8 are rejected rather than
// silently mangled.
func (PlainText) ExtractText(_ context.Context, data []byte) ([]Page, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("not valid UTF-8 text")
	}
	segments := strings.Split(string(data), "\f")
	pages := make([]Page, 0, len(segments))
	for _, seg := range segments {
		pages = append(pages, Page{Text: seg})
	}
	return pages, nil
}
