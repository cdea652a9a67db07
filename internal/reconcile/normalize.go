package reconcile

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize produces the supersession key for a message body: NFC
// normalization, then case folding, then whitespace trimming.
//
// NFC first, so that composed and decomposed renderings of the same text
// (common when bodies round-trip through different platforms) compare
// equal before folding.
func Normalize(body string) string {
	return strings.TrimSpace(strings.ToLower(norm.NFC.String(body)))
}
