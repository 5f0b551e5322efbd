package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DocumentExtension is the suffix that marks an anchor as a retrievable document.
const DocumentExtension = ".pdf"

// ExtractDocumentLinks collects every anchor whose target ends in .pdf
// (case-insensitive), in document order, duplicates kept. Host-relative
// targets are resolved against origin; absolute targets are left unchanged.
func ExtractDocumentLinks(markup, origin string) []string {
	links := []string{}
	doc, err := parse(markup)
	if err != nil {
		return links
	}
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if !strings.HasSuffix(strings.ToLower(href), DocumentExtension) {
			return
		}
		links = append(links, ResolveLink(href, origin))
	})
	return links
}

// ResolveLink absolutizes a host-relative href against origin. Resolving an
// already absolute link returns it unchanged.
func ResolveLink(href, origin string) string {
	switch {
	case strings.HasPrefix(href, "//"):
		scheme := "https:"
		if i := strings.Index(origin, "://"); i > 0 {
			scheme = origin[:i+1]
		}
		return scheme + href
	case strings.HasPrefix(href, "/"):
		return strings.TrimRight(origin, "/") + href
	default:
		return href
	}
}
