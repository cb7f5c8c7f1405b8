package linkverify

import (
	"log/slog"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/unicode/norm"

	"git.home.luguber.info/inful/linkscan/internal/catalog"
	"git.home.luguber.info/inful/linkscan/internal/logfields"
)

// ExtractedLink is a raw anchor reference found in a document.
type ExtractedLink struct {
	Href     string
	Text     string
	SourceID catalog.DocID
}

// ExtractLinks returns every navigable anchor in content, in document order.
// Empty hrefs, pure fragments and mailto: links are skipped. Duplicates are
// kept. Malformed markup never fails; the parser recovers what it can.
func ExtractLinks(content string, source catalog.DocID) (links []ExtractedLink) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Link extraction aborted", logfields.DocumentID(int64(source)), slog.Any("panic", r))
			links = nil
		}
	}()

	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		slog.Warn("Failed to parse document HTML", logfields.DocumentID(int64(source)), logfields.Error(err))
		return nil
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			if href, ok := navigableHref(n); ok {
				links = append(links, ExtractedLink{Href: href, Text: anchorText(n), SourceID: source})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links
}

func navigableHref(n *html.Node) (string, bool) {
	href, ok := getAttr(n, "href")
	if !ok {
		return "", false
	}
	href = strings.TrimSpace(href)
	switch {
	case href == "":
		return "", false
	case strings.HasPrefix(href, "#"):
		return "", false
	case len(href) >= 7 && strings.EqualFold(href[:7], "mailto:"):
		return "", false
	}
	return href, true
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) (string, bool) {
	for _, attr := range n.Attr {
		if attr.Namespace == "" && attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}

// anchorText concatenates the text nodes below n and trims the result.
func anchorText(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return norm.NFC.String(strings.TrimSpace(b.String()))
}
