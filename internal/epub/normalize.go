package epub

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"

	"github.com/clipperhouse/uax29/v2/words"
	"golang.org/x/net/html"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/readalong/readalong/internal/types"
)

// AssetURLRewriter maps a manifest-relative asset href to a stable,
// namespaced path such as "/storage/books/{id}/assets/{path}". URLs
// outside the package (http(s), data:, mailto:) are left untouched.
type AssetURLRewriter func(href string) string

// NormalizedChapter is the Chapter Normalizer's output: reader-ready HTML
// body content plus the token table the Aligner and Exporter key off.
type NormalizedChapter struct {
	Title      string
	Body       string // inner content of <body>...</body>, tokenized
	TokenTable []types.Token
	WordCount  int
}

var urlAttrs = map[string]bool{
	"src": true, "href": true, "poster": true,
}

// Normalize rewrites one spine item's raw XHTML into reader-ready HTML:
// scripts and event handlers are stripped, asset URLs are rewritten
// through rewriteURL, and running text is tokenized into word spans with
// chapter-scoped, stable ids.
//
// Malformed input is tolerated: x/net/html recovers from broken markup the
// way browsers do, so this never fails on well-formed-ish XHTML.
func Normalize(rawXHTML string, rewriteURL AssetURLRewriter) (*NormalizedChapter, error) {
	doc, err := html.Parse(strings.NewReader(rawXHTML))
	if err != nil {
		return nil, fmt.Errorf("epub: parsing chapter markup: %w", err)
	}

	title := extractTitle(doc)

	body := findNode(doc, "body")
	if body == nil {
		body = doc
	}

	stripUnsafe(body)
	if rewriteURL != nil {
		rewriteURLAttrs(body, rewriteURL)
	}

	tok := &tokenizer{}
	tok.walk(body)

	var sb strings.Builder
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&sb, c); err != nil {
			return nil, fmt.Errorf("epub: rendering normalized chapter: %w", err)
		}
	}

	return &NormalizedChapter{
		Title:      title,
		Body:       sb.String(),
		TokenTable: tok.tokens,
		WordCount:  len(tok.tokens),
	}, nil
}

// extractTitle returns the first h1, h2, h3, or title element's trimmed
// text content.
func extractTitle(doc *html.Node) string {
	for _, tag := range []string{"h1", "h2", "h3", "title"} {
		if n := findNode(doc, tag); n != nil {
			if t := strings.TrimSpace(nodeText(n)); t != "" {
				return t
			}
		}
	}
	return ""
}

func findNode(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// stripUnsafe removes <script> elements, <link rel="import">, and
// on-event-* attributes in place.
func stripUnsafe(n *html.Node) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling
		if c.Type == html.ElementNode {
			if c.Data == "script" {
				n.RemoveChild(c)
				continue
			}
			if c.Data == "link" && attrValue(c, "rel") == "import" {
				n.RemoveChild(c)
				continue
			}
			stripEventAttrs(c)
			stripUnsafe(c)
		}
	}
}

func stripEventAttrs(n *html.Node) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if strings.HasPrefix(strings.ToLower(a.Key), "on") {
			continue
		}
		kept = append(kept, a)
	}
	n.Attr = kept
}

func rewriteURLAttrs(n *html.Node, rewriteURL AssetURLRewriter) {
	if n.Type == html.ElementNode {
		for i, a := range n.Attr {
			if urlAttrs[a.Key] && !isExternalURL(a.Val) {
				n.Attr[i].Val = rewriteURL(a.Val)
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		rewriteURLAttrs(c, rewriteURL)
	}
}

func isExternalURL(href string) bool {
	for _, scheme := range []string{"http://", "https://", "data:", "mailto:", "#"} {
		if strings.HasPrefix(href, scheme) {
			return true
		}
	}
	return false
}

// tokenizer walks text nodes in document order, wraps each Unicode
// word-boundary segment that contains a letter or mark in a
// `<span id="w{N}">`, and leaves whitespace/punctuation segments as plain
// text siblings.
type tokenizer struct {
	next   int
	tokens []types.Token
}

func (t *tokenizer) walk(n *html.Node) {
	if n.Type == html.TextNode && strings.TrimSpace(n.Data) != "" {
		t.tokenizeText(n)
		return
	}
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		t.walk(c)
		c = next
	}
}

// tokenizeText replaces a text node with an alternating sequence of plain
// text nodes (whitespace/punctuation) and <span id="wN"> element nodes
// (word tokens), inserted as siblings in place of the original node.
func (t *tokenizer) tokenizeText(n *html.Node) {
	seg := words.NewSegmenter([]byte(n.Data))
	var replacement []*html.Node

	for seg.Next() {
		value := seg.Value()
		if !containsWordChar(value) {
			replacement = append(replacement, &html.Node{Type: html.TextNode, Data: string(value)})
			continue
		}

		id := fmt.Sprintf("w%d", t.next)
		t.next++
		surface := string(value)
		t.tokens = append(t.tokens, types.Token{
			ID:         id,
			Surface:    surface,
			Normalized: normalizeSurface(surface),
		})

		span := &html.Node{
			Type: html.ElementNode,
			Data: "span",
			Attr: []html.Attribute{{Key: "id", Val: id}},
		}
		span.AppendChild(&html.Node{Type: html.TextNode, Data: surface})
		replacement = append(replacement, span)
	}

	parent := n.Parent
	if parent == nil {
		return
	}
	for _, r := range replacement {
		parent.InsertBefore(r, n)
	}
	parent.RemoveChild(n)
}

// containsWordChar reports whether b has at least one letter or mark rune,
// per the rule that punctuation-only and whitespace-only segments are not
// tokens (digits attach to adjacent word characters automatically, since
// UAX29 word segmentation already groups them into the same segment).
func containsWordChar(b []byte) bool {
	for _, r := range string(b) {
		if unicode.IsLetter(r) || unicode.IsMark(r) {
			return true
		}
	}
	return false
}

var foldTransform = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func normalizeSurface(surface string) string {
	folded, _, err := transform.String(foldTransform, surface)
	if err != nil {
		folded = surface
	}
	return strings.ToLower(folded)
}
