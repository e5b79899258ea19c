package epub

import (
	"bytes"
	"encoding/xml"
	"strings"

	"golang.org/x/net/html"
)

// parseNavTOC extracts the nested TOC from an EPUB 3 navigation document's
// `<nav epub:type="toc">` list, resolving each entry's href (minus any
// fragment) to a spine index via spineIndexByHref.
func parseNavTOC(raw []byte, spineIndexByHref map[string]int, navDir string) []TOCEntry {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil
	}

	var tocNav *html.Node
	var find func(*html.Node)
	find = func(n *html.Node) {
		if tocNav != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "nav" && hasAttr(n, "epub:type", "toc") {
			tocNav = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(doc)
	if tocNav == nil {
		return nil
	}

	var ol *html.Node
	for c := tocNav.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "ol" {
			ol = c
			break
		}
	}
	if ol == nil {
		return nil
	}
	return parseNavList(ol, spineIndexByHref, navDir)
}

func parseNavList(ol *html.Node, spineIndexByHref map[string]int, navDir string) []TOCEntry {
	var entries []TOCEntry
	for li := ol.FirstChild; li != nil; li = li.NextSibling {
		if li.Type != html.ElementNode || li.Data != "li" {
			continue
		}
		var entry TOCEntry
		var nested []TOCEntry
		for c := li.FirstChild; c != nil; c = c.NextSibling {
			switch {
			case c.Type == html.ElementNode && c.Data == "a":
				entry.Title = strings.TrimSpace(nodeText(c))
				href := attrValue(c, "href")
				entry.Href = href
				entry.ChapterIndex = resolveSpineIndex(href, spineIndexByHref, navDir)
			case c.Type == html.ElementNode && c.Data == "ol":
				nested = parseNavList(c, spineIndexByHref, navDir)
			}
		}
		entry.Children = nested
		entries = append(entries, entry)
	}
	return entries
}

func resolveSpineIndex(href string, spineIndexByHref map[string]int, baseDir string) int {
	if href == "" {
		return 0
	}
	target := href
	if i := strings.IndexByte(target, '#'); i >= 0 {
		target = target[:i]
	}
	if target == "" {
		return 0
	}
	resolved := resolveHref(baseDir, target)
	if idx, ok := spineIndexByHref[resolved]; ok {
		return idx
	}
	return 0
}

// hasAttr matches an attribute by key, tolerating the namespace prefix
// being stripped by the HTML5 parser (epub:type often surfaces as "type").
func hasAttr(n *html.Node, key, val string) bool {
	local := key
	if i := strings.IndexByte(key, ':'); i >= 0 {
		local = key[i+1:]
	}
	for _, a := range n.Attr {
		if (a.Key == key || a.Key == local) && a.Val == val {
			return true
		}
	}
	return false
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

type ncxNavMap struct {
	NavPoint []ncxNavPoint `xml:"navPoint"`
}

type ncxNavPoint struct {
	NavLabel struct {
		Text string `xml:"text"`
	} `xml:"navLabel"`
	Content struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	NavPoint []ncxNavPoint `xml:"navPoint"`
}

type ncxDocument struct {
	NavMap ncxNavMap `xml:"navMap"`
}

// parseNCXTOC extracts the nested TOC from an EPUB 2 NCX document, used as
// a fallback when no EPUB 3 nav document is present.
func parseNCXTOC(raw []byte, spineIndexByHref map[string]int, ncxDir string) []TOCEntry {
	var doc ncxDocument
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	return ncxPointsToTOC(doc.NavMap.NavPoint, spineIndexByHref, ncxDir)
}

func ncxPointsToTOC(points []ncxNavPoint, spineIndexByHref map[string]int, ncxDir string) []TOCEntry {
	entries := make([]TOCEntry, 0, len(points))
	for _, p := range points {
		entries = append(entries, TOCEntry{
			Title:        strings.TrimSpace(p.NavLabel.Text),
			Href:         p.Content.Src,
			ChapterIndex: resolveSpineIndex(p.Content.Src, spineIndexByHref, ncxDir),
			Children:     ncxPointsToTOC(p.NavPoint, spineIndexByHref, ncxDir),
		})
	}
	return entries
}
