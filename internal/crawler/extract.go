package crawler

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Page is the text and outgoing links extracted from an HTML document.
type Page struct {
	Title string
	Text  string
	Links []string
}

// Extract parses an HTML document. Text holds one line per <p> element.
// Links are resolved against base, fragment-free and limited to http(s);
// mailto: and javascript: hrefs are ignored.
func Extract(r io.Reader, base *url.URL) (Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return Page{}, err
	}

	var (
		page       Page
		paragraphs []string
		seen       = make(map[string]struct{})
	)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			case "title":
				if page.Title == "" {
					page.Title = collapse(textOf(n))
				}
			case "p":
				if t := collapse(textOf(n)); t != "" {
					paragraphs = append(paragraphs, t)
				}
			case "a":
				if link := resolve(base, attr(n, "href")); link != "" {
					if _, ok := seen[link]; !ok {
						seen[link] = struct{}{}
						page.Links = append(page.Links, link)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	page.Text = strings.Join(paragraphs, "\n")
	return page, nil
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func resolve(base *url.URL, href string) string {
	if href == "" {
		return ""
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := ref.String()
	if base != nil {
		abs = base.ResolveReference(ref).String()
	}
	abs = Normalize(abs)
	if !IsHTTP(abs) {
		return ""
	}
	return abs
}
