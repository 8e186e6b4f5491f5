package gitlab

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// csrfToken returns the Rails authenticity token a GitLab page publishes in
// <meta name="csrf-token" content="...">.
func csrfToken(page []byte) string {
	n := findNode(page, func(n *html.Node) bool {
		return n.DataAtom == atom.Meta && attr(n, "name") == "csrf-token"
	})
	if n == nil {
		return ""
	}
	return attr(n, "content")
}

// createdTokenInput returns the token older GitLab versions render into the
// settings page after creation.
func createdTokenInput(page []byte) string {
	n := findNode(page, func(n *html.Node) bool {
		return n.DataAtom == atom.Input && attr(n, "id") == "created-personal-access-token"
	})
	if n == nil {
		return ""
	}
	return attr(n, "value")
}

// flashAlert returns the text of the first alert banner on the page.
func flashAlert(page []byte) string {
	n := findNode(page, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		for _, class := range strings.Fields(attr(n, "class")) {
			if class == "flash-alert" {
				return true
			}
		}
		return false
	})
	if n == nil {
		return ""
	}
	return strings.Join(strings.Fields(text(n)), " ")
}

func findNode(page []byte, match func(*html.Node) bool) *html.Node {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil
	}

	var walk func(*html.Node) *html.Node
	walk = func(n *html.Node) *html.Node {
		if match(n) {
			return n
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if found := walk(c); found != nil {
				return found
			}
		}
		return nil
	}
	return walk(doc)
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
