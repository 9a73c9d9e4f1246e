package htmlutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var whitespace = regexp.MustCompile(`\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// CleanText collapses whitespace runs into a single space, drops non-printable runes and trims.
func CleanText(s string) string {
	s = whitespace.ReplaceAllString(s, " ")
	s = removeNonPrintable(s)
	return strings.TrimSpace(s)
}

func invisible(node *html.Node) bool {
	if node.Type != html.ElementNode {
		return false
	}
	switch node.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Head:
		return true
	}
	return false
}

// VisibleText returns the text a reader would see under node: every non-empty text node,
// cleaned and joined with sep. Script, style and head contents are skipped.
func VisibleText(node *html.Node, sep string) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n == nil || invisible(n) {
			return
		}
		if n.Type == html.TextNode {
			text := CleanText(n.Data)
			if text != "" {
				parts = append(parts, text)
			}
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(node)
	return strings.Join(parts, sep)
}
