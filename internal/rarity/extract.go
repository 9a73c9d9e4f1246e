package rarity

import (
	"bytes"
	"raremblems/lib/htmlutil"
	"regexp"
	"strconv"

	"github.com/PuerkitoBio/goquery"
)

// the figure is the first percentage after the label that is not separated
// from it by another percent sign.
var rarityRegex = regexp.MustCompile(`Community Rarity[^%]*?(\d+(?:\.\d+)?)%`)

// Extractor finds the community rarity percentage in an item page.
type Extractor func(page []byte) (float64, bool)

// DefaultExtractors are tried in order until one of them matches.
var DefaultExtractors = []Extractor{RawExtractor, VisibleTextExtractor}

func match(text []byte) (float64, bool) {
	groups := rarityRegex.FindSubmatch(text)
	if groups == nil {
		return 0, false
	}
	percent, err := strconv.ParseFloat(string(groups[1]), 64)
	if err != nil {
		return 0, false
	}
	return percent, true
}

// RawExtractor matches against the page markup as is.
func RawExtractor(page []byte) (float64, bool) {
	return match(page)
}

// VisibleTextExtractor matches against the visible text of the parsed page, for
// pages where markup between the label and the figure gets in the way.
func VisibleTextExtractor(page []byte) (float64, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil || len(doc.Nodes) == 0 {
		return 0, false
	}
	return match([]byte(htmlutil.VisibleText(doc.Nodes[0], " ")))
}

// Extract runs the extractors in order and returns the first match.
func Extract(page []byte, extractors []Extractor) (float64, bool) {
	for _, extract := range extractors {
		percent, ok := extract(page)
		if ok {
			return percent, true
		}
	}
	return 0, false
}
