package html

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/conneroisu/pagewright/internal/types"
)

// InjectToHead appends tags to the <head> of doc.
func InjectToHead(doc string, tags []Tag) (string, error) {
	return inject(doc, "head", tags)
}

// InjectToBody appends tags to the end of the <body> of doc.
func InjectToBody(doc string, tags []Tag) (string, error) {
	return inject(doc, "body", tags)
}

func inject(doc, parent string, tags []Tag) (string, error) {
	if len(tags) == 0 {
		return doc, nil
	}
	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return "", fmt.Errorf("parsing page html: %w", err)
	}

	nodes := make([]*html.Node, len(tags))
	for i, tag := range tags {
		nodes[i] = tag.Node()
	}
	d.Find(parent).First().AppendNodes(nodes...)

	return render(d)
}

func render(d *goquery.Document) (string, error) {
	var b strings.Builder
	for n := d.Nodes[0].FirstChild; n != nil; n = n.NextSibling {
		if err := html.Render(&b, n); err != nil {
			return "", fmt.Errorf("rendering page html: %w", err)
		}
	}
	return b.String(), nil
}

// ExtractHead reads the head metadata a client needs to restore the page
// head during navigation.
func ExtractHead(doc string) (types.HeadMetadata, error) {
	var head types.HeadMetadata
	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return head, fmt.Errorf("parsing page html: %w", err)
	}

	head.Title = strings.TrimSpace(d.Find("head > title").First().Text())

	d.Find("head > link[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		rel, _ := s.Attr("rel")
		switch strings.ToLower(rel) {
		case "stylesheet":
			head.Stylesheet = append(head.Stylesheet, href)
		case "prefetch":
			head.Prefetch = append(head.Prefetch, href)
		case "preload":
			as, _ := s.Attr("as")
			if as == "" {
				as = "fetch"
			}
			if head.Preload == nil {
				head.Preload = make(map[string][]string)
			}
			head.Preload[as] = append(head.Preload[as], href)
		}
	})
	return head, nil
}
