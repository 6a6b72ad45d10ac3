package crawler

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// ResolveDetails fetches the detail page of entry and classifies its PDF links.
func (c *PCICrawler) ResolveDetails(ctx context.Context, entry CatalogEntry) (*Details, error) {
	if entry.DetailURL == "" {
		return nil, fmt.Errorf("entry %q has no detail URL", entry.DisplayName)
	}

	body, err := c.fetchHTML(ctx, entry.DetailURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch details %s: %w", entry.DetailURL, err)
	}

	details, err := c.parseDetails(body, entry.DetailURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse details %s: %w", entry.DetailURL, err)
	}
	return details, nil
}

func (c *PCICrawler) parseDetails(body, pageURL string) (*Details, error) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, err
	}

	details := &Details{}

	if h5 := findFirst(doc, byTagClass("h5", "text-pci")); h5 != nil {
		title := text(h5)
		details.Title = strings.TrimSpace(strings.Replace(title, "Prova ", "", 1))
	}

	var links []Link
	seen := make(map[string]bool)
	for _, a := range findAll(doc, byTagClass("a", "item-link")) {
		href := attr(a, "href")
		if !strings.HasSuffix(strings.ToLower(href), ".pdf") {
			continue
		}
		abs := c.resolve(pageURL, href)
		if seen[abs] {
			continue
		}
		seen[abs] = true
		links = append(links, Link{URL: abs, Text: text(a)})
		details.AttachmentURLs = append(details.AttachmentURLs, abs)
	}

	class := c.classifier.Classify(links)
	details.BookletURL = class.BookletURL
	details.AnswerKeyURL = class.AnswerKeyURL

	if ul := findFirst(doc, byTagClass("ul", "list-unstyled")); ul != nil {
		for _, li := range children(ul, "li") {
			label, value := metadataItem(li)
			if value == "" {
				continue
			}
			switch label {
			case "cargo":
				details.Position = value
			case "ano":
				details.Year = value
			case "órgão", "orgão", "orgao":
				details.Institution = value
			case "instituição", "instituicao", "banca":
				details.AdministeringBody = value
			case "nível", "nivel":
				details.EducationLevel = value
			}
		}
	}

	if details.Position == "" {
		details.Position = details.Title
	}

	return details, nil
}

// metadataItem reads "<li><strong>Label:</strong> value</li>". The value is a
// .text-pci child when present, otherwise the text after the label up to <br>.
func metadataItem(li *html.Node) (string, string) {
	strong := findFirst(li, byTag("strong"))
	if strong == nil {
		return "", ""
	}
	label := strings.ToLower(strings.TrimSpace(strings.ReplaceAll(text(strong), ":", "")))

	tagged := findFirst(li, func(n *html.Node) bool {
		return (isElement(n, "a") || isElement(n, "span")) && hasClass(n, "text-pci")
	})
	if tagged != nil {
		return label, text(tagged)
	}

	var parts []string
	for sib := strong.NextSibling; sib != nil; sib = sib.NextSibling {
		if isElement(sib, "br") {
			break
		}
		if t := text(sib); t != "" {
			parts = append(parts, t)
		}
	}
	return label, strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}
