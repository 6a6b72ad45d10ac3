package crawler

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
)

var totalPagesPattern = regexp.MustCompile(`de\s+(\d+)`)

// ListPage fetches one listing page and returns its exam rows and the total
// page count announced by the pager (0 when absent).
func (c *PCICrawler) ListPage(ctx context.Context, pageURL string) ([]CatalogEntry, int, error) {
	body, err := c.fetchHTML(ctx, pageURL)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch listing %s: %w", pageURL, err)
	}

	entries, total, err := c.parseListing(body, pageURL)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse listing %s: %w", pageURL, err)
	}
	return entries, total, nil
}

// Crawl walks categoryURL, categoryURL/2, ... until an empty page, the
// announced page count or limit entries (0 = no limit).
func (c *PCICrawler) Crawl(ctx context.Context, categoryURL string, limit int) ([]CatalogEntry, error) {
	category := CategoryFromURL(categoryURL)
	base := strings.TrimRight(categoryURL, "/")

	log.Printf("PCICrawler: collecting catalog for category %q", category)

	var all []CatalogEntry
	lastPage := maxCatalogPages

	for page := 1; page <= lastPage; page++ {
		pageURL := base
		if page > 1 {
			pageURL = fmt.Sprintf("%s/%d", base, page)
		}

		entries, total, err := c.ListPage(ctx, pageURL)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			log.Printf("PCICrawler: stopping at page %d: %v", page, err)
			break
		}
		if len(entries) == 0 {
			break
		}
		if page == 1 && total > 0 && total < lastPage {
			lastPage = total
		}

		for _, e := range entries {
			e.Category = category
			all = append(all, e)
			if limit > 0 && len(all) >= limit {
				log.Printf("PCICrawler: limit of %d entries reached", limit)
				return all, nil
			}
		}

		if page < lastPage && c.pageDelay > 0 {
			select {
			case <-ctx.Done():
				return all, ctx.Err()
			case <-time.After(c.pageDelay):
			}
		}
	}

	log.Printf("PCICrawler: %d entries collected for %q", len(all), category)
	return all, nil
}

func (c *PCICrawler) parseListing(body, pageURL string) ([]CatalogEntry, int, error) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, 0, err
	}

	total := parseTotalPages(doc)

	table := findFirst(doc, byTagID("table", "lista_provas"))
	if table == nil {
		return nil, total, nil
	}

	rows := findAll(table, byTag("tr"))
	if len(rows) == 0 {
		return nil, total, nil
	}
	if isHeaderRow(rows[0]) {
		rows = rows[1:]
	}

	var entries []CatalogEntry
	for _, tr := range rows {
		cells := children(tr, "td")
		if len(cells) < 5 {
			continue
		}

		link := findFirst(cells[0], byTagClass("a", "prova_download"))
		if link == nil {
			continue
		}
		detailURL := c.resolve(pageURL, attr(link, "href"))
		name := text(link)

		entries = append(entries, CatalogEntry{
			Identifier:        detailURL,
			DisplayName:       name,
			Position:          name,
			Year:              text(cells[1]),
			Institution:       linkOrCellText(cells[2]),
			AdministeringBody: linkOrCellText(cells[3]),
			EducationLevel:    text(cells[4]),
			DetailURL:         detailURL,
		})
	}

	return entries, total, nil
}

func parseTotalPages(doc *html.Node) int {
	pager := findFirst(doc, byTagID("span", "prova_pagina"))
	if pager == nil {
		return 0
	}
	m := totalPagesPattern.FindStringSubmatch(text(pager))
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

func isHeaderRow(tr *html.Node) bool {
	if len(findAll(tr, byTag("th"))) > 0 {
		return true
	}
	return findFirst(tr, byTagClass("td", "ua")) != nil
}

func linkOrCellText(td *html.Node) string {
	if a := findFirst(td, byTag("a")); a != nil {
		return text(a)
	}
	return text(td)
}
