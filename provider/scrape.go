package provider

import (
	"context"
	"dadjokes-api/pkg/jokes"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultScrapeSelector matches the joke text on icanhazdadjoke.com.
const DefaultScrapeSelector = "p.subtitle"

// Scrape extracts a joke from an HTML page using a CSS selector.
type Scrape struct {
	http     HTTP
	url      string
	selector string
}

// NewScrape creates an HTML scraping provider. Empty arguments use the defaults.
func NewScrape(h HTTP, url, selector string) *Scrape {
	if url == "" {
		url = DefaultICanHazURL
	}
	if selector == "" {
		selector = DefaultScrapeSelector
	}
	return &Scrape{http: h, url: url, selector: selector}
}

// Name implements Provider.
func (*Scrape) Name() string { return NameScrape }

// Fetch implements Provider. The first element matching the selector is the body.
func (p *Scrape) Fetch(ctx context.Context) (jokes.Joke, error) {
	body, err := p.http.get(ctx, p.url, "text/html")
	if err != nil {
		return jokes.Joke{}, err
	}
	defer body.Close() //nolint:errcheck // read-only body

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return jokes.Joke{}, fmt.Errorf("parse HTML: %w", err)
	}

	text := strings.Join(strings.Fields(doc.Find(p.selector).First().Text()), " ")
	if text == "" {
		return jokes.Joke{}, errors.New("no element matches " + p.selector)
	}
	return jokes.Joke{Title: "Dad joke", Body: text}, nil
}
