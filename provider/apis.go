package provider

import (
	"context"
	"dadjokes-api/pkg/jokes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Provider names, also used as item source tags.
const (
	NameICanHaz  = "icanhaz"
	NameJokeAPI  = "jokeapi"
	NameOfficial = "official"
	NameScrape   = "scrape"
)

// Default upstream locations.
const (
	DefaultICanHazURL  = "https://icanhazdadjoke.com/"
	DefaultJokeAPIURL  = "https://v2.jokeapi.dev"
	DefaultOfficialURL = "https://official-joke-api.appspot.com"
)

const jokeAPIPath = "/joke/Programming,Pun?type=single&blacklistFlags=nsfw,sexist,explicit"

func decode(ctx context.Context, h HTTP, url, accept string, v any) error {
	body, err := h.get(ctx, url, accept)
	if err != nil {
		return err
	}
	defer body.Close() //nolint:errcheck // read-only body

	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// ICanHaz fetches from icanhazdadjoke.com.
type ICanHaz struct {
	http HTTP
	url  string
}

// NewICanHaz creates the icanhazdadjoke provider. An empty url uses the default.
func NewICanHaz(h HTTP, url string) *ICanHaz {
	if url == "" {
		url = DefaultICanHazURL
	}
	return &ICanHaz{http: h, url: url}
}

// Name implements Provider.
func (*ICanHaz) Name() string { return NameICanHaz }

// Fetch implements Provider.
func (p *ICanHaz) Fetch(ctx context.Context) (jokes.Joke, error) {
	var resp struct {
		Joke string `json:"joke"`
	}
	if err := decode(ctx, p.http, p.url, "application/json", &resp); err != nil {
		return jokes.Joke{}, err
	}
	body := strings.TrimSpace(resp.Joke)
	if body == "" {
		return jokes.Joke{}, errors.New("icanhazdadjoke returned empty")
	}
	return jokes.Joke{Title: "Dad joke", Body: body}, nil
}

// JokeAPI fetches single or two-part jokes from JokeAPI.
type JokeAPI struct {
	http HTTP
	url  string
}

// NewJokeAPI creates the JokeAPI provider. baseURL excludes the path.
func NewJokeAPI(h HTTP, baseURL string) *JokeAPI {
	if baseURL == "" {
		baseURL = DefaultJokeAPIURL
	}
	return &JokeAPI{http: h, url: strings.TrimSuffix(baseURL, "/") + jokeAPIPath}
}

// Name implements Provider.
func (*JokeAPI) Name() string { return NameJokeAPI }

// Fetch implements Provider.
func (p *JokeAPI) Fetch(ctx context.Context) (jokes.Joke, error) {
	var resp struct {
		Error    bool   `json:"error"`
		Message  string `json:"message"`
		Type     string `json:"type"`
		Joke     string `json:"joke"`
		Setup    string `json:"setup"`
		Delivery string `json:"delivery"`
	}
	if err := decode(ctx, p.http, p.url, "application/json", &resp); err != nil {
		return jokes.Joke{}, err
	}
	if resp.Error {
		return jokes.Joke{}, fmt.Errorf("jokeapi: %s", resp.Message)
	}

	body := strings.TrimSpace(resp.Joke)
	if resp.Type != "single" {
		body = strings.TrimSpace(strings.TrimSpace(resp.Setup) + " " + strings.TrimSpace(resp.Delivery))
	}
	return jokes.Joke{Title: "JokeAPI", Body: body}, nil
}

// Official fetches from the Official Joke API.
type Official struct {
	http HTTP
	url  string
}

// NewOfficial creates the Official Joke API provider. baseURL excludes the path.
func NewOfficial(h HTTP, baseURL string) *Official {
	if baseURL == "" {
		baseURL = DefaultOfficialURL
	}
	return &Official{http: h, url: strings.TrimSuffix(baseURL, "/") + "/jokes/random"}
}

// Name implements Provider.
func (*Official) Name() string { return NameOfficial }

// Fetch implements Provider. The setup becomes the title.
func (p *Official) Fetch(ctx context.Context) (jokes.Joke, error) {
	resp := struct {
		Setup     string `json:"setup"`
		Punchline string `json:"punchline"`
	}{Setup: "Joke"}
	if err := decode(ctx, p.http, p.url, "application/json", &resp); err != nil {
		return jokes.Joke{}, err
	}
	return jokes.Joke{
		Title: strings.TrimSpace(resp.Setup),
		Body:  strings.TrimSpace(resp.Punchline),
	}, nil
}
