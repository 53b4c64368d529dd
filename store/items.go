package store

import (
	"dadjokes-api/pkg/jokes"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Prune returns the newest limit items by created_at, newest first.
// Items with equal timestamps keep their relative order. items is not modified.
func Prune(items []jokes.Item, limit int) []jokes.Item {
	limit = max(limit, 0)
	out := slices.Clone(items)
	if out == nil {
		out = []jokes.Item{}
	}
	slices.SortStableFunc(out, func(a, b jokes.Item) int {
		return strings.Compare(b.CreatedAt, a.CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// NewItem builds an item stamped with a fresh id, this instance and now.
func (s *Store) NewItem(title, body, source string) jokes.Item {
	if title == "" {
		title = jokes.DefaultTitle
	}
	return jokes.Item{
		Title:     title,
		Body:      body,
		Source:    source,
		PodName:   s.instance,
		CreatedAt: s.timestamp(),
		ID:        uuid.NewString(),
	}
}

// InsertItem puts item at the front of the document.
func InsertItem(doc *jokes.Document, item jokes.Item) {
	doc.Items = slices.Insert(doc.Items, 0, item)
}

// Patch describes an update to an existing item. When Joke is set the
// item's text is replaced by it (refresh mode); otherwise Title and Body
// override the fields they are set for. Named marks a field patch whose
// request named title or body without a value (JSON null): it is still a
// field update, so source and timestamps change while the text is kept.
type Patch struct {
	Title *string
	Body  *string
	Joke  *jokes.Joke
	Named bool
}

// Empty reports whether the patch names nothing to update.
func (p Patch) Empty() bool {
	return p.Joke == nil && p.Title == nil && p.Body == nil && !p.Named
}

// UpdateItem applies patch to the item with the given id and returns the
// updated copy. pod_name and created_at are refreshed in both modes.
func (s *Store) UpdateItem(doc *jokes.Document, id string, patch Patch) (jokes.Item, error) {
	i := indexOf(doc, id)
	if i < 0 {
		return jokes.Item{}, ErrNotFound
	}
	if patch.Empty() {
		return jokes.Item{}, ErrEmptyPatch
	}

	x := doc.Items[i]
	if patch.Joke != nil {
		x.Title = patch.Joke.Title
		x.Body = patch.Joke.Body
		x.Source = patch.Joke.Source
	} else {
		if patch.Title != nil {
			x.Title = *patch.Title
		}
		if patch.Body != nil {
			x.Body = *patch.Body
		}
		x.Source = jokes.SourceCustom
	}
	x.PodName = s.instance
	x.CreatedAt = s.timestamp()

	doc.Items[i] = x
	return x, nil
}

// DeleteItem removes every item with the given id.
func DeleteItem(doc *jokes.Document, id string) error {
	before := len(doc.Items)
	doc.Items = slices.DeleteFunc(doc.Items, func(x jokes.Item) bool {
		return x.ID == id
	})
	if len(doc.Items) == before {
		return ErrNotFound
	}
	return nil
}

// FindByID returns the first item with the given id.
func FindByID(doc *jokes.Document, id string) (jokes.Item, error) {
	i := indexOf(doc, id)
	if i < 0 {
		return jokes.Item{}, ErrNotFound
	}
	return doc.Items[i], nil
}

// FilterByRange keeps items whose created_at lies in [from, to] by string
// comparison. An empty bound is open.
func FilterByRange(items []jokes.Item, from, to string) []jokes.Item {
	out := make([]jokes.Item, 0, len(items))
	for _, x := range items {
		if from != "" && x.CreatedAt < from {
			continue
		}
		if to != "" && x.CreatedAt > to {
			continue
		}
		out = append(out, x)
	}
	return out
}

func indexOf(doc *jokes.Document, id string) int {
	return slices.IndexFunc(doc.Items, func(x jokes.Item) bool {
		return x.ID == id
	})
}
