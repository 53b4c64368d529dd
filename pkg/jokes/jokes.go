// Package jokes contains the core domain types for the dad jokes service.
package jokes

import "time"

// TimeFormat is the layout of every timestamp stored in a document.
// All timestamps share it so that string comparison orders them correctly.
const TimeFormat = "2006-01-02T15:04:05Z"

// Default field values for new items.
const (
	DefaultTitle = "No title"
	SourceCustom = "custom"
)

// Item is a single joke record.
type Item struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Source    string `json:"source"`     // "custom" or the provider name
	PodName   string `json:"pod_name"`   // Instance that last wrote the item
	CreatedAt string `json:"created_at"` // Also refreshed on update
	ID        string `json:"id"`
}

// Document is the whole collection, published as one snapshot message.
type Document struct {
	Version   int64  `json:"version"`
	UpdatedAt string `json:"updated_at"`
	Items     []Item `json:"items"`
}

// Joke is a title/body pair returned by an upstream provider.
type Joke struct {
	Title  string
	Body   string
	Source string // Provider name
}

// Timestamp formats t in TimeFormat (UTC, second precision).
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	out := &Document{
		Version:   d.Version,
		UpdatedAt: d.UpdatedAt,
		Items:     make([]Item, len(d.Items)),
	}
	copy(out.Items, d.Items)
	return out
}
