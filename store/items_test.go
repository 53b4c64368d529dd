package store

import (
	"dadjokes-api/ntfy/ntfytest"
	"dadjokes-api/pkg/jokes"
	"errors"
	"reflect"
	"testing"
)

func ptr(s string) *string { return &s }

func TestNewItemDefaults(t *testing.T) {
	srv := ntfytest.NewServer()
	defer srv.Close()
	s := newTestStore(t, srv, nil)

	x := s.NewItem("", "", jokes.SourceCustom)
	if x.Title != jokes.DefaultTitle {
		t.Errorf("title = %q, want %q", x.Title, jokes.DefaultTitle)
	}
	if x.Body != "" || x.Source != jokes.SourceCustom || x.PodName != "pod-a" {
		t.Errorf("NewItem() = %+v", x)
	}
	if x.ID == "" {
		t.Error("NewItem() id is empty")
	}
	if x.CreatedAt != "2025-01-01T12:00:00Z" {
		t.Errorf("created_at = %q, want 2025-01-01T12:00:00Z", x.CreatedAt)
	}
	if y := s.NewItem("a", "b", "icanhaz"); y.ID == x.ID {
		t.Error("NewItem() reused an id")
	}
}

func TestInsertItemPrepends(t *testing.T) {
	doc := &jokes.Document{Items: []jokes.Item{item("a", "1")}}
	InsertItem(doc, item("b", "0"))
	if doc.Items[0].ID != "b" || doc.Items[1].ID != "a" {
		t.Errorf("InsertItem() items = %+v, want b first", doc.Items)
	}
}

func TestUpdateItem(t *testing.T) {
	srv := ntfytest.NewServer()
	defer srv.Close()

	tests := []struct {
		name    string
		id      string
		patch   Patch
		want    jokes.Item
		wantErr error
	}{
		{
			name:    "unknown id",
			id:      "zzz",
			patch:   Patch{Title: ptr("x")},
			wantErr: ErrNotFound,
		},
		{
			name:    "empty patch",
			id:      "a",
			wantErr: ErrEmptyPatch,
		},
		{
			name:  "title only",
			id:    "a",
			patch: Patch{Title: ptr("new title")},
			want:  jokes.Item{Title: "new title", Body: "ba", Source: jokes.SourceCustom, PodName: "pod-a", CreatedAt: "2025-01-01T12:00:00Z", ID: "a"},
		},
		{
			name:  "body only",
			id:    "a",
			patch: Patch{Body: ptr("")},
			want:  jokes.Item{Title: "ta", Body: "", Source: jokes.SourceCustom, PodName: "pod-a", CreatedAt: "2025-01-01T12:00:00Z", ID: "a"},
		},
		{
			name:  "named field without value",
			id:    "a",
			patch: Patch{Named: true},
			want:  jokes.Item{Title: "ta", Body: "ba", Source: jokes.SourceCustom, PodName: "pod-a", CreatedAt: "2025-01-01T12:00:00Z", ID: "a"},
		},
		{
			name:  "refresh",
			id:    "a",
			patch: Patch{Joke: &jokes.Joke{Title: "Dad joke", Body: "punchline", Source: "icanhaz"}, Title: ptr("ignored")},
			want:  jokes.Item{Title: "Dad joke", Body: "punchline", Source: "icanhaz", PodName: "pod-a", CreatedAt: "2025-01-01T12:00:00Z", ID: "a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, srv, nil)
			orig := jokes.Item{Title: "ta", Body: "ba", Source: "jokeapi", PodName: "old-pod", CreatedAt: "2020-01-01T00:00:00Z", ID: "a"}
			doc := &jokes.Document{Items: []jokes.Item{item("b", "2"), orig}}

			got, err := s.UpdateItem(doc, tt.id, tt.patch)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("UpdateItem() error = %v, want %v", err, tt.wantErr)
				}
				if doc.Items[1] != orig {
					t.Errorf("UpdateItem() changed the document on error: %+v", doc.Items[1])
				}
				return
			}
			if err != nil {
				t.Fatalf("UpdateItem() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("UpdateItem() = %+v, want %+v", got, tt.want)
			}
			if doc.Items[1] != tt.want {
				t.Errorf("document item = %+v, want %+v", doc.Items[1], tt.want)
			}
		})
	}
}

func TestDeleteItem(t *testing.T) {
	doc := &jokes.Document{Items: []jokes.Item{item("a", "1"), item("b", "2")}}

	if err := DeleteItem(doc, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteItem(missing) error = %v, want ErrNotFound", err)
	}
	if len(doc.Items) != 2 {
		t.Errorf("len(items) = %d after failed delete, want 2", len(doc.Items))
	}
	if err := DeleteItem(doc, "a"); err != nil {
		t.Fatalf("DeleteItem(a) error = %v", err)
	}
	if len(doc.Items) != 1 || doc.Items[0].ID != "b" {
		t.Errorf("items = %+v, want only b", doc.Items)
	}
}

func TestFindByID(t *testing.T) {
	doc := &jokes.Document{Items: []jokes.Item{item("a", "1"), item("b", "2")}}

	got, err := FindByID(doc, "b")
	if err != nil || got.ID != "b" {
		t.Errorf("FindByID(b) = %+v, %v", got, err)
	}
	if _, err := FindByID(doc, "c"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByID(c) error = %v, want ErrNotFound", err)
	}
}

func TestFilterByRange(t *testing.T) {
	items := []jokes.Item{
		item("a", "2025-01-03T00:00:00Z"),
		item("b", "2025-01-02T00:00:00Z"),
		item("c", "2025-01-01T00:00:00Z"),
	}

	tests := []struct {
		name     string
		from, to string
		want     []string
	}{
		{name: "unbounded", want: []string{"a", "b", "c"}},
		{name: "from inclusive", from: "2025-01-02T00:00:00Z", want: []string{"a", "b"}},
		{name: "to inclusive", to: "2025-01-02T00:00:00Z", want: []string{"b", "c"}},
		{name: "both", from: "2025-01-02", to: "2025-01-02T23", want: []string{"b"}},
		{name: "empty range", from: "2025-02", to: "2025-01", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := []string{}
			for _, x := range FilterByRange(items, tt.from, tt.to) {
				got = append(got, x.ID)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FilterByRange(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}
