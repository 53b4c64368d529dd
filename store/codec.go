package store

import (
	"dadjokes-api/pkg/jokes"
	"encoding/json"
	"fmt"
)

// SnapshotTitle marks snapshot messages on the topic. Messages with any
// other title are unrelated traffic and ignored during replay.
const SnapshotTitle = "dadjokes-db"

// event is the subset of an ntfy stream event the codec inspects.
type event struct {
	Event   string `json:"event"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// snapshot distinguishes a missing items array from an empty one.
type snapshot struct {
	Version   int64         `json:"version"`
	UpdatedAt string        `json:"updated_at"`
	Items     *[]jokes.Item `json:"items"`
}

// Encode serializes a document into a snapshot message body.
func Encode(doc *jokes.Document) ([]byte, error) {
	out := *doc
	if out.Items == nil {
		out.Items = []jokes.Item{}
	}
	b, err := json.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return b, nil
}

// Decode parses one stream line. It reports false for keepalives, other
// titles and anything that fails to parse; those lines are not candidates.
func Decode(line []byte) (*jokes.Document, bool) {
	var ev event
	if err := json.Unmarshal(line, &ev); err != nil {
		return nil, false
	}
	if ev.Event != "message" || ev.Title != SnapshotTitle {
		return nil, false
	}

	var snap snapshot
	if err := json.Unmarshal([]byte(ev.Message), &snap); err != nil {
		return nil, false
	}
	if snap.Items == nil {
		return nil, false
	}
	return &jokes.Document{
		Version:   snap.Version,
		UpdatedAt: snap.UpdatedAt,
		Items:     *snap.Items,
	}, true
}
