// Package export serializes the user directory into the JSON document
// the owner receives from /exportdata.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"relaybot/internal/directory"
)

var ErrExport = errors.New("export failed")

type Lister interface {
	List(ctx context.Context) ([]directory.Entry, error)
}

type Record struct {
	UserID int64 `json:"user_id"`
	ChatID int64 `json:"chat_id"`
}

type Document struct {
	ExportedAt time.Time `json:"exported_at"`
	Count      int       `json:"count"`
	Users      []Record  `json:"users"`
}

// Artifact is a ready-to-send export file.
type Artifact struct {
	Name  string
	Data  []byte
	Count int
}

// Build snapshots dir at now. Users are ordered by id, so two exports of an
// unchanged directory differ only in exported_at.
func Build(ctx context.Context, dir Lister, now time.Time) (Artifact, error) {
	entries, err := dir.List(ctx)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: list users: %w", ErrExport, err)
	}
	doc := Document{ExportedAt: now.UTC(), Count: len(entries), Users: make([]Record, 0, len(entries))}
	for _, e := range entries {
		doc.Users = append(doc.Users, Record{UserID: e.UserID, ChatID: e.ChatID})
	}
	sort.Slice(doc.Users, func(i, j int) bool { return doc.Users[i].UserID < doc.Users[j].UserID })

	b, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: encode: %w", ErrExport, err)
	}
	return Artifact{
		Name:  "users-" + now.UTC().Format("2006-01-02") + ".json",
		Data:  append(b, '\n'),
		Count: doc.Count,
	}, nil
}
