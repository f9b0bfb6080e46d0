package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"relaybot/internal/directory"
)

type listFunc func(ctx context.Context) ([]directory.Entry, error)

func (f listFunc) List(ctx context.Context) ([]directory.Entry, error) { return f(ctx) }

func TestBuildIsIdempotentExceptTimestamp(t *testing.T) {
	ctx := context.Background()
	dir := directory.NewMemory()
	_ = dir.Upsert(ctx, 30, 300)
	_ = dir.Upsert(ctx, 10, 100)

	t1 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	a, err := Build(ctx, dir, t1)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b, err := Build(ctx, dir, t1.Add(time.Hour))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var da, db Document
	if err := json.Unmarshal(a.Data, &da); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(b.Data, &db); err != nil {
		t.Fatal(err)
	}
	if da.ExportedAt.Equal(db.ExportedAt) {
		t.Fatalf("timestamps should differ")
	}
	ua, _ := json.Marshal(da.Users)
	ub, _ := json.Marshal(db.Users)
	if !bytes.Equal(ua, ub) {
		t.Fatalf("users differ:\n%s\n%s", ua, ub)
	}
	if da.Count != 2 || da.Users[0].UserID != 10 || da.Users[1].ChatID != 300 {
		t.Fatalf("unexpected document %+v", da)
	}
	if a.Name != "users-2024-05-01.json" || a.Count != 2 {
		t.Fatalf("unexpected artifact %q %d", a.Name, a.Count)
	}
	if !bytes.Contains(a.Data, []byte("\n    \"count\": 2")) {
		t.Fatalf("expected 4-space indentation:\n%s", a.Data)
	}
}

func TestBuildEmptyDirectory(t *testing.T) {
	a, err := Build(context.Background(), directory.NewMemory(), time.Now())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	var d Document
	_ = json.Unmarshal(a.Data, &d)
	if d.Count != 0 || d.Users == nil {
		t.Fatalf("want empty users array, got %+v", d)
	}
}

func TestBuildWrapsListError(t *testing.T) {
	cause := errors.New("db down")
	_, err := Build(context.Background(), listFunc(func(context.Context) ([]directory.Entry, error) {
		return nil, cause
	}), time.Now())
	if !errors.Is(err, ErrExport) || !errors.Is(err, cause) {
		t.Fatalf("expected ErrExport wrapping cause, got %v", err)
	}
}
