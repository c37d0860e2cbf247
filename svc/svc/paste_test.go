package svc

import (
	"context"
	"testing"

	"github.com/pkg/errors"

	"livepaste/pkg/domain"
	"livepaste/svc/cache"
	"livepaste/svc/history"
	"livepaste/svc/store"
)

func newTestPaste(t *testing.T) *Paste {
	t.Helper()
	dir := t.TempDir()
	lru, err := cache.NewLRU(100)
	if err != nil {
		t.Fatal(err)
	}
	st, err := store.Open(dir, 1024*1024, lru)
	if err != nil {
		t.Fatal(err)
	}
	hist, err := history.Open(dir, 500)
	if err != nil {
		t.Fatal(err)
	}
	return NewPaste(st, hist)
}

func TestCreateRecordsHistory(t *testing.T) {
	p := newTestPaste(t)
	ctx := context.Background()

	id, err := p.Create(ctx, "content", "10.0.0.1")
	if err != nil {
		t.Fatal(err)
	}
	entries, err := p.HistoryByID(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Action != domain.ActionCreate {
		t.Fatalf("got %+v, want single create entry", entries)
	}
	if entries[0].CreatorIP != "10.0.0.1" {
		t.Fatalf("got creator ip %q", entries[0].CreatorIP)
	}
}

func TestGetReportsDeletionStatus(t *testing.T) {
	p := newTestPaste(t)
	ctx := context.Background()

	id, err := p.Create(ctx, "content", "ip")
	if err != nil {
		t.Fatal(err)
	}
	_, deleted, err := p.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if deleted {
		t.Fatal("fresh paste reported deleted")
	}

	if err := p.Delete(ctx, id, "ip", "cleanup"); err != nil {
		t.Fatal(err)
	}
	text, deleted, err := p.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !deleted {
		t.Fatal("deleted paste reported alive")
	}
	// Content survives the delete marker.
	if text != "content" {
		t.Fatalf("got %q, content should remain readable", text)
	}
}

func TestUpdateRefusesDeletedPaste(t *testing.T) {
	p := newTestPaste(t)
	ctx := context.Background()

	id, err := p.Create(ctx, "content", "ip")
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Delete(ctx, id, "ip", ""); err != nil {
		t.Fatal(err)
	}
	if err := p.Update(ctx, id, "revived", "ip"); !errors.Is(err, domain.ErrPasteGone) {
		t.Fatalf("got %v, want ErrPasteGone", err)
	}
	text, err := p.Content(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if text != "content" {
		t.Fatalf("refused update still changed content to %q", text)
	}
}

func TestUpdateAppendsHistory(t *testing.T) {
	p := newTestPaste(t)
	ctx := context.Background()

	id, _ := p.Create(ctx, "v1", "ip")
	if err := p.Update(ctx, id, "v2", "editor"); err != nil {
		t.Fatal(err)
	}
	entries, _ := p.HistoryByID(ctx, id)
	if len(entries) != 2 || entries[1].Action != domain.ActionUpdate {
		t.Fatalf("got %+v, want create then update", entries)
	}
}

func TestLiveEditSkipsHistoryAndGoneCheck(t *testing.T) {
	p := newTestPaste(t)
	ctx := context.Background()

	id, _ := p.Create(ctx, "v1", "ip")
	if err := p.Delete(ctx, id, "ip", ""); err != nil {
		t.Fatal(err)
	}

	// Live edits land even on a deleted paste and leave no trail.
	if err := p.LiveEdit(ctx, id, "typed over websocket", "ip"); err != nil {
		t.Fatal(err)
	}
	text, err := p.Content(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if text != "typed over websocket" {
		t.Fatalf("got %q", text)
	}
	entries, _ := p.HistoryByID(ctx, id)
	if len(entries) != 2 {
		t.Fatalf("live edit appended history: %+v", entries)
	}
}

func TestDeleteInvalidID(t *testing.T) {
	p := newTestPaste(t)
	if err := p.Delete(context.Background(), "nope", "ip", ""); !errors.Is(err, domain.ErrInvalidID) {
		t.Fatalf("got %v, want ErrInvalidID", err)
	}
}

func TestDeleteWithoutContentFile(t *testing.T) {
	p := newTestPaste(t)
	ctx := context.Background()

	// Deleting an id that never existed still records the marker; the
	// trail is the only source of deletion truth.
	if err := p.Delete(ctx, "00042", "ip", ""); err != nil {
		t.Fatal(err)
	}
	entries, err := p.HistoryByID(ctx, "00042")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || !entries[0].Deleted {
		t.Fatalf("got %+v", entries)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	p := newTestPaste(t)
	ctx := context.Background()

	first, _ := p.Create(ctx, "a", "ip")
	second, _ := p.Create(ctx, "b", "ip")

	all, err := p.History(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].ID != second || all[1].ID != first {
		t.Fatalf("got %+v", all)
	}
}
