package svc

import (
	"context"

	"github.com/pkg/errors"

	"livepaste/metrics"
	"livepaste/pkg/domain"
	"livepaste/svc/history"
	"livepaste/svc/store"
	"livepaste/svc/util"
)

// Paste ties the content store and the audit trail together. Content
// writes and history appends are each durable on their own but not
// atomic as a pair; a reader can observe new content with stale
// history for a moment.
type Paste struct {
	store *store.Store
	hist  *history.Log
}

func NewPaste(st *store.Store, hist *history.Log) *Paste {
	if st == nil || hist == nil {
		panic("paste service: nil dependency (store or history)")
	}
	return &Paste{store: st, hist: hist}
}

// Create persists new content under a fresh id and records the create
// action. A history failure does not undo the durable content write;
// it is logged and the create still succeeds.
func (p *Paste) Create(ctx context.Context, text, creatorIP string) (string, error) {
	id, err := p.store.Create(ctx, text)
	if err != nil {
		return "", err
	}
	if err := p.hist.Append(id, domain.ActionCreate, 1, creatorIP, ""); err != nil {
		util.Error().Err(err).Str("id", id).Msg("failed to record create in history")
	}
	metrics.PasteCreated.Inc()
	return id, nil
}

// Content returns the stored text without consulting history.
func (p *Paste) Content(ctx context.Context, id string) (string, error) {
	return p.store.Get(ctx, id)
}

// Get returns the text plus the paste's current deletion status,
// derived from the last history entry for the id.
func (p *Paste) Get(ctx context.Context, id string) (string, bool, error) {
	text, err := p.store.Get(ctx, id)
	if err != nil {
		return "", false, err
	}
	deleted, err := p.hist.IsDeleted(id)
	if err != nil {
		return "", false, errors.Wrap(err, "deletion status")
	}
	metrics.PasteRetrieved.Inc()
	return text, deleted, nil
}

// Update rewrites an existing paste and records the update action.
// Pastes whose last history action is a delete refuse edits with Gone
// semantics and stay untouched.
func (p *Paste) Update(ctx context.Context, id, text, editorIP string) error {
	if !store.ValidID(id) {
		return domain.ErrInvalidID
	}
	deleted, err := p.hist.IsDeleted(id)
	if err != nil {
		return errors.Wrap(err, "deletion status")
	}
	if deleted {
		return domain.ErrPasteGone
	}
	if err := p.store.Update(ctx, id, text); err != nil {
		return err
	}
	if err := p.hist.Append(id, domain.ActionUpdate, 1, editorIP, ""); err != nil {
		util.Error().Err(err).Str("id", id).Msg("failed to record update in history")
	}
	metrics.PasteUpdated.Inc()
	return nil
}

// LiveEdit is the websocket write path: content only, no history
// entry and no deletion check, mirroring how live editors behave.
func (p *Paste) LiveEdit(ctx context.Context, id, text, editorIP string) error {
	if err := p.store.Update(ctx, id, text); err != nil {
		return err
	}
	metrics.PasteUpdated.Inc()
	return nil
}

// Delete appends a delete marker; the content file is never removed.
func (p *Paste) Delete(ctx context.Context, id, deleterIP, note string) error {
	if !store.ValidID(id) {
		return domain.ErrInvalidID
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.hist.MarkDelete(id, deleterIP, note); err != nil {
		return errors.Wrap(err, "mark delete")
	}
	util.Info().Str("id", id).Str("ip", util.RedactIP(deleterIP)).Msg("paste marked deleted")
	return nil
}

// History returns the newest-first representative view, one entry per
// id with its current deletion status.
func (p *Paste) History(ctx context.Context) ([]domain.HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.hist.ReadAll()
}

// HistoryByID returns the full trail for one id, oldest first.
func (p *Paste) HistoryByID(ctx context.Context, id string) ([]domain.HistoryEntry, error) {
	if !store.ValidID(id) {
		return nil, domain.ErrInvalidID
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.hist.ReadByID(id)
}
