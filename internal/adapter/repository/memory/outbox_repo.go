package memory

import (
	"context"
	"sort"
	"time"

	"github.com/iho/fxledger/internal/domain"
	"github.com/iho/fxledger/internal/usecase"
)

// OutboxRepository implements usecase.OutboxRepository.
type OutboxRepository struct {
	store *Store
}

// Create appends an event in the caller's transaction.
func (r *OutboxRepository) Create(_ context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	st, err := r.store.working(tx)
	if err != nil {
		return err
	}

	st.outbox = append(st.outbox, *event)
	return nil
}

// GetUnpublished returns up to limit committed unpublished events, oldest
// first.
func (r *OutboxRepository) GetUnpublished(_ context.Context, limit int) ([]*domain.OutboxEvent, error) {
	var out []*domain.OutboxEvent
	r.store.committed(func(st *state) {
		for i := range st.outbox {
			e := st.outbox[i]
			if e.Published {
				continue
			}
			out = append(out, &e)
		}
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkPublished flags an event as published.
func (r *OutboxRepository) MarkPublished(_ context.Context, id string, publishedAt time.Time) error {
	err := domain.ErrNotFound
	r.store.writeOutsideTx(func(st *state) {
		for i := range st.outbox {
			if st.outbox[i].ID == id {
				at := publishedAt
				st.outbox[i].Published = true
				st.outbox[i].PublishedAt = &at
				err = nil
				return
			}
		}
	})
	return err
}

// DeletePublished drops events published before the cutoff.
func (r *OutboxRepository) DeletePublished(_ context.Context, before time.Time) error {
	r.store.writeOutsideTx(func(st *state) {
		var kept []domain.OutboxEvent
		for _, e := range st.outbox {
			if e.Published && e.PublishedAt != nil && e.PublishedAt.Before(before) {
				continue
			}
			kept = append(kept, e)
		}
		st.outbox = kept
	})
	return nil
}
