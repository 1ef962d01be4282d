package usecase

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/fxledger/internal/domain"
)

// SoftDeleteRecalculator removes the effect of a deleted order or document.
//
// The source's entries are flagged deleted, never removed, and every later
// entry of each affected account is replayed in entry-sequence (id) order so
// its snapshot chains from the last surviving entry.
type SoftDeleteRecalculator struct {
	ledgerCore
}

// NewSoftDeleteRecalculator creates a new SoftDeleteRecalculator.
func NewSoftDeleteRecalculator(deps LedgerDeps) *SoftDeleteRecalculator {
	return &SoftDeleteRecalculator{ledgerCore: newLedgerCore(deps)}
}

// SoftDeleteResult summarizes one soft delete.
type SoftDeleteResult struct {
	SourceID        int64
	DeletedEntries  int
	ReplayedEntries int
	Accounts        []*domain.CurrentBalance
}

// DeleteOrder soft-deletes an order and recalculates the accounts it touched.
func (uc *SoftDeleteRecalculator) DeleteOrder(ctx context.Context, orderID int64, performedBy string) (*SoftDeleteResult, error) {
	by := performer(performedBy)

	return uc.deleteSource(ctx, domain.AggregateTypeOrder, orderID, by, func(ctx context.Context, tx Transaction, now time.Time) (domain.TransactionType, error) {
		order, err := uc.Orders.GetByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return "", err
		}
		if order.IsDeleted {
			return "", domain.ErrAlreadyDeleted
		}
		if err := uc.Orders.MarkDeleted(ctx, tx, orderID, now, by); err != nil {
			return "", fmt.Errorf("mark order deleted: %w", err)
		}
		return domain.TransactionTypeOrder, nil
	})
}

// DeleteDocument soft-deletes an accounting document and recalculates the
// accounts it touched.
func (uc *SoftDeleteRecalculator) DeleteDocument(ctx context.Context, documentID int64, performedBy string) (*SoftDeleteResult, error) {
	by := performer(performedBy)

	return uc.deleteSource(ctx, domain.AggregateTypeDocument, documentID, by, func(ctx context.Context, tx Transaction, now time.Time) (domain.TransactionType, error) {
		doc, err := uc.Documents.GetByIDForUpdate(ctx, tx, documentID)
		if err != nil {
			return "", err
		}
		if doc.IsDeleted {
			return "", domain.ErrAlreadyDeleted
		}
		if err := uc.Documents.MarkDeleted(ctx, tx, documentID, now, by); err != nil {
			return "", fmt.Errorf("mark document deleted: %w", err)
		}
		return domain.TransactionTypeAccountingDocument, nil
	})
}

// markSourceFunc locks and flags the source row and returns the entry type
// its postings carry.
type markSourceFunc func(ctx context.Context, tx Transaction, now time.Time) (domain.TransactionType, error)

func (uc *SoftDeleteRecalculator) deleteSource(ctx context.Context, source string, sourceID int64, by string, markSource markSourceFunc) (*SoftDeleteResult, error) {
	var result *SoftDeleteResult

	err := uc.inTx(ctx, DefaultTransactionTimeout, func(ctx context.Context, tx Transaction) error {
		now := uc.Clock()

		txType, err := markSource(ctx, tx, now)
		if err != nil {
			return err
		}

		res, err := uc.recalculate(ctx, tx, sourceID, txType, by, now)
		if err != nil {
			return err
		}

		eventType := domain.EventTypeOrderDeleted
		if source == domain.AggregateTypeDocument {
			eventType = domain.EventTypeDocumentDeleted
		}

		accounts := make([]map[string]any, 0, len(res.Accounts))
		for _, b := range res.Accounts {
			accounts = append(accounts, map[string]any{
				"account": b.Account.String(),
				"balance": b.Balance.String(),
			})
		}

		if err := uc.emit(ctx, tx, source, strconv.FormatInt(sourceID, 10), eventType, map[string]any{
			"source_id":        sourceID,
			"deleted_entries":  res.DeletedEntries,
			"replayed_entries": res.ReplayedEntries,
			"performed_by":     by,
			"accounts":         accounts,
		}); err != nil {
			return err
		}

		result = res
		return nil
	})
	if err != nil {
		uc.Logger.Error().Err(err).Str("source", source).Int64("source_id", sourceID).Msg("soft delete failed")
		return nil, err
	}

	touched := make([]domain.AccountKey, 0, len(result.Accounts))
	for _, b := range result.Accounts {
		touched = append(touched, b.Account)
	}
	uc.invalidate(ctx, touched)
	uc.Metrics.ObserveSoftDelete(source, result.ReplayedEntries)

	uc.Logger.Info().
		Str("source", source).
		Int64("source_id", sourceID).
		Int("deleted_entries", result.DeletedEntries).
		Int("replayed_entries", result.ReplayedEntries).
		Int("accounts", len(result.Accounts)).
		Str("performed_by", by).
		Msg("source soft-deleted and balances recalculated")

	return result, nil
}

// recalculate flags the source's entries deleted and replays every affected
// account from the entry preceding the earliest deleted one.
func (uc *SoftDeleteRecalculator) recalculate(ctx context.Context, tx Transaction, sourceID int64, txType domain.TransactionType, by string, now time.Time) (*SoftDeleteResult, error) {
	groups := make(map[domain.AccountKey][]*domain.LedgerEntry)
	for _, kind := range domain.AccountKinds {
		matches, err := uc.Entries.FindActiveByReference(ctx, tx, kind, sourceID, txType)
		if err != nil {
			return nil, fmt.Errorf("find %s entries: %w", kind, err)
		}
		for _, e := range matches {
			groups[e.Account] = append(groups[e.Account], e)
		}
	}

	keys := make([]domain.AccountKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	result := &SoftDeleteResult{SourceID: sourceID}

	for _, key := range keys {
		if _, _, err := uc.Balances.GetOrCreateForUpdate(ctx, tx, key, now); err != nil {
			return nil, fmt.Errorf("lock balance %s: %w", key, err)
		}
	}

	for _, key := range keys {
		entries := groups[key]

		ids := make([]int64, 0, len(entries))
		minID := entries[0].ID
		for _, e := range entries {
			ids = append(ids, e.ID)
			if e.ID < minID {
				minID = e.ID
			}
		}

		if err := uc.Entries.MarkDeleted(ctx, tx, key.Kind, ids, now, by); err != nil {
			return nil, fmt.Errorf("mark entries deleted on %s: %w", key, err)
		}
		result.DeletedEntries += len(ids)

		balance, replayed, err := uc.replayFrom(ctx, tx, key, minID)
		if err != nil {
			return nil, err
		}
		result.ReplayedEntries += replayed

		if err := uc.Balances.Set(ctx, tx, key, balance, now); err != nil {
			return nil, fmt.Errorf("update balance %s: %w", key, err)
		}

		result.Accounts = append(result.Accounts, &domain.CurrentBalance{Account: key, Balance: balance, LastUpdated: now})
	}

	return result, nil
}

// replayFrom rewrites the snapshot of every active entry after the anchor
// preceding minID and returns the resulting balance.
func (uc *SoftDeleteRecalculator) replayFrom(ctx context.Context, tx Transaction, key domain.AccountKey, minID int64) (decimal.Decimal, int, error) {
	running := decimal.Zero
	anchorID := int64(0)

	anchor, err := uc.Entries.LatestActiveBefore(ctx, tx, key, minID)
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("find anchor for %s: %w", key, err)
	}
	if anchor != nil {
		running = anchor.BalanceAfter
		anchorID = anchor.ID
	}

	later, err := uc.Entries.ListActiveAfter(ctx, tx, key, anchorID)
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("list entries for %s: %w", key, err)
	}

	snapshots := make([]domain.BalanceSnapshot, 0, len(later))
	for _, e := range later {
		next, err := e.Rebase(running)
		if err != nil {
			return decimal.Zero, 0, err
		}
		running = next
		snapshots = append(snapshots, e.Snapshot())
	}

	if len(snapshots) > 0 {
		if err := uc.Entries.UpdateSnapshots(ctx, tx, key.Kind, snapshots); err != nil {
			return decimal.Zero, 0, fmt.Errorf("rewrite snapshots for %s: %w", key, err)
		}
	}

	return running, len(snapshots), nil
}
