package domain

import "time"

// Event types
const (
	EventTypeOrderProcessed    = "order.processed"
	EventTypeOrderDeleted      = "order.deleted"
	EventTypeDocumentProcessed = "document.processed"
	EventTypeDocumentDeleted   = "document.deleted"
	EventTypeBalanceAdjusted   = "balance.adjusted"
	EventTypeLedgerRebuilt     = "ledger.rebuilt"
	EventTypeLedgerRepaired    = "ledger.repaired"
)

// Aggregate types
const (
	AggregateTypeOrder    = "order"
	AggregateTypeDocument = "document"
	AggregateTypeAccount  = "account"
	AggregateTypeLedger   = "ledger"
)

// OutboxEvent represents an event to be published
type OutboxEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
}

// BalanceChangesPayload renders touched entries for an outbox payload.
func BalanceChangesPayload(entries []*LedgerEntry) []map[string]any {
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"account": e.Account.String(),
			"amount":  e.TransactionAmount.String(),
			"balance": e.BalanceAfter.String(),
		})
	}
	return out
}
