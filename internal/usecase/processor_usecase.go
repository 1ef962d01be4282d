package usecase

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/fxledger/internal/domain"
)

// TransactionProcessor posts orders, accounting documents and manual
// adjustments to the ledger.
type TransactionProcessor struct {
	ledgerCore
}

// NewTransactionProcessor creates a new TransactionProcessor.
func NewTransactionProcessor(deps LedgerDeps) *TransactionProcessor {
	return &TransactionProcessor{ledgerCore: newLedgerCore(deps)}
}

// ProcessOrderCreation posts the four movements of a currency exchange.
//
// An order with ID 0 is stored first. An order that already exists must be
// active and not yet posted.
func (uc *TransactionProcessor) ProcessOrderCreation(ctx context.Context, order *domain.Order, performedBy string) (*domain.Order, error) {
	started := time.Now()
	result, err := uc.processOrder(ctx, order, performer(performedBy))
	uc.Metrics.ObservePosting(domain.AggregateTypeOrder, started, err)
	if err != nil {
		uc.Logger.Error().Err(err).Int64("order_id", order.ID).Msg("order posting failed")
		return nil, err
	}
	return result, nil
}

func (uc *TransactionProcessor) processOrder(ctx context.Context, input *domain.Order, by string) (*domain.Order, error) {
	if input.ID == 0 {
		// Fail fast before opening a transaction for a new order.
		if _, _, err := uc.checkOrder(ctx, input); err != nil {
			return nil, err
		}
	}

	var (
		order    *domain.Order
		from, to *domain.Currency
		written  []*domain.LedgerEntry
		touched  []domain.AccountKey
	)

	err := uc.inTx(ctx, DefaultTransactionTimeout, func(ctx context.Context, tx Transaction) error {
		now := uc.Clock()

		o, err := uc.loadOrCreateOrder(ctx, tx, input, by, now)
		if err != nil {
			return err
		}
		fromCurrency, toCurrency, err := uc.checkOrder(ctx, o)
		if err != nil {
			return err
		}

		ref := o.ID
		desc := orderDescription(o)

		postings := []posting{
			{Account: domain.CustomerAccount(o.CustomerID, fromCurrency.Code), Amount: o.FromAmount.Neg()},
			{Account: domain.CustomerAccount(o.CustomerID, toCurrency.Code), Amount: o.ToAmount},
			{Account: domain.PoolAccount(fromCurrency.Code), Amount: o.FromAmount},
			{Account: domain.PoolAccount(toCurrency.Code), Amount: o.ToAmount.Neg()},
		}
		for i := range postings {
			postings[i].Type = domain.TransactionTypeOrder
			postings[i].ReferenceID = &ref
			postings[i].Description = desc
			postings[i].TransactionDate = o.CreatedAt
		}

		batch := uc.newBatch(tx, by, now)
		batch.seedPools = true
		if err := batch.apply(ctx, postings); err != nil {
			return err
		}

		if err := uc.emit(ctx, tx, domain.AggregateTypeOrder, strconv.FormatInt(o.ID, 10), domain.EventTypeOrderProcessed, map[string]any{
			"order_id":     o.ID,
			"customer_id":  o.CustomerID,
			"from":         fromCurrency.Code,
			"to":           toCurrency.Code,
			"performed_by": by,
			"changes":      domain.BalanceChangesPayload(batch.written),
		}); err != nil {
			return err
		}

		order, from, to = o, fromCurrency, toCurrency
		written, touched = batch.written, batch.touched()
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.invalidate(ctx, touched)
	uc.countEntries(written)

	uc.Logger.Info().
		Int64("order_id", order.ID).
		Int64("customer_id", order.CustomerID).
		Str("from", from.Code).
		Str("to", to.Code).
		Int("entries", len(written)).
		Msg("order posted")

	return order, nil
}

// checkOrder validates an order and resolves its customer and currencies.
func (uc *TransactionProcessor) checkOrder(ctx context.Context, o *domain.Order) (*domain.Currency, *domain.Currency, error) {
	if err := o.Validate(); err != nil {
		return nil, nil, err
	}
	if err := domain.ValidateAmount(o.FromAmount); err != nil {
		return nil, nil, err
	}
	if err := domain.ValidateAmount(o.ToAmount); err != nil {
		return nil, nil, err
	}
	if err := domain.ValidateDescription(o.Description); err != nil {
		return nil, nil, err
	}

	if _, err := uc.MasterData.GetCustomer(ctx, o.CustomerID); err != nil {
		return nil, nil, err
	}
	from, err := uc.MasterData.GetCurrency(ctx, o.FromCurrencyID)
	if err != nil {
		return nil, nil, err
	}
	to, err := uc.MasterData.GetCurrency(ctx, o.ToCurrencyID)
	if err != nil {
		return nil, nil, err
	}
	if from.Code == to.Code {
		return nil, nil, domain.ErrSameCurrency
	}

	return from, to, nil
}

// loadOrCreateOrder stores a new order or locks an existing unposted one.
func (uc *TransactionProcessor) loadOrCreateOrder(ctx context.Context, tx Transaction, input *domain.Order, by string, now time.Time) (*domain.Order, error) {
	if input.ID == 0 {
		o := *input
		if o.CreatedAt.IsZero() {
			o.CreatedAt = now
		}
		o.CreatedBy = by
		if err := uc.Orders.Create(ctx, tx, &o); err != nil {
			return nil, fmt.Errorf("create order: %w", err)
		}
		return &o, nil
	}

	o, err := uc.Orders.GetByIDForUpdate(ctx, tx, input.ID)
	if err != nil {
		return nil, err
	}
	if o.IsDeleted {
		return nil, domain.ErrAlreadyDeleted
	}

	posted, err := uc.Entries.FindActiveByReference(ctx, tx, domain.AccountKindCustomer, o.ID, domain.TransactionTypeOrder)
	if err != nil {
		return nil, err
	}
	if len(posted) > 0 {
		return nil, domain.ErrAlreadyProcessed
	}

	return o, nil
}

func orderDescription(o *domain.Order) string {
	if o.Description != "" {
		return o.Description
	}
	return "order #" + strconv.FormatInt(o.ID, 10)
}

// ProcessAccountingDocument posts a verified document: the payer side is
// credited and the receiver side debited, independently for customers and
// bank accounts.
func (uc *TransactionProcessor) ProcessAccountingDocument(ctx context.Context, doc *domain.AccountingDocument, performedBy string) (*domain.AccountingDocument, error) {
	started := time.Now()
	result, err := uc.processDocument(ctx, doc, performer(performedBy))
	uc.Metrics.ObservePosting(domain.AggregateTypeDocument, started, err)
	if err != nil {
		uc.Logger.Error().Err(err).Int64("document_id", doc.ID).Msg("document posting failed")
		return nil, err
	}
	return result, nil
}

func (uc *TransactionProcessor) processDocument(ctx context.Context, input *domain.AccountingDocument, by string) (*domain.AccountingDocument, error) {
	if input.ID == 0 {
		if _, err := uc.checkDocument(ctx, input); err != nil {
			return nil, err
		}
	}

	var (
		doc     *domain.AccountingDocument
		written []*domain.LedgerEntry
		touched []domain.AccountKey
	)

	err := uc.inTx(ctx, DefaultTransactionTimeout, func(ctx context.Context, tx Transaction) error {
		now := uc.Clock()

		d, err := uc.loadOrCreateDocument(ctx, tx, input, by, now)
		if err != nil {
			return err
		}
		code, err := uc.checkDocument(ctx, d)
		if err != nil {
			return err
		}

		batch := uc.newBatch(tx, by, now)
		if err := batch.apply(ctx, documentPostings(d, code)); err != nil {
			return err
		}

		if err := uc.emit(ctx, tx, domain.AggregateTypeDocument, strconv.FormatInt(d.ID, 10), domain.EventTypeDocumentProcessed, map[string]any{
			"document_id":  d.ID,
			"currency":     code,
			"amount":       d.Amount.String(),
			"performed_by": by,
			"changes":      domain.BalanceChangesPayload(batch.written),
		}); err != nil {
			return err
		}

		doc, written, touched = d, batch.written, batch.touched()
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.invalidate(ctx, touched)
	uc.countEntries(written)

	uc.Logger.Info().
		Int64("document_id", doc.ID).
		Str("currency", doc.CurrencyCode).
		Int("entries", len(written)).
		Msg("document posted")

	return doc, nil
}

// checkDocument validates a document, resolves its parties and returns the
// normalized currency code.
func (uc *TransactionProcessor) checkDocument(ctx context.Context, d *domain.AccountingDocument) (string, error) {
	if err := d.Validate(); err != nil {
		return "", err
	}
	if err := domain.ValidateAmount(d.Amount); err != nil {
		return "", err
	}
	if err := domain.ValidateCurrency(d.CurrencyCode); err != nil {
		return "", err
	}
	if err := domain.ValidateDescription(d.Description); err != nil {
		return "", err
	}

	currency, err := uc.MasterData.GetCurrencyByCode(ctx, domain.NormalizeCurrency(d.CurrencyCode))
	if err != nil {
		return "", err
	}

	for _, id := range []*int64{d.PayerCustomerID, d.ReceiverCustomerID} {
		if id == nil {
			continue
		}
		if _, err := uc.MasterData.GetCustomer(ctx, *id); err != nil {
			return "", err
		}
	}
	for _, id := range []*int64{d.PayerBankAccountID, d.ReceiverBankAccountID} {
		if id == nil {
			continue
		}
		bank, err := uc.MasterData.GetBankAccount(ctx, *id)
		if err != nil {
			return "", err
		}
		if domain.NormalizeCurrency(bank.CurrencyCode) != currency.Code {
			return "", fmt.Errorf("%w: bank account %d holds %s, document is %s",
				domain.ErrCurrencyMismatch, bank.ID, bank.CurrencyCode, currency.Code)
		}
	}

	return currency.Code, nil
}

func (uc *TransactionProcessor) loadOrCreateDocument(ctx context.Context, tx Transaction, input *domain.AccountingDocument, by string, now time.Time) (*domain.AccountingDocument, error) {
	if input.ID == 0 {
		d := *input
		d.CurrencyCode = domain.NormalizeCurrency(d.CurrencyCode)
		if d.CreatedAt.IsZero() {
			d.CreatedAt = now
		}
		if d.DocumentDate.IsZero() {
			d.DocumentDate = now
		}
		d.CreatedBy = by
		if err := uc.Documents.Create(ctx, tx, &d); err != nil {
			return nil, fmt.Errorf("create document: %w", err)
		}
		return &d, nil
	}

	d, err := uc.Documents.GetByIDForUpdate(ctx, tx, input.ID)
	if err != nil {
		return nil, err
	}
	if d.IsDeleted {
		return nil, domain.ErrAlreadyDeleted
	}

	for _, kind := range []domain.AccountKind{domain.AccountKindCustomer, domain.AccountKindBank} {
		posted, err := uc.Entries.FindActiveByReference(ctx, tx, kind, d.ID, domain.TransactionTypeAccountingDocument)
		if err != nil {
			return nil, err
		}
		if len(posted) > 0 {
			return nil, domain.ErrAlreadyProcessed
		}
	}

	return d, nil
}

func documentPostings(d *domain.AccountingDocument, code string) []posting {
	ref := d.ID
	desc := d.Description
	if desc == "" {
		desc = "document #" + strconv.FormatInt(d.ID, 10)
	}

	var postings []posting
	add := func(account domain.AccountKey, amount decimal.Decimal) {
		postings = append(postings, posting{
			Account:         account,
			Amount:          amount,
			Type:            domain.TransactionTypeAccountingDocument,
			ReferenceID:     &ref,
			Description:     desc,
			TransactionDate: d.DocumentDate,
		})
	}

	if d.PayerCustomerID != nil {
		add(domain.CustomerAccount(*d.PayerCustomerID, code), d.Amount)
	}
	if d.ReceiverCustomerID != nil {
		add(domain.CustomerAccount(*d.ReceiverCustomerID, code), d.Amount.Neg())
	}
	if d.PayerBankAccountID != nil {
		add(domain.BankAccount(*d.PayerBankAccountID), d.Amount)
	}
	if d.ReceiverBankAccountID != nil {
		add(domain.BankAccount(*d.ReceiverBankAccountID), d.Amount.Neg())
	}

	return postings
}

// AdjustBalanceInput represents input for a manual balance adjustment.
type AdjustBalanceInput struct {
	TransactionDate *time.Time
	Account         domain.AccountKey
	Amount          decimal.Decimal
	Reason          string
	PerformedBy     string
	// Correction records the entry as manual_edit instead of manual.
	Correction bool
}

// AdjustBalance posts an operator adjustment of a signed amount.
func (uc *TransactionProcessor) AdjustBalance(ctx context.Context, input AdjustBalanceInput) (*domain.LedgerEntry, error) {
	started := time.Now()
	entry, err := uc.adjust(ctx, input)
	uc.Metrics.ObservePosting(domain.AggregateTypeAccount, started, err)
	if err != nil {
		uc.Logger.Error().Err(err).Str("account", input.Account.String()).Msg("balance adjustment failed")
		return nil, err
	}
	return entry, nil
}

func (uc *TransactionProcessor) adjust(ctx context.Context, input AdjustBalanceInput) (*domain.LedgerEntry, error) {
	account := input.Account
	account.CurrencyCode = domain.NormalizeCurrency(account.CurrencyCode)

	if err := account.Validate(); err != nil {
		return nil, err
	}
	if err := domain.ValidateAdjustment(input.Amount); err != nil {
		return nil, err
	}
	if err := domain.ValidateDescription(input.Reason); err != nil {
		return nil, err
	}
	if err := uc.resolveAccount(ctx, account); err != nil {
		return nil, err
	}

	txType := domain.TransactionTypeManual
	if input.Correction {
		txType = domain.TransactionTypeManualEdit
	}

	by := performer(input.PerformedBy)
	reason := input.Reason
	if reason == "" {
		reason = "manual adjustment"
	}

	var entry *domain.LedgerEntry

	err := uc.inTx(ctx, DefaultTransactionTimeout, func(ctx context.Context, tx Transaction) error {
		now := uc.Clock()
		txDate := now
		if input.TransactionDate != nil {
			txDate = *input.TransactionDate
		}

		p := posting{
			Account:         account,
			Amount:          input.Amount,
			Type:            txType,
			Description:     reason,
			TransactionDate: txDate,
		}

		batch := uc.newBatch(tx, by, now)
		if err := batch.lock(ctx, []posting{p}); err != nil {
			return err
		}
		e, err := batch.post(ctx, p)
		if err != nil {
			return err
		}

		if err := uc.emit(ctx, tx, domain.AggregateTypeAccount, account.String(), domain.EventTypeBalanceAdjusted, map[string]any{
			"entry_id":     e.ID,
			"type":         string(txType),
			"reason":       reason,
			"performed_by": by,
			"changes":      domain.BalanceChangesPayload(batch.written),
		}); err != nil {
			return err
		}

		entry = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.invalidate(ctx, []domain.AccountKey{account})
	uc.countEntries([]*domain.LedgerEntry{entry})

	uc.Logger.Info().
		Str("account", account.String()).
		Str("amount", input.Amount.String()).
		Str("type", string(txType)).
		Str("performed_by", by).
		Msg("balance adjusted")

	return entry, nil
}

// resolveAccount checks that the parties behind an account key exist.
func (uc *TransactionProcessor) resolveAccount(ctx context.Context, account domain.AccountKey) error {
	switch account.Kind {
	case domain.AccountKindCustomer:
		if _, err := uc.MasterData.GetCustomer(ctx, account.CustomerID); err != nil {
			return err
		}
		_, err := uc.MasterData.GetCurrencyByCode(ctx, account.CurrencyCode)
		return err
	case domain.AccountKindPool:
		_, err := uc.MasterData.GetCurrencyByCode(ctx, account.CurrencyCode)
		return err
	case domain.AccountKindBank:
		_, err := uc.MasterData.GetBankAccount(ctx, account.BankAccountID)
		return err
	}
	return fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidAccount, account.Kind)
}
