package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/iho/fxledger/internal/adapter/http/dto"
	"github.com/iho/fxledger/internal/domain"
)

type rootOptions struct {
	baseURL     string
	timeout     time.Duration
	performedBy string
}

func (o *rootOptions) client() *client {
	return newClient(o.baseURL, o.timeout, o.performedBy)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "fxledger-cli",
		Short:         "FX ledger CLI tool",
		Long:          `A command line interface for interacting with the FX ledger API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.baseURL, "url", "http://localhost:8080", "Base URL of the ledger API")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Request timeout")
	rootCmd.PersistentFlags().StringVar(&opts.performedBy, "by", "", "Operator recorded on the ledger entries")

	rootCmd.AddCommand(
		ledgerCmd(opts),
		balanceCmd(opts),
		historyCmd(opts),
		orderCmd(opts),
		documentCmd(opts),
		adjustCmd(opts),
	)

	return rootCmd
}

// send performs the request and prints the response body, including error
// bodies.
func send(cmd *cobra.Command, opts *rootOptions, method, path string, query url.Values, body any) error {
	_, data, err := opts.client().do(cmd.Context(), method, path, query, body)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), data)
}

func ledgerCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Ledger maintenance operations",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "consistency",
			Short: "Compare cached balances with the ledger history",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				status, data, err := opts.client().do(cmd.Context(), http.MethodGet, "/api/v1/ledger/consistency", nil, nil)
				var apiErr *apiError
				if status == http.StatusConflict && errors.As(err, &apiErr) {
					if perr := printJSON(cmd.OutOrStdout(), data); perr != nil {
						return perr
					}
					return errInconsistent
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), data)
			},
		},
		&cobra.Command{
			Use:   "repair",
			Short: "Overwrite cached balances from the latest ledger entries",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return send(cmd, opts, http.MethodPost, "/api/v1/ledger/repair", nil, nil)
			},
		},
		&cobra.Command{
			Use:   "rebuild",
			Short: "Replay every account in transaction date order",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return send(cmd, opts, http.MethodPost, "/api/v1/ledger/rebuild", nil,
					dto.OperatorRequest{PerformedBy: opts.performedBy})
			},
		},
	)

	return cmd
}

// accountPath maps "<kind> <key...>" arguments to the account URL prefix.
func accountPath(kind domain.AccountKind, args []string) (string, error) {
	switch kind {
	case domain.AccountKindCustomer:
		if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
			return "", fmt.Errorf("invalid customer id %q", args[0])
		}
		return "/api/v1/accounts/customer/" + url.PathEscape(args[0]) + "/" + url.PathEscape(args[1]), nil
	case domain.AccountKindPool:
		return "/api/v1/accounts/pool/" + url.PathEscape(args[0]), nil
	default:
		if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
			return "", fmt.Errorf("invalid bank account id %q", args[0])
		}
		return "/api/v1/accounts/bank/" + url.PathEscape(args[0]), nil
	}
}

// accountCmds builds the customer/pool/bank subcommands of balance and
// history.
func accountCmds(run func(cmd *cobra.Command, path string) error) []*cobra.Command {
	kinds := []struct {
		kind domain.AccountKind
		use  string
		args int
	}{
		{domain.AccountKindCustomer, "customer <customer-id> <currency>", 2},
		{domain.AccountKindPool, "pool <currency>", 1},
		{domain.AccountKindBank, "bank <bank-account-id>", 1},
	}

	cmds := make([]*cobra.Command, 0, len(kinds))
	for _, k := range kinds {
		cmds = append(cmds, &cobra.Command{
			Use:  k.use,
			Args: cobra.ExactArgs(k.args),
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := accountPath(k.kind, args)
				if err != nil {
					return err
				}
				return run(cmd, path)
			},
		})
	}
	return cmds
}

func balanceCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show account balances",
	}

	cmd.AddCommand(accountCmds(func(cmd *cobra.Command, path string) error {
		return send(cmd, opts, http.MethodGet, path+"/balance", nil, nil)
	})...)

	var kind string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List every balance of an account kind",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return send(cmd, opts, http.MethodGet, "/api/v1/balances", url.Values{"kind": {kind}}, nil)
		},
	}
	listCmd.Flags().StringVar(&kind, "kind", string(domain.AccountKindCustomer), "Account kind: customer, pool or bank")
	cmd.AddCommand(listCmd)

	return cmd
}

func historyCmd(opts *rootOptions) *cobra.Command {
	var (
		from, to      string
		limit, offset int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the entries of an account in transaction date order",
	}
	cmd.PersistentFlags().StringVar(&from, "from", "", "Earliest transaction date (RFC3339 or YYYY-MM-DD)")
	cmd.PersistentFlags().StringVar(&to, "to", "", "Latest transaction date (RFC3339 or YYYY-MM-DD)")
	cmd.PersistentFlags().IntVar(&limit, "limit", 50, "Page size")
	cmd.PersistentFlags().IntVar(&offset, "offset", 0, "Page offset")

	cmd.AddCommand(accountCmds(func(cmd *cobra.Command, path string) error {
		query := url.Values{}
		if from != "" {
			query.Set("from", from)
		}
		if to != "" {
			query.Set("to", to)
		}
		query.Set("limit", strconv.Itoa(limit))
		query.Set("offset", strconv.Itoa(offset))
		return send(cmd, opts, http.MethodGet, path+"/history", query, nil)
	})...)

	return cmd
}

func idArg(args []string) (int64, error) {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", args[0])
	}
	return id, nil
}

func parseAmount(name, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid --%s %q: %w", name, value, err)
	}
	return d, nil
}

func parseDate(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid --%s %q: want RFC3339 or YYYY-MM-DD", name, value)
}

// sourceCmds adds process and delete subcommands for orders or documents.
func sourceCmds(opts *rootOptions, resource string) []*cobra.Command {
	return []*cobra.Command{
		{
			Use:   "process <id>",
			Short: "Post ledger entries for an existing " + resource,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := idArg(args)
				if err != nil {
					return err
				}
				return send(cmd, opts, http.MethodPost, fmt.Sprintf("/api/v1/%ss/%d/process", resource, id), nil, nil)
			},
		},
		{
			Use:   "delete <id>",
			Short: "Soft-delete a " + resource + " and recalculate affected balances",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := idArg(args)
				if err != nil {
					return err
				}
				return send(cmd, opts, http.MethodDelete, fmt.Sprintf("/api/v1/%ss/%d", resource, id), nil, nil)
			},
		},
	}
}

func orderCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Currency exchange orders",
	}

	var (
		req                        dto.ProcessOrderRequest
		fromAmount, toAmount, rate string
		createdAt                  string
	)
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an order and post its ledger entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if req.FromAmount, err = parseAmount("from-amount", fromAmount); err != nil {
				return err
			}
			if req.ToAmount, err = parseAmount("to-amount", toAmount); err != nil {
				return err
			}
			if req.Rate, err = parseAmount("rate", rate); err != nil {
				return err
			}
			if req.CreatedAt, err = parseDate("date", createdAt); err != nil {
				return err
			}
			req.PerformedBy = opts.performedBy
			return send(cmd, opts, http.MethodPost, "/api/v1/orders", nil, req)
		},
	}
	f := createCmd.Flags()
	f.Int64Var(&req.CustomerID, "customer", 0, "Customer ID")
	f.Int64Var(&req.FromCurrencyID, "from-currency", 0, "Currency ID the customer pays in")
	f.Int64Var(&req.ToCurrencyID, "to-currency", 0, "Currency ID the customer receives")
	f.StringVar(&fromAmount, "from-amount", "", "Amount paid")
	f.StringVar(&toAmount, "to-amount", "", "Amount received")
	f.StringVar(&rate, "rate", "", "Exchange rate")
	f.StringVar(&req.Description, "description", "", "Free-text description")
	f.StringVar(&createdAt, "date", "", "Transaction date (defaults to now)")
	for _, name := range []string{"customer", "from-currency", "to-currency", "from-amount", "to-amount", "rate"} {
		_ = createCmd.MarkFlagRequired(name)
	}

	cmd.AddCommand(createCmd)
	cmd.AddCommand(sourceCmds(opts, "order")...)
	return cmd
}

func documentCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "document",
		Short: "Accounting documents",
	}

	var (
		req                                   dto.ProcessDocumentRequest
		amount, documentDate                  string
		payerCustomer, receiverCustomer       int64
		payerBankAccount, receiverBankAccount int64
	)
	optionalID := func(v int64) *int64 {
		if v == 0 {
			return nil
		}
		return &v
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an accounting document and post its ledger entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if req.Amount, err = parseAmount("amount", amount); err != nil {
				return err
			}
			if req.DocumentDate, err = parseDate("date", documentDate); err != nil {
				return err
			}
			req.PayerCustomerID = optionalID(payerCustomer)
			req.ReceiverCustomerID = optionalID(receiverCustomer)
			req.PayerBankAccountID = optionalID(payerBankAccount)
			req.ReceiverBankAccountID = optionalID(receiverBankAccount)
			req.PerformedBy = opts.performedBy
			return send(cmd, opts, http.MethodPost, "/api/v1/documents", nil, req)
		},
	}
	f := createCmd.Flags()
	f.StringVar(&amount, "amount", "", "Document amount")
	f.StringVar(&req.CurrencyCode, "currency", "", "Currency code")
	f.Int64Var(&payerCustomer, "payer-customer", 0, "Paying customer ID")
	f.Int64Var(&receiverCustomer, "receiver-customer", 0, "Receiving customer ID")
	f.Int64Var(&payerBankAccount, "payer-bank-account", 0, "Paying bank account ID")
	f.Int64Var(&receiverBankAccount, "receiver-bank-account", 0, "Receiving bank account ID")
	f.BoolVar(&req.IsVerified, "verified", false, "Mark the document as verified")
	f.StringVar(&req.Description, "description", "", "Free-text description")
	f.StringVar(&documentDate, "date", "", "Document date (defaults to now)")
	_ = createCmd.MarkFlagRequired("amount")
	_ = createCmd.MarkFlagRequired("currency")

	cmd.AddCommand(createCmd)
	cmd.AddCommand(sourceCmds(opts, "document")...)
	return cmd
}

func adjustCmd(opts *rootOptions) *cobra.Command {
	var (
		req                     dto.AdjustBalanceRequest
		amount, transactionDate string
	)

	cmd := &cobra.Command{
		Use:   "adjust",
		Short: "Post a manual adjustment to one account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if req.Amount, err = parseAmount("amount", amount); err != nil {
				return err
			}
			if req.TransactionDate, err = parseDate("date", transactionDate); err != nil {
				return err
			}
			if _, err := req.Account.ToDomain(); err != nil {
				return err
			}
			req.PerformedBy = opts.performedBy
			return send(cmd, opts, http.MethodPost, "/api/v1/adjustments", nil, req)
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Account.Kind, "kind", "", "Account kind: customer, pool or bank")
	f.Int64Var(&req.Account.CustomerID, "customer", 0, "Customer ID (customer accounts)")
	f.StringVar(&req.Account.CurrencyCode, "currency", "", "Currency code (customer and pool accounts)")
	f.Int64Var(&req.Account.BankAccountID, "bank-account", 0, "Bank account ID (bank accounts)")
	f.StringVar(&amount, "amount", "", "Signed amount")
	f.StringVar(&req.Reason, "reason", "", "Reason recorded on the entry")
	f.StringVar(&transactionDate, "date", "", "Transaction date (defaults to now)")
	f.BoolVar(&req.Correction, "correction", false, "Record as a correction instead of a manual adjustment")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("reason")

	return cmd
}
