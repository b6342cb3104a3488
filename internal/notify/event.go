package notify

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind identifies the shape of a notification payload.
type Kind string

const (
	KindTransactionSuccess Kind = "transaction_success"
	KindTransactionFailed  Kind = "transaction_failed"
	KindSyncComplete       Kind = "sync_complete"
	KindSyncFailed         Kind = "sync_failed"
	KindSecurityAlert      Kind = "security_alert"
	KindLowBalance         Kind = "low_balance"
)

func (k Kind) Valid() bool {
	switch k {
	case KindTransactionSuccess, KindTransactionFailed, KindSyncComplete,
		KindSyncFailed, KindSecurityAlert, KindLowBalance:
		return true
	}

	return false
}

// Event is a domain event that can be turned into a notification.
// The set of implementations is closed: one struct per Kind.
type Event interface {
	Kind() Kind
	title() string
	content() string
}

type TransactionSucceeded struct {
	TransactionID uuid.UUID       `json:"transactionId"`
	AccountID     uuid.UUID       `json:"accountId"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Description   string          `json:"description"`
}

func (TransactionSucceeded) Kind() Kind { return KindTransactionSuccess }

func (e TransactionSucceeded) title() string { return "Transaction recorded" }

func (e TransactionSucceeded) content() string {
	return fmt.Sprintf("%s of %s recorded: %s", e.Type, FormatAmount(e.Amount, e.Currency), e.Description)
}

type TransactionFailed struct {
	AccountID uuid.UUID `json:"accountId"`
	Reason    string    `json:"reason"`
}

func (TransactionFailed) Kind() Kind { return KindTransactionFailed }

func (e TransactionFailed) title() string { return "Transaction failed" }

func (e TransactionFailed) content() string {
	return "The transaction was not recorded: " + e.Reason
}

// SyncSource tells whether a sync pushed local data out or pulled remote data in.
type SyncSource string

const (
	SourceLocal  SyncSource = "local"
	SourceRemote SyncSource = "remote"
)

type SyncCompleted struct {
	DeviceID  string     `json:"deviceId"`
	Source    SyncSource `json:"source"`
	Timestamp time.Time  `json:"timestamp"`
}

func (SyncCompleted) Kind() Kind { return KindSyncComplete }

func (e SyncCompleted) title() string { return "Sync complete" }

func (e SyncCompleted) content() string {
	if e.Source == SourceRemote {
		return "Data received from device " + e.DeviceID
	}

	return "Local data pushed to the remote store"
}

type SyncFailed struct {
	DeviceID string `json:"deviceId"`
	Error    string `json:"error"`
}

func (SyncFailed) Kind() Kind { return KindSyncFailed }

func (e SyncFailed) title() string { return "Sync failed" }

func (e SyncFailed) content() string { return e.Error }

type SecurityAlert struct {
	TransactionID uuid.UUID       `json:"transactionId"`
	RiskLevel     string          `json:"riskLevel"`
	Reasons       []string        `json:"reasons"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
}

func (SecurityAlert) Kind() Kind { return KindSecurityAlert }

func (e SecurityAlert) title() string { return "Suspicious transaction" }

func (e SecurityAlert) content() string {
	return fmt.Sprintf("%s risk on %s: %s",
		e.RiskLevel, FormatAmount(e.Amount, e.Currency), strings.Join(e.Reasons, ", "))
}

type LowBalance struct {
	AccountID   uuid.UUID       `json:"accountId"`
	AccountName string          `json:"accountName"`
	Balance     decimal.Decimal `json:"balance"`
	Currency    string          `json:"currency"`
}

func (LowBalance) Kind() Kind { return KindLowBalance }

func (e LowBalance) title() string { return "Low balance" }

func (e LowBalance) content() string {
	return fmt.Sprintf("%s is down to %s", e.AccountName, FormatAmount(e.Balance, e.Currency))
}

// Decode rebuilds the typed event stored in a notification payload.
func Decode(kind Kind, payload []byte) (Event, error) {
	var e Event

	switch kind {
	case KindTransactionSuccess:
		e = &TransactionSucceeded{}
	case KindTransactionFailed:
		e = &TransactionFailed{}
	case KindSyncComplete:
		e = &SyncCompleted{}
	case KindSyncFailed:
		e = &SyncFailed{}
	case KindSecurityAlert:
		e = &SecurityAlert{}
	case KindLowBalance:
		e = &LowBalance{}
	default:
		return nil, fmt.Errorf("unknown notification kind %q", kind)
	}

	if err := json.Unmarshal(payload, e); err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", kind, err)
	}

	return e, nil
}

// FormatAmount renders amount in the currency's display format, e.g. "$1,234.50".
// Unknown currency codes fall back to the plain decimal followed by the code.
func FormatAmount(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return amount.StringFixed(2) + " " + currency
	}

	minor := amount.Shift(int32(cur.Fraction)).Round(0).IntPart()

	return money.New(minor, cur.Code).Display()
}
