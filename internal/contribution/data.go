// Package contribution implements the durable, resumable pipeline that
// moves BAT from a user to publishers: one-time tips, recurring
// subscriptions, and weight-proportional auto-contribution.
package contribution

import (
	"database/sql"
	"time"
)

// Type is the policy under which a Contribution was created.
type Type string

const (
	TypeOneTime        Type = "one-time"
	TypeRecurring      Type = "recurring"
	TypeAutoContribute Type = "auto-contribute"
)

// StringifyType and ParseType round-trip Type through its persisted string
// form; parsing a stringified value always yields the value back.
func StringifyType(t Type) string { return string(t) }

func ParseType(s string) (Type, bool) {
	switch Type(s) {
	case TypeOneTime, TypeRecurring, TypeAutoContribute:
		return Type(s), true
	default:
		return "", false
	}
}

// Source is the funding source a Contribution draws from.
type Source string

const (
	SourceVGTokens        Source = "vg-tokens"
	SourceSKUTokens       Source = "sku-tokens"
	SourceExternalWallet  Source = "external-wallet"
)

func StringifySource(s Source) string { return string(s) }

func ParseSource(s string) (Source, bool) {
	switch Source(s) {
	case SourceVGTokens, SourceSKUTokens, SourceExternalWallet:
		return Source(s), true
	default:
		return "", false
	}
}

// TokenType distinguishes the two token pools a ContributionToken can
// belong to.
type TokenType string

const (
	TokenTypeVG  TokenType = "vg"
	TokenTypeSKU TokenType = "sku"
)

// VoteType is derived from a Contribution's Type when redeeming SKU tokens.
type VoteType string

const (
	VoteTypeOneOffTip      VoteType = "one-off-tip"
	VoteTypeRecurringTip   VoteType = "recurring-tip"
	VoteTypeAutoContribute VoteType = "auto-contribute"
)

// VoteTypeFor maps a Contribution Type to its PostPublisherVotes vote type.
func VoteTypeFor(t Type) VoteType {
	switch t {
	case TypeOneTime:
		return VoteTypeOneOffTip
	case TypeRecurring:
		return VoteTypeRecurringTip
	default:
		return VoteTypeAutoContribute
	}
}

// VoteValue is the fixed per-token value of every SKU/VG token, in BAT.
const VoteValue = 0.25

// ExternalFeeRate is the fixed contribution fee taken on external-wallet
// transfers.
const ExternalFeeRate = 0.05

// Contribution is the unit of value movement persisted to the `contribution`
// table only on success. Immutable once constructed by the Router.
type Contribution struct {
	ID                     string    `gorm:"column:contribution_id;primaryKey"`
	ContributionType       string    `gorm:"column:contribution_type"`
	PublisherID            string    `gorm:"column:publisher_id"`
	Amount                 float64   `gorm:"column:amount"`
	Source                 string    `gorm:"column:source"`
	ExternalProvider       sql.NullString `gorm:"column:external_provider"`
	ExternalTransactionID  sql.NullString `gorm:"column:external_transaction_id"`
	CompletedAt            time.Time `gorm:"column:completed_at"`
}

func (Contribution) TableName() string { return "contribution" }

// ContributionToken is a single unblinded voucher of fixed VoteValue.
type ContributionToken struct {
	ID              int64          `gorm:"column:id;primaryKey;autoIncrement"`
	Value           float64        `gorm:"column:value"`
	UnblindedToken  string         `gorm:"column:unblinded_token"`
	PublicKey       string         `gorm:"column:public_key"`
	TokenType       string         `gorm:"column:token_type"`
	ReservedFor     sql.NullString `gorm:"column:reserved_for"`
	RedeemedAt      sql.NullTime   `gorm:"column:redeemed_at"`
}

func (ContributionToken) TableName() string { return "contribution_token" }

// TokenHold is a non-transferable, splittable reservation of tokens against
// a job. GetTotalValue and Split mirror the source's ContributionTokenHold.
type TokenHold struct {
	Tokens []ContributionToken
}

func (h TokenHold) GetTotalValue() float64 {
	var total float64
	for _, t := range h.Tokens {
		total += t.Value
	}
	return total
}

// Split removes n tokens from the hold and returns a new hold owning them.
// It panics if n exceeds the number of tokens held, since every caller
// computes n from state it just persisted (a violated precondition here is
// a programming error, not a runtime condition to recover from).
func (h *TokenHold) Split(n int) TokenHold {
	if n > len(h.Tokens) {
		panic("contribution: split count exceeds held tokens")
	}
	split := TokenHold{Tokens: append([]ContributionToken(nil), h.Tokens[:n]...)}
	h.Tokens = h.Tokens[n:]
	return split
}

// PublisherActivity accumulates visits until reset at each scheduler tick.
type PublisherActivity struct {
	PublisherID           string  `gorm:"column:publisher_id;primaryKey"`
	AutoContributeEnabled bool    `gorm:"column:auto_contribute_enabled"`
	RecurringAmount       float64 `gorm:"column:recurring_amount"`
	Visits                int     `gorm:"column:visits"`
	Duration              float64 `gorm:"column:duration"`
}

func (PublisherActivity) TableName() string { return "contribution_publisher" }

// RecurringContribution is a (publisher, per-cycle amount) pair upserted by
// the user and read by the scheduler.
type RecurringContribution struct {
	PublisherID string
	Amount      float64
}

// PendingContribution is a contribution awaiting a still-unverified
// publisher; it expires 90 days after CreatedAt, on read.
type PendingContribution struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	PublisherID string    `gorm:"column:publisher_id"`
	Amount      float64   `gorm:"column:amount"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (PendingContribution) TableName() string { return "pending_contribution" }

const PendingContributionTTL = 90 * 24 * time.Hour

// DictionaryEntry backs the misc.-singletons `dictionary` table.
type DictionaryEntry struct {
	Key   string `gorm:"column:key;primaryKey"`
	Value string `gorm:"column:value"`
}

func (DictionaryEntry) TableName() string { return "dictionary" }

const DictLastScheduledContribution = "last-scheduled-contribution"

// ExternalWalletProvider names the wallet the user has connected.
type ExternalWalletProvider string

const (
	ProviderUphold   ExternalWalletProvider = "uphold"
	ProviderGemini   ExternalWalletProvider = "gemini"
	ProviderBitflyer ExternalWalletProvider = "bitflyer"
)

// ExternalWallet is supplied by the external-wallet collaborator; the core
// never stores it.
type ExternalWallet struct {
	Provider    ExternalWalletProvider
	Address     string
	AccessToken string
}

// TransferResult is returned by ExternalWalletManager.TransferBAT.
type TransferResult struct {
	Provider ExternalWalletProvider
	TxID     string
}

// Result distinguishes "did the work and it succeeded" from "the work
// wasn't needed" (insufficient funds, user opted out).
// Jobs whose caller must observe this distinction resolve a
// core.Future[Result] rather than core.Future[bool].
type Result struct {
	Success bool
	Noop    bool
}

func Ok() Result       { return Result{Success: true} }
func OkNoop() Result   { return Result{Success: true, Noop: true} }
func Failed() Result   { return Result{Success: false} }
