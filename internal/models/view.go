package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"vaultsync/blockchain/types"
)

// Document is one live entry of the reconciled document index, as consumed by
// the presentation layer.
type Document struct {
	ID             types.DocumentID `json:"id"`
	ContentAddress string           `json:"content_address"`
	Description    string           `json:"description"`
	Keywords       []string         `json:"keywords"`
}

// LifecycleState is the observable state of an owner's vault.
type LifecycleState string

const (
	// LifecycleNotRegistered means the owner is unknown to the registry.
	LifecycleNotRegistered LifecycleState = "not_registered"
	LifecycleAbsent        LifecycleState = "absent"
	LifecyclePending       LifecycleState = "pending"
	LifecyclePresent       LifecycleState = "present"
)

// GrantState is the viewer's entitlement state for a vault.
type GrantState string

const (
	// GrantNotApplicable means viewer == owner; owners always see their vault.
	GrantNotApplicable   GrantState = "not_applicable"
	GrantUnpriced        GrantState = "unpriced"
	GrantAwaitingPayment GrantState = "awaiting_payment"
	GrantSubmitted       GrantState = "submitted"
	GrantGranted         GrantState = "granted"
)

// ViewModel is the reconciled snapshot handed to the presentation layer.
// Documents is nil unless the grant state allows the viewer to see them.
type ViewModel struct {
	Owner        common.Address `json:"owner"`
	Viewer       common.Address `json:"viewer"`
	Lifecycle    LifecycleState `json:"lifecycle"`
	VaultAddress common.Address `json:"vault_address"`
	Documents    []Document     `json:"documents,omitempty"`
	Grant        GrantState     `json:"grant"`
	PriceQuote   *big.Int       `json:"price_quote,omitempty"`
	TokenSymbol  string         `json:"token_symbol,omitempty"`
	VaultDeposit *big.Int       `json:"vault_deposit,omitempty"`
}

// MutationRecord is the export form of one applied mutation, published to
// the audit topic when mirroring is enabled.
type MutationRecord struct {
	SessionID      string          `json:"session_id"`
	Vault          common.Address  `json:"vault"`
	Kind           types.EventKind `json:"kind"`
	Height         uint64          `json:"height"`
	LogIndex       uint            `json:"log_index"`
	DocID          string          `json:"doc_id,omitempty"`
	ContentAddress string          `json:"content_address,omitempty"`
	Description    string          `json:"description,omitempty"`
	Keyword        string          `json:"keyword,omitempty"`
	KeywordIndex   uint32          `json:"keyword_index,omitempty"`
}
