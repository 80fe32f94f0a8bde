package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a journal reference is unknown.
var ErrNotFound = errors.New("store: journal record not found")

// TxKind names the user intent behind a submitted transaction.
type TxKind string

const (
	KindCreateVault    TxKind = "create_vault"
	KindAddDocument    TxKind = "add_document"
	KindRemoveDocument TxKind = "remove_document"
	KindAddKeyword     TxKind = "add_keyword"
	KindSetPrice       TxKind = "set_price"
	KindRequestAccess  TxKind = "request_access"
)

// Status is the journal status of a submitted transaction.
type Status string

const (
	StatusSubmitted Status = "SUBMITTED"
	StatusConfirmed Status = "CONFIRMED"
	StatusFailed    Status = "FAILED"
)

// Record is one journaled transaction.
type Record struct {
	Ref       string
	Kind      TxKind
	TxHash    string
	Status    Status
	Height    uint64
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TxJournal records the progress of every state-changing submission so
// operators can audit what a session did and recover context after a crash.
// The journal is observational: state machines never read it to make
// decisions.
type TxJournal interface {
	// RecordSubmitted inserts a new journal row in SUBMITTED status.
	RecordSubmitted(ctx context.Context, ref string, kind TxKind, txHash string) error

	// MarkConfirmed moves a row to CONFIRMED with the inclusion height.
	MarkConfirmed(ctx context.Context, ref string, height uint64) error

	// MarkFailed moves a row to FAILED with the failure reason.
	MarkFailed(ctx context.Context, ref string, reason string) error

	// Get returns the journal row for a reference.
	Get(ctx context.Context, ref string) (*Record, error)

	// Close releases the journal's resources.
	Close()
}
