package blockchain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"vaultsync/blockchain/types"
)

// RequiredConfirmations is the number of confirmations after which a
// state-changing submission is treated as final.
const RequiredConfirmations = 1

// LedgerClient defines the generic interface for ledger interactions.
// This interface is chain-agnostic; the ethereum implementation is the only
// one wired today, but the factory keeps the seam for others.
type LedgerClient interface {
	// CurrentHeight returns the latest block height known to the node.
	CurrentHeight(ctx context.Context) (uint64, error)

	// VaultAddress returns the deployed vault address for an owner, or the
	// zero address if the owner has no vault.
	VaultAddress(ctx context.Context, owner common.Address) (common.Address, error)

	// IsOwnerRegistered reports whether the owner is a registered, active
	// member of the organization behind the vault registry.
	IsOwnerRegistered(ctx context.Context, owner common.Address) (bool, error)

	// AccessPrice returns the price an owner configured for vault access,
	// or nil if the owner never opened paid access.
	AccessPrice(ctx context.Context, owner common.Address) (*big.Int, error)

	// HasAccess reports whether viewer already holds a paid access grant for
	// owner's vault.
	HasAccess(ctx context.Context, viewer, owner common.Address) (bool, error)

	// TokenSymbol returns the display symbol of the payment token.
	TokenSymbol(ctx context.Context) (string, error)

	// VaultDeposit returns the deposit an owner locks when creating a vault.
	VaultDeposit(ctx context.Context) (*big.Int, error)

	// PastVaultEvents replays the document events of a vault over the block
	// range [from, to], ordered by (height, log index).
	PastVaultEvents(ctx context.Context, vault common.Address, from, to uint64) ([]types.Event, error)

	// SubscribeVaultEvents starts a live subscription to a vault's document
	// events and returns, together with the channel, the block height
	// observed at the moment the subscription was established. Replaying
	// [0, boundary] and consuming the channel covers the full history with
	// overlap but no gap; the overlap must be suppressed by order key.
	// The channel closes when ctx is cancelled or the subscription drops.
	SubscribeVaultEvents(ctx context.Context, vault common.Address) (<-chan types.Event, uint64, error)

	// SubscribeVaultCreated starts a live subscription to vault creation
	// events for a single owner.
	SubscribeVaultCreated(ctx context.Context, owner common.Address) (<-chan types.Event, error)

	// CreateVault submits the vault creation transaction for the signing
	// account. The returned stream reports progress and terminates with
	// StageConfirmed or StageFailed.
	CreateVault(ctx context.Context) (<-chan types.TxUpdate, error)

	// AddDocument registers a document under its on-chain ID.
	AddDocument(ctx context.Context, id types.DocumentID, description string, keywords []string) (<-chan types.TxUpdate, error)

	// RemoveDocument tombstones a document. History is retained on-chain.
	RemoveDocument(ctx context.Context, id types.DocumentID) (<-chan types.TxUpdate, error)

	// AddKeyword appends a keyword to an existing document.
	AddKeyword(ctx context.Context, id types.DocumentID, keyword string) (<-chan types.TxUpdate, error)

	// SetAccessPrice opens paid access to the signing account's vault at the
	// given token price.
	SetAccessPrice(ctx context.Context, price *big.Int) (<-chan types.TxUpdate, error)

	// RequestAccess pays the configured price to gain access to owner's
	// vault. The payment is one-time; a confirmed stream means the grant is
	// recorded on-ledger.
	RequestAccess(ctx context.Context, owner common.Address, price *big.Int) (<-chan types.TxUpdate, error)

	// Close closes the ledger client and releases resources.
	Close() error
}
