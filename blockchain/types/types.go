package types

import (
	"encoding/hex"

	"github.com/ethereum/go-ethereum/common"
)

// DocumentID is the fixed-width key a document is stored under on-chain.
// It is the sha2-256 digest of the document payload, i.e. a content address
// with its two-byte multihash prefix stripped (see the codec package).
type DocumentID [32]byte

// Hex returns the 0x-prefixed hexadecimal form used in ledger calls and logs.
func (id DocumentID) Hex() string {
	return "0x" + hex.EncodeToString(id[:])
}

// IsZero reports whether the ID is the all-zero value.
func (id DocumentID) IsZero() bool {
	return id == DocumentID{}
}

// EventKind identifies the ledger event a mutation was decoded from.
type EventKind string

const (
	VaultCreated    EventKind = "VaultCreated"
	DocumentAdded   EventKind = "DocumentAdded"
	DocumentRemoved EventKind = "DocumentRemoved"
	KeywordAdded    EventKind = "KeywordAdded"
)

// OrderKey is the canonical total order over ledger events: block height
// first, log index within the block as tiebreaker. It is the deduplication
// key for the replay/live merge.
type OrderKey struct {
	Height   uint64
	LogIndex uint
}

// Less reports whether k is ordered strictly before other.
func (k OrderKey) Less(other OrderKey) bool {
	if k.Height != other.Height {
		return k.Height < other.Height
	}
	return k.LogIndex < other.LogIndex
}

// Event is a decoded ledger event. Only the fields relevant for the decoded
// Kind are populated; the rest stay zero.
type Event struct {
	Kind     EventKind
	Height   uint64
	LogIndex uint

	// VaultCreated
	Owner common.Address
	Vault common.Address

	// DocumentAdded / DocumentRemoved / KeywordAdded
	DocID        DocumentID
	Description  string
	Keyword      string
	KeywordIndex uint32
}

// OrderKey returns the event's position in the canonical total order.
func (e Event) OrderKey() OrderKey {
	return OrderKey{Height: e.Height, LogIndex: e.LogIndex}
}

// TxStage is one step of a state-changing ledger submission.
type TxStage string

const (
	// StageSubmitted means the transaction hash has been acknowledged by the node.
	StageSubmitted TxStage = "submitted"
	// StageReceived means a receipt exists, i.e. the transaction was mined.
	StageReceived TxStage = "received"
	// StageConfirmed means the required number of confirmations was observed.
	StageConfirmed TxStage = "confirmed"
	// StageFailed means the submission was rejected, reverted or timed out.
	StageFailed TxStage = "failed"
)

// TxUpdate is one element of the ordered progress stream a send produces.
// The stream always terminates with StageConfirmed or StageFailed; errors are
// carried in-stream so callers observe a single ordered sequence of
// {submitted, received, confirmed, failed}.
type TxUpdate struct {
	Stage         TxStage
	TxHash        common.Hash
	Height        uint64
	Confirmations uint64
	Err           error
}

// Terminal reports whether the update ends its stream.
func (u TxUpdate) Terminal() bool {
	return u.Stage == StageConfirmed || u.Stage == StageFailed
}
