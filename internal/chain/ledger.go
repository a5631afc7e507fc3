// Package chain provides the ledger clients the social data layer reads from and submits to.
package chain

import (
	"context"

	"github.com/R3E-Network/ledgerfeed/internal/ledger"
)

// Ledger is the network collaborator: raw account reads and confirmed submissions.
type Ledger interface {
	// Fetch returns the bytes stored at addr, or an errors.NotFound error.
	Fetch(ctx context.Context, addr ledger.Address) ([]byte, error)
	// FetchBatch returns one slot per address in order; a nil slot means absent.
	FetchBatch(ctx context.Context, addrs []ledger.Address) ([][]byte, error)
	// Submit sends ix signed by signer and blocks until it is confirmed or fails.
	Submit(ctx context.Context, ix ledger.Instruction, signer ledger.Identity) (*Confirmation, error)
}

// Confirmation describes a confirmed submission.
type Confirmation struct {
	Signature string `json:"signature"`
	Slot      uint64 `json:"slot"`
	BlockTime int64  `json:"block_time,omitempty"`
}

// Commitment levels, weakest first.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

func commitmentRank(c string) int {
	switch c {
	case CommitmentProcessed:
		return 1
	case CommitmentConfirmed:
		return 2
	case CommitmentFinalized:
		return 3
	default:
		return 0
	}
}

// reaches reports whether an observed commitment satisfies the wanted one.
func reaches(observed, wanted string) bool {
	return commitmentRank(observed) >= commitmentRank(wanted) && commitmentRank(observed) > 0
}
