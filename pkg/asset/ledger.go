package asset

import (
	"github.com/holiman/uint256"
	"github.com/slimebit/slimechain/pkg/types"
)

// Ledger is the surface an external payment collector consumes: committed
// reads plus visibility into the current block's staged spends. Validating
// against the committed state alone would let a transfer and a payment by
// the same principal both pass within one block, with the loser only
// surfacing at commit time.
type Ledger interface {
	SpendableBalance(principal types.Principal) (*uint256.Int, error)
	SpendableAllowance(owner, spender types.Principal) (*uint256.Int, error)
	StageSpend(spender, from types.Principal, amount *uint256.Int)
	ResetStaged()
	TransferFrom(spender, from, to types.Principal, amount *uint256.Int) error
	Save() ([]byte, int64, error)
}

var _ Ledger = (*AssetApp)(nil)
