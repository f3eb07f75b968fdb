package asset

import (
	"github.com/holiman/uint256"
	"github.com/slimebit/slimechain/internal/datastore"
	"github.com/slimebit/slimechain/pkg/proof"
	"github.com/slimebit/slimechain/pkg/types"
	assettypes "github.com/slimebit/slimechain/pkg/types/asset"
)

// Repository is the fungible ledger surface over committed state. External
// consumers that must also see in-block staged spends go through Ledger
// instead.
type Repository interface {
	datastore.BaseRepository
	IsSeeded() (bool, error)
	Seed(info assettypes.Info, treasury types.Principal) error
	Info() (assettypes.Info, error)
	BalanceOf(principal types.Principal) (*uint256.Int, error)
	BalanceWithProof(principal types.Principal) (proof.ItemWithProof[uint256.Int], error)
	Allowance(owner, spender types.Principal) (*uint256.Int, error)
	Approve(owner, spender types.Principal, amount *uint256.Int) error
	Transfer(from, to types.Principal, amount *uint256.Int) error
	TransferFrom(spender, from, to types.Principal, amount *uint256.Int) error
}
