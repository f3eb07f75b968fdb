package token

import (
	"github.com/holiman/uint256"
	"github.com/slimebit/slimechain/internal/datastore"
	"github.com/slimebit/slimechain/pkg/proof"
	"github.com/slimebit/slimechain/pkg/types"
	tokentypes "github.com/slimebit/slimechain/pkg/types/token"
)

// Repository is the registry's bookkeeping surface. The item map, the wallet
// index and the balance counters are kept in lockstep by Allocate and Burn;
// callers never mutate them separately.
type Repository interface {
	datastore.BaseRepository

	Initialized() (bool, error)
	InitGenesis(owner types.Principal, collection tokentypes.CollectionInfo, cfg tokentypes.SaleConfig) error

	Owner() (types.Principal, error)
	Collection() (tokentypes.CollectionInfo, error)
	SaleConfig() (tokentypes.SaleConfig, error)
	SetSaleConfig(cfg tokentypes.SaleConfig) error

	// Minted is the total ever minted (also the highest assigned id); it
	// never decreases. Circulating is minted minus burned.
	Minted() (uint64, error)
	Circulating() (uint64, error)

	Item(id uint64) (tokentypes.Item, error)
	ItemWithProof(id uint64) (proof.ItemWithProof[tokentypes.Item], error)
	Allocate(owner types.Principal, ids []uint64) error
	Burn(id uint64) error
	BalanceOf(principal types.Principal) (uint64, error)
	WalletOf(principal types.Principal) ([]uint64, error)

	Roles(principal types.Principal) (tokentypes.RoleSet, error)
	SetRoles(principal types.Principal, roles tokentypes.RoleSet) error
	Whitelisted(principal types.Principal) (bool, error)
	SetWhitelisted(principal types.Principal, whitelisted bool) error

	CustodianBalance() (*uint256.Int, error)
	SetCustodianBalance(balance *uint256.Int) error
}
