package token

import (
	"testing"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/cosmos/iavl"
	"github.com/holiman/uint256"
	"github.com/slimebit/slimechain/pkg/types"
	tokentypes "github.com/slimebit/slimechain/pkg/types/token"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *MerkleRepository {
	t.Helper()

	tree, err := iavl.NewMutableTree(dbm.NewMemDB(), treeCacheSize, false)
	require.NoErrorf(t, err, "failed to create tree: %v", err)

	repo := NewMerkleRepository(tree)

	genesis := testGenesis()
	require.NoError(t, repo.InitGenesis(genesis.Owner, genesis.Collection, genesis.Sale))

	return repo
}

func TestInitGenesis(t *testing.T) {
	tree, err := iavl.NewMutableTree(dbm.NewMemDB(), treeCacheSize, false)
	require.NoErrorf(t, err, "failed to create tree: %v", err)

	repo := NewMerkleRepository(tree)

	initialized, err := repo.Initialized()
	require.NoError(t, err)
	require.False(t, initialized)

	genesis := testGenesis()
	require.NoError(t, repo.InitGenesis(genesis.Owner, genesis.Collection, genesis.Sale))

	initialized, err = repo.Initialized()
	require.NoError(t, err)
	require.True(t, initialized)

	owner, err := repo.Owner()
	require.NoError(t, err)
	require.Equal(t, principalOwner, owner)

	collection, err := repo.Collection()
	require.NoError(t, err)
	require.Equal(t, genesis.Collection, collection)

	cfg, err := repo.SaleConfig()
	require.NoError(t, err)
	require.Equal(t, genesis.Sale, cfg)

	minted, err := repo.Minted()
	require.NoError(t, err)
	require.Zero(t, minted)
}

func TestAllocateKeepsCountersInLockstep(t *testing.T) {
	repo := newTestRepository(t)

	require.NoError(t, repo.Allocate(principalAlice, []uint64{1, 2}))
	require.NoError(t, repo.Allocate(principalBob, []uint64{3}))

	minted, err := repo.Minted()
	require.NoError(t, err)
	require.EqualValues(t, 3, minted)

	circulating, err := repo.Circulating()
	require.NoError(t, err)
	require.EqualValues(t, 3, circulating)

	balance, err := repo.BalanceOf(principalAlice)
	require.NoError(t, err)
	require.EqualValues(t, 2, balance)

	item, err := repo.Item(2)
	require.NoError(t, err)
	require.Equal(t, principalAlice, item.Owner)
	require.False(t, item.Burned)

	wallet, err := repo.WalletOf(principalAlice)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2}, wallet)

	wallet, err = repo.WalletOf(principalBob)
	require.NoError(t, err)
	require.Equal(t, []uint64{3}, wallet)
}

func TestBurnRemovesItemFromView(t *testing.T) {
	repo := newTestRepository(t)

	require.NoError(t, repo.Allocate(principalAlice, []uint64{1, 2, 3}))
	require.NoError(t, repo.Burn(2))

	_, err := repo.Item(2)
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, repo.Burn(2), ErrNotFound)

	balance, err := repo.BalanceOf(principalAlice)
	require.NoError(t, err)
	require.EqualValues(t, 2, balance)

	wallet, err := repo.WalletOf(principalAlice)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 3}, wallet)

	// Minted is monotonic; only circulating shrinks
	minted, err := repo.Minted()
	require.NoError(t, err)
	require.EqualValues(t, 3, minted)

	circulating, err := repo.Circulating()
	require.NoError(t, err)
	require.EqualValues(t, 2, circulating)
}

func TestItemUnknownId(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.Item(99)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestWalletOfEmpty(t *testing.T) {
	repo := newTestRepository(t)

	wallet, err := repo.WalletOf(principalAlice)
	require.NoError(t, err)
	require.Empty(t, wallet)
}

func TestRolesRoundTrip(t *testing.T) {
	repo := newTestRepository(t)

	roles, err := repo.Roles(principalAlice)
	require.NoError(t, err)
	require.Empty(t, roles)

	require.NoError(t, repo.SetRoles(principalAlice, tokentypes.RoleSet{tokentypes.RoleAdmin, tokentypes.RoleMinter}))

	roles, err = repo.Roles(principalAlice)
	require.NoError(t, err)
	require.True(t, roles.Has(tokentypes.RoleAdmin))
	require.True(t, roles.Has(tokentypes.RoleMinter))

	// An empty set removes the record entirely
	require.NoError(t, repo.SetRoles(principalAlice, tokentypes.RoleSet{}))

	roles, err = repo.Roles(principalAlice)
	require.NoError(t, err)
	require.Empty(t, roles)
}

func TestWhitelistRoundTrip(t *testing.T) {
	repo := newTestRepository(t)

	whitelisted, err := repo.Whitelisted(principalAlice)
	require.NoError(t, err)
	require.False(t, whitelisted)

	require.NoError(t, repo.SetWhitelisted(principalAlice, true))

	whitelisted, err = repo.Whitelisted(principalAlice)
	require.NoError(t, err)
	require.True(t, whitelisted)

	require.NoError(t, repo.SetWhitelisted(principalAlice, false))

	whitelisted, err = repo.Whitelisted(principalAlice)
	require.NoError(t, err)
	require.False(t, whitelisted)
}

func TestCustodianBalanceRoundTrip(t *testing.T) {
	repo := newTestRepository(t)

	balance, err := repo.CustodianBalance()
	require.NoError(t, err)
	require.True(t, balance.IsZero())

	require.NoError(t, repo.SetCustodianBalance(uint256.NewInt(1234)))

	balance, err = repo.CustodianBalance()
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(1234), balance)
}

func TestItemWithProof(t *testing.T) {
	repo := newTestRepository(t)

	require.NoError(t, repo.Allocate(principalAlice, []uint64{1}))

	_, _, err := repo.Save()
	require.NoError(t, err)

	item, err := repo.ItemWithProof(1)
	require.NoError(t, err)
	require.NotNil(t, item.Item)
	require.Equal(t, principalAlice, item.Item.Owner)
	require.NotNil(t, item.ProofOp)

	// Absent ids yield a non-membership proof, not an error
	missing, err := repo.ItemWithProof(42)
	require.NoError(t, err)
	require.Nil(t, missing.Item)
	require.NotNil(t, missing.ProofOp)
}

func TestWalletOfUnaffectedBySiblingPrincipals(t *testing.T) {
	repo := newTestRepository(t)

	// "al" is a prefix of "alice"; range scans must not bleed across
	require.NoError(t, repo.Allocate(types.Principal("al"), []uint64{1}))
	require.NoError(t, repo.Allocate(principalAlice, []uint64{2}))

	wallet, err := repo.WalletOf(types.Principal("al"))
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, wallet)

	wallet, err = repo.WalletOf(principalAlice)
	require.NoError(t, err)
	require.Equal(t, []uint64{2}, wallet)
}

func TestWalletOfPrincipalContainingSeparator(t *testing.T) {
	repo := newTestRepository(t)

	// A "/" inside a principal must not place its keys in another
	// principal's range
	require.NoError(t, repo.Allocate(types.Principal("alice/x"), []uint64{1}))
	require.NoError(t, repo.Allocate(principalAlice, []uint64{2}))

	wallet, err := repo.WalletOf(principalAlice)
	require.NoError(t, err)
	require.Equal(t, []uint64{2}, wallet)

	wallet, err = repo.WalletOf(types.Principal("alice/x"))
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, wallet)
}
