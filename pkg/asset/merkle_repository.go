package asset

import (
	"encoding/json"
	"net/url"

	"github.com/cometbft/cometbft/libs/sync"
	"github.com/cosmos/iavl"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/slimebit/slimechain/pkg/proof"
	"github.com/slimebit/slimechain/pkg/types"
	assettypes "github.com/slimebit/slimechain/pkg/types/asset"
)

type MerkleRepository struct {
	tree *iavl.MutableTree
	mu   sync.Mutex
}

const (
	metaPrefix      = "meta/"
	balancePrefix   = "balance/"
	allowancePrefix = "allowance/"
)

var _ Repository = (*MerkleRepository)(nil)

var (
	ErrNotSeeded             = errors.New("asset ledger not seeded")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

func NewMerkleRepository(tree *iavl.MutableTree) *MerkleRepository {
	return &MerkleRepository{
		tree: tree,
		mu:   sync.Mutex{},
	}
}

func (r *MerkleRepository) LoadLatest() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.tree.Load()
}

func (r *MerkleRepository) LoadVersion(version int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.tree.LoadVersion(version)
	return err
}

func (r *MerkleRepository) Rollback() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tree.Rollback()
}

func (r *MerkleRepository) Hash() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.tree.Hash()
}

func (r *MerkleRepository) Save() ([]byte, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.tree.SaveVersion()
}

func (r *MerkleRepository) IsSeeded() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.tree.Has(bz(metaPrefix + "seeded"))
}

func (r *MerkleRepository) Seed(info assettypes.Info, treasury types.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	marshalled, err := json.Marshal(info)
	if err != nil {
		return err
	}

	if _, err := r.tree.Set(bz(metaPrefix+"info"), marshalled); err != nil {
		return err
	}

	if err := r.setBalance(treasury, info.Supply); err != nil {
		return err
	}

	_, err = r.tree.Set(bz(metaPrefix+"seeded"), bz("true"))
	return err
}

func (r *MerkleRepository) Info() (assettypes.Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bytes, err := r.tree.Get(bz(metaPrefix + "info"))
	if err != nil {
		return assettypes.Info{}, err
	}

	if bytes == nil {
		return assettypes.Info{}, ErrNotSeeded
	}

	var info assettypes.Info
	if err := json.Unmarshal(bytes, &info); err != nil {
		return assettypes.Info{}, err
	}

	return info, nil
}

func (r *MerkleRepository) BalanceOf(principal types.Principal) (*uint256.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.balanceOf(principal)
}

func (r *MerkleRepository) BalanceWithProof(principal types.Principal) (proof.ItemWithProof[uint256.Int], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := bz(balancePrefix + principal.String())
	index, bytes, err := r.tree.GetWithIndex(key)
	if err != nil {
		return proof.ItemWithProof[uint256.Int]{}, err
	}

	proofOp, err := proof.ProofOpForTree(r.tree, key)
	if err != nil {
		return proof.ItemWithProof[uint256.Int]{}, err
	}

	// Key absent: zero balance, non-membership proof
	if bytes == nil {
		return proof.ItemWithProof[uint256.Int]{
			Item:    nil,
			Index:   index,
			Height:  proof.GetProofHeight(r.tree),
			ProofOp: proofOp,
		}, nil
	}

	var balance uint256.Int
	if err := json.Unmarshal(bytes, &balance); err != nil {
		return proof.ItemWithProof[uint256.Int]{}, err
	}

	return proof.ItemWithProof[uint256.Int]{
		Item:    &balance,
		Index:   index,
		Height:  proof.GetProofHeight(r.tree),
		ProofOp: proofOp,
	}, nil
}

func (r *MerkleRepository) Allowance(owner, spender types.Principal) (*uint256.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.allowance(owner, spender)
}

func (r *MerkleRepository) Approve(owner, spender types.Principal, amount *uint256.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.setAllowance(owner, spender, amount)
}

func (r *MerkleRepository) Transfer(from, to types.Principal, amount *uint256.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.transfer(from, to, amount)
}

// TransferFrom moves amount from `from` to `to`, spending the allowance
// granted by `from` to `spender`. Allowance is checked and decremented
// before the balance moves.
func (r *MerkleRepository) TransferFrom(spender, from, to types.Principal, amount *uint256.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	allowance, err := r.allowance(from, spender)
	if err != nil {
		return err
	}

	if allowance.Lt(amount) {
		return ErrInsufficientAllowance
	}

	if err := r.transfer(from, to, amount); err != nil {
		return err
	}

	return r.setAllowance(from, spender, new(uint256.Int).Sub(allowance, amount))
}

func (r *MerkleRepository) balanceOf(principal types.Principal) (*uint256.Int, error) {
	bytes, err := r.tree.Get(bz(balancePrefix + principal.String()))
	if err != nil {
		return nil, err
	}

	if bytes == nil {
		return uint256.NewInt(0), nil
	}

	balance := new(uint256.Int)
	if err := json.Unmarshal(bytes, balance); err != nil {
		return nil, err
	}

	return balance, nil
}

func (r *MerkleRepository) setBalance(principal types.Principal, balance *uint256.Int) error {
	marshalled, err := json.Marshal(balance)
	if err != nil {
		return err
	}

	_, err = r.tree.Set(bz(balancePrefix+principal.String()), marshalled)
	return err
}

func (r *MerkleRepository) allowance(owner, spender types.Principal) (*uint256.Int, error) {
	bytes, err := r.tree.Get(allowanceKey(owner, spender))
	if err != nil {
		return nil, err
	}

	if bytes == nil {
		return uint256.NewInt(0), nil
	}

	allowance := new(uint256.Int)
	if err := json.Unmarshal(bytes, allowance); err != nil {
		return nil, err
	}

	return allowance, nil
}

func (r *MerkleRepository) setAllowance(owner, spender types.Principal, amount *uint256.Int) error {
	marshalled, err := json.Marshal(amount)
	if err != nil {
		return err
	}

	_, err = r.tree.Set(allowanceKey(owner, spender), marshalled)
	return err
}

func (r *MerkleRepository) transfer(from, to types.Principal, amount *uint256.Int) error {
	fromBalance, err := r.balanceOf(from)
	if err != nil {
		return err
	}

	if fromBalance.Lt(amount) {
		return ErrInsufficientBalance
	}

	// A self-transfer is balance-neutral. Writing both legs would credit
	// the pre-debit balance and conjure funds out of nothing.
	if from == to {
		return nil
	}

	toBalance, err := r.balanceOf(to)
	if err != nil {
		return err
	}

	if err := r.setBalance(from, new(uint256.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}

	return r.setBalance(to, new(uint256.Int).Add(toBalance, amount))
}

// Principals are opaque strings, so each segment is escaped to stop a "/"
// inside one principal from aliasing another pair's key.
func allowanceKey(owner, spender types.Principal) []byte {
	return bz(allowancePrefix + url.PathEscape(owner.String()) + "/" + url.PathEscape(spender.String()))
}

func bz(s string) []byte {
	return []byte(s)
}
