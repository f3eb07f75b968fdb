package token

import (
	"encoding/binary"
	"encoding/json"
	"net/url"

	"github.com/cometbft/cometbft/libs/sync"
	"github.com/cosmos/iavl"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/slimebit/slimechain/pkg/proof"
	"github.com/slimebit/slimechain/pkg/types"
	tokentypes "github.com/slimebit/slimechain/pkg/types/token"
)

type MerkleRepository struct {
	tree *iavl.MutableTree
	mu   sync.Mutex
}

const (
	metaPrefix      = "meta/"
	configKey       = "config/sale"
	itemPrefix      = "item/"
	balancePrefix   = "balance/"
	walletPrefix    = "wallet/"
	rolePrefix      = "role/"
	whitelistPrefix = "whitelist/"
)

var _ Repository = (*MerkleRepository)(nil)

var (
	ErrNotFound       = errors.New("item not found")
	ErrNotInitialized = errors.New("registry not initialized")
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

func (r *MerkleRepository) Initialized() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.tree.Has(bz(metaPrefix + "owner"))
}

func (r *MerkleRepository) InitGenesis(owner types.Principal, collection tokentypes.CollectionInfo, cfg tokentypes.SaleConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.tree.Set(bz(metaPrefix+"owner"), owner.Bytes()); err != nil {
		return err
	}

	marshalled, err := json.Marshal(collection)
	if err != nil {
		return err
	}

	if _, err := r.tree.Set(bz(metaPrefix+"collection"), marshalled); err != nil {
		return err
	}

	return r.setSaleConfig(cfg)
}

func (r *MerkleRepository) Owner() (types.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bytes, err := r.tree.Get(bz(metaPrefix + "owner"))
	if err != nil {
		return "", err
	}

	if bytes == nil {
		return "", ErrNotInitialized
	}

	return types.Principal(bytes), nil
}

func (r *MerkleRepository) Collection() (tokentypes.CollectionInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bytes, err := r.tree.Get(bz(metaPrefix + "collection"))
	if err != nil {
		return tokentypes.CollectionInfo{}, err
	}

	if bytes == nil {
		return tokentypes.CollectionInfo{}, ErrNotInitialized
	}

	var collection tokentypes.CollectionInfo
	if err := json.Unmarshal(bytes, &collection); err != nil {
		return tokentypes.CollectionInfo{}, err
	}

	return collection, nil
}

func (r *MerkleRepository) SaleConfig() (tokentypes.SaleConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bytes, err := r.tree.Get(bz(configKey))
	if err != nil {
		return tokentypes.SaleConfig{}, err
	}

	if bytes == nil {
		return tokentypes.SaleConfig{}, ErrNotInitialized
	}

	var cfg tokentypes.SaleConfig
	if err := json.Unmarshal(bytes, &cfg); err != nil {
		return tokentypes.SaleConfig{}, err
	}

	return cfg, nil
}

func (r *MerkleRepository) SetSaleConfig(cfg tokentypes.SaleConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.setSaleConfig(cfg)
}

func (r *MerkleRepository) Minted() (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.counter(metaPrefix + "minted")
}

func (r *MerkleRepository) Circulating() (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.counter(metaPrefix + "circulating")
}

func (r *MerkleRepository) Item(id uint64) (tokentypes.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.item(id)
}

func (r *MerkleRepository) ItemWithProof(id uint64) (proof.ItemWithProof[tokentypes.Item], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := itemKey(id)
	index, bytes, err := r.tree.GetWithIndex(key)
	if err != nil {
		return proof.ItemWithProof[tokentypes.Item]{}, err
	}

	proofOp, err := proof.ProofOpForTree(r.tree, key)
	if err != nil {
		return proof.ItemWithProof[tokentypes.Item]{}, err
	}

	// Key absent: non-membership proof
	if bytes == nil {
		return proof.ItemWithProof[tokentypes.Item]{
			Item:    nil,
			Index:   index,
			Height:  proof.GetProofHeight(r.tree),
			ProofOp: proofOp,
		}, nil
	}

	var item tokentypes.Item
	if err := json.Unmarshal(bytes, &item); err != nil {
		return proof.ItemWithProof[tokentypes.Item]{}, err
	}

	return proof.ItemWithProof[tokentypes.Item]{
		Item:    &item,
		Index:   index,
		Height:  proof.GetProofHeight(r.tree),
		ProofOp: proofOp,
	}, nil
}

// Allocate records ownership of ids by owner, updating the wallet index,
// the owner's balance and both supply counters together. Ids must have been
// drawn from the mint sequence: consecutive, above the committed counter.
func (r *MerkleRepository) Allocate(owner types.Principal, ids []uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		marshalled, err := json.Marshal(tokentypes.Item{Owner: owner})
		if err != nil {
			return err
		}

		if _, err := r.tree.Set(itemKey(id), marshalled); err != nil {
			return err
		}

		if _, err := r.tree.Set(walletKey(owner, id), bz("1")); err != nil {
			return err
		}
	}

	balance, err := r.balanceOf(owner)
	if err != nil {
		return err
	}

	if err := r.setCounter(balancePrefix+owner.String(), balance+uint64(len(ids))); err != nil {
		return err
	}

	minted, err := r.counter(metaPrefix + "minted")
	if err != nil {
		return err
	}

	if err := r.setCounter(metaPrefix+"minted", minted+uint64(len(ids))); err != nil {
		return err
	}

	circulating, err := r.counter(metaPrefix + "circulating")
	if err != nil {
		return err
	}

	return r.setCounter(metaPrefix+"circulating", circulating+uint64(len(ids)))
}

// Burn marks the item permanently burned and unwinds its ownership records.
// The minted counter is untouched: ids are never reused.
func (r *MerkleRepository) Burn(id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, err := r.item(id)
	if err != nil {
		return err
	}

	owner := item.Owner
	item.Owner = ""
	item.Burned = true

	marshalled, err := json.Marshal(item)
	if err != nil {
		return err
	}

	if _, err := r.tree.Set(itemKey(id), marshalled); err != nil {
		return err
	}

	if _, _, err := r.tree.Remove(walletKey(owner, id)); err != nil {
		return err
	}

	balance, err := r.balanceOf(owner)
	if err != nil {
		return err
	}

	if err := r.setCounter(balancePrefix+owner.String(), balance-1); err != nil {
		return err
	}

	circulating, err := r.counter(metaPrefix + "circulating")
	if err != nil {
		return err
	}

	return r.setCounter(metaPrefix+"circulating", circulating-1)
}

func (r *MerkleRepository) BalanceOf(principal types.Principal) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.balanceOf(principal)
}

// WalletOf returns the ids currently owned by principal in ascending id
// order. Wallet keys embed the id big-endian, so byte order is id order.
func (r *MerkleRepository) WalletOf(principal types.Principal) ([]uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := bz(walletPrefix + url.PathEscape(principal.String()) + "/")
	end := prefixEnd(start)

	ids := make([]uint64, 0)
	r.tree.IterateRange(start, end, true, func(key, value []byte) bool {
		if len(key) >= 8 {
			ids = append(ids, binary.BigEndian.Uint64(key[len(key)-8:]))
		}

		return false
	})

	return ids, nil
}

func (r *MerkleRepository) Roles(principal types.Principal) (tokentypes.RoleSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bytes, err := r.tree.Get(bz(rolePrefix + principal.String()))
	if err != nil {
		return nil, err
	}

	if bytes == nil {
		return tokentypes.RoleSet{}, nil
	}

	var roles tokentypes.RoleSet
	if err := json.Unmarshal(bytes, &roles); err != nil {
		return nil, err
	}

	return roles, nil
}

func (r *MerkleRepository) SetRoles(principal types.Principal, roles tokentypes.RoleSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(roles) == 0 {
		_, _, err := r.tree.Remove(bz(rolePrefix + principal.String()))
		return err
	}

	marshalled, err := json.Marshal(roles)
	if err != nil {
		return err
	}

	_, err = r.tree.Set(bz(rolePrefix+principal.String()), marshalled)
	return err
}

func (r *MerkleRepository) Whitelisted(principal types.Principal) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.tree.Has(bz(whitelistPrefix + principal.String()))
}

func (r *MerkleRepository) SetWhitelisted(principal types.Principal, whitelisted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if whitelisted {
		_, err := r.tree.Set(bz(whitelistPrefix+principal.String()), bz("1"))
		return err
	}

	_, _, err := r.tree.Remove(bz(whitelistPrefix + principal.String()))
	return err
}

func (r *MerkleRepository) CustodianBalance() (*uint256.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bytes, err := r.tree.Get(bz(metaPrefix + "custodian"))
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

func (r *MerkleRepository) SetCustodianBalance(balance *uint256.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	marshalled, err := json.Marshal(balance)
	if err != nil {
		return err
	}

	_, err = r.tree.Set(bz(metaPrefix+"custodian"), marshalled)
	return err
}

func (r *MerkleRepository) item(id uint64) (tokentypes.Item, error) {
	bytes, err := r.tree.Get(itemKey(id))
	if err != nil {
		return tokentypes.Item{}, err
	}

	if bytes == nil {
		return tokentypes.Item{}, ErrNotFound
	}

	var item tokentypes.Item
	if err := json.Unmarshal(bytes, &item); err != nil {
		return tokentypes.Item{}, err
	}

	if item.Burned {
		return tokentypes.Item{}, ErrNotFound
	}

	return item, nil
}

func (r *MerkleRepository) balanceOf(principal types.Principal) (uint64, error) {
	return r.counter(balancePrefix + principal.String())
}

func (r *MerkleRepository) counter(key string) (uint64, error) {
	bytes, err := r.tree.Get(bz(key))
	if err != nil {
		return 0, err
	}

	if bytes == nil {
		return 0, nil
	}

	return binary.BigEndian.Uint64(bytes), nil
}

func (r *MerkleRepository) setCounter(key string, value uint64) error {
	encoded := make([]byte, 8)
	binary.BigEndian.PutUint64(encoded, value)

	_, err := r.tree.Set(bz(key), encoded)
	return err
}

func (r *MerkleRepository) setSaleConfig(cfg tokentypes.SaleConfig) error {
	marshalled, err := json.Marshal(cfg)
	if err != nil {
		return err
	}

	_, err = r.tree.Set(bz(configKey), marshalled)
	return err
}

func itemKey(id uint64) []byte {
	key := make([]byte, 0, len(itemPrefix)+8)
	key = append(key, itemPrefix...)
	return binary.BigEndian.AppendUint64(key, id)
}

// Principals are opaque strings, so the owner segment is escaped: a "/"
// inside one must not push its keys into another principal's range.
func walletKey(owner types.Principal, id uint64) []byte {
	prefix := walletPrefix + url.PathEscape(owner.String()) + "/"
	key := make([]byte, 0, len(prefix)+8)
	key = append(key, prefix...)
	return binary.BigEndian.AppendUint64(key, id)
}

// prefixEnd returns the smallest byte string greater than every key with
// the given prefix.
func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	end[len(end)-1]++
	return end
}

func bz(s string) []byte {
	return []byte(s)
}
