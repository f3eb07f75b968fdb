package proof

import (
	"encoding/binary"
	"strconv"
	"testing"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/cometbft/cometbft/proto/tendermint/crypto"
	"github.com/cosmos/iavl"
	"github.com/stretchr/testify/require"
)

func TestValidatePresent(t *testing.T) {
	tree := generateTree(t, 100)
	proof := generateProof(t, tree, itemKey(17))

	valid, err := Validate(proof)
	require.NoErrorf(t, err, "error validating proof")
	require.Truef(t, valid, "proof verification failed")
}

func TestValidatePresentAll(t *testing.T) {
	treeSize := 500
	tree := generateTree(t, treeSize)

	for i := 0; i < treeSize; i++ {
		proof := generateProof(t, tree, itemKey(uint64(i)))

		valid, err := Validate(proof)
		require.NoErrorf(t, err, "error validating proof for item %d", i)
		require.Truef(t, valid, "proof verification failed for item %d", i)
	}
}

func TestValidateAbsent(t *testing.T) {
	tree := generateTree(t, 100)
	proof := generateProof(t, tree, itemKey(9999))

	valid, err := Validate(proof)
	require.NoErrorf(t, err, "error validating proof")
	require.Truef(t, valid, "proof verification failed")
}

func TestValidateSerialisation(t *testing.T) {
	tree := generateTree(t, 100)

	for _, key := range [][]byte{itemKey(98), itemKey(9999)} {
		proof := generateProof(t, tree, key)

		serialised, err := proof.Marshal()
		require.NoErrorf(t, err, "error serialising proof")

		deserialised := crypto.ProofOp{}
		err = deserialised.Unmarshal(serialised)
		require.NoErrorf(t, err, "error deserialising proof")

		valid, err := Validate(deserialised)
		require.NoErrorf(t, err, "error validating proof")
		require.Truef(t, valid, "proof verification failed")
	}
}

func TestProofOpUnsavedTree(t *testing.T) {
	tree, err := iavl.NewMutableTree(dbm.NewMemDB(), 100, true)
	require.NoErrorf(t, err, "error creating tree")

	_, err = ProofOpForTree(tree, itemKey(1))
	require.ErrorIs(t, err, ErrTreeUninitialized)
}

func itemKey(id uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte("item/"), id)
}

func generateProof(t *testing.T, tree *iavl.MutableTree, key []byte) crypto.ProofOp {
	op, err := ProofOpForTree(tree, key)
	require.NoErrorf(t, err, "error generating proof op")

	return op
}

func generateTree(t *testing.T, size int) *iavl.MutableTree {
	db := dbm.NewMemDB()
	tree, err := iavl.NewMutableTree(db, 100, true)
	require.NoErrorf(t, err, "error creating tree")

	for i := 0; i < size; i++ {
		value := []byte(`{"owner":"principal` + strconv.Itoa(i) + `"}`)
		_, err := tree.Set(itemKey(uint64(i)), value)
		require.NoErrorf(t, err, "error setting key")
	}

	_, _, err = tree.SaveVersion()
	require.NoErrorf(t, err, "error saving tree")

	return tree
}
