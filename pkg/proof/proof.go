package proof

import "github.com/cometbft/cometbft/proto/tendermint/crypto"

// ItemWithProof pairs a (possibly absent) tree value with the merkle proof
// for its key. Item is nil when the key is absent; the proof then shows
// non-membership.
type ItemWithProof[T any] struct {
	Item    *T
	Index   int64
	Height  int64
	ProofOp crypto.ProofOp
}

func (i *ItemWithProof[T]) ProofOps() *crypto.ProofOps {
	return &crypto.ProofOps{Ops: []crypto.ProofOp{i.ProofOp}}
}
