package token

import (
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

var (
	errNoAssetLedger = errors.New("no asset ledger configured for coin payment")
	errNotOwner      = errors.New("requester does not own this item")
)

func errInsufficientPayment(required, attached *uint256.Int) error {
	return errors.Errorf("insufficient payment: required %s, attached %s", required.Dec(), attached.Dec())
}
