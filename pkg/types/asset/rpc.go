package asset

import (
	"github.com/holiman/uint256"
	"github.com/slimebit/slimechain/pkg/types"
)

const (
	AppName = "asset"

	// RequestTypeSeed mints the initial supply to a treasury principal. It
	// may run exactly once.
	RequestTypeSeed = "seed"
	// RequestTypeTransfer moves funds from the caller to another principal.
	RequestTypeTransfer = "transfer"
	// RequestTypeApprove sets the allowance a spender may pull from the
	// caller via transfer-from.
	RequestTypeApprove = "approve"
	// RequestTypeTransferFrom moves funds between principals within the
	// caller's allowance.
	RequestTypeTransferFrom = "transfer-from"
)

type SeedRequest struct {
	Name     string          `json:"name"`
	Symbol   string          `json:"symbol"`
	Treasury types.Principal `json:"treasury"`
	Supply   *uint256.Int    `json:"supply"`
	Nonce    string          `json:"nonce,omitempty"`
}

type TransferRequest struct {
	To     types.Principal `json:"to"`
	Amount *uint256.Int    `json:"amount"`
	Nonce  string          `json:"nonce,omitempty"`
}

type ApproveRequest struct {
	Spender types.Principal `json:"spender"`
	Amount  *uint256.Int    `json:"amount"`
	Nonce   string          `json:"nonce,omitempty"`
}

type TransferFromRequest struct {
	From   types.Principal `json:"from"`
	To     types.Principal `json:"to"`
	Amount *uint256.Int    `json:"amount"`
	Nonce  string          `json:"nonce,omitempty"`
}

// Info describes the seeded asset.
type Info struct {
	Name   string       `json:"name"`
	Symbol string       `json:"symbol"`
	Supply *uint256.Int `json:"supply"`
}
