package token

import (
	"github.com/holiman/uint256"
	"github.com/slimebit/slimechain/pkg/types"
)

const (
	AppName = "token"

	// RequestTypeMint issues new tokens to the caller, subject to the sale
	// gate and payment rules.
	RequestTypeMint = "mint"
	// RequestTypeBurn destroys a token owned by the caller.
	RequestTypeBurn = "burn"
	// RequestTypeWithdraw sweeps the full custodian balance to the owner.
	RequestTypeWithdraw = "withdraw"

	// Admin-gated sale configuration setters.
	RequestTypeSetCost           = "set-cost"
	RequestTypeSetAssetCost      = "set-asset-cost"
	RequestTypeSetMaxPerTx       = "set-max-per-tx"
	RequestTypeSetMaxSupply      = "set-max-supply"
	RequestTypeSetBaseURI        = "set-base-uri"
	RequestTypeSetNotRevealedURI = "set-not-revealed-uri"
	RequestTypeSetURISuffix      = "set-uri-suffix"
	RequestTypeSetPaused         = "set-paused"
	RequestTypeSetPresale        = "set-presale"
	RequestTypeSetAssetLedger    = "set-asset-ledger"
	// RequestTypeReveal is one-way: once revealed, a drop cannot be hidden
	// again.
	RequestTypeReveal = "reveal"

	RequestTypeWhitelistAdd    = "whitelist-add"
	RequestTypeWhitelistRemove = "whitelist-remove"
	RequestTypeGrantRole       = "grant-role"
	RequestTypeRevokeRole      = "revoke-role"
)

// Nonce fields prevent CometBFT's "tx already exists in cache" error when
// identical requests are submitted twice.

type MintRequest struct {
	Count        uint64 `json:"count"`
	PayWithAsset bool   `json:"pay_with_asset,omitempty"`
	Nonce        string `json:"nonce,omitempty"`
}

type MintResponse struct {
	TokenIds []uint64 `json:"token_ids"`
}

type BurnRequest struct {
	TokenId uint64 `json:"token_id"`
	Nonce   string `json:"nonce,omitempty"`
}

type WithdrawRequest struct {
	Nonce string `json:"nonce,omitempty"`
}

type WithdrawResponse struct {
	Amount *uint256.Int `json:"amount"`
}

type SetCostRequest struct {
	Cost  *uint256.Int `json:"cost"`
	Nonce string       `json:"nonce,omitempty"`
}

type SetMaxRequest struct {
	Max   uint64 `json:"max"`
	Nonce string `json:"nonce,omitempty"`
}

type SetURIRequest struct {
	URI   string `json:"uri"`
	Nonce string `json:"nonce,omitempty"`
}

type SetFlagRequest struct {
	Value bool   `json:"value"`
	Nonce string `json:"nonce,omitempty"`
}

type SetAssetLedgerRequest struct {
	Ledger string `json:"ledger"` // Name of the asset app; empty disables the asset rail
	Nonce  string `json:"nonce,omitempty"`
}

type RevealRequest struct {
	Nonce string `json:"nonce,omitempty"`
}

type WhitelistRequest struct {
	Principal types.Principal `json:"principal"`
	Nonce     string          `json:"nonce,omitempty"`
}

type RoleRequest struct {
	Principal types.Principal `json:"principal"`
	Role      Role            `json:"role"`
	Nonce     string          `json:"nonce,omitempty"`
}

// SupplyInfo is the /supply query response.
type SupplyInfo struct {
	Minted      uint64 `json:"minted"`      // Total ever minted; also the highest assigned id
	Circulating uint64 `json:"circulating"` // Minted minus burned
}

// RolesInfo is the /roles query response.
type RolesInfo struct {
	Owner bool    `json:"owner"`
	Roles RoleSet `json:"roles"`
}
