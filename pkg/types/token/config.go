package token

import (
	"strconv"

	"github.com/holiman/uint256"
)

// SaleConfig is the mutable drop configuration. A fresh drop starts paused
// and unrevealed; every field is changed only through admin-gated setters.
type SaleConfig struct {
	CostNative     *uint256.Int `json:"cost_native"`
	CostAsset      *uint256.Int `json:"cost_asset"`
	MaxPerTx       uint64       `json:"max_per_tx"`
	MaxSupply      uint64       `json:"max_supply"`
	Paused         bool         `json:"paused"`
	PresaleActive  bool         `json:"presale_active"`
	Revealed       bool         `json:"revealed"`
	BaseURI        string       `json:"base_uri"`
	NotRevealedURI string       `json:"not_revealed_uri"`
	URISuffix      string       `json:"uri_suffix"`
	AssetLedger    string       `json:"asset_ledger,omitempty"` // Name of the payment asset app, empty if unset
}

// TokenURI builds the metadata URI for id under the current reveal state.
// An empty BaseURI is a deliberate configuration and yields just id+suffix.
func (c SaleConfig) TokenURI(id uint64) string {
	if !c.Revealed {
		return c.NotRevealedURI
	}

	return c.BaseURI + strconv.FormatUint(id, 10) + c.URISuffix
}

// NativePrice returns the total native cost of minting count items.
func (c SaleConfig) NativePrice(count uint64) *uint256.Int {
	return new(uint256.Int).Mul(c.CostNative, uint256.NewInt(count))
}

// AssetPrice returns the total asset-denominated cost of minting count items.
func (c SaleConfig) AssetPrice(count uint64) *uint256.Int {
	return new(uint256.Int).Mul(c.CostAsset, uint256.NewInt(count))
}
