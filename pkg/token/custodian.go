package token

import (
	"github.com/holiman/uint256"
	"github.com/slimebit/slimechain/pkg/asset"
	"github.com/slimebit/slimechain/pkg/multiplexer"
	"github.com/slimebit/slimechain/pkg/types"
	tokentypes "github.com/slimebit/slimechain/pkg/types/token"
)

// CustodianPrincipal is the identity the drop acts under on the asset
// ledger: asset-rail payments are pulled into its balance, and buyers must
// approve it as a spender beforehand.
const CustodianPrincipal types.Principal = "token:custodian"

// Custodian holds collected native payments pending an owner withdrawal and
// adapts the external asset ledger for coin-denominated payment. It never
// interprets asset ledger failures: they surface verbatim as the mint's
// failure reason.
type Custodian struct {
	repo   Repository
	assets asset.Ledger // nil when no asset ledger is deployed alongside
}

func NewCustodian(repo Repository, assets asset.Ledger) *Custodian {
	return &Custodian{
		repo:   repo,
		assets: assets,
	}
}

// ValidateNative checks the attached native funds cover price. Overpayment
// is accepted and kept; there is no change-giving.
func (c *Custodian) ValidateNative(attached, price *uint256.Int) *multiplexer.ErrorResponse {
	if attached.Lt(price) {
		return multiplexer.NewErrorResponse(
			tokentypes.CodeInsufficientPayment,
			tokentypes.Codespace,
			errInsufficientPayment(price, attached),
		)
	}

	return nil
}

// ValidateAsset checks the payer can fund price on the asset ledger, net of
// spends already staged in this block by either app. Ledger errors are
// passed through under CodeAssetPaymentFailed.
func (c *Custodian) ValidateAsset(cfg tokentypes.SaleConfig, payer types.Principal, price *uint256.Int) *multiplexer.ErrorResponse {
	if cfg.AssetLedger == "" || c.assets == nil {
		return multiplexer.NewErrorResponse(
			tokentypes.CodeAssetLedgerNotSet,
			tokentypes.Codespace,
			errNoAssetLedger,
		)
	}

	balance, err := c.assets.SpendableBalance(payer)
	if err != nil {
		return multiplexer.NewErrorResponse(tokentypes.CodeUnknownError, tokentypes.Codespace, err)
	}

	if balance.Lt(price) {
		return multiplexer.NewErrorResponse(tokentypes.CodeAssetPaymentFailed, tokentypes.Codespace, asset.ErrInsufficientBalance)
	}

	allowance, err := c.assets.SpendableAllowance(payer, CustodianPrincipal)
	if err != nil {
		return multiplexer.NewErrorResponse(tokentypes.CodeUnknownError, tokentypes.Codespace, err)
	}

	if allowance.Lt(price) {
		return multiplexer.NewErrorResponse(tokentypes.CodeAssetPaymentFailed, tokentypes.Codespace, asset.ErrInsufficientAllowance)
	}

	return nil
}

// StageAssetSpend records a validated asset-rail payment in the ledger's
// block staging, so later transactions in the block see the funds as spent.
func (c *Custodian) StageAssetSpend(payer types.Principal, amount *uint256.Int) {
	c.assets.StageSpend(CustodianPrincipal, payer, amount)
}

// ResetStagedSpends clears the ledger's block staging. Runs at commit time;
// a no-op when no asset ledger is wired.
func (c *Custodian) ResetStagedSpends() {
	if c.assets != nil {
		c.assets.ResetStaged()
	}
}

// CollectNative adds amount to the held balance. Runs at commit time, after
// every precondition has passed.
func (c *Custodian) CollectNative(amount *uint256.Int) error {
	balance, err := c.repo.CustodianBalance()
	if err != nil {
		return err
	}

	return c.repo.SetCustodianBalance(new(uint256.Int).Add(balance, amount))
}

// CollectAsset pulls amount from the payer on the asset ledger. Runs at
// commit time; the transfer is durable before any item is allocated.
func (c *Custodian) CollectAsset(payer types.Principal, amount *uint256.Int) error {
	if err := c.assets.TransferFrom(CustodianPrincipal, payer, CustodianPrincipal, amount); err != nil {
		return err
	}

	_, _, err := c.assets.Save()
	return err
}

// Sweep zeroes the held native balance and returns the amount released.
// Sweeping an empty balance is a successful no-op.
func (c *Custodian) Sweep() (*uint256.Int, error) {
	balance, err := c.repo.CustodianBalance()
	if err != nil {
		return nil, err
	}

	if balance.IsZero() {
		return balance, nil
	}

	if err := c.repo.SetCustodianBalance(uint256.NewInt(0)); err != nil {
		return nil, err
	}

	return balance, nil
}
