package token

import (
	"github.com/pkg/errors"
	"github.com/slimebit/slimechain/pkg/multiplexer"
	tokentypes "github.com/slimebit/slimechain/pkg/types/token"
)

// caller bundles everything the sale gate needs to know about the principal
// behind a mint request.
type caller struct {
	isOwner     bool
	roles       tokentypes.RoleSet
	whitelisted bool
}

func (c caller) privileged() bool {
	return c.isOwner || c.roles.Has(tokentypes.RoleAdmin)
}

// mintGate is the phase/role decision table for mint, evaluated as a guard
// chain in fixed precedence order: owner bypass, then admin, then minter,
// then whitelist presale, then the open/closed sale flag. It returns whether
// the mint is free of charge, or the rejection.
//
// The owner is exempt from the per-transaction cap (reserve minting); nobody
// is exempt from the collection supply cap, which the app checks separately.
func mintGate(c caller, cfg tokentypes.SaleConfig, count uint64) (free bool, errRes *multiplexer.ErrorResponse) {
	if count < 1 {
		return false, multiplexer.NewErrorResponse(
			tokentypes.CodeInvalidAmount,
			tokentypes.Codespace,
			errors.New("mint count must be at least 1"),
		)
	}

	if !c.isOwner && count > cfg.MaxPerTx {
		return false, multiplexer.NewErrorResponse(
			tokentypes.CodeExceedsPerTxLimit,
			tokentypes.Codespace,
			errors.Errorf("mint count %d exceeds the per-transaction limit of %d", count, cfg.MaxPerTx),
		)
	}

	if c.privileged() {
		return true, nil
	}

	if c.roles.Has(tokentypes.RoleMinter) {
		return true, nil
	}

	if cfg.Paused && cfg.PresaleActive {
		if c.whitelisted {
			return false, nil
		}

		return false, multiplexer.NewErrorResponse(
			tokentypes.CodeNotWhitelisted,
			tokentypes.Codespace,
			errors.New("presale is restricted to whitelisted principals"),
		)
	}

	if cfg.Paused {
		return false, multiplexer.NewErrorResponse(
			tokentypes.CodeSaleClosed,
			tokentypes.Codespace,
			errors.New("drop and presale are closed"),
		)
	}

	return false, nil
}
