package token

import (
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/slimebit/slimechain/internal/config"
	"github.com/slimebit/slimechain/pkg/types"
	tokentypes "github.com/slimebit/slimechain/pkg/types/token"
)

// Genesis carries the drop parameters applied once, when the app starts
// against an uninitialized tree. The sale starts paused and unrevealed; the
// whitelist and role table start empty.
type Genesis struct {
	Owner      types.Principal
	Collection tokentypes.CollectionInfo
	Sale       tokentypes.SaleConfig
}

func GenesisFromConfig(cfg config.Config) (Genesis, error) {
	if cfg.Drop.Owner == "" {
		return Genesis{}, errors.New("drop owner must be configured")
	}

	costNative, err := uint256.FromDecimal(cfg.Drop.CostNative)
	if err != nil {
		return Genesis{}, errors.Wrap(err, "invalid native cost")
	}

	costAsset, err := uint256.FromDecimal(cfg.Drop.CostAsset)
	if err != nil {
		return Genesis{}, errors.Wrap(err, "invalid asset cost")
	}

	return Genesis{
		Owner: types.Principal(cfg.Drop.Owner),
		Collection: tokentypes.CollectionInfo{
			Name:   cfg.Drop.Name,
			Symbol: cfg.Drop.Symbol,
		},
		Sale: tokentypes.SaleConfig{
			CostNative:     costNative,
			CostAsset:      costAsset,
			MaxPerTx:       cfg.Drop.MaxPerTx,
			MaxSupply:      cfg.Drop.MaxSupply,
			Paused:         true,
			PresaleActive:  false,
			Revealed:       false,
			BaseURI:        cfg.Drop.BaseURI,
			NotRevealedURI: cfg.Drop.NotRevealedURI,
			URISuffix:      cfg.Drop.URISuffix,
		},
	}, nil
}
