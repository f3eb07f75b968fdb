package token

import (
	"testing"

	tokentypes "github.com/slimebit/slimechain/pkg/types/token"
	"github.com/stretchr/testify/require"
)

func gateConfig(paused, presale bool) tokentypes.SaleConfig {
	cfg := testGenesis().Sale
	cfg.Paused = paused
	cfg.PresaleActive = presale
	return cfg
}

func TestMintGatePrecedence(t *testing.T) {
	cases := []struct {
		name     string
		caller   caller
		cfg      tokentypes.SaleConfig
		count    uint64
		free     bool
		wantCode uint32
	}{
		{
			name:     "zero count rejected before anything else",
			caller:   caller{isOwner: true},
			cfg:      gateConfig(false, false),
			count:    0,
			wantCode: tokentypes.CodeInvalidAmount,
		},
		{
			name:     "per-tx cap binds regular buyers",
			caller:   caller{},
			cfg:      gateConfig(false, false),
			count:    6,
			wantCode: tokentypes.CodeExceedsPerTxLimit,
		},
		{
			name:     "per-tx cap binds admins too",
			caller:   caller{roles: tokentypes.RoleSet{tokentypes.RoleAdmin}},
			cfg:      gateConfig(false, false),
			count:    6,
			wantCode: tokentypes.CodeExceedsPerTxLimit,
		},
		{
			name:   "owner exempt from per-tx cap and mints free",
			caller: caller{isOwner: true},
			cfg:    gateConfig(true, false),
			count:  50,
			free:   true,
		},
		{
			name:   "admin mints free even while paused",
			caller: caller{roles: tokentypes.RoleSet{tokentypes.RoleAdmin}},
			cfg:    gateConfig(true, false),
			count:  2,
			free:   true,
		},
		{
			name:   "minter mints free even while paused",
			caller: caller{roles: tokentypes.RoleSet{tokentypes.RoleMinter}},
			cfg:    gateConfig(true, false),
			count:  2,
			free:   true,
		},
		{
			name:   "whitelisted principal pays during presale",
			caller: caller{whitelisted: true},
			cfg:    gateConfig(true, true),
			count:  1,
			free:   false,
		},
		{
			name:     "non-whitelisted principal rejected during presale",
			caller:   caller{},
			cfg:      gateConfig(true, true),
			count:    1,
			wantCode: tokentypes.CodeNotWhitelisted,
		},
		{
			name:     "paused without presale rejects everyone unprivileged",
			caller:   caller{whitelisted: true},
			cfg:      gateConfig(true, false),
			count:    1,
			wantCode: tokentypes.CodeSaleClosed,
		},
		{
			name:   "open sale admits anyone paying",
			caller: caller{},
			cfg:    gateConfig(false, false),
			count:  5,
			free:   false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			free, errRes := mintGate(tc.caller, tc.cfg, tc.count)

			if tc.wantCode != 0 {
				require.NotNilf(t, errRes, "expected rejection, got free=%v", free)
				require.Equal(t, tc.wantCode, errRes.Code)
				return
			}

			require.Nilf(t, errRes, "unexpected rejection: %v", errRes)
			require.Equal(t, tc.free, free)
		})
	}
}
