package token

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	dbm "github.com/cometbft/cometbft-db"
	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/cosmos/iavl"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/slimebit/slimechain/internal/utils"
	"github.com/slimebit/slimechain/pkg/asset"
	"github.com/slimebit/slimechain/pkg/multiplexer"
	"github.com/slimebit/slimechain/pkg/proof"
	"github.com/slimebit/slimechain/pkg/types"
	assettypes "github.com/slimebit/slimechain/pkg/types/asset"
	"github.com/slimebit/slimechain/pkg/types/rpc"
	tokentypes "github.com/slimebit/slimechain/pkg/types/token"
	"go.uber.org/zap"
)

// TokenApp is the drop state machine: every mutating request passes through
// its role/phase/payment guards before the registry is touched. Reads go
// straight to the registry through Query.
type TokenApp struct {
	Repository
	logger        *zap.Logger
	db            dbm.DB
	custodian     *Custodian
	versionNumber int64
	txState       txState
}

// txState layers the effects of transactions already accepted in the block
// being finalized over committed state, so later transactions in the same
// block see their predecessors. It is reset when the block commits.
type txState struct {
	mintedDelta uint64
	items       map[uint64]types.Principal
	burned      []uint64
	config      *tokentypes.SaleConfig
	roles       map[types.Principal]tokentypes.RoleSet
	whitelist   map[types.Principal]bool
	collected   *uint256.Int
	swept       bool
}

func defaultTxState() txState {
	return txState{
		items:     make(map[uint64]types.Principal),
		burned:    make([]uint64, 0),
		roles:     make(map[types.Principal]tokentypes.RoleSet),
		whitelist: make(map[types.Principal]bool),
		collected: uint256.NewInt(0),
	}
}

var _ multiplexer.MultiplexedApp = (*TokenApp)(nil)

const treeCacheSize = 1000

// maxMintBatch bounds the ids allocated by a single request. The per-tx
// sale cap is policy and can be raised by the admin; this is a resource
// limit on the allocation itself.
const maxMintBatch = 1 << 16

// NewTokenApp loads (or, on first start, creates from genesis) the drop
// state. assets may be nil when no payment asset is deployed alongside.
func NewTokenApp(logger *zap.Logger, db dbm.DB, assets asset.Ledger, genesis Genesis) (*TokenApp, error) {
	tree, err := iavl.NewMutableTree(db, treeCacheSize, false)
	if err != nil {
		return nil, err
	}

	versionNumber, err := tree.Load()
	if err != nil {
		return nil, err
	}

	repo := NewMerkleRepository(tree)

	app := &TokenApp{
		Repository:    repo,
		logger:        logger,
		db:            db,
		custodian:     NewCustodian(repo, assets),
		versionNumber: versionNumber,
		txState:       defaultTxState(),
	}

	initialized, err := repo.Initialized()
	if err != nil {
		return nil, err
	}

	if !initialized {
		logger.Info(
			"Initializing drop from genesis",
			zap.String("owner", genesis.Owner.String()),
			zap.String("collection", genesis.Collection.Name),
		)

		if err := repo.InitGenesis(genesis.Owner, genesis.Collection, genesis.Sale); err != nil {
			return nil, err
		}

		if err := app.save(); err != nil {
			return nil, err
		}
	}

	return app, nil
}

func (app *TokenApp) Name() string {
	return tokentypes.AppName
}

func (app *TokenApp) Info(ctx context.Context, req *abci.RequestInfo) any {
	appHash, err := app.Repository.Hash()
	if err != nil {
		app.logger.Warn("Got error getting hash of TokenApp", zap.Error(err))
		return multiplexer.NewErrorResponse(multiplexer.CodeUnknownError, multiplexer.Codespace, err)
	}

	collection, err := app.Repository.Collection()
	if err != nil {
		app.logger.Warn("Got error getting collection info", zap.Error(err))
		return multiplexer.NewErrorResponse(multiplexer.CodeUnknownError, multiplexer.Codespace, err)
	}

	return map[string]any{
		"version":    app.versionNumber,
		"app_hash":   hex.EncodeToString(appHash),
		"collection": collection,
	}
}

func (app *TokenApp) InitChain(ctx context.Context, req *abci.RequestInitChain) []byte {
	appHash, err := app.Repository.Hash()
	if err != nil {
		app.logger.Fatal("Got error getting hash of TokenApp when running InitChain", zap.Error(err))
	}

	return appHash
}

func (app *TokenApp) CheckTx(ctx context.Context, req *abci.RequestCheckTx, data json.RawMessage) (*abci.ResponseCheckTx, error) {
	var payload rpc.AuthenticatedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		app.logger.Warn("Got error decoding TokenApp request", zap.Error(err))
		return multiplexer.NewErrorResponse(multiplexer.CodeEncodingError, multiplexer.Codespace, err).IntoCheckTxResponse(), nil
	}

	if _, errRes := app.validate(payload); errRes != nil {
		return errRes.IntoCheckTxResponse(), nil
	}

	return &abci.ResponseCheckTx{Code: tokentypes.CodeOk, Codespace: tokentypes.Codespace}, nil
}

func (app *TokenApp) FinalizeBlock(ctx context.Context, req *abci.RequestFinalizeBlock, data json.RawMessage) multiplexer.FinalizeBlockResponse {
	var payload rpc.AuthenticatedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		app.logger.Warn("Got error decoding TokenApp request", zap.Error(err))
		return multiplexer.NewErrorResponse(multiplexer.CodeEncodingError, multiplexer.Codespace, err).IntoFinalizeBlockResponse()
	}

	plan, errRes := app.validate(payload)
	if errRes != nil {
		return errRes.IntoFinalizeBlockResponse()
	}

	appHash, err := app.Repository.Hash()
	if err != nil {
		app.logger.Warn("Got error getting app hash", zap.Error(err))
		return multiplexer.NewErrorResponse(multiplexer.CodeUnknownError, multiplexer.Codespace, err).IntoFinalizeBlockResponse()
	}

	plan.stage(app)

	result := abci.ExecTxResult{
		Code:      tokentypes.CodeOk,
		Codespace: tokentypes.Codespace,
	}

	if plan.responseData != nil {
		marshalled, err := json.Marshal(plan.responseData)
		if err != nil {
			return multiplexer.NewErrorResponse(multiplexer.CodeEncodingError, multiplexer.Codespace, err).IntoFinalizeBlockResponse()
		}

		result.Data = marshalled
	}

	if plan.event != nil {
		result.Events = []abci.Event{*plan.event}
	}

	commit := plan.commit
	return multiplexer.FinalizeBlockResponse{
		TxResult: result,
		AppHash:  appHash,
		CommitFunc: func() error {
			app.txState = defaultTxState()
			app.custodian.ResetStagedSpends()

			if err := commit(); err != nil {
				return err
			}

			return app.save()
		},
	}
}

// plan is a validated mutation: what to stage for later transactions in the
// block, what to report, and how to apply it at commit time.
type plan struct {
	stage        func(app *TokenApp)
	commit       func() error
	responseData any
	event        *abci.Event
}

// validate runs the full guard chain for a request and, on success, builds
// its plan. It is shared by CheckTx and FinalizeBlock; committed state is
// read through the repository with in-block effects layered from txState.
func (app *TokenApp) validate(payload rpc.AuthenticatedPayload) (plan, *multiplexer.ErrorResponse) {
	switch payload.Type {
	case tokentypes.RequestTypeMint:
		var request tokentypes.MintRequest
		if err := json.Unmarshal(payload.Data, &request); err != nil {
			return plan{}, app.encodingError(err)
		}

		return app.validateMint(payload, request)
	case tokentypes.RequestTypeBurn:
		var request tokentypes.BurnRequest
		if err := json.Unmarshal(payload.Data, &request); err != nil {
			return plan{}, app.encodingError(err)
		}

		return app.validateBurn(payload.Principal, request)
	case tokentypes.RequestTypeWithdraw:
		return app.validateWithdraw(payload.Principal)
	case tokentypes.RequestTypeSetCost:
		var request tokentypes.SetCostRequest
		if err := json.Unmarshal(payload.Data, &request); err != nil {
			return plan{}, app.encodingError(err)
		}

		return app.validateConfigure(payload.Principal, func(cfg *tokentypes.SaleConfig) *multiplexer.ErrorResponse {
			if request.Cost == nil {
				return multiplexer.NewErrorResponse(tokentypes.CodeInvalidAmount, tokentypes.Codespace, errors.New("set-cost requires an amount"))
			}

			cfg.CostNative = request.Cost
			return nil
		})
	case tokentypes.RequestTypeSetAssetCost:
		var request tokentypes.SetCostRequest
		if err := json.Unmarshal(payload.Data, &request); err != nil {
			return plan{}, app.encodingError(err)
		}

		return app.validateConfigure(payload.Principal, func(cfg *tokentypes.SaleConfig) *multiplexer.ErrorResponse {
			if request.Cost == nil {
				return multiplexer.NewErrorResponse(tokentypes.CodeInvalidAmount, tokentypes.Codespace, errors.New("set-asset-cost requires an amount"))
			}

			cfg.CostAsset = request.Cost
			return nil
		})
	case tokentypes.RequestTypeSetMaxPerTx:
		var request tokentypes.SetMaxRequest
		if err := json.Unmarshal(payload.Data, &request); err != nil {
			return plan{}, app.encodingError(err)
		}

		return app.validateConfigure(payload.Principal, func(cfg *tokentypes.SaleConfig) *multiplexer.ErrorResponse {
			cfg.MaxPerTx = request.Max
			return nil
		})
	case tokentypes.RequestTypeSetMaxSupply:
		var request tokentypes.SetMaxRequest
		if err := json.Unmarshal(payload.Data, &request); err != nil {
			return plan{}, app.encodingError(err)
		}

		return app.validateConfigure(payload.Principal, func(cfg *tokentypes.SaleConfig) *multiplexer.ErrorResponse {
			cfg.MaxSupply = request.Max
			return nil
		})
	case tokentypes.RequestTypeSetBaseURI:
		var request tokentypes.SetURIRequest
		if err := json.Unmarshal(payload.Data, &request); err != nil {
			return plan{}, app.encodingError(err)
		}

		return app.validateConfigure(payload.Principal, func(cfg *tokentypes.SaleConfig) *multiplexer.ErrorResponse {
			cfg.BaseURI = request.URI
			return nil
		})
	case tokentypes.RequestTypeSetNotRevealedURI:
		var request tokentypes.SetURIRequest
		if err := json.Unmarshal(payload.Data, &request); err != nil {
			return plan{}, app.encodingError(err)
		}

		return app.validateConfigure(payload.Principal, func(cfg *tokentypes.SaleConfig) *multiplexer.ErrorResponse {
			cfg.NotRevealedURI = request.URI
			return nil
		})
	case tokentypes.RequestTypeSetURISuffix:
		var request tokentypes.SetURIRequest
		if err := json.Unmarshal(payload.Data, &request); err != nil {
			return plan{}, app.encodingError(err)
		}

		return app.validateConfigure(payload.Principal, func(cfg *tokentypes.SaleConfig) *multiplexer.ErrorResponse {
			cfg.URISuffix = request.URI
			return nil
		})
	case tokentypes.RequestTypeSetPaused:
		var request tokentypes.SetFlagRequest
		if err := json.Unmarshal(payload.Data, &request); err != nil {
			return plan{}, app.encodingError(err)
		}

		return app.validateConfigure(payload.Principal, func(cfg *tokentypes.SaleConfig) *multiplexer.ErrorResponse {
			cfg.Paused = request.Value
			return nil
		})
	case tokentypes.RequestTypeSetPresale:
		var request tokentypes.SetFlagRequest
		if err := json.Unmarshal(payload.Data, &request); err != nil {
			return plan{}, app.encodingError(err)
		}

		return app.validateConfigure(payload.Principal, func(cfg *tokentypes.SaleConfig) *multiplexer.ErrorResponse {
			cfg.PresaleActive = request.Value
			return nil
		})
	case tokentypes.RequestTypeSetAssetLedger:
		var request tokentypes.SetAssetLedgerRequest
		if err := json.Unmarshal(payload.Data, &request); err != nil {
			return plan{}, app.encodingError(err)
		}

		return app.validateConfigure(payload.Principal, func(cfg *tokentypes.SaleConfig) *multiplexer.ErrorResponse {
			// The name must resolve to the ledger actually wired in; an
			// empty name disables the asset rail.
			if request.Ledger != "" && (app.custodian.assets == nil || request.Ledger != assettypes.AppName) {
				return multiplexer.NewErrorResponse(
					tokentypes.CodeAssetLedgerNotSet,
					tokentypes.Codespace,
					errors.Errorf("unknown asset ledger %q", request.Ledger),
				)
			}

			cfg.AssetLedger = request.Ledger
			return nil
		})
	case tokentypes.RequestTypeReveal:
		// One-way: there is no unreveal
		return app.validateConfigure(payload.Principal, func(cfg *tokentypes.SaleConfig) *multiplexer.ErrorResponse {
			if cfg.Revealed {
				return multiplexer.NewErrorResponse(tokentypes.CodeAlreadyRevealed, tokentypes.Codespace, errors.New("drop is already revealed"))
			}

			cfg.Revealed = true
			return nil
		})
	case tokentypes.RequestTypeWhitelistAdd:
		var request tokentypes.WhitelistRequest
		if err := json.Unmarshal(payload.Data, &request); err != nil {
			return plan{}, app.encodingError(err)
		}

		return app.validateWhitelistChange(payload.Principal, request.Principal, true)
	case tokentypes.RequestTypeWhitelistRemove:
		var request tokentypes.WhitelistRequest
		if err := json.Unmarshal(payload.Data, &request); err != nil {
			return plan{}, app.encodingError(err)
		}

		return app.validateWhitelistChange(payload.Principal, request.Principal, false)
	case tokentypes.RequestTypeGrantRole:
		var request tokentypes.RoleRequest
		if err := json.Unmarshal(payload.Data, &request); err != nil {
			return plan{}, app.encodingError(err)
		}

		return app.validateRoleChange(payload.Principal, request, true)
	case tokentypes.RequestTypeRevokeRole:
		var request tokentypes.RoleRequest
		if err := json.Unmarshal(payload.Data, &request); err != nil {
			return plan{}, app.encodingError(err)
		}

		return app.validateRoleChange(payload.Principal, request, false)
	default:
		app.logger.Warn("Unknown request type", zap.String("request_type", string(payload.Type)))
		return plan{}, multiplexer.NewErrorResponse(tokentypes.CodeUnknownRequestType, tokentypes.Codespace, nil)
	}
}

func (app *TokenApp) validateMint(payload rpc.AuthenticatedPayload, request tokentypes.MintRequest) (plan, *multiplexer.ErrorResponse) {
	minter := payload.Principal

	c, errRes := app.callerFor(minter)
	if errRes != nil {
		return plan{}, errRes
	}

	cfg, errRes := app.effConfig()
	if errRes != nil {
		return plan{}, errRes
	}

	free, errRes := mintGate(c, cfg, request.Count)
	if errRes != nil {
		return plan{}, errRes
	}

	minted, errRes := app.effMinted()
	if errRes != nil {
		return plan{}, errRes
	}

	// Subtraction form so minted+count can never wrap uint64. The supply
	// cap is a physical limit; unlike the per-tx cap, the owner gets no
	// bypass.
	if request.Count > math.MaxUint64-minted {
		return plan{}, multiplexer.NewErrorResponse(
			tokentypes.CodeExceedsSupply,
			tokentypes.Codespace,
			errors.Errorf("minting %d would exhaust the id space", request.Count),
		)
	}

	if cfg.MaxSupply > 0 && (minted >= cfg.MaxSupply || request.Count > cfg.MaxSupply-minted) {
		return plan{}, multiplexer.NewErrorResponse(
			tokentypes.CodeExceedsSupply,
			tokentypes.Codespace,
			errors.Errorf("minting %d would exceed the supply cap of %d", request.Count, cfg.MaxSupply),
		)
	}

	if request.Count > maxMintBatch {
		return plan{}, multiplexer.NewErrorResponse(
			tokentypes.CodeInvalidAmount,
			tokentypes.Codespace,
			errors.Errorf("mint count %d exceeds the batch limit of %d", request.Count, maxMintBatch),
		)
	}

	attached := payload.AttachedValue()
	payAsset := !free && request.PayWithAsset
	var assetPrice *uint256.Int

	if !free {
		if request.PayWithAsset {
			assetPrice = cfg.AssetPrice(request.Count)
			if errRes := app.custodian.ValidateAsset(cfg, minter, assetPrice); errRes != nil {
				return plan{}, errRes
			}
		} else {
			if errRes := app.custodian.ValidateNative(attached, cfg.NativePrice(request.Count)); errRes != nil {
				return plan{}, errRes
			}
		}
	}

	ids := make([]uint64, request.Count)
	for i := range ids {
		ids[i] = minted + 1 + uint64(i)
	}

	event := utils.Event("mint",
		utils.Attribute("principal", minter.String()),
		utils.Attribute("count", strconv.FormatUint(request.Count, 10)),
		utils.Attribute("first_id", strconv.FormatUint(ids[0], 10)),
		utils.Attribute("last_id", strconv.FormatUint(ids[len(ids)-1], 10)),
	)

	return plan{
		stage: func(app *TokenApp) {
			app.txState.mintedDelta += request.Count
			for _, id := range ids {
				app.txState.items[id] = minter
			}

			if payAsset {
				app.custodian.StageAssetSpend(minter, assetPrice)
			} else if !attached.IsZero() {
				app.txState.collected = new(uint256.Int).Add(app.txState.collected, attached)
			}
		},
		commit: func() error {
			// Payment is collected before any id is allocated, so a failed
			// collection can never leave a paid-for-nothing state behind.
			if payAsset {
				if err := app.custodian.CollectAsset(minter, assetPrice); err != nil {
					return err
				}
			} else if !attached.IsZero() {
				if err := app.custodian.CollectNative(attached); err != nil {
					return err
				}
			}

			return app.Repository.Allocate(minter, ids)
		},
		responseData: tokentypes.MintResponse{TokenIds: ids},
		event:        &event,
	}, nil
}

func (app *TokenApp) validateBurn(requester types.Principal, request tokentypes.BurnRequest) (plan, *multiplexer.ErrorResponse) {
	owner, errRes := app.effItemOwner(request.TokenId)
	if errRes != nil {
		return plan{}, errRes
	}

	// Only the current owner may burn; there is no role override
	if owner != requester {
		return plan{}, multiplexer.NewErrorResponse(tokentypes.CodeNotOwner, tokentypes.Codespace, errNotOwner)
	}

	id := request.TokenId
	event := utils.Event("burn",
		utils.Attribute("principal", requester.String()),
		utils.Attribute("token_id", strconv.FormatUint(id, 10)),
	)

	return plan{
		stage: func(app *TokenApp) {
			app.txState.burned = append(app.txState.burned, id)
		},
		commit: func() error {
			return app.Repository.Burn(id)
		},
		event: &event,
	}, nil
}

func (app *TokenApp) validateWithdraw(requester types.Principal) (plan, *multiplexer.ErrorResponse) {
	owner, errRes := app.owner()
	if errRes != nil {
		return plan{}, errRes
	}

	if requester != owner {
		return plan{}, multiplexer.NewErrorResponse(
			tokentypes.CodeUnauthorized,
			tokentypes.Codespace,
			errors.New("only the owner can withdraw collected funds"),
		)
	}

	amount, errRes := app.effCustodianBalance()
	if errRes != nil {
		return plan{}, errRes
	}

	event := utils.Event("withdraw",
		utils.Attribute("principal", requester.String()),
		utils.Attribute("amount", amount.Dec()),
	)

	return plan{
		stage: func(app *TokenApp) {
			app.txState.swept = true
			app.txState.collected = uint256.NewInt(0)
		},
		commit: func() error {
			_, err := app.custodian.Sweep()
			return err
		},
		responseData: tokentypes.WithdrawResponse{Amount: amount},
		event:        &event,
	}, nil
}

func (app *TokenApp) validateConfigure(requester types.Principal, mutate func(cfg *tokentypes.SaleConfig) *multiplexer.ErrorResponse) (plan, *multiplexer.ErrorResponse) {
	if errRes := app.requireAdmin(requester); errRes != nil {
		return plan{}, errRes
	}

	cfg, errRes := app.effConfig()
	if errRes != nil {
		return plan{}, errRes
	}

	if errRes := mutate(&cfg); errRes != nil {
		return plan{}, errRes
	}

	event := utils.Event("config", utils.Attribute("principal", requester.String()))

	return plan{
		stage: func(app *TokenApp) {
			staged := cfg
			app.txState.config = &staged
		},
		commit: func() error {
			return app.Repository.SetSaleConfig(cfg)
		},
		event: &event,
	}, nil
}

func (app *TokenApp) validateWhitelistChange(requester, target types.Principal, add bool) (plan, *multiplexer.ErrorResponse) {
	if errRes := app.requireAdmin(requester); errRes != nil {
		return plan{}, errRes
	}

	whitelisted, errRes := app.effWhitelisted(target)
	if errRes != nil {
		return plan{}, errRes
	}

	if add && whitelisted {
		return plan{}, multiplexer.NewErrorResponse(tokentypes.CodeAlreadyWhitelisted, tokentypes.Codespace, errors.New("principal is already whitelisted"))
	}

	if !add && !whitelisted {
		return plan{}, multiplexer.NewErrorResponse(tokentypes.CodeNotOnWhitelist, tokentypes.Codespace, errors.New("principal is not whitelisted"))
	}

	event := utils.Event("whitelist",
		utils.Attribute("principal", target.String()),
		utils.Attribute("added", strconv.FormatBool(add)),
	)

	return plan{
		stage: func(app *TokenApp) {
			app.txState.whitelist[target] = add
		},
		commit: func() error {
			return app.Repository.SetWhitelisted(target, add)
		},
		event: &event,
	}, nil
}

func (app *TokenApp) validateRoleChange(requester types.Principal, request tokentypes.RoleRequest, grant bool) (plan, *multiplexer.ErrorResponse) {
	if errRes := app.requireAdmin(requester); errRes != nil {
		return plan{}, errRes
	}

	// The owner role is fixed at genesis and can never move through here
	if !request.Role.Grantable() {
		return plan{}, multiplexer.NewErrorResponse(
			tokentypes.CodeInvalidRole,
			tokentypes.Codespace,
			errors.Errorf("role %q cannot be granted or revoked", request.Role),
		)
	}

	held, errRes := app.effRoles(request.Principal)
	if errRes != nil {
		return plan{}, errRes
	}

	if grant && held.Has(request.Role) {
		return plan{}, multiplexer.NewErrorResponse(tokentypes.CodeRoleAlreadyHeld, tokentypes.Codespace, errors.New("principal already holds this role"))
	}

	if !grant && !held.Has(request.Role) {
		return plan{}, multiplexer.NewErrorResponse(tokentypes.CodeRoleNotHeld, tokentypes.Codespace, errors.New("principal does not hold this role"))
	}

	var updated tokentypes.RoleSet
	if grant {
		updated = held.With(request.Role)
	} else {
		updated = held.Without(request.Role)
	}

	target := request.Principal
	event := utils.Event("role",
		utils.Attribute("principal", target.String()),
		utils.Attribute("role", request.Role.String()),
		utils.Attribute("granted", strconv.FormatBool(grant)),
	)

	return plan{
		stage: func(app *TokenApp) {
			app.txState.roles[target] = updated
		},
		commit: func() error {
			return app.Repository.SetRoles(target, updated)
		},
		event: &event,
	}, nil
}

func (app *TokenApp) Query(ctx context.Context, req *abci.RequestQuery) (*abci.ResponseQuery, error) {
	parts := strings.Split(strings.TrimPrefix(req.Path, "/"), "/")

	switch parts[0] {
	case "owner":
		id, errRes := parseId(parts)
		if errRes != nil {
			return errRes.IntoQueryResponse(), nil
		}

		return app.queryOwner(id)
	case "uri":
		id, errRes := parseId(parts)
		if errRes != nil {
			return errRes.IntoQueryResponse(), nil
		}

		return app.queryURI(id)
	case "wallet":
		if len(parts) != 2 {
			return invalidPath("expected /wallet/<principal>").IntoQueryResponse(), nil
		}

		wallet, err := app.Repository.WalletOf(types.Principal(parts[1]))
		if err != nil {
			return app.queryError(err).IntoQueryResponse(), nil
		}

		return okJson(wallet)
	case "balance":
		if len(parts) != 2 {
			return invalidPath("expected /balance/<principal>").IntoQueryResponse(), nil
		}

		balance, err := app.Repository.BalanceOf(types.Principal(parts[1]))
		if err != nil {
			return app.queryError(err).IntoQueryResponse(), nil
		}

		return okJson(balance)
	case "supply":
		minted, err := app.Repository.Minted()
		if err != nil {
			return app.queryError(err).IntoQueryResponse(), nil
		}

		circulating, err := app.Repository.Circulating()
		if err != nil {
			return app.queryError(err).IntoQueryResponse(), nil
		}

		return okJson(tokentypes.SupplyInfo{Minted: minted, Circulating: circulating})
	case "config":
		cfg, err := app.Repository.SaleConfig()
		if err != nil {
			return app.queryError(err).IntoQueryResponse(), nil
		}

		return okJson(cfg)
	case "collection":
		collection, err := app.Repository.Collection()
		if err != nil {
			return app.queryError(err).IntoQueryResponse(), nil
		}

		return okJson(collection)
	case "roles":
		if len(parts) != 2 {
			return invalidPath("expected /roles/<principal>").IntoQueryResponse(), nil
		}

		principal := types.Principal(parts[1])

		owner, err := app.Repository.Owner()
		if err != nil {
			return app.queryError(err).IntoQueryResponse(), nil
		}

		roles, err := app.Repository.Roles(principal)
		if err != nil {
			return app.queryError(err).IntoQueryResponse(), nil
		}

		return okJson(tokentypes.RolesInfo{Owner: principal == owner, Roles: roles})
	case "whitelist":
		if len(parts) != 2 {
			return invalidPath("expected /whitelist/<principal>").IntoQueryResponse(), nil
		}

		whitelisted, err := app.Repository.Whitelisted(types.Principal(parts[1]))
		if err != nil {
			return app.queryError(err).IntoQueryResponse(), nil
		}

		return okJson(whitelisted)
	case "custodian":
		balance, err := app.Repository.CustodianBalance()
		if err != nil {
			return app.queryError(err).IntoQueryResponse(), nil
		}

		return okJson(balance)
	default:
		return invalidPath("unknown query path").IntoQueryResponse(), nil
	}
}

func (app *TokenApp) queryOwner(id uint64) (*abci.ResponseQuery, error) {
	item, err := app.Repository.ItemWithProof(id)
	if err != nil {
		if errors.Is(err, proof.ErrTreeUninitialized) {
			return multiplexer.NewErrorResponse(tokentypes.CodeTreeUninitialized, tokentypes.Codespace, err).IntoQueryResponse(), nil
		}

		app.logger.Error("Got error getting item from TokenApp", zap.Error(err), zap.Uint64("id", id))
		return multiplexer.NewErrorResponse(tokentypes.CodeUnknownError, tokentypes.Codespace, err).IntoQueryResponse(), nil
	}

	// Burned items keep their tree record but have no owner
	if item.Item == nil || item.Item.Burned {
		return &abci.ResponseQuery{
			Code:      tokentypes.CodeNotFound,
			Log:       "item not found",
			Index:     item.Index,
			Key:       itemKey(id),
			Value:     nil,
			ProofOps:  item.ProofOps(),
			Height:    item.Height,
			Codespace: tokentypes.Codespace,
		}, nil
	}

	marshalled, err := json.Marshal(item.Item)
	if err != nil {
		app.logger.Warn("Got error marshalling item", zap.Error(err))
		return nil, err
	}

	return &abci.ResponseQuery{
		Code:      tokentypes.CodeOk,
		Index:     item.Index,
		Key:       itemKey(id),
		Value:     marshalled,
		ProofOps:  item.ProofOps(),
		Height:    item.Height,
		Codespace: tokentypes.Codespace,
	}, nil
}

func (app *TokenApp) queryURI(id uint64) (*abci.ResponseQuery, error) {
	if _, err := app.Repository.Item(id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return multiplexer.NewErrorResponse(tokentypes.CodeNotFound, tokentypes.Codespace, err).IntoQueryResponse(), nil
		}

		return app.queryError(err).IntoQueryResponse(), nil
	}

	cfg, err := app.Repository.SaleConfig()
	if err != nil {
		return app.queryError(err).IntoQueryResponse(), nil
	}

	return &abci.ResponseQuery{
		Code:      tokentypes.CodeOk,
		Value:     []byte(cfg.TokenURI(id)),
		Codespace: tokentypes.Codespace,
	}, nil
}

// --- effective (committed + staged) state views ---

func (app *TokenApp) effConfig() (tokentypes.SaleConfig, *multiplexer.ErrorResponse) {
	if app.txState.config != nil {
		return *app.txState.config, nil
	}

	cfg, err := app.Repository.SaleConfig()
	if err != nil {
		app.logger.Warn("Got error reading sale config", zap.Error(err))
		return tokentypes.SaleConfig{}, multiplexer.NewErrorResponse(tokentypes.CodeUnknownError, tokentypes.Codespace, err)
	}

	return cfg, nil
}

func (app *TokenApp) effRoles(principal types.Principal) (tokentypes.RoleSet, *multiplexer.ErrorResponse) {
	if staged, ok := app.txState.roles[principal]; ok {
		return staged, nil
	}

	roles, err := app.Repository.Roles(principal)
	if err != nil {
		app.logger.Warn("Got error reading roles", zap.Error(err), zap.String("principal", principal.String()))
		return nil, multiplexer.NewErrorResponse(tokentypes.CodeUnknownError, tokentypes.Codespace, err)
	}

	return roles, nil
}

func (app *TokenApp) effWhitelisted(principal types.Principal) (bool, *multiplexer.ErrorResponse) {
	if staged, ok := app.txState.whitelist[principal]; ok {
		return staged, nil
	}

	whitelisted, err := app.Repository.Whitelisted(principal)
	if err != nil {
		app.logger.Warn("Got error reading whitelist", zap.Error(err), zap.String("principal", principal.String()))
		return false, multiplexer.NewErrorResponse(tokentypes.CodeUnknownError, tokentypes.Codespace, err)
	}

	return whitelisted, nil
}

func (app *TokenApp) effMinted() (uint64, *multiplexer.ErrorResponse) {
	minted, err := app.Repository.Minted()
	if err != nil {
		app.logger.Warn("Got error reading minted counter", zap.Error(err))
		return 0, multiplexer.NewErrorResponse(tokentypes.CodeUnknownError, tokentypes.Codespace, err)
	}

	return minted + app.txState.mintedDelta, nil
}

func (app *TokenApp) effItemOwner(id uint64) (types.Principal, *multiplexer.ErrorResponse) {
	notFound := multiplexer.NewErrorResponse(tokentypes.CodeNotFound, tokentypes.Codespace, ErrNotFound)

	if utils.Contains(app.txState.burned, id) {
		return "", notFound
	}

	if owner, ok := app.txState.items[id]; ok {
		return owner, nil
	}

	item, err := app.Repository.Item(id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", notFound
		}

		app.logger.Warn("Got error reading item", zap.Error(err), zap.Uint64("id", id))
		return "", multiplexer.NewErrorResponse(tokentypes.CodeUnknownError, tokentypes.Codespace, err)
	}

	return item.Owner, nil
}

func (app *TokenApp) effCustodianBalance() (*uint256.Int, *multiplexer.ErrorResponse) {
	if app.txState.swept {
		return new(uint256.Int).Set(app.txState.collected), nil
	}

	balance, err := app.Repository.CustodianBalance()
	if err != nil {
		app.logger.Warn("Got error reading custodian balance", zap.Error(err))
		return nil, multiplexer.NewErrorResponse(tokentypes.CodeUnknownError, tokentypes.Codespace, err)
	}

	return new(uint256.Int).Add(balance, app.txState.collected), nil
}

func (app *TokenApp) owner() (types.Principal, *multiplexer.ErrorResponse) {
	owner, err := app.Repository.Owner()
	if err != nil {
		app.logger.Warn("Got error reading owner", zap.Error(err))
		return "", multiplexer.NewErrorResponse(tokentypes.CodeUnknownError, tokentypes.Codespace, err)
	}

	return owner, nil
}

func (app *TokenApp) callerFor(principal types.Principal) (caller, *multiplexer.ErrorResponse) {
	owner, errRes := app.owner()
	if errRes != nil {
		return caller{}, errRes
	}

	roles, errRes := app.effRoles(principal)
	if errRes != nil {
		return caller{}, errRes
	}

	whitelisted, errRes := app.effWhitelisted(principal)
	if errRes != nil {
		return caller{}, errRes
	}

	return caller{
		isOwner:     principal == owner,
		roles:       roles,
		whitelisted: whitelisted,
	}, nil
}

func (app *TokenApp) requireAdmin(principal types.Principal) *multiplexer.ErrorResponse {
	c, errRes := app.callerFor(principal)
	if errRes != nil {
		return errRes
	}

	if !c.privileged() {
		return multiplexer.NewErrorResponse(
			tokentypes.CodeUnauthorized,
			tokentypes.Codespace,
			errors.New("only the owner or an admin can perform this operation"),
		)
	}

	return nil
}

func (app *TokenApp) encodingError(err error) *multiplexer.ErrorResponse {
	app.logger.Warn("Got error decoding TokenApp payload", zap.Error(err))
	return multiplexer.NewErrorResponse(multiplexer.CodeEncodingError, multiplexer.Codespace, err)
}

func (app *TokenApp) queryError(err error) *multiplexer.ErrorResponse {
	app.logger.Warn("Got error serving TokenApp query", zap.Error(err))
	return multiplexer.NewErrorResponse(tokentypes.CodeUnknownError, tokentypes.Codespace, err)
}

func (app *TokenApp) save() error {
	_, versionNumber, err := app.Repository.Save()
	if err != nil {
		return err
	}

	app.versionNumber = versionNumber
	return nil
}

func invalidPath(msg string) *multiplexer.ErrorResponse {
	return multiplexer.NewErrorResponse(tokentypes.CodeInvalidQueryPath, tokentypes.Codespace, errors.New(msg))
}

func parseId(parts []string) (uint64, *multiplexer.ErrorResponse) {
	if len(parts) != 2 {
		return 0, invalidPath("expected /" + parts[0] + "/<id>")
	}

	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, invalidPath("item id must be a positive integer")
	}

	return id, nil
}

func okJson(value any) (*abci.ResponseQuery, error) {
	marshalled, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	return &abci.ResponseQuery{
		Code:      tokentypes.CodeOk,
		Value:     marshalled,
		Codespace: tokentypes.Codespace,
	}, nil
}
