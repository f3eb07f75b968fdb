package asset

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"strings"

	dbm "github.com/cometbft/cometbft-db"
	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/cosmos/iavl"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/slimebit/slimechain/internal/utils"
	"github.com/slimebit/slimechain/pkg/multiplexer"
	"github.com/slimebit/slimechain/pkg/proof"
	"github.com/slimebit/slimechain/pkg/types"
	assettypes "github.com/slimebit/slimechain/pkg/types/asset"
	"github.com/slimebit/slimechain/pkg/types/rpc"
	"go.uber.org/zap"
)

// AssetApp is the fungible payment ledger: an allowance-based coin in the
// ERC-20 mould, run as its own sub-app so the drop can price mints in it
// without owning its state.
type AssetApp struct {
	Repository
	logger        *zap.Logger
	db            dbm.DB
	versionNumber int64
	txState       txState
}

type txState struct {
	seeded bool
	// debits staged against committed balances this block; credits are
	// deliberately not counted, so a transfer cannot be funded by another
	// transfer in the same block.
	debits     map[types.Principal]*uint256.Int
	allowances map[string]*uint256.Int // staged allowance remainders, keyed owner/spender
}

func defaultTxState() txState {
	return txState{
		seeded:     false,
		debits:     make(map[types.Principal]*uint256.Int),
		allowances: make(map[string]*uint256.Int),
	}
}

var _ multiplexer.MultiplexedApp = (*AssetApp)(nil)

const treeCacheSize = 1000

func NewAssetApp(logger *zap.Logger, db dbm.DB) (*AssetApp, error) {
	tree, err := iavl.NewMutableTree(db, treeCacheSize, false)
	if err != nil {
		return nil, err
	}

	versionNumber, err := tree.Load()
	if err != nil {
		return nil, err
	}

	return &AssetApp{
		Repository:    NewMerkleRepository(tree),
		logger:        logger,
		db:            db,
		versionNumber: versionNumber,
		txState:       defaultTxState(),
	}, nil
}

func (app *AssetApp) Name() string {
	return assettypes.AppName
}

func (app *AssetApp) Info(ctx context.Context, req *abci.RequestInfo) any {
	appHash, err := app.Repository.Hash()
	if err != nil {
		app.logger.Warn("Got error getting hash of AssetApp", zap.Error(err))
		return multiplexer.NewErrorResponse(multiplexer.CodeUnknownError, multiplexer.Codespace, err)
	}

	return map[string]any{
		"version":  app.versionNumber,
		"app_hash": hex.EncodeToString(appHash),
	}
}

func (app *AssetApp) InitChain(ctx context.Context, req *abci.RequestInitChain) []byte {
	appHash, err := app.Repository.Hash()
	if err != nil {
		app.logger.Fatal("Got error getting hash of AssetApp when running InitChain", zap.Error(err))
	}

	return appHash
}

func (app *AssetApp) CheckTx(ctx context.Context, req *abci.RequestCheckTx, data json.RawMessage) (*abci.ResponseCheckTx, error) {
	var payload rpc.AuthenticatedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		app.logger.Warn("Got error decoding AssetApp request", zap.Error(err))
		return multiplexer.NewErrorResponse(multiplexer.CodeEncodingError, multiplexer.Codespace, err).IntoCheckTxResponse(), nil
	}

	if errRes := app.validate(payload); errRes != nil {
		return errRes.IntoCheckTxResponse(), nil
	}

	return &abci.ResponseCheckTx{Code: assettypes.CodeOk, Codespace: assettypes.Codespace}, nil
}

func (app *AssetApp) FinalizeBlock(ctx context.Context, req *abci.RequestFinalizeBlock, data json.RawMessage) multiplexer.FinalizeBlockResponse {
	var payload rpc.AuthenticatedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		app.logger.Warn("Got error decoding AssetApp request", zap.Error(err))
		return multiplexer.NewErrorResponse(multiplexer.CodeEncodingError, multiplexer.Codespace, err).IntoFinalizeBlockResponse()
	}

	if errRes := app.validate(payload); errRes != nil {
		return errRes.IntoFinalizeBlockResponse()
	}

	appHash, err := app.Repository.Hash()
	if err != nil {
		app.logger.Warn("Got error getting app hash", zap.Error(err))
		return multiplexer.NewErrorResponse(multiplexer.CodeUnknownError, multiplexer.Codespace, err).IntoFinalizeBlockResponse()
	}

	switch payload.Type {
	case assettypes.RequestTypeSeed:
		var request assettypes.SeedRequest
		if err := json.Unmarshal(payload.Data, &request); err != nil {
			return multiplexer.NewErrorResponse(multiplexer.CodeEncodingError, multiplexer.Codespace, err).IntoFinalizeBlockResponse()
		}

		app.txState.seeded = true

		info := assettypes.Info{
			Name:   request.Name,
			Symbol: request.Symbol,
			Supply: request.Supply,
		}

		return app.success(appHash, utils.Event("seed",
			utils.Attribute("treasury", request.Treasury.String()),
			utils.Attribute("supply", request.Supply.Dec()),
		), func() error {
			app.txState = defaultTxState()

			if err := app.Repository.Seed(info, request.Treasury); err != nil {
				return err
			}

			return app.save()
		})
	case assettypes.RequestTypeTransfer:
		var request assettypes.TransferRequest
		if err := json.Unmarshal(payload.Data, &request); err != nil {
			return multiplexer.NewErrorResponse(multiplexer.CodeEncodingError, multiplexer.Codespace, err).IntoFinalizeBlockResponse()
		}

		app.stageDebit(payload.Principal, request.Amount)
		from := payload.Principal

		return app.success(appHash, utils.Event("transfer",
			utils.Attribute("from", from.String()),
			utils.Attribute("to", request.To.String()),
			utils.Attribute("amount", request.Amount.Dec()),
		), func() error {
			app.txState = defaultTxState()

			if err := app.Repository.Transfer(from, request.To, request.Amount); err != nil {
				return err
			}

			return app.save()
		})
	case assettypes.RequestTypeApprove:
		var request assettypes.ApproveRequest
		if err := json.Unmarshal(payload.Data, &request); err != nil {
			return multiplexer.NewErrorResponse(multiplexer.CodeEncodingError, multiplexer.Codespace, err).IntoFinalizeBlockResponse()
		}

		owner := payload.Principal
		app.txState.allowances[allowanceMapKey(owner, request.Spender)] = request.Amount

		return app.success(appHash, utils.Event("approve",
			utils.Attribute("owner", owner.String()),
			utils.Attribute("spender", request.Spender.String()),
			utils.Attribute("amount", request.Amount.Dec()),
		), func() error {
			app.txState = defaultTxState()

			if err := app.Repository.Approve(owner, request.Spender, request.Amount); err != nil {
				return err
			}

			return app.save()
		})
	case assettypes.RequestTypeTransferFrom:
		var request assettypes.TransferFromRequest
		if err := json.Unmarshal(payload.Data, &request); err != nil {
			return multiplexer.NewErrorResponse(multiplexer.CodeEncodingError, multiplexer.Codespace, err).IntoFinalizeBlockResponse()
		}

		spender := payload.Principal
		app.stageDebit(request.From, request.Amount)

		remaining, err := app.effectiveAllowance(request.From, spender)
		if err != nil {
			app.logger.Warn("Got error reading allowance", zap.Error(err))
			return multiplexer.NewErrorResponse(assettypes.CodeUnknownError, assettypes.Codespace, err).IntoFinalizeBlockResponse()
		}
		app.txState.allowances[allowanceMapKey(request.From, spender)] = new(uint256.Int).Sub(remaining, request.Amount)

		return app.success(appHash, utils.Event("transfer",
			utils.Attribute("from", request.From.String()),
			utils.Attribute("to", request.To.String()),
			utils.Attribute("spender", spender.String()),
			utils.Attribute("amount", request.Amount.Dec()),
		), func() error {
			app.txState = defaultTxState()

			if err := app.Repository.TransferFrom(spender, request.From, request.To, request.Amount); err != nil {
				return err
			}

			return app.save()
		})
	default:
		return multiplexer.NewErrorResponse(assettypes.CodeUnknownRequestType, assettypes.Codespace, nil).IntoFinalizeBlockResponse()
	}
}

func (app *AssetApp) Query(ctx context.Context, req *abci.RequestQuery) (*abci.ResponseQuery, error) {
	parts := strings.Split(strings.TrimPrefix(req.Path, "/"), "/")

	switch parts[0] {
	case "balance":
		if len(parts) != 2 {
			return multiplexer.NewErrorResponse(assettypes.CodeInvalidQueryPath, assettypes.Codespace, errors.New("expected /balance/<principal>")).IntoQueryResponse(), nil
		}

		principal := types.Principal(parts[1])
		item, err := app.BalanceWithProof(principal)
		if err != nil {
			if errors.Is(err, proof.ErrTreeUninitialized) {
				return multiplexer.NewErrorResponse(assettypes.CodeTreeUninitialized, assettypes.Codespace, err).IntoQueryResponse(), nil
			}

			app.logger.Error("Got error getting balance from AssetApp", zap.Error(err), zap.String("principal", principal.String()))
			return multiplexer.NewErrorResponse(assettypes.CodeUnknownError, assettypes.Codespace, err).IntoQueryResponse(), nil
		}

		balance := uint256.NewInt(0)
		if item.Item != nil {
			balance = item.Item
		}

		marshalled, err := json.Marshal(balance)
		if err != nil {
			return nil, err
		}

		return &abci.ResponseQuery{
			Code:      assettypes.CodeOk,
			Index:     item.Index,
			Key:       []byte(principal),
			Value:     marshalled,
			ProofOps:  item.ProofOps(),
			Height:    item.Height,
			Codespace: assettypes.Codespace,
		}, nil
	case "allowance":
		if len(parts) != 3 {
			return multiplexer.NewErrorResponse(assettypes.CodeInvalidQueryPath, assettypes.Codespace, errors.New("expected /allowance/<owner>/<spender>")).IntoQueryResponse(), nil
		}

		allowance, err := app.Allowance(types.Principal(parts[1]), types.Principal(parts[2]))
		if err != nil {
			return multiplexer.NewErrorResponse(assettypes.CodeUnknownError, assettypes.Codespace, err).IntoQueryResponse(), nil
		}

		marshalled, err := json.Marshal(allowance)
		if err != nil {
			return nil, err
		}

		return &abci.ResponseQuery{
			Code:      assettypes.CodeOk,
			Value:     marshalled,
			Codespace: assettypes.Codespace,
		}, nil
	case "supply":
		info, err := app.Repository.Info()
		if err != nil {
			if errors.Is(err, ErrNotSeeded) {
				return multiplexer.NewErrorResponse(assettypes.CodeNotSeeded, assettypes.Codespace, err).IntoQueryResponse(), nil
			}

			return multiplexer.NewErrorResponse(assettypes.CodeUnknownError, assettypes.Codespace, err).IntoQueryResponse(), nil
		}

		marshalled, err := json.Marshal(info)
		if err != nil {
			return nil, err
		}

		return &abci.ResponseQuery{
			Code:      assettypes.CodeOk,
			Value:     marshalled,
			Codespace: assettypes.Codespace,
		}, nil
	default:
		return multiplexer.NewErrorResponse(assettypes.CodeInvalidQueryPath, assettypes.Codespace, errors.New("unknown query path")).IntoQueryResponse(), nil
	}
}

// validate runs the stateful checks shared by CheckTx and FinalizeBlock.
// Committed state is read through the repository; in-block effects are
// layered on from txState.
func (app *AssetApp) validate(payload rpc.AuthenticatedPayload) *multiplexer.ErrorResponse {
	seeded, err := app.Repository.IsSeeded()
	if err != nil {
		app.logger.Warn("Got error checking if AssetApp is seeded", zap.Error(err))
		return multiplexer.NewErrorResponse(assettypes.CodeUnknownError, assettypes.Codespace, err)
	}
	seeded = seeded || app.txState.seeded

	switch payload.Type {
	case assettypes.RequestTypeSeed:
		var request assettypes.SeedRequest
		if err := json.Unmarshal(payload.Data, &request); err != nil {
			return multiplexer.NewErrorResponse(multiplexer.CodeEncodingError, multiplexer.Codespace, err)
		}

		if seeded {
			return multiplexer.NewErrorResponse(assettypes.CodeAlreadySeeded, assettypes.Codespace, errors.New("asset ledger is already seeded"))
		}

		if request.Supply == nil || request.Treasury == "" {
			return multiplexer.NewErrorResponse(assettypes.CodeInvalidAmount, assettypes.Codespace, errors.New("seed requires a treasury and a supply"))
		}

		return nil
	case assettypes.RequestTypeTransfer:
		var request assettypes.TransferRequest
		if err := json.Unmarshal(payload.Data, &request); err != nil {
			return multiplexer.NewErrorResponse(multiplexer.CodeEncodingError, multiplexer.Codespace, err)
		}

		if !seeded {
			return multiplexer.NewErrorResponse(assettypes.CodeNotSeeded, assettypes.Codespace, ErrNotSeeded)
		}

		if request.Amount == nil {
			return multiplexer.NewErrorResponse(assettypes.CodeInvalidAmount, assettypes.Codespace, errors.New("transfer requires an amount"))
		}

		return app.checkBalance(payload.Principal, request.Amount)
	case assettypes.RequestTypeApprove:
		var request assettypes.ApproveRequest
		if err := json.Unmarshal(payload.Data, &request); err != nil {
			return multiplexer.NewErrorResponse(multiplexer.CodeEncodingError, multiplexer.Codespace, err)
		}

		if !seeded {
			return multiplexer.NewErrorResponse(assettypes.CodeNotSeeded, assettypes.Codespace, ErrNotSeeded)
		}

		if request.Amount == nil {
			return multiplexer.NewErrorResponse(assettypes.CodeInvalidAmount, assettypes.Codespace, errors.New("approve requires an amount"))
		}

		return nil
	case assettypes.RequestTypeTransferFrom:
		var request assettypes.TransferFromRequest
		if err := json.Unmarshal(payload.Data, &request); err != nil {
			return multiplexer.NewErrorResponse(multiplexer.CodeEncodingError, multiplexer.Codespace, err)
		}

		if !seeded {
			return multiplexer.NewErrorResponse(assettypes.CodeNotSeeded, assettypes.Codespace, ErrNotSeeded)
		}

		if request.Amount == nil {
			return multiplexer.NewErrorResponse(assettypes.CodeInvalidAmount, assettypes.Codespace, errors.New("transfer-from requires an amount"))
		}

		remaining, err := app.effectiveAllowance(request.From, payload.Principal)
		if err != nil {
			app.logger.Warn("Got error reading allowance", zap.Error(err))
			return multiplexer.NewErrorResponse(assettypes.CodeUnknownError, assettypes.Codespace, err)
		}

		if remaining.Lt(request.Amount) {
			return multiplexer.NewErrorResponse(assettypes.CodeInsufficientAllowance, assettypes.Codespace, ErrInsufficientAllowance)
		}

		return app.checkBalance(request.From, request.Amount)
	default:
		app.logger.Warn("Unknown request type", zap.String("request_type", string(payload.Type)))
		return multiplexer.NewErrorResponse(assettypes.CodeUnknownRequestType, assettypes.Codespace, nil)
	}
}

func (app *AssetApp) checkBalance(principal types.Principal, amount *uint256.Int) *multiplexer.ErrorResponse {
	balance, err := app.SpendableBalance(principal)
	if err != nil {
		app.logger.Warn("Got error reading balance", zap.Error(err), zap.String("principal", principal.String()))
		return multiplexer.NewErrorResponse(assettypes.CodeUnknownError, assettypes.Codespace, err)
	}

	if balance.Lt(amount) {
		return multiplexer.NewErrorResponse(assettypes.CodeInsufficientBalance, assettypes.Codespace, ErrInsufficientBalance)
	}

	return nil
}

// SpendableBalance is the committed balance net of debits staged earlier in
// the current block.
func (app *AssetApp) SpendableBalance(principal types.Principal) (*uint256.Int, error) {
	balance, err := app.Repository.BalanceOf(principal)
	if err != nil {
		return nil, err
	}

	if staged, ok := app.txState.debits[principal]; ok {
		balance = new(uint256.Int).Sub(balance, staged)
	}

	return balance, nil
}

// SpendableAllowance is the allowance net of spends staged earlier in the
// current block.
func (app *AssetApp) SpendableAllowance(owner, spender types.Principal) (*uint256.Int, error) {
	return app.effectiveAllowance(owner, spender)
}

// StageSpend records a spend initiated by another app against this block's
// staged state, so a later transaction in the block cannot double-spend the
// funds. The spend must already have passed SpendableBalance and
// SpendableAllowance checks.
func (app *AssetApp) StageSpend(spender, from types.Principal, amount *uint256.Int) {
	app.stageDebit(from, amount)

	remaining, err := app.effectiveAllowance(from, spender)
	if err != nil {
		app.logger.Warn("Got error reading allowance while staging a spend", zap.Error(err))
		return
	}

	app.txState.allowances[allowanceMapKey(from, spender)] = new(uint256.Int).Sub(remaining, amount)
}

// ResetStaged clears the block's staged state. It runs at commit time and
// is safe to call more than once per block.
func (app *AssetApp) ResetStaged() {
	app.txState = defaultTxState()
}

func (app *AssetApp) effectiveAllowance(owner, spender types.Principal) (*uint256.Int, error) {
	if staged, ok := app.txState.allowances[allowanceMapKey(owner, spender)]; ok {
		return staged, nil
	}

	return app.Repository.Allowance(owner, spender)
}

func (app *AssetApp) stageDebit(principal types.Principal, amount *uint256.Int) {
	staged, ok := app.txState.debits[principal]
	if !ok {
		staged = uint256.NewInt(0)
	}

	app.txState.debits[principal] = new(uint256.Int).Add(staged, amount)
}

func (app *AssetApp) success(appHash []byte, event abci.Event, commit func() error) multiplexer.FinalizeBlockResponse {
	return multiplexer.FinalizeBlockResponse{
		TxResult: abci.ExecTxResult{
			Code:      assettypes.CodeOk,
			Events:    []abci.Event{event},
			Codespace: assettypes.Codespace,
		},
		AppHash:    appHash,
		CommitFunc: commit,
	}
}

func (app *AssetApp) save() error {
	_, versionNumber, err := app.Repository.Save()
	if err != nil {
		return err
	}

	app.versionNumber = versionNumber
	return nil
}

// Same escaping as the persisted allowance keys; a "/" inside a principal
// must not alias another owner/spender pair.
func allowanceMapKey(owner, spender types.Principal) string {
	return url.PathEscape(owner.String()) + "/" + url.PathEscape(spender.String())
}
