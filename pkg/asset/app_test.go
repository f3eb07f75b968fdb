package asset

import (
	"context"
	"encoding/json"
	"testing"

	dbm "github.com/cometbft/cometbft-db"
	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/slimebit/slimechain/pkg/multiplexer"
	"github.com/slimebit/slimechain/pkg/proof"
	"github.com/slimebit/slimechain/pkg/types"
	assettypes "github.com/slimebit/slimechain/pkg/types/asset"
	"github.com/slimebit/slimechain/pkg/types/rpc"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	principalTreasury types.Principal = "treasury"
	principalAlice    types.Principal = "alice"
	principalBob      types.Principal = "bob"
	principalSpender  types.Principal = "token:custodian"
)

func newTestApp(t *testing.T) *AssetApp {
	t.Helper()

	logger, err := zap.NewDevelopment()
	require.NoErrorf(t, err, "failed to create logger: %v", err)

	app, err := NewAssetApp(logger, dbm.NewMemDB())
	require.NoErrorf(t, err, "failed to create asset app: %v", err)

	return app
}

func finalize(t *testing.T, app *AssetApp, principal types.Principal, requestType rpc.RequestType, data any) multiplexer.FinalizeBlockResponse {
	t.Helper()

	marshalledData, err := json.Marshal(data)
	require.NoErrorf(t, err, "failed to marshal request data: %v", err)

	payload := rpc.AuthenticatedPayload{
		Payload: rpc.Payload{
			Type: requestType,
			Data: marshalledData,
		},
		Principal: principal,
	}

	marshalled, err := json.Marshal(payload)
	require.NoErrorf(t, err, "failed to marshal payload: %v", err)

	return app.FinalizeBlock(context.Background(), &abci.RequestFinalizeBlock{}, marshalled)
}

func execute(t *testing.T, app *AssetApp, principal types.Principal, requestType rpc.RequestType, data any) abci.ExecTxResult {
	t.Helper()

	res := finalize(t, app, principal, requestType, data)
	if res.TxResult.Code == assettypes.CodeOk {
		require.NotNilf(t, res.CommitFunc, "accepted transaction returned no commit func")
		require.NoErrorf(t, res.CommitFunc(), "failed to commit transaction")
	}

	return res.TxResult
}

func seed(t *testing.T, app *AssetApp) {
	t.Helper()

	result := execute(t, app, principalTreasury, assettypes.RequestTypeSeed, assettypes.SeedRequest{
		Name:     "Slime Coin",
		Symbol:   "SLC",
		Treasury: principalTreasury,
		Supply:   uint256.NewInt(1000),
		Nonce:    uuid.NewString(),
	})
	require.Equalf(t, assettypes.CodeOk, result.Code, "seed failed: %s", result.Log)
}

func TestSeed(t *testing.T) {
	app := newTestApp(t)

	// A fresh ledger rejects transfers
	result := execute(t, app, principalTreasury, assettypes.RequestTypeTransfer, assettypes.TransferRequest{
		To:     principalAlice,
		Amount: uint256.NewInt(1),
	})
	require.Equal(t, assettypes.CodeNotSeeded, result.Code)

	seed(t, app)

	balance, err := app.Repository.BalanceOf(principalTreasury)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(1000), balance)

	info, err := app.Repository.Info()
	require.NoError(t, err)
	require.Equal(t, "SLC", info.Symbol)
	require.Equal(t, uint256.NewInt(1000), info.Supply)

	// Seeding is a one-shot operation
	result = execute(t, app, principalTreasury, assettypes.RequestTypeSeed, assettypes.SeedRequest{
		Name:     "Slime Coin",
		Symbol:   "SLC",
		Treasury: principalTreasury,
		Supply:   uint256.NewInt(1000),
	})
	require.Equal(t, assettypes.CodeAlreadySeeded, result.Code)
}

func TestTransfer(t *testing.T) {
	app := newTestApp(t)
	seed(t, app)

	result := execute(t, app, principalTreasury, assettypes.RequestTypeTransfer, assettypes.TransferRequest{
		To:     principalAlice,
		Amount: uint256.NewInt(400),
	})
	require.Equalf(t, assettypes.CodeOk, result.Code, "transfer failed: %s", result.Log)

	balance, err := app.Repository.BalanceOf(principalAlice)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(400), balance)

	balance, err = app.Repository.BalanceOf(principalTreasury)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(600), balance)

	result = execute(t, app, principalAlice, assettypes.RequestTypeTransfer, assettypes.TransferRequest{
		To:     principalBob,
		Amount: uint256.NewInt(500),
	})
	require.Equal(t, assettypes.CodeInsufficientBalance, result.Code)
}

func TestTransferFrom(t *testing.T) {
	app := newTestApp(t)
	seed(t, app)

	// No allowance yet
	result := execute(t, app, principalSpender, assettypes.RequestTypeTransferFrom, assettypes.TransferFromRequest{
		From:   principalTreasury,
		To:     principalBob,
		Amount: uint256.NewInt(100),
	})
	require.Equal(t, assettypes.CodeInsufficientAllowance, result.Code)

	result = execute(t, app, principalTreasury, assettypes.RequestTypeApprove, assettypes.ApproveRequest{
		Spender: principalSpender,
		Amount:  uint256.NewInt(150),
	})
	require.Equalf(t, assettypes.CodeOk, result.Code, "approve failed: %s", result.Log)

	result = execute(t, app, principalSpender, assettypes.RequestTypeTransferFrom, assettypes.TransferFromRequest{
		From:   principalTreasury,
		To:     principalBob,
		Amount: uint256.NewInt(100),
	})
	require.Equalf(t, assettypes.CodeOk, result.Code, "transfer-from failed: %s", result.Log)

	balance, err := app.Repository.BalanceOf(principalBob)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(100), balance)

	// The allowance is decremented by what was spent
	allowance, err := app.Repository.Allowance(principalTreasury, principalSpender)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(50), allowance)

	result = execute(t, app, principalSpender, assettypes.RequestTypeTransferFrom, assettypes.TransferFromRequest{
		From:   principalTreasury,
		To:     principalBob,
		Amount: uint256.NewInt(100),
	})
	require.Equal(t, assettypes.CodeInsufficientAllowance, result.Code)
}

func TestInBlockDebitsAreVisible(t *testing.T) {
	app := newTestApp(t)
	seed(t, app)

	result := execute(t, app, principalTreasury, assettypes.RequestTypeTransfer, assettypes.TransferRequest{
		To:     principalAlice,
		Amount: uint256.NewInt(100),
	})
	require.Equalf(t, assettypes.CodeOk, result.Code, "transfer failed: %s", result.Log)

	// Two spends of the same balance within one block: the second must see
	// the first's debit and fail.
	first := finalize(t, app, principalAlice, assettypes.RequestTypeTransfer, assettypes.TransferRequest{
		To:     principalBob,
		Amount: uint256.NewInt(80),
	})
	require.Equalf(t, assettypes.CodeOk, first.TxResult.Code, "first spend failed: %s", first.TxResult.Log)

	second := finalize(t, app, principalAlice, assettypes.RequestTypeTransfer, assettypes.TransferRequest{
		To:     principalBob,
		Amount: uint256.NewInt(80),
	})
	require.Equal(t, assettypes.CodeInsufficientBalance, second.TxResult.Code)

	require.NoError(t, first.CommitFunc())

	balance, err := app.Repository.BalanceOf(principalAlice)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(20), balance)
}

func TestQueries(t *testing.T) {
	app := newTestApp(t)
	seed(t, app)

	res, err := app.Query(context.Background(), &abci.RequestQuery{Path: "/balance/treasury"})
	require.NoError(t, err)
	require.Equal(t, assettypes.CodeOk, res.Code)
	require.NoErrorf(t, proof.ValidateProofOps(res.ProofOps), "balance proof failed validation")

	var balance uint256.Int
	require.NoError(t, json.Unmarshal(res.Value, &balance))
	require.Equal(t, uint256.NewInt(1000), &balance)

	// Unknown principals read as zero
	res, err = app.Query(context.Background(), &abci.RequestQuery{Path: "/balance/nobody"})
	require.NoError(t, err)
	require.Equal(t, assettypes.CodeOk, res.Code)

	require.NoError(t, json.Unmarshal(res.Value, &balance))
	require.True(t, balance.IsZero())

	res, err = app.Query(context.Background(), &abci.RequestQuery{Path: "/supply"})
	require.NoError(t, err)
	require.Equal(t, assettypes.CodeOk, res.Code)

	var info assettypes.Info
	require.NoError(t, json.Unmarshal(res.Value, &info))
	require.Equal(t, "Slime Coin", info.Name)

	res, err = app.Query(context.Background(), &abci.RequestQuery{Path: "/bogus"})
	require.NoError(t, err)
	require.Equal(t, assettypes.CodeInvalidQueryPath, res.Code)
}

func TestSelfTransferIsBalanceNeutral(t *testing.T) {
	app := newTestApp(t)
	seed(t, app)

	// Crediting the recipient from its pre-debit balance would let a
	// self-transfer mint money
	result := execute(t, app, principalTreasury, assettypes.RequestTypeTransfer, assettypes.TransferRequest{
		To:     principalTreasury,
		Amount: uint256.NewInt(40),
	})
	require.Equalf(t, assettypes.CodeOk, result.Code, "self transfer failed: %s", result.Log)

	balance, err := app.Repository.BalanceOf(principalTreasury)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(1000), balance)

	// The balance check still applies
	result = execute(t, app, principalTreasury, assettypes.RequestTypeTransfer, assettypes.TransferRequest{
		To:     principalTreasury,
		Amount: uint256.NewInt(2000),
	})
	require.Equal(t, assettypes.CodeInsufficientBalance, result.Code)
}

func TestSelfTransferFromIsBalanceNeutral(t *testing.T) {
	app := newTestApp(t)
	seed(t, app)

	result := execute(t, app, principalTreasury, assettypes.RequestTypeApprove, assettypes.ApproveRequest{
		Spender: principalSpender,
		Amount:  uint256.NewInt(100),
	})
	require.Equalf(t, assettypes.CodeOk, result.Code, "approve failed: %s", result.Log)

	result = execute(t, app, principalSpender, assettypes.RequestTypeTransferFrom, assettypes.TransferFromRequest{
		From:   principalTreasury,
		To:     principalTreasury,
		Amount: uint256.NewInt(40),
	})
	require.Equalf(t, assettypes.CodeOk, result.Code, "self transfer-from failed: %s", result.Log)

	balance, err := app.Repository.BalanceOf(principalTreasury)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(1000), balance)

	// The allowance is spent even though no funds moved
	allowance, err := app.Repository.Allowance(principalTreasury, principalSpender)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(60), allowance)
}

func TestAllowanceKeysDoNotAlias(t *testing.T) {
	app := newTestApp(t)
	seed(t, app)

	// Principals are opaque strings; one containing the key separator must
	// not collide with another owner/spender pair
	require.NoError(t, app.Repository.Approve("alice/x", "y", uint256.NewInt(5)))

	allowance, err := app.Repository.Allowance("alice", "x/y")
	require.NoError(t, err)
	require.True(t, allowance.IsZero())

	allowance, err = app.Repository.Allowance("alice/x", "y")
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(5), allowance)
}
