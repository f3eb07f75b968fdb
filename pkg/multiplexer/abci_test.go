package multiplexer

import (
	"context"
	"encoding/json"
	"testing"

	dbm "github.com/cometbft/cometbft-db"
	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/slimebit/slimechain/pkg/types/rpc"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingApp is a minimal sub-app that records what it was asked to do, so
// routing and commit ordering can be asserted without real state machines.
type recordingApp struct {
	name      string
	received  []string
	committed []string
}

var _ MultiplexedApp = (*recordingApp)(nil)

func (a *recordingApp) Name() string {
	return a.name
}

func (a *recordingApp) Info(ctx context.Context, req *abci.RequestInfo) any {
	return map[string]any{"name": a.name}
}

func (a *recordingApp) InitChain(ctx context.Context, req *abci.RequestInitChain) []byte {
	return []byte(a.name + "-genesis")
}

func (a *recordingApp) CheckTx(ctx context.Context, req *abci.RequestCheckTx, data json.RawMessage) (*abci.ResponseCheckTx, error) {
	return &abci.ResponseCheckTx{Code: CodeOk}, nil
}

func (a *recordingApp) FinalizeBlock(ctx context.Context, req *abci.RequestFinalizeBlock, data json.RawMessage) FinalizeBlockResponse {
	payload := string(data)
	a.received = append(a.received, payload)

	return FinalizeBlockResponse{
		TxResult: abci.ExecTxResult{Code: CodeOk},
		AppHash:  []byte(a.name + "-hash"),
		CommitFunc: func() error {
			a.committed = append(a.committed, payload)
			return nil
		},
	}
}

func (a *recordingApp) Query(ctx context.Context, req *abci.RequestQuery) (*abci.ResponseQuery, error) {
	return &abci.ResponseQuery{Code: CodeOk, Value: []byte(a.name)}, nil
}

func newTestApplication(t *testing.T, subApps ...MultiplexedApp) *MultiplexedApplication {
	t.Helper()

	logger, err := zap.NewDevelopment()
	require.NoErrorf(t, err, "failed to create logger: %v", err)

	return NewApplication(logger, dbm.NewMemDB(), subApps...)
}

func muxedTx(t *testing.T, appName, payload string) []byte {
	t.Helper()

	marshalled, err := json.Marshal(rpc.MuxedRequest{
		App:  appName,
		Data: json.RawMessage(payload),
	})
	require.NoErrorf(t, err, "failed to marshal muxed request: %v", err)

	return marshalled
}

func TestRoutesToNamedApp(t *testing.T) {
	first := &recordingApp{name: "first"}
	second := &recordingApp{name: "second"}
	app := newTestApplication(t, first, second)

	res, err := app.FinalizeBlock(context.Background(), &abci.RequestFinalizeBlock{
		Height: 1,
		Txs: [][]byte{
			muxedTx(t, "first", `"a"`),
			muxedTx(t, "second", `"b"`),
			muxedTx(t, "first", `"c"`),
		},
	})
	require.NoError(t, err)
	require.Len(t, res.TxResults, 3)
	for _, result := range res.TxResults {
		require.Equal(t, CodeOk, result.Code)
	}

	require.Equal(t, []string{`"a"`, `"c"`}, first.received)
	require.Equal(t, []string{`"b"`}, second.received)

	// Nothing is applied until Commit
	require.Empty(t, first.committed)

	_, err = app.Commit(context.Background(), &abci.RequestCommit{})
	require.NoError(t, err)

	require.Equal(t, []string{`"a"`, `"c"`}, first.committed)
	require.Equal(t, []string{`"b"`}, second.committed)
}

func TestUnknownAppRejected(t *testing.T) {
	app := newTestApplication(t, &recordingApp{name: "first"})

	res, err := app.CheckTx(context.Background(), &abci.RequestCheckTx{
		Tx: muxedTx(t, "missing", `"a"`),
	})
	require.NoError(t, err)
	require.Equal(t, CodeUnknownApp, res.Code)

	finalizeRes, err := app.FinalizeBlock(context.Background(), &abci.RequestFinalizeBlock{
		Height: 1,
		Txs:    [][]byte{muxedTx(t, "missing", `"a"`)},
	})
	require.NoError(t, err)
	require.Len(t, finalizeRes.TxResults, 1)
	require.Equal(t, CodeUnknownApp, finalizeRes.TxResults[0].Code)
}

func TestMalformedTxRejected(t *testing.T) {
	app := newTestApplication(t, &recordingApp{name: "first"})

	res, err := app.CheckTx(context.Background(), &abci.RequestCheckTx{
		Tx: []byte("not json"),
	})
	require.NoError(t, err)
	require.Equal(t, CodeEncodingError, res.Code)
}

func TestRejectedTxContributesNoCommit(t *testing.T) {
	first := &recordingApp{name: "first"}
	app := newTestApplication(t, first)

	res, err := app.FinalizeBlock(context.Background(), &abci.RequestFinalizeBlock{
		Height: 1,
		Txs: [][]byte{
			muxedTx(t, "nope", `"a"`),
			muxedTx(t, "first", `"b"`),
		},
	})
	require.NoError(t, err)
	require.Equal(t, CodeUnknownApp, res.TxResults[0].Code)
	require.Equal(t, CodeOk, res.TxResults[1].Code)

	_, err = app.Commit(context.Background(), &abci.RequestCommit{})
	require.NoError(t, err)
	require.Equal(t, []string{`"b"`}, first.committed)
}

func TestAppHashDeterministicAcrossAppOrder(t *testing.T) {
	first := &recordingApp{name: "first"}
	second := &recordingApp{name: "second"}

	a := newTestApplication(t, first, second)
	b := newTestApplication(t, second, first)

	reqInit := &abci.RequestInitChain{}
	resA, err := a.InitChain(context.Background(), reqInit)
	require.NoError(t, err)

	resB, err := b.InitChain(context.Background(), reqInit)
	require.NoError(t, err)

	require.Equal(t, resA.AppHash, resB.AppHash)
}

func TestParseValidatorTx(t *testing.T) {
	update, err := parseValidatorTx("val:ed25519!uKHsmDEFz1X7Fnxaz6LANr9ze8WFGHJaXGJIFF7nYGs=!10")
	require.NoErrorf(t, err, "failed to parse validator tx: %v", err)
	require.EqualValues(t, 10, update.Power)

	_, err = parseValidatorTx("val:ed25519!only-two-parts")
	require.Error(t, err)

	_, err = parseValidatorTx("val:ed25519!%%%notbase64%%%!10")
	require.Error(t, err)

	_, err = parseValidatorTx("val:ed25519!uKHsmDEFz1X7Fnxaz6LANr9ze8WFGHJaXGJIFF7nYGs=!-3")
	require.Error(t, err)
}
