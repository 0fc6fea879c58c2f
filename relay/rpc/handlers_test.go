package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/config/params"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/chain"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/deposits"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/lifecycle"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/prover"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/store"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/types"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/venue"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/testing/assert"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/testing/require"
	"github.com/mr-tron/base58"
)

type harness struct {
	svc   *Service
	lc    *lifecycle.Service
	store *store.Store
	chain *chain.Sim
}

func setup(t *testing.T) *harness {
	t.Helper()
	prev := params.Relay()
	params.OverrideRelayConfig(params.DefaultRelayConfig())
	t.Cleanup(func() { params.OverrideRelayConfig(prev) })

	st := store.New()
	ch := chain.NewSim(testAddr(9))
	lc := lifecycle.New(&lifecycle.Config{
		Store:  st,
		Venue:  venue.NewMock(),
		Prover: prover.NewMock(),
		Sender: ch,
	})
	matcher := deposits.NewService(context.Background(), &deposits.Config{
		Store:     st,
		Watcher:   ch,
		Sender:    ch,
		Lifecycle: lc,
	})
	t.Cleanup(func() { _ = matcher.Stop() })
	svc := NewService(&Config{Addr: "127.0.0.1:0", Store: st, Lifecycle: lc, Matcher: matcher})
	return &harness{svc: svc, lc: lc, store: st, chain: ch}
}

func testAddr(b byte) string {
	return base58.Encode(bytes.Repeat([]byte{b}, 32))
}

func (h *harness) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.svc.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func submitBody(wallet string) *SubmitOrderRequest {
	return &SubmitOrderRequest{
		MarketID:   "TRUMP-2028",
		Side:       "YES",
		UsdcAmount: "50",
		Distribution: []types.Destination{
			{Address: wallet, Bps: types.BpsDenominator},
		},
	}
}

func TestSubmitOrderEndpoint(t *testing.T) {
	h := setup(t)

	rec := h.do(t, http.MethodPost, "/order", submitBody(testAddr(1)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp SubmitOrderResponse
	decode(t, rec, &resp)
	assert.Equal(t, true, resp.Success)
	assert.Equal(t, types.OrderPendingDeposit, resp.Status)
	assert.NotEqual(t, "", resp.OrderID)
	assert.NotEqual(t, "", resp.BatchID)
	assert.NotEqual(t, "", resp.CommitmentHash)
	require.NotNil(t, resp.Deposit)
	assert.Equal(t, testAddr(9), resp.Deposit.Address)
	assert.Equal(t, "50", resp.Deposit.Amount)
	assert.Equal(t, resp.OrderID, resp.Deposit.Memo, "the deposit memo is the order id")
}

func TestSubmitOrderRejectsBadInput(t *testing.T) {
	h := setup(t)

	body := submitBody(testAddr(1))
	body.Side = "BOTH"
	rec := h.do(t, http.MethodPost, "/order", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/order", "not json at all")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetOrderEndpoint(t *testing.T) {
	h := setup(t)

	var resp SubmitOrderResponse
	decode(t, h.do(t, http.MethodPost, "/order", submitBody(testAddr(1))), &resp)

	rec := h.do(t, http.MethodGet, "/order/"+resp.OrderID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got types.Order
	decode(t, rec, &got)
	assert.Equal(t, resp.OrderID, got.ID)

	rec = h.do(t, http.MethodGet, "/order/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActivateAndExecuteEndpoints(t *testing.T) {
	h := setup(t)

	var resp SubmitOrderResponse
	decode(t, h.do(t, http.MethodPost, "/order", submitBody(testAddr(1))), &resp)

	rec := h.do(t, http.MethodPost, "/order/"+resp.OrderID+"/activate",
		&ActivateOrderRequest{DepositTxSignature: "sig-1", SenderWallet: testAddr(7)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var funded types.Order
	decode(t, rec, &funded)
	assert.Equal(t, types.OrderPending, funded.Status)

	// Double activation conflicts.
	rec = h.do(t, http.MethodPost, "/order/"+resp.OrderID+"/activate",
		&ActivateOrderRequest{DepositTxSignature: "sig-1"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Executing a collecting batch closes it on the way in.
	rec = h.do(t, http.MethodPost, "/batch/"+resp.BatchID+"/execute", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var batch types.Batch
	decode(t, rec, &batch)
	assert.Equal(t, types.BatchCompleted, batch.Status)

	// Re-executing a finished batch conflicts.
	rec = h.do(t, http.MethodPost, "/batch/"+resp.BatchID+"/execute", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestProofEndpoint(t *testing.T) {
	h := setup(t)

	var resp SubmitOrderResponse
	decode(t, h.do(t, http.MethodPost, "/order", submitBody(testAddr(1))), &resp)

	// Before execution the reply is still 200, with no proof yet.
	rec := h.do(t, http.MethodGet, "/batch/"+resp.BatchID+"/proof", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pending ProofResponse
	decode(t, rec, &pending)
	assert.Equal(t, false, pending.HasProof)
	assert.Equal(t, "pending", pending.Status)
	assert.Equal(t, "", pending.ProofHash)

	ctx := context.Background()
	require.NoError(t, h.lc.Activate(ctx, resp.OrderID, "sig-1", testAddr(7), 50_000_000))
	require.NoError(t, h.lc.CloseBatch(ctx, resp.BatchID))
	require.NoError(t, h.lc.Execute(ctx, resp.BatchID))

	rec = h.do(t, http.MethodGet, "/batch/"+resp.BatchID+"/proof", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var proof ProofResponse
	decode(t, rec, &proof)
	assert.Equal(t, true, proof.HasProof)
	assert.Equal(t, "verified", proof.Status)
	assert.StringContains(t, "0x", proof.ProofHash)
	assert.NotEqual(t, "", proof.Proof)
	assert.StringContains(t, "0x", proof.MerkleRoot)
	require.Equal(t, 3, len(proof.PublicInputs))
	require.NotNil(t, proof.ExecutionInfo)
	assert.Equal(t, "50", proof.ExecutionInfo.ActualUsdcSpent)
	assert.NotEqual(t, uint64(0), proof.ExecutionInfo.ActualSharesReceived)

	// Unknown batches are still 404.
	rec = h.do(t, http.MethodGet, "/batch/nope/proof", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExecuteReadyEndpoint(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	var resp SubmitOrderResponse
	decode(t, h.do(t, http.MethodPost, "/order", submitBody(testAddr(1))), &resp)
	require.NoError(t, h.lc.Activate(ctx, resp.OrderID, "sig-1", testAddr(7), 50_000_000))
	require.NoError(t, h.lc.CloseBatch(ctx, resp.BatchID))

	rec := h.do(t, http.MethodPost, "/execute-ready", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out ExecuteReadyResponse
	decode(t, rec, &out)
	assert.Equal(t, 1, out.Executed)
}

func TestDepositAdminEndpoints(t *testing.T) {
	h := setup(t)

	var resp SubmitOrderResponse
	decode(t, h.do(t, http.MethodPost, "/order", submitBody(testAddr(1))), &resp)

	h.store.AddUnmatched(&types.UnmatchedDeposit{
		TxID: "orphan-1", Sender: testAddr(7), AmountMicros: 50_000_000, Memo: "garbled",
	})

	rec := h.do(t, http.MethodGet, "/deposits/unmatched", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var deps []*types.UnmatchedDeposit
	decode(t, rec, &deps)
	require.Equal(t, 1, len(deps))

	rec = h.do(t, http.MethodPost, "/deposits/match",
		&MatchDepositRequest{Signature: "orphan-1", OrderID: resp.OrderID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var funded types.Order
	decode(t, rec, &funded)
	assert.Equal(t, types.OrderPending, funded.Status)

	// Resolved deposits disappear from the default listing.
	rec = h.do(t, http.MethodGet, "/deposits/unmatched", nil)
	decode(t, rec, &deps)
	assert.Equal(t, 0, len(deps))
	rec = h.do(t, http.MethodGet, "/deposits/unmatched?includeResolved=true", nil)
	decode(t, rec, &deps)
	assert.Equal(t, 1, len(deps))
}

func TestRefundDepositEndpoint(t *testing.T) {
	h := setup(t)

	h.store.AddUnmatched(&types.UnmatchedDeposit{
		TxID: "orphan-1", Sender: testAddr(7), AmountMicros: 9_000_000,
	})
	rec := h.do(t, http.MethodPost, "/deposits/refund", &RefundDepositRequest{Signature: "orphan-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out RefundDepositResponse
	decode(t, rec, &out)
	assert.Equal(t, "orphan-1", out.Signature)
	assert.NotEqual(t, "", out.RefundTx)
	require.Equal(t, 1, len(h.chain.SendsTo(testAddr(7))))

	rec = h.do(t, http.MethodPost, "/deposits/refund", &RefundDepositRequest{Signature: "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusAndDepositAddressEndpoints(t *testing.T) {
	h := setup(t)

	var resp SubmitOrderResponse
	decode(t, h.do(t, http.MethodPost, "/order", submitBody(testAddr(1))), &resp)

	rec := h.do(t, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status StatusResponse
	decode(t, rec, &status)
	require.NotNil(t, status.Stats)
	assert.Equal(t, 1, status.Stats.TotalOrders)
	assert.Equal(t, 1, status.Stats.TotalBatches)
	assert.Equal(t, 1, status.Stats.Collecting)
	require.NotNil(t, status.Wallet)
	assert.Equal(t, testAddr(9), status.Wallet.Address)
	assert.NotEqual(t, uint64(0), status.Wallet.SolBalance, "the sim custody wallet starts with SOL")

	rec = h.do(t, http.MethodGet, "/deposit-address", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var addr DepositAddressResponse
	decode(t, rec, &addr)
	assert.Equal(t, testAddr(9), addr.Address)
	assert.Equal(t, "usdc", addr.Type)
}

func TestEncryptedOrderEndpoint(t *testing.T) {
	h := setup(t)

	commit := "0x" + string(bytes.Repeat([]byte("0"), 63)) + "1"
	rec := h.do(t, http.MethodPost, "/order/encrypted", &SubmitEncryptedOrderRequest{
		MarketID:       "TRUMP-2028",
		Side:           "YES",
		Ciphertext:     "b3BhcXVlLXBheWxvYWQ=",
		CommitmentHash: commit,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp SubmitOrderResponse
	decode(t, rec, &resp)
	assert.Equal(t, types.OrderPendingDeposit, resp.Status)
	assert.Equal(t, "", resp.Deposit.Amount, "encrypted orders fund at whatever the deposit carries")

	var order types.Order
	decode(t, h.do(t, http.MethodGet, "/order/"+resp.OrderID, nil), &order)
	assert.Equal(t, true, order.IsEncrypted)

	rec = h.do(t, http.MethodPost, "/order/encrypted", &SubmitEncryptedOrderRequest{
		MarketID: "TRUMP-2028", Side: "YES", Ciphertext: "!!!", CommitmentHash: commit,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActivateEncryptedOrderNeedsAmount(t *testing.T) {
	h := setup(t)

	commit := "0x" + string(bytes.Repeat([]byte("0"), 63)) + "2"
	var resp SubmitOrderResponse
	decode(t, h.do(t, http.MethodPost, "/order/encrypted", &SubmitEncryptedOrderRequest{
		MarketID:       "TRUMP-2028",
		Side:           "YES",
		Ciphertext:     "b3BhcXVlLXBheWxvYWQ=",
		CommitmentHash: commit,
	}), &resp)

	rec := h.do(t, http.MethodPost, "/order/"+resp.OrderID+"/activate",
		&ActivateOrderRequest{DepositTxSignature: "sig-1", SenderWallet: testAddr(7)})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/order/"+resp.OrderID+"/activate",
		&ActivateOrderRequest{DepositTxSignature: "sig-1", SenderWallet: testAddr(7), UsdcAmount: "25"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var funded types.Order
	decode(t, rec, &funded)
	assert.Equal(t, types.OrderPending, funded.Status)
	assert.Equal(t, uint64(25_000_000), funded.AmountMicros)
}
