package lifecycle

import (
	"bytes"
	"context"
	"testing"

	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/config/params"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/chain"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/prover"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/store"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/types"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/venue"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/testing/assert"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/testing/require"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

type harness struct {
	svc    *Service
	store  *store.Store
	venue  *venue.Mock
	prover *prover.Mock
	chain  *chain.Sim
}

func setup(t *testing.T) *harness {
	t.Helper()
	prev := params.Relay()
	params.OverrideRelayConfig(params.DefaultRelayConfig())
	t.Cleanup(func() { params.OverrideRelayConfig(prev) })

	st := store.New()
	vn := venue.NewMock()
	pv := prover.NewMock()
	ch := chain.NewSim(testAddr(9))
	return &harness{
		svc:    New(&Config{Store: st, Venue: vn, Prover: pv, Sender: ch}),
		store:  st,
		venue:  vn,
		prover: pv,
		chain:  ch,
	}
}

func testAddr(b byte) string {
	return base58.Encode(bytes.Repeat([]byte{b}, 32))
}

func submitReq(amount string, wallets ...string) *SubmitRequest {
	dist := make([]types.Destination, len(wallets))
	each := uint32(types.BpsDenominator / len(wallets))
	var assigned uint32
	for i, w := range wallets {
		bps := each
		if i == len(wallets)-1 {
			bps = types.BpsDenominator - assigned
		}
		dist[i] = types.Destination{Address: w, Bps: bps}
		assigned += bps
	}
	return &SubmitRequest{
		MarketID:     "TRUMP-2028",
		Side:         "YES",
		UsdcAmount:   amount,
		Distribution: dist,
	}
}

func fund(t *testing.T, h *harness, orderID string) {
	t.Helper()
	o, err := h.store.GetOrder(orderID)
	require.NoError(t, err)
	require.NoError(t, h.svc.Activate(context.Background(), orderID, "tx-"+orderID, testAddr(7), o.AmountMicros))
}

func TestSubmitValidation(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	_, err := h.svc.Submit(ctx, &SubmitRequest{MarketID: "M", Side: "MAYBE", UsdcAmount: "10", LegacyWallet: testAddr(1)})
	require.ErrorContains(t, "must be YES or NO", err)

	_, err = h.svc.Submit(ctx, &SubmitRequest{Side: "YES", UsdcAmount: "10", LegacyWallet: testAddr(1)})
	require.ErrorContains(t, "marketId is required", err)

	_, err = h.svc.Submit(ctx, &SubmitRequest{MarketID: "M", Side: "YES", UsdcAmount: "0", LegacyWallet: testAddr(1)})
	require.ErrorContains(t, "usdcAmount", err)

	_, err = h.svc.Submit(ctx, &SubmitRequest{MarketID: "M", Side: "YES", UsdcAmount: "10"})
	require.ErrorContains(t, "distribution or destinationWallet", err)

	bad := submitReq("10", testAddr(1), testAddr(2))
	bad.Distribution[0].Bps = 4000 // sum 9000
	_, err = h.svc.Submit(ctx, bad)
	require.ErrorContains(t, "sum to", err)

	bad = submitReq("10", testAddr(1))
	bad.Distribution[0].Address = "not-base58!"
	_, err = h.svc.Submit(ctx, bad)
	require.ErrorContains(t, "invalid wallet", err)
}

func TestSubmitLegacyWallet(t *testing.T) {
	h := setup(t)
	o, err := h.svc.Submit(context.Background(), &SubmitRequest{
		MarketID:     "M",
		Side:         "NO",
		UsdcAmount:   "25.5",
		LegacyWallet: testAddr(3),
	})
	require.NoError(t, err)
	require.Equal(t, 1, len(o.Distribution))
	assert.Equal(t, testAddr(3), o.Distribution[0].Address)
	assert.Equal(t, uint32(types.BpsDenominator), o.Distribution[0].Bps)
	assert.Equal(t, uint64(25_500_000), o.AmountMicros)
	assert.Equal(t, types.OrderPendingDeposit, o.Status)
	assert.Equal(t, params.Relay().DefaultSlippageBps, o.SlippageBps)
	assert.StringContains(t, "0x", o.CommitmentHash)
}

func TestExecuteFullFill(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	a, err := h.svc.Submit(ctx, submitReq("40", testAddr(1)))
	require.NoError(t, err)
	b, err := h.svc.Submit(ctx, submitReq("60", testAddr(2)))
	require.NoError(t, err)
	require.Equal(t, a.BatchID, b.BatchID)

	fund(t, h, a.ID)
	fund(t, h, b.ID)
	require.NoError(t, h.svc.CloseBatch(ctx, a.BatchID))
	require.NoError(t, h.svc.Execute(ctx, a.BatchID))

	batch, err := h.store.GetBatch(a.BatchID)
	require.NoError(t, err)
	assert.Equal(t, types.BatchCompleted, batch.Status)
	assert.Equal(t, uint64(100_000_000), batch.FundedUsdcTotal)
	assert.Equal(t, uint64(100_000_000), batch.ActualUsdcSpent)
	// 100 USDC at 0.50 per share.
	assert.Equal(t, uint64(200_000_000), batch.ActualSharesReceived)
	assert.Equal(t, true, batch.ProofVerified)
	assert.StringContains(t, "0x", batch.MerkleRoot)
	require.Equal(t, 1, h.prover.GenerateCount())

	oa, err := h.store.GetOrder(a.ID)
	require.NoError(t, err)
	ob, err := h.store.GetOrder(b.ID)
	require.NoError(t, err)
	assert.Equal(t, types.OrderCompleted, oa.Status)
	assert.Equal(t, types.OrderCompleted, ob.Status)
	assert.Equal(t, uint64(80_000_000), oa.SharesReceived)
	assert.Equal(t, uint64(120_000_000), ob.SharesReceived)
	assert.Equal(t, uint64(0), oa.RefundAmount)

	sendsA := h.chain.SendsTo(testAddr(1))
	require.Equal(t, 1, len(sendsA))
	assert.Equal(t, uint64(80_000_000), sendsA[0].Amount)
	assert.NotEqual(t, "", sendsA[0].Mint, "share sends carry the outcome mint")
}

func TestExecutePartialFillRefunds(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	a, err := h.svc.Submit(ctx, submitReq("80", testAddr(1)))
	require.NoError(t, err)
	b, err := h.svc.Submit(ctx, submitReq("120", testAddr(2)))
	require.NoError(t, err)
	fund(t, h, a.ID)
	fund(t, h, b.ID)

	h.venue.FillRatioBps = 5000 // half the notional fills
	require.NoError(t, h.svc.CloseBatch(ctx, a.BatchID))
	require.NoError(t, h.svc.Execute(ctx, a.BatchID))

	oa, err := h.store.GetOrder(a.ID)
	require.NoError(t, err)
	ob, err := h.store.GetOrder(b.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(40_000_000), oa.EffectiveUsdcSpent)
	assert.Equal(t, uint64(40_000_000), oa.RefundAmount)
	assert.Equal(t, uint64(60_000_000), ob.EffectiveUsdcSpent)
	assert.Equal(t, uint64(60_000_000), ob.RefundAmount)
	assert.Equal(t, oa.AmountMicros, oa.EffectiveUsdcSpent+oa.RefundAmount, "USDC must be conserved per order")

	// Each primary receives shares plus a USDC refund.
	for addr, refund := range map[string]uint64{testAddr(1): 40_000_000, testAddr(2): 60_000_000} {
		var usdc []uint64
		for _, tr := range h.chain.SendsTo(addr) {
			if tr.Mint == "" {
				usdc = append(usdc, tr.Amount)
			}
		}
		require.Equal(t, 1, len(usdc))
		assert.Equal(t, refund, usdc[0])
	}
}

func TestExecuteSplitDestinations(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	req := submitReq("100", testAddr(1), testAddr(2), testAddr(3))
	req.Distribution[0].Bps = 5000
	req.Distribution[1].Bps = 3000
	req.Distribution[2].Bps = 2000
	o, err := h.svc.Submit(ctx, req)
	require.NoError(t, err)
	fund(t, h, o.ID)
	require.NoError(t, h.svc.CloseBatch(ctx, o.BatchID))
	require.NoError(t, h.svc.Execute(ctx, o.BatchID))

	// 200 shares split 50/30/20.
	want := map[string]uint64{
		testAddr(1): 100_000_000,
		testAddr(2): 60_000_000,
		testAddr(3): 40_000_000,
	}
	for addr, shares := range want {
		sends := h.chain.SendsTo(addr)
		require.Equal(t, 1, len(sends))
		assert.Equal(t, shares, sends[0].Amount)
	}

	got, err := h.store.GetOrder(o.ID)
	require.NoError(t, err)
	require.Equal(t, 3, len(got.DistributionResults))
	var sum uint64
	for _, r := range got.DistributionResults {
		sum += r.Shares
		assert.NotEqual(t, "", r.TxID)
	}
	assert.Equal(t, got.SharesReceived, sum)
}

func TestExecuteSkipsUnfundedOrders(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	funded, err := h.svc.Submit(ctx, submitReq("50", testAddr(1)))
	require.NoError(t, err)
	ghost, err := h.svc.Submit(ctx, submitReq("50", testAddr(2)))
	require.NoError(t, err)
	fund(t, h, funded.ID)

	require.NoError(t, h.svc.CloseBatch(ctx, funded.BatchID))
	require.NoError(t, h.svc.Execute(ctx, funded.BatchID))

	batch, err := h.store.GetBatch(funded.BatchID)
	require.NoError(t, err)
	assert.Equal(t, types.BatchCompleted, batch.Status)
	assert.Equal(t, uint64(50_000_000), batch.FundedUsdcTotal, "unfunded order must not count")

	g, err := h.store.GetOrder(ghost.ID)
	require.NoError(t, err)
	assert.Equal(t, types.OrderPendingDeposit, g.Status)
	assert.Equal(t, 0, len(h.chain.SendsTo(testAddr(2))))
}

func TestExecuteNoFundedOrders(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	o, err := h.svc.Submit(ctx, submitReq("50", testAddr(1)))
	require.NoError(t, err)
	require.NoError(t, h.svc.CloseBatch(ctx, o.BatchID))
	require.NoError(t, h.svc.Execute(ctx, o.BatchID))

	batch, err := h.store.GetBatch(o.BatchID)
	require.NoError(t, err)
	assert.Equal(t, types.BatchFailed, batch.Status)
	assert.Equal(t, "no_funded_orders", batch.FailureReason)
	assert.Equal(t, 0, h.venue.ExecuteCount())
}

func TestExecuteVenueFailure(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	o, err := h.svc.Submit(ctx, submitReq("50", testAddr(1)))
	require.NoError(t, err)
	fund(t, h, o.ID)
	h.venue.Err = errors.New("amm pool drained")

	require.NoError(t, h.svc.CloseBatch(ctx, o.BatchID))
	require.NoError(t, h.svc.Execute(ctx, o.BatchID))

	batch, err := h.store.GetBatch(o.BatchID)
	require.NoError(t, err)
	assert.Equal(t, types.BatchFailed, batch.Status)
	assert.StringContains(t, "venue_failure", batch.FailureReason)

	got, err := h.store.GetOrder(o.ID)
	require.NoError(t, err)
	assert.Equal(t, types.OrderPending, got.Status, "funded orders stay pending after a venue failure")
	assert.Equal(t, 0, len(h.chain.Sends()))
}

func TestExecuteProofFailure(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	o, err := h.svc.Submit(ctx, submitReq("50", testAddr(1)))
	require.NoError(t, err)
	fund(t, h, o.ID)
	h.prover.Err = errors.New("witness generation failed")

	require.NoError(t, h.svc.CloseBatch(ctx, o.BatchID))
	require.NoError(t, h.svc.Execute(ctx, o.BatchID))

	batch, err := h.store.GetBatch(o.BatchID)
	require.NoError(t, err)
	assert.Equal(t, types.BatchFailed, batch.Status)
	assert.StringContains(t, "proof_failure", batch.FailureReason)
	assert.Equal(t, 0, len(h.chain.Sends()), "no distribution without a proof")
}

func TestExecuteUnverifiedProofFails(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	o, err := h.svc.Submit(ctx, submitReq("50", testAddr(1)))
	require.NoError(t, err)
	fund(t, h, o.ID)
	h.prover.Unverified = true

	require.NoError(t, h.svc.CloseBatch(ctx, o.BatchID))
	require.NoError(t, h.svc.Execute(ctx, o.BatchID))

	batch, err := h.store.GetBatch(o.BatchID)
	require.NoError(t, err)
	assert.Equal(t, types.BatchFailed, batch.Status)
	assert.Equal(t, false, batch.ProofVerified)
	assert.Equal(t, 0, len(h.chain.Sends()))
}

func TestExecuteRetriesTransientSend(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	o, err := h.svc.Submit(ctx, submitReq("50", testAddr(1)))
	require.NoError(t, err)
	fund(t, h, o.ID)
	h.chain.FailNextSends = 1

	require.NoError(t, h.svc.CloseBatch(ctx, o.BatchID))
	require.NoError(t, h.svc.Execute(ctx, o.BatchID))

	got, err := h.store.GetOrder(o.ID)
	require.NoError(t, err)
	require.Equal(t, 1, len(got.DistributionResults))
	assert.NotEqual(t, "", got.DistributionResults[0].TxID, "one transient failure must be retried")
}

func TestExecutePartialDistribution(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	o, err := h.svc.Submit(ctx, submitReq("50", testAddr(1), testAddr(2)))
	require.NoError(t, err)
	fund(t, h, o.ID)
	// First destination fails twice, exhausting the retry.
	h.chain.FailNextSends = 2

	require.NoError(t, h.svc.CloseBatch(ctx, o.BatchID))
	require.NoError(t, h.svc.Execute(ctx, o.BatchID))

	batch, err := h.store.GetBatch(o.BatchID)
	require.NoError(t, err)
	assert.Equal(t, types.BatchCompleted, batch.Status, "send failures must not fail the batch")

	got, err := h.store.GetOrder(o.ID)
	require.NoError(t, err)
	require.Equal(t, 2, len(got.DistributionResults))
	assert.Equal(t, "", got.DistributionResults[0].TxID)
	assert.NotEqual(t, "", got.DistributionResults[1].TxID)
	assert.Equal(t, types.OrderCompleted, got.Status)
}

func TestExecuteWrongStateRejected(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	o, err := h.svc.Submit(ctx, submitReq("50", testAddr(1)))
	require.NoError(t, err)
	err = h.svc.Execute(ctx, o.BatchID)
	require.ErrorContains(t, "collecting", err, "collecting batches cannot execute")
	assert.Equal(t, types.KindStateConflict, types.KindOf(err))
}

func TestExecuteReadyRunsAll(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	a, err := h.svc.Submit(ctx, submitReq("10", testAddr(1)))
	require.NoError(t, err)
	b, err := h.svc.Submit(ctx, &SubmitRequest{
		MarketID:     "OTHER-MARKET",
		Side:         "NO",
		UsdcAmount:   "20",
		Distribution: []types.Destination{{Address: testAddr(2), Bps: types.BpsDenominator}},
	})
	require.NoError(t, err)
	require.NotEqual(t, a.BatchID, b.BatchID)
	fund(t, h, a.ID)
	fund(t, h, b.ID)
	require.NoError(t, h.svc.CloseBatch(ctx, a.BatchID))
	require.NoError(t, h.svc.CloseBatch(ctx, b.BatchID))

	n := h.svc.ExecuteReady(ctx)
	assert.Equal(t, 2, n)
	for _, id := range []string{a.BatchID, b.BatchID} {
		batch, err := h.store.GetBatch(id)
		require.NoError(t, err)
		assert.Equal(t, types.BatchCompleted, batch.Status)
	}
}

func TestImpromptuOrder(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	orderID, err := h.svc.Impromptu(ctx, &ImpromptuRequest{
		MarketID:     "TRUMP-2028",
		Side:         types.SideYes,
		AmountMicros: 30_000_000,
		Destinations: []string{testAddr(1), testAddr(2)},
		OutcomeMint:  "MemoMint1111111111111111111111111111111111",
		DepositTx:    "sig-memo",
		Sender:       testAddr(7),
	})
	require.NoError(t, err)

	o, err := h.store.GetOrder(orderID)
	require.NoError(t, err)
	assert.Equal(t, types.OrderCompleted, o.Status)
	assert.Equal(t, "sig-memo", o.DepositTx)
	require.Equal(t, 2, len(o.Distribution))
	assert.Equal(t, uint32(5000), o.Distribution[0].Bps)

	batch, err := h.store.GetBatch(o.BatchID)
	require.NoError(t, err)
	assert.Equal(t, types.BatchCompleted, batch.Status)
	require.Equal(t, 1, len(batch.OrderIDs), "memo orders ride alone")

	// 30 USDC at 0.50 -> 60 shares, split evenly.
	for _, addr := range []string{testAddr(1), testAddr(2)} {
		sends := h.chain.SendsTo(addr)
		require.Equal(t, 1, len(sends))
		assert.Equal(t, uint64(30_000_000), sends[0].Amount)
	}
}

func TestExecuteEncryptedOrderFundedByDeposit(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	enc, err := h.svc.SubmitEncrypted(ctx, &EncryptedSubmitRequest{
		MarketID:       "TRUMP-2028",
		Side:           "YES",
		Ciphertext:     []byte("opaque-payload"),
		CommitmentHash: "0x" + string(bytes.Repeat([]byte("0"), 63)) + "1",
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), enc.AmountMicros, "an encrypted order declares no amount")

	// The deposited amount becomes the funded amount.
	require.NoError(t, h.svc.Activate(ctx, enc.ID, "tx-enc", testAddr(7), 80_000_000))
	funded, err := h.store.GetOrder(enc.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(80_000_000), funded.AmountMicros)

	h.venue.FillRatioBps = 5000 // half the notional fills
	require.NoError(t, h.svc.CloseBatch(ctx, enc.BatchID))
	require.NoError(t, h.svc.Execute(ctx, enc.BatchID))

	batch, err := h.store.GetBatch(enc.BatchID)
	require.NoError(t, err)
	assert.Equal(t, types.BatchCompleted, batch.Status)

	final, err := h.store.GetOrder(enc.ID)
	require.NoError(t, err)
	assert.Equal(t, types.OrderCompleted, final.Status)
	assert.Equal(t, uint64(40_000_000), final.EffectiveUsdcSpent)
	assert.Equal(t, uint64(40_000_000), final.RefundAmount)

	// No declared destinations: the unspent USDC returns to the deposit
	// sender, the shares stay in custody.
	sends := h.chain.SendsTo(testAddr(7))
	require.Equal(t, 1, len(sends))
	assert.Equal(t, "", sends[0].Mint)
	assert.Equal(t, uint64(40_000_000), sends[0].Amount)
}

func TestSubmitEncryptedSeparateBatch(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	plain, err := h.svc.Submit(ctx, submitReq("10", testAddr(1)))
	require.NoError(t, err)
	enc, err := h.svc.SubmitEncrypted(ctx, &EncryptedSubmitRequest{
		MarketID:       "TRUMP-2028",
		Side:           "YES",
		Ciphertext:     []byte("opaque-payload"),
		CommitmentHash: "0x" + string(bytes.Repeat([]byte("0"), 63)) + "1",
	})
	require.NoError(t, err)
	assert.NotEqual(t, plain.BatchID, enc.BatchID, "encrypted orders never share plaintext batches")
	assert.Equal(t, true, enc.IsEncrypted)

	_, err = h.svc.SubmitEncrypted(ctx, &EncryptedSubmitRequest{
		MarketID: "TRUMP-2028", Side: "YES", Ciphertext: []byte("x"), CommitmentHash: "nothex",
	})
	require.ErrorContains(t, "commitmentHash", err)
}
