package rpc

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/crypto/field"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/network/httputil"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/lifecycle"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/types"
)

// statusCode maps the error taxonomy onto HTTP statuses.
func statusCode(err error) int {
	switch types.KindOf(err) {
	case types.KindBadInput, types.KindDepositMismatch:
		return http.StatusBadRequest
	case types.KindNotFound:
		return http.StatusNotFound
	case types.KindStateConflict, types.KindExpired:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeErr(w http.ResponseWriter, err error) {
	httputil.HandleError(w, err.Error(), statusCode(err))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httputil.HandleError(w, "could not decode request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// SubmitOrderRequest is the POST /order body.
type SubmitOrderRequest struct {
	MarketID     string              `json:"marketId"`
	Side         string              `json:"side"`
	UsdcAmount   string              `json:"usdcAmount"`
	Distribution []types.Destination `json:"distribution"`
	// DestinationWallet is the legacy single-destination field.
	DestinationWallet string `json:"destinationWallet,omitempty"`
	Salt              string `json:"salt,omitempty"`
	SlippageBps       uint32 `json:"slippageBps,omitempty"`
	YesTokenMint      string `json:"yesTokenMint,omitempty"`
	NoTokenMint       string `json:"noTokenMint,omitempty"`
}

// DepositInstructions tell the client how to fund an accepted order. Amount
// is empty for encrypted orders, whose deposit decides the funded amount.
type DepositInstructions struct {
	Address   string    `json:"address"`
	Amount    string    `json:"amount,omitempty"`
	Memo      string    `json:"memo"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SubmitOrderResponse is the POST /order reply.
type SubmitOrderResponse struct {
	Success        bool                 `json:"success"`
	OrderID        string               `json:"orderId"`
	BatchID        string               `json:"batchId"`
	CommitmentHash string               `json:"commitmentHash"`
	Status         types.OrderStatus    `json:"status"`
	Deposit        *DepositInstructions `json:"deposit"`
}

func (s *Service) submitResponse(order *types.Order) *SubmitOrderResponse {
	deposit := &DepositInstructions{
		Address:   s.cfg.Lifecycle.DepositAddress(),
		Memo:      order.ID,
		ExpiresAt: order.DepositExpiresAt,
	}
	if order.AmountMicros > 0 {
		deposit.Amount = field.FormatAmount(order.AmountMicros)
	}
	return &SubmitOrderResponse{
		Success:        true,
		OrderID:        order.ID,
		BatchID:        order.BatchID,
		CommitmentHash: order.CommitmentHash,
		Status:         order.Status,
		Deposit:        deposit,
	}
}

func (s *Service) submitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	order, err := s.cfg.Lifecycle.Submit(r.Context(), &lifecycle.SubmitRequest{
		MarketID:     req.MarketID,
		Side:         req.Side,
		UsdcAmount:   req.UsdcAmount,
		Distribution: req.Distribution,
		LegacyWallet: req.DestinationWallet,
		Salt:         req.Salt,
		SlippageBps:  req.SlippageBps,
		YesTokenMint: req.YesTokenMint,
		NoTokenMint:  req.NoTokenMint,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.WriteJson(w, s.submitResponse(order))
}

// SubmitEncryptedOrderRequest is the POST /order/encrypted body. Ciphertext
// is base64.
type SubmitEncryptedOrderRequest struct {
	MarketID       string `json:"marketId"`
	Side           string `json:"side"`
	Ciphertext     string `json:"ciphertext"`
	CommitmentHash string `json:"commitmentHash"`
	Salt           string `json:"salt,omitempty"`
}

func (s *Service) submitEncryptedOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitEncryptedOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ciphertext, err := base64.StdEncoding.DecodeString(req.Ciphertext)
	if err != nil {
		httputil.HandleError(w, "ciphertext is not base64: "+err.Error(), http.StatusBadRequest)
		return
	}
	order, err := s.cfg.Lifecycle.SubmitEncrypted(r.Context(), &lifecycle.EncryptedSubmitRequest{
		MarketID:       req.MarketID,
		Side:           req.Side,
		Ciphertext:     ciphertext,
		CommitmentHash: req.CommitmentHash,
		Salt:           req.Salt,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.WriteJson(w, s.submitResponse(order))
}

func (s *Service) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.cfg.Store.GetOrder(mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.WriteJson(w, order)
}

// ActivateOrderRequest is the POST /order/{id}/activate body. UsdcAmount is
// required for encrypted orders, which fund at the deposited amount.
type ActivateOrderRequest struct {
	DepositTxSignature string `json:"depositTxSignature"`
	SenderWallet       string `json:"senderWallet,omitempty"`
	UsdcAmount         string `json:"usdcAmount,omitempty"`
}

func (s *Service) activateOrder(w http.ResponseWriter, r *http.Request) {
	var req ActivateOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var depositMicros uint64
	if req.UsdcAmount != "" {
		var err error
		if depositMicros, err = field.ParseAmount(req.UsdcAmount); err != nil {
			httputil.HandleError(w, "usdcAmount: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	id := mux.Vars(r)["id"]
	if err := s.cfg.Lifecycle.Activate(r.Context(), id, req.DepositTxSignature, req.SenderWallet, depositMicros); err != nil {
		writeErr(w, err)
		return
	}
	order, err := s.cfg.Store.GetOrder(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.WriteJson(w, order)
}

func (s *Service) getBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := s.cfg.Store.GetBatch(mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.WriteJson(w, batch)
}

// ExecutionInfo summarizes the venue fill behind a proof.
type ExecutionInfo struct {
	ActualUsdcSpent      string  `json:"actualUsdcSpent"`
	ActualSharesReceived uint64  `json:"actualSharesReceived"`
	FillPercentage       float64 `json:"fillPercentage"`
}

// ProofResponse is the GET /batch/{id}/proof reply. The proof blob is base64;
// proofHash is a hex sha256 of the blob. Status is none, pending, generating
// or verified; the reply is 200 for any known batch.
type ProofResponse struct {
	HasProof      bool           `json:"hasProof"`
	Status        string         `json:"status"`
	ProofHash     string         `json:"proofHash,omitempty"`
	MerkleRoot    string         `json:"merkleRoot,omitempty"`
	Proof         string         `json:"proof,omitempty"`
	PublicInputs  []string       `json:"publicInputs,omitempty"`
	ExecutionInfo *ExecutionInfo `json:"executionInfo,omitempty"`
}

func proofStatus(batch *types.Batch) string {
	switch {
	case len(batch.ProofBlob) > 0 && batch.ProofVerified:
		return "verified"
	case batch.Status == types.BatchProving:
		return "generating"
	case batch.Status == types.BatchCollecting,
		batch.Status == types.BatchReady,
		batch.Status == types.BatchExecuting:
		return "pending"
	default:
		return "none"
	}
}

func (s *Service) getProof(w http.ResponseWriter, r *http.Request) {
	batch, err := s.cfg.Store.GetBatch(mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	resp := &ProofResponse{
		HasProof: len(batch.ProofBlob) > 0 && batch.ProofVerified,
		Status:   proofStatus(batch),
	}
	if len(batch.ProofBlob) > 0 {
		sum := sha256.Sum256(batch.ProofBlob)
		resp.ProofHash = "0x" + hex.EncodeToString(sum[:])
		resp.MerkleRoot = batch.MerkleRoot
		resp.Proof = base64.StdEncoding.EncodeToString(batch.ProofBlob)
		resp.PublicInputs = batch.PublicInputs
	}
	if batch.VenueTx != "" {
		resp.ExecutionInfo = &ExecutionInfo{
			ActualUsdcSpent:      field.FormatAmount(batch.ActualUsdcSpent),
			ActualSharesReceived: batch.ActualSharesReceived,
			FillPercentage:       batch.FillPercentage,
		}
	}
	httputil.WriteJson(w, resp)
}

func (s *Service) executeBatch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	batch, err := s.cfg.Store.GetBatch(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	// A collecting batch closes on the way into the pipeline.
	if batch.Status == types.BatchCollecting {
		if err := s.cfg.Lifecycle.CloseBatch(r.Context(), id); err != nil {
			writeErr(w, err)
			return
		}
	}
	if err := s.cfg.Lifecycle.Execute(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	batch, err = s.cfg.Store.GetBatch(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.WriteJson(w, batch)
}

func (s *Service) listBatches(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJson(w, s.cfg.Store.Batches())
}

func (s *Service) listReadyBatches(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJson(w, s.cfg.Store.ReadyBatches())
}

// ExecuteReadyResponse is the POST /execute-ready reply.
type ExecuteReadyResponse struct {
	Executed int `json:"executed"`
}

func (s *Service) executeReady(w http.ResponseWriter, r *http.Request) {
	n := s.cfg.Lifecycle.ExecuteReady(r.Context())
	httputil.WriteJson(w, &ExecuteReadyResponse{Executed: n})
}

func (s *Service) listUnmatched(w http.ResponseWriter, r *http.Request) {
	includeResolved := r.URL.Query().Get("includeResolved") == "true"
	deps := s.cfg.Store.ListUnmatched(includeResolved)
	if deps == nil {
		deps = []*types.UnmatchedDeposit{}
	}
	httputil.WriteJson(w, deps)
}

// MatchDepositRequest is the POST /deposits/match body.
type MatchDepositRequest struct {
	Signature string `json:"signature"`
	OrderID   string `json:"orderId"`
}

func (s *Service) matchDeposit(w http.ResponseWriter, r *http.Request) {
	var req MatchDepositRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.cfg.Matcher.MatchDeposit(r.Context(), req.Signature, req.OrderID); err != nil {
		writeErr(w, err)
		return
	}
	order, err := s.cfg.Store.GetOrder(req.OrderID)
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.WriteJson(w, order)
}

// RefundDepositRequest is the POST /deposits/refund body.
type RefundDepositRequest struct {
	Signature string `json:"signature"`
}

// RefundDepositResponse is the POST /deposits/refund reply.
type RefundDepositResponse struct {
	Signature string `json:"signature"`
	RefundTx  string `json:"refundTx"`
}

func (s *Service) refundDeposit(w http.ResponseWriter, r *http.Request) {
	var req RefundDepositRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sig, err := s.cfg.Matcher.RefundDeposit(r.Context(), req.Signature)
	if err != nil {
		writeErr(w, err)
		return
	}
	httputil.WriteJson(w, &RefundDepositResponse{Signature: req.Signature, RefundTx: sig})
}

// DepositAddressResponse is the GET /deposit-address reply.
type DepositAddressResponse struct {
	Address string `json:"address"`
	Type    string `json:"type"`
}

func (s *Service) depositAddress(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJson(w, &DepositAddressResponse{
		Address: s.cfg.Lifecycle.DepositAddress(),
		Type:    "usdc",
	})
}

// WalletStatus is the custody wallet section of GET /status. The USDC balance
// is a decimal string, SOL is in lamports.
type WalletStatus struct {
	Address     string `json:"address"`
	SolBalance  uint64 `json:"solBalance"`
	UsdcBalance string `json:"usdcBalance"`
}

// RelayStats is the store summary section of GET /status.
type RelayStats struct {
	TotalBatches int `json:"totalBatches"`
	TotalOrders  int `json:"totalOrders"`
	Collecting   int `json:"collecting"`
	Completed    int `json:"completed"`
}

// StatusResponse is the GET /status reply.
type StatusResponse struct {
	Wallet *WalletStatus `json:"wallet"`
	Stats  *RelayStats   `json:"stats"`
}

func (s *Service) status(w http.ResponseWriter, r *http.Request) {
	stats := s.cfg.Store.Summary()
	resp := &StatusResponse{
		Wallet: &WalletStatus{Address: s.cfg.Lifecycle.DepositAddress()},
		Stats: &RelayStats{
			TotalBatches: stats.TotalBatches,
			TotalOrders:  stats.TotalOrders,
			Collecting:   stats.Collecting,
			Completed:    stats.Completed,
		},
	}
	if balances, err := s.cfg.Lifecycle.CustodyBalances(r.Context()); err != nil {
		log.WithError(err).Error("Could not read custody balances")
	} else {
		resp.Wallet.SolBalance = balances.SolLamports
		resp.Wallet.UsdcBalance = field.FormatAmount(balances.UsdcMicros)
	}
	httputil.WriteJson(w, resp)
}
