package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"stableguard/core/state"
	"stableguard/native/auction"
	"stableguard/storage"
)

var (
	testVault  = [20]byte{0xAA}
	testOwner  = [20]byte{0xBB}
	testDebtor = [20]byte{0xCC}
	testBidder = [20]byte{0xDD}
)

type testHarness struct {
	server  *Server
	engine  *auction.Engine
	manager *state.Manager
	now     int64
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB(), testVault)
	engine := auction.NewEngine(testVault, testOwner, auction.DefaultConfig())
	engine.SetState(manager)
	engine.SetTransfers(manager)
	engine.SetPauses(manager)
	engine.SetPauseControl(manager)
	engine.SetBlockHeight(1)
	h := &testHarness{
		engine:  engine,
		manager: manager,
		now:     1_000_000,
	}
	engine.SetNowFunc(func() int64 { return h.now })
	h.server = NewServer(engine, ServerOpts{AuthToken: "secret", RateLimit: 1000, RateBurst: 1000})

	scale := new(big.Int).Set(auction.PriceScale)
	if err := manager.Credit(testVault, auction.NativeAsset(), new(big.Int).Mul(scale, big.NewInt(2))); err != nil {
		t.Fatalf("fund vault: %v", err)
	}
	if err := manager.Credit(testBidder, auction.NativeAsset(), big.NewInt(1_000_000)); err != nil {
		t.Fatalf("fund bidder: %v", err)
	}
	return h
}

func (h *testHarness) openNativeAuction(t *testing.T) uint64 {
	t.Helper()
	id, err := h.engine.OpenAuction(testDebtor, auction.NativeAsset(), big.NewInt(500), new(big.Int).Set(auction.PriceScale), big.NewInt(1000))
	if err != nil {
		t.Fatalf("open auction: %v", err)
	}
	return id
}

func (h *testHarness) post(t *testing.T, method string, params interface{}, token string) (*httptest.ResponseRecorder, RPCResponse) {
	t.Helper()
	req := map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"id":      1,
		"method":  method,
	}
	if params != nil {
		req["params"] = []interface{}{params}
	}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	httpReq := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	httpReq.RemoteAddr = "192.0.2.1:9999"
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	h.server.handle(recorder, httpReq)

	var resp RPCResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (body %s)", err, recorder.Body.String())
	}
	return recorder, resp
}

func TestHandleUnknownMethod(t *testing.T) {
	h := newTestHarness(t)
	recorder, resp := h.post(t, "auction_doesNotExist", nil, "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method-not-found error, got %+v", resp.Error)
	}
}

func TestAdminMethodsRequireAuth(t *testing.T) {
	h := newTestHarness(t)
	for _, method := range []string{"auction_open", "auction_updateConfig", "auction_setPaused", "auction_emergencyWithdraw"} {
		recorder, resp := h.post(t, method, map[string]string{}, "")
		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", method, recorder.Code)
		}
		if resp.Error == nil || resp.Error.Code != codeUnauthorized {
			t.Fatalf("%s: expected unauthorized error, got %+v", method, resp.Error)
		}
	}

	recorder, _ := h.post(t, "auction_open", map[string]string{}, "wrong-token")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", recorder.Code)
	}
}

func TestBidSettlesAuction(t *testing.T) {
	h := newTestHarness(t)
	id := h.openNativeAuction(t)

	recorder, resp := h.post(t, "auction_bid", bidParams{
		Bidder:       encodeBech32(testBidder),
		AuctionID:    id,
		CeilingPrice: "1000",
		Payment:      "1200",
	}, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var result settlementResult
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("re-marshal result: %v", err)
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("decode settlement: %v", err)
	}
	if result.TotalCost != "1000" {
		t.Fatalf("expected total cost 1000 at open price, got %s", result.TotalCost)
	}
	if result.Refund != "200" {
		t.Fatalf("expected refund 200, got %s", result.Refund)
	}

	recorder, resp = h.post(t, "auction_get", auctionIDParams{AuctionID: id}, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 for auction_get, got %d", recorder.Code)
	}
	var record auctionResult
	raw, _ = json.Marshal(resp.Result)
	if err := json.Unmarshal(raw, &record); err != nil {
		t.Fatalf("decode auction: %v", err)
	}
	if record.Active {
		t.Fatalf("expected auction closed after settlement")
	}
}

func TestBidPriceTooHighMapsToPrecondition(t *testing.T) {
	h := newTestHarness(t)
	id := h.openNativeAuction(t)

	recorder, resp := h.post(t, "auction_bid", bidParams{
		Bidder:       encodeBech32(testBidder),
		AuctionID:    id,
		CeilingPrice: "1",
		Payment:      "1200",
	}, "")
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", recorder.Code)
	}
	if resp.Error == nil || resp.Error.Code != codePreconditionFailure {
		t.Fatalf("expected precondition error, got %+v", resp.Error)
	}
}

func TestCommitRevealFlow(t *testing.T) {
	h := newTestHarness(t)
	id := h.openNativeAuction(t)

	_, hashResp := h.post(t, "auction_commitHash", commitHashParams{
		Bidder:    encodeBech32(testBidder),
		AuctionID: id,
		MaxPrice:  "1000",
		Nonce:     "0101010101010101010101010101010101010101010101010101010101010101",
	}, "")
	hashResult, ok := hashResp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected commitHash result %+v", hashResp.Result)
	}
	commitHash, _ := hashResult["commitHash"].(string)
	if commitHash == "" {
		t.Fatalf("missing commitHash in result")
	}

	recorder, commitResp := h.post(t, "auction_commit", commitParams{
		Bidder:     encodeBech32(testBidder),
		AuctionID:  id,
		CommitHash: commitHash,
	}, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("commit failed: %d %s", recorder.Code, recorder.Body.String())
	}
	commitPayload, ok := commitResp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected commit result %+v", commitResp.Result)
	}
	commitID, _ := commitPayload["commitId"].(string)
	if commitID == "" {
		t.Fatalf("missing commitId in result")
	}

	// Reveal before the blind window has elapsed.
	recorder, revealResp := h.post(t, "auction_reveal", revealParams{
		Bidder:    encodeBech32(testBidder),
		CommitID:  commitID,
		AuctionID: id,
		MaxPrice:  "1000",
		Nonce:     "0101010101010101010101010101010101010101010101010101010101010101",
		Payment:   "1200",
	}, "")
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected early reveal rejection, got %d", recorder.Code)
	}
	if revealResp.Error == nil || revealResp.Error.Code != codePreconditionFailure {
		t.Fatalf("expected precondition error, got %+v", revealResp.Error)
	}

	h.now += auction.CommitDuration + 10
	recorder, revealResp = h.post(t, "auction_reveal", revealParams{
		Bidder:    encodeBech32(testBidder),
		CommitID:  commitID,
		AuctionID: id,
		MaxPrice:  "1000",
		Nonce:     "0101010101010101010101010101010101010101010101010101010101010101",
		Payment:   "1200",
	}, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("reveal failed: %d %s", recorder.Code, recorder.Body.String())
	}
	var settled settlementResult
	raw, _ := json.Marshal(revealResp.Result)
	if err := json.Unmarshal(raw, &settled); err != nil {
		t.Fatalf("decode settlement: %v", err)
	}
	if settled.AuctionID != id {
		t.Fatalf("settlement for wrong auction: %d", settled.AuctionID)
	}
}

func TestUpdateConfigWithToken(t *testing.T) {
	h := newTestHarness(t)
	recorder, resp := h.post(t, "auction_updateConfig", updateConfigParams{
		Caller:              encodeBech32(testOwner),
		DurationSeconds:     7200,
		MinPriceFactorBps:   4000,
		LiquidationBonusBps: 600,
	}, "secret")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error %+v", resp.Error)
	}
	if h.engine.Config().DurationSeconds != 7200 {
		t.Fatalf("config not applied")
	}

	// Non-owner caller passes auth but fails engine authorization.
	recorder, resp = h.post(t, "auction_updateConfig", updateConfigParams{
		Caller:              encodeBech32(testBidder),
		DurationSeconds:     7200,
		MinPriceFactorBps:   4000,
		LiquidationBonusBps: 600,
	}, "secret")
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", recorder.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized error, got %+v", resp.Error)
	}
}

func TestInvalidAddressRejected(t *testing.T) {
	h := newTestHarness(t)
	id := h.openNativeAuction(t)
	recorder, resp := h.post(t, "auction_bid", bidParams{
		Bidder:       "not-an-address",
		AuctionID:    id,
		CeilingPrice: "1000",
	}, "")
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid-params error, got %+v", resp.Error)
	}
}

func TestSetPausedGatesMethods(t *testing.T) {
	h := newTestHarness(t)
	id := h.openNativeAuction(t)

	recorder, _ := h.post(t, "auction_setPaused", setPausedParams{
		Caller: encodeBech32(testOwner),
		Paused: true,
	}, "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", recorder.Code)
	}

	recorder, resp := h.post(t, "auction_setPaused", setPausedParams{
		Caller: encodeBech32(testOwner),
		Paused: true,
	}, "secret")
	if recorder.Code != http.StatusOK {
		t.Fatalf("pause failed: %d %s", recorder.Code, recorder.Body.String())
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error %+v", resp.Error)
	}

	_, pausedResp := h.post(t, "auction_paused", nil, "")
	payload, ok := pausedResp.Result.(map[string]interface{})
	if !ok || payload["paused"] != true {
		t.Fatalf("expected paused=true, got %+v", pausedResp.Result)
	}

	recorder, resp = h.post(t, "auction_bid", bidParams{
		Bidder:       encodeBech32(testBidder),
		AuctionID:    id,
		CeilingPrice: "1000",
		Payment:      "1200",
	}, "")
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while paused, got %d", recorder.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeModulePaused {
		t.Fatalf("expected module-paused error, got %+v", resp.Error)
	}

	recorder, _ = h.post(t, "auction_setPaused", setPausedParams{
		Caller: encodeBech32(testOwner),
		Paused: false,
	}, "secret")
	if recorder.Code != http.StatusOK {
		t.Fatalf("resume failed: %d %s", recorder.Code, recorder.Body.String())
	}
	recorder, _ = h.post(t, "auction_bid", bidParams{
		Bidder:       encodeBech32(testBidder),
		AuctionID:    id,
		CeilingPrice: "1000",
		Payment:      "1200",
	}, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("bid after resume failed: %d %s", recorder.Code, recorder.Body.String())
	}
}

func TestRateLimitRejectsBurst(t *testing.T) {
	h := newTestHarness(t)
	h.server = NewServer(h.engine, ServerOpts{RateLimit: 1, RateBurst: 1})

	if recorder, _ := h.post(t, "auction_active", nil, ""); recorder.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", recorder.Code)
	}
	recorder, resp := h.post(t, "auction_active", nil, "")
	if recorder.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", recorder.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeRateLimited {
		t.Fatalf("expected rate-limited error, got %+v", resp.Error)
	}
}
