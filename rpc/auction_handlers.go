package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"stableguard/crypto"
	"stableguard/native/auction"
)

type openParams struct {
	Debtor           string `json:"debtor"`
	Asset            string `json:"asset"`
	DebtAmount       string `json:"debtAmount"`
	CollateralAmount string `json:"collateralAmount"`
	StartPrice       string `json:"startPrice"`
}

type openSeizedParams struct {
	Debtor     string `json:"debtor"`
	Asset      string `json:"asset"`
	DebtAmount string `json:"debtAmount"`
}

type bidParams struct {
	Bidder       string `json:"bidder"`
	AuctionID    uint64 `json:"auctionId"`
	CeilingPrice string `json:"ceilingPrice"`
	Payment      string `json:"payment,omitempty"`
}

type commitParams struct {
	Bidder     string `json:"bidder"`
	AuctionID  uint64 `json:"auctionId"`
	CommitHash string `json:"commitHash"`
}

type revealParams struct {
	Bidder    string `json:"bidder"`
	CommitID  string `json:"commitId"`
	AuctionID uint64 `json:"auctionId"`
	MaxPrice  string `json:"maxPrice"`
	Nonce     string `json:"nonce"`
	Payment   string `json:"payment,omitempty"`
}

type commitHashParams struct {
	Bidder    string `json:"bidder"`
	AuctionID uint64 `json:"auctionId"`
	MaxPrice  string `json:"maxPrice"`
	Nonce     string `json:"nonce"`
}

type cleanExpiredParams struct {
	Caller     string   `json:"caller"`
	AuctionIDs []uint64 `json:"auctionIds"`
}

type cancelExpiredParams struct {
	Caller    string `json:"caller"`
	AuctionID uint64 `json:"auctionId"`
}

type auctionIDParams struct {
	AuctionID uint64 `json:"auctionId"`
}

type userAuctionParams struct {
	Debtor string `json:"debtor"`
	Asset  string `json:"asset"`
}

type addressParams struct {
	Address string `json:"address"`
}

type updateConfigParams struct {
	Caller              string `json:"caller"`
	DurationSeconds     int64  `json:"durationSeconds"`
	MinPriceFactorBps   uint64 `json:"minPriceFactorBps"`
	LiquidationBonusBps uint64 `json:"liquidationBonusBps"`
}

type setPausedParams struct {
	Caller string `json:"caller"`
	Paused bool   `json:"paused"`
}

type emergencyWithdrawParams struct {
	Caller string `json:"caller"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type auctionResult struct {
	ID               uint64 `json:"id"`
	Debtor           string `json:"debtor"`
	Asset            string `json:"asset"`
	DebtAmount       string `json:"debtAmount"`
	CollateralAmount string `json:"collateralAmount"`
	StartTime        int64  `json:"startTime"`
	Duration         int64  `json:"duration"`
	StartPrice       string `json:"startPrice"`
	FloorPrice       string `json:"floorPrice"`
	CurrentPrice     string `json:"currentPrice"`
	Active           bool   `json:"active"`
}

type settlementResult struct {
	AuctionID        uint64 `json:"auctionId"`
	Bidder           string `json:"bidder"`
	Asset            string `json:"asset"`
	Price            string `json:"price"`
	CollateralAmount string `json:"collateralAmount"`
	TotalCost        string `json:"totalCost"`
	Refund           string `json:"refund"`
	SettledAt        int64  `json:"settledAt"`
}

type commitResult struct {
	CommitID string `json:"commitId"`
}

type cleanExpiredResult struct {
	Cleaned uint64 `json:"cleaned"`
	Paid    string `json:"paid"`
}

func decodeBech32(value string) ([20]byte, error) {
	var out [20]byte
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return out, err
	}
	raw := addr.Bytes()
	if len(raw) != len(out) {
		return out, fmt.Errorf("address must be %d bytes", len(out))
	}
	copy(out[:], raw)
	return out, nil
}

func encodeBech32(b [20]byte) string {
	return crypto.NewAddress(crypto.SGPrefix, b[:]).String()
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}

func parseHash32(value string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(value), "0x"))
	if err != nil {
		return out, err
	}
	if len(raw) != len(out) {
		return out, fmt.Errorf("hash must be %d bytes", len(out))
	}
	copy(out[:], raw)
	return out, nil
}

func parseAsset(symbol string) (auction.Asset, error) {
	trimmed := strings.TrimSpace(symbol)
	if trimmed == "" || strings.EqualFold(trimmed, auction.NativeSymbol) {
		return auction.NativeAsset(), nil
	}
	asset := auction.TokenAsset(trimmed)
	if err := asset.Validate(); err != nil {
		return auction.Asset{}, err
	}
	return asset, nil
}

func formatBig(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func (s *Server) auctionResultOf(a *auction.Auction) auctionResult {
	return auctionResult{
		ID:               a.ID,
		Debtor:           encodeBech32(a.Debtor),
		Asset:            a.Asset.Key(),
		DebtAmount:       formatBig(a.DebtAmount),
		CollateralAmount: formatBig(a.CollateralAmount),
		StartTime:        a.StartTime,
		Duration:         a.Duration,
		StartPrice:       formatBig(a.StartPrice),
		FloorPrice:       formatBig(a.FloorPrice),
		CurrentPrice:     formatBig(s.engine.CurrentPrice(a.ID)),
		Active:           a.Active,
	}
}

func settlementResultOf(st *auction.Settlement) settlementResult {
	return settlementResult{
		AuctionID:        st.AuctionID,
		Bidder:           encodeBech32(st.Bidder),
		Asset:            st.Asset.Key(),
		Price:            formatBig(st.Price),
		CollateralAmount: formatBig(st.CollateralAmount),
		TotalCost:        formatBig(st.TotalCost),
		Refund:           formatBig(st.Refund),
		SettledAt:        st.SettledAt,
	}
}

// decodeParams enforces the single-object parameter convention shared by
// every auction method.
func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected parameter object")
	}
	return json.Unmarshal(req.Params[0], out)
}

func (s *Server) handleOpen(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input openParams
	if err := decodeParams(req, &input); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	debtor, err := decodeBech32(input.Debtor)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid debtor", err.Error())
		return
	}
	asset, err := parseAsset(input.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid asset", err.Error())
		return
	}
	debt, err := parseAmount(input.DebtAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid debtAmount", err.Error())
		return
	}
	collateral, err := parseAmount(input.CollateralAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid collateralAmount", err.Error())
		return
	}
	startPrice, err := parseAmount(input.StartPrice)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid startPrice", err.Error())
		return
	}
	id, err := s.engine.OpenAuction(debtor, asset, debt, collateral, startPrice)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, auctionIDParams{AuctionID: id})
}

func (s *Server) handleOpenSeized(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input openSeizedParams
	if err := decodeParams(req, &input); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	debtor, err := decodeBech32(input.Debtor)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid debtor", err.Error())
		return
	}
	asset, err := parseAsset(input.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid asset", err.Error())
		return
	}
	debt, err := parseAmount(input.DebtAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid debtAmount", err.Error())
		return
	}
	id, err := s.engine.OpenSeized(debtor, asset, debt)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, auctionIDParams{AuctionID: id})
}

func (s *Server) handleBid(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input bidParams
	if err := decodeParams(req, &input); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	bidder, err := decodeBech32(input.Bidder)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid bidder", err.Error())
		return
	}
	ceiling, err := parseAmount(input.CeilingPrice)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid ceilingPrice", err.Error())
		return
	}
	payment, err := parseAmount(input.Payment)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payment", err.Error())
		return
	}
	settlement, err := s.engine.Bid(bidder, input.AuctionID, ceiling, payment)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, settlementResultOf(settlement))
}

func (s *Server) handleCommit(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input commitParams
	if err := decodeParams(req, &input); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	bidder, err := decodeBech32(input.Bidder)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid bidder", err.Error())
		return
	}
	hash, err := parseHash32(input.CommitHash)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid commitHash", err.Error())
		return
	}
	id, err := s.engine.Commit(bidder, input.AuctionID, hash)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, commitResult{CommitID: hex.EncodeToString(id[:])})
}

func (s *Server) handleReveal(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input revealParams
	if err := decodeParams(req, &input); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	bidder, err := decodeBech32(input.Bidder)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid bidder", err.Error())
		return
	}
	commitID, err := parseHash32(input.CommitID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid commitId", err.Error())
		return
	}
	maxPrice, err := parseAmount(input.MaxPrice)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid maxPrice", err.Error())
		return
	}
	nonce, err := parseHash32(input.Nonce)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid nonce", err.Error())
		return
	}
	payment, err := parseAmount(input.Payment)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payment", err.Error())
		return
	}
	settlement, err := s.engine.Reveal(bidder, commitID, input.AuctionID, maxPrice, nonce, payment)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, settlementResultOf(settlement))
}

func (s *Server) handleCommitHash(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input commitHashParams
	if err := decodeParams(req, &input); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	bidder, err := decodeBech32(input.Bidder)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid bidder", err.Error())
		return
	}
	maxPrice, err := parseAmount(input.MaxPrice)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid maxPrice", err.Error())
		return
	}
	nonce, err := parseHash32(input.Nonce)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid nonce", err.Error())
		return
	}
	hash := auction.ComputeCommitHash(bidder, input.AuctionID, maxPrice, nonce)
	writeResult(w, req.ID, map[string]string{"commitHash": hex.EncodeToString(hash[:])})
}

func (s *Server) handleCleanExpired(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input cleanExpiredParams
	if err := decodeParams(req, &input); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	caller, err := decodeBech32(input.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	cleaned, paid, err := s.engine.CleanExpired(caller, input.AuctionIDs)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, cleanExpiredResult{Cleaned: cleaned, Paid: formatBig(paid)})
}

func (s *Server) handleCancelExpired(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input cancelExpiredParams
	if err := decodeParams(req, &input); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	caller, err := decodeBech32(input.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	if err := s.engine.CancelExpired(caller, input.AuctionID); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"cancelled": true})
}

func (s *Server) handleGetAuction(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input auctionIDParams
	if err := decodeParams(req, &input); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	record, ok := s.engine.GetAuction(input.AuctionID)
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeServerError, "auction not found", nil)
		return
	}
	writeResult(w, req.ID, s.auctionResultOf(record))
}

func (s *Server) handleGetActive(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	records := s.engine.GetActiveAuctions()
	results := make([]auctionResult, 0, len(records))
	for _, record := range records {
		results = append(results, s.auctionResultOf(record))
	}
	writeResult(w, req.ID, results)
}

func (s *Server) handleCurrentPrice(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input auctionIDParams
	if err := decodeParams(req, &input); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	price := s.engine.CurrentPrice(input.AuctionID)
	writeResult(w, req.ID, map[string]string{"price": formatBig(price)})
}

func (s *Server) handleUserAuction(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input userAuctionParams
	if err := decodeParams(req, &input); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	debtor, err := decodeBech32(input.Debtor)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid debtor", err.Error())
		return
	}
	asset, err := parseAsset(input.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid asset", err.Error())
		return
	}
	id, ok := s.engine.GetUserTokenAuction(debtor, asset)
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeServerError, "no auction for debtor and asset", nil)
		return
	}
	writeResult(w, req.ID, auctionIDParams{AuctionID: id})
}

func (s *Server) handleMevProtection(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input auctionIDParams
	if err := decodeParams(req, &input); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	record, ok := s.engine.GetMevProtection(input.AuctionID)
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeServerError, "no protection record", nil)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"lastBidTime":    fmt.Sprintf("%d", record.LastBidTime),
		"lastBidBlock":   fmt.Sprintf("%d", record.LastBidBlock),
		"lastBidPrice":   formatBig(record.LastBidPrice),
		"priceImpactBps": fmt.Sprintf("%d", record.PriceImpactBps),
	})
}

func (s *Server) handleReputation(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input addressParams
	if err := decodeParams(req, &input); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	bidder, err := decodeBech32(input.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	writeResult(w, req.ID, map[string]uint64{"reputation": s.engine.GetBidderReputation(bidder)})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	writeResult(w, req.ID, s.engine.Config())
}

func (s *Server) handlePaused(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	writeResult(w, req.ID, map[string]bool{"paused": s.engine.Paused()})
}

func (s *Server) handleSetPaused(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input setPausedParams
	if err := decodeParams(req, &input); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	caller, err := decodeBech32(input.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	if err := s.engine.SetPaused(caller, input.Paused); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"paused": input.Paused})
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input updateConfigParams
	if err := decodeParams(req, &input); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	caller, err := decodeBech32(input.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	cfg := auction.Config{
		DurationSeconds:     input.DurationSeconds,
		MinPriceFactorBps:   input.MinPriceFactorBps,
		LiquidationBonusBps: input.LiquidationBonusBps,
	}
	if err := s.engine.UpdateConfig(caller, cfg); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, cfg)
}

func (s *Server) handleEmergencyWithdraw(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input emergencyWithdrawParams
	if err := decodeParams(req, &input); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	caller, err := decodeBech32(input.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	asset, err := parseAsset(input.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid asset", err.Error())
		return
	}
	amount, err := parseAmount(input.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	if err := s.engine.EmergencyWithdraw(caller, asset, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"withdrawn": true})
}
