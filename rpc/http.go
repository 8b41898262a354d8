package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"stableguard/native/auction"
	nativecommon "stableguard/native/common"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError          = -32700
	codeInvalidRequest      = -32600
	codeMethodNotFound      = -32601
	codeInvalidParams       = -32602
	codeUnauthorized        = -32001
	codeServerError         = -32000
	codeRateLimited         = -32020
	codeProtectionRejected  = -32021
	codeModulePaused        = -32022
	codePreconditionFailure = -32030
)

// Server exposes the auction engine over JSON-RPC. Privileged methods require
// a bearer token; all methods share a per-client rate limit.
type Server struct {
	engine *auction.Engine

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int

	authToken string
}

// ServerOpts configures access control for a Server.
type ServerOpts struct {
	// AuthToken guards privileged methods. Empty disables them entirely.
	AuthToken string
	// RateLimit is requests per second per client; RateBurst the extra
	// headroom. Non-positive values fall back to defaults.
	RateLimit float64
	RateBurst int
}

// NewServer wires the engine behind the RPC surface.
func NewServer(engine *auction.Engine, opts ServerOpts) *Server {
	limit := rate.Limit(opts.RateLimit)
	if limit <= 0 {
		limit = 20
	}
	burst := opts.RateBurst
	if burst <= 0 {
		burst = 40
	}
	return &Server{
		engine:    engine,
		limiters:  make(map[string]*rate.Limiter),
		limit:     limit,
		burst:     burst,
		authToken: strings.TrimSpace(opts.AuthToken),
	}
}

// Router returns the HTTP handler serving the JSON-RPC endpoint.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Post("/", s.handle)
	return r
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeEngineError maps the engine's typed errors onto RPC error codes so
// clients can tell "try later" from malformed input.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, auction.ErrUnauthorized):
		writeError(w, http.StatusForbidden, id, codeUnauthorized, err.Error(), nil)
	case errors.Is(err, nativecommon.ErrModulePaused):
		writeError(w, http.StatusServiceUnavailable, id, codeModulePaused, err.Error(), nil)
	case auction.IsProtectionRejection(err):
		writeError(w, http.StatusTooManyRequests, id, codeProtectionRejected, err.Error(), nil)
	case errors.Is(err, auction.ErrInvalidParameters),
		errors.Is(err, auction.ErrNoCollateral),
		errors.Is(err, auction.ErrInvalidConfig),
		errors.Is(err, auction.ErrInvalidAsset):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), nil)
	case errors.Is(err, auction.ErrAuctionInactiveOrExpired),
		errors.Is(err, auction.ErrAuctionNotExpired),
		errors.Is(err, auction.ErrPriceTooHigh),
		errors.Is(err, auction.ErrInsufficientPayment),
		errors.Is(err, auction.ErrInvalidCommit),
		errors.Is(err, auction.ErrRevealTooEarly),
		errors.Is(err, auction.ErrRevealExpired),
		errors.Is(err, auction.ErrHashMismatch),
		errors.Is(err, auction.ErrInsufficientReserve):
		writeError(w, http.StatusConflict, id, codePreconditionFailure, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, err.Error(), nil)
	}
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	if !s.allowSource(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "request rate exceeded", nil)
		return
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	switch req.Method {
	case "auction_open":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleOpen(w, r, req)
	case "auction_openSeized":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleOpenSeized(w, r, req)
	case "auction_bid":
		s.handleBid(w, r, req)
	case "auction_commit":
		s.handleCommit(w, r, req)
	case "auction_reveal":
		s.handleReveal(w, r, req)
	case "auction_commitHash":
		s.handleCommitHash(w, r, req)
	case "auction_cleanExpired":
		s.handleCleanExpired(w, r, req)
	case "auction_cancelExpired":
		s.handleCancelExpired(w, r, req)
	case "auction_get":
		s.handleGetAuction(w, r, req)
	case "auction_active":
		s.handleGetActive(w, r, req)
	case "auction_currentPrice":
		s.handleCurrentPrice(w, r, req)
	case "auction_userAuction":
		s.handleUserAuction(w, r, req)
	case "auction_mevProtection":
		s.handleMevProtection(w, r, req)
	case "auction_reputation":
		s.handleReputation(w, r, req)
	case "auction_config":
		s.handleGetConfig(w, r, req)
	case "auction_paused":
		s.handlePaused(w, r, req)
	case "auction_setPaused":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleSetPaused(w, r, req)
	case "auction_updateConfig":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleUpdateConfig(w, r, req)
	case "auction_emergencyWithdraw":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleEmergencyWithdraw(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
	}
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) allowSource(source string) bool {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	limiter, ok := s.limiters[source]
	if !ok {
		limiter = rate.NewLimiter(s.limit, s.burst)
		s.limiters[source] = limiter
	}
	s.mu.Unlock()
	return limiter.Allow()
}
