package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"crowdchain/config"
	"crowdchain/core"
	"crowdchain/indexer"
	"crowdchain/observability"
	"crowdchain/observability/logging"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeUnavailable    = -32002
	codeRateLimited    = -32020
)

// ServerConfig carries the transport settings that do not live on the node.
type ServerConfig struct {
	JWTSecret         string
	Issuer            string
	Audience          string
	RequestsPerMinute int
	Burst             int
	TrustedProxies    []string
	TrustProxyHeaders bool
	Deployments       []config.Deployment
	Logger            *slog.Logger
}

// Server exposes the crowdfunding ledger over JSON-RPC and a websocket event
// stream.
type Server struct {
	node    *core.Node
	index   *indexer.Store
	cfg     ServerConfig
	auth    *authenticator
	limiter *rateLimiter
	logger  *slog.Logger
	tracer  trace.Tracer
	methods map[string]method
	proxies map[string]struct{}
}

type method struct {
	handler func(r *http.Request, params []json.RawMessage) (interface{}, *methodError)
	auth    bool
}

// methodError pairs a JSON-RPC error with the HTTP status it is served under.
type methodError struct {
	status int
	err    *RPCError
}

func newMethodError(status, code int, message string, data interface{}) *methodError {
	return &methodError{status: status, err: &RPCError{Code: code, Message: message, Data: data}}
}

// NewServer builds a server over node. index may be nil when history
// indexing is disabled.
func NewServer(node *core.Node, index *indexer.Store, cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		node:    node,
		index:   index,
		cfg:     cfg,
		auth:    newAuthenticator(cfg.JWTSecret, cfg.Issuer, cfg.Audience),
		limiter: newRateLimiter(cfg.RequestsPerMinute, cfg.Burst),
		logger:  logger.With("component", "rpc"),
		tracer:  otel.Tracer("crowdchain/rpc"),
	}
	s.methods = s.crowdfundMethods()
	s.proxies = make(map[string]struct{}, len(cfg.TrustedProxies))
	for _, proxy := range cfg.TrustedProxies {
		if ip := net.ParseIP(strings.TrimSpace(proxy)); ip != nil {
			s.proxies[ip.String()] = struct{}{}
		}
	}
	return s
}

// Handler returns the instrumented HTTP router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws/events", s.handleEventsWS)
	r.Post("/", s.handle)
	r.Post("/rpc", s.handle)
	return otelhttp.NewHandler(r, "crowdd")
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
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

func (e *RPCError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
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
	w.Header().Set("Content-Type", "application/json")
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"chainId": s.node.ChainID(),
		"time":    s.node.Now(),
	})
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer reader.Close()
	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
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
	name := strings.TrimSpace(req.Method)
	if name == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	source := s.clientSource(r)
	if !s.limiter.allow(source) {
		observability.RPC().RecordThrottle("rate_limit")
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", source)
		return
	}

	m, ok := s.methods[name]
	if !ok {
		observability.RPC().Observe("unknown", codeMethodNotFound, time.Since(start))
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", name), nil)
		return
	}

	ctx, span := s.tracer.Start(r.Context(), "rpc."+name, trace.WithAttributes(
		attribute.String("rpc.method", name),
		attribute.String("rpc.client", source),
	))
	defer span.End()
	r = r.WithContext(ctx)

	var (
		result interface{}
		failed *methodError
	)
	if m.auth {
		caller, rpcErr := s.auth.authenticate(r)
		if rpcErr != nil {
			s.logger.Debug("rpc authentication rejected",
				slog.String("method", name),
				slog.String("reason", rpcErr.Message),
				logging.MaskField("authorization", r.Header.Get("Authorization")))
			failed = &methodError{status: http.StatusUnauthorized, err: rpcErr}
		} else {
			span.SetAttributes(attribute.String("rpc.caller", caller.Hex()))
			r = r.WithContext(withCaller(r.Context(), caller))
			result, failed = m.handler(r, req.Params)
		}
	} else {
		result, failed = m.handler(r, req.Params)
	}

	code := 0
	if failed != nil {
		code = failed.err.Code
		span.SetStatus(otelcodes.Error, failed.err.Message)
		if failed.status >= http.StatusInternalServerError {
			s.logger.Error("rpc method failed", "method", name, "error", failed.err.Message)
		}
	}
	observability.RPC().Observe(name, code, time.Since(start))
	if failed != nil {
		writeError(w, failed.status, req.ID, failed.err.Code, failed.err.Message, failed.err.Data)
		return
	}
	writeResult(w, req.ID, result)
}

// clientSource keys rate limiting. The first X-Forwarded-For hop is used only
// when the peer is a trusted proxy; otherwise the header is ignored.
func (s *Server) clientSource(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	if ip := net.ParseIP(peer); ip != nil {
		peer = ip.String()
	}
	if !s.cfg.TrustProxyHeaders {
		if _, ok := s.proxies[peer]; !ok {
			return peer
		}
	}
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded == "" {
		return peer
	}
	first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
	ip := net.ParseIP(first)
	if ip == nil {
		return peer
	}
	return ip.String()
}
