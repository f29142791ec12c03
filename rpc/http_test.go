package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"crowdchain/config"
	"crowdchain/core"
	"crowdchain/indexer"
	"crowdchain/native/fees"
	"crowdchain/observability/logging"
	"crowdchain/storage"
)

const (
	testSecret   = "test-secret"
	testIssuer   = "crowdchain-test"
	testAudience = "crowd-rpc"
	testChainID  = uint64(10143)
	testStart    = int64(1_700_000_000)
)

var (
	ownerAddr = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	donorAddr = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	otherAddr = common.HexToAddress("0x00000000000000000000000000000000000000d2")
	sinkAddr  = common.HexToAddress("0x00000000000000000000000000000000000000fe")
)

type testResponse struct {
	ID     interface{}     `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

type harness struct {
	node    *core.Node
	clock   *core.ManualClock
	server  *Server
	handler http.Handler
}

func newHarness(t *testing.T, index *indexer.Store, mutate func(*ServerConfig)) *harness {
	t.Helper()
	clock := core.NewManualClock(testStart)
	node, err := core.NewNode(storage.NewMemDB(), core.Config{
		ChainID:    testChainID,
		Commission: fees.Commission{Bps: 1000, Sink: sinkAddr},
		Clock:      clock,
		Genesis: []core.GenesisAlloc{
			{Address: donorAddr, Balance: uint256.NewInt(1_000)},
			{Address: otherAddr, Balance: uint256.NewInt(10)},
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = node.Close() })

	cfg := ServerConfig{
		JWTSecret:         testSecret,
		Issuer:            testIssuer,
		Audience:          testAudience,
		RequestsPerMinute: 6000,
		Burst:             1000,
		Deployments: []config.Deployment{
			{ChainID: testChainID, Name: "monad-testnet", Address: "0x00000000000000000000000000000000000c0ffe"},
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv := NewServer(node, index, cfg)
	return &harness{node: node, clock: clock, server: srv, handler: srv.Handler()}
}

func tokenFor(t *testing.T, addr common.Address) string {
	t.Helper()
	token, err := SignToken(testSecret, testIssuer, testAudience, addr, time.Hour)
	require.NoError(t, err)
	return token
}

func (h *harness) call(t *testing.T, token, method string, params interface{}) (int, testResponse) {
	t.Helper()
	payload := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		payload["params"] = []interface{}{params}
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	var resp testResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec.Code, resp
}

func (h *harness) createCampaign(t *testing.T, goal string, fixed bool, required string) campaignJSON {
	t.Helper()
	params := map[string]interface{}{
		"title":               "Community clinic",
		"goal":                goal,
		"deadline":            testStart + 3600,
		"fixedDonationAmount": fixed,
	}
	if required != "" {
		params["requiredDonationAmount"] = required
	}
	status, resp := h.call(t, tokenFor(t, ownerAddr), "crowdfund_createCampaign", params)
	require.Equal(t, http.StatusOK, status, "%+v", resp.Error)
	var campaign campaignJSON
	require.NoError(t, json.Unmarshal(resp.Result, &campaign))
	return campaign
}

func kindOf(t *testing.T, resp testResponse) string {
	t.Helper()
	require.NotNil(t, resp.Error)
	data, ok := resp.Error.Data.(map[string]interface{})
	require.True(t, ok, "error data: %#v", resp.Error.Data)
	kind, _ := data["kind"].(string)
	return kind
}

func TestCrowdfundLifecycleOverRPC(t *testing.T) {
	h := newHarness(t, nil, nil)
	campaign := h.createCampaign(t, "100", false, "")
	require.Equal(t, uint64(0), campaign.ID)
	require.Equal(t, ownerAddr.Hex(), campaign.Owner)
	require.Equal(t, "0", campaign.AmountRaised)

	donor := tokenFor(t, donorAddr)
	status, resp := h.call(t, donor, "crowdfund_donate", map[string]interface{}{"id": 0, "amount": "60"})
	require.Equal(t, http.StatusOK, status)
	status, resp = h.call(t, donor, "crowdfund_donate", map[string]interface{}{"id": 0, "amount": "40", "chainId": testChainID})
	require.Equal(t, http.StatusOK, status)
	var updated campaignJSON
	require.NoError(t, json.Unmarshal(resp.Result, &updated))
	require.True(t, updated.Completed)
	require.Equal(t, "100", updated.AmountRaised)

	status, resp = h.call(t, "", "crowdfund_getCampaign", map[string]interface{}{"id": 0})
	require.Equal(t, http.StatusOK, status)
	var snapshot snapshotJSON
	require.NoError(t, json.Unmarshal(resp.Result, &snapshot))
	require.Len(t, snapshot.Donors, 1)
	require.Equal(t, donorAddr.Hex(), snapshot.Donors[0].Donor)
	require.Equal(t, "100", snapshot.Donors[0].Amount)

	status, resp = h.call(t, tokenFor(t, ownerAddr), "crowdfund_withdraw", map[string]interface{}{"id": 0})
	require.Equal(t, http.StatusOK, status, "%+v", resp.Error)
	var payout payoutJSON
	require.NoError(t, json.Unmarshal(resp.Result, &payout))
	require.Equal(t, "100", payout.Gross)
	require.Equal(t, "90", payout.Net)
	require.Equal(t, "10", payout.Fee)
	require.NotNil(t, payout.FeeSink)
	require.Equal(t, sinkAddr.Hex(), *payout.FeeSink)

	status, resp = h.call(t, "", "bank_getBalance", map[string]interface{}{"address": ownerAddr.Hex()})
	require.Equal(t, http.StatusOK, status)
	var balance balanceJSON
	require.NoError(t, json.Unmarshal(resp.Result, &balance))
	require.Equal(t, "90", balance.Balance)

	status, resp = h.call(t, tokenFor(t, ownerAddr), "crowdfund_withdraw", map[string]interface{}{"id": 0})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, codeCrowdfundConflict, resp.Error.Code)
	require.Equal(t, "state", kindOf(t, resp))
}

func TestRefundOverRPC(t *testing.T) {
	h := newHarness(t, nil, nil)
	created := h.createCampaign(t, "500", true, "25")
	require.True(t, created.Open)
	require.False(t, created.Refunded)
	donor := tokenFor(t, donorAddr)

	status, resp := h.call(t, donor, "crowdfund_donate", map[string]interface{}{"id": 0, "amount": "30"})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "validation", kindOf(t, resp))

	status, _ = h.call(t, donor, "crowdfund_donate", map[string]interface{}{"id": 0, "amount": "25"})
	require.Equal(t, http.StatusOK, status)

	status, resp = h.call(t, donor, "crowdfund_claimRefund", map[string]interface{}{"id": 0})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, codeCrowdfundTemporal, resp.Error.Code)

	h.clock.Advance(3600)
	status, resp = h.call(t, donor, "crowdfund_claimRefund", map[string]interface{}{"id": 0})
	require.Equal(t, http.StatusOK, status, "%+v", resp.Error)
	var refund refundJSON
	require.NoError(t, json.Unmarshal(resp.Result, &refund))
	require.Equal(t, "25", refund.Amount)

	status, resp = h.call(t, donor, "crowdfund_claimRefund", map[string]interface{}{"id": 0})
	require.Equal(t, http.StatusPaymentRequired, status)
	require.Equal(t, "funds", kindOf(t, resp))

	status, resp = h.call(t, "", "crowdfund_getDonation", map[string]interface{}{"id": 0, "address": donorAddr.Hex()})
	require.Equal(t, http.StatusOK, status)
	var donation donationJSON
	require.NoError(t, json.Unmarshal(resp.Result, &donation))
	require.Equal(t, "0", donation.Amount)

	status, resp = h.call(t, "", "crowdfund_getCampaign", map[string]interface{}{"id": 0})
	require.Equal(t, http.StatusOK, status)
	var snapshot snapshotJSON
	require.NoError(t, json.Unmarshal(resp.Result, &snapshot))
	require.True(t, snapshot.Campaign.Refunded)
	require.False(t, snapshot.Campaign.Open)
	require.Len(t, snapshot.Donors, 1)
	require.Equal(t, "0", snapshot.Donors[0].Amount)
}

func TestErrorMapping(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.createCampaign(t, "100", false, "")

	status, resp := h.call(t, tokenFor(t, donorAddr), "crowdfund_donate", map[string]interface{}{"id": 7, "amount": "1"})
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeCrowdfundNotFound, resp.Error.Code)
	require.Equal(t, "campaign not found", resp.Error.Message)

	status, resp = h.call(t, tokenFor(t, otherAddr), "crowdfund_withdraw", map[string]interface{}{"id": 0})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "authorization", kindOf(t, resp))

	status, resp = h.call(t, tokenFor(t, otherAddr), "crowdfund_donate", map[string]interface{}{"id": 0, "amount": "50"})
	require.Equal(t, http.StatusPaymentRequired, status)
	require.Equal(t, "funds", kindOf(t, resp))

	status, resp = h.call(t, tokenFor(t, donorAddr), "crowdfund_donate", map[string]interface{}{"id": 0, "amount": "-1"})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeCrowdfundInvalidParams, resp.Error.Code)

	status, resp = h.call(t, tokenFor(t, donorAddr), "crowdfund_donate", map[string]interface{}{"id": 0, "amount": "1", "chainId": 1})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	status, resp = h.call(t, "", "crowdfund_getCampaign", map[string]interface{}{"id": 0, "extra": true})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	status, resp = h.call(t, "", "crowdfund_getCampaign", map[string]interface{}{})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "id required", resp.Error.Message)

	status, resp = h.call(t, "", "crowdfund_nope", nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestMutationsRequireToken(t *testing.T) {
	h := newHarness(t, nil, nil)
	params := map[string]interface{}{"title": "x", "goal": "1", "deadline": testStart + 10}

	status, resp := h.call(t, "", "crowdfund_createCampaign", params)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	wrongAudience, err := SignToken(testSecret, testIssuer, "elsewhere", ownerAddr, time.Hour)
	require.NoError(t, err)
	status, _ = h.call(t, wrongAudience, "crowdfund_createCampaign", params)
	require.Equal(t, http.StatusUnauthorized, status)

	wrongSecret, err := SignToken("other-secret", testIssuer, testAudience, ownerAddr, time.Hour)
	require.NoError(t, err)
	status, _ = h.call(t, wrongSecret, "crowdfund_createCampaign", params)
	require.Equal(t, http.StatusUnauthorized, status)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   ownerAddr.Hex(),
		Issuer:    testIssuer,
		Audience:  jwt.ClaimStrings{testAudience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	signed, err := expired.SignedString([]byte(testSecret))
	require.NoError(t, err)
	status, _ = h.call(t, signed, "crowdfund_createCampaign", params)
	require.Equal(t, http.StatusUnauthorized, status)

	notAddress := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "alice",
		Issuer:    testIssuer,
		Audience:  jwt.ClaimStrings{testAudience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err = notAddress.SignedString([]byte(testSecret))
	require.NoError(t, err)
	status, resp = h.call(t, signed, "crowdfund_createCampaign", params)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "token subject must be an account address", resp.Error.Message)

	count, err := h.node.CampaignCount()
	require.NoError(t, err)
	require.Equal(t, uint64(0), count)

	status, _ = h.call(t, tokenFor(t, ownerAddr), "crowdfund_createCampaign", params)
	require.Equal(t, http.StatusOK, status)
}

func TestAuthDisabledWithoutSecret(t *testing.T) {
	h := newHarness(t, nil, func(cfg *ServerConfig) { cfg.JWTSecret = "" })
	status, resp := h.call(t, tokenFor(t, ownerAddr), "crowdfund_withdraw", map[string]interface{}{"id": 0})
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "RPC authentication not configured", resp.Error.Message)
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, nil, func(cfg *ServerConfig) {
		cfg.RequestsPerMinute = 1
		cfg.Burst = 2
	})
	for i := 0; i < 2; i++ {
		status, _ := h.call(t, "", "crowdfund_campaignCount", nil)
		require.Equal(t, http.StatusOK, status)
	}
	status, resp := h.call(t, "", "crowdfund_campaignCount", nil)
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, codeRateLimited, resp.Error.Code)
}

func TestListCampaignsAndDeployment(t *testing.T) {
	h := newHarness(t, nil, nil)
	for i := 0; i < 3; i++ {
		h.createCampaign(t, fmt.Sprint(10+i), false, "")
	}
	status, resp := h.call(t, "", "crowdfund_listCampaigns", map[string]interface{}{"offset": 1, "limit": 5})
	require.Equal(t, http.StatusOK, status)
	var campaigns []campaignJSON
	require.NoError(t, json.Unmarshal(resp.Result, &campaigns))
	require.Len(t, campaigns, 2)
	require.Equal(t, uint64(1), campaigns[0].ID)
	require.Equal(t, "12", campaigns[1].Goal)

	status, resp = h.call(t, "", "crowdfund_campaignCount", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "3", string(resp.Result))

	status, resp = h.call(t, "", "crowdfund_deployment", nil)
	require.Equal(t, http.StatusOK, status)
	var dep deploymentJSON
	require.NoError(t, json.Unmarshal(resp.Result, &dep))
	require.Equal(t, "monad-testnet", dep.Name)

	status, _ = h.call(t, "", "crowdfund_deployment", map[string]interface{}{"chainId": 1})
	require.Equal(t, http.StatusNotFound, status)
}

func TestListEventsFromIndexer(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	store, err := indexer.Open("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	h := newHarness(t, store, nil)
	h.createCampaign(t, "50", false, "")
	status, _ := h.call(t, tokenFor(t, donorAddr), "crowdfund_donate", map[string]interface{}{"id": 0, "amount": "50"})
	require.Equal(t, http.StatusOK, status)

	_, cancel, backlog := h.node.SubscribeEvents(context.Background(), "")
	cancel()
	require.Len(t, backlog, 3)
	for _, rec := range backlog {
		require.NoError(t, store.Record(context.Background(), rec))
	}

	status, resp := h.call(t, "", "crowdfund_listEvents", map[string]interface{}{"id": 0})
	require.Equal(t, http.StatusOK, status, "%+v", resp.Error)
	var rows []eventRowJSON
	require.NoError(t, json.Unmarshal(resp.Result, &rows))
	require.Len(t, rows, 3)
	require.Equal(t, "crowdfund.created", rows[0].Type)
	require.Equal(t, "crowdfund.completed", rows[2].Type)

	status, resp = h.call(t, "", "crowdfund_listEvents", map[string]interface{}{"address": strings.ToLower(donorAddr.Hex())})
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(resp.Result, &rows))
	require.Len(t, rows, 1)
	require.Equal(t, "crowdfund.donated", rows[0].Type)
}

func TestListEventsWithoutIndexer(t *testing.T) {
	h := newHarness(t, nil, nil)
	status, resp := h.call(t, "", "crowdfund_listEvents", map[string]interface{}{"id": 0})
	require.Equal(t, http.StatusServiceUnavailable, status)
	require.Equal(t, codeUnavailable, resp.Error.Code)
}

func TestMalformedRequests(t *testing.T) {
	h := newHarness(t, nil, nil)
	for name, body := range map[string]string{
		"empty":   "",
		"garbage": "{not json",
		"version": `{"jsonrpc":"1.0","id":1,"method":"crowdfund_campaignCount"}`,
		"method":  `{"jsonrpc":"2.0","id":1}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, name)
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestClientSourceIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	h := newHarness(t, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "192.0.2.10:7000"
	req.Header.Set("X-Forwarded-For", "198.51.100.8")
	require.Equal(t, "192.0.2.10", h.server.clientSource(req))
}

func TestClientSourceHonorsTrustedProxy(t *testing.T) {
	h := newHarness(t, nil, func(cfg *ServerConfig) {
		cfg.TrustedProxies = []string{"10.0.0.1"}
	})
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "10.0.0.1:8080"
	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	require.Equal(t, "198.51.100.7", h.server.clientSource(req))

	req.Header.Set("X-Forwarded-For", "not-an-ip")
	require.Equal(t, "10.0.0.1", h.server.clientSource(req))
}

func TestClientSourceTrustFlag(t *testing.T) {
	h := newHarness(t, nil, func(cfg *ServerConfig) {
		cfg.TrustProxyHeaders = true
	})
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "192.0.2.10:7000"
	req.Header.Set("X-Forwarded-For", "198.51.100.8")
	require.Equal(t, "198.51.100.8", h.server.clientSource(req))
}

func TestRateLimitSpoofedForwardedFor(t *testing.T) {
	h := newHarness(t, nil, func(cfg *ServerConfig) {
		cfg.RequestsPerMinute = 1
		cfg.Burst = 2
	})
	send := func(forwarded string) int {
		body := []byte(`{"jsonrpc":"2.0","id":1,"method":"crowdfund_campaignCount"}`)
		req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
		req.RemoteAddr = "10.1.1.1:9000"
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		h.handler.ServeHTTP(rec, req)
		return rec.Code
	}
	require.Equal(t, http.StatusOK, send("198.51.100.1"))
	require.Equal(t, http.StatusOK, send("198.51.100.2"))
	require.Equal(t, http.StatusTooManyRequests, send("198.51.100.3"))
}

func TestRejectedAuthorizationIsMaskedInLogs(t *testing.T) {
	var logs bytes.Buffer
	h := newHarness(t, nil, func(cfg *ServerConfig) {
		cfg.Logger = slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	})
	status, _ := h.call(t, "leaked-credential", "crowdfund_createCampaign", map[string]interface{}{"title": "x"})
	require.Equal(t, http.StatusUnauthorized, status)
	require.Contains(t, logs.String(), "rpc authentication rejected")
	require.Contains(t, logs.String(), logging.RedactedValue)
	require.NotContains(t, logs.String(), "leaked-credential")
}
