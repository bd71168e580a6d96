package rpc

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"orbitlen/native/lending"
	"orbitlen/native/oracle"
	"orbitlen/storage"
)

type rpcHarness struct {
	server *httptest.Server
	feed   *oracle.StaticFeed
	clk    *clock.Mock
}

func newRPCHarness(t *testing.T) *rpcHarness {
	t.Helper()
	clk := clock.NewMock()
	feed := oracle.NewStaticFeed(clk)
	adapter := oracle.NewAdapter(feed, time.Minute, clk)
	engine := lending.NewEngine(lending.NewKVState(storage.NewMemDB()), adapter, lending.NewMemoryCustody(), "authority")
	engine.SetClock(clk)

	srv := httptest.NewServer(NewServer(engine, slog.Default()).Router())
	t.Cleanup(srv.Close)
	return &rpcHarness{server: srv, feed: feed, clk: clk}
}

func (h *rpcHarness) post(t *testing.T, path string, payload interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(h.server.URL+path, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (h *rpcHarness) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(h.server.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func testBankConfigJSON(feedRef string) lending.BankConfig {
	return lending.BankConfig{
		RiskWeights: lending.RiskWeights{
			AssetWeightInit:      decimal.RequireFromString("0.8"),
			AssetWeightMaint:     decimal.RequireFromString("0.9"),
			LiabilityWeightInit:  decimal.RequireFromString("1.25"),
			LiabilityWeightMaint: decimal.RequireFromString("1.1"),
		},
		InterestRateConfig: lending.InterestRateConfig{
			OptimalUtilization: decimal.RequireFromString("0.8"),
			PlateauRate:        decimal.RequireFromString("0.10"),
			MaxRate:            decimal.RequireFromString("0.50"),
		},
		PriceFeedRef:     feedRef,
		LiquidationBonus: decimal.RequireFromString("0.05"),
	}
}

func (h *rpcHarness) seedBank(t *testing.T, assetID, feedRef, price string) {
	t.Helper()
	h.feed.Publish(feedRef, decimal.RequireFromString(price))
	resp := h.post(t, "/v1/banks", createBankRequest{
		Authority: "authority",
		AssetID:   assetID,
		Config:    testBankConfigJSON(feedRef),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestCreateAccountAndDuplicate(t *testing.T) {
	h := newRPCHarness(t)

	resp := h.post(t, "/v1/accounts", createAccountRequest{Owner: "alice"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var account lending.Account
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&account))
	require.Equal(t, "alice", account.Owner)

	resp = h.post(t, "/v1/accounts", createAccountRequest{Owner: "alice"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCreateBankRequiresAuthority(t *testing.T) {
	h := newRPCHarness(t)
	h.feed.Publish("SOL/USD", decimal.NewFromInt(1))

	resp := h.post(t, "/v1/banks", createBankRequest{
		Authority: "mallory",
		AssetID:   "SOL",
		Config:    testBankConfigJSON("SOL/USD"),
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestDepositAndQueryBank(t *testing.T) {
	h := newRPCHarness(t)
	h.seedBank(t, "SOL", "SOL/USD", "150")
	resp := h.post(t, "/v1/accounts", createAccountRequest{Owner: "alice"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = h.post(t, "/v1/deposit", fundsRequest{Owner: "alice", BankID: "SOL", Amount: "100"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.get(t, "/v1/banks/SOL")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var bank lending.Bank
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&bank))
	require.True(t, bank.VaultBalance.Equal(decimal.NewFromInt(100)), "vault %s", bank.VaultBalance)

	resp = h.get(t, "/v1/banks")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var banks []lending.Bank
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&banks))
	require.Len(t, banks, 1)
}

func TestBorrowBeyondHealthRejected(t *testing.T) {
	h := newRPCHarness(t)
	h.seedBank(t, "A", "A/USD", "1")
	h.seedBank(t, "B", "B/USD", "10")
	require.Equal(t, http.StatusCreated, h.post(t, "/v1/accounts", createAccountRequest{Owner: "alice"}).StatusCode)
	require.Equal(t, http.StatusCreated, h.post(t, "/v1/accounts", createAccountRequest{Owner: "bob"}).StatusCode)

	require.Equal(t, http.StatusOK, h.post(t, "/v1/deposit", fundsRequest{Owner: "bob", BankID: "B", Amount: "100"}).StatusCode)
	require.Equal(t, http.StatusOK, h.post(t, "/v1/deposit", fundsRequest{Owner: "alice", BankID: "A", Amount: "100"}).StatusCode)

	resp := h.post(t, "/v1/borrow", fundsRequest{Owner: "alice", BankID: "B", Amount: "9"})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = h.post(t, "/v1/borrow", fundsRequest{Owner: "alice", BankID: "B", Amount: "5"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.get(t, "/v1/accounts/alice/health?tier=initial")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var report lending.HealthReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	require.True(t, report.Healthy())
}

func TestUnknownAccountIs404(t *testing.T) {
	h := newRPCHarness(t)
	resp := h.get(t, "/v1/accounts/ghost")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMalformedRequestIs400(t *testing.T) {
	h := newRPCHarness(t)
	resp, err := http.Post(h.server.URL+"/v1/accounts", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp2 := h.post(t, "/v1/deposit", fundsRequest{Owner: "alice", BankID: "SOL", Amount: "abc"})
	require.Equal(t, http.StatusBadRequest, resp2.StatusCode)

	resp3 := h.get(t, "/v1/accounts/alice/health?tier=bogus")
	require.Equal(t, http.StatusBadRequest, resp3.StatusCode)
}

func TestHealthzAndMetricsExposed(t *testing.T) {
	h := newRPCHarness(t)
	require.Equal(t, http.StatusOK, h.get(t, "/healthz").StatusCode)
	require.Equal(t, http.StatusOK, h.get(t, "/metrics").StatusCode)
}
