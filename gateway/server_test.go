package gateway

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	nativecommon "vouchernet/native/common"
	"vouchernet/native/voucher"
	"vouchernet/storage/voucherstore"
)

type stubSupply struct {
	terms voucher.SupplyTerms
}

func (s *stubSupply) SupplyTerms([32]byte) (*voucher.SupplyTerms, error) {
	clone := s.terms
	return &clone, nil
}

type stubTransfer struct{}

func (stubTransfer) TransferOut(string, [20]byte, *big.Int) error { return nil }

type harness struct {
	server *httptest.Server
	clock  *int64
	system *nativecommon.SystemState
}

func addrHex(fill byte) string {
	raw := bytes.Repeat([]byte{fill}, 20)
	return hex.EncodeToString(raw)
}

const (
	buyerHex    = "1111111111111111111111111111111111111111"
	sellerHex   = "2222222222222222222222222222222222222222"
	supplyHex   = "0102000000000000000000000000000000000000000000000000000000000000"
	adminSecret = "test-admin-secret"
)

func mintToken(t *testing.T, secret, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "ops",
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := voucherstore.NewStore(filepath.Join(t.TempDir(), "vouchers.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	engine := voucher.NewEngine()
	engine.SetState(store)
	engine.SetSupplyReader(&stubSupply{terms: voucher.SupplyTerms{
		Price:         big.NewInt(3000),
		BuyerDeposit:  big.NewInt(400),
		SellerDeposit: big.NewInt(500),
		PriceAsset:    "NATIVE",
		DepositAsset:  "NATIVE",
		RedeemableFor: 1000,
	}})
	engine.SetTransferor(stubTransfer{})
	var treasury [20]byte
	treasury[19] = 0xEE
	engine.SetTreasury(treasury)
	system := nativecommon.NewSystemState()
	engine.SetSystemView(system)
	engine.SetWindows(60, 60)

	clock := int64(1_000_000)
	srv := New(engine, system, slog.New(slog.NewTextHandler(testWriter{t}, nil)))
	srv.SetNowFunc(func() int64 { return clock })
	srv.SetAdminSecret([]byte(adminSecret))

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &harness{server: ts, clock: &clock, system: system}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(bytes.TrimSpace(p)))
	return len(p), nil
}

func (h *harness) post(t *testing.T, path string, body any) (*http.Response, map[string]any) {
	return h.postAuth(t, path, body, "")
}

func (h *harness) postAuth(t *testing.T, path string, body any, token string) (*http.Response, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, h.server.URL+path, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	decoded := make(map[string]any)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func (h *harness) commit(t *testing.T) string {
	t.Helper()
	resp, body := h.post(t, "/v1/vouchers/commit", map[string]any{
		"supplyId": supplyHex,
		"seq":      1,
		"buyer":    buyerHex,
		"seller":   sellerHex,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "commit body: %v", body)
	return body["id"].(string)
}

func TestCommitAndGet(t *testing.T) {
	h := newHarness(t)
	id := h.commit(t)

	resp, err := http.Get(h.server.URL + "/v1/vouchers/" + id)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "COMMITTED", body["status"])
	require.Equal(t, "3000", body["price"])
}

func TestLifecycleFlowOverHTTP(t *testing.T) {
	h := newHarness(t)
	id := h.commit(t)

	*h.clock++
	resp, _ := h.post(t, "/v1/vouchers/"+id+"/refund", map[string]any{"caller": buyerHex})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	*h.clock++
	resp, _ = h.post(t, "/v1/vouchers/"+id+"/complain", map[string]any{"caller": buyerHex})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	*h.clock++
	resp, _ = h.post(t, "/v1/vouchers/"+id+"/cancel", map[string]any{"caller": sellerHex})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := h.post(t, "/v1/vouchers/"+id+"/finalize", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body["status"], "FINALIZED")

	resp, payout := h.post(t, "/v1/withdrawals", map[string]any{"asset": "native", "party": buyerHex})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "3650", payout["amount"])

	resp, body = h.post(t, "/v1/withdrawals", map[string]any{"asset": "native", "party": buyerHex})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "nothing_owed", body["error"])
}

func TestErrorKindMapping(t *testing.T) {
	h := newHarness(t)
	id := h.commit(t)

	// Wrong actor on redeem.
	resp, body := h.post(t, "/v1/vouchers/"+id+"/redeem", map[string]any{"caller": sellerHex})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "wrong_actor", body["error"])

	// Complaint before any redeem or refund.
	resp, body = h.post(t, "/v1/vouchers/"+id+"/complain", map[string]any{"caller": buyerHex})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "illegal_transition", body["error"])

	// Finalize before any terminal condition.
	resp, body = h.post(t, "/v1/vouchers/"+id+"/finalize", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "not_yet_terminal", body["error"])

	// Unknown voucher.
	missing := addrHex(0xFF) + "ffffffffffffffffffffffff"
	resp, body = h.post(t, "/v1/vouchers/"+missing+"/redeem", map[string]any{"caller": buyerHex})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "not_found", body["error"])

	// Malformed identifier.
	resp, body = h.post(t, "/v1/vouchers/zzzz/redeem", map[string]any{"caller": buyerHex})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_params", body["error"])

	// Blank asset tag on a withdrawal.
	resp, body = h.post(t, "/v1/withdrawals", map[string]any{"asset": "  ", "party": buyerHex})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_params", body["error"])
}

func TestPauseAndDisasterOverHTTP(t *testing.T) {
	h := newHarness(t)
	h.commit(t)
	operator := mintToken(t, adminSecret, "operator")

	resp, _ := h.postAuth(t, "/v1/admin/pause", map[string]any{"paused": true}, operator)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := h.post(t, "/v1/vouchers/commit", map[string]any{
		"supplyId": supplyHex, "seq": 2, "buyer": buyerHex, "seller": sellerHex,
	})
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Equal(t, "paused", body["error"])

	// The drain stays closed until disaster mode is enabled as well.
	resp, body = h.post(t, "/v1/withdrawals/disaster", map[string]any{"asset": "NATIVE", "party": buyerHex})
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Equal(t, "disaster_inactive", body["error"])

	resp, _ = h.postAuth(t, "/v1/admin/disaster", map[string]any{"enabled": true}, operator)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, payout := h.post(t, "/v1/withdrawals/disaster", map[string]any{"asset": "NATIVE", "party": buyerHex})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "3400", payout["amount"])

	resp, body = h.post(t, "/v1/withdrawals/disaster", map[string]any{"asset": "NATIVE", "party": buyerHex})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "already_drained", body["error"])
}

func TestAdminEndpointsRequireOperatorToken(t *testing.T) {
	h := newHarness(t)

	// No token.
	resp, body := h.post(t, "/v1/admin/pause", map[string]any{"paused": true})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "unauthorized", body["error"])

	// Signed with the wrong secret.
	resp, body = h.postAuth(t, "/v1/admin/pause", map[string]any{"paused": true},
		mintToken(t, "wrong-secret", "operator"))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "unauthorized", body["error"])

	// Valid signature, insufficient role.
	resp, body = h.postAuth(t, "/v1/admin/pause", map[string]any{"paused": true},
		mintToken(t, adminSecret, "auditor"))
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "insufficient_role", body["error"])

	// None of the rejected calls flipped the switch.
	resp, _ = h.post(t, "/v1/vouchers/commit", map[string]any{
		"supplyId": supplyHex, "seq": 7, "buyer": buyerHex, "seller": sellerHex,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestAdminEndpointsFailClosedWithoutSecret(t *testing.T) {
	store, err := voucherstore.NewStore(filepath.Join(t.TempDir(), "bare.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	engine := voucher.NewEngine()
	engine.SetState(store)
	system := nativecommon.NewSystemState()
	engine.SetSystemView(system)
	srv := New(engine, system, slog.New(slog.NewTextHandler(testWriter{t}, nil)))
	bare := httptest.NewServer(srv.Router())
	t.Cleanup(bare.Close)

	payload, err := json.Marshal(map[string]any{"paused": true})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, bare.URL+"/v1/admin/pause", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, adminSecret, "operator"))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "admin_auth_not_configured", body["error"])
}

func TestRequestIDEchoed(t *testing.T) {
	h := newHarness(t)
	req, err := http.NewRequest(http.MethodGet, h.server.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-Id", "test-request")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "test-request", resp.Header.Get("X-Request-Id"))

	resp, err = http.Get(h.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}
