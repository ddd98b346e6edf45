package gateway

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	nativecommon "vouchernet/native/common"
	"vouchernet/native/voucher"
	"vouchernet/observability/metrics"
)

// Server exposes the voucher engine over HTTP. All lifecycle routes are thin
// adapters: parsing, engine call, error-kind mapping — no business logic.
type Server struct {
	engine      *voucher.Engine
	system      *nativecommon.SystemState
	logger      *slog.Logger
	metrics     *metrics.VoucherMetrics
	nowFn       func() int64
	adminSecret []byte
}

// New constructs a gateway server around the supplied engine.
func New(engine *voucher.Engine, system *nativecommon.SystemState, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:  engine,
		system:  system,
		logger:  logger,
		metrics: metrics.Voucher(),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the clock used to timestamp lifecycle calls. Primarily
// intended for tests.
func (s *Server) SetNowFunc(now func() int64) {
	if now == nil {
		s.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	s.nowFn = now
}

// Router builds the HTTP handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Post("/vouchers/commit", s.handleCommit)
		v1.Get("/vouchers/{id}", s.handleGet)
		v1.Post("/vouchers/{id}/redeem", s.lifecycleHandler("redeem", s.engine.Redeem))
		v1.Post("/vouchers/{id}/refund", s.lifecycleHandler("refund", s.engine.Refund))
		v1.Post("/vouchers/{id}/complain", s.lifecycleHandler("complain", s.engine.Complain))
		v1.Post("/vouchers/{id}/cancel", s.lifecycleHandler("cancel", s.engine.Cancel))
		v1.Post("/vouchers/{id}/finalize", s.handleFinalize)
		v1.Post("/withdrawals", s.handleWithdraw)
		v1.Post("/withdrawals/disaster", s.handleDisasterWithdraw)
		v1.Route("/admin", func(admin chi.Router) {
			admin.Use(s.adminAuth)
			admin.Post("/pause", s.handlePause)
			admin.Post("/disaster", s.handleDisasterMode)
		})
	})
	return r
}

type errorBody struct {
	Error string `json:"error"`
	Cause string `json:"cause,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeBadRequest(w http.ResponseWriter, cause error) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_params", Cause: cause.Error()})
}

// engineErrorKinds maps engine error sentinels to a stable machine-readable
// kind and HTTP status. Order matters: the first match wins.
var engineErrorKinds = []struct {
	target error
	kind   string
	status int
}{
	{voucher.ErrVoucherNotFound, "not_found", http.StatusNotFound},
	{voucher.ErrWrongActor, "wrong_actor", http.StatusForbidden},
	{voucher.ErrAlreadyFinalized, "already_finalized", http.StatusConflict},
	{voucher.ErrIllegalTransition, "illegal_transition", http.StatusConflict},
	{voucher.ErrWindowExpired, "window_expired", http.StatusConflict},
	{voucher.ErrNotYetTerminal, "not_yet_terminal", http.StatusConflict},
	{voucher.ErrNothingOwed, "nothing_owed", http.StatusNotFound},
	{voucher.ErrAlreadyDrained, "already_drained", http.StatusConflict},
	{voucher.ErrTransferFailed, "transfer_failed", http.StatusBadGateway},
	{nativecommon.ErrModulePaused, "paused", http.StatusServiceUnavailable},
	{nativecommon.ErrDisasterInactive, "disaster_inactive", http.StatusServiceUnavailable},
}

func errorKind(err error) (string, int) {
	for _, entry := range engineErrorKinds {
		if errors.Is(err, entry.target) {
			return entry.kind, entry.status
		}
	}
	return "internal", http.StatusInternalServerError
}

func (s *Server) writeEngineError(w http.ResponseWriter, action string, err error) {
	kind, status := errorKind(err)
	if kind == "internal" {
		s.logger.Error("engine call failed", "action", action, "error", err.Error())
	}
	s.metrics.ObserveTransitionFailure(action, kind)
	writeJSON(w, status, errorBody{Error: kind})
}

type commitParams struct {
	SupplyID string `json:"supplyId"`
	Seq      uint64 `json:"seq"`
	Buyer    string `json:"buyer"`
	Seller   string `json:"seller"`
}

type voucherJSON struct {
	ID            string `json:"id"`
	SupplyID      string `json:"supplyId"`
	Seq           uint64 `json:"seq"`
	Buyer         string `json:"buyer"`
	Seller        string `json:"seller"`
	PriceAsset    string `json:"priceAsset"`
	DepositAsset  string `json:"depositAsset"`
	Price         string `json:"price"`
	BuyerDeposit  string `json:"buyerDeposit"`
	SellerDeposit string `json:"sellerDeposit"`
	CommittedAt   int64  `json:"committedAt"`
	ValidUntil    int64  `json:"validUntil"`
	Status        string `json:"status"`
}

func voucherToJSON(v *voucher.Voucher) voucherJSON {
	return voucherJSON{
		ID:            hex.EncodeToString(v.ID[:]),
		SupplyID:      hex.EncodeToString(v.SupplyID[:]),
		Seq:           v.Seq,
		Buyer:         hex.EncodeToString(v.Buyer[:]),
		Seller:        hex.EncodeToString(v.Seller[:]),
		PriceAsset:    v.PriceAsset,
		DepositAsset:  v.DepositAsset,
		Price:         v.Price.String(),
		BuyerDeposit:  v.BuyerDeposit.String(),
		SellerDeposit: v.SellerDeposit.String(),
		CommittedAt:   v.CommittedAt,
		ValidUntil:    v.ValidUntil,
		Status:        v.Status.String(),
	}
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var params commitParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeBadRequest(w, err)
		return
	}
	supplyID, err := parseHash(params.SupplyID)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	buyer, err := parseAddress(params.Buyer)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	seller, err := parseAddress(params.Seller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	v, err := s.engine.Commit(supplyID, params.Seq, buyer, seller, s.nowFn())
	if err != nil {
		s.writeEngineError(w, "commit", err)
		return
	}
	s.metrics.ObserveTransition("commit")
	writeJSON(w, http.StatusCreated, voucherToJSON(v))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseHash(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	v, err := s.engine.Get(id)
	if err != nil {
		s.writeEngineError(w, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, voucherToJSON(v))
}

type actorParams struct {
	Caller string `json:"caller"`
}

// lifecycleHandler adapts the redeem/refund/complain/cancel engine calls,
// which all share the (id, caller, now) shape.
func (s *Server) lifecycleHandler(action string, call func([32]byte, [20]byte, int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseHash(chi.URLParam(r, "id"))
		if err != nil {
			writeBadRequest(w, err)
			return
		}
		var params actorParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			writeBadRequest(w, err)
			return
		}
		caller, err := parseAddress(params.Caller)
		if err != nil {
			writeBadRequest(w, err)
			return
		}
		if err := call(id, caller, s.nowFn()); err != nil {
			s.writeEngineError(w, action, err)
			return
		}
		s.metrics.ObserveTransition(action)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	id, err := parseHash(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.engine.Finalize(id, s.nowFn()); err != nil {
		s.writeEngineError(w, "finalize", err)
		return
	}
	v, err := s.engine.Get(id)
	if err != nil {
		s.writeEngineError(w, "finalize", err)
		return
	}
	s.metrics.ObserveFinalization(v.Status.String())
	writeJSON(w, http.StatusOK, voucherToJSON(v))
}

type withdrawParams struct {
	Asset string `json:"asset"`
	Party string `json:"party"`
}

type withdrawResult struct {
	Asset  string `json:"asset"`
	Party  string `json:"party"`
	Amount string `json:"amount"`
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	params, party, ok := s.parseWithdraw(w, r)
	if !ok {
		return
	}
	amount, err := s.engine.Withdraw(params.Asset, party)
	if err != nil {
		if errors.Is(err, voucher.ErrTransferFailed) {
			s.metrics.ObserveWithdrawalFailure()
		}
		s.writeEngineError(w, "withdraw", err)
		return
	}
	s.metrics.ObserveWithdrawal(params.Asset)
	writeJSON(w, http.StatusOK, withdrawResult{
		Asset:  params.Asset,
		Party:  params.Party,
		Amount: amount.String(),
	})
}

func (s *Server) handleDisasterWithdraw(w http.ResponseWriter, r *http.Request) {
	params, party, ok := s.parseWithdraw(w, r)
	if !ok {
		return
	}
	amount, err := s.engine.DisasterWithdraw(params.Asset, party)
	if err != nil {
		s.writeEngineError(w, "disaster_withdraw", err)
		return
	}
	s.metrics.ObserveDisasterDrain()
	writeJSON(w, http.StatusOK, withdrawResult{
		Asset:  params.Asset,
		Party:  params.Party,
		Amount: amount.String(),
	})
}

// parseWithdraw decodes the shared withdrawal parameters, canonicalizing the
// asset tag with the same rule the engine applies.
func (s *Server) parseWithdraw(w http.ResponseWriter, r *http.Request) (withdrawParams, [20]byte, bool) {
	var params withdrawParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeBadRequest(w, err)
		return params, [20]byte{}, false
	}
	asset, err := voucher.NormalizeAsset(params.Asset)
	if err != nil {
		writeBadRequest(w, err)
		return params, [20]byte{}, false
	}
	params.Asset = asset
	party, err := parseAddress(params.Party)
	if err != nil {
		writeBadRequest(w, err)
		return params, [20]byte{}, false
	}
	return params, party, true
}

type pauseParams struct {
	Paused bool `json:"paused"`
}

type disasterParams struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var params pauseParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeBadRequest(w, err)
		return
	}
	s.system.SetPaused(params.Paused)
	s.logger.Info("pause switch changed", "paused", params.Paused)
	writeJSON(w, http.StatusOK, map[string]bool{"paused": params.Paused})
}

func (s *Server) handleDisasterMode(w http.ResponseWriter, r *http.Request) {
	var params disasterParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeBadRequest(w, err)
		return
	}
	s.system.SetDisaster(params.Enabled)
	s.logger.Info("disaster mode changed", "enabled", params.Enabled)
	writeJSON(w, http.StatusOK, map[string]bool{"disaster": params.Enabled})
}
