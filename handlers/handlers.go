package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"ve-ledger/ledger"
	"ve-ledger/logger"
	"ve-ledger/models"
)

// Handler contains the HTTP handlers for the ledger API endpoints
type Handler struct {
	Ledger *ledger.Ledger
	// Now supplies the timestamp of requests that carry none.
	Now func() uint64
}

// NewHandler creates and returns a new Handler using the wall clock
func NewHandler(l *ledger.Ledger) *Handler {
	return &Handler{
		Ledger: l,
		Now:    func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// statusOf maps ledger errors to HTTP status codes.
func statusOf(err error) int {
	if errors.Is(err, ledger.ErrAlreadyLocked) || errors.Is(err, ledger.ErrAlreadyInitialized) {
		return http.StatusConflict
	}
	switch ledger.CategoryOf(err) {
	case ledger.Precondition:
		return http.StatusBadRequest
	case ledger.Integrity:
		return http.StatusConflict
	case ledger.NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail logs err under msg and writes it with the status its category maps to.
func fail(w http.ResponseWriter, msg string, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		logger.Logger.Error(msg, zap.Error(err))
	} else {
		logger.Logger.Info(msg, zap.Error(err), zap.Int("status", status))
	}
	writeError(w, status, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		logger.Logger.Error("Failed to decode request", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	return true
}

func (h *Handler) timestamp(ts uint64) uint64 {
	if ts == 0 {
		return h.Now()
	}
	return ts
}

// queryUint reads an unsigned query parameter. ok reports whether it was present.
func queryUint(r *http.Request, name string) (v uint64, ok bool, err error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, false, nil
	}
	v, err = strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s: %q", name, s)
	}
	return v, true, nil
}

func pathUint(r *http.Request, name string) (uint64, error) {
	s := mux.Vars(r)[name]
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, s)
	}
	return v, nil
}

// at returns the "at" query parameter, defaulting to the handler clock.
func (h *Handler) at(r *http.Request) (uint64, error) {
	t, ok, err := queryUint(r, "at")
	if err != nil || ok {
		return t, err
	}
	return h.Now(), nil
}

// Init handles POST requests that create the ledger
func (h *Handler) Init(w http.ResponseWriter, r *http.Request) {
	var req models.CallerRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Caller == "" {
		writeError(w, http.StatusBadRequest, "caller is required")
		return
	}

	g, err := h.Ledger.Init(req.Caller, h.timestamp(req.Timestamp))
	if err != nil {
		fail(w, "Failed to initialize ledger", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Ledger initialized",
		"state":   g,
	})
}

// Lock handles POST requests that create a lock for an account
func (h *Handler) Lock(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]
	var req models.LockRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.Ledger.Lock(account, req.Amount, req.LockEndTime, h.timestamp(req.Timestamp))
	if err != nil {
		fail(w, "Failed to lock", err)
		return
	}
	logger.Logger.Info("Locked",
		zap.String("account", account),
		zap.Uint64("amount", req.Amount),
		zap.Uint64("lock_end_time", req.LockEndTime))
	writeJSON(w, http.StatusCreated, res)
}

// TopUp handles POST requests that add to an existing lock
func (h *Handler) TopUp(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]
	var req models.TopUpRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.Ledger.TopUp(account, req.Amount, h.timestamp(req.Timestamp))
	if err != nil {
		fail(w, "Failed to top up", err)
		return
	}
	logger.Logger.Info("Topped up", zap.String("account", account), zap.Uint64("amount", req.Amount))
	writeJSON(w, http.StatusOK, res)
}

// Extend handles POST requests that move a lock's end time
func (h *Handler) Extend(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]
	var req models.ExtendRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.Ledger.Extend(account, req.LockEndTime, h.timestamp(req.Timestamp))
	if err != nil {
		fail(w, "Failed to extend lock", err)
		return
	}
	logger.Logger.Info("Extended lock", zap.String("account", account), zap.Uint64("lock_end_time", req.LockEndTime))
	writeJSON(w, http.StatusOK, res)
}

// Withdraw handles POST requests that end an expired lock
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]
	var req models.TimestampRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.Ledger.Withdraw(account, h.timestamp(req.Timestamp))
	if err != nil {
		fail(w, "Failed to withdraw", err)
		return
	}
	logger.Logger.Info("Withdrew", zap.String("account", account))
	writeJSON(w, http.StatusOK, res)
}

// Maintain handles POST requests that catch the total ledger up with elapsed weeks
func (h *Handler) Maintain(w http.ResponseWriter, r *http.Request) {
	var req models.CallerRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Caller == "" {
		writeError(w, http.StatusBadRequest, "caller is required")
		return
	}

	n, err := h.Ledger.Maintain(req.Caller, h.timestamp(req.Timestamp))
	if err != nil {
		fail(w, "Failed to maintain ledger", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"boundaries_crossed": n,
		"caught_up":          n < h.Ledger.Params().MaxBoundariesPerMaintain,
	})
}

// GetAccount handles GET requests for an account's state
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	state, err := h.Ledger.AccountState(mux.Vars(r)["account"])
	if err != nil {
		fail(w, "Failed to get account", err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// GetAccountCheckpoint handles GET requests for one of an account's checkpoints
func (h *Handler) GetAccountCheckpoint(w http.ResponseWriter, r *http.Request) {
	index, err := pathUint(r, "index")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cp, err := h.Ledger.AccountCheckpoint(mux.Vars(r)["account"], index)
	if err != nil {
		fail(w, "Failed to get account checkpoint", err)
		return
	}
	writeJSON(w, http.StatusOK, cp)
}

// GetPower handles GET requests for an account's power at a time.
// Without an index the hint is computed from committed history.
func (h *Handler) GetPower(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]
	t, err := h.at(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	hint, ok, err := queryUint(r, "index")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ok {
		if hint, err = h.Ledger.FindAccountPowerIndex(account, t); err != nil {
			fail(w, "Failed to find power index", err)
			return
		}
	}

	power, err := h.Ledger.PowerOf(account, hint, t)
	if err != nil {
		fail(w, "Failed to get power", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account": account,
		"index":   hint,
		"at":      t,
		"power":   power,
	})
}

// GetPowerIndex handles GET requests for the index hint of an account at a time
func (h *Handler) GetPowerIndex(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]
	t, err := h.at(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	hint, err := h.Ledger.FindAccountPowerIndex(account, t)
	if err != nil {
		fail(w, "Failed to find power index", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"account": account, "at": t, "index": hint})
}

type deltaQuery struct {
	t1, t2       uint64
	hint1, hint2 uint64
	hasH1, hasH2 bool
}

func parseDeltaQuery(r *http.Request) (*deltaQuery, error) {
	q := &deltaQuery{}
	var ok1, ok2 bool
	var err error
	if q.t1, ok1, err = queryUint(r, "t1"); err != nil {
		return nil, err
	}
	if q.t2, ok2, err = queryUint(r, "t2"); err != nil {
		return nil, err
	}
	if !ok1 || !ok2 {
		return nil, errors.New("t1 and t2 are required")
	}
	if q.hint1, q.hasH1, err = queryUint(r, "index1"); err != nil {
		return nil, err
	}
	if q.hint2, q.hasH2, err = queryUint(r, "index2"); err != nil {
		return nil, err
	}
	return q, nil
}

// GetCumulativePowerDelta handles GET requests for the power an account accrued over [t1, t2]
func (h *Handler) GetCumulativePowerDelta(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]
	q, err := parseDeltaQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !q.hasH1 {
		if q.hint1, err = h.Ledger.FindAccountPowerIndex(account, q.t1); err != nil {
			fail(w, "Failed to find power index", err)
			return
		}
	}
	if !q.hasH2 {
		if q.hint2, err = h.Ledger.FindAccountPowerIndex(account, q.t2); err != nil {
			fail(w, "Failed to find power index", err)
			return
		}
	}

	d, err := h.Ledger.CumulativePowerDelta(account, q.hint1, q.hint2, q.t1, q.t2)
	if err != nil {
		fail(w, "Failed to get cumulative power delta", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account":                account,
		"t1":                     q.t1,
		"t2":                     q.t2,
		"cumulative_power_delta": d.Dec(),
	})
}

// GetTotalPower handles GET requests for the total power at a time
func (h *Handler) GetTotalPower(w http.ResponseWriter, r *http.Request) {
	t, err := h.at(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	hint, ok, err := queryUint(r, "index")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ok {
		if hint, err = h.Ledger.FindTotalPowerIndex(t); err != nil {
			fail(w, "Failed to find total power index", err)
			return
		}
	}

	power, err := h.Ledger.TotalPower(hint, t)
	if err != nil {
		fail(w, "Failed to get total power", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"index": hint, "at": t, "power": power})
}

// GetTotalPowerIndex handles GET requests for the total ledger index hint at a time
func (h *Handler) GetTotalPowerIndex(w http.ResponseWriter, r *http.Request) {
	t, err := h.at(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	hint, err := h.Ledger.FindTotalPowerIndex(t)
	if err != nil {
		fail(w, "Failed to find total power index", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"at": t, "index": hint})
}

// GetTotalCumulativePowerDelta handles GET requests for the total power accrued over [t1, t2]
func (h *Handler) GetTotalCumulativePowerDelta(w http.ResponseWriter, r *http.Request) {
	q, err := parseDeltaQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !q.hasH1 {
		if q.hint1, err = h.Ledger.FindTotalPowerIndex(q.t1); err != nil {
			fail(w, "Failed to find total power index", err)
			return
		}
	}
	if !q.hasH2 {
		if q.hint2, err = h.Ledger.FindTotalPowerIndex(q.t2); err != nil {
			fail(w, "Failed to find total power index", err)
			return
		}
	}

	d, err := h.Ledger.TotalCumulativePowerDelta(q.hint1, q.hint2, q.t1, q.t2)
	if err != nil {
		fail(w, "Failed to get total cumulative power delta", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"t1":                     q.t1,
		"t2":                     q.t2,
		"cumulative_power_delta": d.Dec(),
	})
}

// GetTotalCheckpoint handles GET requests for one total ledger checkpoint
func (h *Handler) GetTotalCheckpoint(w http.ResponseWriter, r *http.Request) {
	index, err := pathUint(r, "index")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cp, err := h.Ledger.TotalCheckpoint(index)
	if err != nil {
		fail(w, "Failed to get total checkpoint", err)
		return
	}
	writeJSON(w, http.StatusOK, cp)
}

// GetState handles GET requests for the global ledger state
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	g, err := h.Ledger.GlobalState()
	if err != nil {
		fail(w, "Failed to get ledger state", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// GetSlopeChange handles GET requests for the slope change scheduled at a week
func (h *Handler) GetSlopeChange(w http.ResponseWriter, r *http.Request) {
	week, err := pathUint(r, "week")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sc, err := h.Ledger.SlopeChange(week)
	if err != nil {
		fail(w, "Failed to get slope change", err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

// ListSlopeChanges handles GET requests for the non-zero slope changes in [from, to]
func (h *Handler) ListSlopeChanges(w http.ResponseWriter, r *http.Request) {
	from, _, err := queryUint(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, ok, err := queryUint(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ok {
		to = ^uint64(0)
	}

	changes, err := h.Ledger.SlopeChanges(from, to)
	if err != nil {
		fail(w, "Failed to list slope changes", err)
		return
	}
	if changes == nil {
		changes = []models.SlopeChange{}
	}
	writeJSON(w, http.StatusOK, changes)
}

// GetBonds handles GET requests for a payer's storage bond tally
func (h *Handler) GetBonds(w http.ResponseWriter, r *http.Request) {
	b, err := h.Ledger.BondAccount(mux.Vars(r)["payer"])
	if err != nil {
		fail(w, "Failed to get bonds", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// DeletePowerPages handles DELETE requests that purge an account's oldest power pages
func (h *Handler) DeletePowerPages(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]
	var req models.DeletePagesRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Caller == "" {
		writeError(w, http.StatusBadRequest, "caller is required")
		return
	}

	res, err := h.Ledger.DeleteAccountPowerPages(req.Caller, account, req.Start, req.Count)
	if err != nil {
		fail(w, "Failed to delete power pages", err)
		return
	}
	logger.Logger.Info("Deleted power pages",
		zap.String("account", account),
		zap.Uint64("start", req.Start),
		zap.Uint64("count", req.Count),
		zap.Uint64("bond_refunded", res.BondRefunded))
	writeJSON(w, http.StatusOK, res)
}

// DeleteAccount handles DELETE requests that remove a withdrawn account
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]
	var req models.DeleteAccountRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Caller == "" {
		writeError(w, http.StatusBadRequest, "caller is required")
		return
	}

	res, err := h.Ledger.DeleteAccountState(req.Caller, account)
	if err != nil {
		fail(w, "Failed to delete account", err)
		return
	}
	logger.Logger.Info("Deleted account", zap.String("account", account), zap.Uint64("bond_refunded", res.BondRefunded))
	writeJSON(w, http.StatusOK, res)
}
