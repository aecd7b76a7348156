package routers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ve-ledger/handlers"
	"ve-ledger/logger"
)

// RequestIDHeader carries the id assigned to each request.
const RequestIDHeader = "X-Request-ID"

// RegisterRoutes sets up all the HTTP routes for the ledger.
// gatherer is served on /metrics; nil leaves the route out.
func RegisterRoutes(r *mux.Router, h *handlers.Handler, gatherer prometheus.Gatherer) {
	r.Use(RequestLogger)

	// Creates the ledger and its first total checkpoint
	r.HandleFunc("/init", h.Init).Methods("POST")

	// Lock lifecycle of one account
	r.HandleFunc("/accounts/{account}/lock", h.Lock).Methods("POST")
	r.HandleFunc("/accounts/{account}/topup", h.TopUp).Methods("POST")
	r.HandleFunc("/accounts/{account}/extend", h.Extend).Methods("POST")
	r.HandleFunc("/accounts/{account}/withdraw", h.Withdraw).Methods("POST")

	// Appends week boundary checkpoints the total ledger is missing
	r.HandleFunc("/maintain", h.Maintain).Methods("POST")

	// Account queries
	r.HandleFunc("/accounts/{account}", h.GetAccount).Methods("GET")
	r.HandleFunc("/accounts/{account}/checkpoints/{index}", h.GetAccountCheckpoint).Methods("GET")
	r.HandleFunc("/accounts/{account}/power", h.GetPower).Methods("GET")
	r.HandleFunc("/accounts/{account}/power-index", h.GetPowerIndex).Methods("GET")
	r.HandleFunc("/accounts/{account}/cumulative-power-delta", h.GetCumulativePowerDelta).Methods("GET")

	// Total ledger queries
	r.HandleFunc("/total-power", h.GetTotalPower).Methods("GET")
	r.HandleFunc("/total-power-index", h.GetTotalPowerIndex).Methods("GET")
	r.HandleFunc("/total-cumulative-power-delta", h.GetTotalCumulativePowerDelta).Methods("GET")
	r.HandleFunc("/total-checkpoints/{index}", h.GetTotalCheckpoint).Methods("GET")
	r.HandleFunc("/state", h.GetState).Methods("GET")
	r.HandleFunc("/slope-changes", h.ListSlopeChanges).Methods("GET")
	r.HandleFunc("/slope-changes/{week}", h.GetSlopeChange).Methods("GET")
	r.HandleFunc("/bonds/{payer}", h.GetBonds).Methods("GET")

	// Storage reclamation
	r.HandleFunc("/accounts/{account}/power-pages", h.DeletePowerPages).Methods("DELETE")
	r.HandleFunc("/accounts/{account}", h.DeleteAccount).Methods("DELETE")

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// RequestLogger tags each request with an id, echoed in the response, and logs it on completion.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		logger.Logger.Debug("Handled request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}
