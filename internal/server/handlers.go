package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rustyeddy/tradebook/calendar"
	"github.com/rustyeddy/tradebook/internal/app"
	"github.com/rustyeddy/tradebook/journal"
	"github.com/rustyeddy/tradebook/market"
)

type handlers struct {
	app *app.App
	log zerolog.Logger
}

func (h *handlers) RegisterRoutes(r chi.Router) {
	r.Get("/summary", h.handleSummary)
	r.Get("/balance", h.handleBalance)
	r.Get("/balance/{date}", h.handleBalanceOnDate)
	r.Get("/equity", h.handleEquity)
	r.Get("/stats", h.handleStats)

	r.Route("/calendar", func(r chi.Router) {
		r.Get("/day/{date}", h.handleDay)
		r.Get("/week/{saturday}", h.handleWeek)
		r.Get("/month/{year}/{month}", h.handleMonth)
	})

	r.Get("/trades", h.handleTrades)
	r.Get("/trades/{id}", h.handleTrade)
	r.Get("/cashflows", h.handleCashFlows)

	r.Route("/eod", func(r chi.Router) {
		r.Get("/", h.handleEODDates)
		r.Get("/{date}", h.handleEODSnapshot)
		r.Post("/capture", h.handleEODCapture)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case app.IsMisconfigured(err):
		status = http.StatusConflict
	case errors.Is(err, journal.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, calendar.ErrNotSaturday), isDateError(err):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func isDateError(err error) bool {
	var pe *time.ParseError
	return errors.As(err, &pe)
}

func badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
}

// dateParams parses optional YYYY-MM-DD query parameters.
func dateParams(r *http.Request, names ...string) ([]string, error) {
	out := make([]string, len(names))
	for i, n := range names {
		v := r.URL.Query().Get(n)
		if v == "" {
			continue
		}
		if _, err := market.ParseDate(v); err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (h *handlers) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.app.Refresh(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *handlers) handleBalance(w http.ResponseWriter, r *http.Request) {
	sum, err := h.app.Refresh(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum.Balance)
}

type balanceOnDate struct {
	Date    string   `json:"date"`
	Balance *float64 `json:"balance"`
}

func (h *handlers) handleBalanceOnDate(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if _, err := market.ParseDate(date); err != nil {
		badRequest(w, err)
		return
	}
	resp := balanceOnDate{Date: date}
	if v, ok := h.app.Equity.BalanceOnDate(r.Context(), date); ok {
		resp.Balance = &v
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) handleEquity(w http.ResponseWriter, r *http.Request) {
	d, err := dateParams(r, "from", "to")
	if err != nil {
		badRequest(w, err)
		return
	}
	pts, err := h.app.Equity.Build(r.Context(), d[0], d[1])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pts)
}

func (h *handlers) handleStats(w http.ResponseWriter, r *http.Request) {
	d, err := dateParams(r, "from", "to")
	if err != nil {
		badRequest(w, err)
		return
	}
	rec, err := h.app.StatsBetween(r.Context(), d[0], d[1])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type pnlResponse struct {
	Date string   `json:"date"`
	PnL  *float64 `json:"pnl"`
}

func (h *handlers) handleDay(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if _, err := market.ParseDate(date); err != nil {
		badRequest(w, err)
		return
	}
	resp := pnlResponse{Date: date}
	if v, ok := h.app.Calendar.DailyPnL(r.Context(), date); ok {
		resp.PnL = &v
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) handleWeek(w http.ResponseWriter, r *http.Request) {
	sat := chi.URLParam(r, "saturday")
	v, ok, err := h.app.Calendar.WeeklyPnL(r.Context(), sat)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := pnlResponse{Date: sat}
	if ok {
		resp.PnL = &v
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) handleMonth(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		badRequest(w, err)
		return
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil || month < 1 || month > 12 {
		badRequest(w, errors.New("month must be 1-12"))
		return
	}
	m, err := h.app.Calendar.Month(r.Context(), year, time.Month(month))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *handlers) handleTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.app.Ledger.ListTrades(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if trades == nil {
		trades = []journal.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

func (h *handlers) handleTrade(w http.ResponseWriter, r *http.Request) {
	t, err := h.app.Ledger.GetTrade(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *handlers) handleCashFlows(w http.ResponseWriter, r *http.Request) {
	flows, err := h.app.Ledger.ListCashFlows(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if flows == nil {
		flows = []journal.CashFlow{}
	}
	writeJSON(w, http.StatusOK, flows)
}

func (h *handlers) handleEODDates(w http.ResponseWriter, r *http.Request) {
	dates := h.app.EOD.Dates(r.Context())
	if dates == nil {
		dates = []string{}
	}
	writeJSON(w, http.StatusOK, dates)
}

func (h *handlers) handleEODSnapshot(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if _, err := market.ParseDate(date); err != nil {
		badRequest(w, err)
		return
	}
	s := h.app.EOD.Get(r.Context(), date)
	if s == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no snapshot for " + date})
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handlers) handleEODCapture(w http.ResponseWriter, r *http.Request) {
	res, err := h.app.CaptureEOD(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
