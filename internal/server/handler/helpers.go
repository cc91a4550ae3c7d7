package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/nationforge/economy/internal/domain"
)

// timeLayout is the wire format for timestamps in responses.
const timeLayout = time.RFC3339

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errorStatus maps domain sentinel errors to HTTP status codes. Unknown
// errors map to 500 so handlers can distinguish expected rejections from
// real failures.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidType),
		errors.Is(err, domain.ErrInvalidDuration):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrNotSeller):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrItemNotOwned),
		errors.Is(err, domain.ErrItemLocked),
		errors.Is(err, domain.ErrAuctionNotActive),
		errors.Is(err, domain.ErrAuctionNotExpired),
		errors.Is(err, domain.ErrAuctionHasBids),
		errors.Is(err, domain.ErrBidTooLow),
		errors.Is(err, domain.ErrBidSuperseded),
		errors.Is(err, domain.ErrSelfBidNotAllowed),
		errors.Is(err, domain.ErrBuyoutNotAvailable):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited),
		errors.Is(err, domain.ErrDailyCapExceeded):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError reports err to the client when it maps to a known domain
// rejection and returns true; a 500-class error is left for the caller to
// log and report.
func writeDomainError(w http.ResponseWriter, err error) bool {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		return false
	}
	writeError(w, status, err.Error())
	return true
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
