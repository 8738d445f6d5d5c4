// Package handler holds the HTTP handlers behind the dashboard API. Each
// handler declares the narrow read or control surface it needs, so the
// server can be wired against services, the session controller, or test
// fakes interchangeably.
package handler

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/optionbot/internal/domain"
)

// writeJSON marshals v and writes it with the given status code. A marshal
// failure degrades to a plain 500.
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

// writeError wraps msg in the standard error envelope.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// posInt parses v as an integer no smaller than floor, falling back to def
// when v is absent, malformed, or under the floor.
func posInt(v string, def, floor int) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < floor {
		return def
	}
	return n
}

// timeParam parses an RFC3339 query parameter. Absent or malformed values
// come back nil, leaving that bound open.
func timeParam(q url.Values, name string) *time.Time {
	v := q.Get(name)
	if v == "" {
		return nil
	}
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	return &ts
}

// parseListOpts extracts pagination and time-range parameters from the
// query string. Defaults: limit=50 (max 500), offset=0. since and until
// take RFC3339 timestamps.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := posInt(q.Get("limit"), 50, 1)
	if limit > 500 {
		limit = 500
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: posInt(q.Get("offset"), 0, 0),
		Since:  timeParam(q, "since"),
		Until:  timeParam(q, "until"),
	}
}

// parseLimit reads a bare limit parameter with a default and cap.
func parseLimit(r *http.Request, def, max int) int {
	limit := posInt(r.URL.Query().Get("limit"), def, 1)
	if limit > max {
		limit = max
	}
	return limit
}
