package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"reconciler/internal/reconcile"
	"reconciler/internal/store"
	"reconciler/internal/validator"
)

const (
	defaultPageSize = 100
	dateLayout      = "2006-01-02"
)

func parseInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

// parseTime accepts RFC 3339 or a bare date. A bare date used as the upper
// bound covers the whole day.
func parseTime(field, raw string, upper bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		utc := parsed.UTC()
		return &utc, nil
	}
	parsed, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, reconcile.Invalid(field, "must be RFC 3339 or YYYY-MM-DD")
	}
	if upper {
		parsed = parsed.Add(24*time.Hour - time.Nanosecond)
	}
	return &parsed, nil
}

func parseRange(r *http.Request) (*time.Time, *time.Time, error) {
	query := r.URL.Query()
	from, err := parseTime("from", query.Get("from"), false)
	if err != nil {
		return nil, nil, err
	}
	to, err := parseTime("to", query.Get("to"), true)
	if err != nil {
		return nil, nil, err
	}
	if err := validator.ValidateDateRange(from, to); err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

// parsePage turns limit and 1-based page into limit and offset.
func parsePage(r *http.Request) (int, int, error) {
	query := r.URL.Query()
	limit := parseInt(query.Get("limit"), defaultPageSize)
	if err := validator.ValidatePageSize(limit); err != nil {
		return 0, 0, err
	}
	page := parseInt(query.Get("page"), 1)
	if page < 1 {
		return 0, 0, reconcile.Invalid("page", "must be positive")
	}
	return limit, (page - 1) * limit, nil
}

func parseSearch(r *http.Request) (string, error) {
	search := strings.TrimSpace(r.URL.Query().Get("search"))
	if err := validator.ValidateSearch(search); err != nil {
		return "", err
	}
	return search, nil
}

func transactionFilter(r *http.Request, operatorID string) (store.TransactionFilter, error) {
	from, to, err := parseRange(r)
	if err != nil {
		return store.TransactionFilter{}, err
	}
	search, err := parseSearch(r)
	if err != nil {
		return store.TransactionFilter{}, err
	}
	limit, offset, err := parsePage(r)
	if err != nil {
		return store.TransactionFilter{}, err
	}
	eligible, _ := strconv.ParseBool(r.URL.Query().Get("eligible"))
	return store.TransactionFilter{
		From:          from,
		To:            to,
		UserID:        operatorID,
		Search:        search,
		CompletedOnly: eligible,
		ApprovedOnly:  eligible,
		Limit:         limit,
		Offset:        offset,
	}, nil
}

func matchFilter(r *http.Request, operatorID string) (store.MatchFilter, error) {
	from, to, err := parseRange(r)
	if err != nil {
		return store.MatchFilter{}, err
	}
	search, err := parseSearch(r)
	if err != nil {
		return store.MatchFilter{}, err
	}
	limit, offset, err := parsePage(r)
	if err != nil {
		return store.MatchFilter{}, err
	}
	return store.MatchFilter{From: from, To: to, UserID: operatorID, Search: search, Limit: limit, Offset: offset}, nil
}

// parseWindow reads a window given in seconds or as a Go duration.
func parseWindow(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	var window time.Duration
	if seconds, err := strconv.Atoi(raw); err == nil {
		window = time.Duration(seconds) * time.Second
	} else if parsed, err := time.ParseDuration(raw); err == nil {
		window = parsed
	} else {
		return 0, reconcile.Invalid("window", "must be seconds or a duration")
	}
	if err := validator.ValidateWindow(window); err != nil {
		return 0, err
	}
	return window, nil
}
