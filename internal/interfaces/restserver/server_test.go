package restserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fxhub/internal/domain"
)

type mapSource map[string]domain.Rate

func (m mapSource) Get(name string) (domain.Rate, bool) {
	r, ok := m[name]
	return r, ok
}

func TestHandleRate(t *testing.T) {
	ts := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	srv := New(":0", mapSource{
		"PF2_USDTRY": {Platform: "PF2", Symbol: "USDTRY", Bid: 34.8, Ask: 35.1, Timestamp: ts},
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rates/PF2_USDTRY", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body RateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, RateResponse{RateName: "PF2_USDTRY", Bid: 34.8, Ask: 35.1, Timestamp: "2025-04-01T10:00:00Z"}, body)
}

func TestHandleRateNotFound(t *testing.T) {
	srv := New(":0", mapSource{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rates/PF2_XAUUSD", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
