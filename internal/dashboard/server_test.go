package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/finance_dashboard/internal/logging"
	"github.com/eddiefleurent/finance_dashboard/internal/models"
)

func newTestServer(t *testing.T, token string) (*fixture, http.Handler) {
	t.Helper()
	f := newFixture(t)
	srv := NewServer(Config{Addr: ":0", AuthToken: token}, f.store, f.orch, f.market, logging.Discard())
	return f, srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t, "secret")
	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code, "health skips auth")
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestAuthMiddleware(t *testing.T) {
	_, h := newTestServer(t, "secret")

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/watchlist", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/watchlist", "", "X-Auth-Token", "wrong").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/watchlist", "", "X-Auth-Token", "secret").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/watchlist?token=secret", "").Code)
}

func TestWatchlistRoutes(t *testing.T) {
	f, h := newTestServer(t, "")
	f.market.indicators["AAPL"] = &models.StockIndicatorSet{Ticker: "AAPL", CurrentPrice: 230}
	f.market.indicators["NVDA"] = &models.StockIndicatorSet{Ticker: "NVDA", CurrentPrice: 130}

	rec := do(t, h, http.MethodPost, "/api/watchlist", `{"tickers":["nvda","AAPL"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"AAPL", "NVDA"}, body["tickers"])

	rec = do(t, h, http.MethodPost, "/api/watchlist", `{"tickers":["ZZZZ"]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/watchlist", `{"tickers":["b@d"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/watchlist", `{"tickers":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/watchlist/aapl", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/watchlist", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"NVDA"}, body["tickers"])
}

func TestPositionRoutes(t *testing.T) {
	_, h := newTestServer(t, "")

	rec := do(t, h, http.MethodPost, "/api/positions",
		`{"type":"option","ticker":"aapl","quantity":-1,"entry_price":3.2,"option_type":"put","strike":210,"expiration":"2026-02-20"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created models.Position
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "AAPL", created.Ticker)

	rec = do(t, h, http.MethodGet, "/api/positions/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/positions/"+created.ID,
		`{"type":"option","ticker":"AAPL","quantity":-2,"entry_price":3.2,"option_type":"put","strike":210,"expiration":"2026-02-20"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated models.Position
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, -2.0, updated.Quantity)
	assert.Equal(t, created.ID, updated.ID)

	rec = do(t, h, http.MethodGet, "/api/positions", "")
	var all []models.Position
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 1)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/api/positions/"+created.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/positions/"+created.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/api/positions/"+created.ID, "").Code)
}

func TestPositionRoutes_Invalid(t *testing.T) {
	_, h := newTestServer(t, "")

	rec := do(t, h, http.MethodPost, "/api/positions", `{"type":"option","ticker":"AAPL","quantity":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "option without strike")

	rec = do(t, h, http.MethodPost, "/api/positions", `{"ticker":"AAPL","bogus":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown field")

	rec = do(t, h, http.MethodPut, "/api/positions/missing", `{"type":"stock","ticker":"AAPL","quantity":1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEarningsRoute(t *testing.T) {
	f, h := newTestServer(t, "")

	rec := do(t, h, http.MethodPut, "/api/earnings/googl", `{"date":"2026-02-04"}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	d, err := f.store.GetEarningsDate(t.Context(), "GOOGL")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "2026-02-04", d.String())

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPut, "/api/earnings/GOOGL", `{"date":"Feb 4"}`).Code)

	rec = do(t, h, http.MethodPut, "/api/earnings/GOOGL", `{"date":""}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	d, err = f.store.GetEarningsDate(t.Context(), "GOOGL")
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestDashboardRoutes(t *testing.T) {
	f, h := newTestServer(t, "")
	require.NoError(t, f.store.AddToWatchlist(t.Context(), "AAPL"))
	f.market.indicators["AAPL"] = &models.StockIndicatorSet{Ticker: "AAPL", CurrentPrice: 230}

	rec := do(t, h, http.MethodGet, "/api/dashboard", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var d Dashboard
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	require.Len(t, d.Tickers, 1)
	assert.Equal(t, "AAPL", d.Tickers[0].Ticker)
	assert.Zero(t, f.market.forced)

	rec = do(t, h, http.MethodPost, "/api/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.market.forced)

	rec = do(t, h, http.MethodGet, "/api/dashboard?refresh=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, f.market.forced)

	rec = do(t, h, http.MethodGet, "/health", "")
	assert.Contains(t, rec.Body.String(), "last_refresh")
}
