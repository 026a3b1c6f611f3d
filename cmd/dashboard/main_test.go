package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/finance_dashboard/internal/cache"
	"github.com/eddiefleurent/finance_dashboard/internal/config"
	"github.com/eddiefleurent/finance_dashboard/internal/dashboard"
	"github.com/eddiefleurent/finance_dashboard/internal/logging"
	"github.com/eddiefleurent/finance_dashboard/internal/provider"
)

const mockConfig = `
provider:
  name: mock
cache:
  backend: memory
logging:
  level: error
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCheckConfig(t *testing.T) {
	path := writeConfig(t, mockConfig+"strikes:\n  short_term_range: 0.01\n")
	out, err := run(t, "check-config", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "mock")
	assert.Contains(t, out, "short 0.20")
	assert.Contains(t, out, "warning")
	assert.Contains(t, out, "configuration OK")
}

func TestCheckConfig_Invalid(t *testing.T) {
	path := writeConfig(t, "provider:\n  name: yahoo\n")
	_, err := run(t, "check-config", "--config", path)
	assert.Error(t, err)
}

func TestValidateTicker(t *testing.T) {
	path := writeConfig(t, mockConfig)

	out, err := run(t, "validate-ticker", "--config", path, "nvda")
	require.NoError(t, err)
	assert.Contains(t, out, "NVDA: valid")

	out, err = run(t, "validate-ticker", "--config", path, "AAPL", "ZZZZZZ")
	assert.ErrorIs(t, err, errInvalidTickers)
	assert.Contains(t, out, "AAPL: valid")
	assert.Contains(t, out, "ZZZZZZ: invalid")
}

func TestRefresh_JSON(t *testing.T) {
	path := writeConfig(t, mockConfig)
	out, err := run(t, "refresh", "--json", "--config", path)
	require.NoError(t, err)

	var d dashboard.Dashboard
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.Empty(t, d.Tickers, "fresh memory cache has no watchlist")
}

func TestSetEarnings_BadDate(t *testing.T) {
	path := writeConfig(t, mockConfig)
	_, err := run(t, "set-earnings", "--config", path, "AAPL", "soon")
	assert.Error(t, err)
}

func TestNewStore_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Cache.Addr = mr.Addr()

	store, err := newStore(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	_, ok := store.(*cache.RedisStore)
	assert.True(t, ok)
	require.NoError(t, store.(*cache.RedisStore).Close())

	cfg.Cache.Addr = "127.0.0.1:1"
	_, err = newStore(context.Background(), cfg, logging.Discard())
	assert.Error(t, err)
}

func TestNewProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Provider.Name = "mock"
	cfg.Provider.CircuitBreaker.Enabled = true
	p, err := newProvider(cfg, logging.Discard())
	require.NoError(t, err)
	_, ok := p.(*provider.RetryingProvider)
	assert.True(t, ok, "retry is always outermost")

	cfg.Provider.Name = "yahoo"
	_, err = newProvider(cfg, logging.Discard())
	assert.Error(t, err)
}

func TestPrintDashboard(t *testing.T) {
	var buf bytes.Buffer
	d := &dashboard.Dashboard{
		Tickers: []dashboard.TickerView{{Ticker: "BADX", Error: "market data fetch failed"}},
	}
	require.NoError(t, printDashboard(&buf, d))
	assert.Contains(t, buf.String(), "BADX")
	assert.Contains(t, buf.String(), "error: market data fetch failed")
}
