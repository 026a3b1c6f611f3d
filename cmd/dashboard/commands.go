package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/eddiefleurent/finance_dashboard/internal/config"
	"github.com/eddiefleurent/finance_dashboard/internal/dashboard"
	"github.com/eddiefleurent/finance_dashboard/internal/models"
	"github.com/eddiefleurent/finance_dashboard/internal/storage"
)

const shutdownTimeout = 10 * time.Second

type rootOptions struct {
	configPath string
	jsonOutput bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "dashboard",
		Short:         "Options trading dashboard backed by Polygon market data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "config.yaml", "path to configuration file")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output in JSON format")

	root.AddCommand(
		newServeCmd(opts),
		newRefreshCmd(opts),
		newValidateTickerCmd(opts),
		newSetEarningsCmd(opts),
		newCheckConfigCmd(opts),
	)
	return root
}

// withApp loads config, wires the app, runs fn and tears everything down.
// One-shot commands log to stderr so stdout carries only their output.
func withApp(ctx context.Context, opts *rootOptions, oneShot bool, fn func(*app) error) error {
	cfg, logger, closer, err := loadConfig(opts.configPath, oneShot)
	if err != nil {
		return err
	}
	defer closer.Close()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close resources")
		}
	}()
	return fn(a)
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return withApp(ctx, opts, false, func(a *app) error {
				if port > 0 {
					a.cfg.Server.Port = port
				}
				srv := dashboard.NewServer(dashboard.Config{
					Addr:      a.cfg.ListenAddr(),
					AuthToken: a.cfg.Server.AuthToken,
				}, a.storage, a.orchestrator, a.market, a.logger)

				errCh := make(chan error, 1)
				go func() { errCh <- srv.Start() }()

				select {
				case err := <-errCh:
					return err
				case <-ctx.Done():
					a.logger.Info("Shutdown signal received, stopping server...")
				}

				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("shutting down server: %w", err)
				}
				a.logger.Info("Server stopped successfully")
				return <-errCh
			})
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "override server.port")
	return cmd
}

func newRefreshCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Force-refresh market data and print the dashboard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, true, func(a *app) error {
				d, err := a.orchestrator.Build(cmd.Context(), true)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), d)
				}
				return printDashboard(cmd.OutOrStdout(), d)
			})
		},
	}
}

func newValidateTickerCmd(opts *rootOptions) *cobra.Command {
	var add bool
	cmd := &cobra.Command{
		Use:   "validate-ticker TICKER...",
		Short: "Check tickers against the data provider",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, true, func(a *app) error {
				return validateTickers(cmd.Context(), cmd.OutOrStdout(), a, args, add)
			})
		},
	}
	cmd.Flags().BoolVar(&add, "add", false, "add valid tickers to the watchlist")
	return cmd
}

var errInvalidTickers = errors.New("one or more tickers are invalid")

func validateTickers(ctx context.Context, out io.Writer, a *app, args []string, add bool) error {
	var valid []string
	for _, raw := range args {
		t, err := storage.NormalizeTicker(raw)
		if err != nil || !a.market.ValidateTicker(ctx, t) {
			fmt.Fprintf(out, "%s: invalid\n", strings.ToUpper(raw))
			continue
		}
		fmt.Fprintf(out, "%s: valid\n", t)
		valid = append(valid, t)
	}
	if add && len(valid) > 0 {
		if err := a.storage.AddToWatchlist(ctx, valid...); err != nil {
			return err
		}
		fmt.Fprintf(out, "added %s to watchlist\n", strings.Join(valid, ", "))
	}
	if len(valid) != len(args) {
		return errInvalidTickers
	}
	return nil
}

func newSetEarningsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-earnings TICKER [YYYY-MM-DD]",
		Short: "Record the next earnings date; omit the date to clear it",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var date models.Date
			if len(args) == 2 {
				d, err := models.ParseDate(args[1])
				if err != nil {
					return err
				}
				date = d
			}
			return withApp(cmd.Context(), opts, true, func(a *app) error {
				return a.storage.SetEarningsDate(cmd.Context(), args[0], date)
			})
		},
	}
}

func newCheckConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration without contacting external services",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			return printConfig(cmd.OutOrStdout(), cfg)
		},
	}
}

func printConfig(out io.Writer, cfg *config.Config) error {
	w := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintf(w, "provider\t%s\n", cfg.Provider.Name)
	fmt.Fprintf(w, "circuit breaker\t%t\n", cfg.Provider.CircuitBreaker.Enabled)
	fmt.Fprintf(w, "cache\t%s (%s)\n", cfg.Cache.Backend, cfg.Cache.Addr)
	fmt.Fprintf(w, "strike filtering\t%t\n", cfg.StrikeFilteringEnabled())
	r := cfg.StrikeCalculator().Ranges()
	fmt.Fprintf(w, "strike ranges\tshort %.2f, medium %.2f, long %.2f\n", r.ShortTerm, r.MediumTerm, r.LongTerm)
	fmt.Fprintf(w, "listen\t%s\n", cfg.ListenAddr())
	fmt.Fprintf(w, "concurrency\t%d\n", cfg.Dashboard.Concurrency)
	fmt.Fprintf(w, "logging\t%s/%s\n", cfg.Logging.Level, cfg.Logging.Format)
	for _, warn := range cfg.Warnings {
		fmt.Fprintf(w, "warning\t%v\n", warn)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(out, "configuration OK")
	return nil
}

func printDashboard(out io.Writer, d *dashboard.Dashboard) error {
	w := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "TICKER\tPRICE\tRSI\tIV%\tSIGNALS")
	for _, t := range d.Tickers {
		if t.Error != "" {
			fmt.Fprintf(w, "%s\t-\t-\t-\terror: %s\n", t.Ticker, t.Error)
			continue
		}
		parts := make([]string, 0, len(t.Signals))
		for _, s := range t.Signals {
			parts = append(parts, fmt.Sprintf("%s=%s", s.Strategy, s.Score))
		}
		fmt.Fprintf(w, "%s\t%.2f\t%.1f\t%.1f\t%s\n", t.Ticker, t.Indicators.CurrentPrice, t.Indicators.RSI14, t.Indicators.IVPercentile, strings.Join(parts, " "))
	}
	if len(d.Positions) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "POSITION\tVALUE\tP&L\tACTION\tREASON")
		for _, p := range d.Positions {
			label := p.Position.Ticker
			if p.OptionTicker != "" {
				label = p.OptionTicker
			}
			action, reason := "-", ""
			if r := p.Recommendation; r != nil {
				action = fmt.Sprintf("%s (p%d)", r.Action, r.Priority)
				if len(r.Reasoning) > 0 {
					reason = r.Reasoning[0]
				}
			}
			fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%s\t%s\n", label, p.Valuation.CurrentValue, p.Valuation.UnrealizedPnL, action, reason)
		}
	}
	fmt.Fprintf(w, "\ntotal value %.2f, unrealized P&L %.2f, %d actionable\n", d.Summary.TotalValue, d.Summary.UnrealizedPnL, d.Summary.Actionable)
	return w.Flush()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
