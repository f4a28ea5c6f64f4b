package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/valter-silva-au/riskdesk/internal/api"
	"github.com/valter-silva-au/riskdesk/internal/mockserver"
)

var (
	mockAddr      string
	mockToken     string
	mockStatic    bool
	mockLatency   time.Duration
	mockSeedFile  string
	shutdownGrace = 5 * time.Second
)

var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Mock backend commands",
}

var mockServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve an in-memory backend over HTTP",
	Long: `Serve an in-memory backend with the same REST API as the real platform.

Documents in a transient status advance one step on every list request, so
polling can be exercised end to end. Point api.base_url at the listen address
to use it. POST /_mock/fail/<operation> makes the next call of that operation
fail.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		seed := api.DefaultSeed()
		seedFile := mockSeedFile
		if seedFile == "" && Cfg != nil {
			seedFile = Cfg.API.SeedFile
		}
		if seedFile != "" {
			s, err := api.LoadSeed(seedFile)
			if err != nil {
				return err
			}
			seed = s
		}

		backend := api.NewMockBackend(seed)
		backend.SetAutoAdvance(!mockStatic)
		backend.SetLatency(mockLatency)

		srv := mockserver.New(backend, mockserver.Options{Token: mockToken, Logger: Logger})
		fmt.Fprintf(cmd.OutOrStdout(), "Mock backend listening on http://%s (Ctrl-C to stop)\n", mockAddr)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serveUntilDone(ctx, srv, mockAddr)
	},
}

// serveUntilDone runs srv until ctx is cancelled or the listener fails.
func serveUntilDone(ctx context.Context, srv *mockserver.Server, addr string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			Logger.Warn("mock server shutdown", zap.Error(err))
		}
		return nil
	})
	return g.Wait()
}

func init() {
	mockServeCmd.Flags().StringVar(&mockAddr, "addr", mockserver.DefaultAddr, "Listen address")
	mockServeCmd.Flags().StringVar(&mockToken, "token", "", "Require this bearer token on /api requests")
	mockServeCmd.Flags().BoolVar(&mockStatic, "static", false, "Do not advance transient documents")
	mockServeCmd.Flags().DurationVar(&mockLatency, "latency", 0, "Delay every request by this duration")
	mockServeCmd.Flags().StringVar(&mockSeedFile, "seed", "", "YAML seed file (defaults to api.seed_file or the demo data)")

	mockCmd.AddCommand(mockServeCmd)
	rootCmd.AddCommand(mockCmd)
}
