package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/threatlens/threatlens/internal/audit"
	"github.com/threatlens/threatlens/internal/cache"
	"github.com/threatlens/threatlens/internal/server"
	"github.com/threatlens/threatlens/internal/store"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local REST API server",
	Long: `Start the ThreatLens REST API on a local address.

Endpoints:
  POST /analyze         analyze one text
  POST /analyze/batch   analyze several texts
  GET  /stats           detection statistics
  GET  /healthz         liveness and rule revision
  GET  /metrics         Prometheus metrics

  threatlens serve --addr 127.0.0.1:8787`,
	RunE: serveCommand,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config: 127.0.0.1:8787)")
	rootCmd.AddCommand(serveCmd)
}

func serveCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, packs, err := buildEngine(cfg)
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer db.Close()

	logger, err := audit.New(cfg.Audit.Path)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer logger.Close()

	var verdictCache cache.Cache
	if cfg.Cache.Enabled {
		if cfg.Cache.RedisAddr != "" {
			rc, err := cache.NewRedisCache(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, cfg.Cache.TTL)
			if err != nil {
				fmt.Fprintf(os.Stderr, "redis unavailable, using in-process cache: %v\n", err)
				mc := cache.NewMemoryCache(cfg.Cache.TTL, cfg.Cache.MaxEntries)
				defer mc.Close()
				verdictCache = mc
			} else {
				defer rc.Close()
				verdictCache = rc
			}
		} else {
			mc := cache.NewMemoryCache(cfg.Cache.TTL, cfg.Cache.MaxEntries)
			defer mc.Close()
			verdictCache = mc
		}
	}

	srv := server.New(server.Options{
		Engine:       eng,
		Store:        db,
		Cache:        verdictCache,
		Audit:        logger,
		MaxBatchSize: cfg.Server.MaxBatchSize,
	})

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("ThreatLens %s listening on http://%s\n", Version, addr)
	fmt.Printf("  Rules:  %d loaded (%d packs)\n", eng.Rules().Len(), len(packs))
	fmt.Printf("  Audit:  %s\n", cfg.Audit.Path)
	fmt.Printf("  Store:  %s\n", cfg.Store.Path)

	return srv.ListenAndServe(ctx, addr)
}
