package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"pubsearch/config"
	"pubsearch/internal/adapter/fs"
	"pubsearch/internal/mcp"
	"pubsearch/internal/server"
)

var (
	serveAddr  string
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the published index over HTTP",
	Long: `Load the published index and serve GET /health, GET /search,
GET /pub/{pub_id} and POST /summarize/{pub_id}. The server refuses to start
without a loadable index. With --watch, a newly published build is loaded and
swapped in without a restart.`,
	RunE: runServe,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the published index as MCP tools over stdio",
	RunE:  runMCP,
}

func init() {
	rootCmd.AddCommand(serveCmd, mcpCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "reload when a new build is published")
	mcpCmd.Flags().BoolVar(&serveWatch, "watch", false, "reload when a new build is published")
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	rs, err := openReadSide(ctx, cfg)
	if err != nil {
		return err
	}

	srvCfg := cfg.Server
	if serveAddr != "" {
		srvCfg.Addr = serveAddr
	}
	srv := server.New(rs.service, srvCfg, logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return srv.Run(ctx)
	})
	if serveWatch {
		g.Go(func() error { return watchCurrent(ctx, cfg, rs) })
	}
	return g.Wait()
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	rs, err := openReadSide(ctx, cfg)
	if err != nil {
		return err
	}

	s, err := mcp.NewServer(rs.service, Version, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Client disconnect ends the session and stops the watcher.
		defer cancel()
		if err := s.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if serveWatch {
		g.Go(func() error { return watchCurrent(ctx, cfg, rs) })
	}
	return g.Wait()
}

// watchCurrent reloads the index each time CURRENT is replaced. A build that
// fails to load is logged and the previous one keeps serving.
func watchCurrent(ctx context.Context, cfg *config.Config, rs *readSide) error {
	current := config.CurrentPath(cfg.DataDir)
	w := fs.NewPointerWatcher(filepath.Dir(current), filepath.Base(current), logger)
	logger.Info("watching for new builds", "path", current)

	return w.Run(ctx, func(ctx context.Context) {
		if err := rs.service.Reload(ctx, rs.loader); err != nil {
			logger.ErrorContext(ctx, "reload failed, keeping current index", "error", err)
		}
	})
}
