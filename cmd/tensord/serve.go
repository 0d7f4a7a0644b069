package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tensord/internal/catalog"
	"tensord/internal/common/fsutil"
	"tensord/internal/engine"
	"tensord/internal/httpapi"
	"tensord/internal/manager"
)

func openCatalog(ctx context.Context, opts *options) (*catalog.SQLiteStore, error) {
	p, err := fsutil.ExpandHome(opts.cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	return catalog.OpenSQLite(ctx, p)
}

func newManager(opts *options, store catalog.Store) *manager.Manager {
	policy, _ := manager.ParseLayerPolicy(opts.cfg.UnmatchedLayers)
	l := opts.log.With().Str("component", "manager").Logger()
	return manager.NewWithConfig(manager.ManagerConfig{
		Catalog:         store,
		Runtime:         engine.NewDefault(engine.Options{EnableGPU: opts.cfg.EnableGPU, ORTLibraryPath: opts.cfg.ORTLibraryPath}),
		ModelRoot:       opts.cfg.ModelRoot,
		VerifyChecksums: opts.cfg.VerifyChecksums,
		UnmatchedLayers: policy,
		Logger:          &l,
	})
}

func newServeCmd(opts *options) *cobra.Command {
	var (
		cors                      bool
		origins, methods, headers string
		predictTimeout            int64
	)
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Serve the HTTP API",
		Example: "  tensord serve --addr :8080 --catalog /var/lib/tensord/catalog.db --model-root /srv/models",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("cors-enabled") {
				opts.cfg.CORSEnabled = cors
			}
			if cmd.Flags().Changed("cors-origins") {
				opts.cfg.CORSAllowedOrigins = splitCSV(origins)
			}
			if cmd.Flags().Changed("cors-methods") {
				opts.cfg.CORSAllowedMethods = splitCSV(methods)
			}
			if cmd.Flags().Changed("cors-headers") {
				opts.cfg.CORSAllowedHeaders = splitCSV(headers)
			}
			return serve(opts, predictTimeout)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.cfg.Addr, "addr", opts.cfg.Addr, "HTTP listen address, e.g. :8080 (defaults TENSORD_ADDR)")
	f.BoolVar(&opts.cfg.EnableGPU, "enable-gpu", opts.cfg.EnableGPU, "Allow moving models to a detected GPU")
	f.BoolVar(&opts.cfg.VerifyChecksums, "verify-checksums", opts.cfg.VerifyChecksums, "Verify catalog md5 sums before loading")
	f.StringVar(&opts.cfg.UnmatchedLayers, "unmatched-layers", opts.cfg.UnmatchedLayers, "Catalog layers with no matching parameter: skip|error")
	f.StringVar(&opts.cfg.ORTLibraryPath, "ort-lib", opts.cfg.ORTLibraryPath, "onnxruntime shared library (defaults TENSORD_ORT_LIB)")
	f.Int64Var(&opts.cfg.MaxBodyBytes, "max-body-bytes", opts.cfg.MaxBodyBytes, "Maximum JSON request body size")
	f.Int64Var(&predictTimeout, "predict-timeout", 0, "Seconds before a load or predict request times out (0 disables)")
	f.BoolVar(&cors, "cors-enabled", false, "Enable CORS")
	f.StringVar(&origins, "cors-origins", "", "Comma-separated allowed origins")
	f.StringVar(&methods, "cors-methods", "GET,POST,OPTIONS", "Comma-separated allowed methods")
	f.StringVar(&headers, "cors-headers", "Content-Type", "Comma-separated allowed headers")
	return cmd
}

func serve(opts *options, predictTimeout int64) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openCatalog(ctx, opts)
	if err != nil {
		return err
	}
	defer store.Close()
	mgr := newManager(opts, store)
	defer mgr.Close()
	mgr.SetEventPublisher(httpapi.MetricsPublisher{})

	httpapi.SetLogger(opts.log.With().Str("component", "http").Logger())
	httpapi.SetDefaultLogLevel(opts.cfg.LogLevel)
	httpapi.SetMaxBodyBytes(opts.cfg.MaxBodyBytes)
	httpapi.SetPredictTimeoutSeconds(predictTimeout)
	httpapi.SetCORSOptions(opts.cfg.CORSEnabled, opts.cfg.CORSAllowedOrigins, opts.cfg.CORSAllowedMethods, opts.cfg.CORSAllowedHeaders)
	httpapi.SetBaseContext(ctx)

	srv := &http.Server{
		Addr:              opts.cfg.Addr,
		Handler:           httpapi.NewMux(mgr),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		opts.log.Info().Str("addr", opts.cfg.Addr).Str("catalog", store.Path()).
			Str("model_root", opts.cfg.ModelRoot).Bool("gpu", mgr.GPUAvailable()).Msg("tensord listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		opts.log.Warn().Err(err).Msg("graceful shutdown error")
	}
	return nil
}
