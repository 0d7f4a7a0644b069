package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tensord/internal/config"
)

// options is the merged configuration: flags over config file over
// TENSORD_* environment over built-in defaults.
type options struct {
	configPath string
	cfg        config.Config
	log        zerolog.Logger
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func defaultOptions() *options {
	return &options{cfg: config.Config{
		Addr:            envOr("TENSORD_ADDR", ":8080"),
		ModelRoot:       envOr("TENSORD_MODEL_ROOT", "~/models"),
		CatalogPath:     envOr("TENSORD_CATALOG", "tensord.db"),
		LogLevel:        envOr("TENSORD_LOG_LEVEL", "info"),
		LogFormat:       envOr("TENSORD_LOG_FORMAT", "console"),
		UnmatchedLayers: "skip",
		ORTLibraryPath:  os.Getenv("TENSORD_ORT_LIB"),
		MaxBodyBytes:    1 << 20,
	}}
}

// buildRootCmdWith constructs the command tree over opts.
func buildRootCmdWith(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "tensord",
		Short:         "Tensor vectors and a catalog-driven model server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", os.Getenv("TENSORD_CONFIG"), "Config file (.yaml, .json or .toml)")
	pf.StringVar(&opts.cfg.CatalogPath, "catalog", opts.cfg.CatalogPath, "SQLite catalog path (defaults TENSORD_CATALOG)")
	pf.StringVar(&opts.cfg.ModelRoot, "model-root", opts.cfg.ModelRoot, "Directory substituted for {model_path} (defaults TENSORD_MODEL_ROOT)")
	pf.StringVar(&opts.cfg.LogLevel, "log-level", opts.cfg.LogLevel, "Log level: debug|info|warn|error (defaults TENSORD_LOG_LEVEL or info)")
	pf.StringVar(&opts.cfg.LogFormat, "log-format", opts.cfg.LogFormat, "Log format: console|json")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if opts.configPath != "" {
			fileCfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			mergeConfig(&opts.cfg, fileCfg, cmd.Flags().Changed)
		}
		if err := opts.cfg.Validate(); err != nil {
			return err
		}
		l, err := newLogger(cmd.ErrOrStderr(), opts.cfg.LogLevel, opts.cfg.LogFormat)
		if err != nil {
			return err
		}
		opts.log = l
		return nil
	}

	root.AddCommand(
		newServeCmd(opts),
		newVecCmd(),
		newCatalogCmd(opts),
		newPredictCmd(opts),
	)
	return root
}

// mergeConfig copies set values of src into dst unless the matching flag
// was given on the command line.
func mergeConfig(dst *config.Config, src config.Config, changed func(string) bool) {
	str := func(flag string, d *string, s string) {
		if s != "" && !changed(flag) {
			*d = s
		}
	}
	str("addr", &dst.Addr, src.Addr)
	str("model-root", &dst.ModelRoot, src.ModelRoot)
	str("catalog", &dst.CatalogPath, src.CatalogPath)
	str("log-level", &dst.LogLevel, src.LogLevel)
	str("log-format", &dst.LogFormat, src.LogFormat)
	str("unmatched-layers", &dst.UnmatchedLayers, src.UnmatchedLayers)
	str("ort-lib", &dst.ORTLibraryPath, src.ORTLibraryPath)
	if src.EnableGPU && !changed("enable-gpu") {
		dst.EnableGPU = true
	}
	if src.VerifyChecksums && !changed("verify-checksums") {
		dst.VerifyChecksums = true
	}
	if src.MaxBodyBytes > 0 && !changed("max-body-bytes") {
		dst.MaxBodyBytes = src.MaxBodyBytes
	}
	if src.CORSEnabled && !changed("cors-enabled") {
		dst.CORSEnabled = true
	}
	list := func(flag string, d *[]string, s []string) {
		if len(s) > 0 && !changed(flag) {
			*d = s
		}
	}
	list("cors-origins", &dst.CORSAllowedOrigins, src.CORSAllowedOrigins)
	list("cors-methods", &dst.CORSAllowedMethods, src.CORSAllowedMethods)
	list("cors-headers", &dst.CORSAllowedHeaders, src.CORSAllowedHeaders)
}

func newLogger(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}
	if format == "json" {
		return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
	}
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(cw).Level(lvl).With().Timestamp().Logger(), nil
}

// splitCSV splits a comma-separated flag value, dropping empty items.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
