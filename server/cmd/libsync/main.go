package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gaspardpetit/libsync/core/logx"
	"github.com/gaspardpetit/libsync/core/secret"
	"github.com/gaspardpetit/libsync/sdk/api/spi"
	"github.com/gaspardpetit/libsync/server/internal/config"
	"github.com/gaspardpetit/libsync/server/internal/metrics"
	"github.com/gaspardpetit/libsync/server/internal/plugin"
	"github.com/gaspardpetit/libsync/server/internal/server"
	"github.com/gaspardpetit/libsync/server/internal/serverstate"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	showPluginHelp := flag.Bool("help-plugins", false, "print extension options and exit")
	var cfg config.ServerConfig
	// defaults < file < env < args
	cfg.SetDefaults()
	cfg.ApplyEnv() // allows CONFIG_FILE from env
	for i := 1; i < len(os.Args); i++ {
		a := os.Args[i]
		if a == "--config" && i+1 < len(os.Args) {
			cfg.ConfigFile = os.Args[i+1]
			break
		}
		if strings.HasPrefix(a, "--config=") {
			cfg.ConfigFile = strings.TrimPrefix(a, "--config=")
			break
		}
	}
	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			logx.Log.Fatal().Err(err).Str("path", cfg.ConfigFile).Msg("load config")
		}
	}
	cfg.ApplyEnv()
	descs := plugin.Descriptors()
	cfg.ApplyEnvExtensions(descs)
	cfg.BindFlagsFromCurrent(flag.CommandLine)
	cfg.BindExtensionFlags(flag.CommandLine, descs)
	flag.Usage = func() {
		out := flag.CommandLine.Output()
		_, _ = fmt.Fprintf(out, "libsync version=%s sha=%s date=%s\n\n", version, buildSHA, buildDate)
		flag.PrintDefaults()
		printPlugins(out)
	}
	flag.Parse()
	if *showVersion {
		fmt.Printf("libsync version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}
	if *showPluginHelp {
		printPlugins(os.Stdout)
		return
	}

	logx.Configure(cfg.LogLevel)
	metrics.SetServerBuildInfo(version, buildSHA, buildDate)

	if cfg.RedisAddr != "" {
		rs, err := serverstate.NewRedisStore(cfg.RedisAddr, "")
		if err != nil {
			logx.Log.Fatal().Err(err).Msg("connect redis")
		}
		serverstate.UseStore(rs)
		logx.Log.Info().Str("addr", cfg.RedisAddr).Msg("using redis state store")
	}

	ids := cfg.EnabledPlugins(plugin.IDs())
	plugins, err := plugin.Build(ids, spi.Options{
		ClientKey:     cfg.ClientKey,
		PluginOptions: cfg.PluginOptionsWithDefaults(ids, descs),
	})
	if err != nil {
		logx.Log.Fatal().Err(err).Msg("build plugins")
	}
	srv, err := server.New(cfg, plugins)
	if err != nil {
		logx.Log.Fatal().Err(err).Msg("init server")
	}
	httpSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: srv.Handler}
	var metricsSrv *http.Server
	if cfg.MetricsAddr != fmt.Sprintf(":%d", cfg.Port) {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(srv.Metrics, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range sigCh {
			if serverstate.IsDraining() || cfg.DrainTimeout == 0 {
				logx.Log.Warn().Msg("termination requested")
				cancel()
				return
			}
			serverstate.StartDrain()
			waitCtx := ctx
			var stop context.CancelFunc
			if cfg.DrainTimeout > 0 {
				logx.Log.Info().Dur("timeout", cfg.DrainTimeout).Int64("inflight", srv.Inflight.Load()).Msg("draining; send SIGTERM again to terminate immediately")
				waitCtx, stop = context.WithTimeout(ctx, cfg.DrainTimeout)
			} else {
				logx.Log.Info().Int64("inflight", srv.Inflight.Load()).Msg("draining; send SIGTERM again to terminate immediately")
			}
			go func(stop context.CancelFunc, waitCtx context.Context) {
				if stop != nil {
					defer stop()
				}
				if srv.Inflight.WaitForZero(waitCtx) {
					logx.Log.Info().Msg("drain complete; terminating")
					cancel()
					return
				}
				if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
					logx.Log.Warn().Int64("inflight", srv.Inflight.Load()).Msg("drain timeout exceeded; terminating")
					cancel()
				}
			}(stop, waitCtx)
		}
	}()
	go func() {
		<-ctx.Done()
		if err := httpSrv.Shutdown(context.Background()); err != nil {
			logx.Log.Error().Err(err).Msg("server shutdown")
		}
		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(context.Background()); err != nil {
				logx.Log.Error().Err(err).Msg("metrics server shutdown")
			}
		}
	}()

	if cfg.APIKey != "" {
		logx.Log.Info().Msg("API key auth enabled")
	}
	if cfg.ClientKey != "" {
		logx.Log.Info().Str("client_key", secret.Mask(cfg.ClientKey)).Msg("client key required")
	}
	logx.Log.Info().Int("port", cfg.Port).Str("storage", cfg.StorageDriver).Strs("plugins", ids).Msg("server starting")
	serverstate.SetState(serverstate.StatusReady)
	if metricsSrv != nil {
		go func() {
			logx.Log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server starting")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logx.Log.Error().Err(err).Msg("metrics server error")
			}
		}()
	}
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logx.Log.Fatal().Err(err).Msg("server error")
	}
	// ListenAndServe returns as soon as Shutdown starts; wait for it to finish
	// before closing the libraries the handlers still hold.
	<-ctx.Done()
	srv.Shutdown(context.Background())
	logx.Log.Info().Msg("server stopped")
}

func printPlugins(out io.Writer) {
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, "Extensions:")
	for _, id := range plugin.IDs() {
		d, ok := plugin.Descriptor(id)
		if !ok {
			continue
		}
		_, _ = fmt.Fprintf(out, "  - %s (%s)\n", d.Name, d.ID)
		if d.Summary != "" {
			_, _ = fmt.Fprintf(out, "    %s\n", d.Summary)
		}
		for _, a := range d.Args {
			_, _ = fmt.Fprintf(out, "    * %s: %s\n", a.ID, a.Description)
			if a.Flag != "" {
				_, _ = fmt.Fprintf(out, "      flag: %s\n", a.Flag)
			}
			if a.Env != "" {
				_, _ = fmt.Fprintf(out, "      env: %s\n", a.Env)
			}
			_, _ = fmt.Fprintf(out, "      yaml: %s\n", a.YAMLPath(id))
			if a.Type != "" || a.Default != "" || a.Example != "" {
				_, _ = fmt.Fprintf(out, "      type: %s  default: %s", a.Type, a.Default)
				if a.Example != "" {
					_, _ = fmt.Fprintf(out, "  example: %s", a.Example)
				}
				_, _ = fmt.Fprintln(out)
			}
		}
	}
}
