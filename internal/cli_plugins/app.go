package cliplugins

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"lanbeacon/internal/config"
	"lanbeacon/internal/util/logger/sl"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// App хранит зависимости, которые будут использоваться в командах CLI.
// Конфигурация и логгер появляются в Init, до запуска команды.
type App struct {
	ConfigPath string
	Config     *config.Config
	Log        *slog.Logger

	// NewLogger строит логгер по окружению из конфигурации
	NewLogger func(env string) *slog.Logger
}

// Init загружает конфигурацию, подключается как PersistentPreRunE корня
func (a *App) Init(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(config.ResolvePath(a.ConfigPath))
	if err != nil {
		return err
	}
	a.Config = cfg

	if a.NewLogger != nil {
		a.Log = a.NewLogger(cfg.Env)
	}
	if a.Log == nil {
		a.Log = slog.Default()
	}

	a.Log.Debug("config loaded",
		slog.String("env", cfg.Env),
		slog.String("command", cmd.Name()),
	)
	return nil
}

// BindFlags регистрирует глобальные флаги на корневой команде
func (a *App) BindFlags(root *cobra.Command) {
	root.PersistentFlags().StringVarP(&a.ConfigPath, "config", "c", "", "path to config file (default $CONFIG_PATH)")
	root.PersistentPreRunE = a.Init
}

// newRegistry - реестр метрик с метриками процесса и рантайма
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// serveMetrics отдает /metrics до отмены ctx. Ошибка привязки к адресу
// возвращается сразу, пустой addr ничего не запускает
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, log *slog.Logger) error {
	const op = "cliplugins.serveMetrics"
	log = log.With(slog.String("op", op))

	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%s: listen %s: %w", op, addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	go func() {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn("metrics server shutdown", sl.Err(err))
			}
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", sl.Err(err))
			}
		}
	}()

	log.Info("serving metrics", slog.String("addr", ln.Addr().String()))
	return nil
}

func flagError(name string, err error) error {
	return fmt.Errorf("flag --%s failed: %w", name, err)
}
