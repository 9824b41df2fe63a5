package health

import (
	"context"
	"net"
	"net/http"
	"time"

	"signal_engine/internal/models"
	bn "signal_engine/internal/modules/binance_websocket/service"
	cache "signal_engine/internal/modules/candle_cache/service"
	"signal_engine/internal/modules/config"
	"signal_engine/internal/modules/health/service"
	"signal_engine/internal/store"
	"signal_engine/pkg/logger"
	"signal_engine/pkg/metrics"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

// staleFactor: свеча старше трёх интервалов считается протухшей.
const staleFactor = 3

type Config struct {
	Addr string // например ":8080"
}

func NewConfig(cfg *config.Config) Config {
	addr := cfg.Health.Addr
	if addr == "" {
		addr = ":8080"
	}
	return Config{Addr: addr}
}

// NewRecorder регистрирует метрики движка в глобальном реестре prometheus.
func NewRecorder() *metrics.Recorder {
	return metrics.New(prometheus.DefaultRegisterer)
}

type healthz struct {
	service.Snapshot
	Cache     cache.Stats        `json:"cache"`
	Feed      bn.Stats           `json:"feed"`
	CandleAge map[string]float64 `json:"candleAgeSec"`
	Stale     []string           `json:"stale"`
	Signals   *models.Stats      `json:"signals,omitempty"`
}

func NewMux(state *service.State, c *cache.Cache, feed *bn.Client, st store.Store) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		// liveness: процесс жив
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		// readiness: буферы прогреты, поток запущен
		if !state.Ready() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		resp := healthz{
			Snapshot:  state.Snapshot(),
			Cache:     c.Stats(),
			Feed:      feed.Stats(),
			CandleAge: make(map[string]float64),
			Stale:     c.Stale(now, staleFactor),
		}
		for k, age := range c.Ages(now) {
			resp.CandleAge[k] = age.Seconds()
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if stats, err := st.Stats(ctx); err == nil {
			resp.Signals = &stats
		} else {
			logger.Warn("[HEALTH] stats: %v", err)
		}

		body, err := sonic.Marshal(resp)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	})

	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func RunHTTP(lc fx.Lifecycle, cfg Config, mux *http.ServeMux) {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.Addr)
			if err != nil {
				return err
			}
			logger.Info("[HEALTH] listening on %s", cfg.Addr)
			go func() {
				if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
					logger.Error("[HEALTH] serve: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func Module() fx.Option {
	return fx.Module("health",
		fx.Provide(
			service.NewState,
			NewRecorder,
			NewConfig,
			NewMux,
		),
		fx.Invoke(RunHTTP),
	)
}
