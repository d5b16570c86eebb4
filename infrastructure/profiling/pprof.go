// Package profiling starts optional pprof and Pyroscope profilers for the
// caravan server.
package profiling

import (
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/GFZ-Centre-for-Early-Warning/caravan/infrastructure/logger"
)

// PprofConfig controls the local pprof listener.
type PprofConfig struct {
	Enabled bool   `env:"ENABLE_PROFILING" yaml:"enabled"`
	Port    string `env:"PPROF_PORT"       yaml:"port"`
}

const defaultPprofPort = "6060"

// StartPprofServer serves /debug/pprof on localhost in the background and
// returns the server so callers can shut it down. It returns nil when
// profiling is disabled.
func StartPprofServer(cfg PprofConfig, log logger.Logger) *http.Server {
	if !cfg.Enabled {
		return nil
	}
	port := cfg.Port
	if port == "" {
		port = defaultPprofPort
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	srv := &http.Server{
		Addr:              net.JoinHostPort("localhost", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("Starting pprof server", logger.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("pprof server error", logger.Error(err))
		}
	}()

	return srv
}
