package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	handler "propertypackaging/api"
	log "propertypackaging/internal/logging"
	"propertypackaging/internal/metrics"
)

func main() {
	// Load environment variables FIRST (optional - will use system env vars if .env not found)
	_ = godotenv.Load()

	config := handler.LoadConfig()
	log.Init("server", config.LogLevel, config.LogFormat)
	log.WithFields(log.Fields{
		"event":      "init_service",
		"production": config.IsProduction(),
		"google":     config.HasGoogleConfig(),
		"drive":      config.HasDriveConfig(),
		"openai":     config.HasOpenAIConfig(),
		"geoapify":   config.HasGeoapifyConfig(),
		"geoscape":   config.HasGeoscapeConfig(),
		"ghl":        config.HasGHLConfig(),
		"make":       config.HasMakeConfig(),
		"vercel":     config.HasVercelConfig(),
	}).Info("service initialized")

	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	svcs := handler.NewServices(context.Background(), config)
	defer func() {
		if err := svcs.Close(); err != nil {
			log.Error(err)
		}
	}()

	apiSrv := &http.Server{
		Addr:              net.JoinHostPort(config.Host, config.Port),
		Handler:           handler.NewRouter(config, svcs),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ops := mux.NewRouter()
	ops.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	ops.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	opsSrv := &http.Server{
		Addr:              net.JoinHostPort(config.Host, config.MetricsPort),
		Handler:           ops,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	for name, srv := range map[string]*http.Server{"api": apiSrv, "metrics": opsSrv} {
		name, srv := name, srv
		go func() {
			log.WithFields(log.Fields{
				"event":  "listen",
				"server": name,
				"addr":   srv.Addr,
			}).Info("server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithFields(log.Fields{
					"event":  "listen_failed",
					"server": name,
				}).Fatal(err)
			}
		}()
	}

	<-done
	log.WithFields(log.Fields{
		"event": "shutdown",
	}).Info("received syscall")

	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	for _, srv := range []*http.Server{apiSrv, opsSrv} {
		if err := srv.Shutdown(ctx); err != nil {
			log.WithFields(log.Fields{
				"event": "shutdown_failed",
				"addr":  srv.Addr,
			}).Error(err)
		}
	}
	log.Info("servers stopped")
}
