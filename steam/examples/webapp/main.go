package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp/steamcap/steam"
	"github.com/hashicorp/steamcap/steam/callback"
)

// List of required configuration environment variables
const (
	apiKey = "STEAM_API_KEY"
	port   = "STEAM_PORT"
)

func envConfig() (map[string]string, error) {
	const op = "envConfig"
	env := map[string]string{
		apiKey: os.Getenv(apiKey),
		port:   os.Getenv(port),
	}
	if env[port] == "" {
		env[port] = "3000"
	}
	for k, v := range env {
		if v == "" {
			return nil, fmt.Errorf("%s: %s is empty", op, k)
		}
	}
	return env, nil
}

func main() {
	debug := flag.Bool("debug", false, "enable debug logging")
	host := flag.String("host", "localhost", "host name the example is reached at")
	flag.Parse()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "steam-webapp",
		Level: hclog.Info,
	})
	if *debug {
		logger.SetLevel(hclog.Debug)
	}

	env, err := envConfig()
	if err != nil {
		logger.Error("invalid environment", "error", err)
		os.Exit(1)
	}

	realm := fmt.Sprintf("http://%s:%s", *host, env[port])
	c, err := steam.NewConfig(
		realm,
		realm+"/auth/steam/return",
		steam.APIKey(env[apiKey]),
		steam.WithLogger(logger.Named("steam")),
	)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	a, err := steam.NewAuthenticator(c)
	if err != nil {
		logger.Error("unable to create authenticator", "error", err)
		os.Exit(1)
	}

	errorResponse := func(e error, w http.ResponseWriter, req *http.Request) {
		logger.Warn("sign in failed", "path", req.URL.Path, "error", e)
		callback.DefaultErrorResponse(e, w, req)
	}
	successResponse := func(p *steam.UserProfile, w http.ResponseWriter, _ *http.Request) {
		logger.Info("signed in", "steamid", p.ID, "username", p.Username)
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(p)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/" {
			http.NotFound(w, req)
			return
		}
		fmt.Fprint(w, `<html><body><a href="/auth/steam">Sign in through Steam</a></body></html>`)
	})
	mux.HandleFunc("/auth/steam", callback.Login(a, errorResponse))
	mux.HandleFunc("/auth/steam/return", callback.Return(a, successResponse, errorResponse))

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", *host, env[port]),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigintCh := make(chan os.Signal, 1)
	signal.Notify(sigintCh, os.Interrupt)
	defer signal.Stop(sigintCh)

	srvCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "url", realm)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvCh <- err
		}
	}()

	select {
	case err := <-srvCh:
		logger.Error("server closed with error", "error", err)
		os.Exit(1)
	case <-sigintCh:
		logger.Info("interrupted, shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
