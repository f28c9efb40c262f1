// Package main runs the asyncfetch engine as a command-line client with
// an optional operational HTTP surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/tinwell/asyncfetch/internal/config"
	"github.com/tinwell/asyncfetch/internal/engine"
	"github.com/tinwell/asyncfetch/internal/fetch"
	"github.com/tinwell/asyncfetch/internal/logging"
	"github.com/tinwell/asyncfetch/internal/ops"
	"github.com/tinwell/asyncfetch/internal/politeness"
	"github.com/tinwell/asyncfetch/internal/transport"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	url := flag.String("url", "", "URL to fetch")
	method := flag.String("method", "GET", "HTTP method (GET or POST)")
	data := flag.String("data", "", "JSON payload for POST")
	stream := flag.Bool("stream", false, "Stream the body to stdout instead of buffering")
	wait := flag.Duration("wait", 30*time.Second, "How long to wait for the result")
	serve := flag.Bool("serve", false, "Keep running and serve the ops endpoints")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil && !errors.Is(syncErr, syscall.EINVAL) {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng := engine.New(engine.Deps{
		Logger:    logger.Named("engine"),
		Transport: transport.New(logger.Named("transport")),
		Limiter:   politeness.New(cfg.LimiterConfig()),
	})
	if err := eng.Init(cfg.FetchConfig()); err != nil {
		logger.Error("engine init failed", zap.Error(err))
		os.Exit(1)
	}
	defer eng.Close()

	if cfg.Ops.Enabled || *serve {
		opsServer := ops.NewServer(eng.Snapshot, logger.Named("ops"))
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Ops.Port)
			if err := opsServer.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("ops server error", zap.Error(err))
				stop()
			}
		}()
	}

	if *url != "" {
		if err := runOnce(eng, *url, *method, *data, *stream, *wait); err != nil {
			logger.Error("fetch failed", zap.Error(err))
			os.Exit(1)
		}
	}

	if *serve {
		<-ctx.Done()
		logger.Info("shutdown initiated")
	} else if *url == "" {
		flag.Usage()
		os.Exit(2)
	}
}

// runOnce performs a single request and prints the result as JSON (or,
// when streaming, writes body bytes to stdout and a summary to stderr).
func runOnce(eng *engine.Engine, url, method, data string, stream bool, wait time.Duration) error {
	if stream {
		return runStream(eng, url, wait)
	}

	var result fetch.Result
	switch method {
	case http.MethodGet:
		result = eng.GetSync(url, wait, fetch.RequestOptions{})
	case http.MethodPost:
		var payload any
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			return fmt.Errorf("parse -data payload: %w", err)
		}
		result = eng.PostSync(url, payload, wait, fetch.RequestOptions{})
	default:
		return fmt.Errorf("unsupported method %q", method)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Println(string(out))
	if result.Err != nil {
		return fmt.Errorf("fetch %s: %s", url, result.Err.Message)
	}
	return nil
}

func runStream(eng *engine.Engine, url string, wait time.Duration) error {
	done := make(chan fetch.StreamResult, 1)
	admitted := eng.GetStream(url,
		func(chunk []byte) {
			if _, err := os.Stdout.Write(chunk); err != nil {
				zap.L().Error("write chunk failed", zap.Error(err))
			}
		},
		func(r fetch.StreamResult) { done <- r },
		fetch.RequestOptions{},
	)
	if !admitted {
		return fmt.Errorf("stream %s: submission rejected", url)
	}

	var timeout <-chan time.Time
	if wait > 0 {
		timeout = time.After(wait)
	}
	select {
	case r := <-done:
		fmt.Fprintf(os.Stderr, "stream done: code=%s status=%d bytes=%d\n",
			r.Code.String(), r.StatusCode, r.ReceivedBytes)
		if r.Code != fetch.CodeOK {
			return fmt.Errorf("stream %s: %s", url, r.Code.String())
		}
		return nil
	case <-timeout:
		return fmt.Errorf("stream %s: timed out after %s", url, wait)
	}
}
