// Command voicelink-harness is a self-contained stand-in for the session
// backend, for developing clients without the production pipeline. It
// serves the session REST API, answers WebRTC offers on minted room
// endpoints, and runs a scripted voice agent over each room's control
// channel. With GEMINI_API_KEY set, assistant replies and uploaded books
// go through the Gemini API; without it the agent uses canned lines.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/halyard-ai/voicelink/pkg/session/transport/webrtcx"
)

const defaultGeminiModel = "gemini-3-flash-preview"

type harnessConfig struct {
	Addr        string
	PublicURL   string
	APIKey      string
	GeminiKey   string
	GeminiModel string
	ICEServers  string
	TurnGap     time.Duration
}

func parseHarnessConfig(args []string, getenv func(string) string) (harnessConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := harnessConfig{}
	fs := flag.NewFlagSet("voicelink-harness", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.Addr, "addr", ":7860", "listen address")
	fs.StringVar(&cfg.PublicURL, "public-url", "", "base URL clients can reach this harness on (default derived from -addr)")
	fs.StringVar(&cfg.APIKey, "api-key", strings.TrimSpace(getenv("VOICELINK_API_KEY")), "require this bearer token on the REST API (or VOICELINK_API_KEY)")
	fs.StringVar(&cfg.ICEServers, "ice-servers", strings.TrimSpace(getenv("VOICELINK_ICE_SERVERS")), "ICE server list as JSON (or VOICELINK_ICE_SERVERS)")
	fs.DurationVar(&cfg.TurnGap, "turn-gap", 2*time.Second, "listening pause between scripted agent turns")

	if err := fs.Parse(args); err != nil {
		return harnessConfig{}, err
	}

	cfg.GeminiKey = strings.TrimSpace(getenv("GEMINI_API_KEY"))
	if cfg.GeminiKey == "" {
		cfg.GeminiKey = strings.TrimSpace(getenv("GOOGLE_API_KEY"))
	}
	cfg.GeminiModel = strings.TrimSpace(getenv("GEMINI_MODEL"))
	if cfg.GeminiModel == "" {
		cfg.GeminiModel = defaultGeminiModel
	}

	if cfg.PublicURL == "" {
		cfg.PublicURL = defaultPublicURL(cfg.Addr)
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")

	if err := validateHarnessConfig(cfg); err != nil {
		return harnessConfig{}, err
	}
	return cfg, nil
}

func validateHarnessConfig(cfg harnessConfig) error {
	if strings.TrimSpace(cfg.Addr) == "" {
		return errors.New("addr must not be empty")
	}
	u, err := url.Parse(cfg.PublicURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("public-url must be a valid absolute URL")
	}
	if u.User != nil {
		return errors.New("public-url must not include credentials")
	}
	if cfg.TurnGap <= 0 {
		return errors.New("turn-gap must be > 0")
	}
	return nil
}

// defaultPublicURL turns a listen address into the URL local clients
// reach it on.
func defaultPublicURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func newServer(cfg harnessConfig, logger *slog.Logger) (*echo.Echo, error) {
	st := newStore(nil)

	var books bookUploader = localBooks{}
	var reply replyFunc
	if cfg.GeminiKey != "" {
		ga, err := newGeminiAgent(context.Background(), cfg.GeminiKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		books = ga
		reply = ga.reply
		logger.Info("gemini agent enabled", "model", cfg.GeminiModel)
	} else {
		logger.Info("no GEMINI_API_KEY set, agent will use canned replies")
	}

	ice := webrtcx.DefaultICEServers()
	if cfg.ICEServers != "" {
		ice = webrtcx.ParseICEServers(cfg.ICEServers)
	}

	sig := &signalingHandler{
		store: st,
		ice:   ice,
		agent: agentConfig{reply: reply, turnGap: cfg.TurnGap},
		log:   logger,
	}
	h := &handlers{
		store:     st,
		books:     books,
		signaling: sig,
		publicURL: cfg.PublicURL,
		apiKey:    cfg.APIKey,
		log:       logger,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	h.register(e)
	return e, nil
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := parseHarnessConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voicelink-harness: %v\n", err)
		os.Exit(1)
	}

	e, err := newServer(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voicelink-harness: %v\n", err)
		os.Exit(1)
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("harness listening", "addr", cfg.Addr, "public_url", cfg.PublicURL)
		serverErrors <- e.Start(cfg.Addr)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	case sig := <-sigChan:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		_ = e.Close()
	}
}
