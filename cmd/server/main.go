package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/npezzotti/gochat-relay/internal/api"
	"github.com/npezzotti/gochat-relay/internal/config"
	"github.com/npezzotti/gochat-relay/internal/server"
	"github.com/npezzotti/gochat-relay/internal/stats"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	allowedOrigins stringSliceFlag
	historyLimit   int
	maxTextLength  int
	maxMessageSize int
	rateLimit      float64
	rateBurst      int
)

func main() {
	logger := log.New(os.Stderr, "[go-chat] ", log.LstdFlags)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Fatal("load .env:", err)
	}

	if v := config.EnvString("GOCHAT_ALLOWED_ORIGINS", ""); v != "" {
		allowedOrigins.Set(v)
	}

	historyDefault, err := config.EnvInt("GOCHAT_HISTORY_LIMIT", config.DefaultHistoryLimit)
	if err != nil {
		logger.Fatal("config:", err)
	}
	textDefault, err := config.EnvInt("GOCHAT_MAX_TEXT_LENGTH", config.DefaultMaxTextLength)
	if err != nil {
		logger.Fatal("config:", err)
	}
	sizeDefault, err := config.EnvInt("GOCHAT_MAX_MESSAGE_SIZE", config.DefaultMaxMessageSize)
	if err != nil {
		logger.Fatal("config:", err)
	}
	rateDefault, err := config.EnvFloat("GOCHAT_RATE_LIMIT", 0)
	if err != nil {
		logger.Fatal("config:", err)
	}
	burstDefault, err := config.EnvInt("GOCHAT_RATE_BURST", config.DefaultRateBurst)
	if err != nil {
		logger.Fatal("config:", err)
	}

	flag.StringVar(&addr, "addr", config.EnvString("GOCHAT_ADDR", config.DefaultServerAddr), "server address")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS and WebSocket upgrades")
	flag.IntVar(&historyLimit, "history-limit", historyDefault, "messages retained per room")
	flag.IntVar(&maxTextLength, "max-text-length", textDefault, "characters kept from a chat message")
	flag.IntVar(&maxMessageSize, "max-message-size", sizeDefault, "maximum inbound WebSocket frame in bytes")
	flag.Float64Var(&rateLimit, "rate-limit", rateDefault, "inbound events per second per connection, 0 disables")
	flag.IntVar(&rateBurst, "rate-burst", burstDefault, "burst size for the per-connection rate limit")
	flag.Parse()

	cfg, err := config.NewConfig(addr, allowedOrigins, config.Options{
		HistoryLimit:   historyLimit,
		MaxTextLength:  maxTextLength,
		MaxMessageSize: int64(maxMessageSize),
		RateLimit:      rateLimit,
		RateBurst:      rateBurst,
	})
	if err != nil {
		logger.Fatal("config:", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)
	statsUpdater.Run()
	defer statsUpdater.Stop()

	chatServer, err := server.NewChatServer(logger, cfg, statsUpdater)
	if err != nil {
		logger.Fatal("new chat server:", err)
	}

	srv := api.NewGoChatApp(mux, logger, chatServer, cfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Println("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Println("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
