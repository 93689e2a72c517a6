package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	DefaultServerAddr     = "localhost:8000"
	DefaultHistoryLimit   = 200
	DefaultMaxTextLength  = 2000
	DefaultMaxMessageSize = 4096
	DefaultRateBurst      = 10
)

type Config struct {
	ServerAddr     string
	AllowedOrigins []string
	// HistoryLimit caps each room's history at write time.
	HistoryLimit int
	// MaxTextLength is the maximum number of characters kept from a chat message.
	MaxTextLength int
	// MaxMessageSize is the read limit, in bytes, for a single WebSocket frame.
	MaxMessageSize int64
	// RateLimit is the number of inbound events per second allowed on a
	// connection. Zero disables rate limiting.
	RateLimit float64
	RateBurst int
}

type Options struct {
	HistoryLimit   int
	MaxTextLength  int
	MaxMessageSize int64
	RateLimit      float64
	RateBurst      int
}

func NewConfig(serverAddr string, allowedOrigins []string, opts Options) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if opts.HistoryLimit <= 0 {
		return nil, fmt.Errorf("history limit must be positive, got %d", opts.HistoryLimit)
	}
	if opts.MaxTextLength <= 0 {
		return nil, fmt.Errorf("max text length must be positive, got %d", opts.MaxTextLength)
	}
	if opts.MaxMessageSize <= 0 {
		return nil, fmt.Errorf("max message size must be positive, got %d", opts.MaxMessageSize)
	}
	if opts.RateLimit < 0 {
		return nil, fmt.Errorf("rate limit cannot be negative, got %v", opts.RateLimit)
	}
	if opts.RateLimit > 0 && opts.RateBurst <= 0 {
		return nil, fmt.Errorf("rate burst must be positive when rate limiting is enabled, got %d", opts.RateBurst)
	}

	origins := make([]string, 0, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return &Config{
		ServerAddr:     serverAddr,
		AllowedOrigins: origins,
		HistoryLimit:   opts.HistoryLimit,
		MaxTextLength:  opts.MaxTextLength,
		MaxMessageSize: opts.MaxMessageSize,
		RateLimit:      opts.RateLimit,
		RateBurst:      opts.RateBurst,
	}, nil
}

// Default returns a valid configuration with every option at its default.
func Default() *Config {
	return &Config{
		ServerAddr:     DefaultServerAddr,
		HistoryLimit:   DefaultHistoryLimit,
		MaxTextLength:  DefaultMaxTextLength,
		MaxMessageSize: DefaultMaxMessageSize,
		RateBurst:      DefaultRateBurst,
	}
}

// EnvString returns the value of the environment variable key, or def when unset.
func EnvString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// EnvInt parses the environment variable key as an integer, returning def
// when it is unset or empty.
func EnvInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}

	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func EnvFloat(key string, def float64) (float64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return f, nil
}
