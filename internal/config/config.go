package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
)

const (
	envVarListenAddr      = "PROCTOR_RELAY_LISTEN_ADDR"
	envVarLogFormat       = "PROCTOR_RELAY_LOG_FORMAT"
	envVarLogLevel        = "PROCTOR_RELAY_LOG_LEVEL"
	envVarShutdownTimeout = "PROCTOR_RELAY_SHUTDOWN_TIMEOUT"
	envVarMode            = "PROCTOR_RELAY_MODE"

	// Camera connection registry knobs.
	envVarConnectionIdleTTL       = "CONNECTION_IDLE_TTL"
	envVarConnectionSweepInterval = "CONNECTION_SWEEP_INTERVAL"

	// Frame cache knobs. The frame TTL is judged by write time, not access
	// time; see internal/camera.
	envVarFrameMaxAge        = "FRAME_MAX_AGE"
	envVarFrameSweepInterval = "FRAME_SWEEP_INTERVAL"

	// Ingestion admission control knobs.
	envVarRateLimitMaxTokens       = "RATE_LIMIT_MAX_TOKENS"
	envVarRateLimitRefillPerSecond = "RATE_LIMIT_REFILL_TOKENS_PER_SECOND"
	envVarRateLimitGraceRequests   = "RATE_LIMIT_GRACE_REQUESTS"
	envVarRateLimitStateStaleTTL   = "RATE_LIMIT_STATE_STALE_TTL"
	envVarRateLimitSweepInterval   = "RATE_LIMIT_SWEEP_INTERVAL"

	// Signaling / WebSocket hardening.
	envVarMaxSignalingMessageBytes      = "MAX_SIGNALING_MESSAGE_BYTES"
	envVarMaxSignalingMessagesPerSecond = "MAX_SIGNALING_MESSAGES_PER_SECOND"
)

const (
	DefaultListenAddr = "127.0.0.1:8080"
	DefaultShutdown   = 15 * time.Second

	DefaultMode Mode = ModeDev

	// DefaultConnectionIdleTTL is access-based: a camera connection entry is
	// evicted only after it has neither been written nor read for this long.
	DefaultConnectionIdleTTL       = 5 * time.Minute
	DefaultConnectionSweepInterval = 60 * time.Second

	// DefaultFrameMaxAge is write-time-based: a cached frame is evicted once
	// it is this old, regardless of how recently it was read. A stale frame is
	// worse than no frame for the analysis proxy.
	DefaultFrameMaxAge        = 30 * time.Second
	DefaultFrameSweepInterval = 60 * time.Second

	DefaultRateLimitMaxTokens       = 30
	DefaultRateLimitRefillPerSecond = 10
	DefaultRateLimitGraceRequests   = 100
	DefaultRateLimitStateStaleTTL   = 5 * time.Minute
	DefaultRateLimitSweepInterval   = 5 * time.Minute

	DefaultMaxSignalingMessageBytes      = int64(64 * 1024)
	DefaultMaxSignalingMessagesPerSecond = 50
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	ListenAddr      string
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration
	Mode            Mode

	ConnectionIdleTTL       time.Duration
	ConnectionSweepInterval time.Duration

	FrameMaxAge        time.Duration
	FrameSweepInterval time.Duration

	RateLimitMaxTokens       int
	RateLimitRefillPerSecond int
	RateLimitGraceRequests   int
	RateLimitStateStaleTTL   time.Duration
	RateLimitSweepInterval   time.Duration

	MaxSignalingMessageBytes      int64
	MaxSignalingMessagesPerSecond int

	// ICEServers is advertised to examiner/camera peers via GET /webrtc/ice so
	// they can negotiate their direct media path. The relay itself never
	// terminates WebRTC.
	ICEServers []webrtc.ICEServer
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	envMode, _ := lookup(envVarMode)
	modeDefault := string(DefaultMode)
	if envMode != "" {
		modeDefault = envMode
	}

	envLogFormat, envLogFormatOK := lookup(envVarLogFormat)
	envLogFormatSet := envLogFormatOK && envLogFormat != ""
	logFormatDefault := envLogFormat
	if !envLogFormatSet {
		logFormatDefault = defaultLogFormatForMode(modeDefault)
	}

	envLogLevel, envLogLevelOK := lookup(envVarLogLevel)
	envLogLevelSet := envLogLevelOK && envLogLevel != ""
	logLevelDefault := envLogLevel
	if !envLogLevelSet {
		logLevelDefault = defaultLogLevelForMode(modeDefault)
	}

	fs := flag.NewFlagSet("proctor-relay", flag.ContinueOnError)
	listenAddr := fs.String("listen-addr", envOrDefault(lookup, envVarListenAddr, DefaultListenAddr), "TCP address for the HTTP/WebSocket server")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	mode, err := parseMode(modeDefault)
	if err != nil {
		return Config{}, err
	}
	logFormat, err := parseLogFormat(logFormatDefault)
	if err != nil {
		return Config{}, err
	}
	logLevel, err := parseLogLevel(logLevelDefault)
	if err != nil {
		return Config{}, err
	}

	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdown)
	if err != nil {
		return Config{}, err
	}

	connectionIdleTTL, err := envDurationOrDefault(lookup, envVarConnectionIdleTTL, DefaultConnectionIdleTTL)
	if err != nil {
		return Config{}, err
	}
	connectionSweepInterval, err := envDurationOrDefault(lookup, envVarConnectionSweepInterval, DefaultConnectionSweepInterval)
	if err != nil {
		return Config{}, err
	}

	frameMaxAge, err := envDurationOrDefault(lookup, envVarFrameMaxAge, DefaultFrameMaxAge)
	if err != nil {
		return Config{}, err
	}
	frameSweepInterval, err := envDurationOrDefault(lookup, envVarFrameSweepInterval, DefaultFrameSweepInterval)
	if err != nil {
		return Config{}, err
	}

	rateLimitMaxTokens, err := envIntOrDefault(lookup, envVarRateLimitMaxTokens, DefaultRateLimitMaxTokens)
	if err != nil {
		return Config{}, err
	}
	rateLimitRefillPerSecond, err := envIntOrDefault(lookup, envVarRateLimitRefillPerSecond, DefaultRateLimitRefillPerSecond)
	if err != nil {
		return Config{}, err
	}
	rateLimitGraceRequests, err := envIntOrDefault(lookup, envVarRateLimitGraceRequests, DefaultRateLimitGraceRequests)
	if err != nil {
		return Config{}, err
	}
	rateLimitStateStaleTTL, err := envDurationOrDefault(lookup, envVarRateLimitStateStaleTTL, DefaultRateLimitStateStaleTTL)
	if err != nil {
		return Config{}, err
	}
	rateLimitSweepInterval, err := envDurationOrDefault(lookup, envVarRateLimitSweepInterval, DefaultRateLimitSweepInterval)
	if err != nil {
		return Config{}, err
	}

	maxSignalingMessageBytes := DefaultMaxSignalingMessageBytes
	if raw, ok := lookup(envVarMaxSignalingMessageBytes); ok && strings.TrimSpace(raw) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarMaxSignalingMessageBytes, raw, err)
		}
		maxSignalingMessageBytes = n
	}
	maxSignalingMessagesPerSecond, err := envIntOrDefault(lookup, envVarMaxSignalingMessagesPerSecond, DefaultMaxSignalingMessagesPerSecond)
	if err != nil {
		return Config{}, err
	}

	iceServers, err := parseICEServersFromValues(
		envOrDefault(lookup, envICEServersJSON, ""),
		envOrDefault(lookup, envStunURLs, ""),
		envOrDefault(lookup, envTurnURLs, ""),
		envOrDefault(lookup, envTurnUsername, ""),
		envOrDefault(lookup, envTurnCredential, ""),
	)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:      *listenAddr,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		ShutdownTimeout: shutdownTimeout,
		Mode:            mode,

		ConnectionIdleTTL:       connectionIdleTTL,
		ConnectionSweepInterval: connectionSweepInterval,

		FrameMaxAge:        frameMaxAge,
		FrameSweepInterval: frameSweepInterval,

		RateLimitMaxTokens:       rateLimitMaxTokens,
		RateLimitRefillPerSecond: rateLimitRefillPerSecond,
		RateLimitGraceRequests:   rateLimitGraceRequests,
		RateLimitStateStaleTTL:   rateLimitStateStaleTTL,
		RateLimitSweepInterval:   rateLimitSweepInterval,

		MaxSignalingMessageBytes:      maxSignalingMessageBytes,
		MaxSignalingMessagesPerSecond: maxSignalingMessagesPerSecond,

		ICEServers: iceServers,
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.ConnectionIdleTTL <= 0 {
		return fmt.Errorf("%s must be positive", envVarConnectionIdleTTL)
	}
	if c.FrameMaxAge <= 0 {
		return fmt.Errorf("%s must be positive", envVarFrameMaxAge)
	}
	if c.RateLimitMaxTokens <= 0 {
		return fmt.Errorf("%s must be positive", envVarRateLimitMaxTokens)
	}
	if c.RateLimitRefillPerSecond <= 0 {
		return fmt.Errorf("%s must be positive", envVarRateLimitRefillPerSecond)
	}
	if c.RateLimitGraceRequests < 0 {
		return fmt.Errorf("%s must not be negative", envVarRateLimitGraceRequests)
	}
	if c.MaxSignalingMessageBytes <= 0 {
		return fmt.Errorf("%s must be positive", envVarMaxSignalingMessageBytes)
	}
	if c.MaxSignalingMessagesPerSecond <= 0 {
		return fmt.Errorf("%s must be positive", envVarMaxSignalingMessagesPerSecond)
	}
	return nil
}

func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func defaultLogFormatForMode(mode string) string {
	if mode == string(ModeProd) {
		return string(LogFormatJSON)
	}
	return string(LogFormatText)
}

func defaultLogLevelForMode(mode string) string {
	if mode == string(ModeProd) {
		return "info"
	}
	return "debug"
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func parseMode(raw string) (Mode, error) {
	switch Mode(strings.TrimSpace(strings.ToLower(raw))) {
	case ModeDev:
		return ModeDev, nil
	case ModeProd:
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid %s %q (expected dev or prod)", envVarMode, raw)
	}
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch LogFormat(strings.TrimSpace(strings.ToLower(raw))) {
	case LogFormatText:
		return LogFormatText, nil
	case LogFormatJSON:
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid %s %q (expected text or json)", envVarLogFormat, raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid %s %q (expected debug, info, warn or error)", envVarLogLevel, raw)
	}
}
