package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// Logger wraps slog with the two things every handler and pipeline stage in
// the gateway needs: request-scoped correlation attributes pulled from the
// context, and redaction of key material before it reaches a sink. API keys,
// provider secrets, and presign credentials routinely pass through log call
// sites as part of larger values; the logger is the last line of defense.
//
//	logger := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	logger.Info(ctx, "record created", "collection", "docs", "record_id", id)
type Logger struct {
	logger  *slog.Logger
	config  LogConfig
	redacts []*regexp.Regexp
}

// LogConfig configures a Logger.
type LogConfig struct {
	// Level is the minimum level: "debug", "info", "warn", or "error".
	// Unrecognized values fall back to info.
	Level string

	// Format selects "json" (default) or "text" output.
	Format string

	// Output receives log lines; nil means os.Stdout.
	Output io.Writer

	// AddSource includes the emitting file and line in each record.
	AddSource bool

	// RedactPatterns are extra regexes scrubbed from every message and
	// attribute, on top of DefaultRedactPatterns.
	RedactPatterns []string
}

// ContextKey types the context keys the logger understands.
type ContextKey string

const (
	// RequestIDKey carries the per-request correlation id.
	RequestIDKey ContextKey = "request_id"

	// DatabaseKey carries the logical database name.
	DatabaseKey ContextKey = "database"

	// CollectionKey carries the collection name.
	CollectionKey ContextKey = "collection"

	// APIKeyIDKey carries the authenticated API key id.
	APIKeyIDKey ContextKey = "api_key_id"
)

// DefaultRedactPatterns are scrubbed from every log record. The first group
// covers generic assignments ("api_key=...", "password: ..."); the rest match
// the concrete token shapes this gateway handles.
var DefaultRedactPatterns = []string{
	`(?i)(api[_-]?key|apikey)[\s:=]+["\']?([a-zA-Z0-9_\-]{16,})["\']?`,
	`(?i)(bearer|token)[\s:]+([a-zA-Z0-9_\-\.]{16,})`,
	`(?i)(secret|password|passwd|pwd)[\s:=]+["\']?([^\s"']{8,})["\']?`,

	// Gateway API keys.
	`cortexdb_(admin|live|test)_[a-f0-9]{64}`,

	// OpenAI keys: sk- plus at least 48 chars.
	`sk-[a-zA-Z0-9]{48,}`,

	// Google AI keys.
	`AIza[0-9A-Za-z_\-]{35}`,

	// JWTs.
	`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`,

	// Long hex blobs next to a secret-ish word (key hashes and the like).
	`(?i)(secret|key|token)[\s:=]+["\']?([a-fA-F0-9]{32,})["\']?`,
}

// sensitiveAttrKeys are map keys whose values are masked wholesale rather
// than pattern-matched. Comparison is case-insensitive with dashes folded
// to underscores.
var sensitiveAttrKeys = map[string]bool{
	"password":      true,
	"passwd":        true,
	"secret":        true,
	"token":         true,
	"api_key":       true,
	"apikey":        true,
	"key_hash":      true,
	"private_key":   true,
	"privatekey":    true,
	"auth":          true,
	"authorization": true,
}

const redactedPlaceholder = "[REDACTED]"

// NewLogger builds a Logger from config, falling back to info-level JSON on
// stdout for zero values. Invalid extra redact patterns are skipped rather
// than failing construction.
func NewLogger(config LogConfig) *Logger {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Level == "" {
		config.Level = "info"
	}
	if config.Format == "" {
		config.Format = "json"
	}

	opts := &slog.HandlerOptions{
		Level:     LogLevelFromString(config.Level),
		AddSource: config.AddSource,
	}
	var handler slog.Handler
	if config.Format == "json" {
		handler = slog.NewJSONHandler(config.Output, opts)
	} else {
		handler = slog.NewTextHandler(config.Output, opts)
	}

	patterns := make([]string, 0, len(DefaultRedactPatterns)+len(config.RedactPatterns))
	patterns = append(patterns, DefaultRedactPatterns...)
	patterns = append(patterns, config.RedactPatterns...)
	redacts := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if re, err := regexp.Compile(p); err == nil {
			redacts = append(redacts, re)
		}
	}

	return &Logger{
		logger:  slog.New(handler),
		config:  config,
		redacts: redacts,
	}
}

// MustNewLogger is NewLogger for initialization paths that cannot proceed
// without a logger.
func MustNewLogger(config LogConfig) *Logger {
	logger := NewLogger(config)
	if logger == nil {
		panic("failed to create logger")
	}
	return logger
}

// WithContext binds the context's correlation attributes onto a derived
// logger, for call sites that log repeatedly under one request.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	attrs := contextAttrs(ctx)
	if len(attrs) == 0 {
		return l
	}
	return &Logger{
		logger:  l.logger.With(attrs...),
		config:  l.config,
		redacts: l.redacts,
	}
}

// WithFields binds static key-value pairs onto a derived logger.
//
//	ingestLog := logger.WithFields("component", "ingest")
func (l *Logger) WithFields(args ...any) *Logger {
	return &Logger{
		logger:  l.logger.With(args...),
		config:  l.config,
		redacts: l.redacts,
	}
}

// Debug logs at debug level with optional key-value pairs.
func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelDebug, msg, args...)
}

// Info logs at info level with optional key-value pairs.
func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelInfo, msg, args...)
}

// Warn logs at warn level with optional key-value pairs.
func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelWarn, msg, args...)
}

// Error logs at error level with optional key-value pairs. Error values in
// args are redacted like any other value.
func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelError, msg, args...)
}

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	attrs := make([]any, 0, len(args)+8)
	attrs = append(attrs, contextAttrs(ctx)...)
	for _, arg := range args {
		attrs = append(attrs, l.redactValue(arg))
	}
	l.logger.Log(ctx, level, l.redactString(msg), attrs...)
}

// contextAttrs extracts the known correlation keys, skipping empty values.
func contextAttrs(ctx context.Context) []any {
	attrs := make([]any, 0, 8)
	for _, key := range []ContextKey{RequestIDKey, DatabaseKey, CollectionKey, APIKeyIDKey} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			attrs = append(attrs, slog.String(string(key), v))
		}
	}
	return attrs
}

// redactValue scrubs a single attribute value. Maps are masked by key first,
// then recursively by pattern; string-like values are pattern-matched; other
// scalars pass through unchanged.
func (l *Logger) redactValue(v any) any {
	switch val := v.(type) {
	case string:
		return l.redactString(val)
	case []byte:
		return l.redactString(string(val))
	case error:
		return l.redactString(val.Error())
	case map[string]any:
		return l.redactMap(val)
	case map[string]string:
		m := make(map[string]any, len(val))
		for k, s := range val {
			m[k] = s
		}
		return l.redactMap(m)
	default:
		return v
	}
}

func (l *Logger) redactString(s string) string {
	for _, re := range l.redacts {
		s = re.ReplaceAllString(s, redactedPlaceholder)
	}
	return s
}

func (l *Logger) redactMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		folded := strings.ToLower(strings.ReplaceAll(k, "-", "_"))
		if sensitiveAttrKeys[folded] {
			out[k] = redactedPlaceholder
			continue
		}
		out[k] = l.redactValue(v)
	}
	return out
}

// AddRequestID returns a context carrying the request correlation id.
func AddRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// AddDatabase returns a context carrying the logical database name.
func AddDatabase(ctx context.Context, database string) context.Context {
	return context.WithValue(ctx, DatabaseKey, database)
}

// AddCollection returns a context carrying the collection name.
func AddCollection(ctx context.Context, collection string) context.Context {
	return context.WithValue(ctx, CollectionKey, collection)
}

// AddAPIKeyID returns a context carrying the authenticated key id.
func AddAPIKeyID(ctx context.Context, keyID string) context.Context {
	return context.WithValue(ctx, APIKeyIDKey, keyID)
}

// GetRequestID reads the request id back out of the context, or "".
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// GetAPIKeyID reads the authenticated key id out of the context, or "".
func GetAPIKeyID(ctx context.Context) string {
	if id, ok := ctx.Value(APIKeyIDKey).(string); ok {
		return id
	}
	return ""
}

// LogLevelFromString maps a config string to a slog.Level, defaulting to
// info for anything unrecognized.
func LogLevelFromString(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
