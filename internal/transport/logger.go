package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/arjunv/quotaproxy/internal/config"
)

type ctxKey string

// RequestIDKey is the context key carrying the per-request ID.
const RequestIDKey ctxKey = "request_id"

// NewLogger builds a zerolog.Logger from LoggingConfig: plain JSON by
// default, or a colored console writer when cfg.Pretty is set or
// Format is "pretty"/"console". Unlike a TTY-attached CLI, quotaproxy
// usually runs under a process supervisor with no terminal to
// autodetect, so console formatting here is opt-in rather than
// inferred.
func NewLogger(cfg config.LoggingConfig) (zerolog.Logger, error) {
	output, err := selectOutput(cfg.Output)
	if err != nil {
		return zerolog.Logger{}, err
	}

	if shouldUsePretty(cfg) {
		output = buildConsoleWriter(output)
	}

	logger := zerolog.New(output).
		Level(cfg.ParseLevel()).
		With().
		Timestamp().
		Logger()

	return logger, nil
}

func selectOutput(outputCfg string) (io.Writer, error) {
	switch outputCfg {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		cleaned := filepath.Clean(outputCfg)
		f, err := os.OpenFile(cleaned, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
}

func shouldUsePretty(cfg config.LoggingConfig) bool {
	if cfg.Pretty {
		return true
	}
	switch cfg.Format {
	case "pretty", "console":
		return true
	default:
		return false
	}
}

func buildConsoleWriter(output io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        output,
		TimeFormat: "15:04:05",
		FormatFieldValue: func(i interface{}) string {
			return fmt.Sprintf("%s", i)
		},
	}
}

// AddRequestID stores requestID (generating one if empty) on ctx, both
// as a retrievable value and as a zerolog field on the request-scoped
// logger.
func AddRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		requestID = uuid.New().String()
	}
	ctx = context.WithValue(ctx, RequestIDKey, requestID)
	logger := log.Ctx(ctx).With().Str("request_id", requestID).Logger()
	return logger.WithContext(ctx)
}

// GetRequestID retrieves the request ID stashed by AddRequestID, or ""
// if none is present.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
