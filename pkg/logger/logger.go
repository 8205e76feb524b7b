package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type Config struct {
	Env       string
	AddSource bool
	Output    io.Writer
}

// Logger is a wrapper around slog.Logger with additional methods
type Logger struct {
	*slog.Logger
}

func New(config Config) (*Logger, error) {
	if config.Output == nil {
		config.Output = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     parseLogLevel(config.Env),
		AddSource: config.AddSource,
	}

	handler, err := determineHandler(config.Env, config.Output, handlerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to determine handler: %w", err)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return &Logger{
		Logger: logger,
	}, nil
}

func determineHandler(env string, out io.Writer, opts *slog.HandlerOptions) (slog.Handler, error) {
	switch strings.ToLower(env) {
	case "prod":
		return slog.NewJSONHandler(out, opts), nil
	case "dev":
		return slog.NewTextHandler(out, opts), nil
	case "test":
		return slog.NewTextHandler(out, &slog.HandlerOptions{
			Level: slog.LevelError,
		}), nil
	default:
		return nil, fmt.Errorf("unknown environment: %s (use 'dev', 'prod', or 'test')", env)
	}
}

func parseLogLevel(env string) slog.Level {
	switch strings.ToLower(env) {
	case "dev":
		return slog.LevelDebug
	case "prod":
		return slog.LevelInfo
	case "test":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
