package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	aadtoken "github.com/entratools/aad-token-validator"
	"github.com/entratools/aad-token-validator/internal/config"
)

// engineLogger builds the logger handed to the engine and its resolver for
// the configured backend. The returned function flushes buffered output.
func engineLogger(cfg *config.Config, commands logrus.FieldLogger, w io.Writer) (aadtoken.Logger, func(), error) {
	switch cfg.LogBackend {
	case "", "logrus":
		return aadtoken.NewLogrusLogger(commands), func() {}, nil
	case "zap":
		return zapEngineLogger(cfg, w)
	case "zerolog":
		return zerologEngineLogger(cfg, w)
	default:
		return nil, nil, fmt.Errorf("unknown log backend %q", cfg.LogBackend)
	}
}

func zapEngineLogger(cfg *config.Config, w io.Writer) (aadtoken.Logger, func(), error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level: %w", err)
	}

	encoding := zap.NewProductionEncoderConfig()
	encoding.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	if cfg.LogFormat == "json" {
		encoder = zapcore.NewJSONEncoder(encoding)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoding)
	}

	logger := zap.New(zapcore.NewCore(encoder, zapcore.AddSync(w), level))
	return aadtoken.NewZapLogger(logger.Sugar()), func() { _ = logger.Sync() }, nil
}

func zerologEngineLogger(cfg *config.Config, w io.Writer) (aadtoken.Logger, func(), error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level: %w", err)
	}

	out := w
	if cfg.LogFormat != "json" {
		out = zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: time.RFC3339}
	}
	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return aadtoken.NewZerologLogger(logger), func() {}, nil
}
