package observability

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/librosfab/support-service/internal/config"
)

// LoggerOption adjusts the logger built by NewLogger.
type LoggerOption func(*zap.Config)

// WithService tags every entry with the emitting process.
func WithService(name string) LoggerOption {
	return func(c *zap.Config) {
		if name == "" {
			return
		}
		if c.InitialFields == nil {
			c.InitialFields = map[string]any{}
		}
		c.InitialFields["service"] = name
	}
}

// WithOutput replaces stdout as the log sink. CLIs log to stderr so their
// own output stays clean.
func WithOutput(paths ...string) LoggerOption {
	return func(c *zap.Config) {
		c.OutputPaths = paths
	}
}

// NewLogger creates a structured zap.Logger configured via env settings.
// Unknown levels fall back to info, unknown formats to json.
func NewLogger(cfg config.LoggerConfig, opts ...LoggerOption) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	encoding := "json"
	encodeLevel := zapcore.LowercaseLevelEncoder
	if strings.EqualFold(cfg.Format, "console") {
		encoding = "console"
		encodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg := zap.Config{
		Level:    zap.NewAtomicLevelAt(level),
		Encoding: encoding,
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:     "message",
			LevelKey:       "level",
			TimeKey:        "ts",
			CallerKey:      "caller",
			StacktraceKey:  "stacktrace",
			EncodeLevel:    encodeLevel,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	for _, opt := range opts {
		opt(&zapCfg)
	}

	return zapCfg.Build()
}
