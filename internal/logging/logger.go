package logging

import (
	"fmt"

	"github.com/mikey/mailpilot/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName is attached to every log entry
const ServiceName = "mailpilot"

// InitLogger builds the daemon logger from logging.level and logging.format.
// Entries carry service and component fields plus any logging.fields pairs,
// so a shared log pipeline can tell assistant instances apart.
func InitLogger(cfg *config.Config) (*zap.Logger, error) {
	fields := map[string]string{"component": "daemon"}
	for k, v := range cfg.GetStringMapString("logging.fields") {
		fields[k] = v
	}
	return build(parseLevel(cfg.GetString("logging.level")), cfg.GetString("logging.format") == "json", fields)
}

// InitConsoleLogger builds the operator CLI logger. Decisions go to stdout,
// so this logger writes to stderr only.
func InitConsoleLogger(verbose bool, jsonFormat bool) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	return build(level, jsonFormat, map[string]string{"component": "cli"})
}

func parseLevel(s string) zapcore.Level {
	level, err := zapcore.ParseLevel(s)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}

func build(level zapcore.Level, jsonFormat bool, fields map[string]string) (*zap.Logger, error) {
	var logConfig zap.Config
	if jsonFormat {
		logConfig = zap.NewProductionConfig()
	} else {
		logConfig = zap.NewDevelopmentConfig()
		logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	logConfig.Level = zap.NewAtomicLevelAt(level)
	logConfig.OutputPaths = []string{"stderr"}
	logConfig.InitialFields = map[string]interface{}{"service": ServiceName}
	for k, v := range fields {
		logConfig.InitialFields[k] = v
	}

	logger, err := logConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
