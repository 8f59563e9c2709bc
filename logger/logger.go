// Package logger builds zap-backed loggers conforming to types.Logger, with
// log rotation via lumberjack and a JSON or console encoder chosen by
// config.App.Logger.
package logger

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/forbearing/sqlwhitelist/config"
	"github.com/forbearing/sqlwhitelist/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Runtime is the tenant runtime's logger, populated by Init.
var Runtime types.Logger

// Session is the session core's logger, populated by Init.
var Session types.Logger

// Compiler is the whitelist compiler CLI's logger, populated by Init.
var Compiler types.Logger

// Init wires the package-level named loggers from config.App.Logger.
func Init() error {
	Runtime = New("runtime.log")
	Session = New("session.log")
	Compiler = New("compiler.log")
	return nil
}

// zapLogger adapts *zap.SugaredLogger to types.Logger.
type zapLogger struct {
	s *zap.SugaredLogger
}

// New builds a types.Logger writing to filename under config.App.Dir, or to
// stdout when filename is "/dev/stdout" (empty filename also goes to
// stdout, since that is the most useful default for tests and short-lived
// CLI invocations).
func New(filename string) types.Logger {
	core := zapcore.NewCore(newEncoder(), newWriter(filename), newLevel())
	zlog := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.FatalLevel))
	return &zapLogger{s: zlog.Sugar()}
}

func (l *zapLogger) Debugw(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
func (l *zapLogger) Infow(msg string, kv ...any)  { l.s.Infow(msg, kv...) }
func (l *zapLogger) Warnw(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
func (l *zapLogger) Errorw(msg string, kv ...any) { l.s.Errorw(msg, kv...) }
func (l *zapLogger) Sync() error                  { return l.s.Sync() }

func newWriter(filename string) zapcore.WriteSyncer {
	switch strings.TrimSpace(filename) {
	case "", "/dev/stdout":
		return zapcore.AddSync(os.Stdout)
	case "/dev/stderr":
		return zapcore.AddSync(os.Stderr)
	default:
		dir := config.App.Dir
		if dir == "" {
			dir = "."
		}
		return zapcore.AddSync(&lumberjack.Logger{
			Filename:   filepath.Join(dir, filename),
			MaxAge:     config.App.Logger.MaxAge,
			MaxSize:    config.App.Logger.MaxSize,
			MaxBackups: config.App.Logger.MaxBackups,
			LocalTime:  true,
		})
	}
}

func newLevel() zapcore.Level {
	level := config.App.Logger.Level
	if level == "" {
		return zapcore.InfoLevel
	}
	var parsed zapcore.Level
	if err := parsed.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel
	}
	return parsed
}

func newEncoder() zapcore.Encoder {
	encConfig := zap.NewProductionEncoderConfig()
	encConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	switch strings.ToLower(config.App.Logger.Encoder) {
	case "text", "console":
		return zapcore.NewConsoleEncoder(encConfig)
	default:
		return zapcore.NewJSONEncoder(encConfig)
	}
}
