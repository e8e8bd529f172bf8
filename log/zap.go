package log

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Zap backs the Logger interface with a structured zap.Logger. Tags set
// through With are flattened into zap.Any fields at call time.
type Zap struct {
	z    *zap.Logger
	Tags []interface{}
}

// NewZap builds a Zap logger writing JSON lines to stdout, or to file if
// file is non-empty, rotated through lumberjack.
func NewZap(level string, file string) (*Zap, error) {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder

	var ws zapcore.WriteSyncer
	if file != "" {
		ws = zapcore.AddSync(&lumberjack.Logger{
			Filename:   file,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		})
	} else {
		ws = zapcore.AddSync(os.Stdout)
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), ws, levelOf(level))
	return &Zap{z: zap.New(core, zap.AddCaller())}, nil
}

func (l *Zap) Debug(m string, s ...interface{}) { l.log(zapcore.DebugLevel, m, s) }
func (l *Zap) Error(m string, s ...interface{}) { l.log(zapcore.ErrorLevel, m, s) }
func (l *Zap) Crit(m string, s ...interface{})  { l.log(zapcore.DPanicLevel, m, s) }

func (l *Zap) With(tags ...interface{}) Logger {
	t := make([]interface{}, 0, len(tags)+len(l.Tags))
	t = append(t, tags...)
	t = append(t, l.Tags...)
	return &Zap{z: l.z, Tags: t}
}

func (l *Zap) log(lvl zapcore.Level, msg string, kv []interface{}) {
	all := make([]interface{}, 0, len(kv)+len(l.Tags))
	all = append(all, kv...)
	all = append(all, l.Tags...)
	fields := make([]zap.Field, 0, len(all)/2)
	for i := 0; i+1 < len(all); i += 2 {
		key, ok := all[i].(string)
		if !ok {
			key = fmt.Sprint(all[i])
		}
		fields = append(fields, zap.Any(key, all[i+1]))
	}
	if ce := l.z.Check(lvl, msg); ce != nil {
		ce.Write(fields...)
	}
}

func levelOf(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
