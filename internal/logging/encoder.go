package logging

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "component",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeName:     encodeComponent,
	}
}

// newConsoleEncoder renders: ts LEVEL [component] file.go:line msg {fields}
func newConsoleEncoder() zapcore.Encoder {
	return zapcore.NewConsoleEncoder(encoderConfig())
}

func newFileEncoder() zapcore.Encoder {
	cfg := encoderConfig()
	cfg.EncodeName = zapcore.FullNameEncoder
	return zapcore.NewJSONEncoder(cfg)
}

func encodeComponent(name string, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + name + "]")
}

// sanitizeMessage removes control characters except \n and \t to prevent log injection
func sanitizeMessage(msg string) string {
	if strings.IndexFunc(msg, isControl) < 0 {
		return msg
	}
	return strings.Map(func(r rune) rune {
		if isControl(r) {
			return ' '
		}
		return r
	}, msg)
}

func isControl(r rune) bool {
	return r < 0x20 && r != '\n' && r != '\t'
}
