package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	log   = logrus.New()
	logMu sync.RWMutex
)

// Init configures the process logger. Production gets JSON at info level,
// everything else gets text at debug level. When file is set, output is
// duplicated into a rotated log file.
func Init(env, level, file string) {
	l := logrus.New()

	if env == "production" {
		l.SetFormatter(&logrus.JSONFormatter{})
		l.SetLevel(logrus.InfoLevel)
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		l.SetLevel(logrus.DebugLevel)
	}

	if level != "" {
		if lvl, err := logrus.ParseLevel(level); err == nil {
			l.SetLevel(lvl)
		}
	}

	var out io.Writer = os.Stdout
	if file != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		})
	}
	l.SetOutput(out)

	logMu.Lock()
	log = l
	logMu.Unlock()
}

// SetOutput redirects the logger, mostly for tests.
func SetOutput(w io.Writer) {
	logMu.Lock()
	defer logMu.Unlock()
	log.SetOutput(w)
}

func current() *logrus.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return log
}

func Debug(msg string, args ...any) {
	current().WithFields(fieldsFromArgs(args)).Debug(msg)
}

func Info(msg string, args ...any) {
	current().WithFields(fieldsFromArgs(args)).Info(msg)
}

func Warn(msg string, args ...any) {
	current().WithFields(fieldsFromArgs(args)).Warn(msg)
}

func Error(msg string, args ...any) {
	current().WithFields(fieldsFromArgs(args)).Error(msg)
}

func Fatal(msg string, args ...any) {
	current().WithFields(fieldsFromArgs(args)).Fatal(msg)
}

// InfoCtx and friends attach the trace id carried by ctx.
func InfoCtx(ctx context.Context, msg string, args ...any) {
	current().WithFields(withTrace(ctx, fieldsFromArgs(args))).Info(msg)
}

func WarnCtx(ctx context.Context, msg string, args ...any) {
	current().WithFields(withTrace(ctx, fieldsFromArgs(args))).Warn(msg)
}

func ErrorCtx(ctx context.Context, msg string, args ...any) {
	current().WithFields(withTrace(ctx, fieldsFromArgs(args))).Error(msg)
}

func withTrace(ctx context.Context, fields logrus.Fields) logrus.Fields {
	if tid := TraceIDFromContext(ctx); tid != "" {
		fields["trace_id"] = tid
	}
	return fields
}

// fieldsFromArgs accepts both the key/value style ("flow_id", 3) and a bare
// error, which is what most call sites pass.
func fieldsFromArgs(args []any) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i < len(args); i++ {
		switch v := args[i].(type) {
		case error:
			fields[logrus.ErrorKey] = v.Error()
		case string:
			if i+1 < len(args) {
				fields[v] = args[i+1]
				i++
			} else {
				fields["detail"] = v
			}
		default:
			fields[fmt.Sprintf("arg_%d", i)] = v
		}
	}
	return fields
}
