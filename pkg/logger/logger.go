package logger

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/bitechdev/StrapiSpec/pkg/errortracking"
)

var Logger *zap.SugaredLogger
var errorTracker errortracking.Provider

// Init builds a development (console) or production (JSON) logger writing to stderr
func Init(dev bool) {
	cfg := zap.NewProductionConfig()
	if dev {
		cfg = zap.NewDevelopmentConfig()
	}
	UpdateLogger(&cfg)
}

// UpdateLoggerPath redirects the log output to path
func UpdateLoggerPath(path string, dev bool) {
	cfg := zap.NewProductionConfig()
	if dev {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{path}
	UpdateLogger(&cfg)
}

// UpdateLogger replaces the global logger. A nil config logs to strapispec.log.
func UpdateLogger(config *zap.Config) {
	if config == nil {
		defaultConfig := zap.NewProductionConfig()
		defaultConfig.OutputPaths = []string{"strapispec.log"}
		config = &defaultConfig
	}

	logger, err := config.Build()
	if err != nil {
		log.Print(err)
		return
	}

	Logger = logger.Sugar()
	Info("StrapiSpec logger initialized")
}

// Sync flushes buffered log entries
func Sync() error {
	if Logger == nil {
		return nil
	}
	return Logger.Sync()
}

// InitErrorTracking routes warnings, errors and panics to provider
func InitErrorTracking(provider errortracking.Provider) {
	errorTracker = provider
	if errorTracker != nil {
		Info("Error tracking initialized")
	}
}

// GetErrorTracker returns the current error tracking provider
func GetErrorTracker() errortracking.Provider {
	return errorTracker
}

// CloseErrorTracking flushes and closes the error tracking provider
func CloseErrorTracking() error {
	if errorTracker != nil {
		errorTracker.Flush(5)
		return errorTracker.Close()
	}
	return nil
}

func Info(template string, args ...interface{}) {
	if Logger == nil {
		log.Printf(template, args...)
		return
	}
	Logger.Infow(fmt.Sprintf(template, args...), "process_id", os.Getpid())
}

func Warn(template string, args ...interface{}) {
	message := fmt.Sprintf(template, args...)
	if Logger == nil {
		log.Printf("%s", message)
	} else {
		Logger.Warnw(message, "process_id", os.Getpid())
	}

	if errorTracker != nil {
		errorTracker.CaptureMessage(context.Background(), message, errortracking.SeverityWarning, map[string]interface{}{
			"process_id": os.Getpid(),
		})
	}
}

func Error(template string, args ...interface{}) {
	message := fmt.Sprintf(template, args...)
	if Logger == nil {
		log.Printf("%s", message)
	} else {
		Logger.Errorw(message, "process_id", os.Getpid())
	}

	if errorTracker != nil {
		errorTracker.CaptureMessage(context.Background(), message, errortracking.SeverityError, map[string]interface{}{
			"process_id": os.Getpid(),
		})
	}
}

func Debug(template string, args ...interface{}) {
	if Logger == nil {
		log.Printf(template, args...)
		return
	}
	Logger.Debugw(fmt.Sprintf(template, args...), "process_id", os.Getpid())
}

// CaptureError logs err and reports it with structured context, e.g. the session
// and collection a failed Strapi call belonged to
func CaptureError(ctx context.Context, err error, extra map[string]interface{}) {
	if err == nil {
		return
	}
	if Logger == nil {
		log.Printf("%v %v", err, extra)
	} else {
		kv := make([]interface{}, 0, len(extra)*2+2)
		for k, v := range extra {
			kv = append(kv, k, v)
		}
		kv = append(kv, "process_id", os.Getpid())
		Logger.Errorw(err.Error(), kv...)
	}

	if errorTracker != nil {
		errorTracker.CaptureError(ctx, err, errortracking.SeverityError, extra)
	}
}

// CatchPanicCallback recovers a panic, reports it and hands it to cb.
// Must be called directly by defer.
func CatchPanicCallback(location string, cb func(err any)) {
	if err := recover(); err != nil {
		callstack := debug.Stack()

		if Logger != nil {
			Error("Panic in %s : %v", location, err)
		} else {
			fmt.Printf("%s:PANIC->%+v", location, err)
			debug.PrintStack()
		}

		if errorTracker != nil {
			errorTracker.CapturePanic(context.Background(), err, callstack, map[string]interface{}{
				"location":   location,
				"process_id": os.Getpid(),
			})
		}

		if cb != nil {
			cb(err)
		}
	}
}

// CatchPanic recovers and reports a panic. Must be called directly by defer.
func CatchPanic(location string) {
	CatchPanicCallback(location, nil)
}

// HandlePanic logs the value returned by recover() and converts it into an error:
//
//	defer func() {
//	    if r := recover(); r != nil {
//	        err = logger.HandlePanic(ctx, "Execute", r)
//	    }
//	}()
func HandlePanic(ctx context.Context, methodName string, r any) error {
	stack := debug.Stack()
	Error("Panic in %s: %v\nStack trace:\n%s", methodName, r, string(stack))

	if errorTracker != nil {
		errorTracker.CapturePanic(ctx, r, stack, map[string]interface{}{
			"method":     methodName,
			"process_id": os.Getpid(),
		})
	}

	return fmt.Errorf("panic in %s: %v", methodName, r)
}
