// Package logger provides structured logging capabilities.
//
// Loggers are built from the logging section of the configuration. The
// development mode prints colored console lines; production writes JSON with
// an ISO8601 "timestamp" key. Both write to stderr and tag every entry with
// service=runbox.
//
// Usage:
//
//	log, err := logger.New("production", "info")
//	if err != nil {
//	    panic(err)
//	}
//	log.Info("sandbox run completed", zap.Int("output_len", 42))
package logger
