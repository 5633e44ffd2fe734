// Package logging provides structured logging for keelhaul.
//
// This package wraps zap logger with convenience functions for the logging
// patterns used throughout the tool. Logging is silent by default so that
// console traffic and command output stay readable; set KEELHAUL_LOG_LEVEL
// to enable it.
//
// # Log Levels
//
// The package supports standard log levels:
//   - Debug: Detailed debugging info (raw console bytes, prompt detection)
//   - Info: Normal operations (inspection progress, payload deployment)
//   - Warn: Non-fatal issues (missing cache-flush commands, retries)
//   - Error: Fatal issues (transport loss, unrecoverable console state)
//
// # Structured Logging
//
// All log functions use structured fields for queryability:
//
//	logging.Info("Register reader selected",
//	    zap.String("reader", "md-crash"),
//	    zap.String("register", "sp"),
//	)
//
// # Specialized Logging
//
// The package provides domain-specific logging functions:
//
//	logging.LogCommand("md.l 0x87800000 10")
//	logging.LogResponse(cmd, response, succeeded)
//	logging.LogRawBytes("console read", data)
//
// # Configuration
//
// Initialize logging at process startup:
//
//	if err := logging.InitializeFromEnv(); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. The underlying zap logger
// handles synchronization automatically.
package logging
