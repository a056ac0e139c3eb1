// Package logging provides structured logging for the conveyor core.
//
// It wraps log/slog so every component emits the same shape of record:
// JSON in production, text on a bench, with service and version attached.
//
// Configuration lives in the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Library packages do not import this package. They declare a small Logger
// interface and *Logger satisfies it.
//
// Never log operator PINs or tokens.
package logging
