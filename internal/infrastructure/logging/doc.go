// Package logging wraps log/slog for Passage Core.
//
// Every logger carries service and version attributes, filters by the
// configured level, and writes JSON (production) or text (development)
// to stdout, stderr, or a file:
//
//	logging:
//	  level: info     # debug, info, warn, error
//	  format: json    # json or text
//	  output: stdout  # stdout, stderr, or a file path
//
//	log := logging.New(cfg.Logging, version)
//	log.Info("server started", "port", 8090)
//
// Never log secrets, tokens, raw credentials, or biometric payloads.
// Guest credential values in particular must never reach the log stream;
// log the credential hash prefix if correlation is needed.
package logging
