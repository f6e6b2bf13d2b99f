// Package log provides secure logging functionality with automatic sanitization
// of sensitive information, built on top of the standard slog package.
//
// This package extends slog to provide:
//   - Automatic sanitization of sensitive values (cookies, tokens, secrets)
//   - Masking of secret query parameters and passwords in logged URLs
//   - Configurable log levels with verbose mode support
//   - Consistent log formatting across the application
//
// # Security Features
//
// The SecureHandler automatically sanitizes sensitive information in log output:
//   - HTTP headers (Authorization, Cookie, Set-Cookie, X-Api-Key)
//   - Secret values detected by pattern matching (JWTs, bearer tokens, keys)
//   - Session identifiers and authentication tokens
//   - URL query parameters such as token, sig or session, in string values
//     and in error messages that embed a request URL
//
// Even in verbose mode, sensitive values are masked to prevent accidental
// exposure of secrets in logs that may be shared or stored. Crawled links
// are a common source of such secrets, since pages link to signed or
// session-bound URLs.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, true) // verbose=true
//
//	logger.Info("fetching",
//	    "url", "https://example.com/feed?token=abc", // token is masked
//	    "cookie", "session=abc123",                   // masked entirely
//	)
//
//	slog.SetDefault(logger)
package log
