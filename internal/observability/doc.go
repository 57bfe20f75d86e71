// Package observability provides structured logging and Prometheus metrics
// for the portal gateway.
//
// Loggers are zap loggers built from LOG_LEVEL and LOG_FORMAT. Metrics live in
// a per-process registry exposed on /metrics, labelled with the portal name.
// Credentials never appear in either; TokenFingerprint gives a stable short
// identifier when a log line needs to correlate a token.
package observability
