// Package logging wraps Zap for ragstore.
//
// It adds a Trace level below Debug, console and OpenTelemetry outputs,
// redaction of credential-looking keys and values, sampling below error
// level, and correlation fields taken from the context:
//
//	ctx = logging.WithCollection(ctx, "short_term_researcher")
//	logger.Warn(ctx, "search degraded", zap.Error(err))
//
// produces
//
//	{"level":"warn","msg":"search degraded","service":"ragstore",
//	 "trace_id":"...","span_id":"...","collection":"short_term_researcher",...}
//
// Stores and providers take the plain *zap.Logger from Underlying.
// Console output goes to stderr so it never mixes with command results.
package logging
