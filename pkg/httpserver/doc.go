// Package httpserver wraps http.Server with context-driven graceful
// shutdown and readiness probes, so the binaries share one serving
// lifecycle instead of each reimplementing signal handling.
package httpserver
