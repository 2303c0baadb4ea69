// Package api exposes the bot's read-only HTTP surface: a health endpoint
// reporting the stream supervisor state, the recent reply outcomes and the
// Prometheus metrics handler.
package api
