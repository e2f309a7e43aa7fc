// Package logging provides the zap logger construction helpers shared by
// the library's functional options and the cmd/timestampd CLI. The hot
// insert/contains path never logs; only construction, Freeze completion,
// and worker failures do.
//
// © 2025 merkle-timestamp authors. MIT License.
package logging

import "go.uber.org/zap"

// Nop returns a logger that discards everything — the default when the
// caller does not supply one via an Option.
func Nop() *zap.Logger {
	return zap.NewNop()
}

// New builds a production or development zap logger depending on debug.
// Development mode writes human-readable, colorized console output;
// production mode writes structured JSON suitable for log aggregation.
func New(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
