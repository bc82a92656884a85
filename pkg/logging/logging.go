// Package logging builds the process logger and keeps credentials out
// of everything it emits.
package logging

import "go.uber.org/zap"

// NewLogger builds the process-wide zap logger. The local environment
// gets the human-readable development encoder; everything else logs
// production JSON.
func NewLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
