package logging

import "go.uber.org/zap"

// New constructs the process logger. Production uses the JSON encoder
// and info level; anything else gets the development console encoder.
func New(production bool) (*zap.Logger, error) {
	if production {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
