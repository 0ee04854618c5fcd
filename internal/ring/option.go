package ring

import "KoordeDHT/internal/logger"

// Option configures a RoutingTable at construction time.
type Option func(*RoutingTable)

// WithLogger sets the logger used by the RoutingTable.
func WithLogger(l logger.Logger) Option {
	return func(rt *RoutingTable) {
		rt.logger = l
	}
}
