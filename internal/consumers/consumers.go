package consumers

import (
	"ai_config/internal/logging"
	"ai_config/internal/providers"
)

var logger = logging.New("consumers")

// ServiceSource hands out the service bound to the current configuration.
// *coordinator.Coordinator satisfies it.
type ServiceSource interface {
	Service() (providers.Service, bool)
}

// current returns the bound service or providers.ErrUnconfigured.
func current(src ServiceSource) (providers.Service, error) {
	svc, ok := src.Service()
	if !ok || svc == nil {
		return nil, providers.ErrUnconfigured
	}
	return svc, nil
}
