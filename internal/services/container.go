// Package services provides the dependency injection container wiring the
// application together.
package services

import (
	"github.com/sirupsen/logrus"

	"github.com/aniflux/aniflux/internal/cache"
	"github.com/aniflux/aniflux/internal/config"
	"github.com/aniflux/aniflux/internal/discovery"
	"github.com/aniflux/aniflux/internal/history"
	"github.com/aniflux/aniflux/internal/providers"
	"github.com/aniflux/aniflux/internal/resolver"
)

// Container holds all application services for dependency injection.
type Container struct {
	Config    *config.Config
	Logger    *logrus.Logger
	Selector  *providers.Selector
	Discovery *discovery.Discovery
	Cache     *cache.SourceCache
	History   *history.Store
	Engine    *resolver.Engine
}

// Close releases the container's long-lived resources.
func (c *Container) Close() {
	if c.Cache != nil {
		if err := c.Cache.Close(); err != nil {
			c.Logger.WithError(err).Warn("[Container] failed to close cache backend")
		}
	}
	if c.History != nil {
		if err := c.History.Close(); err != nil {
			c.Logger.WithError(err).Warn("[Container] failed to close history store")
		}
	}
}
