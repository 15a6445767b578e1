// Package constants defines application-wide defaults and timing values.
package constants

import "time"

const (
	AppName    = "aniflux"
	AppVersion = "1.2.0"

	// Default configuration values
	DefaultPort     = "4000"
	DefaultLogLevel = "info"

	// Result cache settings
	DefaultCacheTTL = 6 * time.Hour
	CacheKeyPrefix  = "sources"

	// Upstream calls
	DefaultUpstreamTimeout = 12 * time.Second
	UpstreamRateLimit      = 8 // requests per second
	UpstreamRateBurst      = 4

	// Resolution engine
	DefaultRetryDelay  = 400 * time.Millisecond
	FallbackServerName = "iframe"
	DefaultEmbedBase   = "https://megaplay.buzz"

	// Resolution history
	HistoryRetention       = 30 * 24 * time.Hour
	HistoryCleanupInterval = 6 * time.Hour
	DefaultHistoryLimit    = 25
	MaxHistoryLimit        = 200
)

// DefaultServerPriority lists well-known delivery servers, in the order the
// engine tries them when discovery fails or returns nothing.
var DefaultServerPriority = []string{
	"hd-1",
	"hd-2",
	"hd-3",
	"megacloud",
	"streamtape",
}
