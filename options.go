package squashfs

import (
	log "github.com/sirupsen/logrus"
)

const defaultCacheSizeHint = 64

type openConfig struct {
	followSymlinks bool
	cacheSizeHint  int
	logger         *log.Logger
}

// OpenOption configures a Handle at Open time.
type OpenOption func(*openConfig)

// FollowSymlinks enables transparent symlink resolution during path lookups.
// Off by default.
func FollowSymlinks() OpenOption {
	return func(c *openConfig) { c.followSymlinks = true }
}

// CacheSizeHint sets the initial bucket count of the metadata and fragment
// block caches.
func CacheSizeHint(n int) OpenOption {
	return func(c *openConfig) { c.cacheSizeHint = n }
}

// Logger overrides the logrus logger cache and decode activity is reported to.
func Logger(l *log.Logger) OpenOption {
	return func(c *openConfig) { c.logger = l }
}
