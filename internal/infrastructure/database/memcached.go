package database

import (
	"github.com/bradfitz/gomemcache/memcache"
	"github.com/pkg/errors"
)

// NewMemcached connects the unseen-filter cache. The cache is
// best-effort at runtime, but a bad address is a config mistake worth
// failing on at boot.
func NewMemcached(server string) (*memcache.Client, error) {
	mc := memcache.New(server)
	if err := mc.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping memcached")
	}
	return mc, nil
}
