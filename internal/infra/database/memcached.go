package database

import (
	"github.com/bradfitz/gomemcache/memcache"
)

func NewMemcached(addr string) *memcache.Client {
	return memcache.New(addr)
}
