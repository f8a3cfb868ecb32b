package sysdb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyFreshStaleExpired(t *testing.T) {
	now := time.Now()
	r := &Record{CacheExpire: now.Add(10 * time.Minute)}
	window := 2 * time.Minute

	assert.Equal(t, FreshnessFresh, r.Classify(now, window, false))

	r.CacheExpire = now.Add(1 * time.Minute)
	assert.Equal(t, FreshnessStaleButUsable, r.Classify(now, window, false))

	r.CacheExpire = now.Add(-1 * time.Minute)
	assert.Equal(t, FreshnessStale, r.Classify(now, window, false))
}

func TestClassifyUsesInitgroupsExpireWhenRequested(t *testing.T) {
	now := time.Now()
	r := &Record{
		CacheExpire:      now.Add(-1 * time.Hour), // stale for the plain record
		InitgroupsExpire: now.Add(10 * time.Minute),
	}
	assert.Equal(t, FreshnessStale, r.Classify(now, time.Minute, false))
	assert.Equal(t, FreshnessFresh, r.Classify(now, time.Minute, true))
}
