// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"container/list"
	"errors"
	"sync"
	"time"

	"github.com/AleutianAI/DeviceLab/services/host/graph"
)

// Cache errors.
var (
	// ErrEntryNotFound is returned when no cached graph exists for the
	// requested (root tree, team) pair.
	ErrEntryNotFound = errors.New("cache: entry not found")

	// ErrRootNotResolved is returned when the root tree for a tree id
	// cannot be determined.
	ErrRootNotResolved = errors.New("cache: root tree not resolved")
)

const (
	// DefaultMaxAge is how long a cached graph stays valid.
	DefaultMaxAge = 24 * time.Hour

	// DefaultMaxEntries bounds how many hierarchies one host keeps hot.
	DefaultMaxEntries = 64
)

// Options configures a TreeCache.
type Options struct {
	MaxAge     time.Duration
	MaxEntries int
}

// Option mutates Options.
type Option func(*Options)

// WithMaxAge overrides the entry TTL. Zero disables expiry.
func WithMaxAge(d time.Duration) Option {
	return func(o *Options) { o.MaxAge = d }
}

// WithMaxEntries overrides the entry limit.
func WithMaxEntries(n int) Option {
	return func(o *Options) { o.MaxEntries = n }
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{MaxAge: DefaultMaxAge, MaxEntries: DefaultMaxEntries}
}

// cacheKey identifies one cached hierarchy. Teams never share graphs
// even for the same root tree.
type cacheKey struct {
	rootTreeID string
	teamID     string
}

// Entry is one cached unified graph.
//
// Thread Safety:
//
//	The embedded mutex serializes patches against the graph. Readers
//	that only walk the graph take it through WithGraph or hold the
//	returned pointer knowing patches may interleave between calls.
type Entry struct {
	RootTreeID string
	TeamID     string
	Graph      *graph.UnifiedGraph

	BuiltAtMilli int64

	// LastAccessMilli is written by concurrent readers under the
	// cache's RLock; access it atomically.
	LastAccessMilli int64

	mu         sync.Mutex
	lruElement *list.Element
}

// WithGraph runs fn with the entry's patch lock held.
func (e *Entry) WithGraph(fn func(g *graph.UnifiedGraph)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.Graph)
}

// Status is the externally visible state of one cache entry.
type Status struct {
	Cached        bool      `json:"cached"`
	RootTreeID    string    `json:"root_tree_id"`
	TeamID        string    `json:"team_id"`
	NodeCount     int       `json:"node_count"`
	EdgeCount     int       `json:"edge_count"`
	BuiltAt       time.Time `json:"built_at,omitempty"`
	ExpiresAt     time.Time `json:"expires_at,omitempty"`
	TTLSeconds    int64     `json:"ttl_seconds,omitempty"`
	LastAccess    time.Time `json:"last_access,omitempty"`
	StaleInMemory bool      `json:"stale,omitempty"`
}

// Stats are cumulative cache counters.
type Stats struct {
	EntryCount int   `json:"entry_count"`
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Evictions  int64 `json:"evictions"`
	BuildCount int64 `json:"build_count"`
	ErrorCount int64 `json:"error_count"`
}
