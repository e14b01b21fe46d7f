// Package store is the in-memory aggregate traffic store: a sharded map from
// flow key to flow counters.
package store

import (
	"log"
	"sort"
	"sync"
	"time"

	"NetSpeedMonitor/internal/model"
)

const defaultShardCount = 64

// Shard is a part of a sharded map, containing its own map and a mutex.
type Shard struct {
	flows map[model.FlowKey]*model.PacketFlow
	mu    sync.RWMutex
}

// Store performs per-flow aggregation using a sharded map. It implements
// model.Store.
type Store struct {
	shards     []*Shard
	shardCount uint32
	now        func() time.Time
}

// New creates a new store with numShards shards.
func New(numShards uint32) *Store {
	if numShards == 0 || numShards >= 32768 {
		numShards = defaultShardCount
	}
	s := &Store{
		shards:     make([]*Shard, numShards),
		shardCount: numShards,
		now:        time.Now,
	}
	for i := range s.shards {
		s.shards[i] = &Shard{flows: make(map[model.FlowKey]*model.PacketFlow)}
	}
	return s
}

// LookupOrCreate returns the live flow for key, registering a new one on
// first use. At most one flow object exists per key.
func (s *Store) LookupOrCreate(key model.FlowKey) *model.PacketFlow {
	shard := s.getShard(key)

	shard.mu.RLock()
	flow, ok := shard.flows[key]
	shard.mu.RUnlock()
	if ok {
		return flow
	}

	shard.mu.Lock()
	defer shard.mu.Unlock()
	if flow, ok := shard.flows[key]; ok {
		return flow
	}
	flow = model.NewPacketFlow(key, s.now())
	shard.flows[key] = flow
	return flow
}

// Increment accounts one packet of bytes in direction dir.
func (s *Store) Increment(flow *model.PacketFlow, dir model.Direction, bytes int) {
	flow.Add(dir, bytes, s.now())
}

// Get returns a copy of the flow for key.
func (s *Store) Get(key model.FlowKey) (model.FlowRecord, bool) {
	shard := s.getShard(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	if flow, ok := shard.flows[key]; ok {
		return flow.Record(), true
	}
	return model.FlowRecord{}, false
}

// Len returns the number of live flows.
func (s *Store) Len() int {
	count := 0
	for _, shard := range s.shards {
		shard.mu.RLock()
		count += len(shard.flows)
		shard.mu.RUnlock()
	}
	return count
}

// Snapshot returns a copy of every flow, ordered by total bytes descending.
func (s *Store) Snapshot() *model.Snapshot {
	snap := &model.Snapshot{TakenAt: s.now()}
	for _, shard := range s.shards {
		shard.mu.RLock()
		for _, flow := range shard.flows {
			snap.Flows = append(snap.Flows, flow.Record())
		}
		shard.mu.RUnlock()
	}
	sort.Slice(snap.Flows, func(i, j int) bool {
		return snap.Flows[i].TotalBytes() > snap.Flows[j].TotalBytes()
	})
	return snap
}

// Evict removes flows that have seen no packet for longer than idle and
// returns how many were removed. A packet racing with eviction may be
// counted into a flow that is being dropped.
func (s *Store) Evict(idle time.Duration) int {
	if idle <= 0 {
		return 0
	}
	cutoff := s.now().Add(-idle)
	removed := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		for key, flow := range shard.flows {
			if flow.LastSeen().Before(cutoff) {
				delete(shard.flows, key)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	if removed > 0 {
		log.Printf("Store: evicted %d flows idle for more than %s", removed, idle)
	}
	return removed
}

// Reset clears every shard.
func (s *Store) Reset() {
	for _, shard := range s.shards {
		shard.mu.Lock()
		shard.flows = make(map[model.FlowKey]*model.PacketFlow)
		shard.mu.Unlock()
	}
}

// getShard returns the appropriate shard for a given key using FNV-1a over
// the key's fields.
func (s *Store) getShard(key model.FlowKey) *Shard {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	h := uint32(offset32)
	mix := func(b byte) {
		h ^= uint32(b)
		h *= prime32
	}
	local := key.LocalIP.As16()
	remote := key.RemoteIP.As16()
	for i := 12; i < 16; i++ {
		mix(local[i])
		mix(remote[i])
	}
	mix(byte(key.LocalPort >> 8))
	mix(byte(key.LocalPort))
	mix(byte(key.RemotePort >> 8))
	mix(byte(key.RemotePort))
	mix(byte(key.Protocol))
	return s.shards[h%s.shardCount]
}

var _ model.Store = (*Store)(nil)
