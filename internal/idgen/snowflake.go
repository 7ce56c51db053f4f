// Package idgen is a simplified "Snowflake" generator.
// It creates unique 63-bit IDs that are roughly time-sortable, so the
// database never has to hand out sequence values.
// https://en.wikipedia.org/wiki/Snowflake_ID
package idgen

import (
	"errors"
	"sync"
	"time"
)

const (
	customEpoch int64 = 1704067200000 // Jan 1, 2024
	nodeIDBits  uint  = 10
	seqBits     uint  = 12
	MaxNodeID   int64 = -1 ^ (-1 << nodeIDBits)
	maxSeq      int64 = -1 ^ (-1 << seqBits)
)

var ErrInvalidNodeID = errors.New("node id out of range")

type Generator struct {
	mu        sync.Mutex
	lastStamp int64
	nodeID    int64
	seq       int64
	now       func() time.Time
	sleep     func(time.Duration)
}

func New(nodeID int64) (*Generator, error) {
	return NewWithClock(nodeID, time.Now)
}

func NewWithClock(nodeID int64, now func() time.Time) (*Generator, error) {
	if nodeID < 0 || nodeID > MaxNodeID {
		return nil, ErrInvalidNodeID
	}
	return &Generator{nodeID: nodeID, now: now, sleep: time.Sleep}, nil
}

func (g *Generator) NextID() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := g.now().UnixMilli()
	if ts < g.lastStamp {
		// Clock went backwards, wait
		ts = g.wait()
	}
	if ts == g.lastStamp {
		g.seq = (g.seq + 1) & maxSeq
		if g.seq == 0 {
			ts = g.wait()
		}
	} else {
		g.seq = 0
	}
	g.lastStamp = ts

	return ((ts - customEpoch) << (nodeIDBits + seqBits)) |
		(g.nodeID << seqBits) |
		g.seq
}

func (g *Generator) wait() int64 {
	ts := g.now().UnixMilli()
	for ts <= g.lastStamp {
		g.sleep(time.Millisecond)
		ts = g.now().UnixMilli()
	}
	return ts
}

// Decompose splits an id back into its timestamp, node and sequence parts.
func Decompose(id int64) (time.Time, int64, int64) {
	ms := (id >> (nodeIDBits + seqBits)) + customEpoch
	node := (id >> seqBits) & MaxNodeID
	seq := id & maxSeq
	return time.UnixMilli(ms).UTC(), node, seq
}
