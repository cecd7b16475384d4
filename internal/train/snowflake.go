package train

import (
	"sync"
	"time"
)

// IDProvider issues globally unique, time-ordered session identifiers.
type IDProvider interface {
	NewID() (int64, error)
}

// snowflake layout: 41 bits of milliseconds since epoch, 10 bits of node id,
// 12 bits of per-millisecond sequence.
const (
	snowflakeEpochMillis = int64(1577836800000) // 2020-01-01T00:00:00Z
	snowflakeNodeBits    = 10
	snowflakeSeqBits     = 12
	snowflakeNodeMask    = (1 << snowflakeNodeBits) - 1
	snowflakeSeqMask     = (1 << snowflakeSeqBits) - 1
)

type snowflakeProvider struct {
	mu       sync.Mutex
	node     int64
	clock    func() time.Time
	lastTime int64
	sequence int64
}

// NewSnowflakeProvider constructs an IDProvider bound to a node id.
func NewSnowflakeProvider(node int64) IDProvider {
	return &snowflakeProvider{node: node & snowflakeNodeMask, clock: time.Now}
}

func (p *snowflakeProvider) NewID() (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock().UnixMilli() - snowflakeEpochMillis
	if now == p.lastTime {
		p.sequence = (p.sequence + 1) & snowflakeSeqMask
		if p.sequence == 0 {
			for now <= p.lastTime {
				now = p.clock().UnixMilli() - snowflakeEpochMillis
			}
		}
	} else {
		p.sequence = 0
	}
	p.lastTime = now

	id := now<<(snowflakeNodeBits+snowflakeSeqBits) | p.node<<snowflakeSeqBits | p.sequence
	return id, nil
}
