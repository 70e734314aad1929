// Package memory provides an in-process SignalBus for single-instance runs
// without Redis.
package memory

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/alanyoungcy/bookmap/internal/domain"
)

const subscriberBuffer = 128

type subscriber struct {
	pattern string
	ch      chan []byte
}

// Bus implements domain.SignalBus in memory. Publish never blocks: slow
// subscribers miss messages. Streams keep at most maxLen entries.
type Bus struct {
	mu      sync.Mutex
	subs    map[*subscriber]struct{}
	streams map[string][]domain.StreamMessage
	seq     int64
	maxLen  int
	wake    chan struct{}
}

// NewBus creates an empty Bus.
func NewBus(maxLen int) *Bus {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &Bus{
		subs:    make(map[*subscriber]struct{}),
		streams: make(map[string][]domain.StreamMessage),
		maxLen:  maxLen,
		wake:    make(chan struct{}),
	}
}

// Publish delivers payload to every subscriber whose pattern matches channel.
func (b *Bus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		if ok, _ := path.Match(s.pattern, channel); !ok {
			continue
		}
		select {
		case s.ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel for channel, which may be a glob pattern. It
// is closed when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	if _, err := path.Match(channel, ""); err != nil {
		return nil, fmt.Errorf("memory: subscribe %s: %w", channel, err)
	}
	s := &subscriber{pattern: channel, ch: make(chan []byte, subscriberBuffer)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, s)
		close(s.ch)
		b.mu.Unlock()
	}()
	return s.ch, nil
}

// StreamAppend appends payload to stream.
func (b *Bus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	id := strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + strconv.FormatInt(b.seq, 10)
	msgs := append(b.streams[stream], domain.StreamMessage{ID: id, Payload: payload})
	if len(msgs) > b.maxLen {
		msgs = msgs[len(msgs)-b.maxLen:]
	}
	b.streams[stream] = msgs
	close(b.wake)
	b.wake = make(chan struct{})
	return nil
}

// StreamRead returns up to count entries after lastID, waiting up to block
// for new ones. "$" means only entries appended after the call.
func (b *Bus) StreamRead(ctx context.Context, stream string, lastID string, count int, block time.Duration) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	if lastID == "$" {
		if msgs := b.streams[stream]; len(msgs) > 0 {
			lastID = msgs[len(msgs)-1].ID
		} else {
			lastID = "0-0"
		}
	}
	out := b.after(stream, lastID, count)
	wake := b.wake
	b.mu.Unlock()

	if len(out) > 0 || block <= 0 {
		return out, nil
	}
	timer := time.NewTimer(block)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case <-wake:
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.after(stream, lastID, count), nil
}

// after returns entries with ids greater than lastID. The caller must hold b.mu.
func (b *Bus) after(stream, lastID string, count int) []domain.StreamMessage {
	var out []domain.StreamMessage
	for _, m := range b.streams[stream] {
		if !idAfter(m.ID, lastID) {
			continue
		}
		out = append(out, m)
		if count > 0 && len(out) == count {
			break
		}
	}
	return out
}

// idAfter compares "<ms>-<seq>" stream ids.
func idAfter(id, ref string) bool {
	ims, iseq := splitID(id)
	rms, rseq := splitID(ref)
	if ims != rms {
		return ims > rms
	}
	return iseq > rseq
}

func splitID(id string) (int64, int64) {
	for i := 0; i < len(id); i++ {
		if id[i] == '-' {
			ms, _ := strconv.ParseInt(id[:i], 10, 64)
			seq, _ := strconv.ParseInt(id[i+1:], 10, 64)
			return ms, seq
		}
	}
	ms, _ := strconv.ParseInt(id, 10, 64)
	return ms, 0
}

var _ domain.SignalBus = (*Bus)(nil)
