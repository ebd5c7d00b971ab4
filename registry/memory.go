package registry

import (
	"sync"
	"time"
)

// MemoryRegistry is the in-process directory: single binary, several
// channels, no external store. TTLs are honored with timers so expiry
// behavior matches the etcd implementation.
type MemoryRegistry struct {
	mu       sync.Mutex
	channels map[string]*ChannelInfo
	expiry   map[string]*time.Timer
	watchers map[string][]chan *ChannelInfo
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		channels: make(map[string]*ChannelInfo),
		expiry:   make(map[string]*time.Timer),
		watchers: make(map[string][]chan *ChannelInfo),
	}
}

func (r *MemoryRegistry) Register(channelID string, info ChannelInfo, ttl int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := info
	r.channels[channelID] = &copied
	if t, ok := r.expiry[channelID]; ok {
		t.Stop()
		delete(r.expiry, channelID)
	}
	if ttl > 0 {
		r.expiry[channelID] = time.AfterFunc(time.Duration(ttl)*time.Second, func() {
			r.remove(channelID)
		})
	}
	r.notifyLocked(channelID, &copied)
	return nil
}

func (r *MemoryRegistry) Deregister(channelID string) error {
	r.remove(channelID)
	return nil
}

func (r *MemoryRegistry) remove(channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.expiry[channelID]; ok {
		t.Stop()
		delete(r.expiry, channelID)
	}
	if _, ok := r.channels[channelID]; !ok {
		return
	}
	delete(r.channels, channelID)
	r.notifyLocked(channelID, nil)
}

func (r *MemoryRegistry) Discover(channelID string) (*ChannelInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.channels[channelID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *info
	return &copied, nil
}

func (r *MemoryRegistry) Watch(channelID string) <-chan *ChannelInfo {
	ch := make(chan *ChannelInfo, 4)
	r.mu.Lock()
	r.watchers[channelID] = append(r.watchers[channelID], ch)
	r.mu.Unlock()
	return ch
}

func (r *MemoryRegistry) notifyLocked(channelID string, info *ChannelInfo) {
	for _, ch := range r.watchers[channelID] {
		select {
		case ch <- info:
		default:
			// A watcher that stopped draining misses updates rather than
			// blocking registration.
		}
	}
}
