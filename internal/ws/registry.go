package ws

import (
	"sync"

	"github.com/twmb/murmur3"
)

const defaultShards = 32

func RoomChannel(roomID string) string { return "room:" + roomID }
func ChatChannel(chatID string) string { return "chat:" + chatID }

// Registry 记录频道订阅关系。频道按 murmur3 哈希分片加锁，
// 每个连接订阅过的频道单独记录，便于断开时整体清理
type Registry struct {
	shards []*shard

	mu          sync.Mutex
	memberships map[*Client]map[string]struct{}
}

type shard struct {
	mu       sync.RWMutex
	channels map[string]map[*Client]struct{}
}

func NewRegistry(shards int) *Registry {
	if shards <= 0 {
		shards = defaultShards
	}
	r := &Registry{
		shards:      make([]*shard, shards),
		memberships: make(map[*Client]map[string]struct{}),
	}
	for i := range r.shards {
		r.shards[i] = &shard{channels: make(map[string]map[*Client]struct{})}
	}
	return r
}

func (r *Registry) shardFor(channel string) *shard {
	return r.shards[murmur3.StringSum32(channel)%uint32(len(r.shards))]
}

// Subscribe 幂等
func (r *Registry) Subscribe(channel string, c *Client) {
	s := r.shardFor(channel)
	s.mu.Lock()
	members, ok := s.channels[channel]
	if !ok {
		members = make(map[*Client]struct{})
		s.channels[channel] = members
	}
	members[c] = struct{}{}
	s.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	joined, ok := r.memberships[c]
	if !ok {
		joined = make(map[string]struct{})
		r.memberships[c] = joined
	}
	joined[channel] = struct{}{}
}

func (r *Registry) Unsubscribe(channel string, c *Client) {
	r.removeMember(channel, c)

	r.mu.Lock()
	defer r.mu.Unlock()
	if joined, ok := r.memberships[c]; ok {
		delete(joined, channel)
		if len(joined) == 0 {
			delete(r.memberships, c)
		}
	}
}

func (r *Registry) removeMember(channel string, c *Client) {
	s := r.shardFor(channel)
	s.mu.Lock()
	defer s.mu.Unlock()
	if members, ok := s.channels[channel]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(s.channels, channel)
		}
	}
}

// Drop removes c from every channel and returns the channels it was in.
func (r *Registry) Drop(c *Client) []string {
	r.mu.Lock()
	joined := r.memberships[c]
	delete(r.memberships, c)
	r.mu.Unlock()

	channels := make([]string, 0, len(joined))
	for channel := range joined {
		r.removeMember(channel, c)
		channels = append(channels, channel)
	}
	return channels
}

// Close removes a channel with all of its subscribers, e.g. once the chat
// behind it has been deleted.
func (r *Registry) Close(channel string) {
	s := r.shardFor(channel)
	s.mu.Lock()
	members := s.channels[channel]
	delete(s.channels, channel)
	s.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range members {
		if joined, ok := r.memberships[c]; ok {
			delete(joined, channel)
			if len(joined) == 0 {
				delete(r.memberships, c)
			}
		}
	}
}

// Members returns a snapshot of the channel's current subscribers.
func (r *Registry) Members(channel string) []*Client {
	s := r.shardFor(channel)
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := s.channels[channel]
	out := make([]*Client, 0, len(members))
	for c := range members {
		out = append(out, c)
	}
	return out
}

func (r *Registry) IsMember(channel string, c *Client) bool {
	s := r.shardFor(channel)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.channels[channel][c]
	return ok
}

func (r *Registry) Channels(c *Client) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.memberships[c]))
	for channel := range r.memberships[c] {
		out = append(out, channel)
	}
	return out
}
