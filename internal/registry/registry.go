package registry

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/samber/lo"

	"coursechat/pkg/interfaces"
	"coursechat/pkg/types"
)

// Registry is the in-process group registry: a thread-safe mapping from
// group key to the set of currently attached members. It performs fan-out
// for single-process deployments and serves as the local delivery end of
// the Redis bridge in multi-process ones.
type Registry struct {
	mu     sync.RWMutex
	groups map[types.GroupKey]map[string]interfaces.Member
	log    *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		groups: make(map[types.GroupKey]map[string]interfaces.Member),
		log:    log,
	}
}

// Join attaches a member to a group. Joining twice with the same member id
// leaves the member set unchanged.
func (r *Registry) Join(key types.GroupKey, m interfaces.Member) {
	if m == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	group, exists := r.groups[key]
	if !exists {
		group = make(map[string]interfaces.Member)
		r.groups[key] = group
	}
	group[m.ID()] = m
}

// Leave detaches a member from a group. Leaving a group the member never
// joined is a no-op; empty groups are removed to keep the map bounded by
// live membership.
func (r *Registry) Leave(key types.GroupKey, m interfaces.Member) {
	if m == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	group, exists := r.groups[key]
	if !exists {
		return
	}
	delete(group, m.ID())
	if len(group) == 0 {
		delete(r.groups, key)
	}
}

// Publish delivers the payload to every member joined to the group at the
// moment of the call. Delivery is best-effort and at-most-once per member;
// a member whose send queue cannot accept the frame is dropped and closed
// rather than blocking the publisher or its peers.
func (r *Registry) Publish(key types.GroupKey, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.log.Error("failed to marshal publish payload", "group", string(key), "error", err)
		return
	}
	r.fanout(key, data)
}

// fanout delivers a pre-encoded frame to the group's current members.
func (r *Registry) fanout(key types.GroupKey, data []byte) {
	r.mu.RLock()
	members := lo.Values(r.groups[key])
	r.mu.RUnlock()

	for _, m := range members {
		if err := m.Deliver(data); err != nil {
			r.log.Warn("dropping slow or closed group member",
				"group", string(key), "member", m.ID(), "error", err)
			r.Leave(key, m)
			_ = m.Close()
		}
	}
}

// MemberCount returns the number of members currently joined to a group.
func (r *Registry) MemberCount(key types.GroupKey) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups[key])
}

// Stats returns registry counters for the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := lo.SumBy(lo.Values(r.groups), func(g map[string]interfaces.Member) int {
		return len(g)
	})

	return map[string]int{
		"groups":  len(r.groups),
		"members": total,
	}
}
