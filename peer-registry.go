package pkgdist

import (
	"cmp"
	"sort"
	"time"

	"github.com/anacrolix/multiless"
	"github.com/anacrolix/sync"
	"github.com/cespare/xxhash"
	"github.com/google/btree"
)

type registryItem struct {
	addr string
	peer *Peer
}

func registryItemLess(l, r registryItem) bool {
	return l.addr < r.addr
}

// Known peers ordered by address. Safe for concurrent use.
type PeerRegistry struct {
	mu     sync.Mutex
	policy PeerPolicy
	peers  *btree.BTreeG[registryItem]
	// Keeps candidate tiebreaks stable per registry but unpredictable between them.
	salt [8]byte
}

func NewPeerRegistry(policy PeerPolicy) *PeerRegistry {
	ret := &PeerRegistry{
		policy: policy,
		peers:  btree.NewG(8, registryItemLess),
	}
	for i := range ret.salt {
		ret.salt[i] = byte(globalRand{}.IntN(256))
	}
	return ret
}

// Returns the peer for the address, adding it if it's new.
func (me *PeerRegistry) GetOrAdd(addr string) (p *Peer, added bool) {
	me.mu.Lock()
	defer me.mu.Unlock()
	item, ok := me.peers.Get(registryItem{addr: addr})
	if ok {
		return item.peer, false
	}
	p = NewPeer(addr, me.policy)
	me.peers.ReplaceOrInsert(registryItem{addr, p})
	return p, true
}

func (me *PeerRegistry) Get(addr string) (*Peer, bool) {
	me.mu.Lock()
	defer me.mu.Unlock()
	item, ok := me.peers.Get(registryItem{addr: addr})
	return item.peer, ok
}

func (me *PeerRegistry) Len() int {
	me.mu.Lock()
	defer me.mu.Unlock()
	return me.peers.Len()
}

// Calls f with peers in address order until it returns false. The registry is locked throughout.
func (me *PeerRegistry) Each(f func(*Peer) bool) {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.peers.Ascend(func(item registryItem) bool {
		return f(item.peer)
	})
}

// Removes peers that should be evicted, returning their addresses.
func (me *PeerRegistry) EvictStale() (evicted []string) {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.peers.Ascend(func(item registryItem) bool {
		if item.peer.Health.ShouldEvict() {
			evicted = append(evicted, item.addr)
		}
		return true
	})
	for _, addr := range evicted {
		me.peers.Delete(registryItem{addr: addr})
	}
	peersEvicted.Add(float64(len(evicted)))
	return
}

type candidateKey struct {
	peer        *Peer
	failures    int
	lastSuccess int64
	hash        uint64
}

func unixNanoOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func (me *PeerRegistry) addrHash(addr string) uint64 {
	h := xxhash.New()
	h.Write(me.salt[:])
	h.Write([]byte(addr))
	return h.Sum64()
}

// Up to n usable peers, best first: fewest consecutive failures, then most recent outgoing
// success. Ties are spread by a salted address hash. Whether the peer has a slot free is left to
// the caller.
func (me *PeerRegistry) Candidates(n int) []*Peer {
	me.mu.Lock()
	var keys []candidateKey
	me.peers.Ascend(func(item registryItem) bool {
		h := item.peer.Health
		if !h.Usable() {
			return true
		}
		keys = append(keys, candidateKey{
			peer:        item.peer,
			failures:    h.Failures(),
			lastSuccess: unixNanoOrZero(h.LastSuccess(Outgoing)),
			hash:        me.addrHash(item.addr),
		})
		return true
	})
	me.mu.Unlock()
	sort.Slice(keys, func(i, j int) bool {
		l, r := &keys[i], &keys[j]
		return multiless.New().Int(
			l.failures, r.failures).Int64(
			r.lastSuccess, l.lastSuccess).Cmp(
			cmp.Compare(l.hash, r.hash),
		).Less()
	})
	ret := make([]*Peer, 0, min(n, len(keys)))
	for _, k := range keys[:min(n, len(keys))] {
		ret = append(ret, k.peer)
	}
	return ret
}
