package pkgdist

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	now time.Time
}

func (me *testClock) Now() time.Time {
	return me.now
}

func (me *testClock) advance(d time.Duration) {
	me.now = me.now.Add(d)
}

func testPolicy() (PeerPolicy, *testClock) {
	clock := &testClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	policy := NewDefaultPeerPolicy()
	policy.Now = clock.Now
	return policy, clock
}

func TestOutgoingFailureBacksOff(t *testing.T) {
	policy, clock := testPolicy()
	ph := NewPeerHealth(policy)
	ph.ReportFailure(Outgoing)
	assert.True(t, ph.IgnoreUntil().After(clock.now))
	assert.Equal(t, clock.now.Add(20*time.Second), ph.IgnoreUntil())
	assert.Equal(t, 1, ph.Failures())
	assert.False(t, ph.Usable())

	// Inside the window, reports are ignored.
	ph.ReportSuccess(Outgoing)
	ph.ReportFailure(Outgoing)
	assert.Equal(t, 1, ph.Failures())
	assert.True(t, ph.Ignored())

	clock.advance(20 * time.Second)
	assert.True(t, ph.Usable())
	ph.ReportSuccess(Outgoing)
	assert.Equal(t, 0, ph.Failures())
	assert.True(t, ph.IgnoreUntil().IsZero())
	assert.Equal(t, clock.now, ph.LastSuccess(Outgoing))
}

func TestBackoffIsLinearAndCapped(t *testing.T) {
	policy, clock := testPolicy()
	ph := NewPeerHealth(policy)
	var last time.Duration
	for i := 1; i <= 20; i++ {
		ph.ReportFailure(Outgoing)
		backoff := ph.IgnoreUntil().Sub(clock.now)
		assert.GreaterOrEqual(t, backoff, last)
		assert.Equal(t, min(time.Duration(i)*20*time.Second, 5*time.Minute), backoff)
		last = backoff
		clock.advance(backoff)
	}
	assert.Equal(t, 20, ph.Failures())
}

func TestOtherChannelsOnlyRecordTimes(t *testing.T) {
	policy, clock := testPolicy()
	ph := NewPeerHealth(policy)
	ph.ReportFailure(Incoming)
	ph.ReportFailure(Discovery)
	assert.Equal(t, 0, ph.Failures())
	assert.True(t, ph.Usable())
	assert.Equal(t, clock.now, ph.LastFailure(Incoming))
}

func TestShouldEvict(t *testing.T) {
	for _, ch := range []struct {
		name   string
		report func(*PeerHealth)
	}{
		{"discovery success", func(ph *PeerHealth) { ph.ReportSuccess(Discovery) }},
		{"incoming failure", func(ph *PeerHealth) { ph.ReportFailure(Incoming) }},
		{"incoming success", func(ph *PeerHealth) { ph.ReportSuccess(Incoming) }},
		{"outgoing success", func(ph *PeerHealth) { ph.ReportSuccess(Outgoing) }},
	} {
		t.Run(ch.name, func(t *testing.T) {
			policy, clock := testPolicy()
			ph := NewPeerHealth(policy)
			clock.advance(time.Hour)
			assert.True(t, ph.ShouldEvict())
			ch.report(ph)
			assert.False(t, ph.ShouldEvict())
			clock.advance(9 * time.Minute)
			assert.False(t, ph.ShouldEvict())
			clock.advance(2 * time.Minute)
			assert.True(t, ph.ShouldEvict())
		})
	}
}

func TestOutgoingFailuresAloneDoNotPreventEviction(t *testing.T) {
	policy, clock := testPolicy()
	ph := NewPeerHealth(policy)
	clock.advance(time.Hour)
	ph.ReportFailure(Outgoing)
	assert.True(t, ph.ShouldEvict())
}

func TestSlots(t *testing.T) {
	policy, clock := testPolicy()
	ps := NewPeerSlots(policy)
	assert.True(t, ps.TryObtainSlot())
	ps.MarkChoked()
	assert.True(t, ps.Choked())
	assert.False(t, ps.TryObtainSlot())
	ps.ReleaseSlot()
	ps.ReleaseSlot()
	assert.True(t, ps.TryObtainSlot())
	assert.True(t, ps.TryObtainSlot())
	assert.False(t, ps.TryObtainSlot())
	// A new choke forgets credited slots.
	ps.ReleaseSlot()
	ps.MarkChoked()
	assert.False(t, ps.TryObtainSlot())
	clock.advance(20 * time.Second)
	assert.True(t, ps.TryObtainSlot())
	// Releases outside a choke aren't credited.
	ps.ReleaseSlot()
	ps.MarkChoked()
	assert.False(t, ps.TryObtainSlot())
}

func TestReportOutgoingError(t *testing.T) {
	policy, _ := testPolicy()
	p := NewPeer("1.2.3.4:5", policy)

	p.ReportOutgoingError(fmt.Errorf("request: %w", ErrChoked))
	assert.True(t, p.Slots.Choked())
	assert.Equal(t, 0, p.Health.Failures())
	assert.False(t, p.TryRequest())

	p = NewPeer("1.2.3.4:5", policy)
	p.ReportOutgoingError(errors.New("connection refused"))
	assert.Equal(t, 1, p.Health.Failures())
	assert.False(t, p.Slots.Choked())
	assert.False(t, p.TryRequest())

	p = NewPeer("1.2.3.4:5", policy)
	p.ReportOutgoingError(ErrIncompatibleVersion)
	assert.True(t, p.Health.Dead())
	assert.Equal(t, 0, p.Health.Failures())
	assert.False(t, p.Health.Usable())

	p = NewPeer("1.2.3.4:5", policy)
	p.ReportOutgoingError(nil)
	assert.False(t, p.Health.LastSuccess(Outgoing).IsZero())
	assert.True(t, p.TryRequest())
}

func TestPeerRegistry(t *testing.T) {
	policy, clock := testPolicy()
	reg := NewPeerRegistry(policy)
	a, added := reg.GetOrAdd("a")
	require.True(t, added)
	again, added := reg.GetOrAdd("a")
	require.False(t, added)
	require.Same(t, a, again)
	b, _ := reg.GetOrAdd("b")
	c, _ := reg.GetOrAdd("c")
	d, _ := reg.GetOrAdd("d")
	assert.Equal(t, 4, reg.Len())

	b.ReportOutgoingError(nil)
	clock.advance(time.Second)
	c.ReportOutgoingError(nil)
	d.ReportOutgoingError(ErrIncompatibleVersion)
	a.ReportOutgoingError(errors.New("timeout"))
	clock.advance(time.Minute)
	// a's backoff has passed, but it still has a failure against it.
	assert.Equal(t, []*Peer{c, b, a}, reg.Candidates(10))
	assert.Equal(t, []*Peer{c}, reg.Candidates(1))

	var order []string
	reg.Each(func(p *Peer) bool {
		order = append(order, p.Addr)
		return true
	})
	assert.Equal(t, []string{"a", "b", "c", "d"}, order)

	clock.advance(10 * time.Minute)
	c.Health.ReportSuccess(Incoming)
	evictedBefore := testutil.ToFloat64(peersEvicted)
	evicted := reg.EvictStale()
	assert.Equal(t, []string{"a", "b", "d"}, evicted)
	assert.Equal(t, evictedBefore+3, testutil.ToFloat64(peersEvicted))
	assert.Equal(t, 1, reg.Len())
	_, ok := reg.Get("a")
	assert.False(t, ok)
	got, ok := reg.Get("c")
	assert.True(t, ok)
	assert.Same(t, c, got)
}

func TestReportOutgoingErrorCountsOutcomes(t *testing.T) {
	policy, _ := testPolicy()
	outcome := func(label string) float64 {
		return testutil.ToFloat64(peerOutcomes.WithLabelValues(label))
	}
	before := map[string]float64{}
	for _, label := range []string{"success", "choked", "incompatible", "failure"} {
		before[label] = outcome(label)
	}
	NewPeer("a", policy).ReportOutgoingError(nil)
	NewPeer("b", policy).ReportOutgoingError(ErrChoked)
	NewPeer("c", policy).ReportOutgoingError(ErrIncompatibleVersion)
	NewPeer("d", policy).ReportOutgoingError(errors.New("reset"))
	NewPeer("e", policy).ReportOutgoingError(errors.New("reset"))
	assert.Equal(t, before["success"]+1, outcome("success"))
	assert.Equal(t, before["choked"]+1, outcome("choked"))
	assert.Equal(t, before["incompatible"]+1, outcome("incompatible"))
	assert.Equal(t, before["failure"]+2, outcome("failure"))
}

func TestRegisterMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterMetrics(reg))
	require.NoError(t, RegisterMetrics(reg))
	NewPeer("a", NewDefaultPeerPolicy()).ReportOutgoingError(nil)
	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "pkgdist_peer_outgoing_outcomes_total")
}

func TestPeerRegistryConcurrentUse(t *testing.T) {
	reg := NewPeerRegistry(NewDefaultPeerPolicy())
	for i := range 10 {
		p, _ := reg.GetOrAdd(strconv.Itoa(i))
		p.Health.ReportSuccess(Incoming)
	}
	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				p, added := reg.GetOrAdd(strconv.Itoa(i % 10))
				assert.False(t, added)
				switch (i + w) % 4 {
				case 0:
					p.ReportOutgoingError(nil)
				case 1:
					p.ReportOutgoingError(ErrChoked)
					p.Slots.ReleaseSlot()
				case 2:
					p.Health.ReportSuccess(Incoming)
				default:
					p.TryRequest()
				}
				for _, c := range reg.Candidates(3) {
					assert.True(t, c.Health.Usable())
				}
				reg.EvictStale()
			}
		}()
	}
	wg.Wait()
	// Everything was heard from just now, so nothing was evicted.
	assert.Equal(t, 10, reg.Len())
}
