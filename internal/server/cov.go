package server

import (
	"math"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xbacnet/xbacnet/internal/bacnet"
	"github.com/xbacnet/xbacnet/internal/object"
)

// subKey identifies a subscription: subscriber process id, monitored
// object, and subscriber address.
type subKey struct {
	processID uint32
	monitored object.ID
	addr      string
}

type subscription struct {
	processID uint32
	monitored object.ID
	addr      *net.UDPAddr
	confirmed bool
	// expires is zero for an indefinite (lifetime 0) subscription.
	expires time.Time
}

func (s *subscription) expired(now time.Time) bool {
	return !s.expires.IsZero() && now.After(s.expires)
}

func (s *subscription) timeRemaining(now time.Time) uint32 {
	if s.expires.IsZero() {
		return 0
	}
	rem := s.expires.Sub(now)
	if rem < 0 {
		return 0
	}
	return uint32(rem / time.Second)
}

// covManager keeps the subscription table and the last-notified state
// per monitored object.
type covManager struct {
	mu   sync.Mutex
	subs map[subKey]*subscription
	// last-notified present-value (analog) and status flags, keyed by
	// monitored object.
	lastValue map[object.ID]float64
	lastFlags map[object.ID]object.StatusFlags
	seen      map[object.ID]bool
}

func newCOVManager() *covManager {
	return &covManager{
		subs:      make(map[subKey]*subscription),
		lastValue: make(map[object.ID]float64),
		lastFlags: make(map[object.ID]object.StatusFlags),
		seen:      make(map[object.ID]bool),
	}
}

func (m *covManager) Subscribe(processID uint32, monitored object.ID, addr *net.UDPAddr, confirmed bool, lifetime uint32) {
	key := subKey{processID: processID, monitored: monitored, addr: addr.String()}
	sub := &subscription{
		processID: processID,
		monitored: monitored,
		addr:      addr,
		confirmed: confirmed,
	}
	if lifetime > 0 {
		sub.expires = time.Now().Add(time.Duration(lifetime) * time.Second)
	}
	m.mu.Lock()
	m.subs[key] = sub
	m.mu.Unlock()
}

func (m *covManager) Cancel(processID uint32, monitored object.ID, addr *net.UDPAddr) {
	key := subKey{processID: processID, monitored: monitored, addr: addr.String()}
	m.mu.Lock()
	delete(m.subs, key)
	m.mu.Unlock()
}

// subscribersFor returns the active subscriptions for an object, pruning
// expired entries.
func (m *covManager) subscribersFor(id object.ID) []*subscription {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*subscription
	for key, sub := range m.subs {
		if sub.monitored != id {
			continue
		}
		if sub.expired(now) {
			delete(m.subs, key)
			continue
		}
		out = append(out, sub)
	}
	return out
}

// Count reports the active subscription total.
func (m *covManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// monitoredState reduces an object's monitored properties to a value,
// an increment (analog only) and the status flags.
func monitoredState(obj object.Object) (value, increment float64, flags object.StatusFlags) {
	flags = obj.StatusFlags()
	switch o := obj.(type) {
	case *object.AnalogInput:
		value, increment = o.PresentValue(), o.CovIncrement()
	case *object.AnalogOutput:
		value, increment = o.PresentValue(), o.CovIncrement()
	case *object.AnalogValue:
		value, increment = o.PresentValue(), o.CovIncrement()
	case *object.BinaryInput:
		value = binaryAsFloat(o.PresentValue())
	case *object.BinaryOutput:
		value = binaryAsFloat(o.PresentValue())
	case *object.BinaryValue:
		value = binaryAsFloat(o.PresentValue())
	case *object.MultiStateInput:
		value = float64(o.PresentValue())
	case *object.MultiStateOutput:
		value = float64(o.PresentValue())
	case *object.MultiStateValue:
		value = float64(o.PresentValue())
	}
	return value, increment, flags
}

// prime records the current state as the last-notified baseline of an
// object that is not tracked yet, so the first delta after subscribing is
// measured from the subscribe-time value, not from zero. An object that
// is already tracked keeps its last-notified state as the baseline.
func (m *covManager) prime(obj object.Object) {
	value, _, flags := monitoredState(obj)
	id := obj.ID()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[id] {
		return
	}
	m.seen[id] = true
	m.lastValue[id] = value
	m.lastFlags[id] = flags
}

// shouldNotify applies the COV policy against the last-notified state:
// analog objects fire when the value moved by at least cov_increment,
// binary and multi-state on any change, and a status-flag change always
// fires. The last-notified state advances only when true is returned.
func (m *covManager) shouldNotify(obj object.Object) bool {
	id := obj.ID()
	value, increment, flags := monitoredState(obj)

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.seen[id] {
		m.seen[id] = true
		m.lastValue[id] = value
		m.lastFlags[id] = flags
		return false
	}

	notify := false
	if m.lastFlags[id] != flags {
		notify = true
	}
	delta := math.Abs(value - m.lastValue[id])
	if id.Type == object.TypeAnalogInput || id.Type == object.TypeAnalogOutput || id.Type == object.TypeAnalogValue {
		if delta > 0 && delta >= increment {
			notify = true
		}
	} else if delta != 0 {
		notify = true
	}

	if notify {
		m.lastValue[id] = value
		m.lastFlags[id] = flags
	}
	return notify
}

func binaryAsFloat(pv object.BinaryPV) float64 {
	if pv == object.BinaryActive {
		return 1
	}
	return 0
}

// notifyObject evaluates the COV policy for one object and, when it
// fires, delivers notifications to every active subscriber.
func (s *Server) notifyObject(obj object.Object) {
	id := obj.ID()
	subs := s.cov.subscribersFor(id)
	if len(subs) == 0 {
		// Track movement anyway so a later subscriber is not flooded
		// with stale deltas.
		s.cov.shouldNotify(obj)
		return
	}
	if !s.cov.shouldNotify(obj) {
		return
	}
	if s.app == nil {
		return
	}

	values, err := s.notificationValues(obj)
	if err != nil {
		s.log.Error("failed to encode cov values", zap.String("object", id.String()), zap.Error(err))
		return
	}

	now := time.Now()
	for _, sub := range subs {
		n := bacnet.COVNotification{
			ProcessID:     sub.processID,
			Monitored:     wireID(id),
			TimeRemaining: sub.timeRemaining(now),
			Values:        values,
		}
		var sendErr error
		if sub.confirmed {
			sendErr = s.app.SendConfirmedCOV(sub.addr, n)
		} else {
			sendErr = s.app.SendUnconfirmedCOV(sub.addr, n)
		}
		if sendErr != nil {
			s.log.Warn("failed to send cov notification",
				zap.String("object", id.String()),
				zap.String("subscriber", sub.addr.String()),
				zap.Error(sendErr))
			continue
		}
		s.log.Debug("cov notification sent",
			zap.String("object", id.String()),
			zap.String("subscriber", sub.addr.String()),
			zap.Uint32("process_id", sub.processID))
	}
}

// notificationValues builds the present-value + status-flags list every
// notification carries.
func (s *Server) notificationValues(obj object.Object) ([]bacnet.PropertyValue, error) {
	pv, err := obj.ReadProperty(object.PropPresentValue)
	if err != nil {
		return nil, err
	}
	pvData, se := encodeValue(object.PropPresentValue, pv)
	if se != nil {
		return nil, se
	}
	flagsData, se := encodeValue(object.PropStatusFlags, obj.StatusFlags())
	if se != nil {
		return nil, se
	}
	return []bacnet.PropertyValue{
		{Property: bacnet.PropPresentValue, Data: pvData},
		{Property: bacnet.PropStatusFlags, Data: flagsData},
	}, nil
}

// SubscriptionCount reports active COV subscriptions (stats endpoint).
func (s *Server) SubscriptionCount() int {
	return s.cov.Count()
}
