package feed

import (
	"sync"

	"github.com/zuoban/binance-dashboard-sub000/internal/domain"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrCapacity is returned by Register when the viewer ceiling is reached.
var ErrCapacity = errors.New("viewer limit reached")

// Sink receives snapshots for one connection. A non-nil error is treated
// as an implicit disconnect: the registry removes the registration.
type Sink func(*domain.Snapshot) error

// snapshotFeed is the feed surface the registry drives. Narrowed to an
// interface so tests can register against a fake.
type snapshotFeed interface {
	IncrementRef()
	DecrementRef()
	Subscribe(Callback) func()
}

type registration struct {
	once        sync.Once
	unsubscribe func()
	removed     bool
}

// Registry maps connection ids to feed subscriptions and drives the
// feed's refcount lifecycle: the first registration starts the refresh
// loop, the last removal stops it.
type Registry struct {
	feed   snapshotFeed
	logger *zap.Logger
	max    int

	mu   sync.Mutex
	regs map[string]*registration
}

// NewRegistry creates a registry with a maximum concurrent-viewer count.
func NewRegistry(feed snapshotFeed, maxConnections int, logger *zap.Logger) *Registry {
	if maxConnections <= 0 {
		maxConnections = 100
	}
	return &Registry{
		feed:   feed,
		logger: logger,
		max:    maxConnections,
		regs:   make(map[string]*registration),
	}
}

// Register attaches sink under connID and returns a removal function that
// is safe to call more than once. The current snapshot, when one exists,
// is delivered before Register returns. ErrCapacity is returned when the
// ceiling is reached, without touching the feed's refcount.
func (r *Registry) Register(connID string, sink Sink) (func(), error) {
	r.mu.Lock()
	if len(r.regs) >= r.max {
		r.mu.Unlock()
		return nil, errors.Wrapf(ErrCapacity, "connection %s rejected", connID)
	}
	if _, exists := r.regs[connID]; exists {
		r.mu.Unlock()
		return nil, errors.Errorf("connection %s already registered", connID)
	}
	reg := &registration{}
	r.regs[connID] = reg
	r.mu.Unlock()

	r.feed.IncrementRef()

	unsubscribe := r.feed.Subscribe(func(snap *domain.Snapshot) {
		if err := sink(snap); err != nil {
			r.logger.Warn("snapshot delivery failed, dropping connection",
				zap.String("connection", connID), zap.Error(err))
			r.remove(reg, connID)
		}
	})

	r.mu.Lock()
	if reg.removed {
		// The sink already failed during the initial replay.
		r.mu.Unlock()
		unsubscribe()
		return func() { r.remove(reg, connID) }, nil
	}
	reg.unsubscribe = unsubscribe
	r.mu.Unlock()

	r.logger.Info("viewer connected", zap.String("connection", connID), zap.Int("viewers", r.Count()))

	return func() { r.remove(reg, connID) }, nil
}

// Unregister removes a registration by id. Unknown ids are a no-op.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	reg, ok := r.regs[connID]
	r.mu.Unlock()
	if !ok {
		return
	}
	r.remove(reg, connID)
}

// Count returns the number of active registrations.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.regs)
}

func (r *Registry) remove(reg *registration, connID string) {
	reg.once.Do(func() {
		r.mu.Lock()
		delete(r.regs, connID)
		unsubscribe := reg.unsubscribe
		reg.removed = true
		r.mu.Unlock()

		if unsubscribe != nil {
			unsubscribe()
		}
		r.feed.DecrementRef()
		r.logger.Info("viewer disconnected", zap.String("connection", connID), zap.Int("viewers", r.Count()))
	})
}
