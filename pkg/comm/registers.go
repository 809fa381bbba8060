package comm

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robotalks/fxlink/pkg/msgs"
)

// Registers is the peer's device store: device name -> hex text last written.
// Values are kept exactly as written, no type checking against the word count.
type Registers struct {
	values map[string]string
	lock   sync.RWMutex
}

// NewRegisters creates an empty store.
func NewRegisters() *Registers {
	return &Registers{values: make(map[string]string)}
}

// ZeroValue is the value read from a never written device.
func ZeroValue(count byte) string {
	return strings.Repeat("0", int(count)*msgs.HexPerWord)
}

// Get returns the value of device, or count words of zeros if absent.
func (r *Registers) Get(device string, count byte) string {
	if value, ok := r.Lookup(device); ok {
		return value
	}
	return ZeroValue(count)
}

// Lookup returns the value of device if present.
func (r *Registers) Lookup(device string) (string, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	value, ok := r.values[device]
	return value, ok
}

// Set replaces the value of device and returns the previous one.
func (r *Registers) Set(device, value string) (old string, existed bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	old, existed = r.values[device]
	r.values[device] = value
	return
}

// Snapshot copies the whole store.
func (r *Registers) Snapshot() map[string]string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	values := make(map[string]string, len(r.values))
	for k, v := range r.values {
		values[k] = v
	}
	return values
}

// Len returns the number of devices written.
func (r *Registers) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.values)
}

// RegisterChange describes a write applied by the peer.
type RegisterChange struct {
	Address msgs.Address
	Device  string
	Old     string
	New     string
	Existed bool
	Time    time.Time
}

// RegisterNotifier receives register changes.
type RegisterNotifier interface {
	RegisterChanged(ctx context.Context, change RegisterChange)
}

// RegisterChangedFunc is func form of RegisterNotifier.
type RegisterChangedFunc func(ctx context.Context, change RegisterChange)

// RegisterChanged implements RegisterNotifier.
func (f RegisterChangedFunc) RegisterChanged(ctx context.Context, change RegisterChange) {
	f(ctx, change)
}

// Notifiers fans a change out to every notifier in order.
type Notifiers []RegisterNotifier

// RegisterChanged implements RegisterNotifier.
func (n Notifiers) RegisterChanged(ctx context.Context, change RegisterChange) {
	for _, notifier := range n {
		notifier.RegisterChanged(ctx, change)
	}
}
