// Package events carries deployment lifecycle notifications to subscribers
// such as the CLI renderer and the metrics collector.
package events

import (
	"sync"
	"time"
)

// Kind names a lifecycle event. The string values are a stable contract.
type Kind string

const (
	DeployBeforeUnpack  Kind = "deploy:before-unpack"
	DeployAfterUnpack   Kind = "deploy:after-unpack"
	DeployStarted       Kind = "deploy:started"
	DeployBeforeInit    Kind = "deploy:before-init"
	DeployAfterInit     Kind = "deploy:after-init"
	DeployBeforeBuild   Kind = "deploy:before-build"
	DeployAfterBuild    Kind = "deploy:after-build"
	DeployBeforePurge   Kind = "deploy:before-purge"
	DeployAfterPurge    Kind = "deploy:after-purge"
	DeployBeforeDestroy Kind = "deploy:before-destroy"
	DeployAfterDestroy  Kind = "deploy:after-destroy"
	DeploySuccessfully  Kind = "deploy:successfully"
	DeployFailure       Kind = "deploy:failure"

	ImageTransferProgress Kind = "image:transfer-progress"

	ProxyBeforeReload Kind = "proxy:before-reload"
	ProxyAfterReload  Kind = "proxy:after-reload"
)

// Event is the single payload shape shared by every kind. Fields that do not
// apply to a kind are left zero.
type Event struct {
	Kind         Kind
	Time         time.Time
	Service      string
	DeploymentID string

	// DeployFailure
	Err error
	// DeploySuccessfully, DeployFailure: time since DeployStarted
	Elapsed time.Duration
	// ImageTransferProgress: bytes moved so far
	Bytes int64
	// Proxy*Reload: published raw ports
	Ports []int
}

// Handler receives events synchronously, on the emitting goroutine.
type Handler func(Event)

// Bus is a synchronous fan-out of events. The zero value is ready to use and
// a nil *Bus drops every event.
type Bus struct {
	mu       sync.RWMutex
	handlers []subscription
}

type subscription struct {
	kinds map[Kind]struct{}
	fn    Handler
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn for kinds, or for every kind when none are given.
func (b *Bus) Subscribe(fn Handler, kinds ...Kind) {
	sub := subscription{fn: fn}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]struct{}, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = struct{}{}
		}
	}
	b.mu.Lock()
	b.handlers = append(b.handlers, sub)
	b.mu.Unlock()
}

// Emit delivers e to every matching handler in subscription order.
func (b *Bus) Emit(e Event) {
	if b == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	handlers := append([]subscription(nil), b.handlers...)
	b.mu.RUnlock()

	for _, sub := range handlers {
		if sub.kinds != nil {
			if _, ok := sub.kinds[e.Kind]; !ok {
				continue
			}
		}
		sub.fn(e)
	}
}
