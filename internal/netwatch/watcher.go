// Package netwatch delivers a callback whenever the host's interfaces or
// addresses change.
package netwatch

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"NetSpeedMonitor/internal/topology"
)

// ErrAlreadySubscribed is returned by Subscribe when a subscription is active.
var ErrAlreadySubscribed = errors.New("netwatch: already subscribed")

// Watcher is a subscribe/unsubscribe pair for network-change notifications.
// onChange may be invoked from any goroutine and in bursts.
type Watcher interface {
	Subscribe(onChange func()) error
	Unsubscribe()
}

// PollWatcher detects changes by periodically comparing the host's interface
// addresses. It is used where no push notification source exists.
type PollWatcher struct {
	interval time.Duration
	list     func() ([]topology.Interface, error)

	mu   sync.Mutex
	done chan struct{}
	wg   sync.WaitGroup
}

// NewPollWatcher creates a watcher polling list every interval.
func NewPollWatcher(interval time.Duration, list func() ([]topology.Interface, error)) *PollWatcher {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &PollWatcher{interval: interval, list: list}
}

// Subscribe starts polling.
func (w *PollWatcher) Subscribe(onChange func()) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		return ErrAlreadySubscribed
	}

	ifaces, err := w.list()
	if err != nil {
		return fmt.Errorf("failed to read initial interface state: %w", err)
	}
	last := fingerprint(ifaces)

	done := make(chan struct{})
	w.done = done
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ifaces, err := w.list()
				if err != nil {
					log.Printf("Netwatch: failed to poll interfaces: %v", err)
					continue
				}
				if fp := fingerprint(ifaces); fp != last {
					last = fp
					onChange()
				}
			case <-done:
				return
			}
		}
	}()
	return nil
}

// Unsubscribe stops polling and waits for the poll goroutine to exit.
func (w *PollWatcher) Unsubscribe() {
	w.mu.Lock()
	done := w.done
	w.done = nil
	w.mu.Unlock()

	if done == nil {
		return
	}
	close(done)
	w.wg.Wait()
}

func fingerprint(ifaces []topology.Interface) string {
	entries := make([]string, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs := make([]string, 0, len(iface.Addrs))
		for _, a := range iface.Addrs {
			addrs = append(addrs, a.String())
		}
		sort.Strings(addrs)
		entries = append(entries, iface.Name+"="+strings.Join(addrs, ","))
	}
	sort.Strings(entries)
	return strings.Join(entries, ";")
}

var _ Watcher = (*PollWatcher)(nil)
