//go:build linux

package netwatch

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// NetlinkWatcher receives address and link updates from the kernel.
type NetlinkWatcher struct {
	mu   sync.Mutex
	done chan struct{}
	wg   sync.WaitGroup
}

// NewNetlinkWatcher creates an unsubscribed netlink watcher.
func NewNetlinkWatcher() *NetlinkWatcher {
	return &NetlinkWatcher{}
}

// Subscribe opens netlink address and link subscriptions and invokes
// onChange for every update.
func (w *NetlinkWatcher) Subscribe(onChange func()) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		return ErrAlreadySubscribed
	}

	done := make(chan struct{})
	addrCh := make(chan netlink.AddrUpdate, 64)
	linkCh := make(chan netlink.LinkUpdate, 64)
	onError := func(err error) {
		log.Printf("Netwatch: netlink subscription error: %v", err)
	}

	err := netlink.AddrSubscribeWithOptions(addrCh, done, netlink.AddrSubscribeOptions{
		ErrorCallback: onError,
	})
	if err != nil {
		close(done)
		return fmt.Errorf("failed to subscribe to address updates: %w", err)
	}
	err = netlink.LinkSubscribeWithOptions(linkCh, done, netlink.LinkSubscribeOptions{
		ErrorCallback: onError,
	})
	if err != nil {
		close(done)
		go drainUpdates(addrCh, nil)
		return fmt.Errorf("failed to subscribe to link updates: %w", err)
	}

	w.done = done
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case u, ok := <-addrCh:
				if !ok {
					addrCh = nil
					continue
				}
				log.Printf("Netwatch: address %s %s on link %d", addrVerb(u.NewAddr), u.LinkAddress.String(), u.LinkIndex)
				onChange()
			case u, ok := <-linkCh:
				if !ok {
					linkCh = nil
					continue
				}
				if u.Link != nil && u.Link.Attrs() != nil {
					log.Printf("Netwatch: link %s %s at %s", u.Link.Attrs().Name, linkVerb(u.Header.Type), time.Now().Format(time.TimeOnly))
				}
				onChange()
			case <-done:
				drainUpdates(addrCh, linkCh)
				return
			}
		}
	}()
	return nil
}

// Unsubscribe closes the netlink subscriptions.
func (w *NetlinkWatcher) Unsubscribe() {
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

// drainUpdates discards updates until both channels are closed. The
// netlink receive goroutines block on a full channel and only notice done
// between sends, so they must be drained to exit.
func drainUpdates(addrCh <-chan netlink.AddrUpdate, linkCh <-chan netlink.LinkUpdate) {
	for addrCh != nil || linkCh != nil {
		select {
		case _, ok := <-addrCh:
			if !ok {
				addrCh = nil
			}
		case _, ok := <-linkCh:
			if !ok {
				linkCh = nil
			}
		}
	}
}

func addrVerb(added bool) string {
	if added {
		return "added"
	}
	return "removed"
}

func linkVerb(msgType uint16) string {
	switch msgType {
	case unix.RTM_NEWLINK:
		return "updated"
	case unix.RTM_DELLINK:
		return "removed"
	default:
		return "changed"
	}
}

var _ Watcher = (*NetlinkWatcher)(nil)
