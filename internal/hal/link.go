package hal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/thefoeyouknow/Teams-Pod/internal/status"
)

// Link timing.
const (
	ConnectTimeout = 15 * time.Second
	linkPoll       = 250 * time.Millisecond
)

// linkOps is the kernel side of the link.
type linkOps interface {
	setUp(iface string) error
	setDown(iface string) error
	// state reports operational state and the first IPv4 address.
	state(iface string) (up bool, addr string, err error)
}

// Link brings the Wi-Fi interface up and waits for an address. Association
// itself is left to the system supplicant, which owns the SSID and key.
type Link struct {
	Iface     string
	Timeout   time.Duration
	PollEvery time.Duration

	ops  linkOps
	mu   sync.Mutex
	ssid string
	addr string
}

// NewLink returns a Link on iface.
func NewLink(iface string) *Link {
	return &Link{
		Iface:     iface,
		Timeout:   ConnectTimeout,
		PollEvery: linkPoll,
		ops:       sysLinkOps{},
	}
}

// Connect brings the link up and waits for it to be operational with an
// IPv4 address, or for the connect timeout.
func (l *Link) Connect(ctx context.Context, ssid, password string) error {
	if ssid == "" {
		return errors.New("wifi: no ssid")
	}
	if up, addr, err := l.ops.state(l.Iface); err == nil && up && addr != "" {
		l.set(ssid, addr)
		return nil
	}
	if err := l.ops.setUp(l.Iface); err != nil {
		return fmt.Errorf("wifi: set %s up: %w", l.Iface, err)
	}

	ctx, cancel := context.WithTimeout(ctx, l.Timeout)
	defer cancel()
	tick := time.NewTicker(l.PollEvery)
	defer tick.Stop()
	for {
		up, addr, err := l.ops.state(l.Iface)
		if err != nil {
			return fmt.Errorf("wifi: %s state: %w", l.Iface, err)
		}
		if up && addr != "" {
			l.set(ssid, addr)
			log.Printf("wifi: connected to %q on %s (%s)", ssid, l.Iface, addr)
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wifi: connect %q: %w", ssid, ctx.Err())
		case <-tick.C:
		}
	}
}

// Connected re-reads the link state.
func (l *Link) Connected() bool {
	up, addr, err := l.ops.state(l.Iface)
	if err != nil || !up || addr == "" {
		l.set(l.SSID(), "")
		return false
	}
	l.set(l.SSID(), addr)
	return true
}

// Disconnect takes the interface down to save power.
func (l *Link) Disconnect() error {
	l.set(l.SSID(), "")
	if err := l.ops.setDown(l.Iface); err != nil {
		return fmt.Errorf("wifi: set %s down: %w", l.Iface, err)
	}
	log.Printf("wifi: %s down", l.Iface)
	return nil
}

// SSID returns the network last connected to.
func (l *Link) SSID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ssid
}

// Info returns the link as shown on the status page.
func (l *Link) Info() status.NetworkInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return status.NetworkInfo{
		Interface: l.Iface,
		SSID:      l.ssid,
		IP:        l.addr,
		Connected: l.addr != "",
	}
}

func (l *Link) set(ssid, addr string) {
	l.mu.Lock()
	l.ssid = ssid
	l.addr = addr
	l.mu.Unlock()
}
