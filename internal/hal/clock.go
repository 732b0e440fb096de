package hal

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/beevik/ntp"
)

// DefaultNTPServer is queried when no server is configured.
const DefaultNTPServer = "pool.ntp.org"

// NTPClock is the wall clock. Until a sync succeeds it reports itself
// unsynced and office hours fail open.
type NTPClock struct {
	Server  string
	Timeout time.Duration

	// QueryFunc overrides the NTP query, for tests.
	QueryFunc func(server string, timeout time.Duration) (time.Duration, error)

	now    func() time.Time
	mu     sync.Mutex
	offset time.Duration
	synced bool
}

// NewNTPClock returns a clock synchronised against server.
func NewNTPClock(server string) *NTPClock {
	if server == "" {
		server = DefaultNTPServer
	}
	return &NTPClock{Server: server, Timeout: 5 * time.Second, now: time.Now}
}

// Sync queries the server once and records the clock offset.
func (c *NTPClock) Sync(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	query := c.QueryFunc
	if query == nil {
		query = queryNTP
	}
	offset, err := query(c.Server, c.Timeout)
	if err != nil {
		return fmt.Errorf("ntp %s: %w", c.Server, err)
	}
	c.mu.Lock()
	c.offset = offset
	c.synced = true
	c.mu.Unlock()
	log.Printf("clock: synced with %s (offset %v)", c.Server, offset)
	return nil
}

// Now returns the corrected wall time and whether it has been synced.
func (c *NTPClock) Now() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now().Add(c.offset), c.synced
}

func queryNTP(server string, timeout time.Duration) (time.Duration, error) {
	resp, err := ntp.QueryWithOptions(server, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return 0, err
	}
	if err := resp.Validate(); err != nil {
		return 0, err
	}
	return resp.ClockOffset, nil
}
