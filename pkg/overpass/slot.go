package overpass

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/geosint/overpassmcp/pkg/monitoring"
	"github.com/geosint/overpassmcp/pkg/tracing"
)

// Slot gating defaults. The public Overpass instances advertise free
// processing slots on their status endpoint before accepting heavy queries.
const (
	DefaultSlotPollInterval = 5 * time.Second
	DefaultSlotMaxWait      = 60 * time.Second
	DefaultProbeTimeout     = 5 * time.Second
	DefaultStatusMemoTTL    = time.Second

	maxStatusBody = 64 << 10
)

// Marker substrings the status endpoint uses to advertise a free slot.
// Anything else, including errors, counts as unavailable.
var slotMarkers = []string{
	"Slot available",
	"available now",
	"slots available",
}

// StatusURL derives the status endpoint from an interpreter endpoint
func StatusURL(server string) string {
	return strings.Replace(server, "/interpreter", "/status", 1)
}

// SlotAvailable probes the server's status endpoint once. Transport
// failures, non-200 statuses and unrecognized bodies all report false;
// the caller is expected to keep polling rather than abort.
func (c *Client) SlotAvailable(ctx context.Context, server string) bool {
	statusURL := StatusURL(server)
	if c.statusMemo != nil {
		if available, ok := c.statusMemo.Get(statusURL); ok {
			return available
		}
	}

	available := c.probeStatus(ctx, statusURL)
	if c.statusMemo != nil {
		c.statusMemo.Add(statusURL, available)
	}
	return available
}

func (c *Client) probeStatus(ctx context.Context, statusURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStatusBody))
	if err != nil {
		return false
	}

	text := string(body)
	for _, marker := range slotMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// WaitForSlot polls the server's status endpoint until a slot is
// available or the configured max wait elapses. A probe failure is
// treated as "unavailable", never as a fatal error; only the max-wait
// boundary produces a SLOT_TIMEOUT error.
func (c *Client) WaitForSlot(ctx context.Context, server string) error {
	ctx, span := tracing.StartSpan(ctx, "overpass.wait_for_slot")
	defer span.End()

	deadline := time.NewTimer(c.slotMaxWait)
	defer deadline.Stop()
	ticker := time.NewTicker(c.slotPollInterval)
	defer ticker.Stop()

	start := time.Now()
	for {
		if c.SlotAvailable(ctx, server) {
			waited := time.Since(start)
			monitoring.RecordSlotWait(waited)
			span.SetAttributes(attribute.Int64(tracing.AttrSlotWaitMs, waited.Milliseconds()))
			return nil
		}

		select {
		case <-ticker.C:
		case <-deadline.C:
			monitoring.RecordSlotTimeout()
			err := NewError(ErrSlotTimeout, "timed out waiting for an Overpass API slot").
				WithGuidance("The server is fully loaded. Try again later or point the client at a different instance.")
			tracing.RecordError(ctx, err)
			c.logger.Warn("slot wait timed out", "server", server, "max_wait", c.slotMaxWait)
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
