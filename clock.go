package authgate

import (
	"fmt"
	"time"

	"github.com/beevik/ntp"
	"golang.org/x/exp/slog"
)

// CheckClock compares the local clock against an NTP server and warns when
// the offset exceeds maxOffset. Bucket refill is computed from wall-clock time.
func CheckClock(server string, maxOffset time.Duration) (time.Duration, error) {
	resp, err := ntp.Query(server)
	if err != nil {
		return 0, fmt.Errorf("query ntp server %s: %w", server, err)
	}
	if err := resp.Validate(); err != nil {
		return 0, fmt.Errorf("invalid ntp response from %s: %w", server, err)
	}

	offset := resp.ClockOffset
	if offset.Abs() > maxOffset {
		slog.Warn("local clock drift exceeds limit",
			slog.String("server", server),
			slog.Duration("offset", offset),
			slog.Duration("max_offset", maxOffset),
		)
	}
	return offset, nil
}
