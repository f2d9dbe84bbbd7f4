package flood

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/guardbot/internal/config"
	"github.com/iamwavecut/guardbot/internal/db"
)

// Guard flags users whose message count exceeds the configured
// threshold within the rolling window. The window for a key is reset
// after a flood report, so the very next message does not re-report.
type Guard struct {
	window    *Window
	span      time.Duration
	threshold int
}

type Result struct {
	IsFlood bool
	Count   int
}

func NewGuard(cfg config.Flood) *Guard {
	return &Guard{
		window:    NewWindow(),
		span:      cfg.Window,
		threshold: cfg.Threshold,
	}
}

func (g *Guard) Evaluate(key db.UserKey, ts time.Time) Result {
	count := g.window.Sample(key, ts, g.span)
	if count <= g.threshold {
		return Result{Count: count}
	}

	g.window.Reset(key)
	log.WithFields(log.Fields{
		"key":   key.String(),
		"count": count,
	}).Debug("flood threshold exceeded")
	return Result{IsFlood: true, Count: count}
}
