// Package notify delivers terminal run outcomes to a Discord-style webhook.
// Delivery is side-effect only: a failed delivery is logged and counted but
// never changes the outcome of the run that produced it.
package notify

import (
	"context"

	"github.com/SpaceWJK/epic7-monitor/internal/monitor"
)

// Noop is a notifier that discards every outcome. It stands in when no
// webhook is configured, which is a supported deployment, not an error.
type Noop struct{}

// Notify for Noop does nothing.
func (Noop) Notify(_ context.Context, _ monitor.Outcome) {}
