// Package admission decides whether a new archive task may start.
package admission

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/youtube-archive-bot/internal/metrics"
	"github.com/JakeFAU/youtube-archive-bot/internal/session"
)

// ReasonDuplicate is the refusal reason when a task for the folder is already running.
const ReasonDuplicate = "duplicate task for this folder"

// DefaultTaskLimit applies to users without an entry in Limits.PerUser.
const DefaultTaskLimit = 34

// Limits maps users to the number of concurrent tasks they may have running.
type Limits struct {
	Default int
	PerUser map[string]int
}

// For returns the limit for user. Nicks compare case-insensitively.
func (l Limits) For(user string) int {
	if n, ok := l.PerUser[user]; ok {
		return n
	}
	for name, n := range l.PerUser {
		if strings.EqualFold(name, user) {
			return n
		}
	}
	if l.Default <= 0 {
		return DefaultTaskLimit
	}
	return l.Default
}

// Decision is the outcome of one admission check.
type Decision struct {
	Admitted bool
	Reason   string
	Limit    int
}

// Controller applies the admission rules against a fresh session listing.
// The listing is not locked between the check and the launch, so two
// concurrent requests may both be admitted.
type Controller struct {
	limits Limits
	logger *zap.Logger
}

// NewController creates a Controller.
func NewController(limits Limits, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{limits: limits, logger: logger}
}

// Limits returns the configured limits.
func (c *Controller) Limits() Limits {
	return c.limits
}

// TryAdmit refuses a folder that already has a running session, then a user
// whose limit is reached by the running sessions, and admits otherwise.
func (c *Controller) TryAdmit(folder, user string, sessions []session.Session) Decision {
	limit := c.limits.For(user)
	for _, s := range sessions {
		if s.Identifier == folder {
			metrics.ObserveAdmission("refused_duplicate")
			c.logger.Info("admission refused",
				zap.String("folder", folder), zap.String("user", user), zap.String("reason", "duplicate"))
			return Decision{Reason: ReasonDuplicate, Limit: limit}
		}
	}
	if len(sessions) >= limit {
		metrics.ObserveAdmission("refused_limit")
		c.logger.Info("admission refused",
			zap.String("folder", folder), zap.String("user", user),
			zap.Int("running", len(sessions)), zap.Int("limit", limit))
		return Decision{Reason: fmt.Sprintf("user concurrency limit reached (limit %d)", limit), Limit: limit}
	}
	metrics.ObserveAdmission("admitted")
	return Decision{Admitted: true, Limit: limit}
}
