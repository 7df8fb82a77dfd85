package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"anyplace_viewer/internal/adapters/observability"
	"anyplace_viewer/internal/domain"
)

const alertLogSize = 50

// AlertLog is a per-viewer toast queue. The oldest alert is dropped once the
// log is full.
type AlertLog struct {
	mu     sync.Mutex
	alerts []domain.Alert
	log    zerolog.Logger
	now    func() time.Time
}

func NewAlertLog(l zerolog.Logger) *AlertLog {
	return &AlertLog{log: l, now: time.Now}
}

func (a *AlertLog) Add(severity, message string) {
	observability.ObserveAlert(severity)
	a.log.Info().Str("severity", severity).Str("message", message).Msg("alert")

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.alerts) == alertLogSize {
		a.alerts = append(a.alerts[:0], a.alerts[1:]...)
	}
	a.alerts = append(a.alerts, domain.Alert{Severity: severity, Message: message, At: a.now()})
}

// Drain returns pending alerts oldest first and empties the log.
func (a *AlertLog) Drain() []domain.Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.alerts
	a.alerts = nil
	return out
}
