// Package notify implements the Alert Manager's external dispatch adapters:
// email, Discord-shaped webhook, Slack-shaped webhook, and a generic JSON
// webhook. Every adapter is best-effort — Send must never block its caller
// for long or propagate an error; failures are logged and swallowed.
package notify

import (
	"github.com/nodewatch/storj-node-monitor/infrastructure/logging"
	"github.com/nodewatch/storj-node-monitor/internal/model"
)

// Adapter is one notification channel.
type Adapter interface {
	Send(alertType string, severity model.Severity, message string, details map[string]interface{})
}

// Dispatcher fans one notification out to every configured adapter,
// satisfying the alert.Notifier interface.
type Dispatcher struct {
	adapters []Adapter
	log      *logging.Logger
}

// NewDispatcher wires a dispatcher over zero or more adapters.
func NewDispatcher(log *logging.Logger, adapters ...Adapter) *Dispatcher {
	return &Dispatcher{adapters: adapters, log: log}
}

// Notify calls every adapter's Send, isolating each from the others'
// panics and errors.
func (d *Dispatcher) Notify(alertType string, severity model.Severity, message string, details map[string]interface{}) {
	for _, a := range d.adapters {
		adapter := a
		func() {
			defer func() {
				if r := recover(); r != nil && d.log != nil {
					d.log.WithFields(map[string]interface{}{"panic": r}).Error("notification adapter panicked")
				}
			}()
			adapter.Send(alertType, severity, message, details)
		}()
	}
}
