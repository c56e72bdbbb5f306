// Package notification delivers alerts for actionable signals to chat and
// webhook endpoints.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cryptopulse/internal/strategy"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	Symbol  string     `json:"symbol,omitempty"`
	TraceID string     `json:"trace_id,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier logs alerts.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log.With("component", "notify")}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	n.log.Info(alert.Title, "level", alert.Level, "message", alert.Message, "symbol", alert.Symbol, "trace_id", alert.TraceID)
	return nil
}

// Multi sends to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DecisionAlert builds an alert for a buy or sell signal. Hold signals
// return false.
func DecisionAlert(sig strategy.Signal) (Alert, bool) {
	if !sig.Actionable() {
		return Alert{}, false
	}
	d := sig.Decision

	var b strings.Builder
	fmt.Fprintf(&b, "price=%.8g score=%.2f rsi=%.2f macd_hist=%.6g", sig.Price, d.WeightedScore, d.RSI, d.MACDHistogram)
	if d.OrderBookPressure != nil {
		fmt.Fprintf(&b, " book=%.3f", *d.OrderBookPressure)
	}
	fmt.Fprintf(&b, "\nstop_loss=%.8g take_profit=%.8g", d.Risk.StopLoss, d.Risk.TakeProfit)

	return Alert{
		Level:   AlertWarning,
		Title:   fmt.Sprintf("%s %s (%s)", strings.ToUpper(string(d.Label)), sig.Symbol, sig.Interval),
		Message: b.String(),
		Symbol:  sig.Symbol,
		TraceID: sig.TraceID,
	}, true
}

// Run sends an alert for every actionable signal on sigCh. Each send is
// bounded by timeout. onFail may be nil.
func Run(ctx context.Context, n Notifier, sigCh <-chan strategy.Signal, timeout time.Duration, onFail func(error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sigCh:
			if !ok {
				return
			}
			alert, ok := DecisionAlert(sig)
			if !ok {
				continue
			}
			sendCtx, cancel := context.WithTimeout(ctx, timeout)
			err := n.Send(sendCtx, alert)
			cancel()
			if err != nil {
				slog.Warn("alert delivery failed", "component", "notify", "symbol", sig.Symbol, "error", err)
				if onFail != nil {
					onFail(err)
				}
			}
		}
	}
}
