package notify

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"FoodCart/internal/cart"
)

const defaultDuration = 2 * time.Second

type Options struct {
	Duration time.Duration
	// ID lets a UI replace a previous notification instead of stacking.
	ID string
}

type Notifier interface {
	NotifySuccess(msg string, opts Options)
	NotifyError(msg string, opts Options)
}

// LogNotifier writes notifications to a zap logger; it stands in for toasts
// when no UI is attached.
type LogNotifier struct {
	Log *zap.Logger
}

func (n LogNotifier) NotifySuccess(msg string, opts Options) {
	n.logger().Info("notify",
		zap.String("level", "success"),
		zap.String("message", msg),
		zap.String("id", opts.ID),
		zap.Duration("duration", opts.Duration),
	)
}

func (n LogNotifier) NotifyError(msg string, opts Options) {
	n.logger().Warn("notify",
		zap.String("level", "error"),
		zap.String("message", msg),
		zap.String("id", opts.ID),
		zap.Duration("duration", opts.Duration),
	)
}

func (n LogNotifier) logger() *zap.Logger {
	if n.Log == nil {
		return zap.NewNop()
	}
	return n.Log
}

// CartListener turns cart events into user-facing messages. enabled may be
// nil; otherwise it is consulted on every event.
func CartListener(n Notifier, enabled func() bool) cart.Listener {
	return func(ev cart.Event) {
		if enabled != nil && !enabled() {
			return
		}

		switch ev.Kind {
		case cart.EventItemAdded:
			n.NotifySuccess(
				fmt.Sprintf("Added %d x %s to cart", ev.Quantity, ev.Item.Name),
				Options{Duration: defaultDuration, ID: "cart-add-" + ev.Item.CartItemID},
			)
		case cart.EventItemRemoved:
			n.NotifySuccess(
				fmt.Sprintf("Removed %s from cart", ev.Item.Name),
				Options{Duration: defaultDuration, ID: "cart-remove-" + ev.Item.CartItemID},
			)
		}
	}
}
