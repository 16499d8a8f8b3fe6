package service

import (
	"context"
	"log/slog"
)

// NotificationKind is the severity of a user-facing notification.
type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyError   NotificationKind = "error"
	NotifyWarning NotificationKind = "warning"
	NotifyInfo    NotificationKind = "info"
)

// Notification is a transient message for the user (a toast).
type Notification struct {
	Kind    NotificationKind
	Message string
}

// Notifier receives user-facing notifications from services.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

type notifierKey struct{}

// WithNotifier scopes notifications raised while serving ctx to n. Handlers
// use it so each browser only sees the toasts its own actions produced.
func WithNotifier(ctx context.Context, n Notifier) context.Context {
	return context.WithValue(ctx, notifierKey{}, n)
}

func notifierFrom(ctx context.Context) Notifier {
	n, _ := ctx.Value(notifierKey{}).(Notifier)
	return n
}

// logNotifier is the fallback when no request-scoped notifier is present.
type logNotifier struct {
	logger *slog.Logger
}

func (l logNotifier) Notify(n Notification) {
	l.logger.Debug("notification", "kind", n.Kind, "message", n.Message)
}
