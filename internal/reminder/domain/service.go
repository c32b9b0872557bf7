package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// CollectResult counts one reminder sweep: rows queued versus rows skipped
// by the dedupe key or the downtime grace rule.
type CollectResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// SendSummary counts one auto-send batch. Skipped rows were parked because
// no delivery channel is configured; they are not retried.
type SendSummary struct {
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

type Service interface {
	// CollectDueReminders queues a reminder for every active lifecycle
	// whose policy expires within dueDays.
	CollectDueReminders(ctx context.Context, dueDays int) (CollectResult, error)
	// SendReminder dispatches one queued reminder. Repeating the call after
	// a success refreshes last_sent_at without queueing anything new.
	SendReminder(ctx context.Context, id snowflake.ID) error
	// AutoSendPending dispatches up to limit pending reminders.
	AutoSendPending(ctx context.Context, limit int) (SendSummary, error)
	List(ctx context.Context) ([]*PendingReminder, error)
}

var (
	ErrReminderNotFound     = errors.New("reminder_not_found")
	ErrSendFailed           = errors.New("reminder_send_failed")
	ErrChannelNotConfigured = errors.New("reminder_channel_not_configured")
)
