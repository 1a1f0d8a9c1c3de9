package enums

// NotificationType maps to the notification_type enum in Postgres. Each type
// selects the message template downstream delivery renders.
type NotificationType string

const (
	NotificationTypeTransferSuccess NotificationType = "transfer_success"
	NotificationTypeTransferFailed  NotificationType = "transfer_failed"
)

func (n NotificationType) IsValid() bool {
	switch n {
	case NotificationTypeTransferSuccess, NotificationTypeTransferFailed:
		return true
	}
	return false
}

// NotificationStatus tracks delivery handoff of a notification row. Rows are
// written queued, in the same transaction as their outbox event.
type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "pending"
	NotificationStatusQueued  NotificationStatus = "queued"
)
