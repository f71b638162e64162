package entity

// Status constants for ApprovalInstance
const (
	StatusDraft            = "DRAFT"
	StatusPendingApproval  = "PENDING_APPROVAL"
	StatusChangesRequested = "CHANGES_REQUESTED"
	StatusApproved         = "APPROVED"
	StatusRejected         = "REJECTED"
	StatusCancelled        = "CANCELLED"
)

// Notification status constants
const (
	NotificationStatusSent   = "SENT"
	NotificationStatusFailed = "FAILED"
	// Abandoned deliveries ran out of retry attempts
	NotificationStatusAbandoned = "ABANDONED"
)

// Notification channel names
const (
	ChannelLog      = "log"
	ChannelDatabase = "database"
	ChannelLark     = "lark"
)
