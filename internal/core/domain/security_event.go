package domain

import "time"

// SecurityEventType names an auditable account security action.
type SecurityEventType string

const (
	EventRegistered             SecurityEventType = "registered"
	EventLoginSucceeded         SecurityEventType = "login_succeeded"
	EventLoginFailed            SecurityEventType = "login_failed"
	EventLoginRejectedLocked    SecurityEventType = "login_rejected_locked"
	EventAccountLocked          SecurityEventType = "account_locked"
	EventLoggedOut              SecurityEventType = "logged_out"
	EventPasswordChanged        SecurityEventType = "password_changed"
	EventPasswordResetRequested SecurityEventType = "password_reset_requested"
	EventPasswordResetCompleted SecurityEventType = "password_reset_completed"
	EventResetDeliveryFailed    SecurityEventType = "password_reset_delivery_failed"
	EventAccountDeleted         SecurityEventType = "account_deleted"
	EventRoleChanged            SecurityEventType = "role_changed"
)

// SecurityEvent is one entry of the account security audit trail.
type SecurityEvent struct {
	Type       SecurityEventType
	AccountID  string // empty when the email did not resolve to an account
	Email      string
	IP         string
	UserAgent  string
	Detail     string
	OccurredAt time.Time
}
