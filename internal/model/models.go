package model

import (
	"strings"
	"time"
)

// Identity is the authenticated caller, resolved by the upstream auth proxy
type Identity struct {
	UserID    string
	Anonymous bool
}

func (i Identity) Authenticated() bool {
	return i.UserID != ""
}

// Role is the caller's platform role. Authorization decisions compare roles
// explicitly instead of matching on string prefixes.
type Role int

const (
	RoleUnknown Role = iota
	RoleCitizen
	RoleResponder
	RoleMunicipalAdmin
	RoleProvincialAdmin
)

var roleNames = map[Role]string{
	RoleUnknown:         "unknown",
	RoleCitizen:         "citizen",
	RoleResponder:       "responder",
	RoleMunicipalAdmin:  "municipal_admin",
	RoleProvincialAdmin: "provincial_admin",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unknown"
}

// ParseRole maps a stored role string to a Role. Unrecognized values,
// including legacy "admin_*" spellings, resolve conservatively.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "citizen":
		return RoleCitizen
	case "responder":
		return RoleResponder
	case "municipal_admin", "admin_municipal":
		return RoleMunicipalAdmin
	case "provincial_admin", "admin_provincial", "superadmin_provincial":
		return RoleProvincialAdmin
	default:
		return RoleUnknown
	}
}

// CanBroadcast reports whether the role may send alerts to topics
func (r Role) CanBroadcast() bool {
	return r == RoleMunicipalAdmin || r == RoleProvincialAdmin
}

// CanModerate reports whether the role may change report verification status
func (r Role) CanModerate() bool {
	return r == RoleResponder || r == RoleMunicipalAdmin || r == RoleProvincialAdmin
}

// UserProfile is the read-only slice of the platform's user document this
// service needs: enough to authorize admin operations and address the reporter.
type UserProfile struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
}

// VerificationStatus is the moderation state of a report
type VerificationStatus string

const (
	StatusPending  VerificationStatus = "pending"
	StatusVerified VerificationStatus = "verified"
	StatusRejected VerificationStatus = "rejected"
	StatusResolved VerificationStatus = "resolved"
)

// Notifiable reports whether a status transition warrants a reporter
// notification. Pending and anything unrecognized do not.
func (s VerificationStatus) Notifiable() bool {
	switch s {
	case StatusVerified, StatusRejected, StatusResolved:
		return true
	default:
		return false
	}
}

// ParseVerificationStatus validates a client-supplied status string
func ParseVerificationStatus(s string) (VerificationStatus, bool) {
	switch VerificationStatus(strings.ToLower(strings.TrimSpace(s))) {
	case StatusPending:
		return StatusPending, true
	case StatusVerified:
		return StatusVerified, true
	case StatusRejected:
		return StatusRejected, true
	case StatusResolved:
		return StatusResolved, true
	default:
		return "", false
	}
}

// Report is the slice of a citizen report this service persists and reads.
// Full report content (media, geometry, comments) is owned by the platform.
type Report struct {
	ID                 string             `json:"id"`
	ReporterID         string             `json:"reporter_id"`
	Anonymous          bool               `json:"anonymous"`
	Municipality       string             `json:"municipality"`
	DisasterType       string             `json:"disaster_type"`
	Severity           string             `json:"severity"`
	Description        string             `json:"description"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// Subscription maps a (user, topic) pair to a push delivery token
type Subscription struct {
	UserID       string    `json:"user_id"`
	Topic        string    `json:"topic"`
	Token        string    `json:"token"`
	SubscribedAt time.Time `json:"subscribed_at"`
}

// ReportCreatedEvent is published after a report is persisted
type ReportCreatedEvent struct {
	ReportID     string `json:"report_id"`
	Municipality string `json:"municipality"`
	DisasterType string `json:"disaster_type"`
	Severity     string `json:"severity"`
	Description  string `json:"description"`
}

// VerificationChangedEvent is published after a report's verification
// status is updated
type VerificationChangedEvent struct {
	ReportID   string             `json:"report_id"`
	ReporterID string             `json:"reporter_id"`
	Anonymous  bool               `json:"anonymous"`
	OldStatus  VerificationStatus `json:"old_status"`
	NewStatus  VerificationStatus `json:"new_status"`
}

// DeliveryRecord is the aggregate outcome of one dispatch, written to the
// delivery audit log
type DeliveryRecord struct {
	EventType  string    `json:"event_type"`
	Topic      string    `json:"topic"`
	ReportID   string    `json:"report_id"`
	Recipients int       `json:"recipients"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	MessageID  string    `json:"message_id"`
	SentAt     time.Time `json:"sent_at"`
}
