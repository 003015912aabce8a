package sessiongate

import (
	"time"

	"github.com/guardianentry/sessiongate/store"
)

// ActiveSession is the result of a per-user session check.
type ActiveSession struct {
	Active    bool      `json:"active"`
	DeviceID  string    `json:"device_id,omitempty"`
	LoginTime time.Time `json:"login_time,omitempty"`

	// Session is the live record. Nil when Active is false.
	Session *store.Session `json:"-"`
}

// RoleSession is the result of a role-level session check.
type RoleSession struct {
	Active           bool   `json:"active"`
	ExistingUserID   string `json:"existing_user_id,omitempty"`
	ExistingDeviceID string `json:"existing_device_id,omitempty"`
}

// DeviceInfo describes the calling device.
type DeviceInfo struct {
	// ID is the device fingerprint that sessions are bound to.
	ID         string `json:"id"`
	IP         string `json:"ip"`
	UserAgent  string `json:"user_agent"`
	Browser    string `json:"browser"`
	OS         string `json:"os"`
	DeviceType string `json:"device_type"` // mobile, desktop, tablet, bot
}

// Label renders a short description such as "Chrome 120.0 on Android 14 (mobile)".
func (d DeviceInfo) Label() string {
	label := d.Browser
	if label == "" {
		label = "Unknown browser"
	}
	if d.OS != "" {
		label += " on " + d.OS
	}
	if d.DeviceType != "" {
		label += " (" + d.DeviceType + ")"
	}
	return label
}

// LocationInfo contains geographic location extracted from IP address.
type LocationInfo struct {
	IP      string `json:"ip"`
	City    string `json:"city"`
	Country string `json:"country"`
}

// LoginRequest is the input to Admit.
type LoginRequest struct {
	UserID   string
	Role     string
	Device   DeviceInfo
	Location LocationInfo
}

// Outcome is the result of login admission.
type Outcome int

const (
	// OutcomeAdmitted means the session was created or refreshed.
	OutcomeAdmitted Outcome = iota

	// OutcomeConflict means the user holds a live session on another device.
	OutcomeConflict

	// OutcomeRoleLimit means the capped role policy rejected the login.
	OutcomeRoleLimit
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdmitted:
		return "admitted"
	case OutcomeConflict:
		return "conflict"
	case OutcomeRoleLimit:
		return "role_limit"
	default:
		return "unknown"
	}
}

// Admission is returned from Admit.
type Admission struct {
	Outcome Outcome

	// Session is the stored session. Set when Outcome is OutcomeAdmitted.
	Session *store.Session

	// Existing is the blocking session. Set when Outcome is OutcomeConflict.
	Existing *store.Session

	// Evicted lists user IDs whose sessions were preempted by this login.
	Evicted []string

	// ActiveCount is the number of live sessions of the role observed under
	// the capped policy.
	ActiveCount int
}

// Verdict is the auth gate decision for one request.
type Verdict int

const (
	// VerdictNoSession means the user has no live session.
	VerdictNoSession Verdict = iota

	// VerdictDeviceMismatch means the live session belongs to another device.
	VerdictDeviceMismatch

	// VerdictAllowed means the request may proceed.
	VerdictAllowed
)

func (v Verdict) String() string {
	switch v {
	case VerdictNoSession:
		return "no_session"
	case VerdictDeviceMismatch:
		return "device_mismatch"
	case VerdictAllowed:
		return "allowed"
	default:
		return "unknown"
	}
}

// SweepResult summarises one sweep pass.
type SweepResult struct {
	Scanned int `json:"scanned"`
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}
