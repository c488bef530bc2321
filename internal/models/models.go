package models

import "time"

// Role identifies which side of the alert flow a user is on
type Role string

const (
	RolePilgrim   Role = "pilgrim"
	RoleVolunteer Role = "volunteer"
)

// EmergencyContact is the person to reach on behalf of a user
type EmergencyContact struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship"`
}

// PilgrimInfo holds pilgrim-only profile fields
type PilgrimInfo struct {
	GroupSize    int    `json:"group_size"`
	SpecialNeeds string `json:"special_needs"`
}

// VolunteerInfo holds volunteer-only profile fields
type VolunteerInfo struct {
	Skills       []string `json:"skills"`
	Availability string   `json:"availability"`
	Experience   string   `json:"experience"`
}

// User represents a registered account
type User struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Phone            string            `json:"phone"`
	Email            string            `json:"email"`
	Role             Role              `json:"role"`
	EmergencyContact *EmergencyContact `json:"emergency_contact,omitempty"`
	PilgrimInfo      *PilgrimInfo      `json:"pilgrim_info,omitempty"`
	VolunteerInfo    *VolunteerInfo    `json:"volunteer_info,omitempty"`
	RegisteredAt     time.Time         `json:"registered_at"`
	LastLogin        time.Time         `json:"last_login"`
}

// Clone returns a deep copy so callers never share state with the store
func (u User) Clone() User {
	if u.EmergencyContact != nil {
		ec := *u.EmergencyContact
		u.EmergencyContact = &ec
	}
	if u.PilgrimInfo != nil {
		pi := *u.PilgrimInfo
		u.PilgrimInfo = &pi
	}
	if u.VolunteerInfo != nil {
		vi := *u.VolunteerInfo
		vi.Skills = append([]string(nil), vi.Skills...)
		u.VolunteerInfo = &vi
	}
	return u
}

// RegistrationData is the input to account registration
type RegistrationData struct {
	Name             string
	Phone            string
	Email            string
	Password         string
	Role             Role
	EmergencyContact *EmergencyContact
	PilgrimInfo      *PilgrimInfo
	VolunteerInfo    *VolunteerInfo
}

// Credential is the stored secret for a phone number
type Credential struct {
	Phone  string `json:"phone"`
	Secret string `json:"secret"`
}

// AlertType identifies what triggered an alert
type AlertType string

const (
	AlertTypeSOS        AlertType = "sos"
	AlertTypeGesture    AlertType = "gesture"
	AlertTypeVoice      AlertType = "voice"
	AlertTypeInactivity AlertType = "inactivity"
)

// Valid reports whether t is one of the known alert types
func (t AlertType) Valid() bool {
	switch t {
	case AlertTypeSOS, AlertTypeGesture, AlertTypeVoice, AlertTypeInactivity:
		return true
	}
	return false
}

// AlertStatus is the lifecycle state of an alert
type AlertStatus string

const (
	AlertStatusActive       AlertStatus = "active"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
)

// Location is where an alert was raised
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   *string `json:"address,omitempty"`
}

// Alert represents a distress signal and its lifecycle
type Alert struct {
	ID             string      `json:"id"`
	Type           AlertType   `json:"type"`
	PilgrimName    string      `json:"pilgrim_name"`
	PilgrimPhone   string      `json:"pilgrim_phone"`
	Location       *Location   `json:"location,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
	Message        string      `json:"message"`
	Status         AlertStatus `json:"status"`
	AcknowledgedBy *string     `json:"acknowledged_by,omitempty"`
}

// Clone returns a deep copy of the alert
func (a Alert) Clone() Alert {
	if a.Location != nil {
		loc := *a.Location
		if loc.Address != nil {
			addr := *loc.Address
			loc.Address = &addr
		}
		a.Location = &loc
	}
	if a.AcknowledgedBy != nil {
		by := *a.AcknowledgedBy
		a.AcknowledgedBy = &by
	}
	return a
}

// Response represents a volunteer's acknowledgment of an alert
type Response struct {
	VolunteerName  string    `json:"volunteer_name"`
	VolunteerPhone string    `json:"volunteer_phone"`
	AlertID        string    `json:"alert_id"`
	Timestamp      time.Time `json:"timestamp"`
	Message        string    `json:"message"`
}

// DeviceToken ties an APNs device token to a user
type DeviceToken struct {
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	UpdatedAt time.Time `json:"updated_at"`
}
