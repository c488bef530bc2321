package handlers

import (
	"errors"
	"fmt"
	"strings"

	"shakti-alert-backend/internal/models"

	"github.com/go-playground/validator/v10"
)

// EmergencyContactRequest is the emergency contact part of a registration
type EmergencyContactRequest struct {
	Name         string `json:"name" validate:"required"`
	Phone        string `json:"phone" validate:"required"`
	Relationship string `json:"relationship" validate:"required"`
}

// PilgrimInfoRequest carries pilgrim-only registration fields
type PilgrimInfoRequest struct {
	GroupSize    int    `json:"group_size" validate:"min=1"`
	SpecialNeeds string `json:"special_needs"`
}

// VolunteerInfoRequest carries volunteer-only registration fields
type VolunteerInfoRequest struct {
	Skills       []string `json:"skills" validate:"min=1,dive,required"`
	Availability string   `json:"availability" validate:"required"`
	Experience   string   `json:"experience"`
}

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Name             string                   `json:"name" validate:"required"`
	Phone            string                   `json:"phone" validate:"required,min=10"`
	Email            string                   `json:"email" validate:"required,email"`
	Password         string                   `json:"password" validate:"required,min=6,max=72"`
	ConfirmPassword  string                   `json:"confirm_password" validate:"eqfield=Password"`
	Role             models.Role              `json:"role" validate:"required,oneof=pilgrim volunteer"`
	EmergencyContact *EmergencyContactRequest `json:"emergency_contact" validate:"required"`
	PilgrimInfo      *PilgrimInfoRequest      `json:"pilgrim_info"`
	VolunteerInfo    *VolunteerInfoRequest    `json:"volunteer_info"`
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Phone    string `json:"phone" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// DeviceTokenRequest represents the request body for device token registration
type DeviceTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// BroadcastRequest represents the request body for raising an alert
type BroadcastRequest struct {
	Type    models.AlertType `json:"type" validate:"required,oneof=sos gesture voice inactivity"`
	Message string           `json:"message"`
}

// Validator checks request bodies
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a validator with the registration rules installed
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterStructValidation(validateRoleInfo, RegisterRequest{})
	return &Validator{validate: v}
}

// Validate checks i and returns a readable error
func (v *Validator) Validate(i interface{}) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func validateRoleInfo(sl validator.StructLevel) {
	req := sl.Current().Interface().(RegisterRequest)
	switch req.Role {
	case models.RolePilgrim:
		if req.PilgrimInfo == nil {
			sl.ReportError(req.PilgrimInfo, "PilgrimInfo", "pilgrim_info", "required_for_role", string(req.Role))
		}
	case models.RoleVolunteer:
		if req.VolunteerInfo == nil {
			sl.ReportError(req.VolunteerInfo, "VolunteerInfo", "volunteer_info", "required_for_role", string(req.Role))
		}
	}
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.StructNamespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "required_for_role":
		return fmt.Sprintf("%s is required for role %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "email":
		return field + " must be a valid email"
	case "eqfield":
		return "passwords do not match"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func (r RegisterRequest) toModel() models.RegistrationData {
	data := models.RegistrationData{
		Name:     strings.TrimSpace(r.Name),
		Phone:    strings.TrimSpace(r.Phone),
		Email:    strings.ToLower(strings.TrimSpace(r.Email)),
		Password: r.Password,
		Role:     r.Role,
		EmergencyContact: &models.EmergencyContact{
			Name:         strings.TrimSpace(r.EmergencyContact.Name),
			Phone:        strings.TrimSpace(r.EmergencyContact.Phone),
			Relationship: strings.TrimSpace(r.EmergencyContact.Relationship),
		},
	}

	switch r.Role {
	case models.RolePilgrim:
		data.PilgrimInfo = &models.PilgrimInfo{
			GroupSize:    r.PilgrimInfo.GroupSize,
			SpecialNeeds: strings.TrimSpace(r.PilgrimInfo.SpecialNeeds),
		}
	case models.RoleVolunteer:
		skills := make([]string, 0, len(r.VolunteerInfo.Skills))
		for _, s := range r.VolunteerInfo.Skills {
			if s = strings.TrimSpace(s); s != "" {
				skills = append(skills, s)
			}
		}
		data.VolunteerInfo = &models.VolunteerInfo{
			Skills:       skills,
			Availability: strings.TrimSpace(r.VolunteerInfo.Availability),
			Experience:   strings.TrimSpace(r.VolunteerInfo.Experience),
		}
	}
	return data
}
