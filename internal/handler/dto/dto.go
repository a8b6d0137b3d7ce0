// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"github.com/ezcommon/apply-portal/internal/model"
)

// ErrorResponse is the shared error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a machine-readable code and a human message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role,omitempty"`     // student (default) or org_admin
	OrgName  string `json:"org_name,omitempty"` // org_admin registrations only
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest is the body for POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutRequest is the body for POST /auth/logout.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// RenameOrgRequest is the body for PATCH /org.
type RenameOrgRequest struct {
	Name string `json:"name"`
}

// InviteStudentRequest is the body for POST /org/invitations.
type InviteStudentRequest struct {
	Email string `json:"email"`
}

// ChatMessage is one turn of the assistant conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body for POST /chat.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
}

// ChatResponse is the assistant's reply.
type ChatResponse struct {
	Reply string `json:"reply"`
}

// StartParseRequest is the body for POST /parse.
type StartParseRequest struct {
	Key string `json:"key"`
}

// BatchParseRequest is the body for POST /parse/batch.
type BatchParseRequest struct {
	Section string `json:"section"`
}

// FillFieldsRequest is the body for POST /formfill/fields.
type FillFieldsRequest struct {
	Fields          []model.FieldDefinition `json:"fields"`
	Section         string                  `json:"section,omitempty"`
	UseOptimization *bool                   `json:"use_optimization,omitempty"` // default true
}

// SchoolFormRequest is the body for POST /formfill/school.
type SchoolFormRequest struct {
	SchoolID        string               `json:"school_id"`
	Questions       []model.FormQuestion `json:"questions"`
	UseOptimization *bool                `json:"use_optimization,omitempty"` // default true
}

// GeneralFormRequest is the body for POST /formfill/general.
type GeneralFormRequest struct {
	Section         string `json:"section,omitempty"`
	UseOptimization *bool  `json:"use_optimization,omitempty"` // default true
}

// CreateWebhookRequest is the body for POST /org/webhooks.
type CreateWebhookRequest struct {
	TargetURL   string            `json:"target_url"`
	EventTypes  []model.EventType `json:"event_types,omitempty"`
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
}

// UpdateWebhookRequest is the body for PATCH /org/webhooks/{id}.
type UpdateWebhookRequest struct {
	TargetURL   *string            `json:"target_url,omitempty"`
	EventTypes  *[]model.EventType `json:"event_types,omitempty"`
	Name        *string            `json:"name,omitempty"`
	Description *string            `json:"description,omitempty"`
	Enabled     *bool              `json:"enabled,omitempty"`
}

// CreateWebhookResponse carries the endpoint plus its signing secret.
// The secret is shown exactly once, at creation or rotation.
type CreateWebhookResponse struct {
	Endpoint *model.WebhookEndpoint `json:"endpoint"`
	Secret   string                 `json:"secret"`
}
