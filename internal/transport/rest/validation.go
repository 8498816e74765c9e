package rest

import (
	"fmt"
	"strings"

	"github.com/baechuer/artfront/services/visitor-state/internal/domain"
	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("item_id", validateItemID)
}

func validateItemID(fl validator.FieldLevel) bool {
	return domain.ValidateItemID(strings.TrimSpace(fl.Field().String())) == nil
}

type listActionRequest struct {
	Action string `json:"action" validate:"required,oneof=TOGGLE CLEAR"`
	ItemID string `json:"item_id" validate:"omitempty,item_id"`
}

type startEngagementRequest struct {
	ItemID    string `json:"item_id" validate:"required,item_id"`
	Referrer  string `json:"referrer" validate:"omitempty,max=512"`
	SessionID string `json:"session_id" validate:"omitempty,max=128"`
}

type itemRequest struct {
	ItemID string `json:"item_id" validate:"required,item_id"`
}

type updateEngagementRequest struct {
	DurationSeconds *int64  `json:"duration_seconds" validate:"omitempty,min=0"`
	LastInteraction *string `json:"last_interaction" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// validateRequest returns field -> message pairs suitable for the error meta.
func validateRequest(req any) map[string]string {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	ves, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"body": err.Error()}
	}
	out := make(map[string]string, len(ves))
	for _, fe := range ves {
		out[jsonName(fe.Field())] = formatFieldError(fe)
	}
	return out
}

func formatFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "item_id":
		return "1-128 characters of [A-Za-z0-9_.-]"
	case "datetime":
		return "must be RFC3339"
	default:
		return "is invalid"
	}
}

func jsonName(field string) string {
	switch field {
	case "ItemID":
		return "item_id"
	case "SessionID":
		return "session_id"
	case "DurationSeconds":
		return "duration_seconds"
	case "LastInteraction":
		return "last_interaction"
	default:
		return strings.ToLower(field)
	}
}
