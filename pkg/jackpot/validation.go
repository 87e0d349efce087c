package jackpot

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/Altmerian/jackpot/errors"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	validate.RegisterCustomTypeFunc(func(v reflect.Value) interface{} {
		if d, ok := v.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
}

// Violation describes one rejected field.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports malformed input. It unwraps to an ErrInvalidRequest
// AppError so errors.Is and HTTP mapping treat it as a client error.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := lo.Map(e.Violations, func(v Violation, _ int) string {
		return v.Field + ": " + v.Message
	})
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return errors.New(errors.ErrInvalidRequest, "validation failed")
}

// Wager is the input of a contribution.
type Wager struct {
	BetID     string          `json:"betId" validate:"required"`
	JackpotID string          `json:"jackpotId" validate:"required"`
	BetAmount decimal.Decimal `json:"betAmount" validate:"gt=0"`
}

// EvaluationRequest identifies the bet to evaluate.
type EvaluationRequest struct {
	BetID     string `json:"betId" form:"betId" validate:"required"`
	JackpotID string `json:"jackpotId" form:"jackpotId" validate:"required"`
}

// ValidateStruct runs struct tag validation and converts failures into a
// ValidationError.
func ValidateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return errors.Wrap(err, errors.ErrInvalidRequest, "invalid input")
	}
	return &ValidationError{Violations: lo.Map(fieldErrs, func(fe validator.FieldError, _ int) Violation {
		return Violation{Field: fe.Field(), Message: describe(fe)}
	})}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must not be blank"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	default:
		return fmt.Sprintf("failed on %q", fe.Tag())
	}
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Violations: []Violation{{Field: field, Message: message}}}
}
