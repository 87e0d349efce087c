package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/Altmerian/jackpot/errors"
	"github.com/Altmerian/jackpot/logging"
	"github.com/Altmerian/jackpot/pkg/jackpot"
	"github.com/Altmerian/jackpot/types"
)

// ErrUndefinedErrorCode marks errors that carry no application code.
const ErrUndefinedErrorCode = -99

// ErrorResponse is an alias for types.ErrorResponse
type ErrorResponse = types.ErrorResponse

// Success sends a success response
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, types.SuccessResponse[interface{}]{
		StatusCode: statusCode,
		IsSuccess:  true,
		Data:       data,
	})
}

// OK sends a 200 OK response
func OK(c *gin.Context, data interface{}) {
	Success(c, http.StatusOK, data)
}

// Accepted sends a 202 Accepted response
func Accepted(c *gin.Context, data interface{}) {
	Success(c, http.StatusAccepted, data)
}

// Error sends an error response
func Error(c *gin.Context, statusCode int, err error) {
	detail := types.NewErrorDetail(time.Now().Format(time.RFC3339), c.Request.URL.Path,
		logging.TraceIDFromContext(c.Request.Context()), ErrUndefinedErrorCode, err.Error())
	if appErr, ok := errors.As(err); ok {
		detail.ErrorMessage = appErr.Message
		detail.ErrorCode = appErr.Code
	}

	var verr *jackpot.ValidationError
	if stderrors.As(err, &verr) {
		detail.ErrorMessage = "validation failed"
		detail.ErrorCode = errors.ErrInvalidRequest
		detail.Violations = lo.Map(verr.Violations, func(v jackpot.Violation, _ int) types.FieldViolation {
			return types.FieldViolation{Field: v.Field, Message: v.Message}
		})
	}

	c.AbortWithStatusJSON(statusCode, types.ErrorResponse{
		StatusCode: statusCode,
		IsSuccess:  false,
		Error:      detail,
	})
}

// ErrorWithMessage sends an error response with a custom message
func ErrorWithMessage(c *gin.Context, statusCode int, message string) {
	Error(c, statusCode, stderrors.New(message))
}

// BadRequest sends a 400 Bad Request response
func BadRequest(c *gin.Context, err error) {
	Error(c, http.StatusBadRequest, err)
}

// HandleAppError maps err to a status code and sends the error response.
func HandleAppError(c *gin.Context, err error) {
	var verr *jackpot.ValidationError
	switch {
	case stderrors.As(err, &verr):
		BadRequest(c, err)
	case errors.IsAppError(err):
		Error(c, errors.HTTPStatusFromCode(errors.GetCode(err)), err)
	case stderrors.Is(err, context.DeadlineExceeded):
		Error(c, http.StatusServiceUnavailable, errors.New(errors.ErrServiceUnavailable, "request timed out"))
	default:
		Error(c, http.StatusInternalServerError, errors.Wrap(err, errors.ErrInternalServerError, "internal server error"))
	}
}

// bindingError converts a gin binding failure into a validation error.
func bindingError(err error) error {
	var verr *jackpot.ValidationError
	if stderrors.As(err, &verr) {
		return err
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case stderrors.As(err, &typeErr):
		return jackpot.NewValidationError(typeErr.Field, "has an invalid type")
	case stderrors.As(err, &syntaxErr):
		return jackpot.NewValidationError("body", "is not valid JSON")
	default:
		return jackpot.NewValidationError("body", err.Error())
	}
}

// money renders an amount with two decimals as a JSON number.
func money(d decimal.Decimal) json.Number {
	return json.Number(jackpot.RoundMoney(d).StringFixed(jackpot.MoneyScale))
}

// probability renders a probability with six decimals as a JSON number.
func probability(d decimal.Decimal) json.Number {
	return json.Number(jackpot.RoundProbability(d).StringFixed(jackpot.ProbabilityScale))
}

// optionalNumber renders a configured parameter, or null when unset.
func optionalNumber(d decimal.NullDecimal) *json.Number {
	if !d.Valid {
		return nil
	}
	n := json.Number(d.Decimal.String())
	return &n
}
