package http

import (
	"errors"
	"net/http"

	"campus-takeout/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const CodeSuccess = 0

var kindCodes = map[domain.Kind]int{
	domain.KindInternal:          -1,
	domain.KindValidation:        -1001,
	domain.KindAmountMismatch:    -1002,
	domain.KindIllegalTransition: -1003,
	domain.KindUnauthenticated:   -2001,
	domain.KindTokenExpired:      -2002,
	domain.KindForbidden:         -2003,
	domain.KindInsufficientFunds: -3001,
	domain.KindConflict:          -3002,
	domain.KindNotFound:          -3004,
}

// Response is the envelope of every JSON reply.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type transitionData struct {
	From domain.OrderStatus `json:"from"`
	To   domain.OrderStatus `json:"to"`
}

// Code returns the wire code for an error kind.
func Code(kind domain.Kind) int {
	if c, ok := kindCodes[kind]; ok {
		return c
	}
	return kindCodes[domain.KindInternal]
}

func httpStatus(kind domain.Kind) int {
	switch kind {
	case domain.KindUnauthenticated, domain.KindTokenExpired:
		return http.StatusUnauthorized
	case domain.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

func success(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, Response{Code: CodeSuccess, Message: message, Data: data})
}

// fail writes err as an envelope. Internal faults are logged and their
// detail withheld from the caller.
func fail(c *gin.Context, log *zap.Logger, err error) {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		derr = domain.WrapError(domain.KindInternal, "internal error", err)
	}

	resp := Response{Code: Code(derr.Kind), Message: derr.Message}
	switch derr.Kind {
	case domain.KindInternal:
		log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Error(err))
		resp.Message = "internal server error"
	case domain.KindIllegalTransition:
		resp.Data = transitionData{From: derr.From, To: derr.To}
	}
	c.AbortWithStatusJSON(httpStatus(derr.Kind), resp)
}

// bindError turns a binding failure into a validation error naming the
// first offending field.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return domain.NewError(domain.KindValidation, "%s failed on %s", fe.Field(), fe.Tag())
	}
	return domain.WrapError(domain.KindValidation, "malformed request body", err)
}
