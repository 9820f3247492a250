package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/lnbits/scrum/domain"
)

const internalErrorDetail = "Internal server error."

var errorKinds = []struct {
	kind   error
	status int
	stage  string
}{
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
	{domain.ErrValidation, http.StatusBadRequest, "validation"},
	{domain.ErrPayoutResolution, http.StatusBadRequest, "payout_resolution"},
	{domain.ErrPaymentExecution, http.StatusBadGateway, "payment"},
	{domain.ErrConcurrencyConflict, http.StatusConflict, "conflict"},
	{errBodyTooLarge, http.StatusRequestEntityTooLarge, "body_size"},
}

func statusFor(err error) (int, string) {
	for _, k := range errorKinds {
		if errors.Is(err, k.kind) {
			return k.status, k.stage
		}
	}
	return http.StatusInternalServerError, "storage"
}

// writeError renders err as {"detail": ...}. Unclassified errors are logged
// and reported without their internals.
func writeError(c echo.Context, logger *log.Logger, err error) error {
	status, _ := statusFor(err)
	detail := domain.Message(err)
	if status == http.StatusInternalServerError {
		if logger != nil {
			logger.WithError(err).WithFields(log.Fields{
				"method": c.Request().Method,
				"path":   c.Path(),
			}).Error("request failed")
		}
		detail = internalErrorDetail
	}
	return c.JSON(status, errorResponse{Detail: detail})
}

func unauthorized(c echo.Context, err error) error {
	return c.JSON(http.StatusUnauthorized, errorResponse{Detail: err.Error()})
}
