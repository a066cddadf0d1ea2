package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/seatwise/seatwise/internal/domain"
	"github.com/seatwise/seatwise/internal/response"
)

// handleError maps domain error kinds onto the HTTP edge. Conflicts and
// inventory shortages are client-visible outcomes, not server failures.
func handleError(c *gin.Context, err error) {
	switch {
	case domain.IsNotFoundError(err):
		response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error(), "")
	case domain.IsInsufficientError(err):
		response.Error(c, http.StatusConflict, response.CodeInsufficient, err.Error(), "")
	case domain.IsConflictError(err):
		response.Error(c, http.StatusConflict, response.CodeConflict, err.Error(), "")
	case domain.IsExpiredError(err):
		response.Error(c, http.StatusGone, response.CodeExpired, err.Error(), "")
	case domain.IsNotAdmittedError(err):
		response.Error(c, http.StatusForbidden, response.CodeNotAdmitted, err.Error(),
			"join the event queue and wait for a processing window")
	case domain.IsInvalidStateError(err):
		response.Error(c, http.StatusUnprocessableEntity, response.CodeInvalidState, err.Error(), "")
	default:
		response.InternalError(c, err)
	}
}
