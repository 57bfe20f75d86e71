package handlers

import (
	"net/http"

	"github.com/agentbooks/portal-gateway/services"
	"github.com/agentbooks/portal-gateway/utils"
	"go.uber.org/zap"
)

// InvalidLoginMessage is the only message a failed login ever shows. It does not
// say whether the user exists, the password was wrong, or the profile lookup failed.
const InvalidLoginMessage = "Invalid email or password"

// HandleServiceError maps domain errors to HTTP responses. Only the domain
// error's own message reaches the client; wrapped causes stay in the logs.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)
	message := services.GetErrorMessage(err)

	var writeErr error
	switch {
	case services.IsInvalidInputError(err):
		writeErr = utils.WriteBadRequest(w, message, details)

	case services.IsInvalidCredentialsError(err), services.IsAuthenticationFailedError(err):
		logger.Info("authentication rejected",
			zap.String("error_type", string(services.GetErrorType(err))),
			zap.Error(err))
		writeErr = utils.WriteUnauthorized(w, InvalidLoginMessage)

	case services.IsSessionInvalidError(err), services.IsUnauthorizedError(err):
		writeErr = utils.WriteUnauthorized(w, message)

	case services.IsUnknownRoleError(err):
		logger.Warn("role has no portal", zap.Error(err))
		writeErr = utils.WriteForbidden(w, message)

	case services.IsForbiddenError(err):
		writeErr = utils.WriteForbidden(w, message)

	case services.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, message)

	case services.IsInternalError(err):
		// Log internal errors but return generic message
		status := services.GetErrorStatus(err)
		logger.Error("internal server error",
			zap.Int("status", status),
			zap.Error(err))
		writeErr = utils.WriteError(w, status, "An internal error occurred", nil)

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		if err := utils.WriteBadRequest(w, "Validation failed", utils.FieldDetails(err)); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	// Generic validation error
	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
