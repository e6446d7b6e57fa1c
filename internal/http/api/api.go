package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/apperror"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/http/middleware"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
)

// Error is the error every handler returns. It carries its own HTTP status.
type Error = apperror.Error

type HandlerFuncWithAuth func(ctx *gin.Context, id *model.Identity) (any, *Error)
type HandlerFunc func(ctx *gin.Context) (any, *Error)

type errorBody struct {
	Error *Error `json:"error"`
}

// Fail converts any error into a handler error.
func Fail(err error) *Error {
	return apperror.FromError(err)
}

// BadRequest wraps a binding or parsing failure.
func BadRequest(err error) *Error {
	return apperror.Wrap(err, apperror.ErrValidation, err.Error())
}

func ResolveEndpointWithAuth(h HandlerFuncWithAuth) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id, ok := middleware.GetCurrentIdentity(ctx)
		if !ok {
			writeError(ctx, apperror.ErrUnauthorized)
			return
		}

		result, err := h(ctx, id)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, result)
	}
}

func ResolveEndpoint(h HandlerFunc) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		result, err := h(ctx)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, result)
	}
}

func writeError(ctx *gin.Context, err *Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		requestLogger(ctx).Error().Err(err).
			Str("path", ctx.FullPath()).
			Msg("request failed")
	}
	ctx.Header("Cache-Control", "no-store")
	ctx.AbortWithStatusJSON(status, errorBody{Error: err})
}
