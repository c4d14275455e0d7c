package webhooks

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fintrackhq/fintrack/services/providers"
	"github.com/fintrackhq/fintrack/storage"
	"github.com/fintrackhq/fintrack/types"
	"github.com/fintrackhq/fintrack/utils/logger"
)

// ack acknowledges a webhook with success
func ack(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, types.WebhookResponse{Success: true})
}

// reject responds with the failure envelope at the given status
func reject(ctx *gin.Context, status int, message string) {
	ctx.JSON(status, types.WebhookResponse{Success: false, Error: message})
}

// rejectError maps a dispatch error onto the response contract: 404 for
// an expected absent entity, 500 for everything else.
func rejectError(ctx *gin.Context, providerName string, err error) {
	logger.WithFields(logger.Fields{
		"Provider": providerName,
		"Error":    err.Error(),
	}).Errorf("webhook dispatch failed")

	if storage.IsNotFound(err) {
		reject(ctx, http.StatusNotFound, err.Error())
		return
	}
	if errors.Is(err, providers.ErrInitialSyncIncomplete) {
		reject(ctx, http.StatusInternalServerError, "initial sync incomplete")
		return
	}
	reject(ctx, http.StatusInternalServerError, err.Error())
}
