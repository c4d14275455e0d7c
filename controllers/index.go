package controllers

import (
	"database/sql"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fintrackhq/fintrack/storage"
	u "github.com/fintrackhq/fintrack/utils"
	"github.com/fintrackhq/fintrack/utils/logger"
)

// Controller is the default controller for catalog endpoints
type Controller struct {
	db *sql.DB
}

// NewController creates a new instance of Controller
func NewController(db *sql.DB) *Controller {
	return &Controller{db: db}
}

// GetProviders controller fetches the supported data providers
func (ctrl *Controller) GetProviders(ctx *gin.Context) {
	providers, err := storage.NewProviderRepository(ctrl.db).List(ctx)
	if err != nil {
		logger.Errorf("Failed to fetch providers: %v", err)
		u.APIResponse(ctx, http.StatusInternalServerError, "error",
			"Failed to fetch providers", fmt.Sprintf("%v", err))
		return
	}

	u.APIResponse(ctx, http.StatusOK, "success", "Providers retrieved successfully", providers)
}

// GetInstitutions controller fetches the enabled institutions of one provider
func (ctrl *Controller) GetInstitutions(ctx *gin.Context) {
	providerID, err := uuid.Parse(ctx.Query("provider_id"))
	if err != nil {
		u.APIResponse(ctx, http.StatusBadRequest, "error",
			"Invalid provider_id", nil)
		return
	}

	institutions, err := storage.NewInstitutionRepository(ctrl.db).ListByProvider(ctx, providerID)
	if err != nil {
		logger.Errorf("Failed to fetch institutions: %v", err)
		u.APIResponse(ctx, http.StatusInternalServerError, "error",
			"Failed to fetch institutions", fmt.Sprintf("%v", err))
		return
	}

	u.APIResponse(ctx, http.StatusOK, "success", "Institutions retrieved successfully", institutions)
}
