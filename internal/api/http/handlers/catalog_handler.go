package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-workflow/internal/api/dto"
	"github.com/spec-kit/support-workflow/internal/service"
)

// CatalogHandler serves the ticket lookup tables.
type CatalogHandler struct {
	workflow *service.Workflow
}

// NewCatalogHandler constructs handler.
func NewCatalogHandler(workflow *service.Workflow) *CatalogHandler {
	return &CatalogHandler{workflow: workflow}
}

// Get GET /catalog.
func (h *CatalogHandler) Get(c *fiber.Ctx) error {
	catalog, err := h.workflow.Catalog(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewCatalogResponse(catalog)})
}
