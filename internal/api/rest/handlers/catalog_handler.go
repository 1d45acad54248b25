package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/spitkorean/billing-service/internal/catalog"
	"github.com/spitkorean/billing-service/pkg/logger"
)

// CatalogHandler serves the product catalog and bundle tiers
type CatalogHandler struct {
	catalog *catalog.Catalog
	log     *logger.Logger
}

// NewCatalogHandler creates a catalog handler
func NewCatalogHandler(cat *catalog.Catalog, log *logger.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: cat, log: log}
}

// GetCatalog returns all products and bundle tiers
func (h *CatalogHandler) GetCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"products": h.catalog.Products(),
		"tiers":    h.catalog.Tiers(),
	})
}
