package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/agendmed/internal/catalog"
	"github.com/wolfman30/agendmed/internal/compliance"
	"github.com/wolfman30/agendmed/pkg/logging"
)

// CatalogReloader drops and refetches a tenant's cached services.
type CatalogReloader interface {
	Invalidate(tenantID string)
	Load(ctx context.Context, tenantID string) ([]catalog.ServiceOffering, error)
}

type CatalogHandler struct {
	catalog CatalogReloader
	auditor Auditor
	logger  *logging.Logger
}

func NewCatalogHandler(c CatalogReloader, logger *logging.Logger) *CatalogHandler {
	if c == nil {
		panic("handlers: catalog cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CatalogHandler{catalog: c, logger: logger}
}

// WithAuditor records reloads.
func (h *CatalogHandler) WithAuditor(a Auditor) *CatalogHandler {
	h.auditor = a
	return h
}

// Reload handles POST /api/catalog/{tenant}/reload.
func (h *CatalogHandler) Reload(w http.ResponseWriter, r *http.Request) {
	tenant := strings.TrimSpace(chi.URLParam(r, "tenant"))
	if tenant == "" {
		jsonError(w, "tenant is required", http.StatusBadRequest)
		return
	}
	h.catalog.Invalidate(tenant)
	services, err := h.catalog.Load(r.Context(), tenant)
	if errors.Is(err, catalog.ErrUnavailable) {
		h.logger.Warn("catalog reload failed", "error", err, "tenant_id", tenant)
		jsonError(w, "services unavailable upstream", http.StatusBadGateway)
		return
	}
	if err != nil {
		h.logger.Error("catalog reload failed", "error", err, "tenant_id", tenant)
		jsonError(w, "failed to reload catalog", http.StatusInternalServerError)
		return
	}
	audit(r, h.auditor, h.logger, compliance.AuditEvent{
		EventType: compliance.EventCatalogReloaded,
		TenantID:  tenant,
		Details:   compliance.Details(map[string]int{"services": len(services)}),
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"total":    len(services),
		"services": services,
	})
}
