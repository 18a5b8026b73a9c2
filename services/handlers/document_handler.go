package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/saathi-legal/saathi_api/dto"
	"github.com/saathi-legal/saathi_api/middleware"
	"github.com/saathi-legal/saathi_api/shared"
	log "github.com/sirupsen/logrus"
)

const HeaderDocumentArchived = "X-Document-Archived"

type DocumentHandler struct {
	renderer DocumentRenderer
	archive  DocumentArchive
}

// NewDocumentHandler builds the handler. archive may be nil, in which case
// documents are never stored.
func NewDocumentHandler(renderer DocumentRenderer, archive DocumentArchive) *DocumentHandler {
	return &DocumentHandler{
		renderer: renderer,
		archive:  archive,
	}
}

func (h *DocumentHandler) Generate(c *fiber.Ctx) error {
	var req dto.GenerateDocumentRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	document, err := h.renderer.Render(c.UserContext(), req)
	if err != nil {
		return err
	}

	identifier := middleware.AnonymousIDFrom(c)
	if h.archive != nil && identifier != "" && allowsArchive(c) {
		objectName, err := h.archive.Archive(c.UserContext(), identifier, document)
		if err != nil {
			// The caller still gets the document.
			log.WithFields(log.Fields{
				"anonymous_id": identifier,
				"error":        err.Error(),
			}).Warn("Failed to archive generated document")
		} else {
			log.WithFields(log.Fields{
				"anonymous_id": identifier,
				"object":       objectName,
			}).Debug("Archived generated document")
			c.Set(HeaderDocumentArchived, "true")
		}
	}

	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s.pdf"`, req.TemplateID))
	return c.Status(fiber.StatusOK).Send(document)
}

func allowsArchive(c *fiber.Ctx) bool {
	decision := middleware.ConsentFrom(c)
	return decision != nil && decision.Scope.Allows(shared.ScopeStoreDocuments)
}
