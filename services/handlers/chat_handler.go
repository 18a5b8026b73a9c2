package handlers

import (
	"math"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/saathi-legal/saathi_api/dto"
	"github.com/saathi-legal/saathi_api/middleware"
	"github.com/saathi-legal/saathi_api/shared"
	log "github.com/sirupsen/logrus"
)

const defaultLanguage = "en"

type ChatHandler struct {
	completer ChatCompleter
	now       func() time.Time
}

func NewChatHandler(completer ChatCompleter, now func() time.Time) *ChatHandler {
	if now == nil {
		now = time.Now
	}
	return &ChatHandler{
		completer: completer,
		now:       now,
	}
}

func (h *ChatHandler) Chat(c *fiber.Ctx) error {
	var req dto.ChatRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Language == "" {
		req.Language = defaultLanguage
	}

	reply, err := h.completer.Complete(c.UserContext(), req)
	if err != nil {
		log.WithFields(log.Fields{
			"anonymous_id": middleware.AnonymousIDFrom(c),
			"error":        err.Error(),
		}).Warn("Chat completion failed")
		return err
	}

	now := h.now()
	resp := dto.ChatResponse{
		Reply:     reply,
		Language:  req.Language,
		SessionID: req.SessionID,
		Timestamp: now.UTC(),
	}
	if d, ok := middleware.RateLimitDecisionFrom(c); ok {
		resetIn := int(math.Ceil(d.ResetAt.Sub(now).Seconds()))
		if resetIn < 0 {
			resetIn = 0
		}
		resp.RateLimit = &dto.RateLimitSummary{
			Limit:     d.Limit,
			Remaining: d.Remaining,
			ResetIn:   resetIn,
		}
	}

	return shared.ResponseOK(c, resp)
}
