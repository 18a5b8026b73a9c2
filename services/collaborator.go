package services

import (
	stdcontext "context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/saathi-legal/saathi_api/dto"
	"github.com/saathi-legal/saathi_api/shared"
	log "github.com/sirupsen/logrus"
)

// CollaboratorService calls the external chat completion and PDF rendering
// endpoints. Both are opaque: a JSON request in, a reply or a byte stream out.
type CollaboratorService struct {
	context.DefaultService

	chatURL     string
	rendererURL string
	timeout     time.Duration
}

const COLLABORATOR_SVC = "collaborator_svc"

var errCollaboratorNotConfigured = errors.New("collaborator endpoint not configured")

type chatCompletionRequest struct {
	Message   string `json:"message"`
	Language  string `json:"language,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

type chatCompletionResponse struct {
	Reply string `json:"reply"`
}

type renderRequest struct {
	TemplateID string            `json:"template_id"`
	Fields     map[string]string `json:"fields"`
}

func NewCollaboratorService(chatURL, rendererURL string, timeout time.Duration) *CollaboratorService {
	return &CollaboratorService{
		chatURL:     chatURL,
		rendererURL: rendererURL,
		timeout:     timeout,
	}
}

func (svc CollaboratorService) Id() string {
	return COLLABORATOR_SVC
}

func (svc *CollaboratorService) Configure(ctx *context.Context) error {
	svc.chatURL = getEnv("CHAT_PROVIDER_URL", "")
	svc.rendererURL = getEnv("DOCUMENT_RENDERER_URL", "")
	svc.timeout = getEnvDuration("COLLABORATOR_TIMEOUT", 30*time.Second)
	return svc.DefaultService.Configure(ctx)
}

func (svc *CollaboratorService) Start() error {
	if svc.chatURL == "" {
		log.Warn("CHAT_PROVIDER_URL not set, chat requests will be rejected")
	}
	if svc.rendererURL == "" {
		log.Warn("DOCUMENT_RENDERER_URL not set, document requests will be rejected")
	}
	return nil
}

func (svc *CollaboratorService) agent(url string, body interface{}) *fiber.Agent {
	return fiber.Post(url).
		Timeout(svc.timeout).
		JSONEncoder(shared.JSONMarshal).
		JSONDecoder(shared.JSONUnmarshal).
		JSON(body)
}

// Complete returns the provider's reply to a chat message.
func (svc *CollaboratorService) Complete(ctx stdcontext.Context, req dto.ChatRequest) (string, error) {
	if svc.chatURL == "" {
		return "", shared.NewServiceUnavailableError(errCollaboratorNotConfigured, "Chat service not configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var out chatCompletionResponse
	code, _, errs := svc.agent(svc.chatURL, chatCompletionRequest{
		Message:   req.Message,
		Language:  req.Language,
		SessionID: req.SessionID,
	}).Struct(&out)

	if err := upstreamError("chat", code, errs); err != nil {
		return "", err
	}

	reply := strings.TrimSpace(out.Reply)
	if reply == "" {
		return "", shared.NewBadGatewayError(errors.New("empty reply"), "Chat service returned no reply")
	}
	return reply, nil
}

// Render returns the PDF produced for a template and field map.
func (svc *CollaboratorService) Render(ctx stdcontext.Context, req dto.GenerateDocumentRequest) ([]byte, error) {
	if svc.rendererURL == "" {
		return nil, shared.NewServiceUnavailableError(errCollaboratorNotConfigured, "Document service not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	code, body, errs := svc.agent(svc.rendererURL, renderRequest{
		TemplateID: req.TemplateID,
		Fields:     req.Fields,
	}).Bytes()

	if err := upstreamError("renderer", code, errs); err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, shared.NewBadGatewayError(errors.New("empty document"), "Document service returned no content")
	}
	return body, nil
}

func upstreamError(name string, code int, errs []error) error {
	if code != 0 && (code < fiber.StatusOK || code >= fiber.StatusMultipleChoices) {
		log.WithFields(log.Fields{
			"collaborator": name,
			"status":       code,
		}).Warn("Collaborator returned an error status")
		return shared.NewBadGatewayError(fmt.Errorf("%s returned status %d", name, code), "Upstream service error")
	}
	if len(errs) > 0 {
		err := errors.Join(errs...)
		log.WithFields(log.Fields{
			"collaborator": name,
			"error":        err.Error(),
		}).Warn("Collaborator request failed")
		return shared.NewServiceUnavailableError(err, "Upstream service unavailable")
	}
	return nil
}
