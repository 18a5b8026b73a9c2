package consentgate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/saathi-legal/saathi_api/dto"
	"github.com/saathi-legal/saathi_api/shared"
)

var ErrSubmissionRejected = errors.New("consentgate: submission rejected")

// HTTPSubmitter posts decisions to the server's consent endpoint.
type HTTPSubmitter struct {
	baseURL string
	timeout time.Duration
}

func NewHTTPSubmitter(baseURL string, timeout time.Duration) *HTTPSubmitter {
	if timeout <= 0 {
		timeout = DefaultSubmitTimeout
	}
	return &HTTPSubmitter{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
	}
}

func (s *HTTPSubmitter) Submit(ctx context.Context, req dto.RecordConsentRequest) error {
	timeout := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}

	agent := fiber.Post(s.baseURL + "/consent").
		Timeout(timeout).
		JSONEncoder(shared.JSONMarshal).
		JSON(req)
	agent.Set(shared.HeaderAnonymousID, req.Identifier)

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if code < fiber.StatusOK || code >= fiber.StatusMultipleChoices {
		return fmt.Errorf("%w: status %d: %s", ErrSubmissionRejected, code, truncate(body, 200))
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
