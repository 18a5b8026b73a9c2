package services

import (
	stdcontext "context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/saathi-legal/saathi_api/dto"
	"github.com/saathi-legal/saathi_api/model"
	"github.com/saathi-legal/saathi_api/services/repositories"
	"github.com/saathi-legal/saathi_api/shared"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ConsentStore is the append-only backing store of consent decisions.
type ConsentStore interface {
	Append(ctx stdcontext.Context, decision *model.ConsentDecision) error
	Latest(ctx stdcontext.Context, identifier string) (*model.ConsentDecision, error)
	History(ctx stdcontext.Context, identifier string, limit int) ([]model.ConsentDecision, error)
}

// ConsentRecorder is told about every appended decision.
type ConsentRecorder interface {
	ConsentRecorded(decision, source string)
}

type ConsentService struct {
	context.DefaultService

	store      ConsentStore
	recorder   ConsentRecorder
	scopeFlags []string
	driver     string
	now        func() time.Time
}

const CONSENT_SVC = "consent_svc"

var DefaultScopeFlags = shared.DefaultScopeFlags

// NewConsentService builds a service outside the container, mainly for tests.
func NewConsentService(store ConsentStore, scopeFlags []string, now func() time.Time) *ConsentService {
	if len(scopeFlags) == 0 {
		scopeFlags = DefaultScopeFlags
	}
	if now == nil {
		now = time.Now
	}
	return &ConsentService{
		store:      store,
		scopeFlags: scopeFlags,
		now:        now,
	}
}

func (svc ConsentService) Id() string {
	return CONSENT_SVC
}

func (svc *ConsentService) Configure(ctx *context.Context) error {
	svc.scopeFlags = getEnvList("CONSENT_SCOPE_FLAGS", DefaultScopeFlags)
	svc.driver = getEnv("DB_DRIVER", "sqlite")
	svc.now = time.Now
	return svc.DefaultService.Configure(ctx)
}

func (svc *ConsentService) Start() error {
	var db *gorm.DB
	if strings.EqualFold(svc.driver, "postgres") {
		db = svc.Service(POSTGRES_SVC).(*PostgresService).Db()
	} else {
		db = svc.Service(SQLITE_SVC).(*SqliteService).Db()
	}
	if db == nil {
		return fmt.Errorf("no database connection for DB_DRIVER %q", svc.driver)
	}

	svc.store = repositories.NewConsentRepository(db)
	svc.recorder = svc.Service(MONITORING_SVC).(*MonitoringService)
	return nil
}

func (svc *ConsentService) ScopeFlags() []string {
	return append([]string(nil), svc.scopeFlags...)
}

// RecordConsent appends a new decision. A decision contradicting an earlier
// one is accepted and becomes authoritative by timestamp.
func (svc *ConsentService) RecordConsent(ctx stdcontext.Context, req dto.RecordConsentRequest) (*model.ConsentDecision, error) {
	if err := req.Validate(); err != nil {
		return nil, shared.NewBadRequestError(err, "Validation failed").
			WithData(dto.CreateValidationErrorResponse(err))
	}

	scope, err := svc.normalizeScope(req.Scope)
	if err != nil {
		return nil, shared.NewBadRequestError(err, "Invalid consent scope")
	}

	decision := &model.ConsentDecision{
		Identifier: req.Identifier,
		Scope:      scope,
		Decision:   req.DecisionOrDefault(),
		Source:     req.SourceOrDefault(),
		DecidedAt:  svc.now().UTC(),
	}

	if err := svc.store.Append(ctx, decision); err != nil {
		log.WithFields(log.Fields{
			"anonymous_id": req.Identifier,
			"error":        err.Error(),
		}).Error("Failed to record consent decision")
		return nil, shared.NewInternalError(handleDatabaseError(err), "Failed to record consent")
	}

	log.WithFields(log.Fields{
		"anonymous_id": decision.Identifier,
		"decision":     decision.Decision,
		"source":       decision.Source,
		"scope":        decision.Scope,
	}).Info("Consent decision recorded")
	if svc.recorder != nil {
		svc.recorder.ConsentRecorded(string(decision.Decision), string(decision.Source))
	}

	return decision, nil
}

// LatestDecision returns the decision consulted for gating, nil if none.
func (svc *ConsentService) LatestDecision(ctx stdcontext.Context, identifier string) (*model.ConsentDecision, error) {
	if identifier == "" {
		return nil, nil
	}
	return svc.store.Latest(ctx, identifier)
}

// History returns the audit trail for identifier, newest first.
func (svc *ConsentService) History(ctx stdcontext.Context, identifier string, limit int) ([]model.ConsentDecision, error) {
	return svc.store.History(ctx, identifier, limit)
}

var errUnknownScopeFlag = errors.New("unknown scope flag")

// normalizeScope rejects flags outside the configured set and records every
// configured flag explicitly, defaulting omitted ones to false.
func (svc *ConsentService) normalizeScope(in map[string]bool) (model.ScopeFlags, error) {
	known := make(map[string]struct{}, len(svc.scopeFlags))
	for _, flag := range svc.scopeFlags {
		known[flag] = struct{}{}
	}

	var unknown []string
	for flag := range in {
		if _, ok := known[flag]; !ok {
			unknown = append(unknown, flag)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: %v", errUnknownScopeFlag, unknown)
	}

	scope := make(model.ScopeFlags, len(svc.scopeFlags))
	for _, flag := range svc.scopeFlags {
		scope[flag] = in[flag]
	}
	return scope, nil
}
