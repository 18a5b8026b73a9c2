// Package consentgate is the client half of the consent gate: it decides at
// start-up whether features are unblocked, prompts when no decision is on
// record and migrates consent given under earlier storage schemes.
package consentgate

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/saathi-legal/saathi_api/client/identity"
	"github.com/saathi-legal/saathi_api/dto"
	"github.com/saathi-legal/saathi_api/model"
	"github.com/saathi-legal/saathi_api/shared"
	log "github.com/sirupsen/logrus"
)

// CurrentKey holds the client's current consent decision.
const CurrentKey = "saathi_consent"

const (
	DefaultSubmitTimeout = 10 * time.Second
	DefaultConfirmDelay  = 1500 * time.Millisecond
)

// Submitter records a decision on the server.
type Submitter interface {
	Submit(ctx context.Context, req dto.RecordConsentRequest) error
}

// View is the blocking consent dialog. Open must trap focus inside the
// dialog and lock background scrolling until Close.
type View interface {
	Open(scopeFlags []string)
	SetControlsEnabled(enabled bool)
	ShowError(message string, retryable bool)
	ShowConfirmation()
	Close()
}

type Navigator interface {
	Navigate(path string)
}

type IdentitySource interface {
	Ensure() string
}

type Config struct {
	ScopeFlags    []string
	SubmitTimeout time.Duration
	ConfirmDelay  time.Duration

	// SkipConfirmDelay closes the dialog as soon as the grant is stored.
	SkipConfirmDelay bool
}

type Gate struct {
	storage   identity.Storage
	identity  IdentitySource
	submitter Submitter
	view      View
	navigator Navigator
	cfg       Config

	machine Machine
	now     func() time.Time
	sleep   func(time.Duration)
}

func New(storage identity.Storage, id IdentitySource, submitter Submitter, view View, navigator Navigator, cfg Config) *Gate {
	if len(cfg.ScopeFlags) == 0 {
		cfg.ScopeFlags = shared.DefaultScopeFlags
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = DefaultSubmitTimeout
	}
	switch {
	case cfg.SkipConfirmDelay:
		cfg.ConfirmDelay = 0
	case cfg.ConfirmDelay <= 0:
		cfg.ConfirmDelay = DefaultConfirmDelay
	}
	if storage == nil {
		storage = identity.UnavailableStorage{}
	}
	return &Gate{
		storage:   storage,
		identity:  id,
		submitter: submitter,
		view:      view,
		navigator: navigator,
		cfg:       cfg,
		now:       time.Now,
		sleep:     time.Sleep,
	}
}

func (g *Gate) State() State {
	return g.machine.State()
}

// Blocked reports whether features must stay unavailable.
func (g *Gate) Blocked() bool {
	return g.machine.State() != StateGranted
}

// Load runs once at start-up and settles the initial state.
func (g *Gate) Load(ctx context.Context) State {
	if current := g.current(); current != nil {
		switch current.Decision {
		case model.DecisionGranted:
			g.transition(StateGranted)
			return g.State()
		case model.DecisionDeclined:
			g.transition(StateDeclined)
			g.navigator.Navigate(shared.DeclinedPath)
			return g.State()
		}
	}

	if migrated := MigrateLegacy(g.legacyFlags(), g.cfg.ScopeFlags, g.now()); migrated != nil {
		g.transition(StateGranted)
		g.forwardMigration(ctx, migrated)
		return g.State()
	}

	g.transition(StatePrompting)
	g.view.Open(g.cfg.ScopeFlags)
	return g.State()
}

// forwardMigration records a migrated acceptance on the server. The current
// key is only written once the server has it, so a failed forward is retried
// on the next load and a successful one is never repeated.
func (g *Gate) forwardMigration(ctx context.Context, d *Decision) {
	req := dto.RecordConsentRequest{
		Identifier: g.identity.Ensure(),
		Scope:      d.Scope,
		Decision:   string(d.Decision),
		Source:     string(d.Source),
	}
	if err := g.submit(ctx, req); err != nil {
		log.WithField("error", err.Error()).Warn("Failed to forward migrated consent, will retry on next load")
		return
	}
	g.persist(d)
}

// Accept submits a grant of every scope flag. On failure the dialog stays
// open with a retryable error and nothing is stored locally.
func (g *Gate) Accept(ctx context.Context) error {
	if g.State() != StatePrompting {
		return errNotPrompting(g.State())
	}

	scope := make(map[string]bool, len(g.cfg.ScopeFlags))
	for _, flag := range g.cfg.ScopeFlags {
		scope[flag] = true
	}

	g.view.SetControlsEnabled(false)
	err := g.submit(ctx, dto.RecordConsentRequest{
		Identifier: g.identity.Ensure(),
		Scope:      scope,
		Decision:   string(model.DecisionGranted),
		Source:     string(model.SourcePrompt),
	})
	if err != nil {
		g.view.SetControlsEnabled(true)
		g.view.ShowError("We could not save your choice. Please try again.", true)
		return err
	}

	g.persist(&Decision{
		Decision:  model.DecisionGranted,
		Scope:     scope,
		Source:    model.SourcePrompt,
		DecidedAt: g.now().UTC(),
	})
	g.transition(StateGranted)

	g.view.ShowConfirmation()
	g.sleep(g.cfg.ConfirmDelay)
	g.view.Close()
	return nil
}

// Decline stores the refusal locally and leaves for the explanatory page.
func (g *Gate) Decline() error {
	if g.State() != StatePrompting {
		return errNotPrompting(g.State())
	}

	scope := make(map[string]bool, len(g.cfg.ScopeFlags))
	for _, flag := range g.cfg.ScopeFlags {
		scope[flag] = false
	}
	g.persist(&Decision{
		Decision:  model.DecisionDeclined,
		Scope:     scope,
		Source:    model.SourcePrompt,
		DecidedAt: g.now().UTC(),
	})
	g.transition(StateDeclined)

	g.view.Close()
	g.navigator.Navigate(shared.DeclinedPath)
	return nil
}

// Reprompt reopens the dialog after a decision, e.g. from a privacy link.
func (g *Gate) Reprompt() error {
	if err := g.machine.Transition(StatePrompting); err != nil {
		return err
	}
	g.view.SetControlsEnabled(true)
	g.view.Open(g.cfg.ScopeFlags)
	return nil
}

func (g *Gate) submit(ctx context.Context, req dto.RecordConsentRequest) error {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.SubmitTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.submitter.Submit(ctx, req)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gate) transition(to State) {
	if err := g.machine.Transition(to); err != nil {
		log.WithField("error", err.Error()).Error("Rejected consent state transition")
	}
}

func (g *Gate) current() *Decision {
	raw, err := g.storage.Get(CurrentKey)
	if err != nil {
		if !errors.Is(err, identity.ErrNotFound) {
			log.WithField("error", err.Error()).Warn("Cannot read stored consent")
		}
		return nil
	}

	var d Decision
	if err := sonic.UnmarshalString(raw, &d); err != nil || !d.Decision.Valid() {
		log.Warn("Ignoring malformed stored consent")
		return nil
	}
	return &d
}

func (g *Gate) persist(d *Decision) {
	raw, err := sonic.MarshalString(d)
	if err == nil {
		err = g.storage.Set(CurrentKey, raw)
	}
	if err != nil {
		log.WithField("error", err.Error()).Warn("Cannot store consent decision")
	}
}

func (g *Gate) legacyFlags() LegacyFlags {
	flags := make(LegacyFlags)
	for _, key := range LegacyKeys {
		if v, err := g.storage.Get(key); err == nil {
			flags[key] = v
		}
	}
	return flags
}

func errNotPrompting(s State) error {
	return errors.Join(ErrInvalidTransition, errors.New("no prompt is open, state is "+s.String()))
}
