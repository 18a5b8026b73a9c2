// Package identity resolves the anonymous identifier a client attaches to
// every request. The identifier is random, never derived from anything about
// the user, and survives restarts through Storage when it can.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/saathi-legal/saathi_api/shared"
	log "github.com/sirupsen/logrus"
)

// StorageKey holds the identifier in client storage.
const StorageKey = "saathi_anonymous_id"

const DegradedNotice = "Your session will not be remembered after you close or reload this page."

// Notifier shows a transient, dismissible message to the user.
type Notifier interface {
	Notify(message string)
}

type NotifierFunc func(message string)

func (f NotifierFunc) Notify(message string) { f(message) }

type Resolver struct {
	storage  Storage
	notifier Notifier
	generate func() string

	mu       sync.Mutex
	id       string
	degraded bool
}

type Option func(*Resolver)

func WithNotifier(n Notifier) Option {
	return func(r *Resolver) {
		r.notifier = n
	}
}

// WithGenerator replaces the identifier source.
func WithGenerator(generate func() string) Option {
	return func(r *Resolver) {
		r.generate = generate
	}
}

func NewResolver(storage Storage, opts ...Option) *Resolver {
	r := &Resolver{
		storage:  storage,
		generate: NewIdentifier,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.storage == nil {
		r.storage = UnavailableStorage{}
	}
	return r
}

// Ensure returns the client's identifier, creating and persisting one if
// needed. It never fails: when storage cannot be used the identifier lives in
// memory for the rest of the resolver's lifetime and the user is told once.
func (r *Resolver) Ensure() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.id != "" {
		return r.id
	}

	stored, err := r.storage.Get(StorageKey)
	switch {
	case err == nil && stored != "":
		r.id = stored
		return r.id
	case err != nil && !errors.Is(err, ErrNotFound):
		r.degrade(err)
	}

	r.id = r.generate()
	if !r.degraded {
		if err := r.storage.Set(StorageKey, r.id); err != nil {
			r.degrade(err)
		}
	}
	return r.id
}

// Degraded reports whether the identifier could not be persisted.
func (r *Resolver) Degraded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.degraded
}

func (r *Resolver) degrade(err error) {
	if r.degraded {
		return
	}
	r.degraded = true
	log.WithField("error", err.Error()).Warn("Client storage unavailable, using an in-memory identifier")
	if r.notifier != nil {
		r.notifier.Notify(DegradedNotice)
	}
}

// Apply attaches the identifier header to an outgoing request.
func (r *Resolver) Apply(a *fiber.Agent) *fiber.Agent {
	if id := r.Ensure(); id != "" {
		a.Set(shared.HeaderAnonymousID, id)
	}
	return a
}

// NewIdentifier returns a random UUID, or a time and random composite if the
// system random source fails.
func NewIdentifier() string {
	id, err := uuid.NewRandom()
	if err == nil {
		return id.String()
	}

	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		return "anon-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return "anon-" + strconv.FormatInt(time.Now().UnixNano(), 36) + "-" + hex.EncodeToString(suffix)
}
