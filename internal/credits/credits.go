// Package credits reports the applicant's credit balance and starts credit purchases.
//
// Exactly one accounting mode is active. In remote mode the backend owns the
// balance and consumes a credit during generation. In local mode the balance is a
// fixed allowance minus a counter incremented through the coordinator.
package credits

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonathan/one-click-apply/internal/events"
)

// Mode selects the accounting design.
type Mode string

const (
	ModeRemote Mode = "remote"
	ModeLocal  Mode = "local"
)

var (
	// ErrInsufficientCredits is returned when the balance is below one credit.
	ErrInsufficientCredits = errors.New("no more credits, let's purchase more")
	// ErrUnknownPackage is returned for a credit package id that is not on sale.
	ErrUnknownPackage = errors.New("unknown credit package")
)

// Package is a purchasable bundle of credits.
type Package struct {
	ID      string  `json:"id"`
	Credits int     `json:"credits"`
	Price   float64 `json:"price"`
}

// Packages lists the credit packages on sale.
var Packages = []Package{
	{ID: "15", Credits: 15, Price: 3.99},
	{ID: "40", Credits: 40, Price: 8.99},
}

// FindPackage returns the package with the given id.
func FindPackage(id string) (Package, bool) {
	for _, p := range Packages {
		if p.ID == id {
			return p, true
		}
	}
	return Package{}, false
}

// Backend is the part of the backend client used for credits.
type Backend interface {
	UserCredits(ctx context.Context, browserID string) (int, error)
	CreateCheckoutSession(ctx context.Context, browserID, pkg string) (string, error)
}

// Counter reads the locally consumed credits.
type Counter interface {
	UsedCredits(ctx context.Context) (int, error)
}

// Identity resolves the browser identity.
type Identity interface {
	GetOrCreate(ctx context.Context) (string, error)
}

// Config configures a Service.
type Config struct {
	Mode Mode
	// LocalAllowance is the number of credits granted in local mode.
	LocalAllowance int
}

// Balance is a credit balance snapshot.
type Balance struct {
	Credits int  `json:"credits"`
	Mode    Mode `json:"mode"`
}

// Service computes balances in the configured mode.
type Service struct {
	cfg      Config
	backend  Backend
	counter  Counter
	identity Identity
	bus      *events.Bus
}

// NewService returns a Service. An empty mode means remote.
func NewService(cfg Config, backend Backend, counter Counter, identity Identity, bus *events.Bus) *Service {
	if cfg.Mode == "" {
		cfg.Mode = ModeRemote
	}
	return &Service{cfg: cfg, backend: backend, counter: counter, identity: identity, bus: bus}
}

// Mode returns the active accounting mode.
func (s *Service) Mode() Mode { return s.cfg.Mode }

// Balance returns the current balance.
func (s *Service) Balance(ctx context.Context) (Balance, error) {
	switch s.cfg.Mode {
	case ModeLocal:
		used, err := s.counter.UsedCredits(ctx)
		if err != nil {
			return Balance{}, fmt.Errorf("failed to load used credits: %w", err)
		}
		return Balance{Credits: max(s.cfg.LocalAllowance-used, 0), Mode: ModeLocal}, nil
	default:
		browserID, err := s.identity.GetOrCreate(ctx)
		if err != nil {
			return Balance{}, err
		}
		n, err := s.backend.UserCredits(ctx, browserID)
		if err != nil {
			return Balance{}, err
		}
		return Balance{Credits: n, Mode: ModeRemote}, nil
	}
}

// Require returns the balance, or ErrInsufficientCredits when it is below one.
func (s *Service) Require(ctx context.Context) (Balance, error) {
	b, err := s.Balance(ctx)
	if err != nil {
		return Balance{}, err
	}
	if b.Credits < 1 {
		return b, ErrInsufficientCredits
	}
	return b, nil
}

// Refresh re-reads the balance and tells every surface to update.
func (s *Service) Refresh(ctx context.Context) (Balance, error) {
	b, err := s.Balance(ctx)
	if err != nil {
		return Balance{}, err
	}
	if s.bus != nil {
		s.bus.Publish(events.Event{Type: events.CreditUpdateRequired, Data: b})
	}
	return b, nil
}

// Checkout creates a payment session for the package and returns its URL.
func (s *Service) Checkout(ctx context.Context, packageID string) (string, error) {
	if _, ok := FindPackage(packageID); !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPackage, packageID)
	}
	browserID, err := s.identity.GetOrCreate(ctx)
	if err != nil {
		return "", err
	}
	return s.backend.CreateCheckoutSession(ctx, browserID, packageID)
}
