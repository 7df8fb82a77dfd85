package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"anyplace_viewer/internal/domain"
	"anyplace_viewer/internal/events"
)

const (
	// signedInMarker remembers that this device completed a sign-in before.
	signedInMarker = "username"
	markerTTL      = 365 * 24 * time.Hour
)

type SessionDeps struct {
	API      domain.AnyplaceAPI
	Identity domain.IdentityProvider
	Markers  domain.MarkerStore
	Alerts   domain.AlertSink
	Bus      *events.Bus
	Logger   zerolog.Logger
}

// SignInResult tells the caller whether this was the device's first sign-in,
// in which case the page has to be reloaded once.
type SignInResult struct {
	Session        domain.Session `json:"session"`
	ReloadRequired bool           `json:"reload_required"`
}

// SessionBar tracks sign-in state for one device. It holds no authoritative
// state: the backend validates the token on every call.
type SessionBar struct {
	device string
	deps   SessionDeps
	log    zerolog.Logger

	mu           sync.Mutex
	session      domain.Session
	fullControls bool
	tab          int
	closed       bool

	bg sync.WaitGroup
}

func NewSessionBar(device string, d SessionDeps) *SessionBar {
	return &SessionBar{
		device:       device,
		deps:         d,
		log:          d.Logger.With().Str("device", device).Logger(),
		fullControls: true,
		tab:          1,
	}
}

// OnSignInSuccess consumes the provider's assertion. A missing profile falls
// back to the ID token claims; if that fails too the session stays signed out.
func (b *SessionBar) OnSignInSuccess(ctx context.Context, a domain.Assertion) (SignInResult, error) {
	p, err := b.profile(a)
	if err != nil {
		b.log.Warn().Err(err).Msg("sign-in assertion without usable profile")
		return SignInResult{Session: b.Snapshot()}, err
	}

	var res SignInResult
	if _, seen, err := b.deps.Markers.Get(ctx, b.device, signedInMarker); err != nil {
		b.log.Warn().Err(err).Msg("marker lookup failed")
	} else if !seen {
		if err := b.deps.Markers.Set(ctx, b.device, signedInMarker, "true", markerTTL); err != nil {
			b.log.Warn().Err(err).Msg("marker write failed")
		} else {
			res.ReloadRequired = true
		}
	}

	b.mu.Lock()
	b.session = domain.Session{
		Authenticated: true,
		IdentityID:    p.ID,
		DisplayName:   p.DisplayName,
		AccessToken:   a.IDToken,
		OwnerID:       domain.OwnerID(p.ID, domain.ProviderGoogle),
	}
	res.Session = b.session
	b.mu.Unlock()

	b.deps.Bus.Publish(events.Event{Kind: events.LoggedIn, OwnerID: res.Session.OwnerID})
	b.log.Info().Str("owner_id", res.Session.OwnerID).Bool("reload", res.ReloadRequired).Msg("signed in")

	b.registerAccount(domain.AccountRegistration{
		Name:        p.DisplayName,
		Provider:    domain.ProviderGoogle,
		AccessToken: a.IDToken,
	})
	return res, nil
}

func (b *SessionBar) profile(a domain.Assertion) (domain.Profile, error) {
	if a.ID != "" {
		return domain.Profile{ID: a.ID, DisplayName: a.Name}, nil
	}
	if a.IDToken == "" || b.deps.Identity == nil {
		return domain.Profile{}, domain.ErrProfileUnavailable
	}
	p, err := b.deps.Identity.ProfileFromToken(a.IDToken)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("session: %w", err)
	}
	if p.DisplayName == "" {
		p.DisplayName = a.Name
	}
	return p, nil
}

// registerAccount creates or updates the backend account in the background.
// The outcome is only logged.
func (b *SessionBar) registerAccount(reg domain.AccountRegistration) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.log.Debug().Msg("session closed, account registration skipped")
		return
	}
	b.bg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := b.deps.API.RegisterAccount(ctx, reg); err != nil {
			b.log.Debug().Err(err).Msg("account registration failed")
			return
		}
		b.log.Debug().Msg("account registered")
	}()
}

func (b *SessionBar) OnSignInFailure(reason string) {
	b.log.Info().Str("reason", reason).Msg("sign-in state: error")
}

// SignOut never fails from the caller's point of view.
func (b *SessionBar) SignOut(ctx context.Context) domain.Session {
	b.mu.Lock()
	token := b.session.AccessToken
	b.session = domain.Session{}
	b.mu.Unlock()

	if err := b.deps.Markers.Clear(ctx, b.device, signedInMarker); err != nil {
		b.log.Warn().Err(err).Msg("marker clear failed")
	}
	if b.deps.Identity != nil {
		if err := b.deps.Identity.SignOut(ctx, token); err != nil {
			b.log.Debug().Err(err).Msg("provider sign-out failed")
		} else {
			b.log.Info().Msg("user signed out")
		}
	}
	b.deps.Bus.Publish(events.Event{Kind: events.LoggedOff})
	return domain.Session{}
}

func (b *SessionBar) ToggleFullControls() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fullControls = !b.fullControls
	return b.fullControls
}

func (b *SessionBar) FullControls() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fullControls
}

func (b *SessionBar) SetTab(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tab = n
}

func (b *SessionBar) ActiveTab() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tab
}

func (b *SessionBar) IsTabSet(n int) bool { return b.ActiveTab() == n }

// ShowIdentity raises a toast with the signed-in Google id.
func (b *SessionBar) ShowIdentity() bool {
	s := b.Snapshot()
	if !s.Authenticated || s.IdentityID == "" {
		return false
	}
	b.deps.Alerts.Add(domain.SeveritySuccess, "Your Google ID is: "+s.IdentityID)
	return true
}

func (b *SessionBar) Snapshot() domain.Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session
}

// Wait blocks until background account registrations have finished.
func (b *SessionBar) Wait() { b.bg.Wait() }

// Close stops new background registrations and waits for running ones.
func (b *SessionBar) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.bg.Wait()
}
