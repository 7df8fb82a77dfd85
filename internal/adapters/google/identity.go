// Package google talks to the Google identity endpoints the viewer needs after
// the browser-side sign-in has completed.
package google

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"anyplace_viewer/internal/adapters/observability"
	"anyplace_viewer/internal/domain"
)

const DefaultRevokeURL = "https://oauth2.googleapis.com/revoke"

type Identity struct {
	revokeURL string
	hc        *http.Client
	parser    *jwt.Parser
}

func New(revokeURL string) *Identity {
	if revokeURL == "" {
		revokeURL = DefaultRevokeURL
	}
	return &Identity{
		revokeURL: revokeURL,
		hc:        &http.Client{Timeout: 10 * time.Second},
		parser:    jwt.NewParser(),
	}
}

// ProfileFromToken reads the sub and name claims of a Google ID token.
// The signature is not checked here: the Anyplace backend validates the
// token itself when it is presented as a bearer credential.
func (g *Identity) ProfileFromToken(token string) (domain.Profile, error) {
	if token == "" {
		return domain.Profile{}, domain.ErrProfileUnavailable
	}
	claims := jwt.MapClaims{}
	if _, _, err := g.parser.ParseUnverified(token, claims); err != nil {
		return domain.Profile{}, fmt.Errorf("google: parse id token: %w", domain.ErrProfileUnavailable)
	}
	sub, _ := claims.GetSubject()
	name, _ := claims["name"].(string)
	if sub == "" {
		return domain.Profile{}, domain.ErrProfileUnavailable
	}
	return domain.Profile{ID: sub, DisplayName: name}, nil
}

// SignOut revokes the token so the browser SDK session cannot be reused.
func (g *Identity) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := g.hc.Do(req)
	if err != nil {
		observability.ObserveExternal("google", "revoke", 0, time.Since(start))
		return fmt.Errorf("google: revoke: %w", err)
	}
	defer resp.Body.Close()
	observability.ObserveExternal("google", "revoke", resp.StatusCode, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("google: revoke status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}
