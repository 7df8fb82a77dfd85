package domain

import (
	"context"
	"time"
)

// AnyplaceAPI is the subset of the Anyplace backend the viewer consumes.
type AnyplaceAPI interface {
	RegisterAccount(ctx context.Context, a AccountRegistration) error
	ListBuildings(ctx context.Context, campus string) (BuildingList, error)
	SearchPois(ctx context.Context, q PoiQuery) ([]POI, error)
}

type IdentityProvider interface {
	// ProfileFromToken recovers the profile carried by an ID token.
	ProfileFromToken(token string) (Profile, error)
	SignOut(ctx context.Context, token string) error
}

type AlertSink interface {
	Add(severity, message string)
}

// MarkerStore persists small per-device key/value markers with an expiry.
type MarkerStore interface {
	Get(ctx context.Context, device, name string) (string, bool, error)
	Set(ctx context.Context, device, name, value string, ttl time.Duration) error
	Clear(ctx context.Context, device, name string) error
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}
