package domain

import "time"

// ProviderGoogle is the only sign-in provider the viewer knows about.
const ProviderGoogle = "google"

// Assertion is what the identity provider hands over after a successful sign-in.
type Assertion struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IDToken string `json:"id_token"`
}

type Profile struct {
	ID          string
	DisplayName string
}

type Session struct {
	Authenticated bool   `json:"authenticated"`
	IdentityID    string `json:"identity_id,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`
	AccessToken   string `json:"-"`
	OwnerID       string `json:"owner_id,omitempty"`
}

// OwnerID composes the backend owner identifier: {identityId}_{provider}.
func OwnerID(identityID, provider string) string {
	return identityID + "_" + provider
}

type AccountRegistration struct {
	Name        string
	Provider    string
	AccessToken string
}

const (
	SeveritySuccess = "success"
	SeverityDanger  = "danger"
)

type Alert struct {
	Severity string    `json:"severity"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}
