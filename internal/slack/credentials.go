package slack

import (
	"fmt"
	"log/slog"
	"strings"
)

// CredentialKind distinguishes the two credential classes the workspace API
// accepts. Primary covers standard bot operations; Elevated is a user-level
// credential required for search and large-file upload.
type CredentialKind string

const (
	CredentialPrimary  CredentialKind = "primary"
	CredentialElevated CredentialKind = "elevated"
)

// Capability names a privilege an operation needs beyond the primary
// credential. The zero value means the primary credential suffices.
type Capability string

const (
	CapabilityNone     Capability = ""
	CapabilityElevated Capability = "elevated"
)

const (
	primaryTokenPrefix  = "xoxb-"
	elevatedTokenPrefix = "xoxp-"
)

// Credential is immutable after load.
type Credential struct {
	Kind  CredentialKind
	Token string
}

// CredentialStore holds the process-wide credentials, initialized once at
// startup and read-only afterwards. Selection is a pure lookup.
type CredentialStore struct {
	primary  Credential
	elevated *Credential
}

// NewCredentialStore validates and stores the configured tokens. The primary
// token is required and must carry the bot prefix. An elevated token with the
// wrong prefix is dropped with a warning rather than failing startup, matching
// how a missing elevated credential degrades feature availability.
func NewCredentialStore(botToken, userToken string, logger *slog.Logger) (*CredentialStore, error) {
	botToken = strings.TrimSpace(botToken)
	userToken = strings.TrimSpace(userToken)

	if botToken == "" {
		return nil, fmt.Errorf("SLACK_BOT_TOKEN is not set")
	}
	if !strings.HasPrefix(botToken, primaryTokenPrefix) {
		return nil, fmt.Errorf("invalid bot token format: must start with %q", primaryTokenPrefix)
	}

	s := &CredentialStore{
		primary: Credential{Kind: CredentialPrimary, Token: botToken},
	}
	if userToken != "" {
		if strings.HasPrefix(userToken, elevatedTokenPrefix) {
			s.elevated = &Credential{Kind: CredentialElevated, Token: userToken}
		} else if logger != nil {
			logger.Warn("user token has invalid format; search and large-file upload disabled",
				"expected_prefix", elevatedTokenPrefix)
		}
	}
	return s, nil
}

// Select returns the credential satisfying the capability, or a
// MissingCredential error naming the capability so callers can report which
// feature is unavailable.
func (s *CredentialStore) Select(capability Capability) (Credential, error) {
	switch capability {
	case CapabilityNone:
		return s.primary, nil
	case CapabilityElevated:
		if s.elevated == nil {
			return Credential{}, newMissingCredential(string(capability))
		}
		return *s.elevated, nil
	default:
		return Credential{}, newMissingCredential(string(capability))
	}
}

// HasElevated reports whether the elevated credential is configured.
func (s *CredentialStore) HasElevated() bool { return s.elevated != nil }
