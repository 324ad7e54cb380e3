package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role of a platform inside the ocpi network.
type Role string

const (
	RoleCPO   Role = "CPO"
	RoleEMSP  Role = "EMSP"
	RoleHUB   Role = "HUB"
	RoleNAP   Role = "NAP"
	RoleNSP   Role = "NSP"
	RoleOTHER Role = "OTHER"
	RoleSCSP  Role = "SCSP"
)

var knownRoles = []Role{RoleCPO, RoleEMSP, RoleHUB, RoleNAP, RoleNSP, RoleOTHER, RoleSCSP}

func (r Role) IsValid() bool {
	for _, known := range knownRoles {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRole accepts the role in any case.
func ParseRole(role string) (Role, error) {
	parsed := Role(strings.ToUpper(strings.TrimSpace(role)))
	if !parsed.IsValid() {
		return parsed, fmt.Errorf("unknown role %q", role)
	}
	return parsed, nil
}

// Status is the lifecycle status of parties and their tokens.
type Status string

const (
	StatusEnabled  Status = "ENABLED"
	StatusDisabled Status = "DISABLED"
)

var ErrInvalidIdentity = errors.New("invalid_party_identity")

/**
* Identity of a party inside the ocpi network. Used as the key for inbound authentication
* and for outbound client lookups. One operator can own multiple identities, one per role.
 */
type PartyIdentity struct {
	CountryCode string `json:"country_code" yaml:"country_code"`
	PartyId     string `json:"party_id" yaml:"party_id"`
	Role        Role   `json:"role" yaml:"role"`
}

// NewPartyIdentity normalizes the codes to upper case.
func NewPartyIdentity(countryCode string, partyId string, role Role) PartyIdentity {
	return PartyIdentity{
		CountryCode: strings.ToUpper(strings.TrimSpace(countryCode)),
		PartyId:     strings.ToUpper(strings.TrimSpace(partyId)),
		Role:        Role(strings.ToUpper(strings.TrimSpace(string(role)))),
	}
}

func (pi PartyIdentity) String() string {
	return pi.CountryCode + "*" + pi.PartyId + "*" + string(pi.Role)
}

// ParsePartyIdentity parses the representation created by String.
func ParsePartyIdentity(identity string) (PartyIdentity, error) {
	parts := strings.Split(identity, "*")
	if len(parts) != 3 {
		return PartyIdentity{}, fmt.Errorf("%w: %q is not of the form CC*PID*ROLE", ErrInvalidIdentity, identity)
	}
	parsed := NewPartyIdentity(parts[0], parts[1], Role(parts[2]))
	return parsed, parsed.Validate()
}

func (pi PartyIdentity) Validate() error {
	if !isCountryCode(pi.CountryCode) {
		return fmt.Errorf("%w: country_code %q must be two letters", ErrInvalidIdentity, pi.CountryCode)
	}
	if !isPartyId(pi.PartyId) {
		return fmt.Errorf("%w: party_id %q must be three alphanumeric characters", ErrInvalidIdentity, pi.PartyId)
	}
	if !pi.Role.IsValid() {
		return fmt.Errorf("%w: role %q is unknown", ErrInvalidIdentity, pi.Role)
	}
	return nil
}

// BelongsTo compares country code and party id, ignoring the role.
func (pi PartyIdentity) BelongsTo(countryCode string, partyId string) bool {
	return strings.EqualFold(pi.CountryCode, strings.TrimSpace(countryCode)) && strings.EqualFold(pi.PartyId, strings.TrimSpace(partyId))
}

func isCountryCode(code string) bool {
	if len(code) != 2 {
		return false
	}
	for _, c := range code {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}

func isPartyId(id string) bool {
	if len(id) != 3 {
		return false
	}
	for _, c := range id {
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

type BusinessDetails struct {
	Name    string `json:"name" yaml:"name"`
	Website string `json:"website,omitempty" yaml:"website,omitempty"`
}

// token this platform accepts from a partner
type AccessInfo struct {
	Token     string    `json:"token" yaml:"token"`
	Status    Status    `json:"status" yaml:"status"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// token and address this platform uses to call a partner
type RemoteAccessInfo struct {
	Token       string        `json:"token" yaml:"token"`
	VersionsURL string        `json:"versions_url" yaml:"versions_url"`
	Version     VersionNumber `json:"version,omitempty" yaml:"version,omitempty"`
	Endpoints   []Endpoint    `json:"endpoints,omitempty" yaml:"endpoints,omitempty"`
	CreatedAt   time.Time     `json:"created_at" yaml:"created_at"`
}

/**
* A registered partner platform in one of its roles.
 */
type RemoteParty struct {
	Identity          PartyIdentity      `json:"identity" yaml:"identity"`
	Status            Status             `json:"status" yaml:"status"`
	BusinessDetails   BusinessDetails    `json:"business_details" yaml:"business_details"`
	AccessInfos       []AccessInfo       `json:"access_infos" yaml:"access_infos"`
	RemoteAccessInfos []RemoteAccessInfo `json:"remote_access_infos" yaml:"remote_access_infos"`
	LastUpdated       time.Time          `json:"last_updated" yaml:"last_updated"`
}

func (rp RemoteParty) IsEnabled() bool {
	return rp.Status != StatusDisabled
}

// AccessInfoFor returns the most recent access info holding the token.
func (rp RemoteParty) AccessInfoFor(token string) (accessInfo AccessInfo, found bool) {
	for i := len(rp.AccessInfos) - 1; i >= 0; i-- {
		if rp.AccessInfos[i].Token == token {
			return rp.AccessInfos[i], true
		}
	}
	return accessInfo, false
}

func (rp RemoteParty) HoldsToken(token string) bool {
	_, found := rp.AccessInfoFor(token)
	return found
}

// LatestRemoteAccess returns the most recent way to call the party.
func (rp RemoteParty) LatestRemoteAccess() (remoteAccess RemoteAccessInfo, found bool) {
	if len(rp.RemoteAccessInfos) == 0 {
		return remoteAccess, false
	}
	return rp.RemoteAccessInfos[len(rp.RemoteAccessInfos)-1], true
}

// IsRegistered is true once the credentials handshake with the party completed.
func (rp RemoteParty) IsRegistered() bool {
	return len(rp.RemoteAccessInfos) > 0
}

// Copy returns a deep copy, so that callers can never alter shared state.
func (rp RemoteParty) Copy() RemoteParty {
	copied := rp
	if rp.AccessInfos != nil {
		copied.AccessInfos = append([]AccessInfo{}, rp.AccessInfos...)
	}
	if rp.RemoteAccessInfos != nil {
		copied.RemoteAccessInfos = make([]RemoteAccessInfo, len(rp.RemoteAccessInfos))
		for i, remoteAccess := range rp.RemoteAccessInfos {
			copied.RemoteAccessInfos[i] = remoteAccess
			if remoteAccess.Endpoints != nil {
				copied.RemoteAccessInfos[i].Endpoints = append([]Endpoint{}, remoteAccess.Endpoints...)
			}
		}
	}
	return copied
}

// SameRemoteAccess compares the fields a client is built from.
func (ra RemoteAccessInfo) SameRemoteAccess(other RemoteAccessInfo) bool {
	if ra.Token != other.Token || ra.VersionsURL != other.VersionsURL || ra.Version != other.Version {
		return false
	}
	if len(ra.Endpoints) != len(other.Endpoints) {
		return false
	}
	for i := range ra.Endpoints {
		if ra.Endpoints[i] != other.Endpoints[i] {
			return false
		}
	}
	return true
}
