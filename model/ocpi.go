package model

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ocpi 2.2.1 status codes, see chapter "Status codes"
type StatusCode int

const (
	StatusSuccess StatusCode = 1000

	StatusClientError          StatusCode = 2000
	StatusInvalidParameters    StatusCode = 2001
	StatusNotEnoughInformation StatusCode = 2002
	StatusUnknownLocation      StatusCode = 2003
	StatusUnknownToken         StatusCode = 2004

	StatusServerError          StatusCode = 3000
	StatusUnableToUseClientApi StatusCode = 3001
	StatusUnsupportedVersion   StatusCode = 3002
	StatusNoMatchingEndpoints  StatusCode = 3003

	StatusHubError          StatusCode = 4000
	StatusUnknownReceiver   StatusCode = 4001
	StatusForwardingTimeout StatusCode = 4002
	StatusConnectionProblem StatusCode = 4003
)

type StatusBand int

const (
	BandUnknown StatusBand = iota
	BandSuccess
	BandClientError
	BandServerError
	BandHubError
)

// Band classifies the code into the ranges of the status code table.
func (sc StatusCode) Band() StatusBand {
	switch {
	case sc >= 1000 && sc < 2000:
		return BandSuccess
	case sc >= 2000 && sc < 3000:
		return BandClientError
	case sc >= 3000 && sc < 4000:
		return BandServerError
	case sc >= 4000 && sc < 5000:
		return BandHubError
	default:
		return BandUnknown
	}
}

func (sc StatusCode) IsSuccess() bool {
	return sc.Band() == BandSuccess
}

/**
* Envelope around every ocpi response.
 */
type Response struct {
	Data          interface{} `json:"data,omitempty"`
	StatusCode    StatusCode  `json:"status_code"`
	StatusMessage string      `json:"status_message,omitempty"`
	Timestamp     DateTime    `json:"timestamp"`
}

// Response as received from a partner, data is decoded by the caller.
type RawResponse struct {
	Data          json.RawMessage `json:"data,omitempty"`
	StatusCode    StatusCode      `json:"status_code"`
	StatusMessage string          `json:"status_message,omitempty"`
	Timestamp     DateTime        `json:"timestamp"`
}

const ocpiDateTimeFormat = "2006-01-02T15:04:05Z"

// DateTime serializes as UTC without fractions, as required for ocpi timestamps.
type DateTime struct {
	time.Time
}

func NewDateTime(t time.Time) DateTime {
	return DateTime{t.UTC().Truncate(time.Second)}
}

func (dt DateTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(dt.Time.UTC().Format(ocpiDateTimeFormat))
}

func (dt *DateTime) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseDateTime(raw)
	if err != nil {
		return err
	}
	dt.Time = parsed
	return nil
}

// ParseDateTime accepts RFC 3339 timestamps and zone-less timestamps, which are read as UTC.
func ParseDateTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return parsed.UTC(), nil
	}
	parsed, err := time.ParseInLocation("2006-01-02T15:04:05", raw, time.UTC)
	if err != nil {
		return parsed, fmt.Errorf("%q is not an ISO-8601 timestamp", raw)
	}
	return parsed, nil
}

type VersionNumber string

const Version221 VersionNumber = "2.2.1"

type ModuleID string

const (
	ModuleCdrs             ModuleID = "cdrs"
	ModuleChargingProfiles ModuleID = "chargingprofiles"
	ModuleCommands         ModuleID = "commands"
	ModuleCredentials      ModuleID = "credentials"
	ModuleHubClientInfo    ModuleID = "hubclientinfo"
	ModuleLocations        ModuleID = "locations"
	ModuleSessions         ModuleID = "sessions"
	ModuleTariffs          ModuleID = "tariffs"
	ModuleTokens           ModuleID = "tokens"
)

// SENDER provides data for the partner to pull, RECEIVER accepts pushed data.
type InterfaceRole string

const (
	InterfaceSender   InterfaceRole = "SENDER"
	InterfaceReceiver InterfaceRole = "RECEIVER"
)

type Version struct {
	Version VersionNumber `json:"version"`
	URL     string        `json:"url"`
}

type Endpoint struct {
	Identifier ModuleID      `json:"identifier" yaml:"identifier"`
	Role       InterfaceRole `json:"role" yaml:"role"`
	URL        string        `json:"url" yaml:"url"`
}

type VersionDetails struct {
	Version   VersionNumber `json:"version"`
	Endpoints []Endpoint    `json:"endpoints"`
}

// maximum token length accepted in credentials objects
const MaxTokenLength = 64

/**
* Credentials object exchanged during registration.
 */
type Credentials struct {
	Token string            `json:"token"`
	URL   string            `json:"url"`
	Roles []CredentialsRole `json:"roles"`
}

type CredentialsRole struct {
	Role            Role            `json:"role"`
	BusinessDetails BusinessDetails `json:"business_details"`
	PartyId         string          `json:"party_id"`
	CountryCode     string          `json:"country_code"`
}

func (cr CredentialsRole) Identity() PartyIdentity {
	return NewPartyIdentity(cr.CountryCode, cr.PartyId, cr.Role)
}

// Validate reports the first offending field.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Token) == "" {
		return fmt.Errorf("token: must not be empty")
	}
	if len(c.Token) > MaxTokenLength {
		return fmt.Errorf("token: must not be longer than %d characters", MaxTokenLength)
	}
	parsedUrl, err := url.Parse(c.URL)
	if err != nil || parsedUrl.Scheme == "" || parsedUrl.Host == "" {
		return fmt.Errorf("url: %q is not an absolute url", c.URL)
	}
	if len(c.Roles) == 0 {
		return fmt.Errorf("roles: at least one role is required")
	}
	for i, role := range c.Roles {
		if err := role.Identity().Validate(); err != nil {
			return fmt.Errorf("roles[%d]: %v", i, err)
		}
		if strings.TrimSpace(role.BusinessDetails.Name) == "" {
			return fmt.Errorf("roles[%d].business_details.name: must not be empty", i)
		}
	}
	return nil
}
