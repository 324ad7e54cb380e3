package auth

import (
	"net/http"

	"github.com/fiware/ocpi-core/logging"
	"github.com/fiware/ocpi-core/model"
)

var logger = logging.Log()

type FailureReason string

const (
	ReasonNone           FailureReason = "none"
	ReasonMissingToken   FailureReason = "missing_token"
	ReasonUnknownToken   FailureReason = "unknown_token"
	ReasonAmbiguousToken FailureReason = "ambiguous_token"
	ReasonPartyDisabled  FailureReason = "party_disabled"
	ReasonTokenDisabled  FailureReason = "token_disabled"
)

/**
* RequestContext is derived once per inbound request and never shared between requests.
 */
type RequestContext struct {
	RequestID     string
	CorrelationID string
	From          PartyCode
	To            PartyCode
	// empty if the request did not carry a parseable token
	Token      string
	AccessInfo *model.AccessInfo
	Party      *model.RemoteParty
	Failure    FailureReason

	// holders of an ambiguous token that belong to one operator
	candidates []model.RemoteParty
}

func (rc RequestContext) HasToken() bool {
	return rc.Token != ""
}

func (rc RequestContext) IsAuthenticated() bool {
	return rc.Party != nil && rc.Failure == ReasonNone
}

// Identity of the authenticated caller, the zero identity otherwise.
func (rc RequestContext) Identity() model.PartyIdentity {
	if !rc.IsAuthenticated() {
		return model.PartyIdentity{}
	}
	return rc.Party.Identity
}

/**
* OperatorParties returns the parties the caller acts for on endpoints that are not bound to a role, like versions
* and credentials. That is the authenticated party, or every holder of an ambiguous token if all of them belong to
* the same operator and are enabled. Nil if the caller cannot be bound to one operator.
 */
func (rc RequestContext) OperatorParties() []model.RemoteParty {
	if rc.IsAuthenticated() {
		return []model.RemoteParty{rc.Party.Copy()}
	}
	if rc.Failure != ReasonAmbiguousToken || len(rc.candidates) == 0 {
		return nil
	}
	operator := rc.candidates[0].Identity
	parties := []model.RemoteParty{}
	for _, candidate := range rc.candidates {
		if !candidate.Identity.BelongsTo(operator.CountryCode, operator.PartyId) || !candidate.IsEnabled() {
			return nil
		}
		accessInfo, found := candidate.AccessInfoFor(rc.Token)
		if !found || accessInfo.Status == model.StatusDisabled {
			return nil
		}
		parties = append(parties, candidate.Copy())
	}
	return parties
}

// PartyFinder is the part of the registry required for authentication.
type PartyFinder interface {
	FindByToken(token string) []model.RemoteParty
}

type Authenticator struct {
	parties PartyFinder
}

func NewAuthenticator(parties PartyFinder) *Authenticator {
	return &Authenticator{parties: parties}
}

/**
* Authenticate binds the request to exactly one registered party:
*   - a token held by one party binds to it
*   - a token held by multiple parties requires the from headers to narrow the holders down to one. If the
*     headers leave multiple holders of different roles, the role hint of the route selects one of them.
*   - disabled parties and disabled tokens never authenticate
* Requests without a parseable token are anonymous. Authentication never changes the registry.
 */
func (a *Authenticator) Authenticate(request *http.Request, roleHint model.Role) (requestContext RequestContext) {
	requestContext = RequestContext{From: fromHeaders(request), To: toHeaders(request), Failure: ReasonMissingToken}

	token, found := ParseAuthorization(request.Header.Get(AuthorizationHeader))
	if !found {
		return requestContext
	}
	requestContext.Token = token

	holders := a.parties.FindByToken(token)
	switch {
	case len(holders) == 0:
		requestContext.Failure = ReasonUnknownToken
	case len(holders) == 1:
		requestContext.bind(holders[0])
	default:
		requestContext.disambiguate(holders, roleHint)
	}
	return requestContext
}

func (rc *RequestContext) disambiguate(holders []model.RemoteParty, roleHint model.Role) {
	rc.Failure = ReasonAmbiguousToken
	if !rc.From.IsSet() {
		logger.Debugf("Token is held by %d parties and no from headers were sent.", len(holders))
		if sameOperator(holders) {
			rc.candidates = holders
		}
		return
	}

	candidates := []model.RemoteParty{}
	for _, holder := range holders {
		if holder.Identity.BelongsTo(rc.From.CountryCode, rc.From.PartyId) {
			candidates = append(candidates, holder)
		}
	}
	switch len(candidates) {
	case 0:
		logger.Debugf("None of the %d holders of the token belongs to %s.", len(holders), rc.From)
	case 1:
		rc.bind(candidates[0])
	default:
		rc.candidates = candidates
		if roleHint != "" {
			rc.narrow(roleHint)
		}
	}
}

func sameOperator(parties []model.RemoteParty) bool {
	for _, party := range parties {
		if !party.Identity.BelongsTo(parties[0].Identity.CountryCode, parties[0].Identity.PartyId) {
			return false
		}
	}
	return true
}

// narrow selects the candidate with the given role, if exactly one exists.
func (rc *RequestContext) narrow(role model.Role) {
	matching := []model.RemoteParty{}
	for _, candidate := range rc.candidates {
		if candidate.Identity.Role == role {
			matching = append(matching, candidate)
		}
	}
	if len(matching) != 1 {
		logger.Debugf("%d holders of %s remain for role %s.", len(matching), rc.From, role)
		return
	}
	rc.candidates = nil
	rc.bind(matching[0])
}

func (rc *RequestContext) bind(party model.RemoteParty) {
	rc.Party = &party
	if accessInfo, found := party.AccessInfoFor(rc.Token); found {
		rc.AccessInfo = &accessInfo
	}
	switch {
	case !party.IsEnabled():
		rc.Failure = ReasonPartyDisabled
	case rc.AccessInfo == nil || rc.AccessInfo.Status == model.StatusDisabled:
		rc.Failure = ReasonTokenDisabled
	default:
		rc.Failure = ReasonNone
	}
}
