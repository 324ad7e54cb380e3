package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fiware/ocpi-core/client"
	ocpiHttp "github.com/fiware/ocpi-core/http"
	"github.com/fiware/ocpi-core/logging"
	"github.com/fiware/ocpi-core/model"
	"github.com/fiware/ocpi-core/registry"
)

/**
* RegistrationRequest starts a registration with a partner platform. The token is the one the partner handed
* out for the registration (CREDENTIALS_TOKEN_A), the parties are the identities the partner is expected to register.
 */
type RegistrationRequest struct {
	VersionsURL string                `json:"versions_url"`
	Token       string                `json:"token"`
	Parties     []model.PartyIdentity `json:"parties"`
}

func (rr RegistrationRequest) Validate() error {
	parsedUrl, err := url.Parse(rr.VersionsURL)
	if err != nil || parsedUrl.Scheme == "" || parsedUrl.Host == "" {
		return fmt.Errorf("versions_url: %q is not an absolute url", rr.VersionsURL)
	}
	if strings.TrimSpace(rr.Token) == "" {
		return fmt.Errorf("token: must not be empty")
	}
	if len(rr.Token) > model.MaxTokenLength {
		return fmt.Errorf("token: must not be longer than %d characters", model.MaxTokenLength)
	}
	if len(rr.Parties) == 0 {
		return fmt.Errorf("parties: at least one party is required")
	}
	for i, identity := range rr.Parties {
		if err := identity.Validate(); err != nil {
			return fmt.Errorf("parties[%d]: %v", i, err)
		}
	}
	return nil
}

/**
* Registrar runs the initiating side of the handshake: the partner receives our credentials with a new token
* and answers with the token this platform uses from then on.
 */
type Registrar struct {
	platform   Platform
	parties    *registry.Registry
	httpClient ocpiHttp.HttpClient
	tokens     TokenIssuer
}

func NewRegistrar(platform Platform, parties *registry.Registry, httpClient ocpiHttp.HttpClient, tokens TokenIssuer) *Registrar {
	return &Registrar{platform: platform, parties: parties, httpClient: httpClient, tokens: tokens}
}

/**
* Register exchanges credentials with the partner and returns the registered parties. The new token is stored
* before the partner is called, since the partner may call back with it while handling the registration.
* Roles the partner returns are only accepted for the requested parties. On failure the new token is withdrawn.
 */
func (r *Registrar) Register(ctx context.Context, request RegistrationRequest) (parties []model.RemoteParty, err error) {
	identities := make([]model.PartyIdentity, 0, len(request.Parties))
	for _, identity := range request.Parties {
		identities = append(identities, model.NewPartyIdentity(identity.CountryCode, identity.PartyId, identity.Role))
	}
	request.Parties = identities
	if err := request.Validate(); err != nil {
		httpErr := model.BadRequest(model.StatusInvalidParameters, err.Error())
		return parties, &httpErr
	}

	now := time.Now().UTC()
	token := r.tokens.Issue()
	created := []model.PartyIdentity{}
	requested := map[model.PartyIdentity]bool{}
	for i, identity := range request.Parties {
		requested[identity] = true
		_, err := r.parties.CreateOrUpdate(ctx, identity, func(party *model.RemoteParty, exists bool) error {
			if !exists {
				created = append(created, identity)
			}
			addToken(party, token, now)
			return nil
		})
		if err != nil {
			r.withdraw(ctx, request.Parties[:i], created, token)
			return parties, err
		}
	}

	credentials, remoteAccess, err := r.exchange(ctx, request, token)
	if err != nil {
		r.withdraw(ctx, request.Parties, created, token)
		return parties, err
	}

	registered := map[model.PartyIdentity]bool{}
	for _, role := range credentials.Roles {
		identity := role.Identity()
		if !requested[identity] {
			logger.Warnf("Partner returned role %s which was not requested, ignore it.", identity)
			continue
		}
		businessDetails := role.BusinessDetails
		party, err := r.parties.Update(ctx, identity, func(party *model.RemoteParty) error {
			party.BusinessDetails = businessDetails
			addToken(party, token, now)
			party.RemoteAccessInfos = append(party.RemoteAccessInfos, copyRemoteAccess(remoteAccess, now))
			return nil
		})
		if err != nil {
			return parties, err
		}
		registered[identity] = true
		parties = append(parties, party)
	}

	unregistered := []model.PartyIdentity{}
	for _, identity := range request.Parties {
		if !registered[identity] {
			unregistered = append(unregistered, identity)
		}
	}
	r.withdraw(ctx, unregistered, created, token)

	logger.Infof("Registered at %s with token %s, %d roles.", request.VersionsURL, logging.MaskToken(token), len(parties))
	return parties, nil
}

// exchange discovers the partner with the registration token and posts our credentials.
func (r *Registrar) exchange(ctx context.Context, request RegistrationRequest, token string) (credentials model.Credentials, remoteAccess model.RemoteAccessInfo, err error) {
	partner := request.Parties[0]
	own := client.SelectOwnIdentity(r.platform.Identities, partner.Role)
	remoteAccess = model.RemoteAccessInfo{Token: request.Token, VersionsURL: request.VersionsURL}

	details, err := client.NewClient(r.httpClient, own, partner, remoteAccess).Discover(ctx, SupportedVersions)
	if err != nil {
		logger.Infof("Was not able to discover %s at %s. Err: %v", partner, request.VersionsURL, err)
		return credentials, remoteAccess, partnerError(err)
	}
	remoteAccess.Version = details.Version
	remoteAccess.Endpoints = details.Endpoints

	partnerClient := client.NewClient(r.httpClient, own, partner, remoteAccess)
	credentialsUrl, err := partnerClient.EndpointURL(model.ModuleCredentials, model.InterfaceReceiver)
	if err != nil {
		return credentials, remoteAccess, &model.HttpError{Status: http.StatusBadGateway, StatusCode: model.StatusNoMatchingEndpoints, Message: "The partner does not offer the credentials module.", RootError: err}
	}
	if err := partnerClient.Do(ctx, http.MethodPost, credentialsUrl, r.platform.Credentials(token), &credentials); err != nil {
		logger.Infof("Partner %s rejected the credentials. Err: %v", partner, err)
		return credentials, remoteAccess, partnerError(err)
	}
	if err := credentials.Validate(); err != nil {
		return credentials, remoteAccess, &model.HttpError{Status: http.StatusBadGateway, StatusCode: model.StatusUnableToUseClientApi, Message: fmt.Sprintf("The partner returned invalid credentials: %v", err)}
	}

	remoteAccess.Token = credentials.Token
	remoteAccess.VersionsURL = credentials.URL
	return credentials, remoteAccess, nil
}

// partnerError keeps the status code of the partner, the http status always blames the partner.
func partnerError(err error) error {
	var httpErr *model.HttpError
	if !errors.As(err, &httpErr) {
		return &model.HttpError{Status: http.StatusBadGateway, StatusCode: model.StatusUnableToUseClientApi, Message: "Was not able to use the api of the partner.", RootError: err}
	}
	return &model.HttpError{Status: http.StatusBadGateway, StatusCode: httpErr.StatusCode, Message: httpErr.Message, RootError: err}
}

// withdraw removes the parties created for the registration and disables the token of the others.
func (r *Registrar) withdraw(ctx context.Context, identities []model.PartyIdentity, created []model.PartyIdentity, token string) {
	isCreated := map[model.PartyIdentity]bool{}
	for _, identity := range created {
		isCreated[identity] = true
	}
	for _, identity := range identities {
		var err error
		if isCreated[identity] {
			err = r.parties.Delete(ctx, identity)
		} else {
			_, err = r.parties.Update(ctx, identity, func(party *model.RemoteParty) error {
				disableToken(party, token)
				return nil
			})
		}
		if err != nil {
			logger.Warnf("Was not able to withdraw the token of %s. Err: %v", identity, err)
		}
	}
}

func addToken(party *model.RemoteParty, token string, createdAt time.Time) {
	if accessInfo, found := party.AccessInfoFor(token); found && accessInfo.Status == model.StatusEnabled {
		return
	}
	party.AccessInfos = append(party.AccessInfos, model.AccessInfo{Token: token, Status: model.StatusEnabled, CreatedAt: createdAt})
}
