package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fiware/ocpi-core/auth"
	"github.com/fiware/ocpi-core/client"
	"github.com/fiware/ocpi-core/envelope"
	ocpiHttp "github.com/fiware/ocpi-core/http"
	"github.com/fiware/ocpi-core/logging"
	"github.com/fiware/ocpi-core/model"
	"github.com/fiware/ocpi-core/registry"
)

var errAlreadyRegistered = errors.New("already_registered")

/**
* Handler serves the versions and credentials modules. Partners registering through it are discovered with the
* token they hand over and receive a freshly issued token in exchange.
 */
type Handler struct {
	platform   Platform
	parties    *registry.Registry
	httpClient ocpiHttp.HttpClient
	tokens     TokenIssuer
}

func NewHandler(platform Platform, parties *registry.Registry, httpClient ocpiHttp.HttpClient, tokens TokenIssuer) *Handler {
	return &Handler{platform: platform, parties: parties, httpClient: httpClient, tokens: tokens}
}

// Routes registers both modules. The group has to run the authenticator and RequireOperator before.
func (h *Handler) Routes(ocpi *gin.RouterGroup) {
	ocpi.GET("/versions", h.GetVersions)
	ocpi.GET("/versions/:version", h.GetVersionDetails)

	credentials := ocpi.Group("/" + string(model.Version221) + "/" + string(model.ModuleCredentials))
	credentials.GET("", h.GetCredentials)
	credentials.POST("", h.PostCredentials)
	credentials.PUT("", h.PutCredentials)
	credentials.DELETE("", h.DeleteCredentials)
}

func (h *Handler) GetCredentials(c *gin.Context) {
	envelope.Success(c, h.platform.Credentials(auth.GetRequestContext(c).Token))
}

func (h *Handler) PostCredentials(c *gin.Context) {
	h.register(c, false)
}

func (h *Handler) PutCredentials(c *gin.Context) {
	h.register(c, true)
}

func (h *Handler) DeleteCredentials(c *gin.Context) {
	requestContext := auth.GetRequestContext(c)
	callers := requestContext.OperatorParties()
	if !anyRegistered(callers) {
		envelope.Error(c, model.MethodNotAllowed("Not registered."))
		return
	}

	for _, caller := range callers {
		_, err := h.parties.Update(c.Request.Context(), caller.Identity, func(party *model.RemoteParty) error {
			party.RemoteAccessInfos = []model.RemoteAccessInfo{}
			disableToken(party, requestContext.Token)
			return nil
		})
		if err != nil {
			envelope.Error(c, model.InternalError("Was not able to remove the credentials.", err))
			return
		}
		logger.Infof("Party %s unregistered.", caller.Identity)
	}
	envelope.Success(c, nil)
}

/**
* register runs the receiving side of the handshake. A registration (POST) requires the caller to be
* unregistered, an update (PUT) requires an existing registration.
 */
func (h *Handler) register(c *gin.Context, update bool) {
	requestContext := auth.GetRequestContext(c)
	callers := requestContext.OperatorParties()
	if len(callers) == 0 {
		envelope.Error(c, model.Unauthorized("Invalid or missing token."))
		return
	}
	registered := anyRegistered(callers)
	if !update && registered {
		envelope.Error(c, model.MethodNotAllowed("Already registered, use PUT to update the credentials."))
		return
	}
	if update && !registered {
		envelope.Error(c, model.MethodNotAllowed("Not registered yet, use POST to register."))
		return
	}

	credentials, httpErr := readCredentials(c)
	if !httpErr.IsEmpty() {
		envelope.Error(c, httpErr)
		return
	}
	if httpErr := checkRoles(credentials, callers); !httpErr.IsEmpty() {
		envelope.Error(c, httpErr)
		return
	}

	ctx := client.WithCorrelationID(c.Request.Context(), requestContext.CorrelationID)
	remoteAccess, err := h.discover(ctx, credentials)
	if err != nil {
		envelope.Error(c, handshakeError(err))
		return
	}

	token := h.tokens.Issue()
	err = h.store(ctx, credentials, callers, requestContext.Token, token, remoteAccess, update)
	if errors.Is(err, errAlreadyRegistered) {
		envelope.Error(c, model.MethodNotAllowed("Already registered, use PUT to update the credentials."))
		return
	}
	if err != nil {
		envelope.Error(c, model.InternalError("Was not able to store the credentials.", err))
		return
	}
	logger.Infof("Registered %d roles of %s with token %s.", len(credentials.Roles), callers[0].Identity, logging.MaskToken(token))
	envelope.Success(c, h.platform.Credentials(token))
}

func readCredentials(c *gin.Context) (credentials model.Credentials, httpErr model.HttpError) {
	bodyData, err := io.ReadAll(c.Request.Body)
	if err != nil {
		logger.Debugf("Was not able to read the body, return error %v.", err)
		return credentials, model.BadRequest(model.StatusInvalidParameters, "Unable to read body.")
	}
	if err := json.Unmarshal(bodyData, &credentials); err != nil {
		logger.Debugf("Was not able to unmarshal request body: %s", string(bodyData))
		return credentials, model.BadRequest(model.StatusInvalidParameters, "Body is not a credentials object.")
	}
	if err := credentials.Validate(); err != nil {
		return credentials, model.BadRequest(model.StatusInvalidParameters, err.Error())
	}
	return credentials, httpErr
}

// checkRoles only accepts roles of the calling operator, every role once.
func checkRoles(credentials model.Credentials, callers []model.RemoteParty) model.HttpError {
	operator := callers[0].Identity
	seen := map[model.PartyIdentity]bool{}
	for i, role := range credentials.Roles {
		identity := role.Identity()
		if !identity.BelongsTo(operator.CountryCode, operator.PartyId) {
			return model.BadRequest(model.StatusInvalidParameters, fmt.Sprintf("roles[%d]: %s does not belong to the calling party", i, identity))
		}
		if seen[identity] {
			return model.BadRequest(model.StatusInvalidParameters, fmt.Sprintf("roles[%d]: %s is listed twice", i, identity))
		}
		seen[identity] = true
	}
	return model.HttpError{}
}

// discover calls the versions of the partner with the handed over token.
func (h *Handler) discover(ctx context.Context, credentials model.Credentials) (remoteAccess model.RemoteAccessInfo, err error) {
	partner := credentials.Roles[0].Identity()
	remoteAccess = model.RemoteAccessInfo{Token: credentials.Token, VersionsURL: credentials.URL}
	partnerClient := client.NewClient(h.httpClient, client.SelectOwnIdentity(h.platform.Identities, partner.Role), partner, remoteAccess)

	details, err := partnerClient.Discover(ctx, SupportedVersions)
	if err != nil {
		logger.Infof("Was not able to discover %s at %s. Err: %v", partner, credentials.URL, err)
		return remoteAccess, err
	}
	remoteAccess.Version = details.Version
	remoteAccess.Endpoints = details.Endpoints
	return remoteAccess, nil
}

/**
* store commits the registration for every role of the credentials. The old token of the caller is disabled,
* also for roles of the caller that are not part of the credentials anymore. If any write fails, the roles
* written before are restored, the caller keeps its old token.
 */
func (h *Handler) store(ctx context.Context, credentials model.Credentials, callers []model.RemoteParty, oldToken string, token string, remoteAccess model.RemoteAccessInfo, update bool) (err error) {
	if !update {
		for _, role := range credentials.Roles {
			if party, found := h.parties.FindByIdentity(role.Identity()); found && party.IsRegistered() {
				return errAlreadyRegistered
			}
		}
	}

	now := time.Now().UTC()
	written := []snapshot{}
	defer func() {
		if err != nil {
			h.restore(ctx, written)
		}
	}()

	stored := map[model.PartyIdentity]bool{}
	for _, role := range credentials.Roles {
		businessDetails := role.BusinessDetails
		var previous snapshot
		_, err = h.parties.CreateOrUpdate(ctx, role.Identity(), func(party *model.RemoteParty, exists bool) error {
			if !update && party.IsRegistered() {
				return errAlreadyRegistered
			}
			previous = snapshot{identity: party.Identity, party: party.Copy(), existed: exists}
			party.BusinessDetails = businessDetails
			disableToken(party, oldToken)
			party.AccessInfos = append(party.AccessInfos, model.AccessInfo{Token: token, Status: model.StatusEnabled, CreatedAt: now})
			party.RemoteAccessInfos = append(party.RemoteAccessInfos, copyRemoteAccess(remoteAccess, now))
			return nil
		})
		if err != nil {
			return err
		}
		written = append(written, previous)
		stored[role.Identity()] = true
	}

	for _, caller := range callers {
		if stored[caller.Identity] {
			continue
		}
		var previous snapshot
		_, err = h.parties.Update(ctx, caller.Identity, func(party *model.RemoteParty) error {
			previous = snapshot{identity: party.Identity, party: party.Copy(), existed: true}
			disableToken(party, oldToken)
			return nil
		})
		if err != nil {
			return err
		}
		written = append(written, previous)
		logger.Infof("%s is not part of the credentials, disabled its token.", caller.Identity)
	}
	return nil
}

// state of a party before the registration changed it
type snapshot struct {
	identity model.PartyIdentity
	party    model.RemoteParty
	existed  bool
}

// restore puts back the given snapshots, parties that did not exist before are removed.
func (h *Handler) restore(ctx context.Context, written []snapshot) {
	for i := len(written) - 1; i >= 0; i-- {
		var err error
		if written[i].existed {
			_, err = h.parties.Save(ctx, written[i].party)
		} else {
			err = h.parties.Delete(ctx, written[i].identity)
		}
		if err != nil {
			logger.Warnf("Was not able to restore %s after a failed registration. Err: %v", written[i].identity, err)
			continue
		}
		logger.Infof("Restored %s after a failed registration.", written[i].identity)
	}
}

// handshakeError reports failures of the partner's platform with status 3001 or 3002.
func handshakeError(err error) model.HttpError {
	var httpErr *model.HttpError
	if errors.As(err, &httpErr) && httpErr.StatusCode == model.StatusUnsupportedVersion {
		return model.HttpError{Status: http.StatusBadRequest, StatusCode: model.StatusUnsupportedVersion, Message: "No mutually supported version found.", RootError: err}
	}
	return model.HttpError{Status: http.StatusBadRequest, StatusCode: model.StatusUnableToUseClientApi, Message: "Was not able to use the versions of the client.", RootError: err}
}

func anyRegistered(parties []model.RemoteParty) bool {
	for _, party := range parties {
		if party.IsRegistered() {
			return true
		}
	}
	return false
}

func disableToken(party *model.RemoteParty, token string) {
	for i := range party.AccessInfos {
		if party.AccessInfos[i].Token == token {
			party.AccessInfos[i].Status = model.StatusDisabled
		}
	}
}

func copyRemoteAccess(remoteAccess model.RemoteAccessInfo, createdAt time.Time) model.RemoteAccessInfo {
	copied := remoteAccess
	copied.Endpoints = append([]model.Endpoint{}, remoteAccess.Endpoints...)
	copied.CreatedAt = createdAt
	return copied
}
