package parties

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fiware/ocpi-core/credentials"
	"github.com/fiware/ocpi-core/envelope"
	"github.com/fiware/ocpi-core/logging"
	"github.com/fiware/ocpi-core/model"
	"github.com/fiware/ocpi-core/registry"
)

var logger = logging.Log()

/**
* PartyRequest creates or changes a party. A party is created with the token it has to use for the registration,
* one is issued if none is given.
 */
type PartyRequest struct {
	Identity        model.PartyIdentity   `json:"identity"`
	BusinessDetails model.BusinessDetails `json:"business_details"`
	Status          model.Status          `json:"status,omitempty"`
	Token           string                `json:"token,omitempty"`
}

// Registrar starts outbound registrations.
type Registrar interface {
	Register(ctx context.Context, request credentials.RegistrationRequest) ([]model.RemoteParty, error)
}

/**
* Controller serves the admin api over the registered parties.
 */
type Controller struct {
	parties   *registry.Registry
	registrar Registrar
	tokens    credentials.TokenIssuer
}

func NewController(parties *registry.Registry, registrar Registrar, tokens credentials.TokenIssuer) *Controller {
	return &Controller{parties: parties, registrar: registrar, tokens: tokens}
}

// Routes registers the admin api, the group has to run AdminAuth before.
func (pc *Controller) Routes(admin *gin.RouterGroup) {
	admin.GET("/parties", pc.GetParties)
	admin.POST("/parties", pc.CreateParty)
	admin.GET("/parties/:country/:party/:role", pc.GetParty)
	admin.PUT("/parties/:country/:party/:role", pc.ReplaceParty)
	admin.DELETE("/parties/:country/:party/:role", pc.DeleteParty)
	admin.POST("/parties/:country/:party/:role/enable", pc.EnableParty)
	admin.POST("/parties/:country/:party/:role/disable", pc.DisableParty)
	admin.POST("/registrations", pc.StartRegistration)
}

func (pc *Controller) GetParties(c *gin.Context) {
	page, httpErr := envelope.ParsePage(c, envelope.DefaultPageSettings)
	if !httpErr.IsEmpty() {
		envelope.Error(c, httpErr)
		return
	}

	parties := []model.RemoteParty{}
	for _, party := range pc.parties.List() {
		if page.Includes(party.LastUpdated) {
			parties = append(parties, maskTokens(party))
		}
	}
	start, end := page.Bounds(len(parties))
	envelope.Collection(c, page, parties[start:end], len(parties))
}

func (pc *Controller) GetParty(c *gin.Context) {
	identity, httpErr := identityFromPath(c)
	if !httpErr.IsEmpty() {
		envelope.Error(c, httpErr)
		return
	}
	party, found := pc.parties.FindByIdentity(identity)
	if !found {
		envelope.Error(c, model.NotFound("Party not found."))
		return
	}
	envelope.Success(c, maskTokens(party))
}

func (pc *Controller) CreateParty(c *gin.Context) {
	partyRequest, httpErr := readPartyRequest(c)
	if !httpErr.IsEmpty() {
		envelope.Error(c, httpErr)
		return
	}
	token := partyRequest.Token
	if token == "" {
		token = pc.tokens.Issue()
	}
	if len(token) > model.MaxTokenLength {
		envelope.Error(c, model.BadRequest(model.StatusInvalidParameters, "token: too long"))
		return
	}

	party := model.RemoteParty{
		Identity:          partyRequest.Identity,
		Status:            partyRequest.Status,
		BusinessDetails:   partyRequest.BusinessDetails,
		AccessInfos:       []model.AccessInfo{{Token: token, Status: model.StatusEnabled, CreatedAt: now()}},
		RemoteAccessInfos: []model.RemoteAccessInfo{},
	}
	created, err := pc.parties.Create(c.Request.Context(), party)
	if err != nil {
		logger.Debugf("Was not able to create party %s.", logging.PrettyPrintObject(maskTokens(party)))
		envelope.Error(c, registryError(err))
		return
	}
	logger.Infof("Party %s created by %s.", created.Identity, AdminSubject(c))
	// the only response carrying the token, it has to be handed to the partner
	envelope.SuccessWithStatus(c, http.StatusCreated, created)
}

func (pc *Controller) ReplaceParty(c *gin.Context) {
	identity, httpErr := identityFromPath(c)
	if !httpErr.IsEmpty() {
		envelope.Error(c, httpErr)
		return
	}
	partyRequest, httpErr := readPartyRequest(c)
	if !httpErr.IsEmpty() {
		envelope.Error(c, httpErr)
		return
	}
	if partyRequest.Identity != identity {
		envelope.Error(c, model.BadRequest(model.StatusInvalidParameters, "Identity cannot be updated."))
		return
	}

	updated, err := pc.parties.Update(c.Request.Context(), identity, func(party *model.RemoteParty) error {
		party.BusinessDetails = partyRequest.BusinessDetails
		if partyRequest.Status != "" {
			party.Status = partyRequest.Status
		}
		if partyRequest.Token != "" && !party.HoldsToken(partyRequest.Token) {
			party.AccessInfos = append(party.AccessInfos, model.AccessInfo{Token: partyRequest.Token, Status: model.StatusEnabled, CreatedAt: now()})
		}
		return nil
	})
	if err != nil {
		envelope.Error(c, registryError(err))
		return
	}
	envelope.Success(c, maskTokens(updated))
}

func (pc *Controller) DeleteParty(c *gin.Context) {
	identity, httpErr := identityFromPath(c)
	if !httpErr.IsEmpty() {
		envelope.Error(c, httpErr)
		return
	}
	if err := pc.parties.Delete(c.Request.Context(), identity); err != nil {
		envelope.Error(c, registryError(err))
		return
	}
	logger.Infof("Party %s deleted by %s.", identity, AdminSubject(c))
	c.AbortWithStatus(http.StatusNoContent)
}

func (pc *Controller) EnableParty(c *gin.Context) {
	pc.setStatus(c, model.StatusEnabled)
}

func (pc *Controller) DisableParty(c *gin.Context) {
	pc.setStatus(c, model.StatusDisabled)
}

func (pc *Controller) setStatus(c *gin.Context, status model.Status) {
	identity, httpErr := identityFromPath(c)
	if !httpErr.IsEmpty() {
		envelope.Error(c, httpErr)
		return
	}
	updated, err := pc.parties.Update(c.Request.Context(), identity, func(party *model.RemoteParty) error {
		party.Status = status
		return nil
	})
	if err != nil {
		envelope.Error(c, registryError(err))
		return
	}
	logger.Infof("Party %s set to %s by %s.", identity, status, AdminSubject(c))
	envelope.Success(c, maskTokens(updated))
}

func (pc *Controller) StartRegistration(c *gin.Context) {
	bodyData, err := io.ReadAll(c.Request.Body)
	if err != nil {
		logger.Debugf("Was not able to read the body, return error %v.", err)
		envelope.Error(c, model.BadRequest(model.StatusInvalidParameters, "Unable to read body."))
		return
	}
	var registrationRequest credentials.RegistrationRequest
	if err := json.Unmarshal(bodyData, &registrationRequest); err != nil {
		logger.Debugf("Was not able to unmarshal request body: %s", string(bodyData))
		envelope.Error(c, model.BadRequest(model.StatusInvalidParameters, "Body is not a registration request."))
		return
	}

	registered, err := pc.registrar.Register(c.Request.Context(), registrationRequest)
	if err != nil {
		envelope.Failure(c, err)
		return
	}
	masked := make([]model.RemoteParty, 0, len(registered))
	for _, party := range registered {
		masked = append(masked, maskTokens(party))
	}
	envelope.SuccessWithStatus(c, http.StatusCreated, masked)
}

func now() time.Time {
	return time.Now().UTC()
}

func readPartyRequest(c *gin.Context) (partyRequest PartyRequest, httpErr model.HttpError) {
	bodyData, err := io.ReadAll(c.Request.Body)
	if err != nil {
		logger.Debugf("Was not able to read the body, return error %v.", err)
		return partyRequest, model.BadRequest(model.StatusInvalidParameters, "Unable to read body.")
	}
	if err := json.Unmarshal(bodyData, &partyRequest); err != nil {
		logger.Debugf("Was not able to unmarshal request body: %s", string(bodyData))
		return partyRequest, model.BadRequest(model.StatusInvalidParameters, "Body is not a party.")
	}
	identity := partyRequest.Identity
	partyRequest.Identity = model.NewPartyIdentity(identity.CountryCode, identity.PartyId, identity.Role)
	if err := partyRequest.Identity.Validate(); err != nil {
		return partyRequest, model.BadRequest(model.StatusInvalidParameters, err.Error())
	}
	switch partyRequest.Status {
	case "", model.StatusEnabled, model.StatusDisabled:
	default:
		return partyRequest, model.BadRequest(model.StatusInvalidParameters, "status: must be ENABLED or DISABLED")
	}
	return partyRequest, httpErr
}

func identityFromPath(c *gin.Context) (identity model.PartyIdentity, httpErr model.HttpError) {
	identity = model.NewPartyIdentity(c.Param("country"), c.Param("party"), model.Role(c.Param("role")))
	if err := identity.Validate(); err != nil {
		return identity, model.BadRequest(model.StatusInvalidParameters, err.Error())
	}
	return identity, httpErr
}

func registryError(err error) model.HttpError {
	switch {
	case errors.Is(err, registry.ErrPartyNotFound):
		return model.NotFound("Party not found.")
	case errors.Is(err, registry.ErrPartyExists):
		return model.HttpError{Status: http.StatusConflict, StatusCode: model.StatusClientError, Message: "Party already exists."}
	case errors.Is(err, model.ErrInvalidIdentity):
		return model.BadRequest(model.StatusInvalidParameters, err.Error())
	default:
		return model.InternalError("Was not able to store the party.", err)
	}
}

// maskTokens hides all tokens of the party, only their prefix is returned.
func maskTokens(party model.RemoteParty) model.RemoteParty {
	masked := party.Copy()
	for i := range masked.AccessInfos {
		masked.AccessInfos[i].Token = logging.MaskToken(masked.AccessInfos[i].Token)
	}
	for i := range masked.RemoteAccessInfos {
		masked.RemoteAccessInfos[i].Token = logging.MaskToken(masked.RemoteAccessInfos[i].Token)
	}
	return masked
}
