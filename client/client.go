package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/fiware/ocpi-core/auth"
	"github.com/fiware/ocpi-core/envelope"
	ocpiHttp "github.com/fiware/ocpi-core/http"
	"github.com/fiware/ocpi-core/logging"
	"github.com/fiware/ocpi-core/model"
)

var logger = logging.Log()

var ErrNoEndpoint = errors.New("no_matching_endpoint")

type correlationKey struct{}

// WithCorrelationID propagates the correlation id of an inbound request to outbound calls.
func WithCorrelationID(ctx context.Context, correlationId string) context.Context {
	return context.WithValue(ctx, correlationKey{}, correlationId)
}

func correlationIdFrom(ctx context.Context) string {
	if correlationId, ok := ctx.Value(correlationKey{}).(string); ok && envelope.IsValidId(correlationId) {
		return correlationId
	}
	return uuid.NewString()
}

/**
* Client calls the platform of one partner. It is bound to the token and endpoints the partner handed out
* during registration and is safe for concurrent use.
 */
type Client struct {
	own          model.PartyIdentity
	partner      model.PartyIdentity
	remoteAccess model.RemoteAccessInfo
	httpClient   ocpiHttp.HttpClient
}

func NewClient(httpClient ocpiHttp.HttpClient, own model.PartyIdentity, partner model.PartyIdentity, remoteAccess model.RemoteAccessInfo) *Client {
	remoteAccess.Endpoints = append([]model.Endpoint{}, remoteAccess.Endpoints...)
	return &Client{own: own, partner: partner, remoteAccess: remoteAccess, httpClient: httpClient}
}

func (c *Client) Partner() model.PartyIdentity {
	return c.partner
}

func (c *Client) RemoteAccess() model.RemoteAccessInfo {
	remoteAccess := c.remoteAccess
	remoteAccess.Endpoints = append([]model.Endpoint{}, c.remoteAccess.Endpoints...)
	return remoteAccess
}

func (c *Client) GetVersions(ctx context.Context) (versions []model.Version, err error) {
	err = c.Do(ctx, http.MethodGet, c.remoteAccess.VersionsURL, nil, &versions)
	return versions, err
}

func (c *Client) GetVersionDetails(ctx context.Context, versionUrl string) (versionDetails model.VersionDetails, err error) {
	err = c.Do(ctx, http.MethodGet, versionUrl, nil, &versionDetails)
	return versionDetails, err
}

/**
* Discover selects the first of the supported versions the partner offers and returns its details.
* Fails with status 3002 if there is no common version.
 */
func (c *Client) Discover(ctx context.Context, supported []model.VersionNumber) (versionDetails model.VersionDetails, err error) {
	versions, err := c.GetVersions(ctx)
	if err != nil {
		return versionDetails, err
	}
	for _, candidate := range supported {
		for _, offered := range versions {
			if offered.Version == candidate {
				versionDetails, err = c.GetVersionDetails(ctx, offered.URL)
				if err != nil {
					return versionDetails, err
				}
				if versionDetails.Version == "" {
					versionDetails.Version = candidate
				}
				return versionDetails, nil
			}
		}
	}
	logger.Infof("Partner %s does not offer any of the versions %v.", c.partner, supported)
	return versionDetails, &model.HttpError{Status: http.StatusBadRequest, StatusCode: model.StatusUnsupportedVersion, Message: "No mutually supported version found."}
}

// EndpointURL returns the url of the module, preferring the requested interface role.
func (c *Client) EndpointURL(module model.ModuleID, role model.InterfaceRole) (string, error) {
	fallback := ""
	for _, endpoint := range c.remoteAccess.Endpoints {
		if endpoint.Identifier != module {
			continue
		}
		if endpoint.Role == role {
			return endpoint.URL, nil
		}
		if endpoint.Role == "" && fallback == "" {
			fallback = endpoint.URL
		}
	}
	if fallback != "" {
		return fallback, nil
	}
	return "", errors.Wrapf(ErrNoEndpoint, "%s does not offer %s as %s", c.partner, module, role)
}

/**
* Do sends an authenticated request to the partner. The body is json encoded, the data of a successful
* envelope is decoded into out. Envelopes with a status other than 1000 are returned as *model.HttpError.
 */
func (c *Client) Do(ctx context.Context, method string, url string, body interface{}, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "was not able to encode the request body")
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	request, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return errors.Wrapf(err, "was not able to create request to %s", url)
	}
	requestId := uuid.NewString()
	request.Header.Set(auth.AuthorizationHeader, auth.EncodeToken(c.remoteAccess.Token))
	request.Header.Set(envelope.RequestIdHeader, requestId)
	request.Header.Set(envelope.CorrelationIdHeader, correlationIdFrom(ctx))
	request.Header.Set(auth.FromCountryCodeHeader, c.own.CountryCode)
	request.Header.Set(auth.FromPartyIdHeader, c.own.PartyId)
	request.Header.Set(auth.ToCountryCodeHeader, c.partner.CountryCode)
	request.Header.Set(auth.ToPartyIdHeader, c.partner.PartyId)
	request.Header.Set("Accept", "application/json")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	logger.WithField("request_id", requestId).Debugf("Call [%s]%s of %s.", method, url, c.partner)
	response, err := c.httpClient.Do(request)
	if err != nil {
		return &model.HttpError{Status: http.StatusBadGateway, StatusCode: model.StatusUnableToUseClientApi, Message: fmt.Sprintf("Was not able to reach %s.", c.partner), RootError: err}
	}
	if response.Body != nil {
		defer response.Body.Close()
	}
	return decodeResponse(response, c.partner, out)
}

func decodeResponse(response *http.Response, partner model.PartyIdentity, out interface{}) error {
	if response.Body == nil {
		return &model.HttpError{Status: http.StatusBadGateway, StatusCode: model.StatusUnableToUseClientApi, Message: fmt.Sprintf("Empty response from %s.", partner)}
	}
	responseBytes, err := io.ReadAll(response.Body)
	if err != nil {
		return &model.HttpError{Status: http.StatusBadGateway, StatusCode: model.StatusUnableToUseClientApi, Message: fmt.Sprintf("Was not able to read the response of %s.", partner), RootError: err}
	}

	var ocpiResponse model.RawResponse
	if err := json.Unmarshal(responseBytes, &ocpiResponse); err != nil || ocpiResponse.StatusCode == 0 {
		logger.Debugf("Response of %s is not an envelope: %s", partner, string(responseBytes))
		return &model.HttpError{Status: http.StatusBadGateway, StatusCode: model.StatusUnableToUseClientApi, Message: fmt.Sprintf("Invalid response from %s, http status %d.", partner, response.StatusCode), RootError: err}
	}
	if ocpiResponse.StatusCode != model.StatusSuccess {
		return &model.HttpError{Status: response.StatusCode, StatusCode: ocpiResponse.StatusCode, Message: ocpiResponse.StatusMessage}
	}
	if out == nil || len(ocpiResponse.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(ocpiResponse.Data, out); err != nil {
		return &model.HttpError{Status: http.StatusBadGateway, StatusCode: model.StatusUnableToUseClientApi, Message: fmt.Sprintf("Unexpected data from %s.", partner), RootError: err}
	}
	return nil
}
