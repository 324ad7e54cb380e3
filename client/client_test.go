package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"

	"github.com/fiware/ocpi-core/auth"
	"github.com/fiware/ocpi-core/envelope"
	"github.com/fiware/ocpi-core/logging"
	"github.com/fiware/ocpi-core/model"
)

type mockHttpClient struct {
	mockDoResponse map[string]string
	mockStatus     map[string]int
	mockError      map[string]error
	requests       []*http.Request
}

func (mhc *mockHttpClient) Do(req *http.Request) (*http.Response, error) {
	mhc.requests = append(mhc.requests, req)
	address := req.URL.Scheme + "://" + req.URL.Host + req.URL.Path
	if err, ok := mhc.mockError[address]; ok {
		return nil, err
	}
	body, ok := mhc.mockDoResponse[address]
	if !ok {
		return &http.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(strings.NewReader("404 page not found"))}, nil
	}
	status := http.StatusOK
	if mockStatus, ok := mhc.mockStatus[address]; ok {
		status = mockStatus
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body))}, nil
}

func envelopeOf(data interface{}) string {
	response := model.Response{Data: data, StatusCode: model.StatusSuccess}
	responseBytes, _ := json.Marshal(response)
	return string(responseBytes)
}

func errorEnvelope(statusCode model.StatusCode, message string) string {
	responseBytes, _ := json.Marshal(model.Response{StatusCode: statusCode, StatusMessage: message})
	return string(responseBytes)
}

const partnerVersions = "https://partner.org/ocpi/versions"
const partnerDetails = "https://partner.org/ocpi/2.2.1"

var own = model.PartyIdentity{CountryCode: "DE", PartyId: "FIW", Role: model.RoleEMSP}
var partner = model.PartyIdentity{CountryCode: "NL", PartyId: "ABC", Role: model.RoleCPO}

var partnerEndpoints = []model.Endpoint{
	{Identifier: model.ModuleCredentials, Role: model.InterfaceReceiver, URL: partnerDetails + "/credentials"},
	{Identifier: model.ModuleLocations, Role: model.InterfaceSender, URL: partnerDetails + "/locations"},
	{Identifier: model.ModuleTariffs, URL: partnerDetails + "/tariffs"},
}

func getTestClient(httpClient *mockHttpClient) *Client {
	return NewClient(httpClient, own, partner, model.RemoteAccessInfo{Token: "token-c", VersionsURL: partnerVersions, Version: model.Version221, Endpoints: partnerEndpoints})
}

func TestDo(t *testing.T) {
	logging.Log().SetLevel(logrus.DebugLevel)

	type test struct {
		testName           string
		mockResponse       string
		mockStatus         int
		mockError          error
		expectedVersions   []model.Version
		expectedStatusCode model.StatusCode
	}

	versions := []model.Version{{Version: model.Version221, URL: partnerDetails}}

	tests := []test{
		{"Decode the data of successful responses.", envelopeOf(versions), http.StatusOK, nil, versions, 0},
		{"Return ocpi errors as http errors.", errorEnvelope(model.StatusClientError, "Unknown token"), http.StatusUnauthorized, nil, nil, model.StatusClientError},
		{"Return ocpi errors delivered with http 200.", errorEnvelope(model.StatusUnsupportedVersion, "Nope"), http.StatusOK, nil, nil, model.StatusUnsupportedVersion},
		{"Report non envelope responses as 3001.", "<html>Bad Gateway</html>", http.StatusBadGateway, nil, nil, model.StatusUnableToUseClientApi},
		{"Report unreachable partners as 3001.", "", 0, errors.New("connection refused"), nil, model.StatusUnableToUseClientApi},
		{"Report unexpected data as 3001.", envelopeOf("not a list"), http.StatusOK, nil, nil, model.StatusUnableToUseClientApi},
	}

	for _, tc := range tests {
		t.Run(tc.testName, func(t *testing.T) {
			httpClient := &mockHttpClient{mockDoResponse: map[string]string{}, mockStatus: map[string]int{}, mockError: map[string]error{}}
			if tc.mockError != nil {
				httpClient.mockError[partnerVersions] = tc.mockError
			} else {
				httpClient.mockDoResponse[partnerVersions] = tc.mockResponse
				httpClient.mockStatus[partnerVersions] = tc.mockStatus
			}

			versions, err := getTestClient(httpClient).GetVersions(context.TODO())
			if tc.expectedStatusCode == 0 {
				if err != nil {
					t.Fatalf("%s: Call should succeed, but was %v.", tc.testName, err)
				}
				if diff := cmp.Diff(tc.expectedVersions, versions); diff != "" {
					t.Errorf("%s: Unexpected versions. Diff: %s", tc.testName, diff)
				}
				return
			}
			var httpErr *model.HttpError
			if !errors.As(err, &httpErr) {
				t.Fatalf("%s: Expected an http error, but was %v.", tc.testName, err)
			}
			if httpErr.StatusCode != tc.expectedStatusCode {
				t.Errorf("%s: Unexpected status code. Expected: %d, Actual: %d", tc.testName, tc.expectedStatusCode, httpErr.StatusCode)
			}
		})
	}
}

func TestDoSetsHeaders(t *testing.T) {
	httpClient := &mockHttpClient{mockDoResponse: map[string]string{partnerDetails + "/credentials": envelopeOf(nil)}}
	client := getTestClient(httpClient)

	ctx := WithCorrelationID(context.TODO(), "correlation-1")
	err := client.Do(ctx, http.MethodPost, partnerDetails+"/credentials", model.Credentials{Token: "b"}, nil)
	if err != nil {
		t.Fatalf("Call should succeed, but was %v.", err)
	}

	request := httpClient.requests[0]
	token, found := auth.ParseAuthorization(request.Header.Get(auth.AuthorizationHeader))
	if !found || token != "token-c" {
		t.Errorf("The partner token should be sent, but was %q.", token)
	}
	expectedHeaders := map[string]string{
		envelope.CorrelationIdHeader: "correlation-1",
		auth.FromCountryCodeHeader:   "DE",
		auth.FromPartyIdHeader:       "FIW",
		auth.ToCountryCodeHeader:     "NL",
		auth.ToPartyIdHeader:         "ABC",
		"Content-Type":               "application/json",
	}
	for header, expected := range expectedHeaders {
		if request.Header.Get(header) != expected {
			t.Errorf("Header %s should be %s, but was %s.", header, expected, request.Header.Get(header))
		}
	}
	if !envelope.IsValidId(request.Header.Get(envelope.RequestIdHeader)) {
		t.Errorf("Every request needs a request id.")
	}
}

func TestDoGeneratesCorrelationId(t *testing.T) {
	httpClient := &mockHttpClient{mockDoResponse: map[string]string{partnerVersions: envelopeOf([]model.Version{})}}
	getTestClient(httpClient).GetVersions(context.TODO())
	if !envelope.IsValidId(httpClient.requests[0].Header.Get(envelope.CorrelationIdHeader)) {
		t.Errorf("A correlation id should be generated if none is propagated.")
	}
}

func TestDiscover(t *testing.T) {

	type test struct {
		testName           string
		versions           []model.Version
		expectedVersion    model.VersionNumber
		expectedStatusCode model.StatusCode
	}

	tests := []test{
		{"Select the supported version.", []model.Version{{Version: "2.1.1", URL: "https://partner.org/ocpi/2.1.1"}, {Version: model.Version221, URL: partnerDetails}}, model.Version221, 0},
		{"Fail without a common version.", []model.Version{{Version: "2.1.1", URL: "https://partner.org/ocpi/2.1.1"}}, "", model.StatusUnsupportedVersion},
		{"Fail without any version.", []model.Version{}, "", model.StatusUnsupportedVersion},
	}

	for _, tc := range tests {
		t.Run(tc.testName, func(t *testing.T) {
			httpClient := &mockHttpClient{mockDoResponse: map[string]string{
				partnerVersions: envelopeOf(tc.versions),
				partnerDetails:  envelopeOf(model.VersionDetails{Version: model.Version221, Endpoints: partnerEndpoints}),
			}}
			details, err := getTestClient(httpClient).Discover(context.TODO(), []model.VersionNumber{model.Version221})
			if tc.expectedStatusCode != 0 {
				var httpErr *model.HttpError
				if !errors.As(err, &httpErr) || httpErr.StatusCode != tc.expectedStatusCode {
					t.Errorf("%s: Expected status %d, but was %v.", tc.testName, tc.expectedStatusCode, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("%s: Discovery should succeed, but was %v.", tc.testName, err)
			}
			if details.Version != tc.expectedVersion || len(details.Endpoints) != len(partnerEndpoints) {
				t.Errorf("%s: Unexpected details %v.", tc.testName, details)
			}
		})
	}
}

func TestEndpointURL(t *testing.T) {

	type test struct {
		testName    string
		module      model.ModuleID
		role        model.InterfaceRole
		expectedUrl string
		expectError bool
	}

	tests := []test{
		{"Return the endpoint of the role.", model.ModuleLocations, model.InterfaceSender, partnerDetails + "/locations", false},
		{"Fall back to endpoints without role.", model.ModuleTariffs, model.InterfaceSender, partnerDetails + "/tariffs", false},
		{"Fail for the other role.", model.ModuleLocations, model.InterfaceReceiver, "", true},
		{"Fail for unknown modules.", model.ModuleSessions, model.InterfaceSender, "", true},
	}

	for _, tc := range tests {
		t.Run(tc.testName, func(t *testing.T) {
			url, err := getTestClient(&mockHttpClient{}).EndpointURL(tc.module, tc.role)
			if tc.expectError != (err != nil) {
				t.Errorf("%s: Unexpected error %v.", tc.testName, err)
			}
			if tc.expectError && !errors.Is(err, ErrNoEndpoint) {
				t.Errorf("%s: Missing endpoints should be reported as ErrNoEndpoint, but was %v.", tc.testName, err)
			}
			if url != tc.expectedUrl {
				t.Errorf("%s: Unexpected url. Expected: %s, Actual: %s", tc.testName, tc.expectedUrl, url)
			}
		})
	}
}
