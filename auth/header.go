package auth

import (
	"encoding/base64"
	"net/http"
	"strings"
	"unicode/utf8"
)

const AuthorizationHeader = "Authorization"
const FromCountryCodeHeader = "OCPI-from-country-code"
const FromPartyIdHeader = "OCPI-from-party-id"
const ToCountryCodeHeader = "OCPI-to-country-code"
const ToPartyIdHeader = "OCPI-to-party-id"

// PartyCode is the country code and party id of a from or to header pair.
type PartyCode struct {
	CountryCode string
	PartyId     string
}

// IsSet requires both parts.
func (pc PartyCode) IsSet() bool {
	return pc.CountryCode != "" && pc.PartyId != ""
}

func (pc PartyCode) String() string {
	return pc.CountryCode + "*" + pc.PartyId
}

func fromHeaders(request *http.Request) PartyCode {
	return PartyCode{CountryCode: headerCode(request, FromCountryCodeHeader), PartyId: headerCode(request, FromPartyIdHeader)}
}

func toHeaders(request *http.Request) PartyCode {
	return PartyCode{CountryCode: headerCode(request, ToCountryCodeHeader), PartyId: headerCode(request, ToPartyIdHeader)}
}

func headerCode(request *http.Request, header string) string {
	return strings.ToUpper(strings.TrimSpace(request.Header.Get(header)))
}

/**
* ParseAuthorization extracts the token from "Token <base64>", "Bearer <base64>" or basic auth, where the
* token is the username. Anything else, including payloads that do not decode, yields no token.
 */
func ParseAuthorization(header string) (token string, found bool) {
	scheme, payload, hasPayload := strings.Cut(strings.TrimSpace(header), " ")
	if !hasPayload {
		return "", false
	}
	decoded, ok := decodeBase64(strings.TrimSpace(payload))
	if !ok {
		return "", false
	}

	switch strings.ToLower(scheme) {
	case "token", "bearer":
		token = decoded
	case "basic":
		token, _, _ = strings.Cut(decoded, ":")
	default:
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// EncodeToken builds the header value used for outbound calls.
func EncodeToken(token string) string {
	return "Token " + base64.StdEncoding.EncodeToString([]byte(token))
}

func decodeBase64(payload string) (string, bool) {
	if payload == "" {
		return "", false
	}
	for _, encoding := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		decoded, err := encoding.DecodeString(payload)
		if err == nil && utf8.Valid(decoded) {
			return string(decoded), true
		}
	}
	return "", false
}
