package credentials

import (
	"github.com/fiware/ocpi-core/config"
	"github.com/fiware/ocpi-core/logging"
	"github.com/fiware/ocpi-core/model"
)

var logger = logging.Log()

// versions offered to partners, in order of preference
var SupportedVersions = []model.VersionNumber{model.Version221}

const versionsPath = "/ocpi/versions"

/**
* Platform describes this platform towards its partners: where to find it and as whom it acts.
 */
type Platform struct {
	BaseUrl         string
	Identities      []model.PartyIdentity
	BusinessDetails model.BusinessDetails
}

func NewPlatform(config config.Config) Platform {
	return Platform{BaseUrl: config.BaseUrl(), Identities: config.PlatformIdentities(), BusinessDetails: config.BusinessDetails()}
}

func (p Platform) VersionsURL() string {
	return p.BaseUrl + versionsPath
}

func (p Platform) VersionURL(version model.VersionNumber) string {
	return p.VersionsURL() + "/" + string(version)
}

func (p Platform) ModuleURL(version model.VersionNumber, module model.ModuleID) string {
	return p.BaseUrl + "/ocpi/" + string(version) + "/" + string(module)
}

// Endpoints of the modules implemented for the version.
func (p Platform) Endpoints(version model.VersionNumber) []model.Endpoint {
	credentialsUrl := p.ModuleURL(version, model.ModuleCredentials)
	return []model.Endpoint{
		{Identifier: model.ModuleCredentials, Role: model.InterfaceSender, URL: credentialsUrl},
		{Identifier: model.ModuleCredentials, Role: model.InterfaceReceiver, URL: credentialsUrl},
	}
}

// Credentials handed to a partner, the token is the one the partner has to use towards this platform.
func (p Platform) Credentials(token string) model.Credentials {
	roles := make([]model.CredentialsRole, 0, len(p.Identities))
	for _, identity := range p.Identities {
		roles = append(roles, model.CredentialsRole{Role: identity.Role, BusinessDetails: p.BusinessDetails, PartyId: identity.PartyId, CountryCode: identity.CountryCode})
	}
	return model.Credentials{Token: token, URL: p.VersionsURL(), Roles: roles}
}

func isSupported(version model.VersionNumber) bool {
	for _, supported := range SupportedVersions {
		if supported == version {
			return true
		}
	}
	return false
}
