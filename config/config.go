package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fiware/ocpi-core/logging"
	"github.com/fiware/ocpi-core/model"
)

const ServerPortVar = "SERVER_PORT"
const BaseUrlVar = "OCPI_BASE_URL"
const CountryCodeVar = "OCPI_COUNTRY_CODE"
const PartyIdVar = "OCPI_PARTY_ID"
const RolesVar = "OCPI_ROLES"
const BusinessNameVar = "OCPI_BUSINESS_NAME"
const BusinessWebsiteVar = "OCPI_BUSINESS_WEBSITE"
const AdminSigningKeyVar = "ADMIN_SIGNING_KEY"
const OutboundTimeoutVar = "OUTBOUND_TIMEOUT_S"
const RegistryRefreshVar = "REGISTRY_REFRESH_S"
const PartiesSeedFileVar = "PARTIES_SEED_FILE"

const MySqlHostVar = "MYSQL_HOST"
const MySqlPortVar = "MYSQL_PORT"
const MySqlDatabaseVar = "MYSQL_DATABASE"
const MySqlUsernameVar = "MYSQL_USERNAME"
const MySqlPasswordVar = "MYSQL_PASSWORD"

var logger = logging.Log()

var defaultServerPort = 8080
var defaultBaseUrl = "http://localhost:8080"
var defaultCountryCode = "DE"
var defaultPartyId = "FIW"
var defaultBusinessName = "FIWARE OCPI"
var defaultOutboundTimeout = 30 * time.Second

type Config interface {
	ServerPort() int
	// public address of this platform, used to build the versions and endpoint urls
	BaseUrl() string
	// every identity this platform acts as
	PlatformIdentities() []model.PartyIdentity
	BusinessDetails() model.BusinessDetails
	// key to verify admin tokens with, the admin api is disabled if empty
	AdminSigningKey() string
	OutboundTimeout() time.Duration
	// interval to reload the registry from the repository, 0 disables reloading
	RegistryRefreshInterval() time.Duration
	PartiesSeedFile() string
	// nil if no database is configured
	MySql() *MySqlConfig
}

type MySqlConfig struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
}

func (msc MySqlConfig) ConnectionString() string {
	if msc.Password == "" {
		return fmt.Sprintf("%s@tcp(%s:%d)/%s?parseTime=true", msc.Username, msc.Host, msc.Port, msc.Database)
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", msc.Username, msc.Password, msc.Host, msc.Port, msc.Database)
}

type EnvConfig struct{}

func (EnvConfig) ServerPort() int {
	portEnv := os.Getenv(ServerPortVar)
	if portEnv == "" {
		return defaultServerPort
	}
	port, err := strconv.Atoi(portEnv)
	if err != nil || port <= 0 {
		logger.Warnf("No valid server port was provided, run on default %d.", defaultServerPort)
		return defaultServerPort
	}
	return port
}

func (EnvConfig) BaseUrl() string {
	baseUrl := os.Getenv(BaseUrlVar)
	if baseUrl == "" {
		logger.Warnf("No base url configured, use %s.", defaultBaseUrl)
		return defaultBaseUrl
	}
	return strings.TrimSuffix(baseUrl, "/")
}

func (EnvConfig) PlatformIdentities() (identities []model.PartyIdentity) {
	countryCode := envOrDefault(CountryCodeVar, defaultCountryCode)
	partyId := envOrDefault(PartyIdVar, defaultPartyId)
	rolesEnv := envOrDefault(RolesVar, string(model.RoleCPO))

	for _, roleString := range strings.Split(rolesEnv, ",") {
		if strings.TrimSpace(roleString) == "" {
			continue
		}
		role, err := model.ParseRole(roleString)
		if err != nil {
			logger.Warnf("Ignore configured role %s. Err: %v", roleString, err)
			continue
		}
		identities = append(identities, model.NewPartyIdentity(countryCode, partyId, role))
	}
	return identities
}

func (EnvConfig) BusinessDetails() model.BusinessDetails {
	return model.BusinessDetails{Name: envOrDefault(BusinessNameVar, defaultBusinessName), Website: os.Getenv(BusinessWebsiteVar)}
}

func (EnvConfig) AdminSigningKey() string {
	adminKey := os.Getenv(AdminSigningKeyVar)
	if adminKey == "" {
		logger.Info("No admin signing key configured, the admin api is disabled.")
	}
	return adminKey
}

func (EnvConfig) OutboundTimeout() time.Duration {
	return durationFromEnv(OutboundTimeoutVar, defaultOutboundTimeout)
}

func (EnvConfig) RegistryRefreshInterval() time.Duration {
	return durationFromEnv(RegistryRefreshVar, 0)
}

func (EnvConfig) PartiesSeedFile() string {
	return os.Getenv(PartiesSeedFileVar)
}

func (EnvConfig) MySql() *MySqlConfig {
	mysqlHost := os.Getenv(MySqlHostVar)
	if mysqlHost == "" {
		return nil
	}
	mySqlConfig := MySqlConfig{Host: mysqlHost, Port: 3306}

	if mysqlPortEnv := os.Getenv(MySqlPortVar); mysqlPortEnv != "" {
		port, err := strconv.Atoi(mysqlPortEnv)
		if err != nil {
			logger.Warnf("Invalid mysql port configured: %s, use 3306.", mysqlPortEnv)
		} else {
			mySqlConfig.Port = port
		}
	}
	mySqlConfig.Database = os.Getenv(MySqlDatabaseVar)
	if mySqlConfig.Database == "" {
		logger.Warn("No mysql db configured, mysql repo not available.")
		return nil
	}
	mySqlConfig.Username = os.Getenv(MySqlUsernameVar)
	if mySqlConfig.Username == "" {
		logger.Infof("No user configured for mySql, will try to connect as root.")
		mySqlConfig.Username = "root"
	}
	mySqlConfig.Password = os.Getenv(MySqlPasswordVar)
	if mySqlConfig.Password == "" {
		logger.Infof("No password configured for mySql, will try to connect without credentials.")
	}
	return &mySqlConfig
}

// Validate is used on startup, an invalid own identity makes every handshake fail.
func Validate(config Config) error {
	identities := config.PlatformIdentities()
	if len(identities) == 0 {
		return fmt.Errorf("at least one platform role has to be configured in %s", RolesVar)
	}
	for _, identity := range identities {
		if err := identity.Validate(); err != nil {
			return err
		}
	}
	if strings.TrimSpace(config.BusinessDetails().Name) == "" {
		return fmt.Errorf("%s must not be empty", BusinessNameVar)
	}
	return nil
}

func envOrDefault(name string, defaultValue string) string {
	value := os.Getenv(name)
	if value == "" {
		return defaultValue
	}
	return value
}

func durationFromEnv(name string, defaultValue time.Duration) time.Duration {
	valueEnv := os.Getenv(name)
	if valueEnv == "" {
		return defaultValue
	}
	seconds, err := strconv.Atoi(valueEnv)
	if err != nil || seconds < 0 {
		logger.Warnf("Invalid value %s for %s, use %v.", valueEnv, name, defaultValue)
		return defaultValue
	}
	return time.Duration(seconds) * time.Second
}
