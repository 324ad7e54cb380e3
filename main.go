package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hellofresh/health-go/v5"
	pkgErrors "github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/fiware/ocpi-core/auth"
	"github.com/fiware/ocpi-core/client"
	"github.com/fiware/ocpi-core/config"
	"github.com/fiware/ocpi-core/credentials"
	"github.com/fiware/ocpi-core/envelope"
	ocpiHttp "github.com/fiware/ocpi-core/http"
	"github.com/fiware/ocpi-core/logging"
	"github.com/fiware/ocpi-core/metrics"
	"github.com/fiware/ocpi-core/parties"
	"github.com/fiware/ocpi-core/registry"
)

var version = "dev"

/**
* Global logger
 */
var logger = logging.Log()

func main() {
	var subject string
	var validity time.Duration

	app := &cli.App{
		Name:    "ocpi-core",
		Usage:   "OCPI 2.2.1 credentials and party registry",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the server, configured through the environment",
				Action: serve,
			},
			{
				Name:  "admin-token",
				Usage: "Mint a token for the admin api, signed with ADMIN_SIGNING_KEY",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "subject",
						Aliases:     []string{"s"},
						Value:       "admin",
						Destination: &subject,
					},
					&cli.DurationFlag{
						Name:        "validity",
						Aliases:     []string{"d"},
						Value:       24 * time.Hour,
						Destination: &validity,
					},
				},
				Action: func(c *cli.Context) error {
					token, err := parties.MintAdminToken(config.EnvConfig{}.AdminSigningKey(), subject, validity)
					if err != nil {
						return err
					}
					fmt.Println(token)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatal(err)
	}
}

func serve(c *cli.Context) error {
	var envConfig config.Config = config.EnvConfig{}
	if err := config.Validate(envConfig); err != nil {
		return pkgErrors.Wrap(err, "invalid configuration")
	}

	repository, err := newRepository(envConfig)
	if err != nil {
		return err
	}
	partyRegistry := registry.NewRegistry(repository, registry.RealClock{})
	if err := partyRegistry.Load(c.Context); err != nil {
		return pkgErrors.Wrap(err, "was not able to load the registry")
	}
	if seedFile := envConfig.PartiesSeedFile(); seedFile != "" {
		created, err := registry.Seed(c.Context, partyRegistry, seedFile)
		if err != nil {
			return pkgErrors.Wrapf(err, "was not able to seed the registry from %s", seedFile)
		}
		logger.Infof("Seeded %d parties from %s.", created, seedFile)
	}
	if interval := envConfig.RegistryRefreshInterval(); interval > 0 {
		refresher, err := registry.StartRefresher(partyRegistry, interval)
		if err != nil {
			return err
		}
		defer refresher.Stop()
	}

	httpClient := ocpiHttp.NewHttpClient(envConfig.OutboundTimeout())
	platform := credentials.NewPlatform(envConfig)
	clientRegistry := client.NewClientRegistry(partyRegistry, client.NewClientFactory(httpClient, platform.Identities))
	logger.Infof("Registry loaded with %d parties, %d clients cached.", partyRegistry.Size(), clientRegistry.Size())

	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(logging.GinHandlerFunc(), envelope.Middleware(), envelope.Recovery())
	router.NoRoute(envelope.NoRoute)
	router.NoMethod(envelope.NoMethod)
	metrics.Expose(router, "/metrics")

	healthHandler, err := ocpiHttp.NewHealthHandler(version, health.Config{
		Name:    "registry",
		Timeout: 5 * time.Second,
		Check: func(ctx context.Context) error {
			_, err := repository.GetParties(ctx)
			return err
		},
	})
	if err != nil {
		return err
	}
	router.GET("/health", healthHandler)

	authenticator := auth.NewAuthenticator(partyRegistry)
	ocpi := router.Group("/ocpi", authenticator.Middleware(), auth.RequireOperator())
	credentials.NewHandler(platform, partyRegistry, httpClient, credentials.UuidIssuer{}).Routes(ocpi)

	if signingKey := envConfig.AdminSigningKey(); signingKey != "" {
		registrar := credentials.NewRegistrar(platform, partyRegistry, httpClient, credentials.UuidIssuer{})
		admin := router.Group("/admin", parties.AdminAuth(signingKey))
		parties.NewController(partyRegistry, registrar, credentials.UuidIssuer{}).Routes(admin)
	} else {
		logger.Warn("No admin signing key configured, the admin api is disabled.")
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("0.0.0.0:%v", envConfig.ServerPort()),
		Handler: router,
	}

	chanError := make(chan error, 1)
	go func() {
		logger.Infof("Started router at %v", envConfig.ServerPort())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			chanError <- pkgErrors.Wrap(err, "was not able to start the http server")
		}
	}()

	chanQuit := make(chan os.Signal, 1)
	signal.Notify(chanQuit, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-chanError:
		return err
	case <-chanQuit:
		logger.Info("Received shutdown signal, stop the server.")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			return pkgErrors.Wrap(err, "was not able to stop the http server")
		}
	}
	return nil
}

func newRepository(envConfig config.Config) (registry.PartyRepository, error) {
	mySqlConfig := envConfig.MySql()
	if mySqlConfig == nil {
		logger.Warn("Parties are kept in-memory. No persistence will be applied, do NEVER use this for anything but development or testing!")
		return registry.NewInMemoryRepo(), nil
	}
	relRepository, err := registry.GetMySqlRepository(*mySqlConfig)
	if err != nil {
		return nil, err
	}
	return registry.NewSqlRepository(relRepository), nil
}
