package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hellofresh/health-go/v5"
)

const componentName = "ocpi-core"

/**
* Handler for the health endpoint, the given checks are executed on every request.
 */
func NewHealthHandler(version string, checks ...health.Config) (gin.HandlerFunc, error) {
	options := []health.Option{health.WithComponent(health.Component{
		Name:    componentName,
		Version: version,
	})}
	for _, check := range checks {
		options = append(options, health.WithChecks(check))
	}
	healthCheck, err := health.New(options...)
	if err != nil {
		return nil, err
	}
	return func(c *gin.Context) {
		checkResult := healthCheck.Measure(c.Request.Context())
		if checkResult.Status == health.StatusOK {
			c.AbortWithStatusJSON(http.StatusOK, checkResult)
		} else {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, checkResult)
		}
	}, nil
}
