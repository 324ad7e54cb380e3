package metrics

import (
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/penglongli/gin-metrics/ginmetrics"

	"github.com/fiware/ocpi-core/logging"
)

const AuthenticationMetric = "ocpi_authentication_total"
const ClientBuildMetric = "ocpi_outbound_client_builds_total"
const ClientInvalidationMetric = "ocpi_outbound_client_invalidations_total"

var logger = logging.Log()

var registerOnce sync.Once

func register() {
	registerOnce.Do(func() {
		monitor := ginmetrics.GetMonitor()
		customMetrics := []*ginmetrics.Metric{
			{Type: ginmetrics.Counter, Name: AuthenticationMetric, Description: "Inbound authentications by result.", Labels: []string{"result"}},
			{Type: ginmetrics.Counter, Name: ClientBuildMetric, Description: "Outbound clients built by result.", Labels: []string{"result"}},
			{Type: ginmetrics.Counter, Name: ClientInvalidationMetric, Description: "Outbound clients dropped after credential changes.", Labels: []string{"kind"}},
		}
		for _, metric := range customMetrics {
			if err := monitor.AddMetric(metric); err != nil {
				logger.Warnf("Was not able to register metric %s. Err: %v", metric.Name, err)
			}
		}
	})
}

/**
* Expose registers the gin request metrics and the custom ocpi metrics and serves them at the given path.
 */
func Expose(router *gin.Engine, path string) {
	register()
	monitor := ginmetrics.GetMonitor()
	monitor.SetMetricPath(path)
	monitor.Use(router)
	logger.Infof("Expose metrics at %s.", path)
}

func CountAuthentication(result string) {
	inc(AuthenticationMetric, result)
}

func CountClientBuild(result string) {
	inc(ClientBuildMetric, result)
}

func CountClientInvalidation(kind string) {
	inc(ClientInvalidationMetric, kind)
}

func inc(name string, label string) {
	register()
	if err := ginmetrics.GetMonitor().GetMetric(name).Inc([]string{label}); err != nil {
		logger.Debugf("Was not able to count %s. Err: %v", name, err)
	}
}
