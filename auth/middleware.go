package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/fiware/ocpi-core/envelope"
	"github.com/fiware/ocpi-core/logging"
	"github.com/fiware/ocpi-core/metrics"
	"github.com/fiware/ocpi-core/model"
)

const requestContextKey = "ocpi-request-context"

/**
* Middleware authenticates every request and stores the RequestContext. It never rejects a request,
* routes that require a caller use RequireAuthenticated. Has to run after the envelope middleware.
 */
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestContext := a.Authenticate(c.Request, "")
		requestContext.RequestID = envelope.RequestID(c)
		requestContext.CorrelationID = envelope.CorrelationID(c)
		c.Set(requestContextKey, requestContext)
		c.Next()
	}
}

/**
* ForRole marks the routes of a group as serving callers of the given role. Tokens shared by multiple roles
* of the same party are resolved to that role.
 */
func ForRole(role model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestContext := GetRequestContext(c)
		if requestContext.Failure == ReasonAmbiguousToken && requestContext.From.IsSet() && len(requestContext.candidates) > 0 {
			requestContext.narrow(role)
			c.Set(requestContextKey, requestContext)
		}
		c.Next()
	}
}

/**
* RequireAuthenticated rejects every request without an authenticated caller with 401 and status 2000.
* Unknown, ambiguous and disabled credentials are indistinguishable for the caller.
 */
func RequireAuthenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestContext := GetRequestContext(c)
		if requestContext.IsAuthenticated() {
			metrics.CountAuthentication(string(ReasonNone))
			c.Next()
			return
		}
		reject(c, requestContext)
	}
}

/**
* RequireOperator accepts authenticated callers and callers whose token is shared by several enabled roles of
* one operator. Only for routes that are not bound to a role, handlers use OperatorParties.
 */
func RequireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestContext := GetRequestContext(c)
		if len(requestContext.OperatorParties()) > 0 {
			metrics.CountAuthentication("operator")
			c.Next()
			return
		}
		reject(c, requestContext)
	}
}

func reject(c *gin.Context, requestContext RequestContext) {
	metrics.CountAuthentication(string(requestContext.Failure))

	entry := logger.WithField("request_id", requestContext.RequestID).WithField("reason", requestContext.Failure)
	if requestContext.HasToken() {
		entry = entry.WithField("token", logging.MaskToken(requestContext.Token))
	}
	if requestContext.Party != nil {
		entry = entry.WithField("party", requestContext.Party.Identity.String())
	}
	entry.Infof("Rejected request to %s.", c.Request.URL.Path)
	envelope.Error(c, model.Unauthorized("Invalid or missing token."))
}

// GetRequestContext returns an anonymous context if the middleware did not run.
func GetRequestContext(c *gin.Context) RequestContext {
	value, exists := c.Get(requestContextKey)
	if !exists {
		return RequestContext{RequestID: envelope.RequestID(c), CorrelationID: envelope.CorrelationID(c), Failure: ReasonMissingToken}
	}
	return value.(RequestContext)
}
