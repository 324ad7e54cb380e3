package envelope

import (
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fiware/ocpi-core/logging"
	"github.com/fiware/ocpi-core/model"
)

const RequestIdHeader = "X-Request-ID"
const CorrelationIdHeader = "X-Correlation-ID"

const requestIdKey = "ocpi-request-id"
const correlationIdKey = "ocpi-correlation-id"

// longer ids are replaced
const maxIdLength = 255

var logger = logging.Log()

/**
* Middleware takes the request and correlation id from the request or generates new ones. Both are
* available through RequestID and CorrelationID and are echoed on every response, including errors.
 */
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestId := c.GetHeader(RequestIdHeader)
		if !IsValidId(requestId) {
			requestId = NewId()
		}
		correlationId := c.GetHeader(CorrelationIdHeader)
		if !IsValidId(correlationId) {
			correlationId = NewId()
		}
		c.Set(requestIdKey, requestId)
		c.Set(correlationIdKey, correlationId)
		c.Header(RequestIdHeader, requestId)
		c.Header(CorrelationIdHeader, correlationId)
		c.Next()
	}
}

func NewId() string {
	return uuid.NewString()
}

// IsValidId accepts any printable, non-empty string of at most 255 bytes.
func IsValidId(id string) bool {
	if strings.TrimSpace(id) == "" || len(id) > maxIdLength {
		return false
	}
	for _, r := range id {
		if r == unicode.ReplacementChar || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

func RequestID(c *gin.Context) string {
	return c.GetString(requestIdKey)
}

func CorrelationID(c *gin.Context) string {
	return c.GetString(correlationIdKey)
}

func newResponse(data interface{}, statusCode model.StatusCode, message string) model.Response {
	return model.Response{Data: data, StatusCode: statusCode, StatusMessage: message, Timestamp: model.NewDateTime(time.Now())}
}

func Success(c *gin.Context, data interface{}) {
	SuccessWithStatus(c, http.StatusOK, data)
}

func SuccessWithStatus(c *gin.Context, httpStatus int, data interface{}) {
	c.JSON(httpStatus, newResponse(data, model.StatusSuccess, "Success"))
}

/**
* Error aborts the request with the given error. The message of the error is returned to the caller,
* the root error is only logged.
 */
func Error(c *gin.Context, httpErr model.HttpError) {
	status := httpErr.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	message := httpErr.Message
	if message == "" {
		message = defaultMessage(httpErr.OcpiStatus())
	}
	if httpErr.RootError != nil {
		logger.WithField("request_id", RequestID(c)).Debugf("Request failed with %s. Root: %v", message, httpErr.RootError)
	}
	c.AbortWithStatusJSON(status, newResponse(nil, httpErr.OcpiStatus(), message))
}

// Failure reports arbitrary errors, only *model.HttpError messages are returned to the caller.
func Failure(c *gin.Context, err error) {
	var httpErr *model.HttpError
	if errors.As(err, &httpErr) {
		Error(c, *httpErr)
		return
	}
	Error(c, model.InternalError("", err))
}

/**
* Recovery answers panics of later handlers with a server error envelope. Has to run after Middleware,
* so that the response carries the request ids.
 */
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.WithField("request_id", RequestID(c)).Errorf("Recovered from panic: %v", recovered)
		Error(c, model.InternalError("", nil))
	})
}

// NoRoute answers unknown paths, register it with router.NoRoute.
func NoRoute(c *gin.Context) {
	Error(c, model.NotFound("No such endpoint."))
}

// NoMethod answers unsupported methods, requires router.HandleMethodNotAllowed.
func NoMethod(c *gin.Context) {
	Error(c, model.MethodNotAllowed("Method not supported by this endpoint."))
}

func defaultMessage(statusCode model.StatusCode) string {
	switch statusCode {
	case model.StatusClientError:
		return "Generic client error"
	case model.StatusInvalidParameters:
		return "Invalid or missing parameters"
	case model.StatusNotEnoughInformation:
		return "Not enough information"
	case model.StatusUnknownLocation:
		return "Unknown location"
	case model.StatusUnknownToken:
		return "Unknown token"
	case model.StatusUnableToUseClientApi:
		return "Unable to use the client's API"
	case model.StatusUnsupportedVersion:
		return "Unsupported version"
	case model.StatusNoMatchingEndpoints:
		return "No matching endpoints or expected endpoints missing between parties"
	case model.StatusHubError:
		return "Generic hub error"
	case model.StatusUnknownReceiver:
		return "Unknown receiver"
	case model.StatusForwardingTimeout:
		return "Timeout on forwarded request"
	case model.StatusConnectionProblem:
		return "Connection problem"
	}
	return "Generic server error"
}
