package logging

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

/**
* Global logger
 */
var logger = logrus.New()

// paths without request log, e.g. /health and /metrics polled by the orchestrator
var skipPaths = map[string]bool{}
var logRequests = true

func Log() *logrus.Logger {
	return logger
}

/**
* GinHandlerFunc logs every finished request with its ocpi ids. Has to run before the envelope middleware,
* the ids are taken from the response headers it sets.
 */
func GinHandlerFunc() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !logRequests || skipPaths[c.Request.URL.Path] {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}
		entry := logger.WithFields(logrus.Fields{
			"request_id":     c.Writer.Header().Get("X-Request-ID"),
			"correlation_id": c.Writer.Header().Get("X-Correlation-ID"),
			"method":         c.Request.Method,
			"path":           path,
			"status":         c.Writer.Status(),
			"latency_ms":     time.Since(start).Milliseconds(),
		})
		if errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String(); errorMessage != "" {
			entry.Warnf("Request failed: %s", errorMessage)
		} else if c.Writer.Status() >= 500 {
			entry.Warn("Request failed.")
		} else {
			entry.Info("Request handled.")
		}
	}
}

/**
* Helper method to print objects with json-serialization information in a more human readable way
 */
func PrettyPrintObject(objectInterface interface{}) string {
	jsonBytes, err := json.Marshal(objectInterface)
	if err != nil {
		logger.Debugf("Was not able to pretty print the object: %v", objectInterface)
		return ""
	}
	return string(jsonBytes)
}

/**
* Tokens are credentials, only the first characters are ever logged.
 */
func MaskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}

func configure(logLevel string, jsonLogging string, requestLogging string, skip string) {
	if level, err := logrus.ParseLevel(logLevel); err == nil {
		logger.SetLevel(level)
	} else if logLevel != "" {
		logger.Warnf("Unknown LOG_LEVEL %q, keep %s.", logLevel, logger.GetLevel())
	}

	if enabled, _ := strconv.ParseBool(jsonLogging); enabled {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	logRequests = true
	if requestLogging != "" {
		enabled, err := strconv.ParseBool(requestLogging)
		if err != nil {
			logger.Warnf("Invalid LOG_REQUESTS configured, will enable request logging by default. Err: %v.", err)
		} else {
			logRequests = enabled
		}
	}

	skipPaths = map[string]bool{}
	for _, path := range strings.Split(skip, ",") {
		if path = strings.TrimSpace(path); path != "" {
			skipPaths[path] = true
		}
	}
	if len(skipPaths) > 0 {
		logger.Infof("Will skip request logging for paths %s.", skip)
	}
}

func init() {
	configure(os.Getenv("LOG_LEVEL"), os.Getenv("JSON_LOGGING_ENABLED"), os.Getenv("LOG_REQUESTS"), os.Getenv("LOG_SKIP_PATHS"))
}
