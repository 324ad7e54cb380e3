package parties

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"

	"github.com/fiware/ocpi-core/auth"
	"github.com/fiware/ocpi-core/envelope"
	"github.com/fiware/ocpi-core/model"
)

const bearerPrefix = "Bearer "
const adminSubjectKey = "ocpi-admin-subject"

/**
* AdminAuth accepts HS256 tokens signed with the admin key. Tokens need a subject and an expiry.
 */
func AdminAuth(signingKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject, err := verifyAdminToken(signingKey, c.GetHeader(auth.AuthorizationHeader))
		if err != nil {
			logger.WithField("request_id", envelope.RequestID(c)).Infof("Rejected admin request to %s. Err: %v", c.Request.URL.Path, err)
			envelope.Error(c, model.Unauthorized("Invalid or missing admin token."))
			return
		}
		c.Set(adminSubjectKey, subject)
		c.Next()
	}
}

func verifyAdminToken(signingKey string, header string) (subject string, err error) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return subject, fmt.Errorf("no bearer token")
	}
	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix)), claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("invalid_token_method")
		}
		return []byte(signingKey), nil
	})
	if err != nil {
		return subject, err
	}
	if claims.Subject == "" {
		return subject, fmt.Errorf("token has no subject")
	}
	if claims.ExpiresAt == nil {
		return subject, fmt.Errorf("token has no expiry")
	}
	return claims.Subject, nil
}

// MintAdminToken creates a token for the admin api, valid for the given duration.
func MintAdminToken(signingKey string, subject string, validity time.Duration) (string, error) {
	if signingKey == "" {
		return "", fmt.Errorf("no signing key configured")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingKey))
}

// AdminSubject returns the subject of the verified admin token.
func AdminSubject(c *gin.Context) string {
	return c.GetString(adminSubjectKey)
}
