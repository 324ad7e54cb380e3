package parties

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"

	"github.com/fiware/ocpi-core/auth"
	"github.com/fiware/ocpi-core/envelope"
)

const testKey = "admin-signing-key"

func signedToken(key string, method jwt.SigningMethod, claims jwt.RegisteredClaims) string {
	token, _ := jwt.NewWithClaims(method, claims).SignedString([]byte(key))
	return token
}

func TestAdminAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	type test struct {
		testName           string
		header             string
		expectedHttpStatus int
		expectedSubject    string
	}

	valid, _ := MintAdminToken(testKey, "operator", time.Hour)
	expired, _ := MintAdminToken(testKey, "operator", -time.Hour)
	inFuture := jwt.NewNumericDate(time.Now().Add(time.Hour))
	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "operator", ExpiresAt: inFuture}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []test{
		{"Minted tokens are accepted.", "Bearer " + valid, http.StatusOK, "operator"},
		{"Expired tokens are rejected.", "Bearer " + expired, http.StatusUnauthorized, ""},
		{"Tokens of other keys are rejected.", "Bearer " + signedToken("other-key", jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "operator", ExpiresAt: inFuture}), http.StatusUnauthorized, ""},
		{"Tokens without subject are rejected.", "Bearer " + signedToken(testKey, jwt.SigningMethodHS256, jwt.RegisteredClaims{ExpiresAt: inFuture}), http.StatusUnauthorized, ""},
		{"Tokens without expiry are rejected.", "Bearer " + signedToken(testKey, jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "operator"}), http.StatusUnauthorized, ""},
		{"Unsigned tokens are rejected.", "Bearer " + unsigned, http.StatusUnauthorized, ""},
		{"OCPI tokens are rejected.", auth.EncodeToken("token-a"), http.StatusUnauthorized, ""},
		{"Missing tokens are rejected.", "", http.StatusUnauthorized, ""},
	}

	for _, tc := range tests {
		t.Run(tc.testName, func(t *testing.T) {
			router := gin.New()
			router.Use(envelope.Middleware())
			router.GET("/admin/test", AdminAuth(testKey), func(c *gin.Context) {
				envelope.Success(c, AdminSubject(c))
			})

			request := httptest.NewRequest(http.MethodGet, "/admin/test", nil)
			if tc.header != "" {
				request.Header.Set(auth.AuthorizationHeader, tc.header)
			}
			recorder := httptest.NewRecorder()
			router.ServeHTTP(recorder, request)

			if recorder.Code != tc.expectedHttpStatus {
				t.Errorf("%s: Unexpected http status. Expected: %d, Actual: %d", tc.testName, tc.expectedHttpStatus, recorder.Code)
			}
			var response struct {
				Data string `json:"data"`
			}
			json.Unmarshal(recorder.Body.Bytes(), &response)
			if response.Data != tc.expectedSubject {
				t.Errorf("%s: Unexpected subject. Expected: %s, Actual: %s", tc.testName, tc.expectedSubject, response.Data)
			}
		})
	}
}

func TestMintAdminTokenRequiresKey(t *testing.T) {
	if _, err := MintAdminToken("", "operator", time.Hour); err == nil {
		t.Errorf("Tokens must not be minted without a key.")
	}
}
