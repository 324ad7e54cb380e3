package http

import (
	"net/http"
	"time"
)

// Interface to the http-client
type HttpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

/**
* Client used for all calls to partner platforms. Requests are additionally bounded by their context.
 */
func NewHttpClient(timeout time.Duration) HttpClient {
	return &http.Client{Timeout: timeout}
}
