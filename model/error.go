package model

import "net/http"

/**
* Error to be returned on the http layer. The zero value means "no error".
 */
type HttpError struct {
	// http status to respond with
	Status int
	// ocpi status code for the envelope, derived from Status if not set
	StatusCode StatusCode
	// message that is safe to return to the caller
	Message   string
	RootError error
}

func (err *HttpError) Error() string {
	return err.Message
}

func (err *HttpError) GetRoot() error {
	return err.RootError
}

func (err HttpError) IsEmpty() bool {
	return err.Status == 0 && err.StatusCode == 0 && err.Message == "" && err.RootError == nil
}

// OcpiStatus returns the explicit status code or the generic one for the http status.
func (err HttpError) OcpiStatus() StatusCode {
	if err.StatusCode != 0 {
		return err.StatusCode
	}
	if err.Status >= 400 && err.Status < 500 {
		return StatusClientError
	}
	return StatusServerError
}

func BadRequest(code StatusCode, message string) HttpError {
	return HttpError{Status: http.StatusBadRequest, StatusCode: code, Message: message}
}

func Unauthorized(message string) HttpError {
	return HttpError{Status: http.StatusUnauthorized, StatusCode: StatusClientError, Message: message}
}

func NotFound(message string) HttpError {
	return HttpError{Status: http.StatusNotFound, StatusCode: StatusClientError, Message: message}
}

func InternalError(message string, root error) HttpError {
	return HttpError{Status: http.StatusInternalServerError, StatusCode: StatusServerError, Message: message, RootError: root}
}

func MethodNotAllowed(message string) HttpError {
	return HttpError{Status: http.StatusMethodNotAllowed, StatusCode: StatusClientError, Message: message}
}
