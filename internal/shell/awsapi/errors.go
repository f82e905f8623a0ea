package awsapi

import (
	"errors"

	smithy "github.com/aws/smithy-go"
)

// ErrorCode returns the API error code of err, or "" when err did not come
// from an AWS API response.
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// IsClientFault reports whether the backend rejected the request itself,
// as opposed to failing to serve it.
func IsClientFault(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "ClientException", "InvalidParameterException", "ValidationException":
		return true
	}
	return apiErr.ErrorFault() == smithy.FaultClient && !isAccessOrThrottle(apiErr.ErrorCode())
}

func isAccessOrThrottle(code string) bool {
	switch code {
	case "AccessDeniedException", "AccessDenied", "UnrecognizedClientException",
		"ExpiredTokenException", "ThrottlingException", "Throttling", "TooManyRequestsException":
		return true
	}
	return false
}
