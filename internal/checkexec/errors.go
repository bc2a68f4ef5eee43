package checkexec

import (
	"errors"
	"fmt"
)

var (
	errRateLimited     = errors.New("rate limited")
	errKeywordNotFound = errors.New("expected keyword not found in response body")
	errHeaderMismatch  = errors.New("response header value did not match expectation")
	errInvalidJSON     = errors.New("response body is not valid json")
	errPathNotFound    = errors.New("json path not found in response body")
	errJSONMismatch    = errors.New("json path value did not match expectation")
	errLatencyExceeded = errors.New("response time exceeded configured threshold")
	errNoRecords       = errors.New("no dns records matched expected value")
	errCertExpiring    = errors.New("certificate is expired or expiring within the configured window")
)

func errMissingField(name string) error {
	return fmt.Errorf("missing required field %q", name)
}

func errStatusf(code int) error {
	return fmt.Errorf("unexpected status code %d", code)
}
