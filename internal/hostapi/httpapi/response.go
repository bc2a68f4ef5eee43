package httpapi

import "watcherd/internal/domain"

// Response is the standard envelope every route returns, grounded on the
// teacher's internal/api/types.Response shape: {success, data} on the
// happy path, {success, error} otherwise. Never both.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error mirrors domain.Error's stable code/message split so a host can
// branch on Code without parsing Message.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func success(data any) Response {
	return Response{Success: true, Data: data}
}

// errorResponse translates a domain error (or any error) into the envelope,
// preserving domain.Error's code/details when present and falling back to
// INTERNAL for unclassified errors.
func errorResponse(err error) Response {
	de, ok := err.(*domain.Error)
	if !ok {
		return Response{Success: false, Error: &Error{Code: string(domain.CodeInternal), Message: err.Error()}}
	}
	return Response{Success: false, Error: &Error{
		Code:    string(de.Code),
		Message: de.Message,
		Details: de.Details,
	}}
}

// httpStatus maps a domain error code onto the HTTP status a REST client
// expects, per spec §4.11's code table.
func httpStatus(err error) int {
	de, ok := err.(*domain.Error)
	if !ok {
		return 500
	}
	switch de.Code {
	case domain.CodeValidation:
		return 400
	case domain.CodeNotFound:
		return 404
	case domain.CodeDuplicateSiteIdentifier, domain.CodeDuplicateMonitorID:
		return 409
	case domain.CodeNoMonitors:
		return 422
	case domain.CodeSchemaNewer, domain.CodeIntegrityFailed:
		return 409
	case domain.CodeTimeout:
		return 504
	case domain.CodeCancelled:
		return 499
	default:
		return 500
	}
}
