package models

// APIResponse is the envelope for every JSON response.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	// Code is a stable machine-readable error kind, e.g. "identifier_taken".
	Code   string `json:"code,omitempty"`
	Errors any    `json:"errors,omitempty"`
}

func NewSuccessResponse(data any) APIResponse {
	return APIResponse{
		Success: true,
		Data:    data,
	}
}

func NewErrorResponse(message string) APIResponse {
	return APIResponse{
		Success: false,
		Error:   message,
	}
}

// NewCodedErrorResponse creates an error response tagged with an error kind.
func NewCodedErrorResponse(code, message string) APIResponse {
	return APIResponse{
		Success: false,
		Error:   message,
		Code:    code,
	}
}

// NewValidationErrorResponse reports per-field validation failures.
func NewValidationErrorResponse(code string, errors map[string]string) APIResponse {
	return APIResponse{
		Success: false,
		Error:   "Validation failed",
		Code:    code,
		Errors:  errors,
	}
}
