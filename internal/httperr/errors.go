package httperr

const (
	InternalError     = "internal_error"
	InvalidQueryError = "invalid_query"
	InvalidParamError = "invalid_parameter"
)

// ErrorResponse is the error response body for query API errors.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
