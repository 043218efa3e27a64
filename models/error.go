package models

// ErrorMessageResponse returns the error message response struct
type ErrorMessageResponse struct {
	Response MessageError
}

// MessageError contains the inner details for the error message response
type MessageError struct {
	Message string
	Error   string
}

// OutcomeErrorResponse is returned when an operation ends in one of the known error kinds.
// Clients map Kind to their own copy and must not infer more from Message.
type OutcomeErrorResponse struct {
	Error OutcomeError `json:"error"`
}

// OutcomeError is the inner body of OutcomeErrorResponse
type OutcomeError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// HealthCheckResponse returns the health check response
type HealthCheckResponse struct {
	Alive bool `json:"alive"`
}
