package types

// SuccessEnvelope wraps every 2xx body, including replayed ones.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public face of a coded error. Retryable tells the client
// whether resending the same request, with the same idempotency key, can
// succeed.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Details   any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
