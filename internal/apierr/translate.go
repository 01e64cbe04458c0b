package apierr

import "net/http"

const genericMessage = "internal server error"

// OpenAIBody is the OpenAI-style error envelope.
type OpenAIBody struct {
	Error OpenAIError `json:"error"`
}

// OpenAIError is the inner OpenAI error object.
type OpenAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}

// AnthropicBody is the Anthropic-style error envelope.
type AnthropicBody struct {
	Type  string         `json:"type"`
	Error AnthropicError `json:"error"`
}

// AnthropicError is the inner Anthropic error object.
type AnthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ToOpenAI renders any error as an OpenAI-style status and body. It is total:
// errors outside the taxonomy become a generic server error and the detail is
// left to the caller to log.
func ToOpenAI(err error) (int, OpenAIBody) {
	f, ok := AsFailure(err)
	if !ok {
		return http.StatusInternalServerError, OpenAIBody{Error: OpenAIError{
			Message: genericMessage,
			Type:    "server_error",
		}}
	}

	body := OpenAIBody{Error: OpenAIError{
		Message: f.Message,
		Param:   f.Param,
		Code:    f.Code,
	}}

	switch f.Kind {
	case KindValidation, KindModelNotFound:
		body.Error.Type = "invalid_request_error"
	case KindAuthentication:
		body.Error.Type = "authentication_error"
	case KindRateLimit:
		body.Error.Type = "rate_limit_error"
	case KindAPI:
		body.Error.Type = "api_error"
	default:
		body.Error.Type = "server_error"
		body.Error.Message = genericMessage
		return http.StatusInternalServerError, body
	}

	return safeStatus(f.Status), body
}

// ToAnthropic renders any error as an Anthropic-style status and body with
// the same totality guarantee as ToOpenAI.
func ToAnthropic(err error) (int, AnthropicBody) {
	f, ok := AsFailure(err)
	if !ok {
		return http.StatusInternalServerError, AnthropicBody{
			Type:  "error",
			Error: AnthropicError{Type: "api_error", Message: genericMessage},
		}
	}

	body := AnthropicBody{Type: "error", Error: AnthropicError{Message: f.Message}}

	switch f.Kind {
	case KindValidation:
		body.Error.Type = "invalid_request_error"
	case KindModelNotFound:
		body.Error.Type = "not_found_error"
	case KindAuthentication:
		body.Error.Type = "authentication_error"
	case KindRateLimit:
		body.Error.Type = "rate_limit_error"
	case KindAPI:
		body.Error.Type = "api_error"
	default:
		body.Error.Type = "api_error"
		body.Error.Message = genericMessage
		return http.StatusInternalServerError, body
	}

	return safeStatus(f.Status), body
}
