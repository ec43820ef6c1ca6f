// Package gateway implements the HTTP surface of the message gateway: the
// login endpoint that mints tokens, the three proxy callbacks the realtime
// broker invokes on connect/subscribe/publish, and the health and operator
// endpoints. It uses Chi as the router.
//
// The proxy callbacks follow the broker's proxy contract: the HTTP status
// is always 200 and acceptance or rejection is conveyed in the body as
// {"result": ...} or {"error": {"code": ..., "message": ...}}.
package gateway

import (
	"encoding/json"
	"net/http"
)

// Proxy error codes. These are a wire contract with the broker and the
// frontend; the numbers are stable.
const (
	// CodeMissingUserData - connect callback carried no user identity.
	CodeMissingUserData = 4000

	// CodeNotAllowed - subscription rejected by policy. Part of the wire
	// contract for broker-side policy; no gateway handler emits it, the
	// gateway's own rejections use CodeUserNotFound or CodeInvalid.
	CodeNotAllowed = 4001

	// CodeUserNotFound - the presented user id is unknown.
	CodeUserNotFound = 4002

	// CodeInvalid - malformed channel name or message content.
	CodeInvalid = 4003

	// CodeValidationFailed - message validation failure surfaced verbatim
	// to the broker. Reserved on the wire; the gateway reports its own
	// validation rejections as CodeInvalid.
	CodeValidationFailed = 4004

	// CodeInternal - transient gateway failure; the broker may retry.
	CodeInternal = 5000
)

// proxyError is the error object of a rejected proxy callback.
type proxyError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// envelope is the standard JSON wrapper for non-proxy responses.
type envelope map[string]any

// JSON writes a JSON-encoded response with the given status code.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Result accepts a proxy callback. Always HTTP 200 per the proxy contract.
func Result(w http.ResponseWriter, result any) {
	JSON(w, http.StatusOK, envelope{"result": result})
}

// Reject rejects a proxy callback with a stable code and short message.
// Always HTTP 200; the error travels in the body.
func Reject(w http.ResponseWriter, code int, message string) {
	JSON(w, http.StatusOK, envelope{"error": proxyError{Code: code, Message: message}})
}

// BadRequest writes a 400 with the proxy-style error body. Used by the
// non-proxy endpoints (login) so the frontend sees one error shape.
func BadRequest(w http.ResponseWriter, code int, message string) {
	JSON(w, http.StatusBadRequest, envelope{"error": proxyError{Code: code, Message: message}})
}

// Internal writes a 500 without leaking the underlying error.
func Internal(w http.ResponseWriter) {
	JSON(w, http.StatusInternalServerError, envelope{"error": proxyError{
		Code:    CodeInternal,
		Message: "internal error",
	}})
}

// decodeJSON decodes the request body into dst. Returns false and writes an
// appropriate error response if decoding fails, so callers can early-return.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		BadRequest(w, CodeInvalid, "invalid request body")
		return false
	}
	return true
}

// decodeProxyJSON is decodeJSON for proxy callbacks, where even a malformed
// body must be answered with HTTP 200.
func decodeProxyJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		Reject(w, CodeInvalid, "invalid request body")
		return false
	}
	return true
}
