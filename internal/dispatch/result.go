package dispatch

import (
	"encoding/json"
	"net/http"
)

// ErrorKind classifies a Failure.
type ErrorKind int

const (
	// ClientInputError is a malformed or incomplete request. The network is
	// never contacted.
	ClientInputError ErrorKind = iota + 1
	// UnsupportedProviderError means no endpoint mapping exists for the
	// provider, or a required translator is not registered.
	UnsupportedProviderError
	// GatewayError is a transport failure or an unreadable upstream body.
	GatewayError
	// UpstreamError is a non-2xx upstream response.
	UpstreamError
)

func (k ErrorKind) String() string {
	switch k {
	case ClientInputError:
		return "client_input"
	case UnsupportedProviderError:
		return "unsupported_provider"
	case GatewayError:
		return "gateway"
	case UpstreamError:
		return "upstream"
	default:
		return "unknown"
	}
}

// Result is either *Success or *Failure.
type Result interface {
	OK() bool
	// Write renders the result as an HTTP response.
	Write(w http.ResponseWriter)
	sealed()
}

// Success carries the normalized upstream response.
type Success struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (*Success) OK() bool { return true }
func (*Success) sealed()  {}

func (s *Success) Write(w http.ResponseWriter) {
	// Replace rather than append so headers set by middleware appear once.
	for key, values := range s.Header {
		w.Header()[http.CanonicalHeaderKey(key)] = append([]string(nil), values...)
	}

	w.WriteHeader(s.StatusCode)
	_, _ = w.Write(s.Body)
}

// Failure is the only error shape that leaves the dispatcher.
type Failure struct {
	Status  int
	Message string
	Kind    ErrorKind
}

func (*Failure) OK() bool { return false }
func (*Failure) sealed()  {}

func (f *Failure) Error() string {
	return f.Message
}

// Envelope is the wire shape of a Failure.
type Envelope struct {
	Success bool   `json:"success"`
	Status  int    `json:"status"`
	Error   string `json:"error"`
}

func (f *Failure) Envelope() Envelope {
	return Envelope{Success: false, Status: f.Status, Error: f.Message}
}

func (f *Failure) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(f.Status)
	_ = json.NewEncoder(w).Encode(f.Envelope())
}

func succeed(body []byte) *Success {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	h.Set("Access-Control-Allow-Origin", "*")

	return &Success{StatusCode: http.StatusOK, Header: h, Body: body}
}

func fail(kind ErrorKind, status int, message string) *Failure {
	return &Failure{Status: status, Message: message, Kind: kind}
}
