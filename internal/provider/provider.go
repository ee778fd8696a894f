// Package provider normalizes provider-specific webhook payloads into one
// canonical signal vocabulary. The reconciliation state machine only ever
// sees a Signal; adding a provider means adding one Normalizer here.
package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Signal kinds
type SignalKind string

const (
	SignalProgress SignalKind = "progress"
	SignalFailure  SignalKind = "failure"
	SignalSuccess  SignalKind = "success"
)

// Output is one provider-declared output file reference.
type Output struct {
	Name   string // filename hint, may be empty
	URL    string
	Format string // declared extension, may be empty
}

// Signal is the canonical form of an inbound provider callback.
type Signal struct {
	ExternalJobID string
	Kind          SignalKind
	ProgressPct   *int // explicit provider-supplied value, nil if absent
	EtaSec        *int
	ErrorCode     string
	Model         string // selected model as reported by the provider
	QualityFlags  []string
	Outputs       []Output
}

// FallbackModelPrefix marks a provider-selected fallback model; a success
// carrying it is completed as degraded.
const FallbackModelPrefix = "fallback-"

// Degraded reports whether a successful signal should be flagged as a
// fallback/passthrough completion.
func (s *Signal) Degraded() bool {
	if strings.HasPrefix(s.Model, FallbackModelPrefix) {
		return true
	}
	for _, f := range s.QualityFlags {
		if f == "fallback" || f == "fallback_passthrough_output" {
			return true
		}
	}
	return false
}

// Normalizer translates one provider's payload shape into a Signal.
type Normalizer interface {
	Normalize(body []byte) (*Signal, error)
}

var (
	ErrUnknownProvider  = errors.New("unknown provider")
	ErrBadSignature     = errors.New("invalid webhook signature")
	ErrMalformedPayload = errors.New("malformed webhook payload")
)

// Registry maps provider names to their webhook secret and normalizer.
type Registry struct {
	secrets     map[string]string
	normalizers map[string]Normalizer
}

// NewRegistry builds the default registry from per-provider secrets.
func NewRegistry(secrets map[string]string) *Registry {
	return &Registry{
		secrets: secrets,
		normalizers: map[string]Normalizer{
			"replicate": &ReplicateNormalizer{},
			"custom":    &GenericNormalizer{},
		},
	}
}

// Verify checks the HMAC-SHA256 hex signature of a raw webhook body against
// the provider's shared secret. Runs before any payload parsing.
func (r *Registry) Verify(providerName string, body []byte, signature string) error {
	secret, ok := r.secrets[providerName]
	if !ok || secret == "" {
		return ErrUnknownProvider
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	// some providers prefix the hex digest
	signature = strings.TrimPrefix(signature, "sha256=")

	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return ErrBadSignature
	}
	return nil
}

// Normalize parses a verified raw body with the provider's normalizer.
func (r *Registry) Normalize(providerName string, body []byte) (*Signal, error) {
	n, ok := r.normalizers[providerName]
	if !ok {
		return nil, ErrUnknownProvider
	}
	sig, err := n.Normalize(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if sig.ExternalJobID == "" {
		return nil, fmt.Errorf("%w: missing external job id", ErrMalformedPayload)
	}
	return sig, nil
}
