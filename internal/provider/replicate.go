package provider

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
)

// replicatePayload is Replicate's native prediction webhook shape.
type replicatePayload struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
	Model  string          `json:"model,omitempty"`
}

// ReplicateNormalizer maps Replicate's prediction vocabulary onto the
// canonical signal set. "starting"/"processing" are progress, "canceled"
// counts as a failure.
type ReplicateNormalizer struct{}

func (n *ReplicateNormalizer) Normalize(body []byte) (*Signal, error) {
	var p replicatePayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, err
	}

	sig := &Signal{
		ExternalJobID: p.ID,
		Model:         p.Model,
	}

	switch p.Status {
	case "starting", "processing":
		sig.Kind = SignalProgress
	case "failed", "canceled":
		sig.Kind = SignalFailure
		sig.ErrorCode = p.Error
		if p.Status == "canceled" && sig.ErrorCode == "" {
			sig.ErrorCode = "provider_canceled"
		}
	case "succeeded":
		sig.Kind = SignalSuccess
		sig.Outputs = extractReplicateOutputs(p.Output)
	default:
		return nil, fmt.Errorf("unknown status %q", p.Status)
	}

	return sig, nil
}

// extractReplicateOutputs interprets the prediction output, which may be a
// single URL string, a list of URL strings, or an object of name → URL
// (stem models report the latter). An uninterpretable output yields zero
// outputs rather than an error: the job still completes, with no artifacts.
func extractReplicateOutputs(raw json.RawMessage) []Output {
	if len(raw) == 0 {
		return nil
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single == "" {
			return nil
		}
		return []Output{{URL: single, Format: extFromURL(single)}}
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		outputs := make([]Output, 0, len(list))
		for _, u := range list {
			if u == "" {
				continue
			}
			outputs = append(outputs, Output{URL: u, Format: extFromURL(u)})
		}
		return outputs
	}

	var named map[string]string
	if err := json.Unmarshal(raw, &named); err == nil {
		names := make([]string, 0, len(named))
		for name := range named {
			names = append(names, name)
		}
		sort.Strings(names) // deterministic order for key derivation
		outputs := make([]Output, 0, len(names))
		for _, name := range names {
			u := named[name]
			if u == "" {
				continue
			}
			outputs = append(outputs, Output{Name: name, URL: u, Format: extFromURL(u)})
		}
		return outputs
	}

	return nil
}

// extFromURL sniffs a lowercase extension from the URL path, without the dot.
func extFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	ext := path.Ext(u.Path)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
