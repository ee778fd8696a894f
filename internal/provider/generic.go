package provider

import (
	"encoding/json"
	"fmt"
)

// genericPayload is the shape in-house providers post back.
type genericPayload struct {
	ExternalJobID string   `json:"externalJobId"`
	Status        string   `json:"status"` // running | failed | succeeded
	ProgressPct   *int     `json:"progressPct,omitempty"`
	EtaSec        *int     `json:"etaSec,omitempty"`
	ErrorCode     string   `json:"errorCode,omitempty"`
	Model         string   `json:"model,omitempty"`
	QualityFlags  []string `json:"qualityFlags,omitempty"`
	Artifacts     []struct {
		Name   string `json:"name,omitempty"`
		URL    string `json:"url"`
		Format string `json:"format,omitempty"`
	} `json:"artifacts,omitempty"`
}

// GenericNormalizer handles the generic callback vocabulary used by the
// custom inference service.
type GenericNormalizer struct{}

func (n *GenericNormalizer) Normalize(body []byte) (*Signal, error) {
	var p genericPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, err
	}

	sig := &Signal{
		ExternalJobID: p.ExternalJobID,
		ProgressPct:   p.ProgressPct,
		EtaSec:        p.EtaSec,
		ErrorCode:     p.ErrorCode,
		Model:         p.Model,
		QualityFlags:  p.QualityFlags,
	}

	switch p.Status {
	case "running":
		sig.Kind = SignalProgress
	case "failed":
		sig.Kind = SignalFailure
	case "succeeded":
		sig.Kind = SignalSuccess
	default:
		return nil, fmt.Errorf("unknown status %q", p.Status)
	}

	for _, a := range p.Artifacts {
		sig.Outputs = append(sig.Outputs, Output{
			Name:   a.Name,
			URL:    a.URL,
			Format: a.Format,
		})
	}
	return sig, nil
}
