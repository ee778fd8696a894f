package client

import (
	"context"
	"fmt"
	"io"
)

// MockStorage stands in for R2 when storage is not configured (local
// development). Uploads are discarded; URLs are synthesized.
type MockStorage struct {
	BaseURL string
}

func NewMockStorage(baseURL string) *MockStorage {
	if baseURL == "" {
		baseURL = "https://cdn.example.invalid"
	}
	return &MockStorage{BaseURL: baseURL}
}

func (m *MockStorage) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		return "", err
	}
	return m.GetPublicURL(key), nil
}

func (m *MockStorage) Delete(ctx context.Context, key string) error {
	return nil
}

func (m *MockStorage) GetPublicURL(key string) string {
	return fmt.Sprintf("%s/%s", m.BaseURL, key)
}
