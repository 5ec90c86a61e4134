package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/parleychat/parley/internal/models"
)

// Store is the remote record store. Every write replaces the whole
// record; there are no partial updates.
type Store interface {
	Load(ctx context.Context) (*models.Record, error)
	Save(ctx context.Context, record *models.Record) error
}

// HTTPStore talks to a record endpoint over plain GET/PUT of the full
// JSON record.
type HTTPStore struct {
	url    string
	client *http.Client
	logger *logrus.Logger
}

// NewHTTPStore creates an HTTP-backed record store client.
func NewHTTPStore(url string, timeout time.Duration, logger *logrus.Logger) *HTTPStore {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPStore{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Load fetches the full record. A missing record comes back as the
// empty default rather than an error.
func (s *HTTPStore) Load(ctx context.Context) (*models.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("record store unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return models.NewRecord(), nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("record store returned status %d: %s", resp.StatusCode, string(body))
	}

	var record models.Record
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	if record.Messages == nil {
		record.Messages = make(map[string][]models.Message)
	}
	return &record, nil
}

// Save replaces the whole record.
func (s *HTTPStore) Save(ctx context.Context, record *models.Record) error {
	record.LastUpdate = time.Now().UTC().Format(time.RFC3339)
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("record store unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("record store returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
