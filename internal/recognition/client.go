package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"camp-service/internal/models"
)

// Matcher turns raw recognized faces into camper candidates with confidence
// scores. The matching model itself is a black box behind this interface.
type Matcher interface {
	Match(ctx context.Context, activityScheduleID int64, faces []models.RecognizedFace) ([]models.RecognizedCamper, error)
}

type matchRequest struct {
	ActivityScheduleID int64                   `json:"activity_schedule_id"`
	Faces              []models.RecognizedFace `json:"faces"`
}

type matchResponse struct {
	Campers []models.RecognizedCamper `json:"campers"`
}

// HTTPMatcher calls the external embedding-matcher service.
type HTTPMatcher struct {
	url    string
	client *http.Client
}

func NewHTTPMatcher(url string, timeout time.Duration) *HTTPMatcher {
	return &HTTPMatcher{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (m *HTTPMatcher) Match(ctx context.Context, activityScheduleID int64, faces []models.RecognizedFace) ([]models.RecognizedCamper, error) {
	const op = "recognition.HTTPMatcher.Match"

	body, err := json.Marshal(matchRequest{
		ActivityScheduleID: activityScheduleID,
		Faces:              faces,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: matcher returned status %d", op, resp.StatusCode)
	}

	var matched matchResponse
	if err := json.NewDecoder(resp.Body).Decode(&matched); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", op, err)
	}

	return matched.Campers, nil
}
