package factor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPRecognitionClient talks to the external face recognition service.
// The per-call deadline is enforced by FaceEvaluator via the context.
type HTTPRecognitionClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPRecognitionClient(baseURL string, timeout time.Duration) *HTTPRecognitionClient {
	if timeout <= 0 {
		timeout = defaultRecognitionTimeout
	}
	return &HTTPRecognitionClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPRecognitionClient) Recognize(ctx context.Context, userID, imageRef string) (bool, float64, error) {
	body, err := json.Marshal(map[string]string{
		"user_id":   userID,
		"image_ref": imageRef,
	})
	if err != nil {
		return false, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/recognize", bytes.NewReader(body))
	if err != nil {
		return false, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, 0, fmt.Errorf("recognition service returned %d", resp.StatusCode)
	}

	var out struct {
		Matched    bool    `json:"matched"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, 0, err
	}
	return out.Matched, out.Confidence, nil
}
