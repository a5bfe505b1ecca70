package admission_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"presencegate/internal/admission"
	"presencegate/internal/attendance"
	"presencegate/internal/shared/apperror"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type fakeService struct {
	checkInFn  func(ctx context.Context, sub admission.Submission) (admission.Result, error)
	checkOutFn func(ctx context.Context, sub admission.Submission) (admission.Result, error)
}

func (f *fakeService) CheckIn(ctx context.Context, sub admission.Submission) (admission.Result, error) {
	return f.checkInFn(ctx, sub)
}
func (f *fakeService) CheckOut(ctx context.Context, sub admission.Submission) (admission.Result, error) {
	return f.checkOutFn(ctx, sub)
}

func postJSON(t *testing.T, handler gin.HandlerFunc, path, body string, keys map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	for k, v := range keys {
		c.Set(k, v)
	}
	c.Request = httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	handler(c)
	return w
}

func TestHandler_CheckIn(t *testing.T) {
	gin.SetMode(gin.TestMode)

	svc := &fakeService{
		checkInFn: func(ctx context.Context, sub admission.Submission) (admission.Result, error) {
			assert.Equal(t, "user-1", sub.UserID)
			assert.Equal(t, "device-1", sub.DeviceID)
			assert.InDelta(t, -6.2, sub.Latitude, 1e-9)
			return admission.Result{
				Decision: "ACCEPTED",
				Record:   &attendance.RecordResponse{ID: "rec-1"},
			}, nil
		},
	}
	h := admission.NewHandler(svc)

	w := postJSON(t, h.CheckIn, "/presence/check-in",
		`{"latitude": -6.2, "longitude": 106.8}`,
		map[string]string{"user_id": "user-1", "device_id": "device-1", "office_id": "office-1"},
	)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "ACCEPTED")
}

func TestHandler_CheckIn_RejectedByPolicy(t *testing.T) {
	gin.SetMode(gin.TestMode)

	svc := &fakeService{
		checkInFn: func(ctx context.Context, sub admission.Submission) (admission.Result, error) {
			return admission.Result{Decision: "REJECTED", Rationale: "insufficient presence evidence"}, nil
		},
	}
	h := admission.NewHandler(svc)

	w := postJSON(t, h.CheckIn, "/presence/check-in",
		`{"latitude": -6.2, "longitude": 106.8}`,
		map[string]string{"user_id": "user-1", "device_id": "device-1"},
	)
	// Decision delivered, no record created.
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "REJECTED")
}

func TestHandler_CheckIn_RateLimited(t *testing.T) {
	gin.SetMode(gin.TestMode)

	svc := &fakeService{
		checkInFn: func(ctx context.Context, sub admission.Submission) (admission.Result, error) {
			return admission.Result{}, apperror.New(apperror.CodeRateLimitExceeded, "too many presence submissions", http.StatusTooManyRequests)
		},
	}
	h := admission.NewHandler(svc)

	w := postJSON(t, h.CheckIn, "/presence/check-in",
		`{"latitude": -6.2, "longitude": 106.8}`,
		map[string]string{"user_id": "user-1", "device_id": "device-1"},
	)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), apperror.CodeRateLimitExceeded)
}

func TestHandler_CheckIn_MissingCoordinates(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := admission.NewHandler(&fakeService{})
	w := postJSON(t, h.CheckIn, "/presence/check-in", `{}`,
		map[string]string{"user_id": "user-1", "device_id": "device-1"},
	)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_CheckOut(t *testing.T) {
	gin.SetMode(gin.TestMode)

	svc := &fakeService{
		checkOutFn: func(ctx context.Context, sub admission.Submission) (admission.Result, error) {
			return admission.Result{
				Decision: "ACCEPTED",
				Record:   &attendance.RecordResponse{ID: "rec-1"},
			}, nil
		},
	}
	h := admission.NewHandler(svc)

	w := postJSON(t, h.CheckOut, "/presence/check-out",
		`{"latitude": -6.2, "longitude": 106.8}`,
		map[string]string{"user_id": "user-1", "device_id": "device-1"},
	)
	assert.Equal(t, http.StatusOK, w.Code)
}
