package factor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const defaultRecognitionTimeout = 5 * time.Second

// RecognitionClient is the external face/liveness service.
//
//go:generate mockgen -source=face.go -destination=mock/recognition_client_mock.go -package=mock
type RecognitionClient interface {
	Recognize(ctx context.Context, userID, imageRef string) (matched bool, confidence float64, err error)
}

// FaceEvaluator delegates to the recognition service under a bounded
// timeout. A timeout fails closed to "not recognized".
type FaceEvaluator struct {
	client        RecognitionClient
	timeout       time.Duration
	minConfidence float64
}

func NewFaceEvaluator(client RecognitionClient, timeout time.Duration, minConfidence float64) *FaceEvaluator {
	if timeout <= 0 {
		timeout = defaultRecognitionTimeout
	}
	return &FaceEvaluator{client: client, timeout: timeout, minConfidence: minConfidence}
}

func (e *FaceEvaluator) Mode() Mode {
	return ModeFace
}

func (e *FaceEvaluator) Evaluate(ctx context.Context, in Input) Result {
	if in.Face == nil {
		return Result{Mode: ModeFace, Details: "no face evidence submitted"}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	matched, confidence, err := e.client.Recognize(ctx, in.UserID, in.Face.ImageRef)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{Mode: ModeFace, Details: "recognition timed out"}
		}
		return Result{Mode: ModeFace, Err: err}
	}

	if !matched {
		return Result{Mode: ModeFace, Details: "face not recognized"}
	}

	// The policy's liveness floor overrides the configured minimum when set.
	minConfidence := e.minConfidence
	if in.Settings.LivenessEnabled && in.Settings.LivenessMinConfidence > 0 {
		minConfidence = in.Settings.LivenessMinConfidence
	}
	if confidence < minConfidence {
		return Result{
			Mode:       ModeFace,
			Confidence: confidence,
			Details:    fmt.Sprintf("confidence %.2f below minimum %.2f", confidence, minConfidence),
		}
	}

	return Result{Mode: ModeFace, Passed: true, Confidence: confidence, Details: "face recognized"}
}
