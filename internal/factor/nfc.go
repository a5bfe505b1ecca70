package factor

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// NFCEvaluator checks that the tapped tag is an active tag of the office.
type NFCEvaluator struct {
	store Store
}

func NewNFCEvaluator(store Store) *NFCEvaluator {
	return &NFCEvaluator{store: store}
}

func (e *NFCEvaluator) Mode() Mode {
	return ModeNFC
}

func (e *NFCEvaluator) Evaluate(ctx context.Context, in Input) Result {
	if in.NFC == nil {
		return Result{Mode: ModeNFC, Details: "no nfc evidence submitted"}
	}

	_, err := e.store.FindNFCTag(ctx, in.OfficeID, in.NFC.TagID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Result{Mode: ModeNFC, Details: fmt.Sprintf("tag %q is not registered for this office", in.NFC.TagID)}
		}
		return Result{Mode: ModeNFC, Err: err}
	}

	return Result{Mode: ModeNFC, Passed: true, Confidence: 1.0, Details: "tag matched"}
}
