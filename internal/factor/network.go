package factor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// NetworkEvaluator matches the reported SSID/BSSID against the office
// network allowlist.
type NetworkEvaluator struct {
	store Store
}

func NewNetworkEvaluator(store Store) *NetworkEvaluator {
	return &NetworkEvaluator{store: store}
}

func (e *NetworkEvaluator) Mode() Mode {
	return ModeNetwork
}

func (e *NetworkEvaluator) Evaluate(ctx context.Context, in Input) Result {
	if in.Network == nil {
		return Result{Mode: ModeNetwork, Details: "no network evidence submitted"}
	}

	row, err := e.store.FindNetwork(ctx, in.OfficeID, in.Network.SSID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Result{Mode: ModeNetwork, Details: fmt.Sprintf("ssid %q is not an office network", in.Network.SSID)}
		}
		return Result{Mode: ModeNetwork, Err: err}
	}

	// A BSSID match pins the claim to a physical access point; SSID alone
	// is weaker since names are trivially cloned.
	if row.BSSID != nil && in.Network.BSSID != "" {
		if !strings.EqualFold(*row.BSSID, in.Network.BSSID) {
			return Result{Mode: ModeNetwork, Details: "bssid does not match registered access point"}
		}
		return Result{Mode: ModeNetwork, Passed: true, Confidence: 1.0, Details: "ssid and bssid matched"}
	}

	return Result{Mode: ModeNetwork, Passed: true, Confidence: 0.8, Details: "ssid matched"}
}
