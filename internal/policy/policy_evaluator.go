package policy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"presencegate/internal/factor"

	"go.uber.org/zap"
)

const defaultEvaluationTimeout = 10 * time.Second

// EvaluationResult is the rendered outcome of running a policy against one
// submission. It is a pure function of (policy, input, now).
type EvaluationResult struct {
	Decision        Decision        `json:"decision"`
	Rationale       string          `json:"rationale"`
	FactorResults   []factor.Result `json:"factor_results"`
	FactorsPassed   int             `json:"factors_passed"`
	FactorsRequired int             `json:"factors_required"`
	IsWorkingDay    bool            `json:"is_working_day"`
	IsWorkingHours  bool            `json:"is_working_hours"`
	IsLate          bool            `json:"is_late"`
	IsEarlyLeave    bool            `json:"is_early_leave"`
	PolicyID        string          `json:"policy_id"`
	PolicyVersion   int64           `json:"policy_version"`
	EvaluationTime  time.Duration   `json:"evaluation_time_ns"`
}

type Evaluator struct {
	registry *factor.Registry
	timeout  time.Duration
	logger   *zap.Logger
}

func NewEvaluator(registry *factor.Registry, timeout time.Duration, logger *zap.Logger) *Evaluator {
	if timeout <= 0 {
		timeout = defaultEvaluationTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{registry: registry, timeout: timeout, logger: logger}
}

// Evaluate runs the configured factors against the submission and renders a
// decision. Factor evaluations are independent and run concurrently under
// one shared deadline; an erroring evaluator counts as a failed factor.
func (e *Evaluator) Evaluate(ctx context.Context, p *Policy, in factor.Input, now time.Time) EvaluationResult {
	started := time.Now()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	// Hand the policy's factor tuning to every evaluator in the fan-out.
	in.Settings = factor.Settings{
		MaxDistanceMeters:     p.MaxDistanceMeters,
		StrictBoundary:        p.StrictBoundary,
		LivenessEnabled:       p.LivenessEnabled,
		LivenessMinConfidence: p.LivenessMinConfidence,
	}

	results := e.runFactors(ctx, p, in)

	passed := 0
	for _, r := range results {
		if r.Err != nil {
			e.logger.Warn("factor evaluation error",
				zap.String("mode", string(r.Mode)),
				zap.Error(r.Err),
			)
		}
		if r.Passed {
			passed++
		}
	}

	res := EvaluationResult{
		FactorResults:   results,
		FactorsPassed:   passed,
		FactorsRequired: p.MinFactors,
		PolicyID:        p.ID.String(),
		PolicyVersion:   p.Version,
	}
	e.applySchedule(p, now, &res)
	e.decide(p, &res)

	res.EvaluationTime = time.Since(started)
	return res
}

func (e *Evaluator) runFactors(ctx context.Context, p *Policy, in factor.Input) []factor.Result {
	type slot struct {
		idx  int
		mode factor.Mode
	}

	var slots []slot
	for _, fr := range p.Factors {
		if !fr.Required && !in.HasEvidence(fr.Mode) {
			continue
		}
		slots = append(slots, slot{idx: len(slots), mode: fr.Mode})
	}

	results := make([]factor.Result, len(slots))
	var wg sync.WaitGroup
	for _, s := range slots {
		wg.Add(1)
		go func(s slot) {
			defer wg.Done()
			ev, ok := e.registry.Get(s.mode)
			if !ok {
				results[s.idx] = factor.Result{
					Mode: s.mode,
					Err:  fmt.Errorf("no evaluator registered for mode %s", s.mode),
				}
				return
			}
			results[s.idx] = ev.Evaluate(ctx, in)
		}(s)
	}
	wg.Wait()

	return results
}

func (e *Evaluator) applySchedule(p *Policy, now time.Time, res *EvaluationResult) {
	start, err := minutesOfDay(p.WorkStart)
	if err != nil {
		e.logger.Warn("invalid work_start, using 09:00", zap.String("policy_id", res.PolicyID))
		start = 9 * 60
	}
	end, err := minutesOfDay(p.WorkEnd)
	if err != nil {
		e.logger.Warn("invalid work_end, using 17:00", zap.String("policy_id", res.PolicyID))
		end = 17 * 60
	}

	tod := now.Hour()*60 + now.Minute()
	res.IsWorkingDay = p.IsWorkingDay(now.Weekday())
	res.IsWorkingHours = res.IsWorkingDay && tod >= start && tod <= end
	res.IsLate = res.IsWorkingDay && tod > start+p.LateThresholdMinutes
	res.IsEarlyLeave = res.IsWorkingDay && tod < end-p.EarlyLeaveThresholdMinutes
}

func (e *Evaluator) decide(p *Policy, res *EvaluationResult) {
	failed := failedModes(res.FactorResults)

	switch {
	case res.FactorsPassed >= res.FactorsRequired && res.IsWorkingHours && !res.IsLate:
		res.Decision = DecisionAccepted
		res.Rationale = fmt.Sprintf("%d of %d required factors passed within working hours",
			res.FactorsPassed, res.FactorsRequired)

	case res.FactorsPassed >= res.FactorsRequired && res.IsLate:
		res.Decision = DecisionReview
		res.Rationale = fmt.Sprintf("factors passed but check-in is late (threshold %d minutes after %s)",
			p.LateThresholdMinutes, p.WorkStart)

	case res.FactorsPassed >= res.FactorsRequired:
		res.Decision = DecisionReview
		res.Rationale = "factors passed but submission is outside working hours"

	case res.FactorsPassed > 0 && p.AllowFallback:
		res.Decision = DecisionReview
		res.Rationale = fmt.Sprintf("only %d of %d required factors passed, flagged for review; failed: %s",
			res.FactorsPassed, res.FactorsRequired, failed)

	default:
		res.Decision = DecisionRejected
		res.Rationale = fmt.Sprintf("insufficient presence evidence: %d of %d required factors passed; failed: %s",
			res.FactorsPassed, res.FactorsRequired, failed)
	}
}

func failedModes(results []factor.Result) string {
	var failed []string
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, string(r.Mode))
		}
	}
	if len(failed) == 0 {
		return "none"
	}
	return strings.Join(failed, ", ")
}
