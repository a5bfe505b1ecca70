package policy

import "time"

type FactorRequirementRequest struct {
	Mode     string  `json:"mode" binding:"required"`
	Required bool    `json:"required"`
	Weight   float64 `json:"weight" binding:"min=0,max=1"`
}

type CreatePolicyRequest struct {
	Name                       string                     `json:"name" binding:"required"`
	OfficeID                   *string                    `json:"office_id"`
	Priority                   int                        `json:"priority"`
	MinFactors                 int                        `json:"min_factors" binding:"required,min=1"`
	Factors                    []FactorRequirementRequest `json:"factors" binding:"required,min=1,dive"`
	MaxDistanceMeters          *float64                   `json:"max_distance_meters"`
	StrictBoundary             bool                       `json:"strict_boundary"`
	LivenessEnabled            bool                       `json:"liveness_enabled"`
	LivenessMinConfidence      float64                    `json:"liveness_min_confidence"`
	WorkStart                  string                     `json:"work_start" binding:"required"`
	WorkEnd                    string                     `json:"work_end" binding:"required"`
	WorkingDays                []int                      `json:"working_days" binding:"required,min=1,dive,min=0,max=6"`
	LateThresholdMinutes       int                        `json:"late_threshold_minutes"`
	EarlyLeaveThresholdMinutes int                        `json:"early_leave_threshold_minutes"`
	AllowFallback              *bool                      `json:"allow_fallback"`
}

// UpdatePolicyRequest replaces the full document; the version is allocated
// server-side.
type UpdatePolicyRequest = CreatePolicyRequest

type PolicyResponse struct {
	ID                         string              `json:"id"`
	OfficeID                   *string             `json:"office_id,omitempty"`
	Name                       string              `json:"name"`
	Version                    int64               `json:"version"`
	IsActive                   bool                `json:"is_active"`
	Priority                   int                 `json:"priority"`
	MinFactors                 int                 `json:"min_factors"`
	Factors                    []FactorRequirement `json:"factors"`
	MaxDistanceMeters          *float64            `json:"max_distance_meters,omitempty"`
	StrictBoundary             bool                `json:"strict_boundary"`
	LivenessEnabled            bool                `json:"liveness_enabled"`
	LivenessMinConfidence      float64             `json:"liveness_min_confidence"`
	WorkStart                  string              `json:"work_start"`
	WorkEnd                    string              `json:"work_end"`
	WorkingDays                []int               `json:"working_days"`
	LateThresholdMinutes       int                 `json:"late_threshold_minutes"`
	EarlyLeaveThresholdMinutes int                 `json:"early_leave_threshold_minutes"`
	AllowFallback              bool                `json:"allow_fallback"`
	ETag                       string              `json:"etag,omitempty"`
	CreatedAt                  string              `json:"created_at"`
	UpdatedAt                  string              `json:"updated_at"`
}

func mapToResponse(p *Policy, etag string) PolicyResponse {
	resp := PolicyResponse{
		ID:                         p.ID.String(),
		Name:                       p.Name,
		Version:                    p.Version,
		IsActive:                   p.IsActive,
		Priority:                   p.Priority,
		MinFactors:                 p.MinFactors,
		Factors:                    p.Factors,
		MaxDistanceMeters:          p.MaxDistanceMeters,
		StrictBoundary:             p.StrictBoundary,
		LivenessEnabled:            p.LivenessEnabled,
		LivenessMinConfidence:      p.LivenessMinConfidence,
		WorkStart:                  p.WorkStart,
		WorkEnd:                    p.WorkEnd,
		LateThresholdMinutes:       p.LateThresholdMinutes,
		EarlyLeaveThresholdMinutes: p.EarlyLeaveThresholdMinutes,
		AllowFallback:              p.AllowFallback,
		ETag:                       etag,
		CreatedAt:                  p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:                  p.UpdatedAt.Format(time.RFC3339),
	}
	if p.OfficeID != nil {
		v := p.OfficeID.String()
		resp.OfficeID = &v
	}
	for _, d := range p.WorkingDays {
		resp.WorkingDays = append(resp.WorkingDays, int(d))
	}
	return resp
}
