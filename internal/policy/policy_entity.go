package policy

import (
	"fmt"
	"time"

	"presencegate/internal/factor"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Decision is the terminal output of policy evaluation and of the admission
// pipeline as a whole.
type Decision string

const (
	DecisionAccepted Decision = "ACCEPTED"
	DecisionReview   Decision = "REVIEW"
	DecisionRejected Decision = "REJECTED"
)

// FactorRequirement is one configured (mode, required, weight) entry.
type FactorRequirement struct {
	Mode     factor.Mode `json:"mode"`
	Required bool        `json:"required"`
	Weight   float64     `json:"weight"`
}

// Policy is the versioned admission configuration. OfficeID nil means the
// policy is global; office-specific policies win over global ones at equal
// priority. Version strictly increases on every mutation.
type Policy struct {
	ID                         uuid.UUID           `gorm:"column:id;type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	OfficeID                   *uuid.UUID          `gorm:"column:office_id;type:uuid;index" json:"office_id"`
	Name                       string              `gorm:"column:name;type:varchar(100);not null" json:"name"`
	Version                    int64               `gorm:"column:version;not null;default:1" json:"version"`
	IsActive                   bool                `gorm:"column:is_active;not null;default:true" json:"is_active"`
	Priority                   int                 `gorm:"column:priority;not null;default:0" json:"priority"`
	MinFactors                 int                 `gorm:"column:min_factors;not null;default:1" json:"min_factors"`
	Factors                    []FactorRequirement `gorm:"column:factors;type:jsonb;serializer:json" json:"factors"`
	MaxDistanceMeters          *float64            `gorm:"column:max_distance_meters" json:"max_distance_meters"`
	StrictBoundary             bool                `gorm:"column:strict_boundary;not null;default:false" json:"strict_boundary"`
	LivenessEnabled            bool                `gorm:"column:liveness_enabled;not null;default:false" json:"liveness_enabled"`
	LivenessMinConfidence      float64             `gorm:"column:liveness_min_confidence;not null;default:0.85" json:"liveness_min_confidence"`
	WorkStart                  string              `gorm:"column:work_start;type:varchar(5);not null;default:'09:00'" json:"work_start"`
	WorkEnd                    string              `gorm:"column:work_end;type:varchar(5);not null;default:'17:00'" json:"work_end"`
	WorkingDays                []time.Weekday      `gorm:"column:working_days;type:jsonb;serializer:json" json:"working_days"`
	LateThresholdMinutes       int                 `gorm:"column:late_threshold_minutes;not null;default:15" json:"late_threshold_minutes"`
	EarlyLeaveThresholdMinutes int                 `gorm:"column:early_leave_threshold_minutes;not null;default:30" json:"early_leave_threshold_minutes"`
	AllowFallback              bool                `gorm:"column:allow_fallback;not null;default:true" json:"allow_fallback"`
	CreatedAt                  time.Time           `gorm:"column:created_at" json:"created_at"`
	UpdatedAt                  time.Time           `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt                  gorm.DeletedAt      `gorm:"column:deleted_at;index" json:"-"`
}

func (Policy) TableName() string {
	return "presence_policies"
}

// IsWorkingDay reports weekday membership in the policy's working-day set.
func (p *Policy) IsWorkingDay(day time.Weekday) bool {
	for _, d := range p.WorkingDays {
		if d == day {
			return true
		}
	}
	return false
}

// IsEarlyLeaveAt reports whether leaving at t is earlier than work end
// minus the early-leave threshold, on a working day.
func (p *Policy) IsEarlyLeaveAt(t time.Time) bool {
	end, err := minutesOfDay(p.WorkEnd)
	if err != nil {
		end = 17 * 60
	}
	tod := t.Hour()*60 + t.Minute()
	return p.IsWorkingDay(t.Weekday()) && tod < end-p.EarlyLeaveThresholdMinutes
}

// minutesOfDay parses "HH:MM" into minutes since midnight.
func minutesOfDay(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return h*60 + m, nil
}
