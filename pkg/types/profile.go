package types

import "time"

// Experience level buckets derived from the number of experience entries.
const (
	ExperienceFresher = "Fresher"
	ExperienceJunior  = "Junior"
	ExperienceMid     = "Mid"
	ExperienceSenior  = "Senior"
)

// DefaultDomain is the primary domain used when no skill overlaps the domain table.
const DefaultDomain = "General"

// CandidateProfile is the evolving vector representation of one candidate.
// Version starts at 1 and increases by exactly one per successful vector mutation.
type CandidateProfile struct {
	CandidateID   string          `json:"candidate_id"`
	ProfileVector []float32       `json:"profile_vector,omitempty"`
	Metadata      ProfileMetadata `json:"metadata"`
	Version       int             `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ProfileMetadata holds the descriptive, non-vector half of a profile.
type ProfileMetadata struct {
	Skills          []string `json:"skills,omitempty"`
	ExperienceLevel string   `json:"experience_level,omitempty"`
	PrimaryDomain   string   `json:"primary_domain,omitempty"`
	TotalProjects   int      `json:"total_projects"`
	TotalExperience int      `json:"total_experience"`

	// Derived from interview history by the update engine.
	Stats           *PerformanceStats `json:"stats,omitempty"`
	AvgScore        float64           `json:"avg_score,omitempty"`
	TotalInterviews int               `json:"total_interviews,omitempty"`
}

// Clone returns a deep copy so callers can mutate metadata without aliasing.
func (m ProfileMetadata) Clone() ProfileMetadata {
	out := m
	if m.Skills != nil {
		out.Skills = append([]string(nil), m.Skills...)
	}
	if m.Stats != nil {
		s := *m.Stats
		out.Stats = &s
	}
	return out
}
