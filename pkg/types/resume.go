package types

// ResumeRecord is the structured resume produced by the (external) parser.
type ResumeRecord struct {
	Skills     []string          `json:"skills"`
	Experience []ExperienceEntry `json:"experience"`
	Projects   []ProjectEntry    `json:"projects"`
	Education  []EducationEntry  `json:"education"`
	RawText    string            `json:"raw_text,omitempty"`
}

// ExperienceEntry is one job on a resume.
type ExperienceEntry struct {
	Role        string `json:"role"`
	Description string `json:"description"`
}

// ProjectEntry is one project on a resume.
type ProjectEntry struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Technologies []string `json:"technologies,omitempty"`
}

// EducationEntry is one degree on a resume.
type EducationEntry struct {
	Degree string `json:"degree"`
}
