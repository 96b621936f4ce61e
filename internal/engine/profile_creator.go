package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/questionmatch/internal/storage"
	"github.com/scrypster/questionmatch/pkg/types"
)

// domainKeywords maps each primary domain to the skills that indicate it.
// Order matters: ties go to the earlier domain.
var domainKeywords = []struct {
	domain   string
	keywords []string
}{
	{"Machine Learning", []string{"Machine Learning", "ML", "AI", "Deep Learning", "TensorFlow", "PyTorch"}},
	{"Web Development", []string{"React", "Angular", "Vue", "Node.js", "Django", "Flask"}},
	{"Data Science", []string{"Pandas", "NumPy", "SQL", "Data Analysis"}},
	{"Cloud/DevOps", []string{"AWS", "Azure", "GCP", "Docker", "Kubernetes"}},
	{"Backend", []string{"Java", "Spring", "Microservices", "REST API"}},
}

// ProfileCreator seeds a candidate profile from a parsed resume.
type ProfileCreator struct {
	profiles storage.ProfileStore
	embedder TextEmbedder
	timeout  time.Duration
}

// NewProfileCreator creates a profile creator. storageTimeout bounds each
// storage call; zero leaves the caller's context alone.
func NewProfileCreator(profiles storage.ProfileStore, embedder TextEmbedder, storageTimeout time.Duration) *ProfileCreator {
	return &ProfileCreator{profiles: profiles, embedder: embedder, timeout: storageTimeout}
}

// CreateFromResume embeds the resume and stores a new profile at version 1.
// An empty candidateID is replaced by a fresh UUID. Returns
// types.ErrAlreadyExists if the candidate already has a profile.
func (pc *ProfileCreator) CreateFromResume(ctx context.Context, candidateID string, resume types.ResumeRecord) (*types.CandidateProfile, error) {
	if candidateID == "" {
		candidateID = uuid.New().String()
	}
	text := ResumeText(resume)
	if text == "" {
		return nil, types.NewValidationError("resume", "has no skills, experience, projects or education")
	}
	vector, err := pc.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed resume for %s: %w", candidateID, err)
	}

	profile := &types.CandidateProfile{
		CandidateID:   candidateID,
		ProfileVector: vector,
		Metadata:      DeriveMetadata(resume),
	}
	sctx, cancel := withTimeout(ctx, pc.timeout)
	defer cancel()
	if err := pc.profiles.CreateProfile(sctx, profile); err != nil {
		return nil, err
	}
	log.Printf("engine: created profile %s (%s, %s)", candidateID,
		profile.Metadata.ExperienceLevel, profile.Metadata.PrimaryDomain)
	return profile, nil
}

// GetOrCreate returns the candidate's existing profile, creating one from the
// resume only when none exists.
func (pc *ProfileCreator) GetOrCreate(ctx context.Context, candidateID string, resume types.ResumeRecord) (*types.CandidateProfile, bool, error) {
	if candidateID != "" {
		sctx, cancel := withTimeout(ctx, pc.timeout)
		existing, err := pc.profiles.GetProfile(sctx, candidateID)
		cancel()
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, types.ErrProfileNotFound) {
			return nil, false, err
		}
	}
	p, err := pc.CreateFromResume(ctx, candidateID, resume)
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// ResumeText flattens a resume into the text that is embedded: skills, then
// each role and description, each project with its technologies, and each
// degree. Empty parts are dropped.
func ResumeText(r types.ResumeRecord) string {
	var parts []string
	add := func(s string) {
		if s != "" {
			parts = append(parts, s)
		}
	}
	add(strings.Join(r.Skills, " "))
	for _, exp := range r.Experience {
		add(exp.Role)
		add(exp.Description)
	}
	for _, p := range r.Projects {
		add(p.Name)
		add(p.Description)
		add(strings.Join(p.Technologies, " "))
	}
	for _, edu := range r.Education {
		add(edu.Degree)
	}
	return strings.Join(parts, " ")
}

// DeriveMetadata computes the descriptive half of a new profile.
func DeriveMetadata(r types.ResumeRecord) types.ProfileMetadata {
	return types.ProfileMetadata{
		Skills:          append([]string(nil), r.Skills...),
		ExperienceLevel: ExperienceLevel(len(r.Experience)),
		PrimaryDomain:   PrimaryDomain(r.Skills),
		TotalProjects:   len(r.Projects),
		TotalExperience: len(r.Experience),
	}
}

// ExperienceLevel buckets the number of experience entries.
func ExperienceLevel(entries int) string {
	switch {
	case entries <= 0:
		return types.ExperienceFresher
	case entries <= 2:
		return types.ExperienceJunior
	case entries <= 4:
		return types.ExperienceMid
	default:
		return types.ExperienceSenior
	}
}

// PrimaryDomain picks the domain whose keywords match the most skills
// exactly. No match yields types.DefaultDomain.
func PrimaryDomain(skills []string) string {
	best, bestCount := types.DefaultDomain, 0
	for _, d := range domainKeywords {
		count := 0
		for _, s := range skills {
			for _, k := range d.keywords {
				if s == k {
					count++
					break
				}
			}
		}
		if count > bestCount {
			best, bestCount = d.domain, count
		}
	}
	return best
}
