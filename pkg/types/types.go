// Package types defines the core data structures for questionmatch: the
// question corpus, candidate profiles, interview history and cached
// retrieval results, plus the error taxonomy shared by every layer.
package types

// Category classifies what kind of interview question a Question is.
type Category string

// Difficulty grades how hard a Question is.
type Difficulty string

// Question category constants
const (
	CategoryTechnical   Category = "technical"
	CategoryBehavioral  Category = "behavioral"
	CategorySituational Category = "situational"
)

// Question difficulty constants
const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Categories lists every category in the fixed order used by diverse retrieval.
var Categories = []Category{
	CategoryTechnical,
	CategoryBehavioral,
	CategorySituational,
}

// Difficulties lists every difficulty from easiest to hardest.
var Difficulties = []Difficulty{
	DifficultyEasy,
	DifficultyMedium,
	DifficultyHard,
}

// IsValidCategory checks if the given category is one of Categories.
func IsValidCategory(c Category) bool {
	for _, valid := range Categories {
		if valid == c {
			return true
		}
	}
	return false
}

// IsValidDifficulty checks if the given difficulty is one of Difficulties.
func IsValidDifficulty(d Difficulty) bool {
	for _, valid := range Difficulties {
		if valid == d {
			return true
		}
	}
	return false
}

// ParseCategory converts free-form input into a Category.
// Empty input returns ("", nil) meaning "no filter".
func ParseCategory(s string) (Category, error) {
	if s == "" {
		return "", nil
	}
	c := Category(s)
	if !IsValidCategory(c) {
		return "", NewValidationError("category", "must be one of technical, behavioral, situational")
	}
	return c, nil
}

// ParseDifficulty converts free-form input into a Difficulty.
// Empty input returns ("", nil) meaning "no filter".
func ParseDifficulty(s string) (Difficulty, error) {
	if s == "" {
		return "", nil
	}
	d := Difficulty(s)
	if !IsValidDifficulty(d) {
		return "", NewValidationError("difficulty", "must be one of easy, medium, hard")
	}
	return d, nil
}
