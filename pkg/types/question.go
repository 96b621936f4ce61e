package types

import "time"

// Question is a single interview question carrying a precomputed, normalized
// embedding. Text and Embedding are always replaced together.
type Question struct {
	ID            string     `json:"question_id"`
	Text          string     `json:"question_text"`
	Category      Category   `json:"category"`
	Difficulty    Difficulty `json:"difficulty"`
	Topics        []string   `json:"topics"`
	JobRoles      []string   `json:"job_roles"`
	Embedding     []float32  `json:"embedding,omitempty"`
	IdealKeywords []string   `json:"ideal_keywords"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// HasTopic reports whether topic is one of the question's topics.
func (q *Question) HasTopic(topic string) bool {
	for _, t := range q.Topics {
		if t == topic {
			return true
		}
	}
	return false
}

// QuestionFilter restricts which questions take part in a retrieval.
// A question matches iff every non-empty field matches.
type QuestionFilter struct {
	Category   Category   `json:"category,omitempty"`
	Difficulty Difficulty `json:"difficulty,omitempty"`
	Topic      string     `json:"topic,omitempty"`
}

// Matches reports whether q satisfies every supplied filter field.
func (f QuestionFilter) Matches(q *Question) bool {
	if f.Category != "" && q.Category != f.Category {
		return false
	}
	if f.Difficulty != "" && q.Difficulty != f.Difficulty {
		return false
	}
	if f.Topic != "" && !q.HasTopic(f.Topic) {
		return false
	}
	return true
}

// IsEmpty reports whether no filter field is set.
func (f QuestionFilter) IsEmpty() bool {
	return f.Category == "" && f.Difficulty == "" && f.Topic == ""
}

// ScoredQuestion is a Question paired with its similarity to a profile vector.
type ScoredQuestion struct {
	Question
	SimilarityScore float64 `json:"similarity_score"`
}

// TopicCount is a topic with the number of questions (or answers) carrying it.
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// QuestionSummary counts questions by category and difficulty and lists the
// most common topics.
type QuestionSummary struct {
	TotalQuestions int                `json:"total_questions"`
	ByCategory     map[Category]int   `json:"categories"`
	ByDifficulty   map[Difficulty]int `json:"difficulties"`
	TopTopics      []TopicCount       `json:"top_topics"`
}
