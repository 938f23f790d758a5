package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DontKnow is the answer returned when the sources cannot support one.
const DontKnow = "Je ne sais pas"

// Document is a crawled page held by the document store. URL is its unique key.
type Document struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Passage is a retrieved document carrying a relevance score.
type Passage struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Citation identifies a source supporting an answer.
type Citation struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Answer is the output of the answer composer.
type Answer struct {
	Text       string     `json:"answer"`
	Citations  []Citation `json:"citations"`
	Confidence float64    `json:"confidence"`
}

// Interaction is one answered question as recorded in the interaction log.
type Interaction struct {
	ID             string        `json:"id"`
	Timestamp      time.Time     `json:"timestamp"`
	Question       string        `json:"question"`
	Answer         string        `json:"answer"`
	Sources        []string      `json:"sources"`
	Success        bool          `json:"success"`
	ResponseTime   time.Duration `json:"response_time"`
	ThresholdAfter float64       `json:"threshold"`
	Confidence     float64       `json:"confidence"`
	Backend        string        `json:"backend"`
}

// Result is what the service hands back for a question.
type Result struct {
	Answer
	Sources      []string      `json:"sources"`
	Success      bool          `json:"success"`
	Threshold    float64       `json:"threshold"`
	ResponseTime time.Duration `json:"response_time"`
	Backend      string        `json:"backend"`
}

// DocumentStore durably holds crawled documents.
// AppendDocument reports false without error when the URL or the content is already known.
type DocumentStore interface {
	AllDocuments(ctx context.Context) ([]Document, error)
	AppendDocument(ctx context.Context, doc Document) (bool, error)
	CountDocuments(ctx context.Context) (int, error)
}

// InteractionLog is the append-only audit trail of answered questions.
type InteractionLog interface {
	AppendInteraction(ctx context.Context, in Interaction) error
	// LastInteraction returns ErrNotFound when the log is empty.
	LastInteraction(ctx context.Context) (*Interaction, error)
	// ListInteractions returns at most limit entries, newest first.
	ListInteractions(ctx context.Context, limit int) ([]Interaction, error)
	CountInteractions(ctx context.Context) (int, error)
}

// ContentHash is the dedup key for document content.
func ContentHash(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}
