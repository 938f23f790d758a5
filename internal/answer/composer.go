// Package answer turns retrieved passages into a cited answer.
package answer

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"autoqa/internal/domain"
	"autoqa/internal/logger"
)

// Defaults for Composer.
const (
	DefaultConfidenceThreshold = 0.25
	DefaultTimeout             = 30 * time.Second
	synthesisPassages          = 3
	snippetRunes               = 200
)

// SystemPrompt constrains the generator to the supplied sources.
const SystemPrompt = "Tu es un assistant qui répond uniquement sur la base des sources fournies."

var citationPattern = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^)]+)\)`)

// Generator produces free text from a system message and a user prompt.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Composer builds answers from passages. Generator is optional.
type Composer struct {
	Generator           Generator
	ConfidenceThreshold float64
	Timeout             time.Duration
}

// NewComposer creates a composer with the given confidence gate.
func NewComposer(gen Generator, confidenceThreshold float64, timeout time.Duration) *Composer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Composer{Generator: gen, ConfidenceThreshold: confidenceThreshold, Timeout: timeout}
}

// Compose answers query from passages.
//
// Without passages the answer is the sentinel with no citations. When the mean
// passage score is below the confidence gate the answer is the sentinel and the
// passages are listed as citations.
func (c *Composer) Compose(ctx context.Context, query string, passages []domain.Passage) domain.Answer {
	if len(passages) == 0 {
		return domain.Answer{Text: domain.DontKnow, Citations: []domain.Citation{}, Confidence: 0}
	}

	mean := meanScore(passages)
	confidence := round3(mean)
	if mean < c.ConfidenceThreshold {
		return domain.Answer{Text: domain.DontKnow, Citations: passageCitations(passages), Confidence: confidence}
	}

	text := c.generate(ctx, query, passages)
	if text == "" {
		text = Synthesize(passages)
	}

	citations := ExtractCitations(text)
	if len(citations) == 0 {
		citations = passageCitations(passages)
	}
	return domain.Answer{Text: text, Citations: citations, Confidence: confidence}
}

func (c *Composer) generate(ctx context.Context, query string, passages []domain.Passage) string {
	if c.Generator == nil {
		return ""
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := c.Generator.Generate(ctx, SystemPrompt, BuildPrompt(query, passages))
	if err != nil {
		logger.Warn("generation failed, using extractive answer: %v", err)
		return ""
	}
	return strings.TrimSpace(out)
}

// Confidence is the mean passage score clamped to [0, 1] and rounded to 3 decimals.
func Confidence(passages []domain.Passage) float64 {
	return round3(meanScore(passages))
}

func meanScore(passages []domain.Passage) float64 {
	if len(passages) == 0 {
		return 0
	}
	var sum float64
	for _, p := range passages {
		sum += p.Score
	}
	return math.Max(0, math.Min(1, sum/float64(len(passages))))
}

// BuildPrompt renders the generation prompt for query and passages.
func BuildPrompt(query string, passages []domain.Passage) string {
	var sources strings.Builder
	for i, p := range passages {
		if i > 0 {
			sources.WriteByte('\n')
		}
		fmt.Fprintf(&sources, "- Titre: %s\n  URL: %s\n  Extrait: %s", p.Title, p.URL, p.Content)
	}
	block := sources.String()
	if block == "" {
		block = "(aucune)"
	}
	return fmt.Sprintf("Question: %s\n\n"+
		"Voici des passages de sources candidates:\n%s\n\n"+
		"Consignes: Réponds en citant [titre](url) après chaque paragraphe utilisé. "+
		"Si les sources ne suffisent pas, dis '%s' et liste juste les sources.\n"+
		"Réponds en français, de manière concise et factuelle.",
		query, block, domain.DontKnow)
}

// Synthesize builds an extractive answer from the first passages, one cited
// paragraph each.
func Synthesize(passages []domain.Passage) string {
	if len(passages) > synthesisPassages {
		passages = passages[:synthesisPassages]
	}
	paras := make([]string, 0, len(passages))
	for _, p := range passages {
		paras = append(paras, fmt.Sprintf("%s. [%s](%s)", snippet(p.Content), p.Title, p.URL))
	}
	if len(paras) == 0 {
		return domain.DontKnow
	}
	return strings.Join(paras, "\n\n")
}

// snippet returns the first sentence of content. Without a sentence boundary,
// or when the first sentence is empty, it returns the first snippetRunes runes.
func snippet(content string) string {
	first, _, found := strings.Cut(content, ". ")
	s := strings.TrimSpace(first)
	if !found || s == "" {
		r := []rune(strings.TrimSpace(content))
		if len(r) > snippetRunes {
			r = r[:snippetRunes]
		}
		s = strings.TrimSpace(string(r))
	}
	return strings.TrimSuffix(s, ".")
}

// ExtractCitations returns the distinct [title](url) links in text, in order.
func ExtractCitations(text string) []domain.Citation {
	var out []domain.Citation
	seen := make(map[domain.Citation]struct{})
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		c := domain.Citation{Title: strings.TrimSpace(m[1]), URL: strings.TrimSpace(m[2])}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func passageCitations(passages []domain.Passage) []domain.Citation {
	out := make([]domain.Citation, 0, len(passages))
	seen := make(map[domain.Citation]struct{}, len(passages))
	for _, p := range passages {
		c := domain.Citation{Title: p.Title, URL: p.URL}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
