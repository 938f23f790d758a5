package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"autoqa/internal/domain"
	"autoqa/internal/threshold"
	"autoqa/internal/tokenizer"
)

// QAPort is the TUI-facing subset of the question-answering service.
type QAPort interface {
	Answer(ctx context.Context, query string) (domain.Result, error)
	Threshold() float64
	Nudge(delta float64) threshold.Outcome
}

// answerMsg carries a finished answer back to Update.
type answerMsg struct {
	query  string
	result domain.Result
	err    error
}

// Model is the Bubble Tea model for the question console.
type Model struct {
	ctx        context.Context
	service    QAPort
	evolveStep float64
	input      textinput.Model
	viewport   viewport.Model
	result     *domain.Result
	summary    string
	status     string
	cursor     int
	ready      bool
	busy       bool
	lastQuery  string
}

// New creates a new TUI model. evolveStep is applied by ctrl+e.
func New(ctx context.Context, service QAPort, summary string, evolveStep float64) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Posez une question et appuyez sur Entrée"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		ctx:        ctx,
		service:    service,
		evolveStep: evolveStep,
		input:      ti,
		viewport:   vp,
		summary:    summary,
		status:     fmt.Sprintf("Ready. threshold=%.3f", service.Threshold()),
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) ask(q string) tea.Cmd {
	return func() tea.Msg {
		res, err := m.service.Answer(m.ctx, q)
		return answerMsg{query: q, result: res, err: err}
	}
}

// Update handles key, window and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header, summary, status, spacer
		vh := msg.Height - reserved
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderResult())
		return m, nil
	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.result = nil
		} else {
			res := msg.result
			m.result = &res
			m.cursor = 0
			m.lastQuery = msg.query
			m.status = fmt.Sprintf("%s  success=%t  threshold=%.3f  %s",
				res.Backend, res.Success, res.Threshold, res.ResponseTime.Round(time.Millisecond))
		}
		m.viewport.SetContent(m.renderResult())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" && !m.busy {
				m.busy = true
				m.status = fmt.Sprintf("Recherche pour %q...", q)
				m.input.SetValue("")
				return m, m.ask(q)
			}
		case "ctrl+e":
			out := m.service.Nudge(m.evolveStep)
			m.status = fmt.Sprintf("threshold %.3f -> %.3f", out.Before, out.After)
			return m, nil
		case "down":
			if n := m.citationCount(); n > 0 {
				m.cursor = (m.cursor + 1) % n
				m.viewport.SetContent(m.renderResult())
				return m, nil
			}
		case "up":
			if n := m.citationCount(); n > 0 {
				m.cursor = (m.cursor - 1 + n) % n
				m.viewport.SetContent(m.renderResult())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("AutoQA")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) citationCount() int {
	if m.result == nil {
		return 0
	}
	return len(m.result.Citations)
}

func (m Model) renderResult() string {
	if m.result == nil {
		return "Aucune réponse pour l'instant."
	}
	r := m.result
	var b strings.Builder
	fmt.Fprintf(&b, "confidence=%.3f\n\n", r.Confidence)
	b.WriteString(highlightBestParagraph(r.Text, m.lastQuery))
	if len(r.Citations) > 0 {
		b.WriteString("\n\nSources:\n")
		for i, c := range r.Citations {
			line := fmt.Sprintf("  %s (%s)", c.Title, c.URL)
			if i == m.cursor {
				line = selectedStyle.Render("> " + strings.TrimPrefix(line, "  "))
			}
			b.WriteString(line + "\n")
		}
	}
	return b.String()
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	selectedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
)

// highlightBestParagraph emphasises the non-empty line sharing the most
// terms with query. Lines are kept whole so citation links stay intact.
func highlightBestParagraph(text, query string) string {
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return text
	}
	lines := strings.Split(text, "\n")
	bestIdx, bestScore := -1, 0
	for i, l := range lines {
		if score := tokenOverlapScore(qTokens, l); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	if bestIdx >= 0 {
		lines[bestIdx] = highlightStyle.Render(lines[bestIdx])
	}
	return strings.Join(lines, "\n")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := tokenizer.Tokenize(s)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	for t := range toTokenSet(sentence) {
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
