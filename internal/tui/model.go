package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"docqa/internal/domain"
	"docqa/internal/service"
)

// QAPort is the TUI-facing subset of the question answering service.
type QAPort interface {
	AnswerQuestion(ctx context.Context, query string, opts service.AskOptions) (*domain.Answer, error)
}

type page int

const (
	pageAnswer page = iota
	pageSources
	pageTrace
	pageCount
)

var pageTitles = [...]string{"Answer", "Sources", "Trace"}

// answerMsg carries a finished pipeline run back into the update loop.
type answerMsg struct {
	answer *domain.Answer
	err    error
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	ctx      context.Context
	service  QAPort
	opts     service.AskOptions
	input    textinput.Model
	viewport viewport.Model
	answer   *domain.Answer
	summary  string
	status   string
	page     page
	ready    bool
	busy     bool
}

// New creates a new TUI model instance.
func New(ctx context.Context, svc QAPort, opts service.AskOptions, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		ctx:      ctx,
		service:  svc,
		opts:     opts,
		input:    ti,
		viewport: vp,
		summary:  summary,
		status:   "Loaded. Tab toggles decomposition, up/down switch pages.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) ask(query string) tea.Cmd {
	ctx, svc, opts := m.ctx, m.service, m.opts
	return func() tea.Msg {
		ans, err := svc.AnswerQuestion(ctx, query, opts)
		return answerMsg{answer: ans, err: err}
	}
}

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		totalHeaderLines := 2                                    // header + summary
		totalFooterLines := 1                                    // status
		reserved := totalHeaderLines + totalFooterLines + qh + 1 // 1 spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderPage())
		return m, nil
	case answerMsg:
		m.busy = false
		switch {
		case msg.err != nil:
			m.status = "Error: " + msg.err.Error()
			m.answer = nil
		case !msg.answer.Success:
			m.status = "Pipeline failed: " + msg.answer.Error
			m.answer = msg.answer
			m.page = pageTrace
		default:
			m.status = fmt.Sprintf("Answered with confidence %.2f using %d contexts", msg.answer.Confidence, msg.answer.ContextsUsed)
			m.answer = msg.answer
			m.page = pageAnswer
		}
		m.viewport.SetContent(m.renderPage())
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
				m.status = fmt.Sprintf("Answering %q...", q)
				m.input.SetValue("")
				return m, m.ask(q)
			}
		case "tab":
			m.opts.UseDecomposition = !m.opts.UseDecomposition
			m.status = fmt.Sprintf("Decomposition %s", onOff(m.opts.UseDecomposition))
			return m, nil
		case "down":
			m.page = (m.page + 1) % pageCount
			m.viewport.SetContent(m.renderPage())
			return m, nil
		case "up":
			m.page = (m.page - 1 + pageCount) % pageCount
			m.viewport.SetContent(m.renderPage())
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the TUI layout and current page.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Document QA")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderPage() string {
	if m.answer == nil {
		return "No answer yet."
	}
	title := fmt.Sprintf("%s (%d/%d)", pageTitles[m.page], m.page+1, pageCount)
	var body string
	switch m.page {
	case pageAnswer:
		body = m.renderAnswer()
	case pageSources:
		body = m.renderSources()
	case pageTrace:
		data, err := json.MarshalIndent(m.answer.ExecutionLog, "", "  ")
		if err != nil {
			body = err.Error()
		} else {
			body = string(data)
		}
	}
	return title + "\n\n" + body
}

func (m Model) renderAnswer() string {
	a := m.answer
	if !a.Success {
		return "Error: " + a.Error
	}
	var b strings.Builder
	fmt.Fprintf(&b, "confidence=%.2f  contexts=%d\n\n", a.Confidence, a.ContextsUsed)
	b.WriteString(highlightBestSentence(a.Answer, a.Query))
	if len(a.SubQuestions) > 1 {
		b.WriteString("\n\nSub-questions:\n")
		for _, q := range a.SubQuestions {
			b.WriteString("  - " + q + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderSources() string {
	step, ok := m.answer.ExecutionLog.StepFor(domain.StageRetrieval)
	if !ok {
		return "No retrieval recorded."
	}
	var b strings.Builder
	for _, d := range step.Details {
		fmt.Fprintf(&b, "%s (%d)\n", d.SubQuestion, d.RetrievedCount)
		if d.Error != "" {
			b.WriteString("  error: " + d.Error + "\n")
		}
		for _, src := range d.Sources {
			b.WriteString("  " + src + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// highlightBestSentence emphasises the sentence sharing the most words with
// the query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := splitSentences(text)
	for i := range sentences {
		sentences[i] = strings.TrimSpace(sentences[i])
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	sentences[bestIdx] = highlightStyle.Render(sentences[bestIdx])
	return strings.Join(sentences, " ")
}

// splitSentences keeps a trailing fragment without terminal punctuation.
func splitSentences(text string) []string {
	var out []string
	end := 0
	for _, loc := range sentenceRe.FindAllStringIndex(text, -1) {
		out = append(out, text[loc[0]:loc[1]])
		end = loc[1]
	}
	if rest := strings.TrimSpace(text[end:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
