package domain

import (
	"slices"
	"time"
)

// State is the orchestrator's pipeline state.
type State string

const (
	StateDecomposing  State = "decomposing"
	StateRetrieving   State = "retrieving"
	StateSynthesizing State = "synthesizing"
	StateCompleted    State = "completed"
	StateError        State = "error"
)

// Stage names a record in the execution log.
type Stage string

const (
	StageDecomposition Stage = "decomposition"
	StageRetrieval     Stage = "retrieval"
	StageSynthesis     Stage = "synthesis"
)

// RetrievalDetail describes what one sub-question retrieved.
type RetrievalDetail struct {
	SubQuestion    string   `json:"sub_question"`
	RetrievedCount int      `json:"retrieved_count"`
	Sources        []string `json:"sources"`
	Error          string   `json:"error,omitempty"`
}

// Step is one append-only record in an execution log. Only the fields of its
// stage are populated.
type Step struct {
	Stage         Stage             `json:"stage"`
	SubQuestions  []string          `json:"sub_questions,omitempty"`
	TotalContexts *int              `json:"total_contexts,omitempty"`
	Details       []RetrievalDetail `json:"details,omitempty"`
	ContextsUsed  *int              `json:"contexts_used,omitempty"`
	Confidence    *float64          `json:"confidence,omitempty"`
}

// ExecutionLog is the trace of a single AnswerQuestion call.
type ExecutionLog struct {
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	Query     string    `json:"query"`
	State     State     `json:"state"`
	Steps     []Step    `json:"steps"`
	Error     string    `json:"error,omitempty"`
}

// StepFor returns the first step recorded for stage.
func (l ExecutionLog) StepFor(stage Stage) (Step, bool) {
	for _, s := range l.Steps {
		if s.Stage == stage {
			return s, true
		}
	}
	return Step{}, false
}

// RetrievedSources flattens the sources of every retrieval detail in order.
func (l ExecutionLog) RetrievedSources() []string {
	step, ok := l.StepFor(StageRetrieval)
	if !ok {
		return nil
	}
	var out []string
	for _, d := range step.Details {
		out = append(out, d.Sources...)
	}
	return out
}

// Answer is the result of one pipeline run. When Success is false only Query,
// Error and ExecutionLog are meaningful.
type Answer struct {
	Success      bool         `json:"success"`
	Query        string       `json:"query"`
	Answer       string       `json:"answer,omitempty"`
	Confidence   float64      `json:"confidence"`
	SubQuestions []string     `json:"sub_questions,omitempty"`
	ContextsUsed int          `json:"contexts_used"`
	Error        string       `json:"error,omitempty"`
	ExecutionLog ExecutionLog `json:"execution_log"`
}

// Clone returns a deep copy of a.
func (a Answer) Clone() Answer {
	a.SubQuestions = slices.Clone(a.SubQuestions)
	steps := make([]Step, len(a.ExecutionLog.Steps))
	for i, st := range a.ExecutionLog.Steps {
		st.SubQuestions = slices.Clone(st.SubQuestions)
		st.TotalContexts = clonePtr(st.TotalContexts)
		st.ContextsUsed = clonePtr(st.ContextsUsed)
		st.Confidence = clonePtr(st.Confidence)
		if st.Details != nil {
			details := make([]RetrievalDetail, len(st.Details))
			for j, d := range st.Details {
				d.Sources = slices.Clone(d.Sources)
				details[j] = d
			}
			st.Details = details
		}
		steps[i] = st
	}
	if a.ExecutionLog.Steps != nil {
		a.ExecutionLog.Steps = steps
	}
	return a
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// LoadResult reports the outcome of loading documents.
type LoadResult struct {
	Success            bool     `json:"success"`
	DocumentsProcessed int      `json:"documents_processed"`
	ChunksCreated      int      `json:"chunks_created"`
	ChunkIDs           []string `json:"chunk_ids,omitempty"`
	Summary            string   `json:"summary,omitempty"`
	Error              string   `json:"error,omitempty"`
}

// Health status values.
const (
	StatusOperational = "operational"
	StatusDegraded    = "degraded"
)

// Health reports readiness of the external collaborators.
type Health struct {
	IndexReady      bool   `json:"index_ready"`
	GenerationReady bool   `json:"generation_ready"`
	Status          string `json:"status"`
}

// NewHealth derives the status from both readiness checks.
func NewHealth(indexReady, generationReady bool) Health {
	status := StatusDegraded
	if indexReady && generationReady {
		status = StatusOperational
	}
	return Health{IndexReady: indexReady, GenerationReady: generationReady, Status: status}
}
