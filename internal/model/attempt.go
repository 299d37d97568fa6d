package model

import (
	"slices"
	"time"
)

// AttemptStatus is the stored lifecycle status of an attempt.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptExpired    AttemptStatus = "expired"
)

// FinishReason records why an attempt left in_progress. The wire values are
// the ones the portal front-end already understands.
type FinishReason string

const (
	FinishSubmit     FinishReason = "envio"
	FinishTimeout    FinishReason = "tempo"
	FinishViolations FinishReason = "avisos"
	FinishStaffBlock FinishReason = "bloqueio"
)

// Blocks reports whether finishing for this reason also places a block.
func (r FinishReason) Blocks() bool {
	return r != FinishSubmit
}

// Attempt is one student's run through a simulado.
type Attempt struct {
	ID            int64         `json:"id"`
	SimuladoID    int64         `json:"simulado_id"`
	StudentID     string        `json:"student_id"`
	StartedAt     time.Time     `json:"started_at"`
	EndsAt        time.Time     `json:"ends_at"`
	FinishedAt    *time.Time    `json:"finished_at,omitempty"`
	Status        AttemptStatus `json:"status"`
	FinishReason  *FinishReason `json:"finish_reason,omitempty"`
	Violations    int           `json:"violations"`
	QuestionOrder []int64       `json:"-"`
	CorrectCount  *int          `json:"correct_count,omitempty"`
	Grade         *float64      `json:"grade,omitempty"`
	Blocked       bool          `json:"blocked"`
	BlockedReason *string       `json:"blocked_reason,omitempty"`
	BlockedAt     *time.Time    `json:"blocked_at,omitempty"`
	BlockedBy     *string       `json:"blocked_by,omitempty"`
	BlockNote     *string       `json:"block_note,omitempty"`
	ReleasedAt    *time.Time    `json:"released_at,omitempty"`
	ReleasedBy    *string       `json:"released_by,omitempty"`
}

// StateKind is the single tag that covers both the status and block dimensions.
type StateKind string

const (
	StateActive    StateKind = "active"
	StateSubmitted StateKind = "submitted"
	StateExpired   StateKind = "expired"
	StateBlocked   StateKind = "blocked"
)

// AttemptState is the tagged view of an attempt:
// Active | Submitted | Expired{reason} | Blocked{reason, by}.
type AttemptState struct {
	Kind   StateKind    `json:"kind"`
	Reason FinishReason `json:"reason,omitempty"`
	By     string       `json:"by,omitempty"`
	At     *time.Time   `json:"at,omitempty"`
}

// State folds status and block flags into one tag. Persistence constraints
// guarantee a blocked attempt is never in progress.
func (a *Attempt) State() AttemptState {
	var reason FinishReason
	if a.FinishReason != nil {
		reason = *a.FinishReason
	}
	switch {
	case a.Blocked:
		st := AttemptState{Kind: StateBlocked, Reason: reason, At: a.BlockedAt}
		if a.BlockedReason != nil {
			st.Reason = FinishReason(*a.BlockedReason)
		}
		if a.BlockedBy != nil {
			st.By = *a.BlockedBy
		}
		return st
	case a.Status == AttemptSubmitted:
		return AttemptState{Kind: StateSubmitted, Reason: reason, At: a.FinishedAt}
	case a.Status == AttemptExpired:
		return AttemptState{Kind: StateExpired, Reason: reason, At: a.FinishedAt}
	default:
		return AttemptState{Kind: StateActive}
	}
}

// IsTerminal reports whether the attempt is submitted or expired.
func (a *Attempt) IsTerminal() bool {
	return a.Status != AttemptInProgress
}

// DeadlinePassed compares server time against the frozen deadline.
func (a *Attempt) DeadlinePassed(now time.Time) bool {
	return now.After(a.EndsAt)
}

// EffectiveStatus is the status a reader should trust without going through
// the lifecycle engine: an in-progress attempt past its deadline is expired.
func (a *Attempt) EffectiveStatus(now time.Time) AttemptStatus {
	if a.Status == AttemptInProgress && a.DeadlinePassed(now) {
		return AttemptExpired
	}
	return a.Status
}

// Total is the number of questions frozen into the attempt.
func (a *Attempt) Total() int {
	return len(a.QuestionOrder)
}

// QuestionAt returns the question id at a 1-based position.
func (a *Attempt) QuestionAt(position int) (int64, bool) {
	if position < 1 || position > len(a.QuestionOrder) {
		return 0, false
	}
	return a.QuestionOrder[position-1], true
}

// PositionOf returns the 1-based position of a question in the frozen order.
func (a *Attempt) PositionOf(questionID int64) (int, bool) {
	i := slices.Index(a.QuestionOrder, questionID)
	if i < 0 {
		return 0, false
	}
	return i + 1, true
}

// RemainingSeconds is for countdown display only; it never drives a transition.
func (a *Attempt) RemainingSeconds(now time.Time) int64 {
	if a.IsTerminal() || a.DeadlinePassed(now) {
		return 0
	}
	return int64(a.EndsAt.Sub(now).Seconds())
}

// AttemptAnswer is the upsertable record for one (attempt, question) pair.
type AttemptAnswer struct {
	AttemptID  int64     `json:"attempt_id"`
	QuestionID int64     `json:"question_id"`
	Position   int       `json:"position"`
	Choice     Choice    `json:"choice"`
	Correct    bool      `json:"-"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// AttemptResult is the finalized outcome handed back to clients.
type AttemptResult struct {
	AttemptID    int64         `json:"tentativa_id"`
	Finalized    bool          `json:"finalizado"`
	Status       AttemptStatus `json:"status"`
	Reason       FinishReason  `json:"motivo"`
	CorrectCount int           `json:"acertos"`
	Total        int           `json:"total"`
	Grade        float64       `json:"nota"`
	TotalValue   float64       `json:"valor_total"`
	Blocked      bool          `json:"bloqueado"`
	FinishedAt   *time.Time    `json:"finalizado_em,omitempty"`
}

// ViolationKind enumerates the proctoring signals the portal reports.
type ViolationKind string

const (
	ViolationTabSwitch      ViolationKind = "tab_switch"
	ViolationBlur           ViolationKind = "blur"
	ViolationFullscreenExit ViolationKind = "fullscreen_exit"
	ViolationPageHide       ViolationKind = "page_hide"
)

// AnswerRequest is the payload for recording an answer.
type AnswerRequest struct {
	QuestionID int64  `json:"questao_id" binding:"required,gt=0"`
	Choice     Choice `json:"marcada" binding:"required,oneof=A B C D E"`
}

// BlockRequest is the optional payload of a staff block.
type BlockRequest struct {
	Note string `json:"observacao" binding:"omitempty,max=300"`
}

// ViolationRequest is the payload for reporting a proctoring signal.
type ViolationRequest struct {
	Kind   ViolationKind `json:"tipo" binding:"required,oneof=tab_switch blur fullscreen_exit page_hide"`
	Detail string        `json:"detalhe" binding:"omitempty,max=500"`
}

