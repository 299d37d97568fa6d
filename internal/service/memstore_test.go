package service

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/stemsi/simulado-backend/internal/model"
)

type answerKey struct {
	attemptID, questionID int64
}

// memState mirrors the attempt tables closely enough to exercise the engine.
type memState struct {
	nextAttemptID int64
	names         map[string]string
	enrollments   map[string]model.Enrollment
	simulados     map[int64]model.Simulado
	links         map[int64][]int64
	questions     map[int64]model.Question
	attempts      map[int64]model.Attempt
	answers       map[answerKey]model.AttemptAnswer
}

func newMemState() *memState {
	return &memState{
		names:       map[string]string{},
		enrollments: map[string]model.Enrollment{},
		simulados:   map[int64]model.Simulado{},
		links:       map[int64][]int64{},
		questions:   map[int64]model.Question{},
		attempts:    map[int64]model.Attempt{},
		answers:     map[answerKey]model.AttemptAnswer{},
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		nextAttemptID: s.nextAttemptID,
		names:         maps.Clone(s.names),
		enrollments:   maps.Clone(s.enrollments),
		simulados:     maps.Clone(s.simulados),
		links:         make(map[int64][]int64, len(s.links)),
		questions:     maps.Clone(s.questions),
		attempts:      maps.Clone(s.attempts),
		answers:       maps.Clone(s.answers),
	}
	for k, v := range s.links {
		c.links[k] = slices.Clone(v)
	}
	return c
}

// memStore runs each transaction against a copy of the state under one mutex,
// committing only when fn succeeds.
type memStore struct {
	mu    sync.Mutex
	state *memState
	// raceOnInsert makes the next InsertAttempt lose to a competing insert.
	raceOnInsert bool
	// finishErr makes FinishAttempt fail for the listed attempts.
	finishErr map[int64]error
}

func newMemStore() *memStore {
	return &memStore{state: newMemState()}
}

func (m *memStore) InTx(ctx context.Context, fn func(tx AttemptTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{store: m, st: m.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	m.state = tx.st
	return nil
}

func (m *memStore) attempt(id int64) model.Attempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.attempts[id]
}

func (m *memStore) countAttempts(simuladoID int64, studentID string, status model.AttemptStatus) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.state.attempts {
		if a.SimuladoID == simuladoID && a.StudentID == studentID && (status == "" || a.Status == status) {
			n++
		}
	}
	return n
}

func (m *memStore) answersOf(attemptID int64) []model.AttemptAnswer {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AttemptAnswer
	for k, v := range m.state.answers {
		if k.attemptID == attemptID {
			out = append(out, v)
		}
	}
	return out
}

func (m *memStore) setKey(questionID int64, key model.Choice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.state.questions[questionID]
	q.Correta = key
	m.state.questions[questionID] = q
}

type memTx struct {
	store *memStore
	st    *memState
}

func (t *memTx) LockStudentSimulado(ctx context.Context, simuladoID int64, studentID string) error {
	return nil
}

func (t *memTx) CurrentEnrollment(ctx context.Context, studentID string) (*model.Enrollment, error) {
	e, ok := t.st.enrollments[studentID]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (t *memTx) GetSimulado(ctx context.Context, id int64) (*model.Simulado, error) {
	s, ok := t.st.simulados[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (t *memTx) ListSimuladosForTurma(ctx context.Context, ano int, turma string) ([]model.Simulado, error) {
	var out []model.Simulado
	for _, s := range t.st.simulados {
		if s.Ano == ano && s.Turma == turma {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) LinkedQuestionIDs(ctx context.Context, simuladoID int64) ([]int64, error) {
	return slices.Clone(t.st.links[simuladoID]), nil
}

func (t *memTx) GetQuestion(ctx context.Context, id int64) (*model.Question, error) {
	q, ok := t.st.questions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &q, nil
}

func (t *memTx) HasActiveBlock(ctx context.Context, simuladoID int64, studentID string) (bool, error) {
	for _, a := range t.st.attempts {
		if a.SimuladoID == simuladoID && a.StudentID == studentID && a.Blocked {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) HasSubmitted(ctx context.Context, simuladoID int64, studentID string) (bool, error) {
	for _, a := range t.st.attempts {
		if a.SimuladoID == simuladoID && a.StudentID == studentID && a.Status == model.AttemptSubmitted {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) LatestAttempt(ctx context.Context, simuladoID int64, studentID string) (*model.Attempt, error) {
	var latest *model.Attempt
	for _, a := range t.st.attempts {
		if a.SimuladoID == simuladoID && a.StudentID == studentID && (latest == nil || a.ID > latest.ID) {
			cp := a
			latest = &cp
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

func (t *memTx) LatestAttemptsByStudent(ctx context.Context, studentID string) (map[int64]*model.Attempt, error) {
	out := map[int64]*model.Attempt{}
	for _, a := range t.st.attempts {
		if a.StudentID != studentID {
			continue
		}
		if cur, ok := out[a.SimuladoID]; !ok || a.ID > cur.ID {
			cp := a
			out[a.SimuladoID] = &cp
		}
	}
	return out, nil
}

func (t *memTx) BlockedSimuladoIDs(ctx context.Context, studentID string) (map[int64]bool, error) {
	out := map[int64]bool{}
	for _, a := range t.st.attempts {
		if a.StudentID == studentID && a.Blocked {
			out[a.SimuladoID] = true
		}
	}
	return out, nil
}

func (t *memTx) InsertAttempt(ctx context.Context, a *model.Attempt) error {
	if t.store.raceOnInsert {
		t.store.raceOnInsert = false
		// A competing instance commits first, straight into committed state.
		committed := t.store.state
		committed.nextAttemptID++
		rival := *a
		rival.ID = committed.nextAttemptID
		committed.attempts[rival.ID] = rival
		return ErrConflict
	}
	for _, other := range t.st.attempts {
		if other.SimuladoID != a.SimuladoID || other.StudentID != a.StudentID {
			continue
		}
		if other.Status == model.AttemptInProgress {
			return ErrConflict
		}
	}
	t.st.nextAttemptID++
	a.ID = t.st.nextAttemptID
	t.st.attempts[a.ID] = *a
	return nil
}

func (t *memTx) GetAttemptForUpdate(ctx context.Context, id int64) (*model.Attempt, error) {
	a, ok := t.st.attempts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (t *memTx) GetAnswer(ctx context.Context, attemptID, questionID int64) (*model.AttemptAnswer, error) {
	ans, ok := t.st.answers[answerKey{attemptID, questionID}]
	if !ok {
		return nil, ErrNotFound
	}
	return &ans, nil
}

func (t *memTx) UpsertAnswer(ctx context.Context, ans *model.AttemptAnswer) error {
	t.st.answers[answerKey{ans.AttemptID, ans.QuestionID}] = *ans
	return nil
}

func (t *memTx) CountAnswers(ctx context.Context, attemptID int64) (int, int, error) {
	answered, correct := 0, 0
	for k, v := range t.st.answers {
		if k.attemptID != attemptID {
			continue
		}
		answered++
		if v.Correct {
			correct++
		}
	}
	return answered, correct, nil
}

func (t *memTx) SubjectBreakdown(ctx context.Context, attemptID int64) ([]model.SubjectScore, error) {
	a := t.st.attempts[attemptID]
	rows := map[string]*model.SubjectScore{}
	for _, qid := range a.QuestionOrder {
		name := t.st.questions[qid].Materia
		if name == "" {
			name = model.NoSubject
		}
		row, ok := rows[name]
		if !ok {
			row = &model.SubjectScore{Materia: name}
			rows[name] = row
		}
		row.Total++
		if ans, ok := t.st.answers[answerKey{attemptID, qid}]; ok {
			row.Answered++
			if ans.Correct {
				row.Correct++
			}
		}
	}
	var out []model.SubjectScore
	names := make([]string, 0, len(rows))
	for name := range rows {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out = append(out, *rows[name])
	}
	return out, nil
}

func (t *memTx) IncrementViolations(ctx context.Context, attemptID int64) (int, error) {
	a := t.st.attempts[attemptID]
	a.Violations++
	t.st.attempts[attemptID] = a
	return a.Violations, nil
}

func (t *memTx) FinishAttempt(ctx context.Context, a *model.Attempt) error {
	if err := t.store.finishErr[a.ID]; err != nil {
		return err
	}
	if a.Blocked && a.Status == model.AttemptInProgress {
		panic("blocked attempt left in progress")
	}
	t.st.attempts[a.ID] = *a
	return nil
}

func (t *memTx) SetBlock(ctx context.Context, attemptID int64, reason, note, by string, at time.Time) error {
	a := t.st.attempts[attemptID]
	a.Blocked = true
	a.BlockedReason = &reason
	a.BlockedAt = &at
	a.BlockedBy = &by
	if note != "" {
		a.BlockNote = &note
	}
	t.st.attempts[attemptID] = a
	return nil
}

func (t *memTx) ReleaseBlocks(ctx context.Context, simuladoID int64, studentID, by string, at time.Time) (int64, error) {
	var n int64
	for id, a := range t.st.attempts {
		if a.SimuladoID == simuladoID && a.StudentID == studentID && a.Blocked {
			a.Blocked = false
			a.ReleasedAt = &at
			a.ReleasedBy = &by
			t.st.attempts[id] = a
			n++
		}
	}
	return n, nil
}

func (t *memTx) ExpiredInProgress(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	var ids []int64
	for id, a := range t.st.attempts {
		if a.Status == model.AttemptInProgress && now.After(a.EndsAt) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (t *memTx) ListBlocked(ctx context.Context) ([]model.BlockedAttempt, error) {
	var out []model.BlockedAttempt
	for _, a := range t.st.attempts {
		if !a.Blocked {
			continue
		}
		sim := t.st.simulados[a.SimuladoID]
		reason := ""
		if a.BlockedReason != nil {
			reason = *a.BlockedReason
		}
		out = append(out, model.BlockedAttempt{
			AttemptID:    a.ID,
			SimuladoID:   a.SimuladoID,
			Titulo:       sim.Titulo,
			Turma:        sim.Turma,
			StudentID:    a.StudentID,
			StudentName:  t.st.names[a.StudentID],
			Reason:       reason,
			BlockedAt:    a.BlockedAt,
			BlockedBy:    a.BlockedBy,
			Note:         a.BlockNote,
			Violations:   a.Violations,
			Grade:        a.Grade,
			CorrectCount: a.CorrectCount,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptID < out[j].AttemptID })
	return out, nil
}

func (t *memTx) ListSubmittedByStudent(ctx context.Context, studentID string) ([]model.StudentResult, error) {
	var out []model.StudentResult
	for _, a := range t.st.attempts {
		if a.StudentID != studentID || a.Status != model.AttemptSubmitted {
			continue
		}
		sim := t.st.simulados[a.SimuladoID]
		out = append(out, model.StudentResult{
			AttemptID:    a.ID,
			SimuladoID:   a.SimuladoID,
			Titulo:       sim.Titulo,
			Unidade:      sim.Unidade,
			FinishedAt:   *a.FinishedAt,
			CorrectCount: *a.CorrectCount,
			Total:        a.Total(),
			Grade:        *a.Grade,
			TotalValue:   sim.ValorTotal,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FinishedAt.After(out[j].FinishedAt) })
	return out, nil
}
