package exam

import (
	"sync"

	"github.com/acetosyn/Emis-student-exam2025/internal/model"
)

// Hooks is the explicit observer list for one attempt. UI decorators (the
// answer flash, the navigation grid, the websocket stream) register
// callbacks at defined extension points instead of wrapping runtime
// functions. Registration is safe at any time; every On* method returns a
// cancel func that removes the listener again.
type Hooks struct {
	mu              sync.Mutex
	nextID          int
	questionChanged map[int]func(index int, q model.Question)
	answerSelected  map[int]func(questionID string, isCorrect bool)
	tick            map[int]func(remainingSeconds int)
	threshold       map[int]func(label string)
	violation       map[int]func(reason string)
	finished        map[int]func(result model.Result)
}

// NewHooks creates an empty observer list.
func NewHooks() *Hooks {
	return &Hooks{
		questionChanged: map[int]func(int, model.Question){},
		answerSelected:  map[int]func(string, bool){},
		tick:            map[int]func(int){},
		threshold:       map[int]func(string){},
		violation:       map[int]func(string){},
		finished:        map[int]func(model.Result){},
	}
}

func (h *Hooks) register(add func(id int), remove func(id int)) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	add(id)
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			remove(id)
			h.mu.Unlock()
		})
	}
}

// OnQuestionChanged fires after the cursor moves to a different question.
func (h *Hooks) OnQuestionChanged(fn func(index int, q model.Question)) func() {
	return h.register(
		func(id int) { h.questionChanged[id] = fn },
		func(id int) { delete(h.questionChanged, id) },
	)
}

// OnAnswerSelected fires after a selection is recorded, with the instant
// grading outcome so the UI can flash feedback.
func (h *Hooks) OnAnswerSelected(fn func(questionID string, isCorrect bool)) func() {
	return h.register(
		func(id int) { h.answerSelected[id] = fn },
		func(id int) { delete(h.answerSelected, id) },
	)
}

// OnTick fires every timer second with the remaining seconds.
func (h *Hooks) OnTick(fn func(remainingSeconds int)) func() {
	return h.register(
		func(id int) { h.tick[id] = fn },
		func(id int) { delete(h.tick, id) },
	)
}

// OnThresholdWarning fires at most once per countdown threshold.
func (h *Hooks) OnThresholdWarning(fn func(label string)) func() {
	return h.register(
		func(id int) { h.threshold[id] = fn },
		func(id int) { delete(h.threshold, id) },
	)
}

// OnViolationWarning fires on every non-fatal integrity warning.
func (h *Hooks) OnViolationWarning(fn func(reason string)) func() {
	return h.register(
		func(id int) { h.violation[id] = fn },
		func(id int) { delete(h.violation, id) },
	)
}

// OnFinished fires exactly once, after the final result is computed.
func (h *Hooks) OnFinished(fn func(result model.Result)) func() {
	return h.register(
		func(id int) { h.finished[id] = fn },
		func(id int) { delete(h.finished, id) },
	)
}

func (h *Hooks) emitQuestionChanged(index int, q model.Question) {
	for _, fn := range h.snapshotQuestionChanged() {
		fn(index, q)
	}
}

func (h *Hooks) emitAnswerSelected(questionID string, isCorrect bool) {
	h.mu.Lock()
	fns := make([]func(string, bool), 0, len(h.answerSelected))
	for _, fn := range h.answerSelected {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(questionID, isCorrect)
	}
}

func (h *Hooks) emitTick(remaining int) {
	h.mu.Lock()
	fns := make([]func(int), 0, len(h.tick))
	for _, fn := range h.tick {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(remaining)
	}
}

func (h *Hooks) emitThreshold(label string) {
	h.mu.Lock()
	fns := make([]func(string), 0, len(h.threshold))
	for _, fn := range h.threshold {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(label)
	}
}

func (h *Hooks) emitViolation(reason string) {
	h.mu.Lock()
	fns := make([]func(string), 0, len(h.violation))
	for _, fn := range h.violation {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(reason)
	}
}

func (h *Hooks) emitFinished(result model.Result) {
	h.mu.Lock()
	fns := make([]func(model.Result), 0, len(h.finished))
	for _, fn := range h.finished {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(result)
	}
}

func (h *Hooks) snapshotQuestionChanged() []func(int, model.Question) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fns := make([]func(int, model.Question), 0, len(h.questionChanged))
	for _, fn := range h.questionChanged {
		fns = append(fns, fn)
	}
	return fns
}
