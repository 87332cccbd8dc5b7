package http

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"ecodash/internal/services"
)

// WorkflowRegistry keeps the workflows of open forms so a confirmation can
// reach the workflow that raised it. Entries live in memory only.
type WorkflowRegistry struct {
	mu        sync.RWMutex
	workflows map[string]*workflowEntry
	now       func() time.Time
}

type workflowEntry struct {
	workflow *services.Workflow
	lastUsed time.Time
}

func NewWorkflowRegistry() *WorkflowRegistry {
	return &WorkflowRegistry{
		workflows: make(map[string]*workflowEntry),
		now:       time.Now,
	}
}

// Register stores wf under a fresh ID.
func (r *WorkflowRegistry) Register(wf *services.Workflow) string {
	id := uuid.NewString()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflows[id] = &workflowEntry{workflow: wf, lastUsed: r.now()}
	return id
}

// Get returns the workflow and refreshes its idle timer.
func (r *WorkflowRegistry) Get(id string) (*services.Workflow, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.workflows[id]
	if !ok {
		return nil, false
	}
	e.lastUsed = r.now()
	return e.workflow, true
}

func (r *WorkflowRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workflows, id)
}

func (r *WorkflowRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workflows)
}

// CleanIdle drops settled workflows (idle, succeeded or failed) unused for
// longer than ttl. A workflow awaiting confirmation is kept until it is
// confirmed or cancelled.
func (r *WorkflowRegistry) CleanIdle(ttl time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-ttl)
	removed := 0
	for id, e := range r.workflows {
		if e.lastUsed.Before(cutoff) && settled(e.workflow.State()) {
			delete(r.workflows, id)
			removed++
		}
	}
	return removed
}

func settled(state services.State) bool {
	switch state {
	case services.StateIdle, services.StateSucceeded, services.StateFailed:
		return true
	}
	return false
}
