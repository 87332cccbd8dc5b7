package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"ecodash/internal/core"
	applog "ecodash/internal/log"
	"ecodash/internal/services"
)

const maxFormBytes = 1 << 20

// errInvalidInput marks form bodies that could not be read into a form.
var errInvalidInput = errors.New("invalid input")

// FormState is the JSON body of a prefilled or recomputed form.
type FormState struct {
	Section core.Section `json:"section"`
	Form    any          `json:"form"`
}

// WorkflowResponse reports a workflow step to the page.
type WorkflowResponse struct {
	WorkflowID string `json:"workflow_id"`
	services.Outcome
	CloseAfterMs int64 `json:"close_after_ms,omitempty"`
}

// handleFormState returns the form for a section. With a key that exists the
// form is prefilled in edit mode, otherwise an empty create form is returned.
func (s *Server) handleFormState(w http.ResponseWriter, r *http.Request) {
	section, ok := pathSection(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	year := 0
	if raw := query.Get("year"); raw != "" {
		y, err := parseYear(raw)
		if err != nil {
			BadRequestError(err.Error()).Write(w)
			return
		}
		year = y
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.SourceTimeout)
	defer cancel()

	var form any
	switch section {
	case core.SectionValueGenerated:
		form = services.NewValueGeneratedForm(services.ModeCreate, year)
		if year != 0 {
			rec, err := s.src.GetValueGenerated(ctx, year)
			switch {
			case err == nil:
				form = services.ValueGeneratedFormFromRecord(rec)
			case !errors.Is(err, core.ErrNotFound):
				s.fail(w, r, applog.OpRead, err)
				return
			}
		}
	case core.SectionCapitalProvider:
		form = services.NewCapitalProviderForm(services.ModeCreate, year)
		if year != 0 {
			rec, err := s.src.GetCapitalProviderPayment(ctx, year)
			switch {
			case err == nil:
				form = services.CapitalProviderFormFromRecord(rec)
			case !errors.Is(err, core.ErrNotFound):
				s.fail(w, r, applog.OpRead, err)
				return
			}
		}
	case core.SectionExpenditures:
		company := sanitizeInput(query.Get("company"))
		form = services.NewExpenditureForm(services.ModeCreate, company, year)
		if company != "" && year != 0 {
			rows, err := s.src.GetExpenditures(ctx, company, year)
			switch {
			case err == nil:
				form = services.ExpenditureFormFromRecords(company, year, rows)
			case !errors.Is(err, core.ErrNotFound):
				s.fail(w, r, applog.OpRead, err)
				return
			}
		}
	}

	NewHTMXResponse().BodyJSON(FormState{Section: section, Form: form}).Write(w)
}

// handleFormTotals recomputes the live totals of a form without writing.
func (s *Server) handleFormTotals(w http.ResponseWriter, r *http.Request) {
	section, ok := pathSection(w, r)
	if !ok {
		return
	}
	sub, err := s.parseSubmission(w, r, section)
	if err != nil {
		s.fail(w, r, applog.OpValidate, err)
		return
	}
	NewHTMXResponse().BodyJSON(FormState{Section: section, Form: sub}).Write(w)
}

// parseSubmission reads a flat form body into the section's form type.
func (s *Server) parseSubmission(w http.ResponseWriter, r *http.Request, section core.Section) (services.Submission, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidInput, err)
	}

	var (
		sub services.Submission
		err error
	)
	if section == core.SectionExpenditures {
		ref, refErr := s.getReference(r.Context())
		if refErr != nil {
			return nil, refErr
		}
		sub, err = ParseExpenditureForm(p, ref.ExpenditureTypes)
	} else {
		sub, err = ParseSingleForm(section, p)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidInput, err)
	}
	return sub, nil
}

// markExisting flags edit-mode lines that are already stored so they are
// updated; the rest are created.
func (s *Server) markExisting(ctx context.Context, form *services.ExpenditureForm) error {
	if form.Mode != services.ModeEdit || form.Company == "" {
		return nil
	}
	rows, err := s.src.GetExpenditures(ctx, form.Company, form.Year)
	if errors.Is(err, core.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, row := range rows {
		if line, ok := form.Types[row.TypeID]; ok {
			line.Existing = true
			form.Types[row.TypeID] = line
		}
	}
	return nil
}

// handleSubmit runs the write workflow for a form. A workflow_id query parameter
// resubmits through an existing workflow; otherwise a new one is registered.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	section, ok := pathSection(w, r)
	if !ok {
		return
	}
	workflowID := r.URL.Query().Get("workflow_id")

	sub, err := s.parseSubmission(w, r, section)
	if err != nil {
		s.fail(w, r, applog.OpValidate, err)
		return
	}
	if form, ok := sub.(*services.ExpenditureForm); ok {
		if err := s.markExisting(r.Context(), form); err != nil {
			s.fail(w, r, applog.OpRead, err)
			return
		}
	}

	var wf *services.Workflow
	if workflowID != "" {
		if wf, ok = s.workflows.Get(workflowID); !ok {
			NotFoundError("Workflow not found").Write(w)
			return
		}
	} else {
		wf = services.NewWorkflow(s.src, s.checker, services.WorkflowConfig{CloseDelay: s.config.CloseDelay})
		wf.OnSuccess(s.onWriteSuccess)
		workflowID = s.workflows.Register(wf)
	}

	out, err := wf.Submit(r.Context(), sub)
	if err != nil {
		s.workflowError(w, err)
		return
	}
	s.respondOutcome(w, r, workflowID, out)
}

func (s *Server) handleWorkflowStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	wf, ok := s.workflows.Get(id)
	if !ok {
		NotFoundError("Workflow not found").Write(w)
		return
	}
	NewHTMXResponse().BodyJSON(WorkflowResponse{WorkflowID: id, Outcome: wf.Last()}).Write(w)
}

// handleConfirm accepts the listed conflicts and writes.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	wf, ok := s.workflows.Get(id)
	if !ok {
		NotFoundError("Workflow not found").Write(w)
		return
	}
	out, err := wf.Confirm(r.Context())
	if err != nil {
		s.workflowError(w, err)
		return
	}
	s.respondOutcome(w, r, id, out)
}

// handleCancel abandons a pending confirmation and forgets the workflow.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	wf, ok := s.workflows.Get(id)
	if !ok {
		NotFoundError("Workflow not found").Write(w)
		return
	}
	out, err := wf.Cancel()
	if err != nil {
		s.workflowError(w, err)
		return
	}
	s.workflows.Remove(id)
	s.respondOutcome(w, r, id, out)
}

func (s *Server) workflowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrWorkflowBusy),
		errors.Is(err, services.ErrNotAwaiting),
		errors.Is(err, services.ErrNothingToCancel):
		ConflictError(err.Error()).Write(w)
	default:
		InternalServerError(err.Error()).Write(w)
	}
}

// respondOutcome maps a workflow outcome onto status, body and HX-Trigger
// events.
func (s *Server) respondOutcome(w http.ResponseWriter, r *http.Request, id string, out services.Outcome) {
	applog.NewStructuredLogger(applog.FromContext(r.Context())).
		LogWorkflow(r.Context(), id, string(out.Section), string(out.State), out.Message)

	resp := WorkflowResponse{WorkflowID: id, Outcome: out}
	b := NewHTMXResponse()

	switch out.State {
	case services.StateSucceeded:
		resp.CloseAfterMs = out.CloseAfter.Milliseconds()
		b.TriggerSectionRefresh(out.Section).
			TriggerFormClose(resp.CloseAfterMs).
			TriggerSuccessNotification(out.Message)
	case services.StateAwaitingConfirmation:
		b.TriggerConfirmConflicts(id, out.Conflicts).
			TriggerWarningNotification(out.Message)
	case services.StateFailed:
		if out.Reason == services.ReasonWriteFailed {
			b.Status(http.StatusBadGateway)
		} else {
			b.Status(http.StatusUnprocessableEntity)
		}
		b.TriggerErrorNotification(out.Message)
	case services.StateIdle:
		b.TriggerNotification(NotificationInfo, "Cancelled", 2000)
	}
	b.BodyJSON(resp).Write(w)
}

