// Package visit implements the OP history form. Typing an OP number drives a
// debounced patient lookup; the loaded patient's visits can then be browsed,
// added, edited, deleted and printed.
package visit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/jwalitptl/frontdesk/internal/clock"
	"github.com/jwalitptl/frontdesk/internal/model"
	"github.com/jwalitptl/frontdesk/internal/repository"
	apperrors "github.com/jwalitptl/frontdesk/pkg/errors"
	"github.com/jwalitptl/frontdesk/pkg/logger"
	"github.com/jwalitptl/frontdesk/pkg/metrics"
)

const (
	DefaultDebounce = 500 * time.Millisecond

	formComponent = "visit_form"
	diagnosisLen  = 50
)

var (
	ErrBusy           = apperrors.Conflict("another operation is in progress")
	ErrNoPatient      = apperrors.Conflict("enter an O.P. No. and load patient details first")
	ErrNoSelection    = apperrors.Conflict("no history record selected")
	ErrReadOnly       = apperrors.Conflict("form is read-only; choose New or Edit first")
	ErrSelected       = apperrors.Conflict("an existing entry is loaded; use New for a new entry or Update for edits")
	ErrNoDeleteTarget = apperrors.Conflict("no history record marked for deletion")
	ErrStillEditing   = apperrors.Conflict("save or cancel the current entry before leaving")
	ErrNoContent      = apperrors.Validation("history/examination, investigation or diagnosis is required")
	ErrNoOPNumber     = apperrors.Validation("enter an O.P. No. first")
)

type Deps struct {
	Patients repository.PatientRepository
	Visits   repository.VisitRepository
	Clock    clock.Clock
	Observer logger.Observer
	Metrics  *metrics.Metrics
	// Debounce is how long the OP number must stay unchanged before lookup.
	Debounce time.Duration
	// Timeout bounds each lookup round trip. Zero means none.
	Timeout time.Duration
}

type Form struct {
	mu sync.Mutex

	patients repository.PatientRepository
	visits   repository.VisitRepository
	clock    clock.Clock
	obs      logger.Observer
	metrics  *metrics.Metrics
	debounce time.Duration
	timeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	fields        model.VisitFields
	patient       *model.Patient
	history       []*model.Visit
	index         int
	editing       bool
	files         []string
	pendingDelete bool
	busy          bool
	notices       []model.Notice

	// sequencer
	lookup       LookupState
	lastResolved string
	gen          uint64
	timer        clock.Timer
	inFlight     bool
	queued       bool
}

func NewForm(d Deps) *Form {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Observer == nil {
		d.Observer = logger.Nop()
	}
	if d.Debounce <= 0 {
		d.Debounce = DefaultDebounce
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Form{
		patients: d.Patients,
		visits:   d.Visits,
		clock:    d.Clock,
		obs:      d.Observer,
		metrics:  d.Metrics,
		debounce: d.Debounce,
		timeout:  d.Timeout,
		ctx:      ctx,
		cancel:   cancel,
		index:    -1,
		lookup:   LookupIdle,
	}
}

// Close stops the debounce timer and abandons lookups started by it.
func (f *Form) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.gen++
	f.cancel()
}

// State is a snapshot of the form for rendering.
type State struct {
	Lookup        LookupState       `json:"lookup"`
	Fields        model.VisitFields `json:"fields"`
	PatientLoaded bool              `json:"patientLoaded"`
	Index         int               `json:"index"`
	Total         int               `json:"total"`
	ID            string            `json:"id,omitempty"`
	Editing       bool              `json:"editing"`
	Files         []string          `json:"files"`
	PendingDelete bool              `json:"pendingDelete"`
	Busy          bool              `json:"busy"`
	Notices       []model.Notice    `json:"notices"`
}

// State returns the current snapshot and drains pending notices.
func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := State{
		Lookup:        f.lookup,
		Fields:        f.fields,
		PatientLoaded: f.patient != nil,
		Index:         f.index,
		Total:         len(f.history),
		Editing:       f.editing,
		Files:         append([]string(nil), f.files...),
		PendingDelete: f.pendingDelete,
		Busy:          f.busy || f.inFlight,
		Notices:       f.notices,
	}
	if f.index >= 0 && f.index < len(f.history) {
		s.ID = f.history[f.index].ID.String()
	}
	f.notices = nil
	return s
}

// New opens an empty entry for the loaded patient. Vitals are kept.
func (f *Form) New() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.idleLocked(); err != nil {
		return err
	}
	if f.patient == nil {
		return ErrNoPatient
	}

	f.index = -1
	f.pendingDelete = false
	f.fields.ClearVisitSpecific()
	f.fields.Date, f.fields.Time = model.Stamp(f.clock.Now())
	f.setEditingLocked(true)
	f.noticeLocked(model.NoticeSuccess, "Ready for new history entry. Enter details and click \"Save\".")
	return nil
}

// Edit makes the selected entry editable.
func (f *Form) Edit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.idleLocked(); err != nil {
		return err
	}
	if f.index < 0 {
		return ErrNoSelection
	}
	f.pendingDelete = false
	f.setEditingLocked(true)
	f.noticeLocked(model.NoticeSuccess, "Form is now editable. Make changes and click \"Save Changes\".")
	return nil
}

// SetFields applies a partial update while editing.
func (f *Form) SetFields(in model.VisitInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return ErrBusy
	}
	if !f.editing {
		return ErrReadOnly
	}
	in.Apply(&f.fields)
	return nil
}

// Save inserts the working copy as a new visit and selects it.
func (f *Form) Save(ctx context.Context) error {
	var v *model.Visit
	if err := f.acquire(func() error {
		if f.patient == nil || f.fields.OPNo == "" {
			return ErrNoPatient
		}
		if f.index >= 0 {
			return ErrSelected
		}
		if !f.editing {
			return ErrReadOnly
		}
		if !f.fields.HasClinicalContent() {
			return ErrNoContent
		}
		v = &model.Visit{VisitFields: f.fields}
		if v.Date == "" || v.Time == "" {
			v.Date, v.Time = model.Stamp(f.clock.Now())
		}
		return nil
	}); err != nil {
		return err
	}

	err := f.visits.Create(ctx, v)
	var list []*model.Visit
	var listErr error
	if err == nil {
		list, listErr = f.visits.Find(ctx, newestFirst(v.OPNo))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = false
	if err != nil {
		f.noticeLocked(model.NoticeError, "Failed to save O.P. History.")
		return errUpstream(err)
	}
	f.applyHistoryLocked(list, listErr, func(h []*model.Visit) []*model.Visit {
		return append([]*model.Visit{cloneVisit(v)}, removeVisit(h, v.ID)...)
	})
	f.selectLocked(f.indexOfLocked(v.ID, 0))
	f.noticeLocked(model.NoticeSuccess, "O.P. History saved successfully.")
	return nil
}

// Update writes the edited working copy over the selected visit.
func (f *Form) Update(ctx context.Context) error {
	var v *model.Visit
	if err := f.acquire(func() error {
		if f.index < 0 || f.index >= len(f.history) {
			return ErrNoSelection
		}
		if !f.editing {
			return ErrReadOnly
		}
		if !f.fields.HasClinicalContent() {
			return ErrNoContent
		}
		cp := *f.history[f.index]
		cp.VisitFields = f.fields
		v = &cp
		return nil
	}); err != nil {
		return err
	}

	err := f.visits.Update(ctx, v)
	var list []*model.Visit
	var listErr error
	if err == nil {
		list, listErr = f.visits.Find(ctx, newestFirst(v.OPNo))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = false
	if err != nil {
		f.noticeLocked(model.NoticeError, "Failed to update O.P. History.")
		return errUpstream(err)
	}
	f.applyHistoryLocked(list, listErr, func(h []*model.Visit) []*model.Visit {
		out := make([]*model.Visit, len(h))
		for i, old := range h {
			out[i] = old
			if old.ID == v.ID {
				out[i] = cloneVisit(v)
			}
		}
		return out
	})
	f.selectLocked(f.indexOfLocked(v.ID, 0))
	f.noticeLocked(model.NoticeSuccess, "O.P. History updated successfully.")
	return nil
}

// RequestDelete marks the selected entry for deletion and returns its row
// for the confirmation prompt.
func (f *Form) RequestDelete() (model.HistoryRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.idleLocked(); err != nil {
		return model.HistoryRow{}, err
	}
	if f.index < 0 || f.index >= len(f.history) {
		return model.HistoryRow{}, ErrNoSelection
	}
	f.pendingDelete = true
	return historyRow(f.index, f.history[f.index]), nil
}

func (f *Form) CancelDelete() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return ErrBusy
	}
	f.pendingDelete = false
	f.noticeLocked(model.NoticeInfo, "Deletion cancelled.")
	return nil
}

// ConfirmDelete removes the marked entry. The entry before it is selected
// afterwards; when none remain the whole form is reset.
func (f *Form) ConfirmDelete(ctx context.Context) error {
	var target *model.Visit
	var at int
	if err := f.acquire(func() error {
		if !f.pendingDelete || f.index < 0 || f.index >= len(f.history) {
			return ErrNoDeleteTarget
		}
		at = f.index
		target = f.history[at]
		return nil
	}); err != nil {
		return err
	}

	err := f.visits.Delete(ctx, target.ID)
	var list []*model.Visit
	var listErr error
	if err == nil {
		list, listErr = f.visits.Find(ctx, newestFirst(target.OPNo))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = false
	f.pendingDelete = false
	if err != nil {
		f.noticeLocked(model.NoticeError, "Failed to delete O.P. History.")
		return errUpstream(err)
	}

	f.applyHistoryLocked(list, listErr, func(h []*model.Visit) []*model.Visit {
		return removeVisit(h, target.ID)
	})
	f.noticeLocked(model.NoticeSuccess, "O.P. History deleted successfully.")
	if len(f.history) == 0 {
		f.resetLocked()
		f.setLookupLocked(LookupIdle)
		return nil
	}
	prev := at - 1
	if prev < 0 {
		prev = 0
	}
	if prev >= len(f.history) {
		prev = len(f.history) - 1
	}
	f.selectLocked(prev)
	return nil
}

// applyHistoryLocked installs a reloaded history, or patches the loaded one
// when the write went through but the reload failed.
func (f *Form) applyHistoryLocked(list []*model.Visit, listErr error, patch func([]*model.Visit) []*model.Visit) {
	if listErr == nil {
		f.history = list
		return
	}
	f.history = patch(f.history)
	f.noticeLocked(model.NoticeWarning, "O.P. History was written, but the list could not be refreshed.")
}

func removeVisit(list []*model.Visit, id uuid.UUID) []*model.Visit {
	out := make([]*model.Visit, 0, len(list))
	for _, v := range list {
		if v.ID != id {
			out = append(out, v)
		}
	}
	return out
}

func cloneVisit(v *model.Visit) *model.Visit {
	cp := *v
	return &cp
}

// Select loads the history entry at index and leaves edit mode.
func (f *Form) Select(index int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.idleLocked(); err != nil {
		return err
	}
	if len(f.history) == 0 {
		return apperrors.Boundary("no history entries to load")
	}
	if index < 0 || index >= len(f.history) {
		return apperrors.Boundary(fmt.Sprintf("history entry %d is out of range", index+1))
	}
	f.pendingDelete = false
	f.selectLocked(index)
	f.noticeLocked(model.NoticeSuccess, fmt.Sprintf("History entry %d of %d loaded.", index+1, len(f.history)))
	return nil
}

// HistoryRows lists the loaded visits for the selection modal.
func (f *Form) HistoryRows() []model.HistoryRow {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := make([]model.HistoryRow, 0, len(f.history))
	for i, v := range f.history {
		rows = append(rows, historyRow(i, v))
	}
	return rows
}

func historyRow(i int, v *model.Visit) model.HistoryRow {
	date := v.Date
	if d, err := time.Parse(model.DateLayout, v.Date); err == nil {
		date = d.Format("02/01/2006")
	}
	diagnosis := v.Diagnosis
	if utf8.RuneCountInString(diagnosis) > diagnosisLen {
		diagnosis = string([]rune(diagnosis)[:diagnosisLen]) + "..."
	}
	return model.HistoryRow{
		Index:     i,
		ID:        v.ID.String(),
		Date:      date,
		Time:      v.Time,
		Diagnosis: diagnosis,
	}
}

// Cancel drops edits: the selected entry is reloaded, or the visit fields
// are cleared when nothing is selected.
func (f *Form) Cancel() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return ErrBusy
	}
	f.pendingDelete = false
	if f.index >= 0 && f.index < len(f.history) {
		f.selectLocked(f.index)
	} else {
		f.fields.ClearVisitSpecific()
		if f.patient != nil {
			f.fields.Vitals = f.patient.Vitals
		}
		f.setEditingLocked(false)
	}
	f.noticeLocked(model.NoticeInfo, "Form operation cancelled.")
	return nil
}

// Quit returns where to go next. It is refused while an entry is being edited.
func (f *Form) Quit() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editing || f.busy {
		return "", ErrStillEditing
	}
	return "/dashboard", nil
}

// Print returns a read-only copy of the working entry with numbered links to
// the patient's files.
func (f *Form) Print() model.PrintDocument {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc := model.PrintDocument{VisitFields: f.fields}
	for i, url := range f.files {
		doc.Files = append(doc.Files, model.PrintLink{Label: fmt.Sprintf("File %d", i+1), URL: url})
	}
	return doc
}

func (f *Form) acquire(check func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.idleLocked(); err != nil {
		return err
	}
	if err := check(); err != nil {
		return err
	}
	f.busy = true
	return nil
}

// idleLocked refuses work while a write or a lookup is outstanding.
func (f *Form) idleLocked() error {
	if f.busy || f.inFlight || f.timer != nil {
		return ErrBusy
	}
	return nil
}

// populateLocked copies the patient's demographics and vitals into the form
// and clears everything specific to a single visit.
func (f *Form) populateLocked(p *model.Patient) {
	f.patient = p
	f.fields.PatientName = p.Name
	f.fields.Sex = p.Sex
	f.fields.Age = p.AgeOn(f.clock.Now())
	f.fields.RefDoctor = p.RefDoctor
	if f.fields.RefDoctor == "" {
		f.fields.RefDoctor = p.Consultant
	}
	f.fields.Vitals = p.Vitals
	f.fields.ClearVisitSpecific()
	f.files = append([]string(nil), p.Files...)
}

// clearDerivedLocked empties everything that came from a patient, leaving the
// typed OP number in place.
func (f *Form) clearDerivedLocked() {
	op := f.fields.OPNo
	f.fields = model.VisitFields{OPNo: op}
	f.fields.Date, f.fields.Time = model.Stamp(f.clock.Now())
	f.patient = nil
	f.history = nil
	f.index = -1
	f.files = nil
	f.lastResolved = ""
	f.pendingDelete = false
	f.setEditingLocked(false)
}

// resetLocked returns the form to its empty default state.
func (f *Form) resetLocked() {
	f.fields = model.VisitFields{}
	f.patient = nil
	f.history = nil
	f.index = -1
	f.files = nil
	f.lastResolved = ""
	f.pendingDelete = false
	f.setEditingLocked(false)
}

// selectLocked shows history[i]. Vitals missing on the entry come from the
// patient record.
func (f *Form) selectLocked(i int) {
	if i < 0 || i >= len(f.history) {
		f.index = -1
		return
	}
	v := f.history[i]
	f.index = i
	f.fields.Date = v.Date
	f.fields.Time = v.Time
	f.fields.HistoryExamination = v.HistoryExamination
	f.fields.Investigation = v.Investigation
	f.fields.Diagnosis = v.Diagnosis
	f.fields.ReviewDate = v.ReviewDate
	if f.patient != nil {
		f.fields.Vitals = v.Vitals.Or(f.patient.Vitals)
	} else {
		f.fields.Vitals = v.Vitals
	}
	f.setEditingLocked(false)
}

func (f *Form) indexOfLocked(id uuid.UUID, fallback int) int {
	for i, v := range f.history {
		if v.ID == id {
			return i
		}
	}
	return fallback
}

func (f *Form) setEditingLocked(on bool) {
	if f.editing == on {
		return
	}
	f.editing = on
	from, to := "viewing", "editing"
	if !on {
		from, to = to, from
	}
	f.obs.Transition(formComponent, from, to, map[string]interface{}{
		"op_no": f.fields.OPNo,
		"index": f.index,
	})
}

func (f *Form) noticeLocked(level model.NoticeLevel, msg string) {
	f.notices = append(f.notices, model.Notice{Level: level, Message: msg})
}

func errUpstream(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound("visit", err)
	}
	return apperrors.Upstream("record store request failed", err)
}
