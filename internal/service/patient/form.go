// Package patient implements the patient-details form: a working copy of one
// patient record moving between view, new and edit modes.
package patient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/jwalitptl/frontdesk/internal/clock"
	"github.com/jwalitptl/frontdesk/internal/model"
	"github.com/jwalitptl/frontdesk/internal/repository"
	"github.com/jwalitptl/frontdesk/internal/upload"
	apperrors "github.com/jwalitptl/frontdesk/pkg/errors"
	"github.com/jwalitptl/frontdesk/pkg/logger"
	"github.com/jwalitptl/frontdesk/pkg/validator"
)

type Mode string

const (
	ModeView Mode = "view"
	ModeNew  Mode = "new"
	ModeEdit Mode = "edit"
)

const component = "patient_form"

var (
	ErrBusy            = apperrors.Conflict("another operation is in progress")
	ErrNotInView       = apperrors.Conflict("finish or cancel the current entry first")
	ErrReadOnly        = apperrors.Conflict("form is read-only; choose New or Edit first")
	ErrEmptyList       = apperrors.Conflict("no patients loaded")
	ErrWrongMode       = apperrors.Conflict("action not available in the current mode")
	ErrNothingToCancel = apperrors.Conflict("no active operation to cancel")
	ErrNoDeleteTarget  = apperrors.Conflict("no patient selected for removal")
	ErrNoChanges       = apperrors.Validation("no changes to save")
	ErrFixedNumber     = apperrors.Validation("OP and registration numbers cannot be changed")
)

var ascending = model.Query{}.Order(model.FieldTimestamp, model.Ascending)

type Deps struct {
	Patients  repository.PatientRepository
	Uploader  upload.Uploader
	Validator validator.Validator
	Clock     clock.Clock
	Observer  logger.Observer
}

type Form struct {
	mu sync.Mutex

	repo     repository.PatientRepository
	uploader upload.Uploader
	validate validator.Validator
	clock    clock.Clock
	obs      logger.Observer

	mode    Mode
	busy    bool
	list    []*model.Patient
	index   int
	working model.PatientFields
	files   []model.FileRef
	// original is the record as loaded into edit mode.
	original *model.Patient
	// returnIndex is where Cancel goes back to from new mode.
	returnIndex   int
	pendingDelete *model.Patient
	notices       []model.Notice
}

func NewForm(d Deps) *Form {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Observer == nil {
		d.Observer = logger.Nop()
	}
	if d.Validator == nil {
		d.Validator = validator.New()
	}
	return &Form{
		repo:        d.Patients,
		uploader:    d.Uploader,
		validate:    d.Validator,
		clock:       d.Clock,
		obs:         d.Observer,
		mode:        ModeView,
		index:       -1,
		returnIndex: -1,
	}
}

// State is a snapshot of the form for rendering.
type State struct {
	Mode          Mode                `json:"mode"`
	Index         int                 `json:"index"`
	Total         int                 `json:"total"`
	ID            string              `json:"id,omitempty"`
	Fields        model.PatientFields `json:"fields"`
	Age           string              `json:"age"`
	Files         []model.FileRef     `json:"files"`
	Unsaved       bool                `json:"unsaved"`
	Busy          bool                `json:"busy"`
	PendingDelete *model.PatientRow   `json:"pendingDelete,omitempty"`
	Notices       []model.Notice      `json:"notices"`
}

// State returns the current snapshot and drains pending notices.
func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := State{
		Mode:    f.mode,
		Index:   f.index,
		Total:   len(f.list),
		Fields:  f.working,
		Age:     model.AgeOn(f.working.DOB, f.clock.Now()),
		Files:   append([]model.FileRef(nil), f.files...),
		Unsaved: f.unsavedLocked(),
		Busy:    f.busy,
		Notices: f.notices,
	}
	if f.mode == ModeEdit && f.original != nil {
		s.ID = f.original.ID.String()
	} else if f.mode == ModeView && f.index >= 0 && f.index < len(f.list) {
		s.ID = f.list[f.index].ID.String()
	}
	if f.pendingDelete != nil {
		row := f.rowLocked(f.pendingDelete)
		s.PendingDelete = &row
	}
	f.notices = nil
	return s
}

// Mode reports the current mode.
func (f *Form) Mode() Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode
}

// HasUnsavedChanges reports whether the working copy differs from what was
// loaded. In new mode any filled required field or pending file counts.
func (f *Form) HasUnsavedChanges() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsavedLocked()
}

func (f *Form) unsavedLocked() bool {
	switch f.mode {
	case ModeNew:
		if f.working.Name != "" || f.working.OPNo != "" || f.working.RegNo != "" {
			return true
		}
		for _, r := range f.files {
			if r.IsPending() {
				return true
			}
		}
		return false
	case ModeEdit:
		if f.original == nil {
			return false
		}
		return f.working != f.original.PatientFields || !sameFileSet(f.files, f.original.Files)
	}
	return false
}

// sameFileSet compares persisted URLs as a multiset. Any pending file is a change.
func sameFileSet(refs []model.FileRef, urls []string) bool {
	if len(refs) != len(urls) {
		return false
	}
	have := make([]string, 0, len(refs))
	for _, r := range refs {
		if r.IsPending() {
			return false
		}
		have = append(have, r.URL)
	}
	want := append([]string(nil), urls...)
	sort.Strings(have)
	sort.Strings(want)
	for i := range have {
		if have[i] != want[i] {
			return false
		}
	}
	return true
}

// Load fetches every patient, oldest first, and shows the first one.
func (f *Form) Load(ctx context.Context) error {
	if err := f.acquire(func() error {
		if f.mode != ModeView {
			return ErrNotInView
		}
		return nil
	}); err != nil {
		return err
	}

	list, err := f.repo.Find(ctx, ascending)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = false
	if err != nil {
		f.noticeLocked(model.NoticeError, "Error fetching patients.")
		return apperrors.Upstream("failed to load patients", err)
	}
	f.list = list
	if len(list) == 0 {
		f.clearLocked()
		return nil
	}
	f.showLocked(0)
	return nil
}

// New clears the form and seeds the next OP and registration numbers.
func (f *Form) New() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return ErrBusy
	}
	if f.mode != ModeView {
		return ErrNotInView
	}

	ops := make([]string, 0, len(f.list))
	regs := make([]string, 0, len(f.list))
	for _, p := range f.list {
		ops = append(ops, p.OPNo)
		regs = append(regs, p.RegNo)
	}

	f.returnIndex = f.index
	f.index = -1
	f.original = nil
	f.pendingDelete = nil
	f.files = nil
	date, tm := model.Stamp(f.clock.Now())
	f.working = model.PatientFields{
		OPNo:  model.NextNumber(ops),
		RegNo: model.NextNumber(regs),
		Date:  date,
		Time:  tm,
	}
	f.setModeLocked(ModeNew)
	f.noticeLocked(model.NoticeInfo, "Ready for a new patient entry.")
	return nil
}

// ListRows returns the patient list for the selection modal.
func (f *Form) ListRows() []model.PatientRow {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := make([]model.PatientRow, 0, len(f.list))
	for _, p := range f.list {
		rows = append(rows, f.rowLocked(p))
	}
	return rows
}

func (f *Form) rowLocked(p *model.Patient) model.PatientRow {
	return model.PatientRow{
		ID:         p.ID.String(),
		OPNo:       p.OPNo,
		RegNo:      p.RegNo,
		Name:       p.Name,
		Sex:        p.Sex,
		Age:        p.AgeOn(f.clock.Now()),
		Consultant: p.Consultant,
		Date:       p.Date,
		Time:       p.Time,
	}
}

// SelectForEdit loads the chosen patient as the working copy in edit mode.
func (f *Form) SelectForEdit(id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return ErrBusy
	}
	if f.mode != ModeView {
		return ErrNotInView
	}
	i := f.indexOfLocked(id)
	if i < 0 {
		return apperrors.NotFound("patient", nil)
	}

	f.showLocked(i)
	f.original = clonePatient(f.list[i])
	f.pendingDelete = nil
	f.setModeLocked(ModeEdit)
	f.noticeLocked(model.NoticeInfo, fmt.Sprintf("Editing patient: %s", f.working.Name))
	return nil
}

// SelectForRemove marks a patient for deletion pending confirmation.
func (f *Form) SelectForRemove(id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return ErrBusy
	}
	if f.mode != ModeView {
		return ErrNotInView
	}
	i := f.indexOfLocked(id)
	if i < 0 {
		return apperrors.NotFound("patient", nil)
	}
	f.pendingDelete = f.list[i]
	return nil
}

func (f *Form) CancelDelete() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return ErrBusy
	}
	f.pendingDelete = nil
	if f.mode != ModeView {
		f.setModeLocked(ModeView)
	}
	f.noticeLocked(model.NoticeInfo, "Deletion cancelled.")
	return nil
}

// ConfirmDelete removes the selected patient, clears the form and reloads.
func (f *Form) ConfirmDelete(ctx context.Context) error {
	var target *model.Patient
	if err := f.acquire(func() error {
		if f.pendingDelete == nil {
			return ErrNoDeleteTarget
		}
		target = f.pendingDelete
		return nil
	}); err != nil {
		return err
	}

	err := f.repo.Delete(ctx, target.ID)
	var list []*model.Patient
	var listErr error
	if err == nil {
		list, listErr = f.repo.Find(ctx, ascending)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = false
	f.pendingDelete = nil
	if err != nil {
		f.noticeLocked(model.NoticeError, "Error deleting patient.")
		return apperrors.Upstream("failed to delete patient", err)
	}

	if listErr != nil {
		f.list = removeByID(f.list, target.ID)
		f.noticeLocked(model.NoticeWarning, "Patient deleted, but the list could not be refreshed.")
	} else {
		f.list = list
	}
	f.clearLocked()
	f.setModeLocked(ModeView)
	f.noticeLocked(model.NoticeSuccess, "Patient deleted successfully!")
	return nil
}

// SetFields applies a partial update to the working copy.
func (f *Form) SetFields(in model.PatientInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.editableLocked(); err != nil {
		return err
	}
	if in.OPNo != nil && *in.OPNo != f.working.OPNo {
		return ErrFixedNumber
	}
	if in.RegNo != nil && *in.RegNo != f.working.RegNo {
		return ErrFixedNumber
	}
	in.Apply(&f.working)
	return nil
}

// AddFiles queues files for upload on the next save.
func (f *Form) AddFiles(files ...model.PendingFile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.editableLocked(); err != nil {
		return err
	}
	for _, file := range files {
		f.files = append(f.files, model.Pending(file))
	}
	return nil
}

// RemoveFile drops a pending or persisted file reference.
func (f *Form) RemoveFile(index int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.editableLocked(); err != nil {
		return err
	}
	if index < 0 || index >= len(f.files) {
		return apperrors.Boundary(fmt.Sprintf("no file at position %d", index))
	}
	f.files = append(f.files[:index:index], f.files[index+1:]...)
	return nil
}

func (f *Form) editableLocked() error {
	if f.busy {
		return ErrBusy
	}
	if f.mode == ModeView {
		return ErrReadOnly
	}
	return nil
}

// Save inserts the new patient. Rejected files are skipped and returned;
// the record is still written with the files that did upload.
func (f *Form) Save(ctx context.Context) ([]upload.Failure, error) {
	var fields model.PatientFields
	var files []model.FileRef
	if err := f.acquire(func() error {
		if f.mode != ModeNew {
			return ErrWrongMode
		}
		if err := f.checkRequiredLocked(); err != nil {
			return err
		}
		fields = f.working
		files = append([]model.FileRef(nil), f.files...)
		return nil
	}); err != nil {
		return nil, err
	}

	urls, pending := model.SplitFiles(files)
	batch := upload.UploadAll(ctx, f.uploader, pending, upload.BatchTypes)

	p := &model.Patient{PatientFields: fields, Files: append(urls, batch.URLs...)}
	if p.Date == "" || p.Time == "" {
		p.Date, p.Time = model.Stamp(f.clock.Now())
	}
	err := f.repo.Create(ctx, p)
	var list []*model.Patient
	var listErr error
	if err == nil {
		list, listErr = f.repo.Find(ctx, ascending)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = false
	f.fileNoticesLocked(batch)
	if err != nil {
		f.noticeLocked(model.NoticeError, "Error saving patient.")
		return batch.Failures, apperrors.Upstream("failed to save patient", err)
	}

	f.applyListLocked(list, listErr, p)
	f.original = nil
	f.setModeLocked(ModeView)
	f.showLocked(f.indexOfLocked(p.ID))
	f.savedNoticeLocked("Patient saved successfully!", batch)
	return batch.Failures, nil
}

// Update writes the edited working copy back. The stored file list becomes
// the persisted URLs still present followed by the newly uploaded ones.
func (f *Form) Update(ctx context.Context) ([]upload.Failure, error) {
	var p *model.Patient
	var files []model.FileRef
	if err := f.acquire(func() error {
		if f.mode != ModeEdit || f.original == nil {
			return ErrWrongMode
		}
		if err := f.checkRequiredLocked(); err != nil {
			return err
		}
		if !f.unsavedLocked() {
			return ErrNoChanges
		}
		p = clonePatient(f.original)
		p.PatientFields = f.working
		files = append([]model.FileRef(nil), f.files...)
		return nil
	}); err != nil {
		return nil, err
	}

	retained, pending := model.SplitFiles(files)
	batch := upload.UploadAll(ctx, f.uploader, pending, upload.BatchTypes)
	p.Files = append(retained, batch.URLs...)

	err := f.repo.Update(ctx, p)
	var list []*model.Patient
	var listErr error
	if err == nil {
		list, listErr = f.repo.Find(ctx, ascending)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = false
	f.fileNoticesLocked(batch)
	if err != nil {
		f.noticeLocked(model.NoticeError, "Error updating patient.")
		if errors.Is(err, repository.ErrNotFound) {
			return batch.Failures, apperrors.NotFound("patient", err)
		}
		return batch.Failures, apperrors.Upstream("failed to update patient", err)
	}

	f.applyListLocked(list, listErr, p)
	f.original = nil
	f.setModeLocked(ModeView)
	f.showLocked(f.indexOfLocked(p.ID))
	f.savedNoticeLocked("Patient updated successfully!", batch)
	return batch.Failures, nil
}

func (f *Form) checkRequiredLocked() error {
	if err := f.validate.Validate(&f.working); err != nil {
		return &apperrors.AppError{Code: apperrors.ErrValidation, Message: err.Error(), Err: err}
	}
	return nil
}

// applyListLocked installs a reloaded list, or patches the old one when the
// reload failed.
func (f *Form) applyListLocked(list []*model.Patient, listErr error, saved *model.Patient) {
	if listErr == nil {
		f.list = list
		return
	}
	f.list = removeByID(f.list, saved.ID)
	f.list = append(f.list, clonePatient(saved))
	f.noticeLocked(model.NoticeWarning, "Saved, but the patient list could not be refreshed.")
}

func (f *Form) fileNoticesLocked(batch upload.BatchResult) {
	for _, fail := range batch.Failures {
		f.noticeLocked(model.NoticeWarning, fmt.Sprintf("File %q was skipped: %s", fail.Name, fail.Reason))
	}
}

func (f *Form) savedNoticeLocked(msg string, batch upload.BatchResult) {
	if batch.Partial() {
		f.noticeLocked(model.NoticeWarning, fmt.Sprintf("%s %d file(s) could not be uploaded.", msg, len(batch.Failures)))
		return
	}
	f.noticeLocked(model.NoticeSuccess, msg)
}

// Cancel leaves new or edit mode without saving.
func (f *Form) Cancel() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return ErrBusy
	}

	switch f.mode {
	case ModeNew:
		f.setModeLocked(ModeView)
		if f.returnIndex >= 0 && f.returnIndex < len(f.list) {
			f.showLocked(f.returnIndex)
		} else {
			f.clearLocked()
		}
		f.noticeLocked(model.NoticeInfo, "New entry cancelled.")
	case ModeEdit:
		f.setModeLocked(ModeView)
		if f.index >= 0 && f.index < len(f.list) {
			f.showLocked(f.index)
		} else {
			f.clearLocked()
		}
		f.noticeLocked(model.NoticeInfo, "Edit cancelled. Changes reverted.")
	default:
		if f.pendingDelete != nil {
			f.pendingDelete = nil
			return nil
		}
		return ErrNothingToCancel
	}
	f.original = nil
	f.pendingDelete = nil
	return nil
}

// Quit is only allowed in view mode and returns where to go next.
func (f *Form) Quit() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mode != ModeView || f.busy {
		return "", apperrors.Conflict("save or cancel the current entry before leaving")
	}
	return "/dashboard", nil
}

func (f *Form) First() error { return f.navigate(func(int, int) int { return 0 }) }

func (f *Form) Last() error { return f.navigate(func(_, n int) int { return n - 1 }) }

func (f *Form) Prev() error { return f.navigate(func(i, _ int) int { return i - 1 }) }

func (f *Form) Next() error { return f.navigate(func(i, _ int) int { return i + 1 }) }

func (f *Form) navigate(target func(index, total int) int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return ErrBusy
	}
	if f.mode != ModeView {
		return ErrNotInView
	}
	if len(f.list) == 0 {
		return ErrEmptyList
	}

	i := target(f.index, len(f.list))
	if i < 0 {
		return apperrors.Boundary("already at the first patient")
	}
	if i >= len(f.list) {
		return apperrors.Boundary("already at the last patient")
	}
	f.showLocked(i)
	return nil
}

func (f *Form) acquire(check func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return ErrBusy
	}
	if err := check(); err != nil {
		return err
	}
	f.busy = true
	return nil
}

func (f *Form) showLocked(i int) {
	if i < 0 || i >= len(f.list) {
		f.clearLocked()
		return
	}
	p := f.list[i]
	f.index = i
	f.working = p.PatientFields
	f.files = model.PersistedAll(p.Files)
}

func (f *Form) clearLocked() {
	f.index = -1
	f.working = model.PatientFields{}
	f.files = nil
	f.original = nil
}

func (f *Form) indexOfLocked(id uuid.UUID) int {
	for i, p := range f.list {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (f *Form) setModeLocked(to Mode) {
	from := f.mode
	f.mode = to
	f.obs.Transition(component, string(from), string(to), map[string]interface{}{
		"index": f.index,
		"total": len(f.list),
	})
}

func (f *Form) noticeLocked(level model.NoticeLevel, msg string) {
	f.notices = append(f.notices, model.Notice{Level: level, Message: msg})
}

func clonePatient(p *model.Patient) *model.Patient {
	cp := *p
	cp.Files = append([]string(nil), p.Files...)
	return &cp
}

func removeByID(list []*model.Patient, id uuid.UUID) []*model.Patient {
	out := make([]*model.Patient, 0, len(list))
	for _, p := range list {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}
