package visit

import (
	"context"
	"fmt"

	"github.com/jwalitptl/frontdesk/internal/model"
)

// LookupState is the position of the OP number lookup sequencer.
type LookupState string

const (
	LookupIdle       LookupState = "idle"
	LookupDebouncing LookupState = "debouncing"
	LookupFetching   LookupState = "fetching"
	LookupSettled    LookupState = "settled"
	LookupFailed     LookupState = "failed"
)

const lookupComponent = "visit_lookup"

// lookupResult is what one fetch brought back. full is false when only the
// history was refreshed for an already resolved patient.
type lookupResult struct {
	full    bool
	found   bool
	patient *model.Patient
	history []*model.Visit
	err     error
}

// SetOPNumber records a keystroke in the OP number field. Any pending timer
// is superseded; the lookup runs once the value has been still for the
// debounce delay.
func (f *Form) SetOPNumber(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return ErrBusy
	}

	f.fields.OPNo = op
	f.index = -1
	f.files = nil
	f.pendingDelete = false
	f.setEditingLocked(false)

	f.gen++
	gen := f.gen
	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = f.clock.AfterFunc(f.debounce, func() { f.settle(gen) })
	f.setLookupLocked(LookupDebouncing)
	return nil
}

// settle runs when the debounce timer fires.
func (f *Form) settle(gen uint64) {
	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		return
	}
	f.timer = nil
	if f.inFlight {
		f.queued = true
		f.mu.Unlock()
		return
	}
	op, full, ok := f.beginLocked()
	f.mu.Unlock()
	if !ok {
		return
	}
	f.run(f.ctx, gen, op, full)
}

// beginLocked decides what the settled value needs. An empty OP number
// resets the form without fetching.
func (f *Form) beginLocked() (op string, full bool, ok bool) {
	op = f.fields.OPNo
	if op == "" {
		f.resetLocked()
		f.setLookupLocked(LookupIdle)
		return "", false, false
	}
	full = op != f.lastResolved || f.patient == nil
	f.inFlight = true
	f.setLookupLocked(LookupFetching)
	return op, full, true
}

// run performs fetches until nothing is queued. Responses for a superseded
// generation are dropped.
func (f *Form) run(ctx context.Context, gen uint64, op string, full bool) error {
	for {
		res := f.fetch(ctx, op, full)

		f.mu.Lock()
		f.inFlight = false
		var err error
		if gen == f.gen {
			err = f.applyLocked(op, res)
		} else {
			f.metrics.ObserveLookup("stale")
		}

		if !f.queued || f.timer != nil {
			f.queued = false
			f.mu.Unlock()
			return err
		}
		f.queued = false
		gen = f.gen
		var ok bool
		op, full, ok = f.beginLocked()
		f.mu.Unlock()
		if !ok {
			return nil
		}
	}
}

func (f *Form) fetch(ctx context.Context, op string, full bool) lookupResult {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	res := lookupResult{full: full}
	if full {
		found, err := f.patients.Find(ctx, model.Where(model.FieldOPNo, op).Take(1))
		if err != nil {
			res.err = fmt.Errorf("failed to look up patient %q: %w", op, err)
			return res
		}
		if len(found) == 0 {
			return res
		}
		res.found = true
		res.patient = found[0]
	}

	history, err := f.visits.Find(ctx, newestFirst(op))
	if err != nil {
		res.err = fmt.Errorf("failed to load history for %q: %w", op, err)
		return res
	}
	res.history = history
	return res
}

func newestFirst(op string) model.Query {
	return model.Where(model.FieldOPNo, op).Order(model.FieldTimestamp, model.Descending)
}

// applyLocked folds a current fetch result into the form.
func (f *Form) applyLocked(op string, res lookupResult) error {
	if res.err != nil {
		f.metrics.ObserveLookup("error")
		f.noticeLocked(model.NoticeError, "Error fetching patient details.")
		f.setLookupLocked(LookupFailed)
		return res.err
	}

	if res.full && !res.found {
		f.metrics.ObserveLookup("not_found")
		f.clearDerivedLocked()
		f.noticeLocked(model.NoticeWarning, "No patient found with this O.P. No.")
		f.setLookupLocked(LookupFailed)
		return nil
	}

	if res.full {
		f.metrics.ObserveLookup("found")
		f.populateLocked(res.patient)
		f.lastResolved = op
		f.noticeLocked(model.NoticeSuccess, fmt.Sprintf("Patient %q details loaded.", res.patient.Name))
	} else {
		f.metrics.ObserveLookup("history_only")
		if f.patient != nil {
			f.files = append([]string(nil), f.patient.Files...)
		}
	}

	f.history = res.history
	f.setEditingLocked(false)
	if len(f.history) > 0 {
		f.selectLocked(0)
	} else {
		f.index = -1
		f.fields.ClearVisitSpecific()
		f.noticeLocked(model.NoticeInfo, "No history records found for this O.P. No. Use 'New' to add one.")
	}
	f.setLookupLocked(LookupSettled)
	return nil
}

// Refresh re-fetches the patient for the current OP number straight away.
func (f *Form) Refresh(ctx context.Context) error {
	f.mu.Lock()
	if f.busy || f.inFlight {
		f.mu.Unlock()
		return ErrBusy
	}
	if f.fields.OPNo == "" {
		f.mu.Unlock()
		return ErrNoOPNumber
	}
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.gen++
	gen := f.gen
	f.lastResolved = ""
	op, full, _ := f.beginLocked()
	f.noticeLocked(model.NoticeInfo, "Refreshing data...")
	f.mu.Unlock()

	if err := f.run(ctx, gen, op, full); err != nil {
		return errUpstream(err)
	}
	return nil
}

func (f *Form) setLookupLocked(to LookupState) {
	from := f.lookup
	if from == to {
		return
	}
	f.lookup = to
	f.obs.Transition(lookupComponent, string(from), string(to), map[string]interface{}{
		"op_no":      f.fields.OPNo,
		"generation": f.gen,
	})
}
