package visit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/frontdesk/internal/clock"
	"github.com/jwalitptl/frontdesk/internal/model"
	"github.com/jwalitptl/frontdesk/internal/repository"
	"github.com/jwalitptl/frontdesk/internal/repository/memory"
	apperrors "github.com/jwalitptl/frontdesk/pkg/errors"
)

const debounce = 500 * time.Millisecond

// countingPatients records every lookup value.
type countingPatients struct {
	repository.PatientRepository
	mu      sync.Mutex
	lookups []string
}

func (c *countingPatients) Find(ctx context.Context, q model.Query) ([]*model.Patient, error) {
	c.mu.Lock()
	c.lookups = append(c.lookups, q.Value)
	c.mu.Unlock()
	return c.PatientRepository.Find(ctx, q)
}

func (c *countingPatients) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lookups...)
}

// gatedPatients blocks the first `block` lookups until released.
type gatedPatients struct {
	repository.PatientRepository
	block   int32
	entered chan string
	release chan struct{}
}

func (g *gatedPatients) Find(ctx context.Context, q model.Query) ([]*model.Patient, error) {
	if atomic.AddInt32(&g.block, -1) >= 0 {
		g.entered <- q.Value
		<-g.release
	}
	return g.PatientRepository.Find(ctx, q)
}

// flakyVisits fails every write with writeErr and the next failFinds reads.
type flakyVisits struct {
	repository.VisitRepository
	writeErr  error
	failFinds int32
}

func (r *flakyVisits) Create(ctx context.Context, v *model.Visit) error {
	if r.writeErr != nil {
		return r.writeErr
	}
	return r.VisitRepository.Create(ctx, v)
}

func (r *flakyVisits) Update(ctx context.Context, v *model.Visit) error {
	if r.writeErr != nil {
		return r.writeErr
	}
	return r.VisitRepository.Update(ctx, v)
}

func (r *flakyVisits) Delete(ctx context.Context, id uuid.UUID) error {
	if r.writeErr != nil {
		return r.writeErr
	}
	return r.VisitRepository.Delete(ctx, id)
}

func (r *flakyVisits) Find(ctx context.Context, q model.Query) ([]*model.Visit, error) {
	if atomic.LoadInt32(&r.failFinds) > 0 {
		atomic.AddInt32(&r.failFinds, -1)
		return nil, errors.New("read timeout")
	}
	return r.VisitRepository.Find(ctx, q)
}

type transition struct{ component, from, to string }

type recordingObserver struct {
	mu  sync.Mutex
	got []transition
}

func (r *recordingObserver) Transition(component, from, to string, _ map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, transition{component, from, to})
}

func (r *recordingObserver) lookups() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, t := range r.got {
		if t.component == lookupComponent {
			out = append(out, t.to)
		}
	}
	return out
}

type fixture struct {
	form     *Form
	clock    *clock.Manual
	patients *memory.PatientRepository
	visits   *memory.VisitRepository
	counted  *countingPatients
	obs      *recordingObserver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewManual(time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC))
	fx := &fixture{
		clock:    clk,
		patients: memory.NewPatientRepository(clk),
		visits:   memory.NewVisitRepository(clk),
		obs:      &recordingObserver{},
	}
	fx.counted = &countingPatients{PatientRepository: fx.patients}
	fx.form = NewForm(Deps{
		Patients: fx.counted,
		Visits:   fx.visits,
		Clock:    clk,
		Observer: fx.obs,
		Debounce: debounce,
	})
	t.Cleanup(fx.form.Close)
	return fx
}

func (fx *fixture) addPatient(t *testing.T, fields model.PatientFields) {
	t.Helper()
	require.NoError(t, fx.patients.Create(context.Background(), &model.Patient{PatientFields: fields}))
}

// addVisits stores visits one minute apart, oldest first.
func (fx *fixture) addVisits(t *testing.T, op string, diagnoses ...string) {
	t.Helper()
	for _, d := range diagnoses {
		require.NoError(t, fx.visits.Create(context.Background(), &model.Visit{VisitFields: model.VisitFields{
			OPNo:      op,
			Date:      "2024-06-15",
			Time:      "10:00",
			Diagnosis: d,
		}}))
		fx.clock.Advance(time.Minute)
	}
}

// flaky routes the form's visit calls through a failing wrapper.
func (fx *fixture) flaky() *flakyVisits {
	r := &flakyVisits{VisitRepository: fx.visits}
	fx.form.visits = r
	return r
}

func (fx *fixture) stored(t *testing.T) []*model.Visit {
	t.Helper()
	list, err := fx.visits.Find(context.Background(), newestFirst("7"))
	require.NoError(t, err)
	return list
}

func diagnoses(rows []model.HistoryRow) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Diagnosis)
	}
	return out
}

func (fx *fixture) lookUp(t *testing.T, op string) State {
	t.Helper()
	require.NoError(t, fx.form.SetOPNumber(op))
	fx.clock.Advance(debounce)
	return fx.form.State()
}

func hasNotice(notices []model.Notice, level model.NoticeLevel, fragment string) bool {
	for _, n := range notices {
		if n.Level == level && strings.Contains(n.Message, fragment) {
			return true
		}
	}
	return false
}

func str(s string) *string { return &s }

var ravi = model.PatientFields{
	OPNo:       "7",
	RegNo:      "3",
	Name:       "Ravi",
	Sex:        "Male",
	DOB:        "1990-06-16",
	Consultant: "Dr. Iyer",
	Vitals:     model.Vitals{Temperature: "98.4", Pulse: "80", BP: "120/80", SpO2: "98"},
}

func TestDebounceSupersedesPendingTimer(t *testing.T) {
	fx := newFixture(t)

	require.NoError(t, fx.form.SetOPNumber("1"))
	fx.clock.Advance(300 * time.Millisecond)
	require.NoError(t, fx.form.SetOPNumber("12"))
	fx.clock.Advance(300 * time.Millisecond)

	assert.Empty(t, fx.counted.calls())
	assert.Equal(t, 1, fx.clock.Pending())
	assert.Equal(t, LookupDebouncing, fx.form.State().Lookup)

	fx.clock.Advance(200 * time.Millisecond)
	assert.Equal(t, []string{"12"}, fx.counted.calls())
	assert.Equal(t, 0, fx.clock.Pending())
}

func TestUnknownOPNumberClearsForm(t *testing.T) {
	fx := newFixture(t)
	fx.addPatient(t, ravi)

	st := fx.lookUp(t, "OP100")

	assert.Equal(t, LookupFailed, st.Lookup)
	assert.False(t, st.PatientLoaded)
	assert.False(t, st.Editing)
	assert.Equal(t, 0, st.Total)
	assert.Equal(t, -1, st.Index)
	assert.Equal(t, "OP100", st.Fields.OPNo)
	assert.Empty(t, st.Fields.PatientName)
	assert.True(t, st.Fields.Vitals.IsZero())
	assert.True(t, hasNotice(st.Notices, model.NoticeWarning, "No patient found"))

	assert.ErrorIs(t, fx.form.New(), ErrNoPatient)
	assert.ErrorIs(t, fx.form.SetFields(model.VisitInput{Diagnosis: str("x")}), ErrReadOnly)
}

func TestFoundPatientLoadsHistoryNewestFirst(t *testing.T) {
	fx := newFixture(t)
	fx.addPatient(t, ravi)
	fx.addVisits(t, "7", "first", "second", "third")
	fx.addVisits(t, "8", "other patient")

	st := fx.lookUp(t, "7")

	assert.Equal(t, LookupSettled, st.Lookup)
	assert.True(t, st.PatientLoaded)
	assert.Equal(t, "Ravi", st.Fields.PatientName)
	assert.Equal(t, "Male", st.Fields.Sex)
	assert.Equal(t, "33", st.Fields.Age)
	assert.Equal(t, "Dr. Iyer", st.Fields.RefDoctor)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 0, st.Index)
	assert.Equal(t, "third", st.Fields.Diagnosis)
	assert.False(t, st.Editing)

	rows := fx.form.HistoryRows()
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"third", "second", "first"}, []string{rows[0].Diagnosis, rows[1].Diagnosis, rows[2].Diagnosis})

	assert.Equal(t, []string{"debouncing", "fetching", "settled"}, fx.obs.lookups())
}

func TestPatientWithoutHistory(t *testing.T) {
	fx := newFixture(t)
	fx.addPatient(t, ravi)

	st := fx.lookUp(t, "7")
	assert.True(t, st.PatientLoaded)
	assert.Equal(t, -1, st.Index)
	assert.Equal(t, ravi.Vitals, st.Fields.Vitals)
	assert.True(t, hasNotice(st.Notices, model.NoticeInfo, "No history records"))
}

func TestSameOPNumberOnlyRefreshesHistory(t *testing.T) {
	fx := newFixture(t)
	fx.addPatient(t, ravi)
	fx.lookUp(t, "7")
	fx.addVisits(t, "7", "added elsewhere")

	st := fx.lookUp(t, "7")
	assert.Equal(t, []string{"7"}, fx.counted.calls())
	assert.Equal(t, 1, st.Total)
	assert.Equal(t, "added elsewhere", st.Fields.Diagnosis)
}

func TestClearingOPNumberResetsForm(t *testing.T) {
	fx := newFixture(t)
	fx.addPatient(t, ravi)
	fx.addVisits(t, "7", "a")
	fx.lookUp(t, "7")

	st := fx.lookUp(t, "")
	assert.Equal(t, LookupIdle, st.Lookup)
	assert.Equal(t, model.VisitFields{}, st.Fields)
	assert.False(t, st.PatientLoaded)
	assert.Equal(t, 0, st.Total)
	assert.Len(t, fx.counted.calls(), 1)
}

func TestSaveNewEntry(t *testing.T) {
	fx := newFixture(t)
	fx.addPatient(t, ravi)
	fx.lookUp(t, "7")

	require.NoError(t, fx.form.New())
	st := fx.form.State()
	assert.True(t, st.Editing)
	assert.Equal(t, ravi.Vitals, st.Fields.Vitals)

	err := fx.form.Save(context.Background())
	assert.ErrorIs(t, err, ErrNoContent)
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

	require.NoError(t, fx.form.SetFields(model.VisitInput{Diagnosis: str("Viral fever"), Pulse: str("92")}))
	require.NoError(t, fx.form.Save(context.Background()))

	st = fx.form.State()
	assert.False(t, st.Editing)
	assert.Equal(t, 1, st.Total)
	assert.Equal(t, 0, st.Index)
	assert.Equal(t, "Viral fever", st.Fields.Diagnosis)
	assert.Equal(t, "92", st.Fields.Pulse)

	stored, err := fx.visits.Find(context.Background(), newestFirst("7"))
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "Ravi", stored[0].PatientName)
	assert.Equal(t, "Dr. Iyer", stored[0].RefDoctor)
	assert.Equal(t, "2024-06-15", stored[0].Date)
}

func TestSaveRejectedWhileEntrySelected(t *testing.T) {
	fx := newFixture(t)
	fx.addPatient(t, ravi)
	fx.addVisits(t, "7", "a")
	fx.lookUp(t, "7")

	assert.ErrorIs(t, fx.form.SetFields(model.VisitInput{Diagnosis: str("b")}), ErrReadOnly)
	require.NoError(t, fx.form.Edit())
	require.NoError(t, fx.form.SetFields(model.VisitInput{Diagnosis: str("b")}))
	assert.ErrorIs(t, fx.form.Save(context.Background()), ErrSelected)
}

func TestUpdateReselectsEditedEntry(t *testing.T) {
	fx := newFixture(t)
	fx.addPatient(t, ravi)
	fx.addVisits(t, "7", "old", "new")
	fx.lookUp(t, "7")

	require.NoError(t, fx.form.Select(1))
	require.NoError(t, fx.form.Edit())
	require.NoError(t, fx.form.SetFields(model.VisitInput{Diagnosis: str("")}))
	assert.ErrorIs(t, fx.form.Update(context.Background()), ErrNoContent)

	require.NoError(t, fx.form.SetFields(model.VisitInput{Diagnosis: str("revised"), ReviewDate: str("2024-06-22")}))
	require.NoError(t, fx.form.Update(context.Background()))

	st := fx.form.State()
	assert.Equal(t, 1, st.Index)
	assert.False(t, st.Editing)
	assert.Equal(t, "revised", st.Fields.Diagnosis)
	assert.Equal(t, "2024-06-22", st.Fields.ReviewDate)
	assert.Equal(t, 2, st.Total)
}

func TestDeleteSelectsPrecedingEntry(t *testing.T) {
	fx := newFixture(t)
	fx.addPatient(t, ravi)
	fx.addVisits(t, "7", "a", "b", "c")
	fx.lookUp(t, "7")

	require.NoError(t, fx.form.Select(2))
	row, err := fx.form.RequestDelete()
	require.NoError(t, err)
	assert.Equal(t, "a", row.Diagnosis)

	require.NoError(t, fx.form.ConfirmDelete(context.Background()))
	st := fx.form.State()
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 1, st.Index)
	assert.Equal(t, "b", st.Fields.Diagnosis)
	assert.False(t, st.PendingDelete)

	require.NoError(t, fx.form.Select(0))
	_, err = fx.form.RequestDelete()
	require.NoError(t, err)
	require.NoError(t, fx.form.ConfirmDelete(context.Background()))
	st = fx.form.State()
	assert.Equal(t, 1, st.Total)
	assert.Equal(t, 0, st.Index)
	assert.Equal(t, "b", st.Fields.Diagnosis)
}

func TestDeletingLastEntryResetsForm(t *testing.T) {
	fx := newFixture(t)
	fx.addPatient(t, ravi)
	fx.addVisits(t, "7", "only")
	fx.lookUp(t, "7")

	_, err := fx.form.RequestDelete()
	require.NoError(t, err)
	require.NoError(t, fx.form.ConfirmDelete(context.Background()))

	st := fx.form.State()
	assert.Equal(t, model.VisitFields{}, st.Fields)
	assert.False(t, st.PatientLoaded)
	assert.Equal(t, 0, st.Total)
	assert.Equal(t, -1, st.Index)
	assert.Equal(t, LookupIdle, st.Lookup)
}

func TestCancelDeleteKeepsEntry(t *testing.T) {
	fx := newFixture(t)
	fx.addPatient(t, ravi)
	fx.addVisits(t, "7", "only")
	fx.lookUp(t, "7")

	_, err := fx.form.RequestDelete()
	require.NoError(t, err)
	require.NoError(t, fx.form.CancelDelete())
	assert.ErrorIs(t, fx.form.ConfirmDelete(context.Background()), ErrNoDeleteTarget)

	stored, err := fx.visits.Find(context.Background(), model.Query{})
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestSelectOutOfRange(t *testing.T) {
	fx := newFixture(t)
	fx.addPatient(t, ravi)
	fx.addVisits(t, "7", "a", "b")
	fx.lookUp(t, "7")
	before := fx.form.State()

	for _, i := range []int{-1, 2} {
		err := fx.form.Select(i)
		assert.True(t, apperrors.Is(err, apperrors.ErrBoundary))
	}
	after := fx.form.State()
	assert.Equal(t, before.Index, after.Index)
	assert.Equal(t, before.Fields, after.Fields)
}

func TestSelectFallsBackToPatientVitals(t *testing.T) {
	fx := newFixture(t)
	fx.addPatient(t, ravi)
	require.NoError(t, fx.visits.Create(context.Background(), &model.Visit{VisitFields: model.VisitFields{
		OPNo:      "7",
		Diagnosis: "d",
		Vitals:    model.Vitals{Pulse: "101"},
	}}))

	st := fx.lookUp(t, "7")
	assert.Equal(t, model.Vitals{Temperature: "98.4", Pulse: "101", BP: "120/80", SpO2: "98"}, st.Fields.Vitals)
}

func TestHistoryRowFormatting(t *testing.T) {
	long := strings.Repeat("x", 60)
	row := historyRow(3, &model.Visit{VisitFields: model.VisitFields{Date: "2024-01-05", Time: "09:15", Diagnosis: long}})

	assert.Equal(t, 3, row.Index)
	assert.Equal(t, "05/01/2024", row.Date)
	assert.Equal(t, "09:15", row.Time)
	assert.Equal(t, strings.Repeat("x", 50)+"...", row.Diagnosis)

	row = historyRow(0, &model.Visit{VisitFields: model.VisitFields{Date: "someday", Diagnosis: "short"}})
	assert.Equal(t, "someday", row.Date)
	assert.Equal(t, "short", row.Diagnosis)
}

func TestCancelAndQuit(t *testing.T) {
	fx := newFixture(t)
	fx.addPatient(t, ravi)
	fx.addVisits(t, "7", "kept")
	fx.lookUp(t, "7")

	require.NoError(t, fx.form.Edit())
	require.NoError(t, fx.form.SetFields(model.VisitInput{Diagnosis: str("scratch")}))
	_, err := fx.form.Quit()
	assert.ErrorIs(t, err, ErrStillEditing)

	require.NoError(t, fx.form.Cancel())
	st := fx.form.State()
	assert.False(t, st.Editing)
	assert.Equal(t, "kept", st.Fields.Diagnosis)

	to, err := fx.form.Quit()
	require.NoError(t, err)
	assert.Equal(t, "/dashboard", to)
}

func TestPrintListsPatientFiles(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.patients.Create(context.Background(), &model.Patient{
		PatientFields: ravi,
		Files:         []string{"https://files/a.pdf", "https://files/b.jpg"},
	}))
	fx.addVisits(t, "7", "d")
	fx.lookUp(t, "7")

	doc := fx.form.Print()
	assert.Equal(t, "Ravi", doc.PatientName)
	assert.Equal(t, "d", doc.Diagnosis)
	assert.Equal(t, []model.PrintLink{
		{Label: "File 1", URL: "https://files/a.pdf"},
		{Label: "File 2", URL: "https://files/b.jpg"},
	}, doc.Files)
}

func TestRefreshRefusedWhileLookupOutstanding(t *testing.T) {
	fx := newFixture(t)
	fx.addPatient(t, ravi)
	gated := &gatedPatients{
		PatientRepository: fx.patients,
		block:             1,
		entered:           make(chan string, 1),
		release:           make(chan struct{}),
	}
	fx.form.patients = gated

	require.NoError(t, fx.form.SetOPNumber("7"))
	done := make(chan struct{})
	go func() {
		fx.clock.Advance(debounce)
		close(done)
	}()
	assert.Equal(t, "7", <-gated.entered)

	assert.ErrorIs(t, fx.form.Refresh(context.Background()), ErrBusy)
	assert.ErrorIs(t, fx.form.New(), ErrBusy)
	assert.Equal(t, LookupFetching, fx.form.State().Lookup)

	close(gated.release)
	<-done
	assert.True(t, fx.form.State().PatientLoaded)

	require.NoError(t, fx.form.Refresh(context.Background()))
	assert.Equal(t, LookupSettled, fx.form.State().Lookup)
}

func TestStaleLookupResponseIsDiscarded(t *testing.T) {
	fx := newFixture(t)
	fx.addPatient(t, ravi)
	fx.addPatient(t, model.PatientFields{OPNo: "8", RegNo: "4", Name: "Meena"})
	gated := &gatedPatients{
		PatientRepository: fx.patients,
		block:             1,
		entered:           make(chan string, 1),
		release:           make(chan struct{}),
	}
	fx.form.patients = gated

	require.NoError(t, fx.form.SetOPNumber("7"))
	done := make(chan struct{})
	go func() {
		fx.clock.Advance(debounce)
		close(done)
	}()
	assert.Equal(t, "7", <-gated.entered)

	require.NoError(t, fx.form.SetOPNumber("8"))
	close(gated.release)
	<-done

	st := fx.form.State()
	assert.False(t, st.PatientLoaded)
	assert.Empty(t, st.Fields.PatientName)
	assert.Equal(t, LookupDebouncing, st.Lookup)

	fx.clock.Advance(debounce)
	st = fx.form.State()
	assert.Equal(t, LookupSettled, st.Lookup)
	assert.Equal(t, "Meena", st.Fields.PatientName)
}

func TestCloseStopsPendingLookup(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.form.SetOPNumber("7"))
	require.Equal(t, 1, fx.clock.Pending())

	fx.form.Close()
	assert.Equal(t, 0, fx.clock.Pending())
	fx.clock.Advance(debounce)
	assert.Empty(t, fx.counted.calls())
}

func TestSaveAndUpdateRequireEditMode(t *testing.T) {
	fx := newFixture(t)
	fx.addPatient(t, ravi)
	require.NoError(t, fx.visits.Create(context.Background(), &model.Visit{VisitFields: model.VisitFields{
		OPNo:      "7",
		Diagnosis: "no vitals taken",
	}}))
	st := fx.lookUp(t, "7")
	require.False(t, st.Editing)
	require.Equal(t, ravi.Vitals, st.Fields.Vitals)

	assert.ErrorIs(t, fx.form.Update(context.Background()), ErrReadOnly)
	stored := fx.stored(t)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].Vitals.IsZero())

	require.NoError(t, fx.form.New())
	require.NoError(t, fx.form.SetFields(model.VisitInput{Diagnosis: str("draft")}))
	require.NoError(t, fx.form.Cancel())
	assert.ErrorIs(t, fx.form.Save(context.Background()), ErrReadOnly)
	assert.Len(t, fx.stored(t), 1)
}

func TestWriteFailureLeavesFormUnchanged(t *testing.T) {
	t.Run("save", func(t *testing.T) {
		fx := newFixture(t)
		fx.addPatient(t, ravi)
		fx.lookUp(t, "7")
		fx.flaky().writeErr = errors.New("connection reset")

		require.NoError(t, fx.form.New())
		require.NoError(t, fx.form.SetFields(model.VisitInput{Diagnosis: str("Viral fever")}))
		err := fx.form.Save(context.Background())
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.ErrUpstream))

		st := fx.form.State()
		assert.True(t, st.Editing)
		assert.Equal(t, -1, st.Index)
		assert.Equal(t, 0, st.Total)
		assert.Equal(t, "Viral fever", st.Fields.Diagnosis)
		assert.True(t, hasNotice(st.Notices, model.NoticeError, "Failed to save"))
		assert.Empty(t, fx.stored(t))
	})

	t.Run("delete", func(t *testing.T) {
		fx := newFixture(t)
		fx.addPatient(t, ravi)
		fx.addVisits(t, "7", "a", "b")
		fx.lookUp(t, "7")
		fx.flaky().writeErr = errors.New("connection reset")

		_, err := fx.form.RequestDelete()
		require.NoError(t, err)
		err = fx.form.ConfirmDelete(context.Background())
		assert.True(t, apperrors.Is(err, apperrors.ErrUpstream))

		st := fx.form.State()
		assert.Equal(t, 2, st.Total)
		assert.Equal(t, 0, st.Index)
		assert.Equal(t, "b", st.Fields.Diagnosis)
		assert.False(t, st.PendingDelete)
		assert.True(t, hasNotice(st.Notices, model.NoticeError, "Failed to delete"))
		assert.Len(t, fx.stored(t), 2)
	})
}

func TestSaveReloadFailureSelectsNewEntry(t *testing.T) {
	fx := newFixture(t)
	fx.addPatient(t, ravi)
	fx.addVisits(t, "7", "earlier")
	fx.lookUp(t, "7")
	flaky := fx.flaky()

	require.NoError(t, fx.form.New())
	require.NoError(t, fx.form.SetFields(model.VisitInput{Diagnosis: str("Viral fever")}))
	flaky.failFinds = 1
	require.NoError(t, fx.form.Save(context.Background()))

	st := fx.form.State()
	assert.False(t, st.Editing)
	assert.Equal(t, 0, st.Index)
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, "Viral fever", st.Fields.Diagnosis)
	assert.True(t, hasNotice(st.Notices, model.NoticeWarning, "could not be refreshed"))

	stored := fx.stored(t)
	require.Len(t, stored, 2)
	assert.Equal(t, stored[0].ID.String(), st.ID)

	assert.ErrorIs(t, fx.form.Save(context.Background()), ErrSelected)
	assert.Len(t, fx.stored(t), 2)
}

func TestUpdateReloadFailurePatchesEntry(t *testing.T) {
	fx := newFixture(t)
	fx.addPatient(t, ravi)
	fx.addVisits(t, "7", "old", "new")
	fx.lookUp(t, "7")
	flaky := fx.flaky()

	require.NoError(t, fx.form.Edit())
	require.NoError(t, fx.form.SetFields(model.VisitInput{Diagnosis: str("revised")}))
	flaky.failFinds = 1
	require.NoError(t, fx.form.Update(context.Background()))

	st := fx.form.State()
	assert.False(t, st.Editing)
	assert.Equal(t, 0, st.Index)
	assert.Equal(t, "revised", st.Fields.Diagnosis)
	assert.True(t, hasNotice(st.Notices, model.NoticeWarning, "could not be refreshed"))
	assert.Equal(t, []string{"revised", "old"}, diagnoses(fx.form.HistoryRows()))
	assert.Equal(t, "revised", fx.stored(t)[0].Diagnosis)
}

func TestDeleteReloadFailureDropsEntry(t *testing.T) {
	fx := newFixture(t)
	fx.addPatient(t, ravi)
	fx.addVisits(t, "7", "a", "b", "c")
	fx.lookUp(t, "7")
	flaky := fx.flaky()

	require.NoError(t, fx.form.Select(1))
	_, err := fx.form.RequestDelete()
	require.NoError(t, err)
	flaky.failFinds = 1
	require.NoError(t, fx.form.ConfirmDelete(context.Background()))

	st := fx.form.State()
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 0, st.Index)
	assert.Equal(t, "c", st.Fields.Diagnosis)
	assert.True(t, hasNotice(st.Notices, model.NoticeWarning, "could not be refreshed"))
	assert.Equal(t, []string{"c", "a"}, diagnoses(fx.form.HistoryRows()))
	assert.Len(t, fx.stored(t), 2)

	require.NoError(t, fx.form.Select(1))
	_, err = fx.form.RequestDelete()
	require.NoError(t, err)
	require.NoError(t, fx.form.ConfirmDelete(context.Background()))
	assert.Equal(t, []string{"c"}, diagnoses(fx.form.HistoryRows()))
}

func TestLookupFailureKeepsPriorState(t *testing.T) {
	fx := newFixture(t)
	fx.addPatient(t, ravi)
	fx.addVisits(t, "7", "a", "b")
	fx.lookUp(t, "7")
	require.NoError(t, fx.form.Select(1))
	before := fx.form.State()
	fx.flaky().failFinds = 1

	err := fx.form.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrUpstream))

	st := fx.form.State()
	assert.Equal(t, LookupFailed, st.Lookup)
	assert.True(t, hasNotice(st.Notices, model.NoticeError, "Error fetching patient details"))
	assert.True(t, st.PatientLoaded)
	assert.Equal(t, before.Index, st.Index)
	assert.Equal(t, before.Total, st.Total)
	assert.Equal(t, before.Fields, st.Fields)
}
