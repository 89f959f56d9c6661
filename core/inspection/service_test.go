package inspection

import (
	"context"
	"net/mail"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ukaguzi/core"
	"github.com/trezcool/ukaguzi/core/event"
	"github.com/trezcool/ukaguzi/core/profile"
	"github.com/trezcool/ukaguzi/core/standard"
	"github.com/trezcool/ukaguzi/core/visit"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type fakeTracker struct {
	mu       sync.Mutex
	orgUnits map[string]event.OrgUnit
	events   map[string][]event.Event // {orgUnit/program: events}
	failing  map[string]bool          // org units whose events cannot be fetched
	postErr  error
	rejected map[string]bool // org units whose events cannot be posted
	posted   []event.Event
}

func (tr *fakeTracker) Events(_ context.Context, orgUnit, program string) ([]event.Event, error) {
	if tr.failing[orgUnit] {
		return nil, core.NewTransportError("events", errors.New("connection refused"))
	}
	return tr.events[orgUnit+"/"+program], nil
}

func (tr *fakeTracker) OrgUnit(_ context.Context, id string) (event.OrgUnit, error) {
	ou, ok := tr.orgUnits[id]
	if !ok {
		return event.OrgUnit{}, ErrNotFound
	}
	return ou, nil
}

func (tr *fakeTracker) PostEvents(ctx context.Context, events ...event.Event) ([]string, error) {
	if ctx.Err() != nil {
		return nil, core.NewTransportError("posting events", ctx.Err())
	}
	if tr.postErr != nil {
		return nil, tr.postErr
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	ids := make([]string, 0, len(events))
	for _, e := range events {
		if tr.rejected[e.OrgUnit] {
			return nil, core.NewTransportError("posting events", errors.New("timeout"))
		}
	}
	for _, e := range events {
		tr.posted = append(tr.posted, e)
		ids = append(ids, "evt"+e.OrgUnit)
	}
	return ids, nil
}

type fakeRepo struct {
	pending   map[string]PendingSubmission
	saveErr   error
	updateErr error
}

func (r *fakeRepo) SavePending(ctx context.Context, p PendingSubmission) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if r.saveErr != nil {
		return r.saveErr
	}
	r.pending[p.ID] = p
	return nil
}

func (r *fakeRepo) QueryPending(context.Context) ([]PendingSubmission, error) {
	out := make([]PendingSubmission, 0, len(r.pending))
	for _, p := range r.pending {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeRepo) UpdatePending(ctx context.Context, p PendingSubmission) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if r.updateErr != nil {
		return r.updateErr
	}
	if _, ok := r.pending[p.ID]; !ok {
		return ErrPendingNotFound
	}
	r.pending[p.ID] = p
	return nil
}

func (r *fakeRepo) DeletePending(ctx context.Context, ids ...string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	for _, id := range ids {
		delete(r.pending, id)
	}
	return nil
}

type fakeMailer struct {
	sent []*core.EmailMessage
}

func (m *fakeMailer) SendMessages(messages ...*core.EmailMessage) error {
	for _, msg := range messages {
		if err := msg.Render(); err != nil {
			return err
		}
		m.sent = append(m.sent, msg)
	}
	return nil
}

var (
	testNow = time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

	minToilets = 2.0
	testProf   = &profile.Profile{
		Programs:   profile.Programs{Resources: "resProg", Visits: "visProg"},
		Categories: []string{"toilets", "seats"},
		Fields:     event.FieldMap{"deToilets": "toilets", "deSeats": "seats"},
		Standards:  []standard.Standard{{Name: "Toilets", Category: "toilets", Minimum: &minToilets}},
	}
)

func resEvent(orgUnit, date, toilets, seats string) event.Event {
	return event.Event{
		OrgUnit:    orgUnit,
		Program:    "resProg",
		OccurredAt: date,
		DataValues: []event.DataValue{{DataElement: "deToilets", Value: toilets}, {DataElement: "deSeats", Value: seats}},
	}
}

func visEvent(orgUnit, date string) event.Event {
	return event.Event{OrgUnit: orgUnit, Program: "visProg", OccurredAt: date}
}

func newTestTracker() *fakeTracker {
	cluster := event.OrgUnit{
		ID:   "c1",
		Name: "Kibera",
		Children: []event.OrgUnit{
			{ID: "s1", Name: "Alpha", Coordinates: []float64{36.78, -1.31}},
			{ID: "s2", Name: "Bravo"},
			{ID: "s3", Name: "Charlie"},
		},
	}
	return &fakeTracker{
		orgUnits: map[string]event.OrgUnit{
			"c1": cluster,
			"s1": {ID: "s1", Name: "Alpha", Parent: &event.OrgUnit{ID: "c1"}},
			"s2": {ID: "s2", Name: "Bravo", Parent: &event.OrgUnit{ID: "c1"}},
			"s9": {ID: "s9", Name: "Orphan"},
		},
		events: map[string][]event.Event{
			"s1/resProg": {
				resEvent("s1", "2024-02-05", "1", "100"),
				resEvent("s1", "2024-02-20", "3", "120"),
				resEvent("s1", "2024-03-10", "1", "120"),
				resEvent("s1", "not a date", "9", "9"),
			},
			"s2/resProg": {resEvent("s2", "2024-02-11", "1", "140")},
			"s9/resProg": {resEvent("s9", "2024-01-11", "4", "40")},
			"s1/visProg": {visEvent("s1", "2024-06-01"), visEvent("s1", "2024-01-15"), visEvent("s1", "2024-02-02")},
			"s2/visProg": {visEvent("s2", "2023-11-01")},
		},
		failing: map[string]bool{},
	}
}

func newTestService(t *testing.T, tr *fakeTracker) (*service, *fakeRepo, *fakeMailer) {
	repo := &fakeRepo{pending: make(map[string]PendingSubmission)}
	mailer := &fakeMailer{}
	svc, err := NewService(Options{
		Tracker:        tr,
		Repo:           repo,
		Profile:        testProf,
		MailSvc:        mailer,
		Logger:         nopLogger{},
		Validate:       newTestValidator(),
		MaxConcurrency: 2,
	})
	require.NoError(t, err)
	s := svc.(*service)
	s.nowFunc = func() time.Time { return testNow }
	return s, repo, mailer
}

func TestNewService(t *testing.T) {
	_, err := NewService(Options{})
	assert.Error(t, err)

	opts := Options{Tracker: &fakeTracker{}, Repo: &fakeRepo{}, Profile: testProf, Logger: nopLogger{}, Validate: newTestValidator(), MaxConcurrency: -1}
	_, err = NewService(opts)
	assert.Equal(t, errNoConcurrencyArg, err)

	opts.MaxConcurrency = 0
	svc, err := NewService(opts)
	require.NoError(t, err)
	assert.Equal(t, defaultMaxConcurrency, svc.(*service).maxConcurrency)
}

func TestService_SchoolResources(t *testing.T) {
	svc, _, _ := newTestService(t, newTestTracker())

	dash, err := svc.SchoolResources(context.Background(), "s1")
	require.NoError(t, err)

	assert.Equal(t, "s1", dash.School.ID)
	require.NotNil(t, dash.Cluster)
	assert.Equal(t, "Kibera", dash.Cluster.Name)
	assert.Equal(t, 1, dash.Skipped)
	assert.Empty(t, dash.Incomplete)

	assert.Equal(t, []string{"2024-02", "2024-03"}, dash.Series.Months)
	seats := dash.Series.Categories["seats"]
	assert.Equal(t, []float64{120, 120}, seats.Values)
	// Feb: every cluster event counts (100, 120, 140); Mar: s1 only
	assert.Equal(t, []float64{120, 120}, seats.ClusterMean)
	assert.Equal(t, []bool{false, false}, seats.Fallback)

	require.NotNil(t, dash.Latest)
	assert.Equal(t, "2024-03", dash.Latest.Month)
	require.Len(t, dash.Compliance, 1)
	assert.False(t, dash.Compliance[0].Met) // 1 toilet in March
}

func TestService_SchoolResources_noCluster(t *testing.T) {
	svc, _, _ := newTestService(t, newTestTracker())

	dash, err := svc.SchoolResources(context.Background(), "s9")
	require.NoError(t, err)
	assert.Nil(t, dash.Cluster)
	assert.Equal(t, []float64{40}, dash.Series.Categories["seats"].ClusterMean)
	assert.True(t, dash.Compliance[0].Met)
}

func TestService_SchoolResources_unknownSchool(t *testing.T) {
	svc, _, _ := newTestService(t, newTestTracker())

	_, err := svc.SchoolResources(context.Background(), "nope")
	assert.Equal(t, ErrNotFound, errors.Cause(err))
}

func TestService_ClusterStatistics(t *testing.T) {
	tr := newTestTracker()
	tr.failing["s3"] = true
	svc, _, _ := newTestService(t, tr)

	dash, err := svc.ClusterStatistics(context.Background(), "c1")
	require.NoError(t, err)

	assert.Equal(t, 3, dash.Schools)
	assert.Equal(t, []string{"s3"}, dash.Incomplete)
	assert.Equal(t, 1, dash.Skipped)
	assert.Equal(t, []string{"2024-02", "2024-03"}, dash.Months)

	feb := dash.Statistics["2024-02"]["seats"]
	assert.Equal(t, 3, feb.N)
	assert.Equal(t, 120.0, feb.Mean)
	assert.Equal(t, 16.33, feb.StdDev)
	assert.Equal(t, 103.67, feb.Lower)
	assert.Equal(t, 136.33, feb.Upper)
}

func TestService_ClusterStatistics_cancelled(t *testing.T) {
	svc, _, _ := newTestService(t, newTestTracker())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := svc.tracker.(*fakeTracker)
	for id := range tr.orgUnits {
		tr.failing[id] = true
	}
	_, err := svc.ClusterStatistics(ctx, "c1")
	assert.Error(t, err)
}

func TestService_SchoolVisits(t *testing.T) {
	svc, _, _ := newTestService(t, newTestTracker())

	dash, err := svc.SchoolVisits(context.Background(), "s1")
	require.NoError(t, err)

	assert.Len(t, dash.Monthly, 3)
	assert.Equal(t, "2024-01", dash.Monthly[0].Month)
	require.Len(t, dash.Quarterly, 1)
	assert.Equal(t, 3, dash.Quarterly[0].Total)
	assert.Equal(t, 29, dash.Recency.DaysSince)
	assert.False(t, dash.Recency.IsOverdue)
}

func TestService_VisitPlan(t *testing.T) {
	tr := newTestTracker()
	svc, _, _ := newTestService(t, tr)

	plan, err := svc.VisitPlan(context.Background(), "c1")
	require.NoError(t, err)

	require.Len(t, plan.Schools, 3)
	assert.Equal(t, "s3", plan.Schools[0].OrgUnit) // never visited
	assert.Equal(t, visit.NeverVisited, plan.Schools[0].DaysSince)
	assert.Equal(t, "s2", plan.Schools[1].OrgUnit)
	assert.Equal(t, visit.SeveritySeverelyOverdue, plan.Schools[1].Severity)
	assert.Equal(t, "s1", plan.Schools[2].OrgUnit)
	assert.Equal(t, 2, plan.Overdue)
	assert.Equal(t, visit.OverdueAfterDays, plan.OverdueAfterDays)

	// only s1 has coordinates
	require.Len(t, plan.Markers, 1)
	assert.Equal(t, "s1", plan.Markers[0].OrgUnit)

	t.Run("failing school is left out", func(t *testing.T) {
		tr.failing["s3"] = true
		plan, err := svc.VisitPlan(context.Background(), "c1")
		require.NoError(t, err)
		assert.Len(t, plan.Schools, 2)
		assert.Equal(t, 1, plan.Overdue)
		assert.Equal(t, []string{"s3"}, plan.Incomplete)
	})
}

func TestService_NotifyOverdue(t *testing.T) {
	svc, _, mailer := newTestService(t, newTestTracker())
	to := mail.Address{Name: "Head", Address: "head@test.test"}

	plan, err := svc.NotifyOverdue(context.Background(), "c1", to)
	require.NoError(t, err)
	assert.Equal(t, 2, plan.Overdue)

	require.Len(t, mailer.sent, 1)
	msg := mailer.sent[0]
	assert.Equal(t, []mail.Address{to}, msg.To)
	assert.Contains(t, msg.Subject, "Kibera")
	assert.Contains(t, msg.TextContent, "Charlie: never visited")
	assert.Contains(t, msg.TextContent, "Bravo: last visited 2023-11-01")
	assert.False(t, strings.Contains(msg.TextContent, "Alpha"))
}

func TestService_Submit(t *testing.T) {
	ni := NewInspection{OrgUnit: "s1", Program: "resProg", OccurredAt: "2024-06-01", Values: map[string]string{"deSeats": "10"}}

	t.Run("submitted", func(t *testing.T) {
		tr := newTestTracker()
		svc, repo, _ := newTestService(t, tr)

		sub, err := svc.Submit(context.Background(), ni)
		require.NoError(t, err)
		assert.False(t, sub.Pending)
		assert.Equal(t, "evts1", sub.EventID)
		assert.Len(t, tr.posted, 1)
		assert.Empty(t, repo.pending)
	})

	t.Run("invalid", func(t *testing.T) {
		tr := newTestTracker()
		svc, _, _ := newTestService(t, tr)

		_, err := svc.Submit(context.Background(), NewInspection{OrgUnit: "s1"})
		assert.Error(t, err)
		assert.Empty(t, tr.posted)
	})

	t.Run("rejected", func(t *testing.T) {
		tr := newTestTracker()
		tr.postErr = errors.New("conflict")
		svc, repo, _ := newTestService(t, tr)

		_, err := svc.Submit(context.Background(), ni)
		assert.Error(t, err)
		assert.Empty(t, repo.pending)
	})

	t.Run("unreachable", func(t *testing.T) {
		tr := newTestTracker()
		tr.postErr = core.NewTransportError("post events", errors.New("timeout"))
		svc, repo, _ := newTestService(t, tr)

		sub, err := svc.Submit(context.Background(), ni)
		require.NoError(t, err)
		assert.True(t, sub.Pending)
		require.Contains(t, repo.pending, sub.PendingID)

		p := repo.pending[sub.PendingID]
		assert.Equal(t, 1, p.Attempts)
		assert.Equal(t, "s1", p.Event.OrgUnit)
		assert.Equal(t, testNow, p.CreatedAt)
	})

	t.Run("unreachable and store down", func(t *testing.T) {
		tr := newTestTracker()
		tr.postErr = core.NewTransportError("post events", errors.New("timeout"))
		svc, repo, _ := newTestService(t, tr)
		repo.saveErr = errors.New("connection refused")

		_, err := svc.Submit(context.Background(), ni)
		require.Error(t, err)
		assert.True(t, core.IsShutdown(err))
	})

	t.Run("client gone", func(t *testing.T) {
		tr := newTestTracker()
		svc, repo, _ := newTestService(t, tr)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := svc.Submit(ctx, ni)
		assert.Equal(t, context.Canceled, err)
		assert.False(t, core.IsShutdown(err))
		assert.Empty(t, repo.pending)
	})

	t.Run("store ignores request cancellation", func(t *testing.T) {
		tr := newTestTracker()
		tr.postErr = core.NewTransportError("post events", errors.New("timeout"))
		svc, repo, _ := newTestService(t, tr)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		svc.repo = cancelOnSave{fakeRepo: repo, cancel: cancel}

		sub, err := svc.Submit(ctx, ni)
		require.NoError(t, err)
		assert.True(t, sub.Pending)
		assert.Contains(t, repo.pending, sub.PendingID)
	})
}

// cancelOnSave cancels the request right before saving.
type cancelOnSave struct {
	*fakeRepo
	cancel context.CancelFunc
}

func (r cancelOnSave) SavePending(ctx context.Context, p PendingSubmission) error {
	r.cancel()
	return r.fakeRepo.SavePending(ctx, p)
}

func TestService_ResubmitPending(t *testing.T) {
	tr := newTestTracker()
	svc, repo, _ := newTestService(t, tr)
	repo.pending["p1"] = PendingSubmission{ID: "p1", Event: resEvent("s1", "2024-06-01", "1", "1"), Attempts: 1}
	repo.pending["p2"] = PendingSubmission{ID: "p2", Event: resEvent("s2", "2024-06-01", "1", "1"), Attempts: 1}

	down := newTestTracker()
	down.postErr = core.NewTransportError("post events", errors.New("timeout"))

	res, err := svc.ResubmitPending(context.Background(), down)
	require.NoError(t, err)
	assert.Equal(t, ResubmitResult{Failed: 2}, res)
	assert.Equal(t, 2, repo.pending["p1"].Attempts)
	assert.Equal(t, testNow, repo.pending["p1"].UpdatedAt)

	res, err = svc.ResubmitPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ResubmitResult{Submitted: 2}, res)
	assert.Empty(t, repo.pending)
	assert.Len(t, tr.posted, 2)
}

func TestService_ResubmitPending_partialFailure(t *testing.T) {
	newPending := func() map[string]PendingSubmission {
		return map[string]PendingSubmission{
			"p1": {ID: "p1", Event: resEvent("s1", "2024-06-01", "1", "1"), Attempts: 1},
			"p2": {ID: "p2", Event: resEvent("s2", "2024-06-01", "1", "1"), Attempts: 1},
		}
	}

	t.Run("update fails", func(t *testing.T) {
		tr := newTestTracker()
		tr.rejected = map[string]bool{"s2": true}
		svc, repo, _ := newTestService(t, tr)
		repo.pending = newPending()
		repo.updateErr = errors.New("connection reset")

		for i := 0; i < 3; i++ {
			res, err := svc.ResubmitPending(context.Background())
			require.Error(t, err)
			assert.Equal(t, 1, res.Failed)
		}
		assert.Len(t, tr.posted, 1)
		assert.NotContains(t, repo.pending, "p1")
		assert.Contains(t, repo.pending, "p2")
	})

	t.Run("cancelled", func(t *testing.T) {
		tr := newTestTracker()
		svc, repo, _ := newTestService(t, tr)
		repo.pending = newPending()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		res, err := svc.ResubmitPending(ctx)
		assert.Equal(t, context.Canceled, err)
		assert.Equal(t, ResubmitResult{}, res)
		assert.Len(t, repo.pending, 2)
		assert.Empty(t, tr.posted)
	})
}

func TestNewInspection_Validate(t *testing.T) {
	validate := newTestValidator()

	tests := []struct {
		name       string
		ni         NewInspection
		wantFields []string
	}{
		{
			name: "valid",
			ni:   NewInspection{OrgUnit: " s1 ", OccurredAt: "2024-06-01", Values: map[string]string{"deSeats": " 12 "}},
		},
		{
			name:       "missing fields",
			ni:         NewInspection{},
			wantFields: []string{"org_unit", "occurred_at", "values"},
		},
		{
			name:       "bad date and value",
			ni:         NewInspection{OrgUnit: "s1", OccurredAt: "01/06/2024", Values: map[string]string{"deSeats": "lots"}},
			wantFields: []string{"occurred_at", "values[deSeats]"},
		},
		{
			name:       "future date",
			ni:         NewInspection{OrgUnit: "s1", OccurredAt: "2024-07-01", Values: map[string]string{"deSeats": "1"}},
			wantFields: []string{"occurred_at"},
		},
		{
			name:       "unknown program and data element",
			ni:         NewInspection{OrgUnit: "s1", Program: "x", OccurredAt: "2024-06-01", Values: map[string]string{"deX": "1"}},
			wantFields: []string{"program"},
		},
		{
			name:       "unknown data element",
			ni:         NewInspection{OrgUnit: "s1", OccurredAt: "2024-06-01", Values: map[string]string{"deX": "1"}},
			wantFields: []string{"values.deX"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ni.Validate(validate, testProf, testNow)
			if len(tt.wantFields) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ElementsMatch(t, tt.wantFields, errorFields(err))
		})
	}
}

func TestNewInspection_Event(t *testing.T) {
	ni := NewInspection{OrgUnit: "s1", Program: "resProg", OccurredAt: "2024-06-01", Values: map[string]string{"deToilets": "2", "deSeats": "10"}}
	e := ni.Event()

	assert.Equal(t, "s1", e.OrgUnit)
	assert.Equal(t, []event.DataValue{{DataElement: "deSeats", Value: "10"}, {DataElement: "deToilets", Value: "2"}}, e.DataValues)
}
