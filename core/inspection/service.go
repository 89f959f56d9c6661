package inspection

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/ukaguzi/core"
	"github.com/trezcool/ukaguzi/core/aggregate"
	"github.com/trezcool/ukaguzi/core/event"
	"github.com/trezcool/ukaguzi/core/profile"
	"github.com/trezcool/ukaguzi/core/standard"
	"github.com/trezcool/ukaguzi/core/visit"
)

var (
	// errors
	ErrNotFound         = errors.New("not found")
	ErrInvalidCreds     = errors.New("invalid credentials")
	ErrNoCluster        = errors.New("school does not belong to a cluster")
	ErrPendingNotFound  = errors.New("pending submission not found")
	errNoConcurrencyArg = errors.New("max concurrency must be positive")
)

const defaultMaxConcurrency = 8

type (
	// Tracker is the remote tracked-event API.
	Tracker interface {
		Events(ctx context.Context, orgUnit, program string) ([]event.Event, error)
		OrgUnit(ctx context.Context, id string) (event.OrgUnit, error)
		// PostEvents returns the ids the tracker assigned to the events.
		PostEvents(ctx context.Context, events ...event.Event) ([]string, error)
	}

	// Authenticator checks an inspector's own credentials against the tracker.
	Authenticator interface {
		Me(ctx context.Context, username, password string) (Inspector, error)
	}

	Repository interface {
		SavePending(ctx context.Context, p PendingSubmission) error
		QueryPending(ctx context.Context) ([]PendingSubmission, error)
		UpdatePending(ctx context.Context, p PendingSubmission) error
		DeletePending(ctx context.Context, ids ...string) error
	}

	Service interface {
		Authenticate(ctx context.Context, username, password string) (Inspector, error)
		SchoolResources(ctx context.Context, schoolID string) (ResourceDashboard, error)
		ClusterStatistics(ctx context.Context, clusterID string) (ClusterDashboard, error)
		SchoolVisits(ctx context.Context, schoolID string) (VisitsDashboard, error)
		VisitPlan(ctx context.Context, clusterID string) (VisitPlan, error)
		NotifyOverdue(ctx context.Context, clusterID string, to ...mail.Address) (VisitPlan, error)
		Submit(ctx context.Context, ni NewInspection) (Submission, error)
		QueryPending(ctx context.Context) ([]PendingSubmission, error)
		// ResubmitPending retries every pending submission, through via[0] when given.
		ResubmitPending(ctx context.Context, via ...Tracker) (ResubmitResult, error)
	}

	Options struct {
		Tracker        Tracker
		Authenticator  Authenticator
		Repo           Repository
		Profile        *profile.Profile
		MailSvc        core.EmailService
		Logger         core.Logger
		Validate       *validator.Validate
		MaxConcurrency int
	}

	service struct {
		tracker        Tracker
		auth           Authenticator
		repo           Repository
		profile        *profile.Profile
		mailSvc        core.EmailService
		logger         core.Logger
		validate       *validator.Validate
		maxConcurrency int
		nowFunc        func() time.Time // mockable
	}
)

var _ Service = (*service)(nil)

func NewService(opts Options) (Service, error) {
	if opts.Tracker == nil || opts.Repo == nil || opts.Profile == nil || opts.Logger == nil || opts.Validate == nil {
		return nil, errors.New("tracker, repository, profile, logger and validator are required")
	}
	if opts.MaxConcurrency < 0 {
		return nil, errNoConcurrencyArg
	}
	if opts.MaxConcurrency == 0 {
		opts.MaxConcurrency = defaultMaxConcurrency
	}
	return &service{
		tracker:        opts.Tracker,
		auth:           opts.Authenticator,
		repo:           opts.Repo,
		profile:        opts.Profile,
		mailSvc:        opts.MailSvc,
		logger:         opts.Logger,
		validate:       opts.Validate,
		maxConcurrency: opts.MaxConcurrency,
		nowFunc:        time.Now,
	}, nil
}

func (svc *service) Authenticate(ctx context.Context, username, password string) (Inspector, error) {
	if svc.auth == nil {
		return Inspector{}, errors.New("authentication is not configured")
	}
	return svc.auth.Me(ctx, core.CleanString(username), password)
}

// fetchResult holds the events of a set of schools; failed lists the schools that could not be fetched.
type fetchResult struct {
	events map[string][]event.Event
	failed []string
}

// fetchAll fetches the events of every school concurrently. A school that fails is logged and
// reported in failed; only a cancelled ctx fails the whole fetch.
func (svc *service) fetchAll(ctx context.Context, schools []event.OrgUnit, program string) (fetchResult, error) {
	res := fetchResult{events: make(map[string][]event.Event, len(schools))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(svc.maxConcurrency)
	for _, school := range schools {
		school := school
		g.Go(func() error {
			events, err := svc.tracker.Events(gctx, school.ID, program)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				svc.logger.Warn(fmt.Sprintf("fetching events of %s: %v", school.ID, err), err)
				mu.Lock()
				res.failed = append(res.failed, school.ID)
				mu.Unlock()
				return nil
			}
			mu.Lock()
			res.events[school.ID] = events
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fetchResult{}, errors.Wrap(err, "fetching cluster events")
	}
	sort.Strings(res.failed)
	return res, nil
}

// flatten returns the valid events of every school and the number of events without a usable date.
func (svc *service) flatten(events map[string][]event.Event) ([]event.Event, int) {
	var all []event.Event
	var skipped int
	for _, evs := range events {
		valid, invalid := event.Partition(evs)
		all = append(all, valid...)
		skipped += len(invalid)
	}
	return all, skipped
}

func (svc *service) logSkipped(what string, skipped int) {
	if skipped > 0 {
		svc.logger.Warn(fmt.Sprintf("%s: skipped %d events without a usable date", what, skipped))
	}
}

func (svc *service) orgUnit(ctx context.Context, id string) (event.OrgUnit, error) {
	ou, err := svc.tracker.OrgUnit(ctx, id)
	if err != nil {
		return event.OrgUnit{}, errors.Wrapf(err, "fetching org unit %s", id)
	}
	return ou, nil
}

func (svc *service) SchoolResources(ctx context.Context, schoolID string) (ResourceDashboard, error) {
	school, err := svc.orgUnit(ctx, schoolID)
	if err != nil {
		return ResourceDashboard{}, err
	}
	program := svc.profile.Programs.Resources

	own, err := svc.tracker.Events(ctx, school.ID, program)
	if err != nil {
		return ResourceDashboard{}, errors.Wrapf(err, "fetching events of %s", school.ID)
	}
	valid, invalid := event.Partition(own)
	svc.logSkipped(school.ID, len(invalid))

	dash := ResourceDashboard{
		School:     event.OrgUnit{ID: school.ID, Name: school.Name, Coordinates: school.Coordinates},
		Categories: svc.profile.Categories,
		Skipped:    len(invalid),
		Incomplete: []string{},
	}

	// the school's cluster is the comparison population; without one the school is compared to itself
	clusterEvents := valid
	if school.Parent != nil {
		cluster, err := svc.orgUnit(ctx, school.Parent.ID)
		if err != nil {
			return ResourceDashboard{}, err
		}
		dash.Cluster = &event.OrgUnit{ID: cluster.ID, Name: cluster.Name}

		siblings := make([]event.OrgUnit, 0, len(cluster.Children))
		for _, c := range cluster.Children {
			if c.ID != school.ID {
				siblings = append(siblings, c)
			}
		}
		res, err := svc.fetchAll(ctx, siblings, program)
		if err != nil {
			return ResourceDashboard{}, err
		}
		others, skipped := svc.flatten(res.events)
		svc.logSkipped(cluster.ID, skipped)
		clusterEvents = append(others, valid...)
		dash.Incomplete = append(dash.Incomplete, res.failed...)
	}

	buckets := aggregate.Monthly(valid, svc.profile.Fields)
	dash.Series = aggregate.BuildSeries(buckets, aggregate.Cluster(clusterEvents, svc.profile.Fields), svc.profile.Categories)
	if latest, ok := aggregate.Latest(buckets); ok {
		dash.Latest = &latest
	}
	dash.Compliance = standard.Evaluate(buckets, svc.profile.Standards)
	return dash, nil
}

func (svc *service) ClusterStatistics(ctx context.Context, clusterID string) (ClusterDashboard, error) {
	cluster, err := svc.orgUnit(ctx, clusterID)
	if err != nil {
		return ClusterDashboard{}, err
	}
	res, err := svc.fetchAll(ctx, cluster.Children, svc.profile.Programs.Resources)
	if err != nil {
		return ClusterDashboard{}, err
	}
	events, skipped := svc.flatten(res.events)
	svc.logSkipped(cluster.ID, skipped)

	months := aggregate.Cluster(events, svc.profile.Fields)
	return ClusterDashboard{
		Cluster:    event.OrgUnit{ID: cluster.ID, Name: cluster.Name},
		Schools:    len(cluster.Children),
		Months:     months.Months(),
		Statistics: aggregate.Statistics(months),
		Skipped:    skipped,
		Incomplete: append([]string{}, res.failed...),
	}, nil
}

func (svc *service) SchoolVisits(ctx context.Context, schoolID string) (VisitsDashboard, error) {
	school, err := svc.orgUnit(ctx, schoolID)
	if err != nil {
		return VisitsDashboard{}, err
	}
	events, err := svc.tracker.Events(ctx, school.ID, svc.profile.Programs.Visits)
	if err != nil {
		return VisitsDashboard{}, errors.Wrapf(err, "fetching visits of %s", school.ID)
	}
	valid, invalid := event.Partition(events)
	svc.logSkipped(school.ID, len(invalid))

	var last *time.Time
	if ts, ok := event.Latest(valid); ok {
		last = &ts
	}
	return VisitsDashboard{
		School:    event.OrgUnit{ID: school.ID, Name: school.Name},
		Monthly:   aggregate.CountByMonth(valid),
		Quarterly: aggregate.Quarterly(valid),
		Recency:   visit.Classify(last, svc.nowFunc()),
		Skipped:   len(invalid),
	}, nil
}

func (svc *service) VisitPlan(ctx context.Context, clusterID string) (VisitPlan, error) {
	cluster, err := svc.orgUnit(ctx, clusterID)
	if err != nil {
		return VisitPlan{}, err
	}
	res, err := svc.fetchAll(ctx, cluster.Children, svc.profile.Programs.Visits)
	if err != nil {
		return VisitPlan{}, err
	}

	now := svc.nowFunc()
	failed := make(map[string]bool, len(res.failed))
	for _, id := range res.failed {
		failed[id] = true
	}

	plan := VisitPlan{
		Cluster:          event.OrgUnit{ID: cluster.ID, Name: cluster.Name},
		Schools:          make([]visit.Planned, 0, len(cluster.Children)),
		OverdueAfterDays: visit.OverdueAfterDays,
		Incomplete:       append([]string{}, res.failed...),
	}
	for _, school := range cluster.Children {
		if failed[school.ID] { // unknown recency; listing it as never visited would be wrong
			continue
		}
		var last *time.Time
		if ts, ok := event.Latest(res.events[school.ID]); ok {
			last = &ts
		}
		p := visit.Planned{
			OrgUnit:     school.ID,
			Name:        school.Name,
			Coordinates: school.Coordinates,
			Recency:     visit.Classify(last, now),
		}
		if p.IsOverdue {
			plan.Overdue++
		}
		plan.Schools = append(plan.Schools, p)
	}
	visit.SortPlan(plan.Schools)
	plan.Markers = visit.Markers(plan.Schools)
	return plan, nil
}

func (svc *service) NotifyOverdue(ctx context.Context, clusterID string, to ...mail.Address) (VisitPlan, error) {
	if svc.mailSvc == nil {
		return VisitPlan{}, errors.New("email is not configured")
	}
	plan, err := svc.VisitPlan(ctx, clusterID)
	if err != nil {
		return VisitPlan{}, err
	}
	if plan.Overdue == 0 {
		return plan, nil
	}
	msg := &core.EmailMessage{
		To:           to,
		Subject:      fmt.Sprintf("%d schools of %s are due for a visit", plan.Overdue, plan.Cluster.Name),
		TemplateName: "overdue_digest",
		TemplateData: plan,
	}
	if err = svc.mailSvc.SendMessages(msg); err != nil {
		return VisitPlan{}, errors.Wrap(err, "sending overdue digest")
	}
	return plan, nil
}

// Submit validates ni and sends it to the tracker. When the tracker cannot be reached the
// inspection is saved locally and Submission.Pending is set.
func (svc *service) Submit(ctx context.Context, ni NewInspection) (Submission, error) {
	if err := ni.Validate(svc.validate, svc.profile, svc.nowFunc()); err != nil {
		return Submission{}, err
	}
	evt := ni.Event()
	ids, err := svc.tracker.PostEvents(ctx, evt)
	if err == nil {
		sub := Submission{}
		if len(ids) > 0 {
			sub.EventID = ids[0]
		}
		return sub, nil
	}
	if ctx.Err() != nil {
		return Submission{}, ctx.Err()
	}
	if !core.IsTransport(err) {
		return Submission{}, errors.Wrap(err, "submitting inspection")
	}

	now := svc.nowFunc().UTC()
	pending := PendingSubmission{
		ID:        uuid.NewString(),
		Event:     evt,
		Attempts:  1,
		LastError: err.Error(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if sErr := svc.repo.SavePending(context.WithoutCancel(ctx), pending); sErr != nil {
		// the inspection is neither in the tracker nor stored locally
		svc.logger.Error(fmt.Sprintf("saving pending submission: %v", sErr), sErr)
		return Submission{}, core.NewShutdownError(fmt.Sprintf("pending submissions store unavailable: %v (submit error: %v)", sErr, err))
	}
	svc.logger.Warn(fmt.Sprintf("tracker unreachable, inspection of %s saved as %s", evt.OrgUnit, pending.ID), err)
	return Submission{Pending: true, PendingID: pending.ID}, nil
}

func (svc *service) QueryPending(ctx context.Context) ([]PendingSubmission, error) {
	return svc.repo.QueryPending(ctx)
}

func (svc *service) ResubmitPending(ctx context.Context, via ...Tracker) (ResubmitResult, error) {
	tracker := svc.tracker
	if len(via) > 0 && via[0] != nil {
		tracker = via[0]
	}

	pending, err := svc.repo.QueryPending(ctx)
	if err != nil {
		return ResubmitResult{}, errors.Wrap(err, "querying pending submissions")
	}

	// posted events are deleted one by one
	store := context.WithoutCancel(ctx)

	var res ResubmitResult
	for _, p := range pending {
		if _, err := tracker.PostEvents(ctx, p.Event); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed++
			p.Attempts++
			p.LastError = err.Error()
			p.UpdatedAt = svc.nowFunc().UTC()
			if uErr := svc.repo.UpdatePending(store, p); uErr != nil {
				return res, errors.Wrap(uErr, "updating pending submission")
			}
			continue
		}
		if err := svc.repo.DeletePending(store, p.ID); err != nil {
			return res, errors.Wrapf(err, "deleting submitted inspection %s", p.ID)
		}
		res.Submitted++
	}
	return res, nil
}
