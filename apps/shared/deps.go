package shared

import (
	"context"
	"fmt"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/ukaguzi/core"
	"github.com/trezcool/ukaguzi/core/inspection"
	"github.com/trezcool/ukaguzi/core/profile"
	emailsvc "github.com/trezcool/ukaguzi/services/email"
	logsvc "github.com/trezcool/ukaguzi/services/logger"
	"github.com/trezcool/ukaguzi/services/tracker"
	"github.com/trezcool/ukaguzi/storage/cache"
	"github.com/trezcool/ukaguzi/storage/database"
	inmemdb "github.com/trezcool/ukaguzi/storage/database/inmem"
	sqlxrepos "github.com/trezcool/ukaguzi/storage/database/sqlx"
)

// Deps holds the dependencies shared by the API and the admin CLI.
type Deps struct {
	Conf          *core.Config
	Logger        *logsvc.RollbarLogger
	Validate      *validator.Validate
	Translator    ut.Translator
	Profile       *profile.Profile
	Tracker       *tracker.Client
	MailSvc       core.EmailService
	DB            *sqlx.DB // nil when pending submissions are kept in memory
	InspectionSvc inspection.Service

	closers []func() error
}

// Setup builds every dependency from conf. Close must be called once done.
func Setup(ctx context.Context, conf *core.Config, name string) (_ *Deps, err error) {
	deps := &Deps{Conf: conf}
	defer func() {
		if err != nil {
			deps.Close()
		}
	}()

	// set up loggers
	zl, err := logsvc.NewZap(conf)
	if err != nil {
		return nil, errors.Wrap(err, "setting up zap")
	}
	deps.Logger = logsvc.NewRollbarLogger(zl.Named(name), conf)
	deps.closers = append(deps.closers, func() error { deps.Logger.Sync(); return nil })

	deps.Validate = validator.New()
	deps.Translator = core.NewTranslator()
	core.InitValidators(deps.Validate, deps.Translator)

	if deps.Profile, err = profile.Load(conf.ProfilePath); err != nil {
		return nil, errors.Wrapf(err, "loading profile %s", conf.ProfilePath)
	}

	// set up storage
	var repo inspection.Repository
	if conf.Database.InMemory {
		deps.Logger.Warn("pending submissions are kept in memory")
		repo = inmemdb.NewPendingRepository(inmemdb.Open())
	} else {
		if deps.DB, err = setUpDB(ctx, conf); err != nil {
			return nil, errors.Wrap(err, "setting up database")
		}
		deps.closers = append(deps.closers, deps.DB.Close)
		repo = sqlxrepos.NewPendingRepository(deps.DB)
	}

	// set up services
	deps.Tracker = tracker.NewClient(conf.Tracker)
	var tr inspection.Tracker = deps.Tracker
	if conf.Redis.URL != "" && conf.Redis.TTL > 0 {
		rc, err := cache.NewRedis(ctx, conf.Redis.URL)
		if err != nil {
			return nil, errors.Wrap(err, "setting up redis")
		}
		deps.closers = append(deps.closers, rc.Close)
		tr = tracker.NewCached(deps.Tracker, rc, conf.Redis.TTL, deps.Logger)
	}

	if conf.Debug || conf.SendgridApiKey == "" {
		deps.MailSvc = emailsvc.NewConsoleService(conf)
	} else {
		deps.MailSvc = emailsvc.NewSendgridService(conf)
	}

	deps.InspectionSvc, err = inspection.NewService(inspection.Options{
		Tracker:        tr,
		Authenticator:  deps.Tracker,
		Repo:           repo,
		Profile:        deps.Profile,
		MailSvc:        deps.MailSvc,
		Logger:         deps.Logger,
		Validate:       deps.Validate,
		MaxConcurrency: conf.Tracker.MaxConcurrency,
	})
	if err != nil {
		return nil, errors.Wrap(err, "setting up inspection service")
	}

	deps.Logger.Info(fmt.Sprintf("%s initialized : version %q, env %q", name, conf.Build, conf.Env))
	return deps, nil
}

// Close releases the dependencies in reverse order of creation.
func (deps *Deps) Close() {
	for i := len(deps.closers) - 1; i >= 0; i-- {
		if err := deps.closers[i](); err != nil && deps.Logger != nil {
			deps.Logger.Error(fmt.Sprintf("closing dependency: %v", err), err)
		}
	}
	deps.closers = nil
}

func setUpDB(ctx context.Context, conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
