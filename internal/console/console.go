// ABOUTME: Composition root wiring the console's trust-boundary services
// ABOUTME: Builds cookie store, CSRF manager, dispatcher, grants, session, resources

package console

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"

	"github.com/driftline/driftline-console/internal/config"
	"github.com/driftline/driftline-console/internal/csrf"
	"github.com/driftline/driftline-console/internal/dispatch"
	"github.com/driftline/driftline-console/internal/journal"
	"github.com/driftline/driftline-console/internal/platform"
	"github.com/driftline/driftline-console/internal/resources"
	"github.com/driftline/driftline-console/internal/session"
	"github.com/driftline/driftline-console/internal/stepup"
)

// Console owns the wired service singletons for one browsing session. Each
// service is injected rather than global so tests can substitute fakes.
type Console struct {
	Config     *config.Config
	Dispatcher *dispatch.Dispatcher
	CSRF       *csrf.Manager
	Grants     *stepup.Manager
	Session    *session.Store
	Resources  *resources.Client

	journalStore journal.Store
	logger       *slog.Logger
}

// New wires a Console from configuration.
func New(cfg *config.Config) (*Console, error) {
	logger := slog.Default().With("component", "console")

	// The jar carries the opaque session cookie at the transport level;
	// client code never reads it.
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	httpClient := &http.Client{Jar: jar, Timeout: cfg.HTTP.Timeout}

	cookies := platform.NewMemoryCookies()
	clock := platform.SystemClock{}
	sched := platform.SystemScheduler{}

	csrfMgr := csrf.New(cookies, cfg.API.CSRFCookie, httpClient, cfg.API.Origin, nil)

	var recorder dispatch.Recorder
	var journalStore journal.Store
	if cfg.Journal.Path != "" {
		js, err := journal.NewSQLiteStore(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("opening mutation journal: %w", err)
		}
		journalStore = js
		recorder = journal.NewRecorder(js)
	}

	dispatcher, err := dispatch.New(dispatch.Options{
		Origins:  cfg.Origins(),
		Client:   httpClient,
		Cookies:  cookies,
		CSRF:     csrfMgr,
		Recorder: recorder,
		Clock:    clock,
	})
	if err != nil {
		return nil, err
	}

	grants := stepup.New(dispatcher, clock, sched, nil)
	sess := session.New(dispatcher, grants, nil)
	grants.SetIdentitySource(sess)

	return &Console{
		Config:       cfg,
		Dispatcher:   dispatcher,
		CSRF:         csrfMgr,
		Grants:       grants,
		Session:      sess,
		Resources:    resources.NewClient(dispatcher, grants, clock, nil),
		journalStore: journalStore,
		logger:       logger,
	}, nil
}

// Journal returns the mutation journal store, or nil when journaling is
// disabled.
func (c *Console) Journal() journal.Store {
	return c.journalStore
}

// Shutdown clears session state, cancels the step-up expiry timer, and
// closes the journal.
func (c *Console) Shutdown() {
	c.Session.Shutdown()
	if c.journalStore != nil {
		if err := c.journalStore.Close(); err != nil {
			c.logger.Warn("closing journal", "error", err)
		}
	}
}
