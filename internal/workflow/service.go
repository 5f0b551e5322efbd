// Package workflow drives the two captcha-gated retrieval procedures
// (case status by CNR, cause list by court) on top of the session store.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/browser"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/config"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/failure"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/packager"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/session"
	"go.uber.org/zap"
)

// Downloader fetches document links into a directory.
type Downloader interface {
	DownloadAll(ctx context.Context, links []string, destDir, prefix string) ([]string, []packager.Failure)
}

// Service runs workflow steps. It is safe for concurrent use; steps on the
// same session are serialized by the store.
type Service struct {
	store      *session.Store
	downloader Downloader
	renderer   browser.Renderer
	portal     config.PortalConfig
	loc        *time.Location
	elemWait   time.Duration
	resultWait time.Duration
	outputDir  string
	log        *zap.Logger
	now        func() time.Time
}

// Deps groups the collaborators of a Service.
type Deps struct {
	Store      *session.Store
	Downloader Downloader
	Renderer   browser.Renderer
	Logger     *zap.Logger
	Now        func() time.Time
}

func NewService(cfg config.Config, deps Deps) *Service {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:      deps.Store,
		downloader: deps.Downloader,
		renderer:   deps.Renderer,
		portal:     cfg.Portal,
		loc:        cfg.Portal.Location(),
		elemWait:   cfg.Browser.WaitTimeout(),
		resultWait: cfg.Browser.ResultWaitTimeout(),
		outputDir:  cfg.Output.Dir,
		log:        log,
		now:        now,
	}
}

// portalNow is the current time in the portal's zone, so "today" matches the court calendar.
func (svc *Service) portalNow() time.Time {
	return svc.now().In(svc.loc)
}

// Store exposes the underlying session store.
func (svc *Service) Store() *session.Store { return svc.store }

// OutputDir is where artifacts are written.
func (svc *Service) OutputDir() string { return svc.outputDir }

var clientSessionID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func validateSessionID(id string) error {
	if !clientSessionID.MatchString(id) {
		return failure.New(failure.InvalidRequest, "session_id must be 1-64 letters, digits, '-' or '_'")
	}
	return nil
}

// finish records err on the session and either releases it (terminal) or
// yields it. A panic still releases the handle before propagating.
func (svc *Service) finish(s *session.Session, errp *error) {
	if r := recover(); r != nil {
		s.Fail(failure.New(failure.Internal, "panic during %s step", s.Kind))
		svc.store.Finish(s)
		panic(r)
	}
	if err := *errp; err != nil {
		s.Fail(err)
		fields := []zap.Field{
			zap.String("session_id", s.ID),
			zap.String("kind", string(s.Kind)),
			zap.String("error_kind", string(failure.KindOf(err))),
			zap.Error(err),
		}
		if field := failure.FieldOf(err); field != "" {
			fields = append(fields, zap.String("field", field))
		}
		svc.log.Warn("workflow step failed", fields...)
	}
	svc.store.Finish(s)
}

// acquireAt takes the session lock and checks it is waiting at the captcha
// gate of the expected workflow. Rejected sessions are yielded untouched.
func (svc *Service) acquireAt(ctx context.Context, id string, kind session.Kind) (*session.Session, error) {
	if id == "" {
		return nil, failure.New(failure.InvalidRequest, "session_id is required")
	}
	s, err := svc.store.Acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Kind != kind {
		svc.store.Yield(s)
		return nil, failure.New(failure.InvalidRequest, "session %s belongs to the %s workflow", id, s.Kind)
	}
	if st := s.State(); st != session.AwaitCaptcha {
		svc.store.Yield(s)
		return nil, failure.New(failure.InvalidRequest, "session %s is in state %s, not awaiting a captcha", id, st)
	}
	return s, nil
}

// stepErr classifies a browser error raised while doing what.
func stepErr(err error, what string) error {
	var fe *failure.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &fe):
		return err
	case errors.Is(err, browser.ErrTimeout):
		return failure.Wrap(failure.TimeoutWaitingForElement, err, "timed out waiting for %s", what)
	case errors.Is(err, browser.ErrNotFound):
		return failure.Wrap(failure.UnexpectedPage, err, "page is missing %s", what)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return failure.Wrap(failure.Internal, err, "request cancelled during %s", what)
	default:
		return failure.Wrap(failure.Internal, err, "browser error during %s", what)
	}
}

// resultErr classifies a wait for a result table; a timeout becomes kind.
func resultErr(err error, kind failure.Kind, what string) error {
	if errors.Is(err, browser.ErrTimeout) {
		return failure.Wrap(kind, err, "%s did not appear", what)
	}
	return stepErr(err, what)
}

func (svc *Service) artifactName(id, suffix string) string {
	return fmt.Sprintf("%s_%s", id, suffix)
}
