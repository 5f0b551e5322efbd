package workflow

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/browser"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/extract"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/failure"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/session"
	"go.uber.org/zap"
)

// CauseListInitRequest selects a court and date. SessionID is optional.
type CauseListInitRequest struct {
	SessionID    string `json:"session_id,omitempty"`
	State        string `json:"state"`
	District     string `json:"district"`
	CourtComplex string `json:"court_complex"`
	CourtName    string `json:"court_name"`
	Date         string `json:"date"`
}

type CauseListInitResult struct {
	SessionID    string `json:"session_id"`
	CaptchaImage []byte `json:"captcha_image"`
}

type CauseListSubmitRequest struct {
	SessionID string `json:"session_id"`
	Captcha   string `json:"captcha"`
	CaseType  string `json:"case_type,omitempty"`
}

type CauseListResult struct {
	SessionID    string     `json:"session_id"`
	CaseType     CaseType   `json:"case_type"`
	DocumentPath string     `json:"document_path"`
	Rows         [][]string `json:"rows"`
}

func (r CauseListInitRequest) validate() error {
	if r.SessionID != "" {
		if err := validateSessionID(r.SessionID); err != nil {
			return err
		}
	}
	for _, sel := range causeListSelections {
		if strings.TrimSpace(sel.value(r)) == "" {
			return &failure.Error{Kind: failure.InvalidRequest, Field: sel.field, Message: sel.field + " is required"}
		}
	}
	if strings.TrimSpace(r.Date) == "" {
		return &failure.Error{Kind: failure.InvalidRequest, Field: "date", Message: "date is required"}
	}
	return nil
}

// InitCauseList opens a session, drives the dependent court selections and
// the date, and stops at the captcha gate.
func (svc *Service) InitCauseList(ctx context.Context, req CauseListInitRequest) (res *CauseListInitResult, err error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	s, err := svc.store.Create(ctx, session.CauseList, req.SessionID, session.Params{
		State:        req.State,
		District:     req.District,
		CourtComplex: req.CourtComplex,
		CourtName:    req.CourtName,
		Date:         req.Date,
	})
	if err != nil {
		return nil, err
	}
	defer svc.finish(s, &err)
	h := s.Handle()

	if err := h.Navigate(ctx, svc.portal.CauseListURL()); err != nil {
		return nil, stepErr(err, "cause list page")
	}

	for _, sel := range causeListSelections {
		if err := h.WaitFor(ctx, sel.selector, browser.Clickable, svc.elemWait); err != nil {
			return nil, stepErr(err, sel.field+" selector")
		}
		if err := h.SelectByText(ctx, sel.selector, strings.TrimSpace(sel.value(req)), svc.elemWait); err != nil {
			if errors.Is(err, browser.ErrNotFound) || errors.Is(err, browser.ErrTimeout) {
				return nil, failure.ForField(failure.SelectionNotFound, sel.field, err)
			}
			return nil, stepErr(err, sel.field+" selector")
		}
	}

	// The portal validates the date itself; it is entered verbatim.
	if err := h.WaitFor(ctx, selCauseDate, browser.Visible, svc.elemWait); err != nil {
		return nil, stepErr(err, "date input")
	}
	if err := h.Fill(ctx, selCauseDate, req.Date); err != nil {
		return nil, stepErr(err, "date input")
	}

	if err := h.WaitFor(ctx, selCaptchaImage, browser.Present, svc.elemWait); err != nil {
		return nil, stepErr(err, "captcha image")
	}
	img, err := h.Screenshot(ctx, selCaptchaImage)
	if err != nil {
		return nil, stepErr(err, "captcha image")
	}
	s.Transition(session.AwaitCaptcha)
	svc.log.Info("cause list captcha issued", zap.String("session_id", s.ID))
	return &CauseListInitResult{SessionID: s.ID, CaptchaImage: img}, nil
}

// SubmitCauseList fills the captcha, requests the cause list for the case
// type and renders the result table to a PDF. The session is released on return.
func (svc *Service) SubmitCauseList(ctx context.Context, req CauseListSubmitRequest) (res *CauseListResult, err error) {
	s, err := svc.acquireAt(ctx, req.SessionID, session.CauseList)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Captcha) == "" {
		svc.store.Yield(s)
		return nil, failure.New(failure.InvalidRequest, "captcha is required")
	}
	caseType, control, err := ResolveCaseType(req.CaseType)
	if err != nil {
		svc.store.Yield(s)
		return nil, err
	}
	defer svc.finish(s, &err)
	h := s.Handle()

	s.Transition(session.Submitting)
	if err := h.WaitFor(ctx, selCauseCaptcha, browser.Present, svc.elemWait); err != nil {
		return nil, stepErr(err, "captcha input")
	}
	if err := h.Fill(ctx, selCauseCaptcha, req.Captcha); err != nil {
		return nil, stepErr(err, "captcha input")
	}

	if h.Has(ctx, selErrorOverlay) {
		if err := h.Click(ctx, selErrorOverlay); err != nil {
			svc.log.Debug("could not dismiss validation overlay", zap.String("session_id", s.ID), zap.Error(err))
		}
	}

	if !h.Has(ctx, control) {
		return nil, failure.New(failure.CaseTypeNotFound, "no %s cause list control on the page", caseType)
	}
	if err := h.Click(ctx, control); err != nil {
		return nil, stepErr(err, string(caseType)+" cause list control")
	}

	s.Transition(session.Rendering)
	if err := h.WaitFor(ctx, selCauseTable, browser.Present, svc.resultWait); err != nil {
		return nil, resultErr(err, failure.CauseListNotFound, "cause list table")
	}
	markup, err := h.Markup(ctx)
	if err != nil {
		return nil, stepErr(err, "cause list page")
	}
	table, ok := extract.ExtractTable(markup, causeListTableID)
	if !ok {
		return nil, failure.New(failure.CauseListNotFound, "cause list not found")
	}
	rows := extract.ExtractTableRows(markup, causeListTableID)

	path := filepath.Join(svc.outputDir, svc.artifactName(s.ID, "cause_list.pdf"))
	if err := svc.renderer.RenderPDF(ctx, table, path); err != nil {
		return nil, failure.Wrap(failure.RenderFailure, err, "could not render cause list")
	}

	s.Update(func(r *session.Results) {
		r.DocumentPath = path
		r.Rows = rows
	})
	s.Transition(session.Complete)
	svc.log.Info("cause list rendered",
		zap.String("session_id", s.ID),
		zap.String("case_type", string(caseType)),
		zap.Int("rows", len(rows)),
		zap.String("path", path))
	return &CauseListResult{SessionID: s.ID, CaseType: caseType, DocumentPath: path, Rows: rows}, nil
}
