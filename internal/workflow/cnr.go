package workflow

import (
	"context"
	"strings"

	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/browser"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/extract"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/failure"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/packager"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/session"
	"go.uber.org/zap"
)

// CNRInitResult is either a captcha challenge or, when the portal served no
// captcha, the finished case status.
type CNRInitResult struct {
	SessionID       string            `json:"session_id"`
	CaptchaRequired bool              `json:"captcha_required"`
	CaptchaImage    []byte            `json:"captcha_image,omitempty"`
	CaseInfo        *extract.CaseInfo `json:"case_info,omitempty"`
	DocumentLinks   []string          `json:"document_links,omitempty"`
	ListedSoon      bool              `json:"listed_soon,omitempty"`
}

// CNRSubmitRequest resumes a CNR session with the solved captcha.
type CNRSubmitRequest struct {
	SessionID string `json:"session_id"`
	Captcha   string `json:"captcha"`
	// DownloadDocuments defaults to true when nil.
	DownloadDocuments *bool `json:"download_documents,omitempty"`
}

// CNRResult is the outcome of a completed CNR search.
type CNRResult struct {
	SessionID       string             `json:"session_id"`
	CaseInfo        extract.CaseInfo   `json:"case_info"`
	DocumentLinks   []string           `json:"document_links"`
	DownloadedFiles []string           `json:"downloaded_files"`
	FailedDownloads []packager.Failure `json:"failed_downloads,omitempty"`
	Archive         string             `json:"archive,omitempty"`
	ListedSoon      bool               `json:"listed_soon"`
}

// InitCNR opens a session, enters the CNR and stops at the captcha gate.
func (svc *Service) InitCNR(ctx context.Context, cnr string) (res *CNRInitResult, err error) {
	cnr = strings.TrimSpace(cnr)
	if cnr == "" {
		return nil, failure.New(failure.InvalidRequest, "CNR is required")
	}

	s, err := svc.store.Create(ctx, session.CNR, "", session.Params{CNR: cnr})
	if err != nil {
		return nil, err
	}
	defer svc.finish(s, &err)
	h := s.Handle()

	if err := h.Navigate(ctx, svc.portal.BaseURL); err != nil {
		return nil, stepErr(err, "portal home page")
	}
	if err := h.WaitFor(ctx, selCNRInput, browser.Visible, svc.elemWait); err != nil {
		return nil, stepErr(err, "CNR input")
	}
	if err := h.Fill(ctx, selCNRInput, cnr); err != nil {
		return nil, stepErr(err, "CNR input")
	}

	if h.Has(ctx, selCaptchaImage) {
		img, err := h.Screenshot(ctx, selCaptchaImage)
		if err != nil {
			return nil, stepErr(err, "captcha image")
		}
		s.Transition(session.AwaitCaptcha)
		svc.log.Info("cnr captcha issued", zap.String("session_id", s.ID))
		return &CNRInitResult{SessionID: s.ID, CaptchaRequired: true, CaptchaImage: img}, nil
	}

	// No captcha served: only trust the page if it still looks like the search form.
	if !h.Has(ctx, selSearchButton) {
		return nil, failure.New(failure.UnexpectedPage, "portal served neither a captcha nor a search control")
	}
	svc.log.Info("cnr captcha absent, searching directly", zap.String("session_id", s.ID))
	s.Transition(session.Submitting)
	if err := h.Click(ctx, selSearchButton); err != nil {
		return nil, stepErr(err, "search control")
	}
	info, links, err := svc.readCaseStatus(ctx, s)
	if err != nil {
		return nil, err
	}
	s.Transition(session.Complete)
	return &CNRInitResult{
		SessionID:     s.ID,
		CaseInfo:      &info,
		DocumentLinks: links,
		ListedSoon:    extract.ListedSoon(info, svc.portalNow()),
	}, nil
}

// SubmitCNR fills the captcha, extracts the case status and optionally
// packages the linked documents. The session is released on return.
func (svc *Service) SubmitCNR(ctx context.Context, req CNRSubmitRequest) (res *CNRResult, err error) {
	s, err := svc.acquireAt(ctx, req.SessionID, session.CNR)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Captcha) == "" {
		svc.store.Yield(s)
		return nil, failure.New(failure.InvalidRequest, "captcha is required")
	}
	defer svc.finish(s, &err)
	h := s.Handle()

	s.Transition(session.Submitting)
	if err := h.Fill(ctx, selCNRCaptcha, req.Captcha); err != nil {
		return nil, stepErr(err, "captcha input")
	}
	if err := h.Click(ctx, selSearchButton); err != nil {
		return nil, stepErr(err, "search control")
	}
	info, links, err := svc.readCaseStatus(ctx, s)
	if err != nil {
		return nil, err
	}

	res = &CNRResult{
		SessionID:       s.ID,
		CaseInfo:        info,
		DocumentLinks:   links,
		DownloadedFiles: []string{},
		ListedSoon:      extract.ListedSoon(info, svc.portalNow()),
	}

	download := req.DownloadDocuments == nil || *req.DownloadDocuments
	if download && len(links) > 0 {
		s.Transition(session.Packaging)
		paths, fails := svc.downloader.DownloadAll(ctx, links, svc.outputDir, s.ID)
		res.FailedDownloads = fails
		if len(paths) > 0 {
			res.DownloadedFiles = paths
		}
		archive, aerr := packager.Archive(paths, svc.outputDir, svc.artifactName(s.ID, "files.zip"))
		if aerr != nil {
			svc.log.Warn("archive failed", zap.String("session_id", s.ID), zap.Error(aerr))
		}
		res.Archive = archive
		s.Update(func(r *session.Results) {
			r.DownloadedFiles = paths
			r.Archive = archive
		})
	}

	s.Transition(session.Complete)
	svc.log.Info("cnr search complete",
		zap.String("session_id", s.ID),
		zap.Int("fields", info.Len()),
		zap.Int("links", len(links)),
		zap.Int("downloaded", len(res.DownloadedFiles)))
	return res, nil
}

// readCaseStatus waits for the result table and extracts from the page.
func (svc *Service) readCaseStatus(ctx context.Context, s *session.Session) (extract.CaseInfo, []string, error) {
	h := s.Handle()
	if err := h.WaitFor(ctx, selCaseStatus, browser.Present, svc.resultWait); err != nil {
		return extract.CaseInfo{}, nil, resultErr(err, failure.TimeoutWaitingForResult, "case status table")
	}
	s.Transition(session.Extracting)
	markup, err := h.Markup(ctx)
	if err != nil {
		return extract.CaseInfo{}, nil, stepErr(err, "result page")
	}
	info := extract.ExtractCaseInfo(markup)
	links := extract.ExtractDocumentLinks(markup, svc.portal.Origin())
	s.Update(func(r *session.Results) {
		r.CaseInfo = info
		r.DocumentLinks = links
	})
	return info, links, nil
}
