package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/extract"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/failure"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/session"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/workflow"
	"go.uber.org/zap"
)

// cnrInitRequest is the body of POST /cnr/init.
type cnrInitRequest struct {
	CNR string `json:"cnr"`
}

// cnrInitResponse is a captcha challenge or, when no captcha was served, the
// finished case status.
type cnrInitResponse struct {
	SessionID       string            `json:"session_id"`
	CaptchaRequired bool              `json:"captcha_required"`
	CaptchaImage    []byte            `json:"captcha_image,omitempty"`
	CaseInfo        *extract.CaseInfo `json:"case_info,omitempty"`
	DocumentLinks   []string          `json:"document_links,omitempty"`
	ListedSoon      *bool             `json:"listed_soon,omitempty"`
}

// cnrSubmitRequest accepts download_pdf from older clients.
type cnrSubmitRequest struct {
	SessionID         string `json:"session_id"`
	Captcha           string `json:"captcha"`
	DownloadDocuments *bool  `json:"download_documents"`
	DownloadPDF       *bool  `json:"download_pdf"`
}

// causeListInitRequest accepts court_complex_code from older clients.
type causeListInitRequest struct {
	SessionID        string `json:"session_id"`
	State            string `json:"state"`
	District         string `json:"district"`
	CourtComplex     string `json:"court_complex"`
	CourtComplexCode string `json:"court_complex_code"`
	CourtName        string `json:"court_name"`
	Date             string `json:"date"`
}

type causeListSubmitRequest struct {
	SessionID string `json:"session_id"`
	Captcha   string `json:"captcha"`
	CaseType  string `json:"case_type"`
}

func bind(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return failure.New(failure.InvalidRequest, "invalid request body")
	}
	return nil
}

// CNRInit starts a case-status search.
// POST /cnr/init
func (h *Handler) CNRInit(c echo.Context) error {
	var req cnrInitRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	res, err := h.svc.InitCNR(c.Request().Context(), req.CNR)
	if err != nil {
		return writeError(c, err)
	}

	resp := cnrInitResponse{
		SessionID:       res.SessionID,
		CaptchaRequired: res.CaptchaRequired,
		CaptchaImage:    res.CaptchaImage,
	}
	if !res.CaptchaRequired {
		resp.CaseInfo = res.CaseInfo
		resp.DocumentLinks = res.DocumentLinks
		if resp.DocumentLinks == nil {
			resp.DocumentLinks = []string{}
		}
		listed := res.ListedSoon
		resp.ListedSoon = &listed
	}
	return c.JSON(http.StatusOK, resp)
}

// CNRSubmit completes a case-status search with the solved captcha.
// POST /cnr/submit
func (h *Handler) CNRSubmit(c echo.Context) error {
	var req cnrSubmitRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	download := req.DownloadDocuments
	if download == nil {
		download = req.DownloadPDF
	}
	res, err := h.svc.SubmitCNR(c.Request().Context(), workflow.CNRSubmitRequest{
		SessionID:         req.SessionID,
		Captcha:           req.Captcha,
		DownloadDocuments: download,
	})
	if err != nil {
		return writeError(c, err)
	}
	for _, f := range res.FailedDownloads {
		h.log.Debug("document not downloaded", zap.String("session_id", res.SessionID), zap.String("url", f.URL), zap.String("reason", f.Reason))
	}
	return c.JSON(http.StatusOK, res)
}

// CauseListInit starts a cause-list request for one court and date.
// POST /causelist/init
func (h *Handler) CauseListInit(c echo.Context) error {
	var req causeListInitRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	courtComplex := req.CourtComplex
	if courtComplex == "" {
		courtComplex = req.CourtComplexCode
	}
	res, err := h.svc.InitCauseList(c.Request().Context(), workflow.CauseListInitRequest{
		SessionID:    req.SessionID,
		State:        req.State,
		District:     req.District,
		CourtComplex: courtComplex,
		CourtName:    req.CourtName,
		Date:         req.Date,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// CauseListSubmit completes a cause-list request and renders it to PDF.
// POST /causelist/submit
func (h *Handler) CauseListSubmit(c echo.Context) error {
	var req causeListSubmitRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	res, err := h.svc.SubmitCauseList(c.Request().Context(), workflow.CauseListSubmitRequest{
		SessionID: req.SessionID,
		Captcha:   req.Captcha,
		CaseType:  req.CaseType,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// ListSessions lists live sessions, oldest first.
// GET /sessions
func (h *Handler) ListSessions(c echo.Context) error {
	sessions := h.svc.Store().List()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

// ListHistory lists finished sessions, newest first.
// GET /history?kind=CNR&limit=20
func (h *Handler) ListHistory(c echo.Context) error {
	if h.history == nil {
		return writeError(c, failure.New(failure.ResultNotFound, "history is disabled"))
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return writeError(c, &failure.Error{Kind: failure.InvalidRequest, Field: "limit", Message: "limit must be a non-negative integer"})
		}
		limit = n
	}
	kind := session.Kind(c.QueryParam("kind"))
	if kind != "" && kind != session.CNR && kind != session.CauseList {
		return writeError(c, &failure.Error{Kind: failure.InvalidRequest, Field: "kind", Message: "kind must be CNR or CAUSE_LIST"})
	}

	outcomes, err := h.history.List(c.Request().Context(), kind, limit)
	if err != nil {
		h.log.Error("history list failed", zap.Error(err))
		return writeError(c, failure.Wrap(failure.Internal, err, "could not read history"))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"outcomes": outcomes,
		"total":    len(outcomes),
	})
}

// GetHistory returns the latest outcome recorded for a session id.
// GET /history/:session_id
func (h *Handler) GetHistory(c echo.Context) error {
	if h.history == nil {
		return writeError(c, failure.New(failure.ResultNotFound, "history is disabled"))
	}
	id := c.Param("session_id")
	outcome, err := h.history.Get(c.Request().Context(), id)
	if err != nil {
		h.log.Error("history lookup failed", zap.String("session_id", id), zap.Error(err))
		return writeError(c, failure.Wrap(failure.Internal, err, "could not read history"))
	}
	if outcome == nil {
		return writeError(c, failure.New(failure.ResultNotFound, "no recorded outcome for session %s", id))
	}
	return c.JSON(http.StatusOK, outcome)
}

// Health returns health status.
// GET /health
func (h *Handler) Health(c echo.Context) error {
	status := "healthy"
	body := map[string]interface{}{
		"version":  h.version,
		"sessions": h.svc.Store().Len(),
	}
	if h.browser != nil {
		connected := h.browser.IsConnected()
		body["browser_connected"] = connected
		if !connected {
			status = "degraded"
		}
	}
	if h.leaks != nil {
		leaks, err := h.leaks.Leaks(c.Request().Context())
		if err != nil {
			h.log.Warn("leak check failed", zap.Error(err))
		} else {
			body["leaked_sessions"] = leaks
			if len(leaks) > 0 {
				status = "degraded"
			}
		}
	}
	body["status"] = status
	return c.JSON(http.StatusOK, body)
}
