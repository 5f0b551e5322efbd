package mcp

import (
	"context"

	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/workflow"
)

// captchaChallenge is returned by the init tools. The image travels as
// separate image content instead of inline base64.
type captchaChallenge struct {
	SessionID       string `json:"session_id"`
	CaptchaRequired bool   `json:"captcha_required"`
	Next            string `json:"next"`
	png             []byte
}

func (c captchaChallenge) CaptchaPNG() []byte { return c.png }

type CNRInitTool struct {
	svc *workflow.Service
}

func (t *CNRInitTool) Name() string { return "cnr-init" }
func (t *CNRInitTool) Description() string {
	return `Start a case-status search by CNR number.

Opens a portal session and enters the CNR. Usually the portal shows a captcha:
the result then carries session_id and the captcha as an image. Read the
captcha and call cnr-submit with the same session_id.

If the portal serves no captcha the search completes immediately and the
result carries case_info and document_links instead.

Sessions left at the captcha expire after the configured idle timeout.`
}
func (t *CNRInitTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"cnr": map[string]interface{}{
				"type":        "string",
				"description": "16-character Case Number Record, e.g. MHPU010012342024",
			},
		},
		"required": []string{"cnr"},
	}
}
func (t *CNRInitTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	res, err := t.svc.InitCNR(ctx, getStringArg(args, "cnr"))
	if err != nil {
		return nil, err
	}
	if !res.CaptchaRequired {
		return res, nil
	}
	return captchaChallenge{
		SessionID:       res.SessionID,
		CaptchaRequired: true,
		Next:            "cnr-submit",
		png:             res.CaptchaImage,
	}, nil
}

type CNRSubmitTool struct {
	svc *workflow.Service
}

func (t *CNRSubmitTool) Name() string { return "cnr-submit" }
func (t *CNRSubmitTool) Description() string {
	return `Finish a case-status search with the solved captcha.

Returns case_info (label to value, in page order), document_links, and when
download_documents is true (default) the downloaded files and a zip archive.
listed_soon is true when the next hearing is today or tomorrow.

The session is closed afterwards whatever the outcome; a wrong captcha
usually ends in TimeoutWaitingForResult and needs a fresh cnr-init.`
}
func (t *CNRSubmitTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"session_id": map[string]interface{}{
				"type":        "string",
				"description": "session_id returned by cnr-init",
			},
			"captcha": map[string]interface{}{
				"type":        "string",
				"description": "Text read from the captcha image",
			},
			"download_documents": map[string]interface{}{
				"type":        "boolean",
				"description": "Download linked PDFs and archive them (default: true)",
			},
		},
		"required": []string{"session_id", "captcha"},
	}
}
func (t *CNRSubmitTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	download := getBoolArg(args, "download_documents", true)
	return t.svc.SubmitCNR(ctx, workflow.CNRSubmitRequest{
		SessionID:         getStringArg(args, "session_id"),
		Captcha:           getStringArg(args, "captcha"),
		DownloadDocuments: &download,
	})
}

type CauseListInitTool struct {
	svc *workflow.Service
}

func (t *CauseListInitTool) Name() string { return "causelist-init" }
func (t *CauseListInitTool) Description() string {
	return `Start a cause-list request for one court and date.

Selects state, district, court complex and court name (visible option text,
matched exactly) and fills the date. Returns session_id and the captcha
image; call causelist-submit next.

An option that does not exist fails with SelectionNotFound naming the field.
A session_id may be supplied; it must not be in use.`
}
func (t *CauseListInitTool) InputSchema() map[string]interface{} {
	text := func(desc string) map[string]interface{} {
		return map[string]interface{}{"type": "string", "description": desc}
	}
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"session_id":    text("Optional caller-chosen id (letters, digits, '-' or '_')"),
			"state":         text("State option text, e.g. Maharashtra"),
			"district":      text("District option text"),
			"court_complex": text("Court complex option text"),
			"court_name":    text("Court name option text"),
			"date":          text("Cause-list date as the portal expects it, e.g. 20-10-2025"),
		},
		"required": []string{"state", "district", "court_complex", "court_name", "date"},
	}
}
func (t *CauseListInitTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	res, err := t.svc.InitCauseList(ctx, workflow.CauseListInitRequest{
		SessionID:    getStringArg(args, "session_id"),
		State:        getStringArg(args, "state"),
		District:     getStringArg(args, "district"),
		CourtComplex: getStringArg(args, "court_complex"),
		CourtName:    getStringArg(args, "court_name"),
		Date:         getStringArg(args, "date"),
	})
	if err != nil {
		return nil, err
	}
	return captchaChallenge{
		SessionID:       res.SessionID,
		CaptchaRequired: true,
		Next:            "causelist-submit",
		png:             res.CaptchaImage,
	}, nil
}

type CauseListSubmitTool struct {
	svc *workflow.Service
}

func (t *CauseListSubmitTool) Name() string { return "causelist-submit" }
func (t *CauseListSubmitTool) Description() string {
	return `Finish a cause-list request with the solved captcha.

case_type is civil (default) or criminal. Renders the cause-list table to a
PDF under the output directory and returns its path with the table rows.

CaseTypeNotFound with an unknown case_type leaves the session open for a
retry; every other outcome closes it.`
}
func (t *CauseListSubmitTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"session_id": map[string]interface{}{
				"type":        "string",
				"description": "session_id returned by causelist-init",
			},
			"captcha": map[string]interface{}{
				"type":        "string",
				"description": "Text read from the captcha image",
			},
			"case_type": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"civil", "criminal", "civ", "cri"},
				"description": "Cause-list category (default: civil)",
			},
		},
		"required": []string{"session_id", "captcha"},
	}
}
func (t *CauseListSubmitTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return t.svc.SubmitCauseList(ctx, workflow.CauseListSubmitRequest{
		SessionID: getStringArg(args, "session_id"),
		Captcha:   getStringArg(args, "captcha"),
		CaseType:  getStringArg(args, "case_type"),
	})
}

type ListSessionsTool struct {
	svc *workflow.Service
}

func (t *ListSessionsTool) Name() string { return "list-sessions" }
func (t *ListSessionsTool) Description() string {
	return `List live portal sessions, oldest first.

Each entry has session_id, kind (CNR or CAUSE_LIST), state, params and
last_active. Sessions in AWAIT_CAPTCHA are waiting for a submit call.`
}
func (t *ListSessionsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *ListSessionsTool) Execute(_ context.Context, _ map[string]interface{}) (interface{}, error) {
	sessions := t.svc.Store().List()
	return map[string]interface{}{"sessions": sessions, "total": len(sessions)}, nil
}
