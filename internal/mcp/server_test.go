package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/browser/browsertest"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/config"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/journal"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/session"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/workflow"
)

const civilButton = `button[onclick*="submit_causelist"][onclick*="civ"]`

func portalPage(captcha bool) *browsertest.Page {
	p := browsertest.NewPage()
	p.OnNavigate = func(p *browsertest.Page, u string) {
		if strings.Contains(u, "cause_list") {
			p.Show("#sess_state_code", "#sess_dist_code", "#court_complex_code", "#CL_court_no", "#causelist_date")
			p.Options["#sess_state_code"] = []string{"Maharashtra"}
			p.Options["#sess_dist_code"] = []string{"Pune"}
			p.Options["#court_complex_code"] = []string{"Pune District Court"}
			p.Options["#CL_court_no"] = []string{"1-Principal District Judge"}
			p.Show("#captcha_image", "#cause_list_captcha_code", civilButton)
			return
		}
		p.Show("#cino", "#searchbtn")
		if captcha {
			p.Show("#captcha_image", "#fcaptcha_code")
		}
	}
	p.OnClick["#searchbtn"] = func(p *browsertest.Page) {
		if captcha && p.Values["#fcaptcha_code"] != "right" {
			return
		}
		p.Show(".case_status_table")
		p.HTML = `<table class="case_status_table">
<tr><td><label>Case Type</label></td><td>CS - Civil Suit</td></tr>
<tr><td><label>Next Hearing Date</label></td><td>21-10-2025</td></tr>
</table>`
	}
	p.OnClick[civilButton] = func(p *browsertest.Page) {
		if p.Values["#cause_list_captcha_code"] == "right" {
			p.Show("#dispTable")
			p.HTML = `<table id="dispTable"><tr><th>Sr No</th></tr><tr><td>1</td></tr></table>`
		}
	}
	return p
}

type harness struct {
	srv     *Server
	store   *session.Store
	journal *journal.Journal
	outDir  string
}

func newHarness(t *testing.T, captcha bool) *harness {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.Name = "test-server"
	cfg.Output.Dir = t.TempDir()

	j, err := journal.New(cfg.Journal, nil)
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	store := session.NewStore(
		browsertest.NewFactory(func() *browsertest.Page { return portalPage(captcha) }),
		session.WithObservers(j),
	)
	svc := workflow.NewService(cfg, workflow.Deps{
		Store: store,
		Renderer: &browsertest.Renderer{Write: func(path string) error {
			return os.WriteFile(path, []byte("%PDF-1.4"), 0o644)
		}},
		Now: func() time.Time { return time.Date(2025, 10, 20, 9, 0, 0, 0, time.UTC) },
	})

	srv, err := NewServer(cfg, svc, j, nil)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return &harness{srv: srv, store: store, journal: j, outDir: cfg.Output.Dir}
}

func TestNewServer(t *testing.T) {
	t.Run("registers tools", func(t *testing.T) {
		h := newHarness(t, true)
		for _, name := range []string{"cnr-init", "cnr-submit", "causelist-init", "causelist-submit", "list-sessions"} {
			if _, ok := h.srv.tools[name]; !ok {
				t.Errorf("tool %q not registered", name)
			}
		}
		if len(h.srv.tools) != 5 {
			t.Errorf("expected 5 tools, got %d", len(h.srv.tools))
		}
	})

	t.Run("requires a service", func(t *testing.T) {
		if _, err := NewServer(config.DefaultConfig(), nil, nil, nil); err == nil {
			t.Fatal("expected error without a workflow service")
		}
	})
}

func TestToolSchemasAreValidJSON(t *testing.T) {
	h := newHarness(t, true)
	for name, tool := range h.srv.tools {
		raw, err := json.Marshal(tool.InputSchema())
		if err != nil {
			t.Errorf("%s: schema does not marshal: %v", name, err)
			continue
		}
		var schema map[string]interface{}
		if err := json.Unmarshal(raw, &schema); err != nil {
			t.Errorf("%s: %v", name, err)
		}
		if schema["type"] != "object" {
			t.Errorf("%s: schema type = %v", name, schema["type"])
		}
		if tool.Description() == "" {
			t.Errorf("%s: empty description", name)
		}
	}
}

func TestExecuteToolUnknown(t *testing.T) {
	h := newHarness(t, true)
	if _, err := h.srv.ExecuteTool(context.Background(), "no-such-tool", nil); err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func callTool(t *testing.T, s *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := s.wrapTool(s.tools[name])(context.Background(), req)
	if err != nil {
		t.Fatalf("%s: handler error: %v", name, err)
	}
	return res
}

func textPayload(t *testing.T, res *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("first content is %T, want text", res.Content[0])
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(text.Text), &out); err != nil {
		t.Fatalf("payload is not JSON: %v (%s)", err, text.Text)
	}
	return out
}

func TestWrapToolAttachesCaptchaImage(t *testing.T) {
	h := newHarness(t, true)

	res := callTool(t, h.srv, "cnr-init", map[string]interface{}{"cnr": "MHPU010012342024"})
	if res.IsError {
		t.Fatalf("unexpected error result: %+v", res.Content)
	}
	body := textPayload(t, res)
	if body["captcha_required"] != true {
		t.Errorf("captcha_required = %v", body["captcha_required"])
	}
	if _, ok := body["captcha_image"]; ok {
		t.Error("captcha should not be inlined in the text payload")
	}
	if body["next"] != "cnr-submit" {
		t.Errorf("next = %v", body["next"])
	}

	if len(res.Content) != 2 {
		t.Fatalf("expected text and image content, got %d items", len(res.Content))
	}
	img, ok := res.Content[1].(mcp.ImageContent)
	if !ok {
		t.Fatalf("second content is %T, want image", res.Content[1])
	}
	if img.MIMEType != "image/png" {
		t.Errorf("mime = %q", img.MIMEType)
	}
	decoded, err := base64.StdEncoding.DecodeString(img.Data)
	if err != nil {
		t.Fatalf("image data: %v", err)
	}
	if string(decoded) != "png:#captcha_image" {
		t.Errorf("image = %q", decoded)
	}
}

func TestWrapToolErrorShape(t *testing.T) {
	h := newHarness(t, true)

	cases := []struct {
		name  string
		tool  string
		args  map[string]interface{}
		kind  string
		field string
	}{
		{"missing cnr", "cnr-init", map[string]interface{}{}, "InvalidRequest", ""},
		{"unknown session", "cnr-submit", map[string]interface{}{"session_id": "nope", "captcha": "x"}, "SessionNotFound", ""},
		{"missing court field", "causelist-init", map[string]interface{}{
			"state": "Maharashtra", "district": "Pune", "court_name": "x", "date": "20-10-2025",
		}, "InvalidRequest", "court_complex"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := callTool(t, h.srv, tc.tool, tc.args)
			if !res.IsError {
				t.Fatal("expected IsError")
			}
			body := textPayload(t, res)
			if body["kind"] != tc.kind {
				t.Errorf("kind = %v, want %s", body["kind"], tc.kind)
			}
			if tc.field != "" && body["field"] != tc.field {
				t.Errorf("field = %v, want %s", body["field"], tc.field)
			}
			if body["error"] == "" {
				t.Error("expected an error message")
			}
		})
	}
}

func TestSessionJournalResource(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	res := callTool(t, h.srv, "cnr-init", map[string]interface{}{"cnr": "MHPU010012342024"})
	id, _ := textPayload(t, res)["session_id"].(string)
	if id == "" {
		t.Fatal("no session id")
	}

	read := func() map[string]interface{} {
		t.Helper()
		var req mcp.ReadResourceRequest
		req.Params.URI = "ecourts://session/" + id + "/journal"
		req.Params.Arguments = map[string]any{"sessionId": []string{id}}
		contents, err := h.srv.handleSessionJournalResource(ctx, req)
		if err != nil {
			t.Fatalf("read journal: %v", err)
		}
		if len(contents) != 1 {
			t.Fatalf("expected one content, got %d", len(contents))
		}
		text, ok := contents[0].(mcp.TextResourceContents)
		if !ok {
			t.Fatalf("content is %T", contents[0])
		}
		var out map[string]interface{}
		if err := json.Unmarshal([]byte(text.Text), &out); err != nil {
			t.Fatalf("journal payload: %v", err)
		}
		return out
	}

	before := read()
	if before["open"] != true {
		t.Errorf("session should be open at the captcha gate: %v", before)
	}
	if before["leaked"] != false {
		t.Errorf("session should not be leaked: %v", before)
	}

	res = callTool(t, h.srv, "cnr-submit", map[string]interface{}{
		"session_id": id, "captcha": "right", "download_documents": false,
	})
	if res.IsError {
		t.Fatalf("submit failed: %+v", res.Content)
	}

	after := read()
	if after["open"] != false {
		t.Errorf("session should be released: %v", after)
	}
	if n, _ := after["count"].(float64); n <= before["count"].(float64) {
		t.Errorf("expected more facts after submit, before=%v after=%v", before["count"], after["count"])
	}
}

func TestSessionJournalResourceUnavailable(t *testing.T) {
	h := newHarness(t, true)
	h.srv.journal = nil

	var req mcp.ReadResourceRequest
	req.Params.Arguments = map[string]any{"sessionId": "abc"}
	if _, err := h.srv.handleSessionJournalResource(context.Background(), req); err == nil {
		t.Fatal("expected error without a journal")
	}
}

func TestAboutResource(t *testing.T) {
	h := newHarness(t, true)

	var req mcp.ReadResourceRequest
	req.Params.URI = "ecourts://about"
	contents, err := h.srv.handleAboutResource(context.Background(), req)
	if err != nil {
		t.Fatalf("about: %v", err)
	}
	text := contents[0].(mcp.TextResourceContents)
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(text.Text), &out); err != nil {
		t.Fatal(err)
	}
	if out["name"] != "test-server" {
		t.Errorf("name = %v", out["name"])
	}
	if !strings.Contains(text.Text, h.outDir) {
		t.Errorf("about should mention the output dir %s", h.outDir)
	}
}
