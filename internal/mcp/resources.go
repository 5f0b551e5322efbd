package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	resourceMIMEJSON = "application/json"
)

func (s *Server) registerAllResources() {
	if s == nil || s.mcpServer == nil {
		return
	}

	s.mcpServer.AddResource(
		mcp.NewResource(
			"ecourts://about",
			"About",
			mcp.WithMIMEType(resourceMIMEJSON),
			mcp.WithResourceDescription("Server info and the captcha round-trip protocol."),
		),
		s.handleAboutResource,
	)

	s.mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"ecourts://session/{sessionId}/journal",
			"Session Journal",
			mcp.WithTemplateMIMEType(resourceMIMEJSON),
			mcp.WithTemplateDescription("Lifecycle facts recorded for a session and whether it still holds a browser context."),
		),
		s.handleSessionJournalResource,
	)
}

func (s *Server) handleAboutResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	payload := map[string]interface{}{
		"name":    s.cfg.Server.Name,
		"version": s.cfg.Server.Version,
		"portal":  s.cfg.Portal.BaseURL,
		"notes": []string{
			"Each search is two calls: *-init returns a captcha image, *-submit sends its text.",
			"A session left at the captcha expires after " + s.cfg.Session.IdleExpiry().String() + ".",
			"Artifacts are written under " + s.svc.OutputDir() + ".",
		},
		"timestamp_ms": time.Now().UnixMilli(),
	}
	return jsonContents(request.Params.URI, payload)
}

func (s *Server) handleSessionJournalResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	if s.journal == nil || !s.journal.Ready() {
		return nil, fmt.Errorf("session journal unavailable")
	}

	sessionID := argString(request.Params.Arguments["sessionId"])
	if sessionID == "" {
		return nil, fmt.Errorf("missing sessionId")
	}

	facts := s.journal.SessionFacts(sessionID)
	open, err := s.journal.OpenSessions(ctx)
	if err != nil {
		return nil, err
	}
	leaks, err := s.journal.Leaks(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"session_id": sessionID,
		"count":      len(facts),
		"facts":      facts,
		"open":       contains(open, sessionID),
		"leaked":     contains(leaks, sessionID),
	}
	return jsonContents(request.Params.URI, payload)
}

func jsonContents(uri string, payload interface{}) ([]mcp.ResourceContents, error) {
	text, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: resourceMIMEJSON,
			Text:     string(text),
		},
	}, nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
