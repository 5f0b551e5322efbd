package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/config"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/failure"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/journal"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/workflow"
	"go.uber.org/zap"
)

// Server exposes the fetch workflows as MCP tools.
type Server struct {
	cfg       config.Config
	svc       *workflow.Service
	journal   *journal.Journal
	log       *zap.Logger
	tools     map[string]Tool
	mcpServer *mcpserver.MCPServer
}

// Tool describes the contract for MCP tool implementations.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// captchaCarrier is implemented by results that should also be returned as
// an image so a client can show the captcha directly.
type captchaCarrier interface {
	CaptchaPNG() []byte
}

// NewServer constructs the MCP server and registers all tools. j may be nil,
// in which case the journal resource reports itself unavailable.
func NewServer(cfg config.Config, svc *workflow.Service, j *journal.Journal, log *zap.Logger) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("workflow service is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	mcpSrv := mcpserver.NewMCPServer(
		cfg.Server.Name,
		cfg.Server.Version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithLogging(),
		mcpserver.WithPromptCapabilities(false),
		mcpserver.WithRecovery(),
	)

	server := &Server{
		cfg:       cfg,
		svc:       svc,
		journal:   j,
		log:       log,
		tools:     make(map[string]Tool),
		mcpServer: mcpSrv,
	}

	server.registerAllTools()
	server.registerAllResources()
	return server, nil
}

// Start serves MCP over stdio.
func (s *Server) Start(ctx context.Context) error {
	stdio := mcpserver.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// StartSSE hosts the server over HTTP using SSE endpoints until ctx is done.
func (s *Server) StartSSE(ctx context.Context, port int) error {
	sseServer := mcpserver.NewSSEServer(s.mcpServer, mcpserver.WithBaseURL("http://localhost:"+strconv.Itoa(port)))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.log.Info("mcp sse server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// ExecuteTool executes a tool directly.
func (s *Server) ExecuteTool(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	tool, exists := s.tools[name]
	if !exists {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	return tool.Execute(ctx, args)
}

func (s *Server) registerAllTools() {
	s.registerTool(&CNRInitTool{svc: s.svc})
	s.registerTool(&CNRSubmitTool{svc: s.svc})
	s.registerTool(&CauseListInitTool{svc: s.svc})
	s.registerTool(&CauseListSubmitTool{svc: s.svc})
	s.registerTool(&ListSessionsTool{svc: s.svc})
}

func (s *Server) registerTool(tool Tool) {
	s.tools[tool.Name()] = tool

	schema, err := json.Marshal(tool.InputSchema())
	if err != nil {
		schema = json.RawMessage(`{"type":"object"}`)
	}

	mcpTool := mcp.NewToolWithRawSchema(tool.Name(), tool.Description(), schema)
	s.mcpServer.AddTool(mcpTool, s.wrapTool(tool))
}

func (s *Server) wrapTool(tool Tool) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		if args == nil {
			args = map[string]interface{}{}
		}

		result, err := tool.Execute(ctx, args)
		if err != nil {
			s.log.Debug("tool failed", zap.String("tool", tool.Name()), zap.Error(err))
			return toolError(tool.Name(), err), nil
		}

		content := []mcp.Content{mcp.NewTextContent(string(marshalToolPayload(tool.Name(), result)))}
		if c, ok := result.(captchaCarrier); ok {
			if png := c.CaptchaPNG(); len(png) > 0 {
				content = append(content, mcp.NewImageContent(base64.StdEncoding.EncodeToString(png), "image/png"))
			}
		}
		return &mcp.CallToolResult{Content: content}, nil
	}
}

// toolError reports err with the same kind/field shape as the HTTP API.
func toolError(toolName string, err error) *mcp.CallToolResult {
	body := map[string]interface{}{
		"error": failure.Public(err),
		"kind":  failure.KindOf(err),
	}
	if field := failure.FieldOf(err); field != "" {
		body["field"] = field
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(marshalToolPayload(toolName, body)))},
		IsError: true,
	}
}

func marshalToolPayload(toolName string, result interface{}) []byte {
	payload, marshalErr := json.Marshal(result)
	if marshalErr == nil {
		return payload
	}

	fallback := map[string]interface{}{
		"success": false,
		"error":   fmt.Sprintf("tool %s returned non-serializable payload: %v", toolName, marshalErr),
	}
	payload, fallbackErr := json.Marshal(fallback)
	if fallbackErr == nil {
		return payload
	}

	return []byte(fmt.Sprintf(`{"success":false,"error":"tool %s failed to encode payload"}`, toolName))
}
