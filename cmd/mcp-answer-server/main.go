// Command mcp-answer-server runs an MCP server exposing an "answer" tool
// for exercising the MCP answer engine backend. Each call returns one
// text block per reasoning step, the last one being the answer.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type answerInput struct {
	Question string `json:"question" jsonschema:"the self-contained employee question"`
	MaxSteps int    `json:"max_steps,omitempty" jsonschema:"upper bound on reasoning steps"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8090"
	}

	server := mcp.NewServer(
		&mcp.Implementation{Name: "askgs-answers", Version: "v1.0.0"},
		nil,
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "answer",
		Description: "Answers an employee policy question",
	}, answer)

	handler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return server
	}, nil)

	httpMux := http.NewServeMux()
	httpMux.Handle("/mcp", handler)
	httpMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})

	slog.Info("MCP answer server starting", "port", port)
	if err := http.ListenAndServe(":"+port, httpMux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("MCP answer server failed", "error", err)
		os.Exit(1)
	}
}

func answer(_ context.Context, _ *mcp.CallToolRequest, in answerInput) (*mcp.CallToolResult, struct{}, error) {
	if strings.TrimSpace(in.Question) == "" {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: "question is required"}},
		}, struct{}{}, nil
	}

	steps := []string{
		"Searching the policy library",
		fmt.Sprintf("According to the employee handbook: %s is covered in section 4.", in.Question),
	}
	if in.MaxSteps > 0 && len(steps) > in.MaxSteps {
		steps = steps[len(steps)-in.MaxSteps:]
	}

	content := make([]mcp.Content, 0, len(steps))
	for _, s := range steps {
		content = append(content, &mcp.TextContent{Text: s})
	}
	return &mcp.CallToolResult{Content: content}, struct{}{}, nil
}
