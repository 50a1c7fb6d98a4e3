package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/recoveryfinder/extract"
	"github.com/use-agent/recoveryfinder/models"
)

func main() {
	apiURL := os.Getenv("FINDER_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8090"
	}
	apiKey := os.Getenv("FINDER_API_KEY")

	s := server.NewMCPServer(
		"recoveryfinder",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	runStatusTool := mcp.NewTool("run_status",
		mcp.WithDescription("Report the progress of the extraction run currently executing: state, rows processed, rows priced and session recoveries."),
	)
	s.AddTool(runStatusTool, handleRunStatus(apiURL, apiKey))

	decodeTool := mcp.NewTool("decode_value_param",
		mcp.WithDescription("Decode the price carried in a detail-page URL's base64 JSON query parameter, without opening the page."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The detail-page URL"),
		),
		mcp.WithString("param",
			mcp.Description("Query parameter holding the payload (default 'ID')"),
		),
		mcp.WithString("field",
			mcp.Description("Payload field holding the value (default 'recovery_values')"),
		),
	)
	s.AddTool(decodeTool, handleDecodeValue)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func handleRunStatus(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 10 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"/api/v1/progress", nil)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to create request: %v", err)), nil
		}
		if apiKey != "" {
			httpReq.Header.Set("X-API-Key", apiKey)
		}

		resp, err := client.Do(httpReq)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("API request failed: %v", err)), nil
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read response: %v", err)), nil
		}

		if resp.StatusCode != http.StatusOK {
			var errResp models.ErrorResponse
			if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != nil {
				return mcp.NewToolResultError(fmt.Sprintf("[%s] %s", errResp.Error.Code, errResp.Error.Message)), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("API returned %d", resp.StatusCode)), nil
		}

		var progress models.ProgressResponse
		if err := json.Unmarshal(respBody, &progress); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		return mcp.NewToolResultText(formatStatus(progress)), nil
	}
}

func formatStatus(p models.ProgressResponse) string {
	st := p.Status
	var b strings.Builder
	fmt.Fprintf(&b, "Run: %s\nState: %s\n", st.RunID, st.State)
	fmt.Fprintf(&b, "Rows: %d/%d (%.0f%%)\nPriced: %d\nRecoveries: %d\n",
		st.Processed, st.Total, p.Percent, st.Priced, st.Recoveries)
	if st.ResultsURL != "" {
		fmt.Fprintf(&b, "Results: %s\n", st.ResultsURL)
	}
	if !st.StartedAt.IsZero() {
		fmt.Fprintf(&b, "Started: %s\n", st.StartedAt.Format(time.RFC3339))
	}
	if st.Terminal() && st.FinishedAt != nil {
		fmt.Fprintf(&b, "Finished: %s\n", st.FinishedAt.Format(time.RFC3339))
	} else if !st.Terminal() {
		b.WriteString("Still running\n")
	}
	if p.Error != nil {
		fmt.Fprintf(&b, "Error: [%s] %s\n", p.Error.Code, p.Error.Message)
	}
	return b.String()
}

func handleDecodeValue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := request.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError("url is required"), nil
	}
	param := request.GetString("param", "ID")
	field := request.GetString("field", "recovery_values")

	price, err := extract.ValueFromURL(url, param, field)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(price), nil
}
