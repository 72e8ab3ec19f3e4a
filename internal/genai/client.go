package genai

import (
	"context"
	"fmt"
	"strings"
)

// Client produces a completion for a prompt. The orchestrator uses it for
// intent classification and for answering requests no worker claims.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
}

// NewClient selects a backend based on mode: "http" requires a URL, "mock"
// always uses the canned client, and "auto" picks http when a URL is set.
func NewClient(mode, url, model string) (Client, error) {
	switch mode {
	case "http":
		if strings.TrimSpace(url) == "" {
			return nil, fmt.Errorf("genai mode http requires GENAI_HTTP_URL")
		}
		return NewHTTPClient(url, model), nil
	case "mock":
		return NewMockClient(nil), nil
	case "auto":
		if strings.TrimSpace(url) != "" {
			return NewHTTPClient(url, model), nil
		}
		return NewMockClient(nil), nil
	default:
		return nil, fmt.Errorf("unknown genai mode %q", mode)
	}
}
