package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// CortexConfig configures the Snowflake Cortex inference endpoint.
type CortexConfig struct {
	Host       string
	Token      string
	Model      string
	HTTPClient *http.Client
}

// CortexAdapter talks to Snowflake Cortex `inference:complete`, which replies with server-sent events.
type CortexAdapter struct {
	cfg CortexConfig
}

var (
	_ Generator = (*CortexAdapter)(nil)
	_ Streamer  = (*CortexAdapter)(nil)
)

// NewCortexAdapter builds a Cortex client. Host may include a scheme; https is assumed otherwise.
func NewCortexAdapter(cfg CortexConfig) *CortexAdapter {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "claude-3-5-sonnet"
	}
	return &CortexAdapter{cfg: cfg}
}

// Model returns the configured model name.
func (a *CortexAdapter) Model() string {
	return a.cfg.Model
}

func (a *CortexAdapter) endpoint() string {
	host := strings.TrimRight(strings.TrimSpace(a.cfg.Host), "/")
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	return host + "/api/v2/cortex/inference:complete"
}

type cortexMessage struct {
	Content string `json:"content"`
}

type cortexRequest struct {
	Model       string          `json:"model"`
	Messages    []cortexMessage `json:"messages"`
	TopP        float64         `json:"top_p"`
	Temperature float64         `json:"temperature"`
}

type cortexEvent struct {
	Choices []struct {
		Delta struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"delta"`
	} `json:"choices"`
}

// Stream posts the prompt and calls fn for each text delta.
// Events that are not JSON or carry no text delta are skipped.
func (a *CortexAdapter) Stream(ctx context.Context, prompt string, fn func(delta string) error) error {
	if strings.TrimSpace(a.cfg.Host) == "" || strings.TrimSpace(a.cfg.Token) == "" {
		return fmt.Errorf("%w: SNOWFLAKE_HOST and SNOWFLAKE_TOKEN are required", ErrNotConfigured)
	}
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("prompt is required")
	}

	body, err := json.Marshal(cortexRequest{
		Model:    a.cfg.Model,
		Messages: []cortexMessage{{Content: prompt}},
	})
	if err != nil {
		return fmt.Errorf("marshal cortex request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build cortex request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", fmt.Sprintf("Snowflake Token=%q", a.cfg.Token))

	res, err := a.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("cortex request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return readStatusError("cortex", res)
	}

	return readEvents(res.Body, func(data string) error {
		var ev cortexEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil
		}
		if len(ev.Choices) == 0 || ev.Choices[0].Delta.Type != "text" {
			return nil
		}
		return fn(ev.Choices[0].Delta.Text)
	})
}

// Generate collects the whole stream into one reply.
func (a *CortexAdapter) Generate(ctx context.Context, prompt string) (string, error) {
	var out strings.Builder
	if err := a.Stream(ctx, prompt, func(delta string) error {
		out.WriteString(delta)
		return nil
	}); err != nil {
		return "", err
	}
	text := strings.TrimSpace(out.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// readEvents splits a text/event-stream body into events and passes each event's
// data (multiple data lines joined by "\n") to fn. "[DONE]" markers are dropped.
func readEvents(r io.Reader, fn func(data string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var data []string
	flush := func() error {
		if len(data) == 0 {
			return nil
		}
		payload := strings.Join(data, "\n")
		data = data[:0]
		if payload == "[DONE]" {
			return nil
		}
		return fn(payload)
	}

	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if err := flush(); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read cortex stream: %w", err)
	}
	return flush()
}
