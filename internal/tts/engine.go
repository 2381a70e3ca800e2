package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
)

// ErrRateLimited is returned (wrapped) by engines when the service asks the
// caller to slow down.
var ErrRateLimited = errors.New("speech service rate limited")

// Engine renders text to an MP3 file at dest.
type Engine interface {
	Synthesize(ctx context.Context, text, voice, dest string) error
}

// CommandEngine runs the edge-tts command line tool.
type CommandEngine struct {
	// Command is the executable, "edge-tts" when empty.
	Command string

	// ExtraArgs are appended after the standard arguments.
	ExtraArgs []string
}

// Synthesize runs `edge-tts --voice V --text T --write-media dest`.
func (e *CommandEngine) Synthesize(ctx context.Context, text, voice, dest string) error {
	name := e.Command
	if name == "" {
		name = "edge-tts"
	}
	args := append([]string{"--voice", voice, "--text", text, "--write-media", dest}, e.ExtraArgs...)

	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if strings.Contains(msg, "429") || strings.Contains(strings.ToLower(msg), "too many requests") {
			return fmt.Errorf("%s: %w", msg, ErrRateLimited)
		}
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, lastLine(msg))
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// HTTPEngine posts {"text", "voice"} as JSON to an endpoint that answers
// with audio bytes.
type HTTPEngine struct {
	Endpoint string
	Client   *http.Client
}

type httpRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// Synthesize writes the response body to dest.
func (e *HTTPEngine) Synthesize(ctx context.Context, text, voice, dest string) error {
	body, err := json.Marshal(httpRequest{Text: text, Voice: voice})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("HTTP %d: %w", resp.StatusCode, ErrRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
