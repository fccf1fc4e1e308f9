package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/kindcoach/kindcoach/internal/analysis"
	"github.com/kindcoach/kindcoach/internal/types"
)

const defaultBaseURL = "https://api.assemblyai.com"

// Client talks to the AssemblyAI REST API: upload the audio, create a
// transcript with speaker diarization enabled, then poll until the job
// finishes. Diarization happens entirely on the hosted side.
type Client struct {
	apiKey       string
	baseURL      string
	language     string
	pollInterval time.Duration
	httpc        *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint (used by tests).
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithLanguage sets the transcription language code (default "ko").
func WithLanguage(code string) Option {
	return func(c *Client) {
		if code != "" {
			c.language = code
		}
	}
}

// WithPollInterval sets the delay between transcript status polls.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// NewClient creates an AssemblyAI client.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("assemblyai: api key is required")
	}
	c := &Client{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		language:     "ko",
		pollInterval: 3 * time.Second,
		httpc:        &http.Client{Timeout: 2 * time.Minute},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type transcriptRequest struct {
	AudioURL      string `json:"audio_url"`
	SpeakerLabels bool   `json:"speaker_labels"`
	LanguageCode  string `json:"language_code"`
}

type transcriptResponse struct {
	ID            string  `json:"id"`
	Status        string  `json:"status"`
	Error         string  `json:"error"`
	Text          string  `json:"text"`
	Confidence    float64 `json:"confidence"`
	AudioDuration float64 `json:"audio_duration"` // seconds
	Utterances    []struct {
		Speaker    string  `json:"speaker"`
		Text       string  `json:"text"`
		Start      int64   `json:"start"` // ms
		End        int64   `json:"end"`   // ms
		Confidence float64 `json:"confidence"`
	} `json:"utterances"`
}

// Transcribe uploads the audio file and returns the diarized transcript.
// It blocks until the hosted job completes or ctx is cancelled.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (*types.TranscriptionResult, error) {
	audioURL, err := c.upload(ctx, audioPath)
	if err != nil {
		return nil, err
	}

	id, err := c.createTranscript(ctx, audioURL)
	if err != nil {
		return nil, err
	}

	tr, err := c.waitForTranscript(ctx, id)
	if err != nil {
		return nil, err
	}

	return c.mapTranscript(tr), nil
}

// upload streams the local file to the upload endpoint and returns the
// temporary audio URL AssemblyAI assigns to it.
func (c *Client) upload(ctx context.Context, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("assemblyai: open audio: %w", err)
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/upload", f)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	var out uploadResponse
	if err := c.do(req, &out); err != nil {
		return "", fmt.Errorf("assemblyai: upload: %w", err)
	}
	if out.UploadURL == "" {
		return "", fmt.Errorf("assemblyai: upload returned no url")
	}
	return out.UploadURL, nil
}

// createTranscript submits the transcription job with diarization enabled.
func (c *Client) createTranscript(ctx context.Context, audioURL string) (string, error) {
	payload, err := json.Marshal(transcriptRequest{
		AudioURL:      audioURL,
		SpeakerLabels: true,
		LanguageCode:  c.language,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/transcript", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	var out transcriptResponse
	if err := c.do(req, &out); err != nil {
		return "", fmt.Errorf("assemblyai: create transcript: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("assemblyai: create transcript returned no id")
	}
	return out.ID, nil
}

// waitForTranscript polls until the job reaches a terminal status.
func (c *Client) waitForTranscript(ctx context.Context, id string) (*transcriptResponse, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/transcript/"+id, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", c.apiKey)

		var out transcriptResponse
		if err := c.do(req, &out); err != nil {
			return nil, fmt.Errorf("assemblyai: poll transcript: %w", err)
		}

		switch out.Status {
		case "completed":
			return &out, nil
		case "error":
			return nil, fmt.Errorf("assemblyai: transcription failed: %s", out.Error)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// do executes the request and decodes the JSON body into out.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// mapTranscript converts the API response into the internal result shape.
// Word counts come from whitespace splitting, matching how the balance
// metrics define a word.
func (c *Client) mapTranscript(tr *transcriptResponse) *types.TranscriptionResult {
	utterances := make([]analysis.Utterance, 0, len(tr.Utterances))
	for _, u := range tr.Utterances {
		utterances = append(utterances, analysis.Utterance{
			SpeakerLabel: u.Speaker,
			Text:         strings.TrimSpace(u.Text),
			StartMs:      u.Start,
			EndMs:        u.End,
			WordCount:    len(strings.Fields(u.Text)),
			Confidence:   u.Confidence,
		})
	}

	return &types.TranscriptionResult{
		Transcript:      strings.TrimSpace(tr.Text),
		Language:        c.language,
		Confidence:      tr.Confidence,
		AudioDurationMs: int64(tr.AudioDuration * 1000),
		WordCount:       len(strings.Fields(tr.Text)),
		Utterances:      utterances,
		ProcessedAt:     time.Now(),
	}
}
