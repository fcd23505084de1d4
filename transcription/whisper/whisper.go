// Package whisper implements transcription.Engine against a faster-whisper
// HTTP sidecar (POST /transcribe, GET /health).
package whisper

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/kbukum/mediascribe/errors"
	"github.com/kbukum/mediascribe/httpclient"
	"github.com/kbukum/mediascribe/provider"
	"github.com/kbukum/mediascribe/resilience"
	"github.com/kbukum/mediascribe/transcription"
)

const (
	// ProviderName is the registered name for the sidecar engine.
	ProviderName = "whisper"

	defaultURL     = "http://localhost:8387"
	defaultModel   = "base"
	defaultTimeout = 10 * time.Minute
)

// Config holds configuration for the sidecar engine.
type Config struct {
	URL         string        `yaml:"url" mapstructure:"url"`
	Model       string        `yaml:"model" mapstructure:"model"`
	Device      string        `yaml:"device" mapstructure:"device"`
	ComputeType string        `yaml:"compute_type" mapstructure:"compute_type"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// MaxInput is the longest audio the sidecar accepts per request. 0 means unbounded.
	MaxInput time.Duration `yaml:"max_input" mapstructure:"max_input"`
	// APIKey is sent as a bearer token when the sidecar requires one.
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
	// APIKeyHeader sends APIKey in this header instead, e.g. "X-API-Key".
	APIKeyHeader string `yaml:"api_key_header" mapstructure:"api_key_header"`
	// BreakerFailures consecutive capacity failures open the circuit.
	BreakerFailures int `yaml:"breaker_failures" mapstructure:"breaker_failures"`
}

// Engine implements transcription.Engine using the sidecar.
type Engine struct {
	cfg     Config
	client  *http.Client
	breaker *resilience.CircuitBreaker
}

// New creates a sidecar engine.
func New(cfg Config) *Engine {
	if cfg.URL == "" {
		cfg.URL = defaultURL
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	hc := httpclient.Config{Timeout: cfg.Timeout, Auth: httpclient.Bearer(cfg.APIKey)}
	if cfg.APIKeyHeader != "" {
		hc.Auth = httpclient.HeaderKey(cfg.APIKeyHeader, cfg.APIKey)
	}
	client, err := httpclient.New(hc)
	if err != nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Engine{
		cfg:    cfg,
		client: client,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:        ProviderName,
			MaxFailures: cfg.BreakerFailures,
			OpenTimeout: 30 * time.Second,
			ShouldTrip: func(err error) bool {
				return errors.HasCode(err, errors.ErrCodeResourceExhausted)
			},
		}),
	}
}

// Factory builds an Engine from a generic config map.
func Factory() provider.Factory[transcription.Engine] {
	return func(m map[string]any) (transcription.Engine, error) {
		var cfg Config
		if err := provider.DecodeConfig(m, &cfg); err != nil {
			return nil, err
		}
		return New(cfg), nil
	}
}

func (e *Engine) Name() string { return ProviderName }

// MaxInputDuration implements transcription.Windowed.
func (e *Engine) MaxInputDuration() time.Duration { return e.cfg.MaxInput }

// IsAvailable checks if the sidecar is reachable.
func (e *Engine) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.URL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Transcribe uploads a WAV file to the sidecar.
func (e *Engine) Transcribe(ctx context.Context, req transcription.Request) (*transcription.Response, error) {
	var out *transcription.Response
	err := e.breaker.Execute(func() error {
		var err error
		out, err = e.transcribe(ctx, req)
		return err
	})
	if stderrors.Is(err, resilience.ErrCircuitOpen) {
		return nil, errors.ResourceExhausted(err).WithDetail("engine", ProviderName)
	}
	return out, err
}

func (e *Engine) transcribe(ctx context.Context, req transcription.Request) (*transcription.Response, error) {
	model := e.cfg.Model
	if req.Model != "" {
		model = req.Model
	}

	body, contentType, err := e.multipartBody(req, model)
	if err != nil {
		return nil, errors.InferenceFailure(err)
	}
	defer body.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.URL+"/transcribe", body)
	if err != nil {
		return nil, errors.InferenceFailure(err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		// The sidecar being down or saturated is a capacity problem, not bad input.
		return nil, errors.ResourceExhausted(fmt.Errorf("whisper request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, classifyStatus(resp.StatusCode, string(msg))
	}

	var result sidecarResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.InferenceFailure(fmt.Errorf("decode whisper response: %w", err))
	}
	return result.toResponse(), nil
}

// multipartBody streams the audio file into a multipart body through a pipe.
func (e *Engine) multipartBody(req transcription.Request, model string) (io.ReadCloser, string, error) {
	f, err := os.Open(req.AudioPath)
	if err != nil {
		return nil, "", fmt.Errorf("open audio: %w", err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer f.Close()
		err := func() error {
			part, err := mw.CreateFormFile("audio", "audio.wav")
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, f); err != nil {
				return err
			}
			fields := map[string]string{
				"model":        model,
				"language":     req.Language,
				"device":       e.cfg.Device,
				"compute_type": e.cfg.ComputeType,
			}
			for k, v := range fields {
				if v == "" {
					continue
				}
				if err := mw.WriteField(k, v); err != nil {
					return err
				}
			}
			return mw.Close()
		}()
		pw.CloseWithError(err)
	}()
	return pr, mw.FormDataContentType(), nil
}

func classifyStatus(status int, body string) error {
	cause := fmt.Errorf("whisper status %d: %s", status, strings.TrimSpace(body))
	lower := strings.ToLower(body)
	switch {
	case status == http.StatusServiceUnavailable, status == http.StatusTooManyRequests, status == http.StatusInsufficientStorage:
		return errors.ResourceExhausted(cause)
	case strings.Contains(lower, "out of memory"), strings.Contains(lower, "cuda error: out of memory"), strings.Contains(lower, "memoryerror"):
		return errors.ResourceExhausted(cause)
	default:
		return errors.InferenceFailure(cause)
	}
}

type sidecarResponse struct {
	Text                string           `json:"text"`
	Segments            []sidecarSegment `json:"segments"`
	Language            string           `json:"language"`
	LanguageProbability float64          `json:"language_probability"`
}

type sidecarSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (r *sidecarResponse) toResponse() *transcription.Response {
	segments := make([]transcription.Segment, 0, len(r.Segments))
	for _, seg := range r.Segments {
		segments = append(segments, transcription.Segment{Start: seg.Start, End: seg.End, Text: seg.Text})
	}
	return &transcription.Response{
		Segments:            segments,
		Language:            r.Language,
		LanguageProbability: r.LanguageProbability,
	}
}
