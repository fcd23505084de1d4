// Package whispercpp implements transcription.Engine by running the
// whisper.cpp command line tool with JSON output.
package whispercpp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kbukum/mediascribe/errors"
	"github.com/kbukum/mediascribe/process"
	"github.com/kbukum/mediascribe/provider"
	"github.com/kbukum/mediascribe/transcription"
)

// ProviderName is the registered name for the CLI engine.
const ProviderName = "whispercpp"

// Config configures the CLI engine.
type Config struct {
	Binary   string        `yaml:"binary" mapstructure:"binary"`
	ModelDir string        `yaml:"model_dir" mapstructure:"model_dir"`
	Model    string        `yaml:"model" mapstructure:"model"`
	Threads  int           `yaml:"threads" mapstructure:"threads"`
	BeamSize int           `yaml:"beam_size" mapstructure:"beam_size"`
	MaxInput time.Duration `yaml:"max_input" mapstructure:"max_input"`
}

// Engine runs whisper.cpp once per request.
type Engine struct {
	cfg    Config
	runner process.Runner
}

// New creates a CLI engine. A nil runner executes real processes.
func New(cfg Config, runner process.Runner) *Engine {
	if cfg.Binary == "" {
		cfg.Binary = "whisper-cli"
	}
	if cfg.ModelDir == "" {
		cfg.ModelDir = "models"
	}
	if cfg.Model == "" {
		cfg.Model = "base"
	}
	if cfg.Threads <= 0 {
		cfg.Threads = 4
	}
	if runner == nil {
		runner = process.ExecRunner{}
	}
	return &Engine{cfg: cfg, runner: runner}
}

// Factory builds an Engine from a generic config map.
func Factory() provider.Factory[transcription.Engine] {
	return func(m map[string]any) (transcription.Engine, error) {
		var cfg Config
		if err := provider.DecodeConfig(m, &cfg); err != nil {
			return nil, err
		}
		return New(cfg, nil), nil
	}
}

func (e *Engine) Name() string { return ProviderName }

// MaxInputDuration implements transcription.Windowed.
func (e *Engine) MaxInputDuration() time.Duration { return e.cfg.MaxInput }

// IsAvailable reports whether the binary and the default model file exist.
func (e *Engine) IsAvailable(_ context.Context) bool {
	if !process.Available(e.cfg.Binary) {
		return false
	}
	_, err := os.Stat(e.modelPath(e.cfg.Model))
	return err == nil
}

func (e *Engine) modelPath(model string) string {
	return filepath.Join(e.cfg.ModelDir, "ggml-"+model+".bin")
}

// Transcribe runs whisper.cpp on req.AudioPath and parses its JSON output
// written next to the audio file.
func (e *Engine) Transcribe(ctx context.Context, req transcription.Request) (*transcription.Response, error) {
	model := e.cfg.Model
	if req.Model != "" {
		model = req.Model
	}
	outBase := strings.TrimSuffix(req.AudioPath, filepath.Ext(req.AudioPath))

	args := []string{
		"-m", e.modelPath(model),
		"-f", req.AudioPath,
		"-t", strconv.Itoa(e.cfg.Threads),
		"-oj", "-of", outBase,
		"-np",
	}
	if req.Language != "" {
		args = append(args, "-l", req.Language)
	} else {
		args = append(args, "-l", "auto")
	}
	if e.cfg.BeamSize > 0 {
		args = append(args, "-bs", strconv.Itoa(e.cfg.BeamSize))
	}

	res, err := e.runner.Run(ctx, process.Command{Binary: e.cfg.Binary, Args: args})
	if err != nil {
		var stderr string
		exit := 0
		if res != nil {
			stderr = string(res.Stderr)
			exit = res.ExitCode
		}
		return nil, classify(err, exit, stderr)
	}

	jsonPath := outBase + ".json"
	defer os.Remove(jsonPath)
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, errors.InferenceFailure(fmt.Errorf("read whisper.cpp output: %w", err))
	}
	return parseOutput(data)
}

func classify(err error, exitCode int, stderr string) error {
	lower := strings.ToLower(stderr)
	cause := fmt.Errorf("%w: %s", err, lastLine(stderr))
	switch {
	case exitCode == 137, // SIGKILL, typically the OOM killer
		strings.Contains(lower, "failed to allocate"),
		strings.Contains(lower, "out of memory"),
		strings.Contains(lower, "std::bad_alloc"):
		return errors.ResourceExhausted(cause)
	default:
		return errors.InferenceFailure(cause)
	}
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

type cliOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func parseOutput(data []byte) (*transcription.Response, error) {
	var out cliOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.InferenceFailure(fmt.Errorf("decode whisper.cpp output: %w", err))
	}
	resp := &transcription.Response{Language: out.Result.Language}
	for _, seg := range out.Transcription {
		text := strings.TrimSpace(seg.Text)
		if text == "" || text == "[BLANK_AUDIO]" {
			continue
		}
		resp.Segments = append(resp.Segments, transcription.Segment{
			Start: float64(seg.Offsets.From) / 1000,
			End:   float64(seg.Offsets.To) / 1000,
			Text:  text,
		})
	}
	return resp, nil
}
