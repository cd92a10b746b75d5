package speech

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Transcriber turns an audio upload into text. Failures never surface to the
// dialogue layer; the contract is empty text on any error.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) string
}

// WhisperTranscriber uses an OpenAI-compatible audio transcription endpoint.
type WhisperTranscriber struct {
	client openai.Client
	model  string
}

func NewWhisperTranscriber(apiKey, baseURL, model string) (*WhisperTranscriber, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("transcriber api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &WhisperTranscriber{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

func (t *WhisperTranscriber) Transcribe(ctx context.Context, audio io.Reader, filename string) string {
	if filename == "" {
		filename = "audio.webm"
	}
	resp, err := t.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: openai.AudioModel(t.model),
		File:  openai.File(audio, filename, "application/octet-stream"),
	})
	if err != nil {
		log.Printf("[Speech] Transcription failed: %v", err)
		return ""
	}
	return strings.TrimSpace(resp.Text)
}
