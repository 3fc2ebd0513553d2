package prompt

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// WhisperTranscriber sends audio files to the OpenAI transcription endpoint.
// Clients are created per call since the API key belongs to the tenant, not
// the process.
type WhisperTranscriber struct{}

func (w *WhisperTranscriber) Transcribe(ctx context.Context, apiKey, audioPath string) (string, error) {
	client := openai.NewClient(apiKey)
	resp, err := client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: audioPath,
	})
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}
	return resp.Text, nil
}
