// Package prompt turns channel-native message payloads into plain text a
// completion engine can consume. Images are run through OCR and audio through
// speech-to-text before the body reaches the model.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/nunutzi10/foam-ai/internal/messages"
)

// ErrNormalization marks media-processing failures. The best-effort body is
// returned alongside it; what to do with a failed normalization is the
// caller's policy.
var ErrNormalization = errors.New("prompt normalization failed")

// Downloader fetches remote media into a local scratch file and returns its
// path. Callers own the file and must remove it.
type Downloader interface {
	Download(ctx context.Context, url, destDir string) (string, error)
}

// OCR extracts text from an image file on disk.
type OCR interface {
	ExtractText(ctx context.Context, imagePath string) (string, error)
}

// Transcriber converts an audio file on disk to text.
type Transcriber interface {
	Transcribe(ctx context.Context, apiKey, audioPath string) (string, error)
}

// Normalizer prepares inbound message bodies for completion.
type Normalizer struct {
	downloader  Downloader
	ocr         OCR
	transcriber Transcriber
	tmpDir      string
	logger      *slog.Logger
}

func NewNormalizer(log *slog.Logger, downloader Downloader, ocr OCR, transcriber Transcriber, tmpDir string) *Normalizer {
	if log == nil {
		log = slog.Default()
	}
	return &Normalizer{
		downloader:  downloader,
		ocr:         ocr,
		transcriber: transcriber,
		tmpDir:      tmpDir,
		logger:      log.With(slog.String("service", "prompt")),
	}
}

// Input carries the channel payload fields the normalizer needs.
type Input struct {
	ContentType messages.ContentType
	Body        string
	MediaURL    string
	// APIKey is the tenant's provider credential, used for transcription.
	APIKey string
}

// Setup resolves the prompt text for an inbound message. Text passes through
// unchanged. Images keep their caption with OCR output appended. Audio is
// replaced by its transcription. Every other kind keeps its caption as-is.
func (n *Normalizer) Setup(ctx context.Context, in Input) (string, error) {
	switch in.ContentType {
	case messages.ContentTypeImage:
		return n.setupImage(ctx, in)
	case messages.ContentTypeAudio:
		return n.setupAudio(ctx, in)
	default:
		return in.Body, nil
	}
}

func (n *Normalizer) setupImage(ctx context.Context, in Input) (string, error) {
	if in.MediaURL == "" {
		return in.Body, nil
	}
	local, err := n.downloader.Download(ctx, in.MediaURL, n.tmpDir)
	if err != nil {
		return in.Body, fmt.Errorf("%w: download image: %w", ErrNormalization, err)
	}
	defer os.Remove(local)

	text, err := n.ocr.ExtractText(ctx, local)
	if err != nil {
		return in.Body, fmt.Errorf("%w: ocr: %w", ErrNormalization, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return in.Body, nil
	}
	if in.Body == "" {
		return text, nil
	}
	return in.Body + " " + text, nil
}

func (n *Normalizer) setupAudio(ctx context.Context, in Input) (string, error) {
	if in.MediaURL == "" {
		return in.Body, nil
	}
	local, err := n.downloader.Download(ctx, in.MediaURL, n.tmpDir)
	if err != nil {
		return in.Body, fmt.Errorf("%w: download audio: %w", ErrNormalization, err)
	}
	defer os.Remove(local)

	text, err := n.transcriber.Transcribe(ctx, in.APIKey, local)
	if err != nil {
		return in.Body, fmt.Errorf("%w: transcribe: %w", ErrNormalization, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return in.Body, nil
	}
	return text, nil
}

// HTTPDownloader fetches media over HTTP into uniquely named scratch files.
type HTTPDownloader struct {
	client *http.Client
}

func NewHTTPDownloader(client *http.Client) *HTTPDownloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPDownloader{client: client}
}

func (d *HTTPDownloader) Download(ctx context.Context, url, destDir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("media fetch: unexpected status %d", resp.StatusCode)
	}

	if destDir == "" {
		destDir = os.TempDir()
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	name := uuid.NewString() + mediaExt(url, resp.Header.Get("Content-Type"))
	dest := filepath.Join(destDir, name)

	f, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dest)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(dest)
		return "", err
	}
	return dest, nil
}

// mediaExt picks a file extension from the URL path, falling back to the
// response content type. Transcription backends reject extension-less files.
func mediaExt(url, contentType string) string {
	if ext := path.Ext(url); ext != "" && len(ext) <= 5 {
		return ext
	}
	switch {
	case strings.Contains(contentType, "ogg"):
		return ".ogg"
	case strings.Contains(contentType, "mpeg"):
		return ".mp3"
	case strings.Contains(contentType, "jpeg"):
		return ".jpg"
	case strings.Contains(contentType, "png"):
		return ".png"
	default:
		return ""
	}
}
