package prompt

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nunutzi10/foam-ai/internal/messages"
)

type fakeDownloader struct {
	path string
	err  error
	urls []string
}

func (d *fakeDownloader) Download(_ context.Context, url, _ string) (string, error) {
	d.urls = append(d.urls, url)
	if d.err != nil {
		return "", d.err
	}
	return d.path, nil
}

type fakeOCR struct {
	text string
	err  error
}

func (o *fakeOCR) ExtractText(context.Context, string) (string, error) {
	return o.text, o.err
}

type fakeTranscriber struct {
	text string
	err  error
	key  string
}

func (tr *fakeTranscriber) Transcribe(_ context.Context, apiKey, _ string) (string, error) {
	tr.key = apiKey
	return tr.text, tr.err
}

func scratchFile(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "media.jpg")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	return p
}

func TestSetupTextPassthrough(t *testing.T) {
	n := NewNormalizer(nil, &fakeDownloader{}, &fakeOCR{}, &fakeTranscriber{}, t.TempDir())

	got, err := n.Setup(context.Background(), Input{
		ContentType: messages.ContentTypeText,
		Body:        "hola mundo",
	})
	require.NoError(t, err)
	assert.Equal(t, "hola mundo", got)
}

func TestSetupImageAppendsOCRText(t *testing.T) {
	dl := &fakeDownloader{path: scratchFile(t)}
	n := NewNormalizer(nil, dl, &fakeOCR{text: "  MENU DEL DIA \n"}, &fakeTranscriber{}, t.TempDir())

	got, err := n.Setup(context.Background(), Input{
		ContentType: messages.ContentTypeImage,
		Body:        "mira esto",
		MediaURL:    "https://example.com/pic.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, "mira esto MENU DEL DIA", got)
	assert.Equal(t, []string{"https://example.com/pic.jpg"}, dl.urls)
}

func TestSetupImageWithoutCaption(t *testing.T) {
	dl := &fakeDownloader{path: scratchFile(t)}
	n := NewNormalizer(nil, dl, &fakeOCR{text: "TEXTO"}, &fakeTranscriber{}, t.TempDir())

	got, err := n.Setup(context.Background(), Input{
		ContentType: messages.ContentTypeImage,
		MediaURL:    "https://example.com/pic.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, "TEXTO", got)
}

func TestSetupImageCleansUpScratchFile(t *testing.T) {
	scratch := scratchFile(t)
	n := NewNormalizer(nil, &fakeDownloader{path: scratch}, &fakeOCR{text: "x"}, &fakeTranscriber{}, t.TempDir())

	_, err := n.Setup(context.Background(), Input{
		ContentType: messages.ContentTypeImage,
		MediaURL:    "https://example.com/pic.jpg",
	})
	require.NoError(t, err)

	_, statErr := os.Stat(scratch)
	assert.True(t, os.IsNotExist(statErr), "scratch file must be removed")
}

func TestSetupImageOCRErrorKeepsCaption(t *testing.T) {
	n := NewNormalizer(nil, &fakeDownloader{path: scratchFile(t)}, &fakeOCR{err: errors.New("no text")}, &fakeTranscriber{}, t.TempDir())

	got, err := n.Setup(context.Background(), Input{
		ContentType: messages.ContentTypeImage,
		Body:        "mira esto",
		MediaURL:    "https://example.com/pic.jpg",
	})
	require.ErrorIs(t, err, ErrNormalization)
	assert.Equal(t, "mira esto", got, "caption survives a failed OCR pass")
}

func TestSetupAudioReplacesBody(t *testing.T) {
	tr := &fakeTranscriber{text: "quiero una cita"}
	n := NewNormalizer(nil, &fakeDownloader{path: scratchFile(t)}, &fakeOCR{}, tr, t.TempDir())

	got, err := n.Setup(context.Background(), Input{
		ContentType: messages.ContentTypeAudio,
		Body:        "nota de voz",
		MediaURL:    "https://example.com/voice.ogg",
		APIKey:      "sk-tenant",
	})
	require.NoError(t, err)
	assert.Equal(t, "quiero una cita", got)
	assert.Equal(t, "sk-tenant", tr.key, "tenant credential reaches the transcriber")
}

func TestSetupAudioEmptyTranscriptKeepsBody(t *testing.T) {
	n := NewNormalizer(nil, &fakeDownloader{path: scratchFile(t)}, &fakeOCR{}, &fakeTranscriber{text: "  "}, t.TempDir())

	got, err := n.Setup(context.Background(), Input{
		ContentType: messages.ContentTypeAudio,
		Body:        "nota de voz",
		MediaURL:    "https://example.com/voice.ogg",
	})
	require.NoError(t, err)
	assert.Equal(t, "nota de voz", got)
}

func TestSetupMissingMediaURLPassesThrough(t *testing.T) {
	dl := &fakeDownloader{}
	n := NewNormalizer(nil, dl, &fakeOCR{}, &fakeTranscriber{}, t.TempDir())

	got, err := n.Setup(context.Background(), Input{
		ContentType: messages.ContentTypeImage,
		Body:        "solo texto",
	})
	require.NoError(t, err)
	assert.Equal(t, "solo texto", got)
	assert.Empty(t, dl.urls)
}

func TestSetupOtherKindsKeepCaption(t *testing.T) {
	n := NewNormalizer(nil, &fakeDownloader{}, &fakeOCR{}, &fakeTranscriber{}, t.TempDir())

	for _, kind := range []messages.ContentType{
		messages.ContentTypeVideo,
		messages.ContentTypeFile,
		messages.ContentTypeSticker,
		messages.ContentTypeReply,
		messages.ContentTypeButton,
		messages.ContentTypeUnsupported,
	} {
		got, err := n.Setup(context.Background(), Input{ContentType: kind, Body: "caption"})
		require.NoError(t, err)
		assert.Equal(t, "caption", got, kind.String())
	}
}

func TestMediaExt(t *testing.T) {
	assert.Equal(t, ".jpg", mediaExt("https://example.com/a/b/photo.jpg", ""))
	assert.Equal(t, ".ogg", mediaExt("https://example.com/media/abc123", "audio/ogg"))
	assert.Equal(t, ".mp3", mediaExt("https://example.com/media/abc123", "audio/mpeg"))
	assert.Equal(t, "", mediaExt("https://example.com/media/abc123", "application/octet-stream"))
}
