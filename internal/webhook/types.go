// Package webhook receives Vonage WhatsApp callbacks and drives the inbound
// pipeline: resolve bot and contact, normalize the prompt, generate a
// completion and dispatch the reply.
package webhook

import (
	"github.com/nunutzi10/foam-ai/internal/messages"
)

// mediaPart is the url/caption pair shared by the media message kinds.
type mediaPart struct {
	URL     string `json:"url"`
	Caption string `json:"caption"`
}

type replyPart struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type buttonPart struct {
	Payload string `json:"payload"`
	Text    string `json:"text"`
}

// InboundPayload is the Messages API inbound callback body. Only the fields
// the pipeline consumes are mapped.
type InboundPayload struct {
	To          string `json:"to"`
	From        string `json:"from"`
	Channel     string `json:"channel"`
	MessageUUID string `json:"message_uuid"`
	MessageType string `json:"message_type"`
	Timestamp   string `json:"timestamp"`

	Text     string         `json:"text"`
	Image    *mediaPart     `json:"image"`
	Video    *mediaPart     `json:"video"`
	Audio    *mediaPart     `json:"audio"`
	File     *mediaPart     `json:"file"`
	Sticker  *mediaPart     `json:"sticker"`
	Location map[string]any `json:"location"`
	Reply    *replyPart     `json:"reply"`
	Button   *buttonPart    `json:"button"`

	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// ContentType maps the callback's message_type token.
func (p InboundPayload) ContentType() messages.ContentType {
	return messages.ParseContentType(p.MessageType)
}

// Body extracts the human-readable text of the payload for its content type.
// Kinds without text yield an empty string.
func (p InboundPayload) Body() string {
	switch p.ContentType() {
	case messages.ContentTypeText:
		return p.Text
	case messages.ContentTypeImage:
		return caption(p.Image)
	case messages.ContentTypeVideo:
		return caption(p.Video)
	case messages.ContentTypeAudio:
		return caption(p.Audio)
	case messages.ContentTypeFile:
		return caption(p.File)
	case messages.ContentTypeSticker:
		return caption(p.Sticker)
	case messages.ContentTypeReply:
		if p.Reply != nil {
			return p.Reply.Title
		}
	case messages.ContentTypeButton:
		if p.Button != nil {
			return p.Button.Text
		}
	}
	return ""
}

// MediaURL extracts the remote media location for media kinds.
func (p InboundPayload) MediaURL() string {
	switch p.ContentType() {
	case messages.ContentTypeImage:
		return mediaURL(p.Image)
	case messages.ContentTypeVideo:
		return mediaURL(p.Video)
	case messages.ContentTypeAudio:
		return mediaURL(p.Audio)
	case messages.ContentTypeFile:
		return mediaURL(p.File)
	case messages.ContentTypeSticker:
		return mediaURL(p.Sticker)
	}
	return ""
}

// Metadata keeps the structured parts that have no plain-text body.
func (p InboundPayload) Metadata() map[string]any {
	switch p.ContentType() {
	case messages.ContentTypeLocation:
		return p.Location
	case messages.ContentTypeReply:
		if p.Reply != nil {
			return map[string]any{"id": p.Reply.ID, "title": p.Reply.Title}
		}
	case messages.ContentTypeButton:
		if p.Button != nil {
			return map[string]any{"payload": p.Button.Payload, "text": p.Button.Text}
		}
	}
	return nil
}

func caption(m *mediaPart) string {
	if m == nil {
		return ""
	}
	return m.Caption
}

func mediaURL(m *mediaPart) string {
	if m == nil {
		return ""
	}
	return m.URL
}

// StatusPayload is the Messages API status callback body.
type StatusPayload struct {
	MessageUUID string `json:"message_uuid"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
}
