package messages

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the delivery state of a message, driven by channel callbacks.
type Status int

const (
	StatusSent Status = iota
	StatusRead
	StatusFailed
)

var statusNames = map[Status]string{
	StatusSent:   "sent",
	StatusRead:   "read",
	StatusFailed: "failed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// ParseStatus maps a channel status token to a Status. Unknown tokens return
// ok=false; callers treat those as a deliberate no-op for forward
// compatibility with new provider statuses.
func ParseStatus(token string) (Status, bool) {
	for status, name := range statusNames {
		if name == token {
			return status, true
		}
	}
	return 0, false
}

// Sender identifies which side produced a message.
type Sender int

const (
	SenderUser Sender = iota
	SenderBot
	SenderSystem
)

var senderNames = map[Sender]string{
	SenderUser:   "user",
	SenderBot:    "bot",
	SenderSystem: "system",
}

func (s Sender) String() string {
	if name, ok := senderNames[s]; ok {
		return name
	}
	return fmt.Sprintf("sender(%d)", int(s))
}

func (s Sender) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// ContentType is the channel-native payload kind of a message.
type ContentType int

const (
	ContentTypeText ContentType = iota
	ContentTypeImage
	ContentTypeVideo
	ContentTypeAudio
	ContentTypeFile
	ContentTypeLocation
	ContentTypeSticker
	ContentTypeUnsupported
	ContentTypeTemplate
	ContentTypeSurveyResponse
	ContentTypeReply
	ContentTypeButton
)

var contentTypeNames = map[ContentType]string{
	ContentTypeText:           "text",
	ContentTypeImage:          "image",
	ContentTypeVideo:          "video",
	ContentTypeAudio:          "audio",
	ContentTypeFile:           "file",
	ContentTypeLocation:       "location",
	ContentTypeSticker:        "sticker",
	ContentTypeUnsupported:    "unsupported",
	ContentTypeTemplate:       "template",
	ContentTypeSurveyResponse: "survey_response",
	ContentTypeReply:          "reply",
	ContentTypeButton:         "button",
}

func (t ContentType) String() string {
	if name, ok := contentTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("content_type(%d)", int(t))
}

func (t ContentType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// ParseContentType maps a webhook message_type token to a ContentType.
// Unknown tokens map to ContentTypeUnsupported.
func ParseContentType(token string) ContentType {
	for t, name := range contentTypeNames {
		if name == token {
			return t
		}
	}
	return ContentTypeUnsupported
}

// Message is one unit of channel traffic tied to a contact. status is the
// only field mutated after creation.
type Message struct {
	ID                int64          `json:"id"`
	ContactID         int64          `json:"contact_id"`
	Status            Status         `json:"status"`
	Sender            Sender         `json:"sender"`
	ContentType       ContentType    `json:"content_type"`
	Body              string         `json:"body,omitempty"`
	MediaURL          string         `json:"media_url,omitempty"`
	VonageID          string         `json:"vonage_id,omitempty"`
	CustomDestination string         `json:"custom_destination,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// CreateInput carries the immutable fields of a new message row.
type CreateInput struct {
	ContactID         int64
	Status            Status
	Sender            Sender
	ContentType       ContentType
	Body              string
	MediaURL          string
	VonageID          string
	CustomDestination string
	Metadata          map[string]any
}
