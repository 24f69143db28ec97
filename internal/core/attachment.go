package core

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const maxAttachmentBytes = 10 << 20

var ErrInvalidAttachment = errors.New("invalid image attachment")

// Attachment is an image the user sent along with a message.
type Attachment struct {
	Data     []byte
	MIMEType string
}

// NewAttachment validates raw image bytes. The MIME type is sniffed from the
// content, never trusted from the client.
func NewAttachment(data []byte) (*Attachment, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAttachment)
	}
	if len(data) > maxAttachmentBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit", ErrInvalidAttachment, len(data))
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, fmt.Errorf("%w: unsupported type %s", ErrInvalidAttachment, mt.String())
	}
	return &Attachment{Data: data, MIMEType: mt.String()}, nil
}

// ParseDataURL decodes a base64 "data:<mime>;base64,<payload>" URL into an Attachment.
func ParseDataURL(dataURL string) (*Attachment, error) {
	meta, payload, ok := strings.Cut(dataURL, ",")
	if !ok || !strings.HasPrefix(meta, "data:") || !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("%w: not a base64 data URL", ErrInvalidAttachment)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAttachment, err)
	}
	return NewAttachment(data)
}

// DataURL renders the attachment the way it is stored on the user message.
func (a *Attachment) DataURL() string {
	return "data:" + a.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}

func (a *Attachment) Part() ImagePart {
	return ImagePart{Data: a.Data, MIMEType: a.MIMEType}
}
