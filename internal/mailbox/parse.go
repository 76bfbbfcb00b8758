package mailbox

import (
	"io"
	"net/mail"
	"strings"

	"github.com/emersion/go-message"
)

// parseBody reads the raw message literal and fills in the plain-text and
// HTML bodies of m.
func parseBody(literal io.Reader, m *Message) {
	raw, err := io.ReadAll(literal)
	if err != nil || len(raw) == 0 {
		return
	}

	entity, err := message.Read(strings.NewReader(string(raw)))
	if err != nil {
		// 解析失败时退回到最简单的 RFC 5322 解析
		parsed, err := mail.ReadMessage(strings.NewReader(string(raw)))
		if err != nil {
			return
		}
		body, _ := io.ReadAll(parsed.Body)
		m.Body = string(body)
		return
	}

	parseEntity(entity, m)
}

// parseEntity recursively walks a MIME entity, keeping the first text/plain
// and text/html parts. Attachments and other media types are ignored; the
// agent only needs text to classify and reply.
func parseEntity(entity *message.Entity, m *Message) {
	mediaType, _, _ := entity.Header.ContentType()

	switch {
	case strings.HasPrefix(mediaType, "multipart/"):
		mr := entity.MultipartReader()
		for {
			part, err := mr.NextPart()
			if err != nil {
				return
			}
			parseEntity(part, m)
		}
	case mediaType == "text/plain" && m.Body == "":
		body, _ := io.ReadAll(entity.Body)
		m.Body = string(body)
	case mediaType == "text/html" && m.HTMLBody == "":
		body, _ := io.ReadAll(entity.Body)
		m.HTMLBody = string(body)
	}
}
