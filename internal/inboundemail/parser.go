// Package inboundemail ingests replies delivered through the SES to S3
// pipeline: raw message parsing, thread correlation, and read receipts.
package inboundemail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ParsedEmail is the normalized view of one inbound message.
type ParsedEmail struct {
	Subject       *string
	Body          string
	SenderEmail   string
	ReceiverEmail string
	InReplyTo     string
	MessageID     string
}

// ReplyMessageID derives the thread correlation key from the In-Reply-To
// header. Gmail message ids are kept whole because the host part is what
// makes them unique; everything else is cut at the '@'.
func (p *ParsedEmail) ReplyMessageID() string {
	if p.InReplyTo == "" {
		return ""
	}
	if strings.Contains(p.InReplyTo, "mail.gmail.com") {
		return p.InReplyTo
	}
	if idx := strings.IndexByte(p.InReplyTo, '@'); idx >= 0 {
		return p.InReplyTo[:idx]
	}
	return p.InReplyTo
}

// Attachment is a decoded file carried by an inbound message.
type Attachment struct {
	ContentType    string
	ContentSubtype *string
	Filename       string
	Data           []byte
}

// UploadedAttachment describes an attachment after it has been archived to
// object storage.
type UploadedAttachment struct {
	ContentType    string
	ContentSubtype *string
	Filename       string
	URL            string
}

// ParseEmail parses a raw RFC 5322 message into its normalized form plus any
// attachments. The message id, sender, receiver, and a text body are
// required.
func ParseEmail(raw []byte) (*ParsedEmail, []Attachment, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("read message: %w", err)
	}

	messageID := trimMessageID(msg.Header.Get("Message-ID"))
	if messageID == "" {
		return nil, nil, fmt.Errorf("message has no Message-ID header")
	}

	sender, err := firstAddress(msg.Header.Get("From"))
	if err != nil {
		return nil, nil, fmt.Errorf("parse sender: %w", err)
	}
	receiver, err := firstAddress(msg.Header.Get("To"))
	if err != nil {
		return nil, nil, fmt.Errorf("parse receiver: %w", err)
	}

	var subject *string
	if raw := msg.Header.Get("Subject"); raw != "" {
		decoded := decodeHeader(raw)
		subject = &decoded
	}

	body, attachments, err := extractParts(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body)
	if err != nil {
		return nil, nil, err
	}
	if body == "" {
		return nil, nil, fmt.Errorf("message has no text body")
	}

	parsed := &ParsedEmail{
		Subject:       subject,
		Body:          ExtractReply(body),
		SenderEmail:   sender,
		ReceiverEmail: receiver,
		InReplyTo:     trimMessageID(msg.Header.Get("In-Reply-To")),
		MessageID:     messageID,
	}
	return parsed, attachments, nil
}

var replyDelimiters = []*regexp.Regexp{
	regexp.MustCompile(`^On .+ wrote:\s*$`),
	regexp.MustCompile(`^-+\s*Original Message\s*-+$`),
	regexp.MustCompile(`^From: .+$`),
}

// ExtractReply strips the quoted history from a reply body, keeping only the
// text the sender actually wrote.
func ExtractReply(body string) string {
	var kept []string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimRight(line, "\r")
		if strings.HasPrefix(trimmed, ">") {
			continue
		}
		if isReplyDelimiter(trimmed) {
			break
		}
		kept = append(kept, trimmed)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func isReplyDelimiter(line string) bool {
	for _, delimiter := range replyDelimiters {
		if delimiter.MatchString(line) {
			return true
		}
	}
	return false
}

// extractParts walks the MIME structure collecting the first text/plain body
// and every attachment.
func extractParts(contentType, transferEncoding string, body io.Reader) (string, []Attachment, error) {
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", nil, fmt.Errorf("parse content type: %w", err)
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return "", nil, fmt.Errorf("multipart message has no boundary")
		}
		return walkMultipart(multipart.NewReader(body, boundary))
	}

	if mediaType == "text/plain" {
		data, err := decodeBody(body, transferEncoding)
		if err != nil {
			return "", nil, err
		}
		return string(data), nil, nil
	}

	return "", nil, nil
}

func walkMultipart(reader *multipart.Reader) (string, []Attachment, error) {
	var body string
	var attachments []Attachment

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", nil, fmt.Errorf("read part: %w", err)
		}

		partType := part.Header.Get("Content-Type")
		if partType == "" {
			partType = "text/plain"
		}
		mediaType, params, err := mime.ParseMediaType(partType)
		if err != nil {
			continue
		}

		switch {
		case strings.HasPrefix(mediaType, "multipart/"):
			nested, nestedAttachments, err := walkMultipart(multipart.NewReader(part, params["boundary"]))
			if err != nil {
				return "", nil, err
			}
			if body == "" {
				body = nested
			}
			attachments = append(attachments, nestedAttachments...)

		case isAttachmentPart(part, params):
			attachment, err := readAttachment(part, mediaType, params)
			if err != nil {
				return "", nil, err
			}
			attachments = append(attachments, *attachment)

		case mediaType == "text/plain" && body == "":
			data, err := decodeBody(part, part.Header.Get("Content-Transfer-Encoding"))
			if err != nil {
				return "", nil, err
			}
			body = string(data)
		}
	}

	return body, attachments, nil
}

func isAttachmentPart(part *multipart.Part, contentTypeParams map[string]string) bool {
	disposition := part.Header.Get("Content-Disposition")
	if disposition != "" {
		mediaType, _, err := mime.ParseMediaType(disposition)
		if err == nil && mediaType == "attachment" {
			return true
		}
	}
	return part.FileName() != "" || contentTypeParams["name"] != ""
}

func readAttachment(part *multipart.Part, mediaType string, params map[string]string) (*Attachment, error) {
	data, err := decodeBody(part, part.Header.Get("Content-Transfer-Encoding"))
	if err != nil {
		return nil, fmt.Errorf("decode attachment: %w", err)
	}

	filename := part.FileName()
	if filename == "" {
		filename = params["name"]
	}
	if filename == "" {
		filename = fmt.Sprintf("attachment-%s.bin", uuid.New().String())
	}

	contentType := mediaType
	var contentSubtype *string
	if idx := strings.IndexByte(mediaType, '/'); idx >= 0 {
		contentType = mediaType[:idx]
		subtype := mediaType[idx+1:]
		contentSubtype = &subtype
	}

	return &Attachment{
		ContentType:    contentType,
		ContentSubtype: contentSubtype,
		Filename:       decodeHeader(filename),
		Data:           data,
	}, nil
}

func decodeBody(reader io.Reader, transferEncoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(transferEncoding)) {
	case "base64":
		reader = base64.NewDecoder(base64.StdEncoding, newWhitespaceStrippingReader(reader))
	case "quoted-printable":
		reader = quotedprintable.NewReader(reader)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

// whitespaceStrippingReader drops CR and LF so base64 bodies wrapped at 76
// columns decode cleanly.
type whitespaceStrippingReader struct {
	inner io.Reader
}

func newWhitespaceStrippingReader(inner io.Reader) io.Reader {
	return &whitespaceStrippingReader{inner: inner}
}

func (r *whitespaceStrippingReader) Read(p []byte) (int, error) {
	n, err := r.inner.Read(p)
	kept := 0
	for i := 0; i < n; i++ {
		if p[i] == '\r' || p[i] == '\n' {
			continue
		}
		p[kept] = p[i]
		kept++
	}
	if kept == 0 && err == nil && n > 0 {
		return r.Read(p)
	}
	return kept, err
}

func firstAddress(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("header is empty")
	}
	addresses, err := mail.ParseAddressList(header)
	if err != nil {
		return "", err
	}
	if len(addresses) == 0 {
		return "", fmt.Errorf("no addresses in header")
	}
	return addresses[0].Address, nil
}

func trimMessageID(raw string) string {
	return strings.Trim(strings.TrimSpace(raw), "<>")
}

func decodeHeader(raw string) string {
	decoder := mime.WordDecoder{}
	decoded, err := decoder.DecodeHeader(raw)
	if err != nil {
		return raw
	}
	return decoded
}
