package graph

import (
	"encoding/base64"

	"github.com/samber/lo"

	"github.com/shineum/bulk-mailer/internal/email"
)

const fileAttachmentType = "#microsoft.graph.fileAttachment"

// sendMailRequest is the JSON body of POST /users/{id}/sendMail.
type sendMailRequest struct {
	Message         outgoingMessage `json:"message"`
	SaveToSentItems bool            `json:"saveToSentItems"`
}

type outgoingMessage struct {
	Subject      string           `json:"subject"`
	Body         itemBody         `json:"body"`
	ToRecipients []mailbox        `json:"toRecipients"`
	CcRecipients []mailbox        `json:"ccRecipients,omitempty"`
	Attachments  []fileAttachment `json:"attachments,omitempty"`
}

type itemBody struct {
	ContentType string `json:"contentType"` // "text" or "html"
	Content     string `json:"content"`
}

type mailbox struct {
	EmailAddress struct {
		Address string `json:"address"`
	} `json:"emailAddress"`
}

type fileAttachment struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes string `json:"contentBytes"`
}

// apiError is the error envelope Graph returns on non-2xx responses.
type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func toMailbox(addr string, _ int) mailbox {
	var m mailbox
	m.EmailAddress.Address = addr
	return m
}

func toFileAttachment(att email.Attachment, _ int) fileAttachment {
	return fileAttachment{
		ODataType:    fileAttachmentType,
		Name:         att.Filename,
		ContentType:  att.ContentType,
		ContentBytes: base64.StdEncoding.EncodeToString(att.Content),
	}
}

// buildSendMailRequest maps msg onto the sendMail body. The HTML part wins
// when both bodies are set; sent copies are kept in the sender's mailbox.
func buildSendMailRequest(msg *email.Email) *sendMailRequest {
	body := itemBody{ContentType: "text", Content: msg.TextBody}
	if msg.HtmlBody != "" {
		body = itemBody{ContentType: "html", Content: msg.HtmlBody}
	}

	return &sendMailRequest{
		Message: outgoingMessage{
			Subject:      msg.Subject,
			Body:         body,
			ToRecipients: lo.Map(msg.To, toMailbox),
			CcRecipients: lo.Map(msg.Cc, toMailbox),
			Attachments:  lo.Map(msg.Attachments, toFileAttachment),
		},
		SaveToSentItems: true,
	}
}
