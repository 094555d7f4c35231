package emailsvc

import (
	"fmt"
	"mime"
	"net/http"
	"net/mail"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/esmeraldinha/backend/core"
)

var (
	host     = "https://api.sendgrid.com"
	endpoint = "/v3/mail/send"
)

type sendgridService struct {
	key        string
	from       *sgmail.Email
	subjPrefix string
	sandbox    bool
	logger     core.Logger
}

var _ core.EmailService = (*sendgridService)(nil)

// NewSendgridService sends through the SendGrid v3 API. Messages are validated but not
// delivered in test mode.
func NewSendgridService(conf *core.Config, logger core.Logger) core.EmailService {
	from := conf.DefaultFromEmail()
	return &sendgridService{
		key:        conf.SendgridApiKey,
		from:       sgmail.NewEmail(from.Name, from.Address),
		subjPrefix: "[" + conf.AppName + "] ",
		sandbox:    conf.TestMode,
		logger:     logger,
	}
}

func (svc sendgridService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		go func(msg *core.EmailMessage) {
			if err := msg.Render(); err != nil {
				svc.logger.Error(fmt.Sprintf("rendering email: %v", err), err)
				return
			}
			if msg.HasRecipients() && (msg.HasContent() || msg.HasAttachments()) {
				svc.send(*msg)
			}
		}(msg)
	}
}

func (svc sendgridService) prepare(msg core.EmailMessage) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = svc.subjPrefix + msg.Subject

	for _, to := range msg.To {
		p.AddTos(sgEmail(to))
	}
	for _, cc := range msg.Cc {
		p.AddCCs(sgEmail(cc))
	}
	for _, bcc := range msg.Bcc {
		p.AddBCCs(sgEmail(bcc))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)
	m.AddPersonalizations(p)

	// SendGrid rejects empty content values; an attachment-only message gets a text part
	switch {
	case msg.HasContent():
		if msg.TextContent != "" {
			m.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
		}
		if msg.HTMLContent != "" {
			m.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
		}
	default:
		m.AddContent(sgmail.NewContent("text/plain", attachmentsSummary(msg.Attachments)))
	}

	for _, a := range msg.Attachments {
		m.AddAttachment(sgAttachment(a))
	}

	if len(msg.Categories) > 0 {
		m.AddCategories(msg.Categories...)
	}
	if msg.TemplateName != "" {
		m.SetCustomArg("template", msg.TemplateName)
	}
	if svc.sandbox {
		m.SetMailSettings(sgmail.NewMailSettings().SetSandboxMode(sgmail.NewSetting(true)))
	}
	return m
}

func sgEmail(addr mail.Address) *sgmail.Email {
	return sgmail.NewEmail(addr.Name, addr.Address)
}

// sgAttachment declares UTF-8 on text attachments (exported calendars carry accented labels).
func sgAttachment(at core.Attachment) *sgmail.Attachment {
	ct := at.ContentType
	if mt, params, err := mime.ParseMediaType(ct); err == nil && strings.HasPrefix(mt, "text/") && params["charset"] == "" {
		params["charset"] = "utf-8"
		ct = mime.FormatMediaType(mt, params)
	}
	return &sgmail.Attachment{
		Content:     at.Content.String(),
		Type:        ct,
		Filename:    at.Filename,
		Disposition: "attachment",
	}
}

func attachmentsSummary(attachments []core.Attachment) string {
	names := make([]string, 0, len(attachments))
	for _, a := range attachments {
		names = append(names, a.Filename)
	}
	return "Attached: " + strings.Join(names, ", ")
}

func (svc sendgridService) send(msg core.EmailMessage) {
	req := sendgrid.GetRequest(svc.key, endpoint, host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(svc.prepare(msg))

	// retries while rate limited
	res, err := sendgrid.MakeRequestRetry(req)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("sending email %q: %v", msg.Subject, err), err)
	} else if res.StatusCode >= http.StatusBadRequest {
		svc.logger.Error(fmt.Sprintf("sending email %q - status: %d - Body: %s", msg.Subject, res.StatusCode, res.Body))
	}
}
