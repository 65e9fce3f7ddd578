package emailsvc

import (
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/admissions/core"
)

type consoleService struct {
	base             core.ContextData
	defaultFromEmail mail.Address
	subjPrefix       string
	out              io.Writer // nil: no output
	logger           core.Logger
}

var _ core.EmailService = (*consoleService)(nil)

func newConsoleService(conf *core.Config, logger core.Logger) consoleService {
	return consoleService{
		base:             core.ContextData{AppName: conf.AppName, FrontendBaseURL: conf.FrontendBaseURL},
		defaultFromEmail: conf.DefaultFromEmail,
		subjPrefix:       "[" + conf.AppName + "] ",
		logger:           logger,
	}
}

// NewConsoleService prints emails to the standard logger instead of sending them.
func NewConsoleService(conf *core.Config, logger core.Logger) core.EmailService {
	svc := newConsoleService(conf, logger)
	svc.out = log.Writer()
	return &svc
}

func (svc consoleService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		go svc.sendMessage(msg)
	}
}

func (svc consoleService) sendMessage(msg *core.EmailMessage) bool {
	if err := msg.Render(svc.base); err != nil {
		err = errors.Wrap(err, "rendering email")
		if svc.logger != nil {
			svc.logger.Error(err.Error(), err)
		}
		return false
	}
	if !msg.HasRecipients() || !msg.HasContent() {
		return false
	}
	if svc.out != nil {
		_, _ = io.WriteString(svc.out, svc.format(*msg))
	}
	return true
}

func (svc consoleService) format(msg core.EmailMessage) string {
	body := new(strings.Builder)

	_, _ = fmt.Fprintf(body, "From: %s\r\n", svc.defaultFromEmail.String())
	_, _ = fmt.Fprint(body, "MIME-Version: 1.0\r\n")
	_, _ = fmt.Fprintf(body, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	_, _ = fmt.Fprintf(body, "Subject: %s\r\n", svc.subjPrefix+msg.Subject)
	_, _ = fmt.Fprintf(body, "To: %s\r\n", joinAddresses(msg.To))
	if len(msg.Cc) > 0 {
		_, _ = fmt.Fprintf(body, "CC: %s\r\n", joinAddresses(msg.Cc))
	}
	if len(msg.Bcc) > 0 {
		_, _ = fmt.Fprintf(body, "BCC: %s\r\n", joinAddresses(msg.Bcc))
	}

	altW := multipart.NewWriter(body)
	_, _ = fmt.Fprintf(body, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", altW.Boundary())

	if w, err := altW.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/plain"}}); err == nil {
		_, _ = fmt.Fprintf(w, "%s\r\n", msg.TextContent)
	}
	if msg.HTMLContent != "" {
		if w, err := altW.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/html"}}); err == nil {
			_, _ = fmt.Fprintf(w, "%s\r\n", msg.HTMLContent)
		}
	}
	_ = altW.Close()
	return body.String()
}

func joinAddresses(addrs []mail.Address) string {
	toJoin := make([]string, 0, len(addrs))
	for _, a := range addrs {
		toJoin = append(toJoin, a.String())
	}
	return strings.Join(toJoin, ", ")
}

// ConsoleServiceMock renders messages synchronously and records them instead of printing.
type ConsoleServiceMock struct {
	consoleService

	mu   sync.Mutex
	sent []core.EmailMessage
}

func NewConsoleServiceMock(conf *core.Config) *ConsoleServiceMock {
	return &ConsoleServiceMock{consoleService: newConsoleService(conf, nil)}
}

func (svc *ConsoleServiceMock) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		if svc.sendMessage(msg) {
			svc.mu.Lock()
			svc.sent = append(svc.sent, *msg)
			svc.mu.Unlock()
		}
	}
}

func (svc *ConsoleServiceMock) SentMessages() []core.EmailMessage {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return append([]core.EmailMessage(nil), svc.sent...)
}

func (svc *ConsoleServiceMock) Reset() {
	svc.mu.Lock()
	svc.sent = nil
	svc.mu.Unlock()
}
