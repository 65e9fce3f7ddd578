package core

import (
	"bytes"
	"fmt"
	htmltmpl "html/template"
	"io/fs"
	"net/mail"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"

	appfs "github.com/trezcool/admissions/fs"
)

const emailTemplatesDir = "templates/email"

var (
	templates tmplCache
	tmplMu    sync.RWMutex
)

type (
	tmplCacheEntry struct {
		text *texttmpl.Template
		html *htmltmpl.Template
	}
	tmplCache map[string]*tmplCacheEntry // {name: entry}

	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Bcc     []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	ContextData struct {
		AppName         string
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

func (m *EmailMessage) getTemplate(name string) (*tmplCacheEntry, bool) {
	tmplMu.RLock()
	defer tmplMu.RUnlock()
	entry, ok := templates[name]
	return entry, ok
}

// Render fills TextContent and HTMLContent. base carries the app-wide template data.
func (m *EmailMessage) Render(base ContextData) error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
	}
	if m.TemplateName == "" {
		return nil
	}

	entry, ok := m.getTemplate(m.TemplateName)
	if !ok {
		return fmt.Errorf("email template %q not found", m.TemplateName)
	}
	base.Data = m.TemplateData

	if entry.text != nil && m.BodyStr == "" {
		var buff bytes.Buffer
		if err := entry.text.ExecuteTemplate(&buff, "base", base); err != nil {
			return err
		}
		m.TextContent = buff.String()
	}
	if entry.html != nil {
		var buff bytes.Buffer
		if err := entry.html.ExecuteTemplate(&buff, "base", base); err != nil {
			return err
		}
		m.HTMLContent = buff.String()
	}
	return nil
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }

// ParseEmailTemplates loads the embedded email templates once at startup.
func ParseEmailTemplates(logger Logger) {
	cache := make(tmplCache)

	fps, err := fs.Glob(appfs.FS, path.Join(emailTemplatesDir, "*"))
	if err != nil {
		logger.Error(fmt.Sprintf("core.ParseEmailTemplates: %v", err), err)
		return
	}

	for _, fp := range fps {
		fname := path.Base(fp)
		ext := path.Ext(fname)
		if strings.HasPrefix(fname, "_") || !(ext == ".txt" || ext == ".gohtml") {
			continue
		}
		name := strings.TrimSuffix(fname, ext)
		entry, ok := cache[name]
		if !ok {
			entry = new(tmplCacheEntry)
			cache[name] = entry
		}
		if ext == ".txt" {
			tmpl, err := texttmpl.ParseFS(appfs.FS, path.Join(emailTemplatesDir, "_base.txt"), fp)
			if err != nil {
				logger.Error(fmt.Sprintf("core.ParseEmailTemplates(%s): %v", fname, err), err)
				continue
			}
			entry.text = tmpl.Option("missingkey=error")
		} else {
			tmpl, err := htmltmpl.ParseFS(appfs.FS, path.Join(emailTemplatesDir, "_base.gohtml"), fp)
			if err != nil {
				logger.Error(fmt.Sprintf("core.ParseEmailTemplates(%s): %v", fname, err), err)
				continue
			}
			entry.html = tmpl.Option("missingkey=error")
		}
	}

	tmplMu.Lock()
	templates = cache
	tmplMu.Unlock()
}
