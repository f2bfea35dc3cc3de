package provider

import (
	"context"

	"gopkg.in/gomail.v2"

	"github.com/nexhub/outreach-backend/internal/apperrors"
)

// SMTPProvider delivers through a plain SMTP relay. There is no batch API at
// the SMTP level, so a batch reuses one connection and yields a per-recipient
// result for each message.
type SMTPProvider struct {
	host     string
	port     int
	user     string
	password string
}

func NewSMTPProvider(host string, port int, user, password string) *SMTPProvider {
	return &SMTPProvider{host: host, port: port, user: user, password: password}
}

func (p *SMTPProvider) Send(ctx context.Context, req SendRequest) (RecipientResult, error) {
	d := gomail.NewDialer(p.host, p.port, p.user, p.password)

	closer, err := d.Dial()
	if err != nil {
		// Could not reach the relay at all: whole-call failure, transient.
		return RecipientResult{To: req.To}, apperrors.NewProviderError(err.Error(), true)
	}
	defer closer.Close()

	if err := gomail.Send(closer, buildMessage(req)); err != nil {
		return RecipientResult{To: req.To, Error: err.Error()}, nil
	}
	return RecipientResult{To: req.To, Success: true}, nil
}

func (p *SMTPProvider) SendBatch(ctx context.Context, reqs []SendRequest) ([]RecipientResult, error) {
	d := gomail.NewDialer(p.host, p.port, p.user, p.password)

	closer, err := d.Dial()
	if err != nil {
		return nil, apperrors.NewProviderError(err.Error(), true)
	}
	defer closer.Close()

	results := make([]RecipientResult, len(reqs))
	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.NewProviderError(err.Error(), false)
		}
		if err := gomail.Send(closer, buildMessage(req)); err != nil {
			// A rejected recipient is an individual failure, not a call failure.
			results[i] = RecipientResult{To: req.To, Error: err.Error()}
			continue
		}
		results[i] = RecipientResult{To: req.To, Success: true}
	}
	return results, nil
}

func buildMessage(req SendRequest) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", req.From)
	m.SetHeader("To", req.To)
	m.SetHeader("Subject", req.Subject)
	m.SetBody("text/html", req.HTML)
	return m
}

var _ DeliveryProvider = (*SMTPProvider)(nil)
