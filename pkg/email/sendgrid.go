package email

import (
	"context"
	"fmt"

	sendgridgo "github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

type Service interface {
	SendEmail(ctx context.Context, to, cc, subject, htmlBody string) error
}

type sendGridClient struct {
	client     *sendgridgo.Client
	sender     string
	senderName string
	logger     *zap.Logger
}

func NewSendGridClient(apiKey, sender, senderName string, logger *zap.Logger) Service {
	return sendGridClient{
		client:     sendgridgo.NewSendClient(apiKey),
		sender:     sender,
		senderName: senderName,
		logger:     logger,
	}
}

func (c sendGridClient) SendEmail(ctx context.Context, to, cc, subject, htmlBody string) error {
	from := mail.NewEmail(c.senderName, c.sender)

	message := mail.NewV3Mail()
	message.SetFrom(from)
	message.Subject = subject

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(to, to))
	if cc != "" && cc != to {
		p.AddCCs(mail.NewEmail(cc, cc))
	}
	message.AddPersonalizations(p)
	message.AddContent(mail.NewContent("text/html", htmlBody))

	resp, err := c.client.SendWithContext(ctx, message)
	if err != nil {
		c.logger.Error("send email error", zap.Error(err))
		return err
	}

	statusOK := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !statusOK {
		c.logger.Error("send email error",
			zap.String("recipient", to),
			zap.String("response", resp.Body),
		)
		return fmt.Errorf("sendgrid status: %d", resp.StatusCode)
	}

	c.logger.Info("letter sent", zap.String("recipient", to))
	return nil
}
