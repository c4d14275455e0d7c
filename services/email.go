package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	mailgunv3 "github.com/mailgun/mailgun-go/v3"
	fastshot "github.com/opus-domini/fast-shot"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/fintrackhq/fintrack/config"
	"github.com/fintrackhq/fintrack/types"
	u "github.com/fintrackhq/fintrack/utils"
	"github.com/fintrackhq/fintrack/utils/logger"
)

var (
	notificationConf = config.NotificationConfig()

	mailgunClient       mailgunv3.Mailgun
	_DefaultFromAddress = notificationConf.EmailFromAddress
)

// MailProvider selects the outbound mail backend.
type MailProvider string

const (
	MAILGUN_MAIL_PROVIDER  MailProvider = "mailgun"
	SENDGRID_MAIL_PROVIDER MailProvider = "sendgrid"
)

// UserDirectory resolves a user id to a deliverable address. The user
// store itself lives outside this service.
type UserDirectory func(ctx context.Context, userID uuid.UUID) (email string, firstName string, err error)

// HTTPUserDirectory resolves users against the account service over HTTP.
func HTTPUserDirectory(conf *config.NotificationConfiguration) UserDirectory {
	return func(ctx context.Context, userID uuid.UUID) (string, string, error) {
		client := fastshot.NewClient(conf.UserServiceURL).
			Config().SetTimeout(30 * time.Second).
			Header().AddAll(map[string]string{
			"Accept":    "application/json",
			"X-API-KEY": conf.UserServiceAPIKey,
		}).
			Build()

		_ = ctx
		res, err := client.GET(fmt.Sprintf("/v1/users/%s", userID)).Send()
		if err != nil {
			return "", "", fmt.Errorf("failed to fetch user %s: %w", userID, err)
		}

		data, err := u.ParseJSONResponse(res.RawResponse)
		if err != nil {
			return "", "", fmt.Errorf("failed to parse user response: %w", err)
		}

		email, _ := data["email"].(string)
		firstName, _ := data["first_name"].(string)
		if email == "" {
			return "", "", fmt.Errorf("user %s has no email on record", userID)
		}
		return email, firstName, nil
	}
}

// EmailService sends user-facing notifications via a mail provider.
type EmailService struct {
	MailProvider MailProvider
	directory    UserDirectory
}

// NewEmailService creates an EmailService with the given mail provider
// and user directory.
func NewEmailService(mailProvider MailProvider, directory UserDirectory) *EmailService {
	return &EmailService{MailProvider: mailProvider, directory: directory}
}

// NewMailgun initializes mailgunv3.Mailgun and can be used to install a
// mocked Mailgun interface.
func NewMailgun(m mailgunv3.Mailgun) {
	if m != nil {
		mailgunClient = m
		return
	}

	mailgunClient = mailgunv3.NewMailgun(notificationConf.EmailDomain, notificationConf.EmailAPIKey)
}

// SendEmail performs the action for sending an email.
func (m *EmailService) SendEmail(ctx context.Context, payload types.SendEmailPayload) (types.SendEmailResponse, error) {
	switch m.MailProvider {
	case MAILGUN_MAIL_PROVIDER:
		return sendEmailViaMailgun(ctx, payload)
	case SENDGRID_MAIL_PROVIDER:
		return sendEmailViaSendGrid(ctx, payload)
	default:
		return types.SendEmailResponse{}, fmt.Errorf("unsupported mail provider")
	}
}

// SendReconnectPromptEmail tells the user a bank connection broke and
// needs re-authorization.
func (m *EmailService) SendReconnectPromptEmail(ctx context.Context, email, firstName string) (types.SendEmailResponse, error) {
	greeting := "Hi"
	if firstName != "" {
		greeting = fmt.Sprintf("Hi %s", firstName)
	}

	payload := types.SendEmailPayload{
		FromAddress: _DefaultFromAddress,
		ToAddress:   email,
		Subject:     "One of your bank connections needs attention",
		Body: fmt.Sprintf(
			"%s,\n\nA connection to one of your linked institutions has expired or been revoked. "+
				"Open your dashboard and reconnect the institution to keep your balances and transactions up to date.\n",
			greeting,
		),
	}
	return m.SendEmail(ctx, payload)
}

// NotifyConnectionBroken resolves the user's address and sends the
// reconnect prompt. Delivery problems are logged, never propagated, so
// the webhook path that triggered the notice cannot fail on email.
func (m *EmailService) NotifyConnectionBroken(ctx context.Context, userID uuid.UUID, connectionID string) {
	email, firstName, err := m.directory(ctx, userID)
	if err != nil {
		logger.WithFields(logger.Fields{
			"Error":        fmt.Sprintf("%v", err),
			"UserID":       userID.String(),
			"ConnectionID": connectionID,
		}).Errorf("failed to resolve user for reconnect prompt")
		return
	}

	if _, err := m.SendReconnectPromptEmail(ctx, email, firstName); err != nil {
		logger.WithFields(logger.Fields{
			"Error":        fmt.Sprintf("%v", err),
			"UserID":       userID.String(),
			"ConnectionID": connectionID,
		}).Errorf("failed to send reconnect prompt email")
	}
}

// sendEmailViaMailgun performs the actions for sending an email.
func sendEmailViaMailgun(ctx context.Context, content types.SendEmailPayload) (types.SendEmailResponse, error) {
	NewMailgun(mailgunClient)

	message := mailgunClient.NewMessage(
		content.FromAddress,
		content.Subject,
		content.Body,
		content.ToAddress,
	)

	response, id, err := mailgunClient.Send(ctx, message)

	return types.SendEmailResponse{Id: id, Response: response}, err
}

// sendEmailViaSendGrid performs the actions for sending an email.
func sendEmailViaSendGrid(ctx context.Context, content types.SendEmailPayload) (types.SendEmailResponse, error) {
	_ = ctx
	from := mail.NewEmail("", content.FromAddress)
	to := mail.NewEmail("", content.ToAddress)
	body := mail.NewContent("text/plain", content.Body)

	m := mail.NewV3Mail()
	m.Subject = content.Subject
	m.SetFrom(from)
	m.AddContent(body)
	if content.HTMLBody != "" {
		m.AddContent(mail.NewContent("text/html", content.HTMLBody))
	}

	personalization := mail.NewPersonalization()
	personalization.AddTos(to)
	m.AddPersonalizations(personalization)

	request := sendgrid.GetRequest(notificationConf.EmailAPIKey, "/v3/mail/send", "https://api.sendgrid.com")
	request.Method = "POST"
	request.Body = mail.GetRequestBody(m)

	response, err := sendgrid.API(request)
	if err != nil {
		return types.SendEmailResponse{}, err
	}
	if response.StatusCode >= 300 {
		return types.SendEmailResponse{}, fmt.Errorf("sendgrid send failed with status %d: %s", response.StatusCode, response.Body)
	}

	var messageID string
	if ids := response.Headers["X-Message-Id"]; len(ids) > 0 {
		messageID = ids[0]
	}
	return types.SendEmailResponse{
		Id:       messageID,
		Response: response.Body,
	}, nil
}
