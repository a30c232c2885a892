package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const twilioMessagesPath = "/2010-04-01/Accounts/{sid}/Messages.json"

// TwilioSender sends SMS through the Twilio REST API.
type TwilioSender struct {
	client *resty.Client
	sid    string
	from   string
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func NewTwilioSender(baseURL, accountSID, authToken, from string) *TwilioSender {
	client := resty.New().
		SetBaseURL(baseURL).
		SetBasicAuth(accountSID, authToken).
		SetTimeout(15 * time.Second)

	return &TwilioSender{client: client, sid: accountSID, from: from}
}

func (s *TwilioSender) SendSMS(ctx context.Context, phone, text string) error {
	if s.sid == "" || s.from == "" {
		return errors.New("twilio is not configured")
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("sid", s.sid).
		SetFormData(map[string]string{
			"To":   phone,
			"From": s.from,
			"Body": text,
		}).
		SetError(&twilioError{}).
		Post(twilioMessagesPath)
	if err != nil {
		return fmt.Errorf("twilio request: %w", err)
	}

	if resp.IsError() {
		if e, ok := resp.Error().(*twilioError); ok && e.Message != "" {
			return fmt.Errorf("twilio: %d %s (code %d)", resp.StatusCode(), e.Message, e.Code)
		}
		return fmt.Errorf("twilio: unexpected status %d", resp.StatusCode())
	}
	return nil
}
