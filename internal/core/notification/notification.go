package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Sender is the opaque outbound-messaging contract. Delivery infrastructure
// lives outside this service; failures here never block order processing.
type Sender interface {
	SendSMS(phone, message string) error
	// SendWhatsApp is fire-and-forget: errors are logged, not returned.
	SendWhatsApp(phone, message string)
}

// HTTPSender posts messages to the configured SMS and WhatsApp bridges.
type HTTPSender struct {
	smsURL      string
	smsKey      string
	whatsappURL string
	whatsappKey string
	client      *http.Client
}

func NewHTTPSender(smsURL, smsKey, whatsappURL, whatsappKey string) *HTTPSender {
	return &HTTPSender{
		smsURL:      strings.TrimRight(smsURL, "/"),
		smsKey:      smsKey,
		whatsappURL: strings.TrimRight(whatsappURL, "/"),
		whatsappKey: whatsappKey,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (s *HTTPSender) SendSMS(phone, message string) error {
	if s.smsURL == "" {
		return nil
	}
	return s.post(s.smsURL+"/send", s.smsKey, phone, message)
}

func (s *HTTPSender) SendWhatsApp(phone, message string) {
	if s.whatsappURL == "" {
		return
	}
	if err := s.post(s.whatsappURL+"/send", s.whatsappKey, phone, message); err != nil {
		log.Warn().Err(err).Str("phone", phone).Msg("WhatsApp send failed")
	}
}

func (s *HTTPSender) post(url, key, phone, message string) error {
	payload, err := json.Marshal(map[string]string{
		"phone":   phone,
		"message": message,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification provider returned status %d", resp.StatusCode)
	}
	return nil
}

// PaymentReceivedMessage is the confirmation sent once an order is paid.
func PaymentReceivedMessage(name, orderNumber string) string {
	return fmt.Sprintf("مرحباً %s،\n\nتم استلام طلبك بنجاح.\n\nرقم الطلب: %s\n", name, orderNumber)
}

var _ Sender = (*HTTPSender)(nil)
