// Package delivery sends campaign messages through the Termii SMS
// gateway. The client never retries: every contact gets at most one
// send attempt and the provider's verdict is reported back verbatim.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ErrUnavailable reports a client without credentials. Sends are
// refused before any network traffic happens.
var ErrUnavailable = errors.New("delivery client is not configured")

const maxRawResponseBytes = 700

// Client is the surface the dispatch worker depends on.
type Client interface {
	Send(ctx context.Context, phone, text string) (Outcome, error)
}

// Outcome is the provider's verdict for a single message. A send that
// reached the provider but was rejected is an Outcome with Accepted
// false, not an error; errors are reserved for requests that never got
// a response.
type Outcome struct {
	Accepted  bool
	MessageID string
	// Raw is the provider response body, always valid JSON: either the
	// body itself or its truncated text re-encoded as a JSON string.
	Raw json.RawMessage
}

// SuccessPredicate decides whether a decoded provider response counts
// as an accepted message.
type SuccessPredicate func(code, message string) bool

// DefaultSuccess matches both response revisions Termii has shipped:
// older deployments answer message "Successfully Sent" without a code,
// newer ones answer code "ok".
func DefaultSuccess(code, message string) bool {
	if code == "ok" {
		return true
	}
	return strings.HasPrefix(strings.ToLower(message), "success")
}

type TermiiConfig struct {
	APIKey     string
	SenderID   string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Success    SuccessPredicate
}

type TermiiClient struct {
	apiKey     string
	senderID   string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	success    SuccessPredicate
}

func NewTermiiClient(config TermiiConfig) *TermiiClient {
	if strings.TrimSpace(config.BaseURL) == "" {
		config.BaseURL = "https://v3.api.termii.com"
	}
	if strings.TrimSpace(config.SenderID) == "" {
		config.SenderID = "InfoText"
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	if config.Success == nil {
		config.Success = DefaultSuccess
	}

	return &TermiiClient{
		apiKey:     strings.TrimSpace(config.APIKey),
		senderID:   strings.TrimSpace(config.SenderID),
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		timeout:    config.Timeout,
		httpClient: config.HTTPClient,
		success:    config.Success,
	}
}

func (c *TermiiClient) Available() bool {
	return c.apiKey != ""
}

type termiiSendRequest struct {
	To      string `json:"to"`
	From    string `json:"from"`
	SMS     string `json:"sms"`
	Type    string `json:"type"`
	Channel string `json:"channel"`
	APIKey  string `json:"api_key"`
}

type termiiSendResponse struct {
	MessageID string `json:"message_id"`
	Message   string `json:"message"`
	Code      string `json:"code"`
}

// Send posts one message. The configured timeout bounds the whole
// round trip regardless of the caller's context.
func (c *TermiiClient) Send(ctx context.Context, phone, text string) (Outcome, error) {
	if !c.Available() {
		return Outcome{}, ErrUnavailable
	}
	if strings.TrimSpace(phone) == "" {
		return Outcome{}, eris.New("recipient phone is required")
	}
	if strings.TrimSpace(text) == "" {
		return Outcome{}, eris.New("message text is required")
	}

	payload := termiiSendRequest{
		To:      phone,
		From:    c.senderID,
		SMS:     text,
		Type:    "plain",
		Channel: "generic",
		APIKey:  c.apiKey,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return Outcome{}, eris.Wrap(err, "marshal termii payload")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(
		timeoutCtx,
		http.MethodPost,
		c.baseURL+"/api/sms/send",
		bytes.NewReader(encoded),
	)
	if err != nil {
		return Outcome{}, eris.Wrap(err, "create termii request")
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return Outcome{}, eris.Wrap(err, "termii timeout")
		}
		return Outcome{}, eris.Wrap(err, "termii transport error")
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return Outcome{}, eris.Wrap(err, "read termii response")
	}

	raw := rawPayload(body)
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return Outcome{Accepted: false, Raw: raw}, nil
	}

	var decoded termiiSendResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Outcome{Accepted: false, Raw: raw}, nil
	}

	return Outcome{
		Accepted:  c.success(decoded.Code, decoded.Message),
		MessageID: decoded.MessageID,
		Raw:       raw,
	}, nil
}

// rawPayload keeps provider responses loggable and embeddable: valid
// JSON bodies within the size cap pass through, everything else is
// truncated and re-encoded as a JSON string.
func rawPayload(body []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && len(trimmed) <= maxRawResponseBytes && json.Valid(trimmed) {
		return append(json.RawMessage(nil), trimmed...)
	}

	text := string(trimmed)
	if len(text) > maxRawResponseBytes {
		text = text[:maxRawResponseBytes]
	}
	encoded, err := json.Marshal(text)
	if err != nil {
		return json.RawMessage(`""`)
	}
	return encoded
}
