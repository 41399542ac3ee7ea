package whatsapp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"erp-whatsapp-bridge/internal/config"
)

// Client talks to the WhatsApp Cloud API. BaseURL is overridable so tests
// can point it at a local server.
type Client struct {
	Config  *config.Config
	BaseURL string

	sendClient   *http.Client
	lookupClient *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		Config:       cfg,
		BaseURL:      cfg.GraphBaseURL,
		sendClient:   &http.Client{Timeout: 30 * time.Second},
		lookupClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// --- Message Structures ---

type GenericMessage struct {
	MessagingProduct string          `json:"messaging_product"`
	To               string          `json:"to"`
	Type             string          `json:"type"`
	RecipientType    string          `json:"recipient_type,omitempty"`
	Text             *TextObj        `json:"text,omitempty"`
	Image            *MediaObj       `json:"image,omitempty"`
	Video            *MediaObj       `json:"video,omitempty"`
	Audio            *MediaObj       `json:"audio,omitempty"`
	Document         *MediaObj       `json:"document,omitempty"`
	Location         *LocationObj    `json:"location,omitempty"`
	Template         *TemplateObj    `json:"template,omitempty"`
	Interactive      *InteractiveObj `json:"interactive,omitempty"`
}

type TextObj struct {
	Body       string `json:"body"`
	PreviewUrl bool   `json:"preview_url,omitempty"`
}

type MediaObj struct {
	ID       string `json:"id,omitempty"`
	Link     string `json:"link,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"` // For documents
}

type LocationObj struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

type TemplateObj struct {
	Name       string         `json:"name"`
	Language   LanguageObj    `json:"language"`
	Components []ComponentObj `json:"components,omitempty"`
}

type LanguageObj struct {
	Code string `json:"code"`
}

type ComponentObj struct {
	Type       string         `json:"type"`
	SubType    string         `json:"sub_type,omitempty"`
	Parameters []ParameterObj `json:"parameters"`
	Index      string         `json:"index,omitempty"` // For buttons
}

type ParameterObj struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	Image    *MediaObj `json:"image,omitempty"`
	Document *MediaObj `json:"document,omitempty"`
}

type InteractiveObj struct {
	Type   string     `json:"type"`
	Header *HeaderObj `json:"header,omitempty"`
	Body   BodyObj    `json:"body"`
	Footer *FooterObj `json:"footer,omitempty"`
	Action ActionObj  `json:"action"`
}

type HeaderObj struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type BodyObj struct {
	Text string `json:"text"`
}

type FooterObj struct {
	Text string `json:"text"`
}

type ActionObj struct {
	Buttons []ButtonObj `json:"buttons,omitempty"`
}

type ButtonObj struct {
	Type  string   `json:"type"`
	Reply ReplyObj `json:"reply"`
}

type ReplyObj struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Outcome is the result of one send attempt. Provider-level failures never
// surface as a Go error: ErrorMessage carries the classified reason so the
// caller can persist the failure next to the attempted payload.
type Outcome struct {
	Data         map[string]interface{}
	MessageID    string
	RawResponse  string
	ErrorMessage string
}

func (o Outcome) Failed() bool {
	return o.ErrorMessage != ""
}

// Send posts one message payload to the /messages endpoint.
func (c *Client) Send(msg GenericMessage) Outcome {
	url := fmt.Sprintf("%s/%s/messages", c.BaseURL, c.Config.PhoneNumberID)

	body, err := json.Marshal(msg)
	if err != nil {
		return Outcome{ErrorMessage: fmt.Sprintf("payload marshal error: %v", err)}
	}

	req, err := http.NewRequest("POST", url, bytes.NewReader(body))
	if err != nil {
		return Outcome{ErrorMessage: fmt.Sprintf("request build error: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.Config.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.sendClient.Do(req)
	if err != nil {
		// Connection or timeout: transport failure, no retry at this layer.
		return Outcome{RawResponse: err.Error(), ErrorMessage: fmt.Sprintf("connection error: %v", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{RawResponse: err.Error(), ErrorMessage: fmt.Sprintf("response read error: %v", err)}
	}

	var data map[string]interface{}
	if err := json.Unmarshal(respBody, &data); err != nil {
		data = map[string]interface{}{}
	}

	if resp.StatusCode != http.StatusOK || data["error"] != nil {
		reason := classifyError(resp.StatusCode, data)
		log.Printf("WhatsApp API error: %s - full response: %s", reason, string(respBody))
		return Outcome{RawResponse: string(respBody), ErrorMessage: reason}
	}

	return Outcome{
		Data:        data,
		MessageID:   extractMessageID(data),
		RawResponse: string(respBody),
	}
}

func extractMessageID(data map[string]interface{}) string {
	messages, ok := data["messages"].([]interface{})
	if !ok || len(messages) == 0 {
		return ""
	}
	first, ok := messages[0].(map[string]interface{})
	if !ok {
		return ""
	}
	id, _ := first["id"].(string)
	return id
}

// classifyError turns a provider error body into an actionable explanation.
// Codes follow the Cloud API error reference.
func classifyError(statusCode int, data map[string]interface{}) string {
	errInfo, _ := data["error"].(map[string]interface{})

	message := fmt.Sprintf("HTTP %d error", statusCode)
	if m, ok := errInfo["message"].(string); ok && m != "" {
		message = m
	}
	errType := "Unknown"
	if t, ok := errInfo["type"].(string); ok && t != "" {
		errType = t
	}
	code := statusCode
	if f, ok := errInfo["code"].(float64); ok {
		code = int(f)
	}

	switch code {
	case 131047:
		message = "Phone number is not a valid WhatsApp number or is not registered on WhatsApp"
	case 131026:
		message = "24-hour session window expired: free-form text can only be sent within 24h of the customer's last message. Use an approved WhatsApp template."
	case 131031:
		message = "Phone number is not allowed. In development mode only numbers on your test list can be messaged."
	case 131048:
		message = "Message failed to send because of spam rate limits. Reduce the sending rate to this number."
	case 133010:
		message = "Phone number is not registered on the WhatsApp Business Platform. Register the number in the app dashboard."
	case 190:
		message = "Access token invalid or expired. Regenerate the access token."
	case 100:
		message = "Invalid parameters. Check the phone number format."
	}

	full := fmt.Sprintf("[%s] %s (Code: %d", errType, message, code)
	if sub, ok := errInfo["error_subcode"].(float64); ok {
		full += fmt.Sprintf(", SubCode: %d", int(sub))
	}
	return full + ")"
}

// --- Account / template lookups ---

func (c *Client) getJSON(url string, out interface{}) error {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Config.AccessToken)

	resp, err := c.lookupClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("API error: %s - %s", resp.Status, string(respBody))
	}
	return json.Unmarshal(respBody, out)
}

// VerifyConnection checks the credentials by fetching the phone number
// object.
func (c *Client) VerifyConnection() error {
	var out map[string]interface{}
	url := fmt.Sprintf("%s/%s", c.BaseURL, c.Config.PhoneNumberID)
	return c.getJSON(url, &out)
}

// RemoteTemplate is one entry of the business account's template list.
type RemoteTemplate struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Language   string          `json:"language"`
	Category   string          `json:"category"`
	Status     string          `json:"status"`
	Components json.RawMessage `json:"components"`
}

// FetchTemplates lists the message templates declared on the business
// account.
func (c *Client) FetchTemplates() ([]RemoteTemplate, error) {
	if c.Config.BusinessAccountID == "" {
		return nil, fmt.Errorf("WABA_ID not configured")
	}
	var out struct {
		Data []RemoteTemplate `json:"data"`
	}
	url := fmt.Sprintf("%s/%s/message_templates", c.BaseURL, c.Config.BusinessAccountID)
	if err := c.getJSON(url, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// FetchMediaURL resolves a media id to its short-lived download URL.
func (c *Client) FetchMediaURL(mediaID string) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	url := fmt.Sprintf("%s/%s", c.BaseURL, mediaID)
	if err := c.getJSON(url, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}
