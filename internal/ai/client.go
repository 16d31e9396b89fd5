package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
)

type Client struct {
	client *openai.Client
	model  string
}

func New(apiKey, baseURL, model string) *Client {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

func (c *Client) SetModel(model string) {
	c.model = model
}

// ParsedReminder is the structured result of a natural-language reminder
// request.
type ParsedReminder struct {
	Title        string  `json:"title"`
	Message      string  `json:"message"`
	LocalTime    string  `json:"local_time"` // YYYY-MM-DD HH:MM in the user's zone
	RRule        string  `json:"rrule"`      // RFC 5545 RRULE, empty for one-time
	LeadMinutes  []int64 `json:"lead_minutes"`
	Confidence   float64 `json:"confidence"`
	NeedMoreInfo bool    `json:"need_more_info"`
	FollowUp     string  `json:"follow_up"`
	RawResponse  string  `json:"-"`
}

const systemPromptTemplate = `You are the reminder parser for Chime, a personal reminder assistant.
Convert the user's natural-language request into a structured reminder.

Current time: %s
User time zone: %s

Rules:
1. Resolve relative times ("tomorrow", "next Monday", "in 3 hours") against
   the current time and output local_time as YYYY-MM-DD HH:MM.
2. For recurring requests emit an RFC 5545 RRULE with a plain frequency and
   no interval (FREQ=DAILY, FREQ=WEEKLY, FREQ=MONTHLY or FREQ=YEARLY);
   leave rrule empty for one-time reminders.
3. lead_minutes lists how many minutes before the event each notification
   should fire ("remind me a day before" -> [1440]); use [0] when the user
   wants the reminder at the event time.
4. When the request lacks a time or a subject, set need_more_info = true
   and put the question to ask in follow_up.`

func getSystemPrompt(tz string) string {
	now := time.Now()
	return fmt.Sprintf(systemPromptTemplate, now.Format("2006-01-02 15:04 (Monday)"), tz)
}

// JSON Schema for structured output
var reminderSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"title": {
			"type": "string",
			"description": "Short reminder title"
		},
		"message": {
			"type": "string",
			"description": "Notification body, may equal the title"
		},
		"local_time": {
			"type": "string",
			"description": "Event time as YYYY-MM-DD HH:MM in the user's time zone"
		},
		"rrule": {
			"type": "string",
			"description": "RFC 5545 RRULE for recurring reminders, empty for one-time"
		},
		"lead_minutes": {
			"type": "array",
			"items": {"type": "integer", "minimum": 0},
			"description": "Minutes before the event for each notification"
		},
		"confidence": {
			"type": "number",
			"minimum": 0,
			"maximum": 1,
			"description": "Confidence score between 0 and 1"
		},
		"need_more_info": {
			"type": "boolean",
			"description": "Whether more information is needed from the user"
		},
		"follow_up": {
			"type": "string",
			"description": "The follow-up question when need_more_info is true"
		}
	},
	"required": ["title", "local_time", "confidence", "need_more_info"],
	"additionalProperties": false
}`)

// ParseReminder turns a natural-language request into a ParsedReminder.
func (c *Client) ParseReminder(ctx context.Context, tz, userMessage string) (*ParsedReminder, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: getSystemPrompt(tz),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userMessage,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "reminder",
				Schema: reminderSchema,
				Strict: true,
			},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call AI API: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from AI")
	}

	content := resp.Choices[0].Message.Content
	parsed := &ParsedReminder{RawResponse: content}

	if err := json.Unmarshal([]byte(content), parsed); err != nil {
		return nil, fmt.Errorf("failed to parse AI response: %w", err)
	}

	return parsed, nil
}
