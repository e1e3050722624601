package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pauljones0/happymapper/internal/models"
	"github.com/pauljones0/happymapper/internal/schedule"
)

const (
	colorPendingReview = 16753920 // #FFA500

	maxAttempts     = 3
	maxEmbedFields  = 25
	maxFieldValue   = 1024
	baseBackoff     = 500 * time.Millisecond
	maxRetryAfter   = 30 * time.Second
	webhooksPerSec  = 0.5
	webhookBurst    = 5
	unknownFieldVal = "n/a"
)

// Client posts moderation notices for newly uploaded deals to a Discord webhook.
type Client struct {
	webhookURL  string
	client      *http.Client
	rateLimiter *rate.Limiter
}

func New(webhookURL string) *Client {
	return &Client{
		webhookURL:  webhookURL,
		client:      &http.Client{Timeout: 10 * time.Second},
		rateLimiter: rate.NewLimiter(rate.Limit(webhooksPerSec), webhookBurst),
	}
}

// Send posts a review notice and returns the Discord message ID. With no
// webhook configured it does nothing.
func (c *Client) Send(ctx context.Context, deal models.Deal) (string, error) {
	if c.webhookURL == "" {
		return "", nil
	}
	embed := formatDealToEmbed(deal)
	return c.sendAndGetMessageID(ctx, embed)
}

type discordWebhookPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds"`
}

type discordEmbedImage struct {
	URL string `json:"url,omitempty"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordEmbedFooter struct {
	Text string `json:"text,omitempty"`
}

type discordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	URL         string              `json:"url,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Thumbnail   discordEmbedImage   `json:"thumbnail,omitempty"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
	Footer      discordEmbedFooter  `json:"footer,omitempty"`
}

type discordMessageResponse struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

func formatDealToEmbed(deal models.Deal) discordEmbed {
	data := deal.ExtractedData

	var lines []string
	for _, item := range data.Deals {
		line := fmt.Sprintf("• %s: %s", item.Name, item.Price)
		if item.Description != nil {
			line += " (" + *item.Description + ")"
		}
		lines = append(lines, line)
	}
	description := strings.Join(lines, "\n")
	if description == "" {
		description = "No line items extracted."
	}

	fields := []discordEmbedField{
		{Name: "Uploaded By", Value: fieldValue(deal.UserID), Inline: true},
		{Name: "Venue", Value: fieldValue(deal.VenueID), Inline: true},
	}
	for _, tw := range data.TimeFrames {
		if len(fields) >= maxEmbedFields-1 {
			break
		}
		days := "Every day"
		if len(tw.Days) > 0 {
			days = strings.Join(schedule.CapitalizeDays(tw.Days), ", ")
		}
		fields = append(fields, discordEmbedField{
			Name:  "Hours",
			Value: fieldValue(fmt.Sprintf("%s - %s · %s", schedule.ToDisplayTime(tw.StartTime), schedule.ToDisplayTime(tw.EndTime), days)),
		})
	}
	if cond := data.SpecialConditions.Render(); cond != nil {
		fields = append(fields, discordEmbedField{Name: "Conditions", Value: fieldValue(*cond)})
	}

	var timestamp string
	if !deal.CreatedAt.IsZero() {
		timestamp = deal.CreatedAt.Format(time.RFC3339)
	}

	return discordEmbed{
		Title:       deal.RestaurantName + " · pending review",
		URL:         deal.ImageURL,
		Description: description,
		Timestamp:   timestamp,
		Color:       colorPendingReview,
		Thumbnail:   discordEmbedImage{URL: deal.ImageURL},
		Fields:      fields,
		Footer:      discordEmbedFooter{Text: "Deal " + deal.ID},
	}
}

func fieldValue(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return unknownFieldVal
	}
	if len(s) > maxFieldValue {
		return s[:maxFieldValue-3] + "..."
	}
	return s
}

func (c *Client) sendAndGetMessageID(ctx context.Context, embed discordEmbed) (string, error) {
	payload := discordWebhookPayload{Embeds: []discordEmbed{embed}}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	parsedURL, err := url.Parse(c.webhookURL)
	if err != nil {
		return "", err
	}
	q := parsedURL.Query()
	q.Set("wait", "true")
	parsedURL.RawQuery = q.Encode()

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return "", err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, parsedURL.String(), bytes.NewReader(payloadBytes))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			if !sleep(ctx, baseBackoff<<attempt) {
				return "", ctx.Err()
			}
			continue
		}

		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			var msgResponse discordMessageResponse
			if err := json.Unmarshal(bodyBytes, &msgResponse); err != nil {
				return "", err
			}
			return msgResponse.ID, nil
		}

		lastErr = fmt.Errorf("discord status: %s, body: %s", resp.Status, string(bodyBytes))
		backoff := retryBackoff(resp, attempt)
		if backoff == 0 {
			return "", lastErr
		}
		slog.Warn("Discord webhook failed, retrying", "status", resp.StatusCode, "attempt", attempt+1, "backoff", backoff)
		if !sleep(ctx, backoff) {
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("discord webhook failed after %d attempts: %w", maxAttempts, lastErr)
}

// retryBackoff returns how long to wait before retrying resp, or 0 when the
// status is not retryable. 429 honours Retry-After.
func retryBackoff(resp *http.Response, attempt int) time.Duration {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if secs, err := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64); err == nil && secs > 0 {
			d := time.Duration(secs * float64(time.Second))
			return min(d, maxRetryAfter)
		}
		return baseBackoff << attempt
	case resp.StatusCode >= 500:
		return baseBackoff << attempt
	}
	return 0
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
