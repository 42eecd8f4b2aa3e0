package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"
)

// discordLimit is the message length limit of Discord, in characters.
const discordLimit = 2000

// Discord posts plain messages to a channel webhook.
type Discord struct {
	url    string
	client *http.Client
}

func NewDiscord(webhookURL string) *Discord {
	return &Discord{url: webhookURL, client: &http.Client{Timeout: 10 * time.Second}}
}

func (d *Discord) Enabled() bool {
	return d != nil && d.url != ""
}

func (d *Discord) Post(ctx context.Context, content string) error {
	if !d.Enabled() {
		return nil
	}
	content = truncate(content, discordLimit)

	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook: status %d", resp.StatusCode)
	}
	return nil
}

// truncate shortens s to at most limit runes, ending with "...".
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-3]) + "..."
}
