package alert

import (
	"bytes"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Notifier posts risk alerts to a webhook. An empty URL disables it;
// every Send degrades to a log line on failure so alerting can never
// stall the pipeline.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

func NewNotifier(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts one alert. Failures are logged, never propagated.
func (n *Notifier) Send(title, message string) {
	logs.Warnf("ALERT [%s] %s", title, message)
	if n == nil || n.webhookURL == "" {
		return
	}
	if err := n.post(title, message); err != nil {
		logs.Errorf("alert webhook failed, err: %+v", err)
	}
}

func (n *Notifier) post(title, message string) error {
	payload := map[string]any{
		"title":     title,
		"message":   message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	data, err := sonic.ConfigFastest.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal alert")
	}
	resp, err := n.client.Post(n.webhookURL, "application/json", bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, "post alert")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return errors.Errorf("webhook returned status: %d", resp.StatusCode)
	}
	return nil
}
