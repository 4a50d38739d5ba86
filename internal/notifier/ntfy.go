package notifier

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/egregors/plantdash/log"
)

const ntfyTimeout = 10 * time.Second

type Noop struct{}

func (n Noop) Notify(_ context.Context, _, _ string) error {
	return nil
}

func NewNoop() Noop {
	return Noop{}
}

// Ntfy pushes notifications to a ntfy.sh topic URL.
type Ntfy struct {
	url    string
	client *http.Client
}

func NewNtfy(url string) *Ntfy {
	return &Ntfy{
		url: url,
		client: &http.Client{
			Timeout: ntfyTimeout,
		},
	}
}

func (n *Ntfy) Notify(ctx context.Context, title, message string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Title", title)
	req.Header.Set("Priority", "high")
	req.Header.Set("Tags", "warning,seedling")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy request failed with status: %d", resp.StatusCode)
	}

	log.Debg.Printf("sent ntfy notification: %s", title)

	return nil
}
