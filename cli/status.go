package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.viam.com/utils"

	"go.viam.com/dollygrip/transport/rest"
)

// StatusAction prints the health of a running dolly and the directives it is handling.
func StatusAction(c *cli.Context) error {
	base := c.String(statusFlagHTTP)
	if base == "" {
		return errors.Errorf("--%s is required", statusFlagHTTP)
	}
	ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
	defer cancel()
	health, err := fetchHealth(ctx, base)
	if err != nil {
		return err
	}

	printf(c.App.Writer, "status %s, %d queued", health.Status, health.Pending)
	if len(health.Operations) == 0 {
		printf(c.App.Writer, "no directives in flight")
		return nil
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(c.App.Writer)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"ID", "Type", "Started", "Running"})
	now := time.Now()
	for _, op := range health.Operations {
		tw.AppendRow(table.Row{op.ID, op.Type, op.Started.Format(time.RFC3339), now.Sub(op.Started).Round(time.Millisecond)})
	}
	tw.Render()
	return nil
}

func fetchHealth(ctx context.Context, baseURL string) (*rest.Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(baseURL, "/")+"/healthz", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetching health")
	}
	defer utils.UncheckedErrorFunc(resp.Body.Close)
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("health check failed: %s", resp.Status)
	}
	var health rest.Health
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, errors.Wrap(err, "decoding health")
	}
	return &health, nil
}
