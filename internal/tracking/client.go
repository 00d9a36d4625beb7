// Package tracking logs training runs to an MLflow-compatible REST API.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/wonny/demandcast/backend/pkg/config"
	"github.com/wonny/demandcast/backend/pkg/httputil"
	"github.com/wonny/demandcast/backend/pkg/logger"
)

// Record is one finished run
type Record struct {
	Name    string
	Params  map[string]string
	Metrics map[string]float64
	Tags    map[string]string
	Failed  bool
}

// Client talks to the MLflow REST API. A client without a base URI is a no-op.
type Client struct {
	http       *httputil.Client
	base       string
	experiment string
	log        zerolog.Logger

	mu           sync.Mutex
	experimentID string
}

// New creates a tracking client; an empty cfg.URI disables tracking
func New(cfg config.TrackingConfig, log *logger.Logger) *Client {
	c := &Client{
		base:       strings.TrimRight(cfg.URI, "/"),
		experiment: cfg.Project,
		log:        log.Component("tracking"),
	}
	if c.base == "" {
		return c
	}

	c.http = httputil.New(log).
		WithTimeout(10*time.Second).
		WithRetry(2, 500*time.Millisecond).
		WithRateLimit(5, 5)
	if cfg.APIKey != "" {
		c.http.WithBearerToken(cfg.APIKey)
	}
	return c
}

// Enabled reports whether runs are sent anywhere
func (c *Client) Enabled() bool {
	return c != nil && c.base != ""
}

// Log creates a run, logs params/metrics/tags in one batch and closes it.
// Returns the run id ("" when disabled).
func (c *Client) Log(ctx context.Context, rec Record) (string, error) {
	if !c.Enabled() {
		return "", nil
	}

	expID, err := c.ensureExperiment(ctx)
	if err != nil {
		return "", err
	}

	now := time.Now().UnixMilli()
	body, err := c.http.DoJSON(ctx, http.MethodPost, c.endpoint("runs/create"), map[string]interface{}{
		"experiment_id": expID,
		"run_name":      rec.Name,
		"start_time":    now,
	})
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	runID := gjson.GetBytes(body, "run.info.run_id").String()
	if runID == "" {
		return "", fmt.Errorf("create run: response has no run id")
	}

	batch := map[string]interface{}{
		"run_id":  runID,
		"params":  keyValues(rec.Params),
		"tags":    keyValues(rec.Tags),
		"metrics": metricValues(rec.Metrics, now),
	}
	if _, err := c.http.DoJSON(ctx, http.MethodPost, c.endpoint("runs/log-batch"), batch); err != nil {
		return runID, fmt.Errorf("log batch: %w", err)
	}

	status := "FINISHED"
	if rec.Failed {
		status = "FAILED"
	}
	if _, err := c.http.DoJSON(ctx, http.MethodPost, c.endpoint("runs/update"), map[string]interface{}{
		"run_id":   runID,
		"status":   status,
		"end_time": time.Now().UnixMilli(),
	}); err != nil {
		return runID, fmt.Errorf("close run: %w", err)
	}

	c.log.Debug().Str("run_id", runID).Str("run_name", rec.Name).Msg("tracking run logged")
	return runID, nil
}

// ensureExperiment resolves (or creates) the experiment id once per client
func (c *Client) ensureExperiment(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.experimentID != "" {
		return c.experimentID, nil
	}

	q := url.Values{"experiment_name": {c.experiment}}
	body, err := c.http.DoJSON(ctx, http.MethodGet, c.endpoint("experiments/get-by-name")+"?"+q.Encode(), nil)
	switch {
	case err == nil:
		c.experimentID = gjson.GetBytes(body, "experiment.experiment_id").String()
	case isNotFound(err):
		body, err = c.http.DoJSON(ctx, http.MethodPost, c.endpoint("experiments/create"), map[string]string{"name": c.experiment})
		if err != nil {
			return "", fmt.Errorf("create experiment: %w", err)
		}
		c.experimentID = gjson.GetBytes(body, "experiment_id").String()
	default:
		return "", fmt.Errorf("get experiment: %w", err)
	}

	if c.experimentID == "" {
		return "", fmt.Errorf("experiment %q has no id", c.experiment)
	}
	return c.experimentID, nil
}

func (c *Client) endpoint(p string) string {
	return c.base + "/api/2.0/mlflow/" + p
}

func isNotFound(err error) bool {
	var se *httputil.StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.StatusCode == http.StatusNotFound ||
		gjson.Get(se.Body, "error_code").String() == "RESOURCE_DOES_NOT_EXIST"
}

type keyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type metric struct {
	Key       string  `json:"key"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
	Step      int     `json:"step"`
}

func keyValues(m map[string]string) []keyValue {
	keys := sortedKeys(m)
	out := make([]keyValue, 0, len(keys))
	for _, k := range keys {
		out = append(out, keyValue{Key: k, Value: m[k]})
	}
	return out
}

func metricValues(m map[string]float64, ts int64) []metric {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]metric, 0, len(keys))
	for _, k := range keys {
		out = append(out, metric{Key: k, Value: m[k], Timestamp: ts})
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
