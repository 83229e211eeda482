package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"studyCafeCRM/business/flow"
	"studyCafeCRM/domain"
	"studyCafeCRM/pkg/logger"

	"github.com/pobyzaarif/goshortcute"
)

type WorkerConfig struct {
	WorkerBaseURL           string
	WorkerBasicAuthUsername string
	WorkerBasicAuthPassword string
}

var (
	_ flow.JobSink = (*HTTPRepository)(nil)
	_ flow.JobSink = NoopRepository{}
)

// HTTPRepository posts jobs to the execution worker's HTTP API.
type HTTPRepository struct {
	workerConfig WorkerConfig
	client       *http.Client
}

func NewHTTPRepository(cfg WorkerConfig) *HTTPRepository {
	return &HTTPRepository{
		workerConfig: cfg,
		client:       &http.Client{Timeout: 5 * time.Second},
	}
}

func (r *HTTPRepository) Publish(ctx context.Context, job domain.Job) error {
	url := r.workerConfig.WorkerBaseURL + "/jobs"

	payloadByte, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal json payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payloadByte))
	if err != nil {
		return err
	}

	req.Header.Add("Content-Type", "application/json")
	if r.workerConfig.WorkerBasicAuthUsername != "" {
		buildBasicAuth := goshortcute.StringtoBase64Encode(r.workerConfig.WorkerBasicAuthUsername + ":" + r.workerConfig.WorkerBasicAuthPassword)
		req.Header.Add("Authorization", "Basic "+buildBasicAuth)
	}
	req.Header.Add("X-Dispatch-Id", job.DispatchID)

	res, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 200 && res.StatusCode <= 299 {
		return nil
	}
	bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	logger.WarnCtx(ctx, "worker_negative_response",
		"dispatch_id", job.DispatchID,
		"status", res.StatusCode,
		"body", string(bodyBytes),
	)

	return fmt.Errorf("worker service return negative response %v", res.StatusCode)
}

// NoopRepository accepts every job without sending it anywhere. The caller
// gets the job back in the dispatch response and forwards it itself.
type NoopRepository struct{}

func (NoopRepository) Publish(ctx context.Context, job domain.Job) error {
	logger.InfoCtx(ctx, "worker_job_not_forwarded", "dispatch_id", job.DispatchID)
	return nil
}
