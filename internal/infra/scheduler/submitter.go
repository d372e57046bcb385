package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Submitter creates jobs through the scheduling API in paced batches.
type Submitter struct {
	APIURL     string
	APIKey     string
	HTTPClient *http.Client
	BatchSize  int
	JobDelay   time.Duration
	BatchDelay time.Duration
	Logger     *zap.Logger
}

// Report summarizes a submission.
type Report struct {
	Created int
	Failed  []string
}

// Create posts one job. Only 201 counts as created.
func (s *Submitter) Create(ctx context.Context, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "scheduler: encode job")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.APIURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "scheduler: build request")
	}
	req.Header.Set("Authorization", "Bearer "+s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client().Do(req)
	if err != nil {
		return eris.Wrapf(err, "scheduler: create %s", job.Name)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return eris.Errorf("scheduler: create %s: status %d: %s", job.Name, resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}

// Submit creates every job. A failed job is logged and recorded; it never
// stops the rest. Only ctx cancellation ends the run early.
func (s *Submitter) Submit(ctx context.Context, jobs []Job) (Report, error) {
	log := s.logger()
	size := s.BatchSize
	if size <= 0 {
		size = 5
	}
	pace := rate.NewLimiter(rate.Inf, 1)
	if s.JobDelay > 0 {
		pace = rate.NewLimiter(rate.Every(s.JobDelay), 1)
	}

	var rep Report
	for start := 0; start < len(jobs); start += size {
		if start > 0 && s.BatchDelay > 0 {
			if err := sleep(ctx, s.BatchDelay); err != nil {
				return rep, err
			}
		}
		end := min(start+size, len(jobs))
		log.Info("submitting batch", zap.Int("from", start+1), zap.Int("to", end), zap.Int("total", len(jobs)))

		for _, job := range jobs[start:end] {
			if err := pace.Wait(ctx); err != nil {
				return rep, eris.Wrap(err, "scheduler: pace")
			}
			if err := s.Create(ctx, job); err != nil {
				log.Warn("job failed", zap.String("job", job.Name), zap.Error(err))
				rep.Failed = append(rep.Failed, job.Name)
				continue
			}
			rep.Created++
			log.Info("job created", zap.String("job", job.Name), zap.String("schedule", job.Schedule))
		}
	}
	return rep, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Submitter) client() *http.Client {
	if s.HTTPClient != nil {
		return s.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (s *Submitter) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.L()
}
