package analysis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/samtaplin/llmneldacoding/internal/application"
	"github.com/samtaplin/llmneldacoding/internal/domain/ai"
	domain "github.com/samtaplin/llmneldacoding/internal/domain/analysis"
	"github.com/samtaplin/llmneldacoding/internal/domain/nelda"
	"github.com/samtaplin/llmneldacoding/internal/domain/trigger"
)

// Stage is a step of a run. StagePersisted and StagePersistFailed are terminal;
// any other stage on a returned Result is where the run aborted.
type Stage string

const (
	StageStarted             Stage = "started"
	StageFreeTextGenerated   Stage = "free_text_generated"
	StageStructureExtracted  Stage = "structure_extracted"
	StageCompletenessChecked Stage = "completeness_checked"
	StageFollowUpRequested   Stage = "follow_up_requested"
	StagePersisted           Stage = "persisted"
	StagePersistFailed       Stage = "persist_failed"
)

// ReferenceLoader supplies the codebook attached to the free-text call.
type ReferenceLoader interface {
	Load(ctx context.Context) (ai.Attachment, error)
}

// Prompter renders the prompts of a run.
type Prompter interface {
	SystemPrompt() string
	AnalysisPrompt(req trigger.Request) (string, error)
	ExtractionPrompt(analysisText string) (string, error)
	FollowUpPrompt(req trigger.Request, analysisText string, missing []string) (string, error)
}

// Recorder observes runs, e.g. for metrics.
type Recorder interface {
	RunStarted()
	RunFinished(res Result, err error)
}

// Result is what a run produced. Document is set once the pipeline reaches
// persistence, so a failed Save still hands back the full document.
type Result struct {
	Document  *domain.Document
	StoredID  string
	Stage     Stage
	Persisted bool
}

// Service drives the coding pipeline. Runs share no mutable state; the
// clients and repository are configured once and reused.
type Service struct {
	Analyst   ai.Client
	Extractor ai.Client
	Reference ReferenceLoader
	Prompts   Prompter
	Repo      domain.Repository
	Clock     application.Clock
	Logger    *zap.Logger
	Recorder  Recorder
	// Limit bounds concurrently running analyses; nil means unbounded.
	Limit *semaphore.Weighted

	wg sync.WaitGroup
}

// Submit starts a run on its own goroutine and returns immediately. The run
// uses a background context so it outlives the request that triggered it.
func (s *Service) Submit(req trigger.Request) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx := context.Background()
		if s.Limit != nil {
			if err := s.Limit.Acquire(ctx, 1); err != nil {
				s.logger().Error("analysis slot", zap.Error(err))
				return
			}
			defer s.Limit.Release(1)
		}
		s.runDetached(ctx, req)
	}()
}

// Wait blocks until every submitted run has finished or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) runDetached(ctx context.Context, req trigger.Request) {
	log := s.logger().With(zap.String("election_id", req.ElectionID), zap.String("side", req.Side()))
	if s.Recorder != nil {
		s.Recorder.RunStarted()
	}

	var (
		res Result
		err error
	)
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("analysis: panic: %v", p)
			log.Error("analysis panicked", zap.Any("panic", p), zap.Stack("stack"))
		}
		if s.Recorder != nil {
			s.Recorder.RunFinished(res, err)
		}
	}()

	res, err = s.Run(ctx, req)
	report(log, res, err)
}

func report(log *zap.Logger, res Result, err error) {
	switch {
	case err == nil:
		doc := res.Document
		log.Info("analysis persisted",
			zap.String("run_id", string(doc.ID)),
			zap.String("stored_id", res.StoredID),
			zap.Int("total_fields_coded", doc.TotalFieldsCoded),
			zap.Int("missing_fields_recovered", doc.MissingFieldsRecovered),
			zap.Strings("missing_fields", doc.MissingFields),
		)
	case res.Stage == StagePersistFailed:
		// the document is logged whole so the generation work is not lost
		log.Error("analysis persistence failed",
			zap.Error(err),
			zap.Bool("persisted", false),
			zap.Any("document", res.Document),
		)
	default:
		log.Error("analysis aborted", zap.String("stage", string(res.Stage)), zap.Error(err))
	}
}

// Run executes one analysis synchronously: free text, structured extraction,
// completeness check, scoped follow-up, persistence. Any failure before
// persistence aborts the run. A follow-up failure does not.
func (s *Service) Run(ctx context.Context, req trigger.Request) (Result, error) {
	id := domain.DocumentID(uuid.New().String())
	log := s.logger().With(
		zap.String("run_id", string(id)),
		zap.String("election_id", req.ElectionID),
		zap.String("side", req.Side()),
	)
	res := Result{Stage: StageStarted}
	log.Info("analysis started")

	ref, err := s.Reference.Load(ctx)
	if err != nil {
		return res, eris.Wrap(err, "analysis: load reference document")
	}

	text, err := s.generateText(ctx, req, ref)
	if err != nil {
		return res, err
	}
	res.Stage = StageFreeTextGenerated
	log.Debug("free text generated", zap.Int("chars", len(text)))

	record, err := s.extract(ctx, text)
	if err != nil {
		return res, err
	}
	res.Stage = StageStructureExtracted

	expected := nelda.ExpectedFields()
	missing := nelda.Missing(expected, record)
	res.Stage = StageCompletenessChecked
	log.Debug("completeness checked", zap.Int("coded", len(record)), zap.Int("missing", len(missing)))

	recovered := 0
	attempted := len(missing) > 0
	if attempted {
		res.Stage = StageFollowUpRequested
		f := &FollowUp{Client: s.Extractor, Prompts: s.Prompts}
		extra, err := f.Request(ctx, req, text, missing)
		if err != nil {
			log.Warn("follow-up failed, keeping partial record", zap.Strings("missing_fields", missing), zap.Error(err))
		} else {
			recovered = record.Merge(extra)
		}
	}
	missing = nelda.Missing(expected, record)

	res.Document = &domain.Document{
		ID:                     id,
		Parameters:             req,
		CompletedAt:            s.now(),
		AnalysisText:           text,
		Coding:                 record,
		FollowUpAttempted:      attempted,
		MissingFieldsRecovered: recovered,
		TotalFieldsCoded:       len(record),
		MissingFields:          missing,
		AnalysisModel:          describe(s.Analyst),
		ExtractionModel:        describe(s.Extractor),
	}

	storedID, err := s.Repo.Save(ctx, res.Document)
	if err != nil {
		res.Stage = StagePersistFailed
		return res, eris.Wrap(err, "analysis: persist document")
	}
	res.StoredID = storedID
	res.Persisted = true
	res.Stage = StagePersisted
	return res, nil
}

func (s *Service) generateText(ctx context.Context, req trigger.Request, ref ai.Attachment) (string, error) {
	p, err := s.Prompts.AnalysisPrompt(req)
	if err != nil {
		return "", eris.Wrap(err, "analysis: build analysis prompt")
	}
	text, err := s.Analyst.GenerateText(ctx, ai.TextRequest{
		System:      s.Prompts.SystemPrompt(),
		Prompt:      p,
		Attachments: []ai.Attachment{ref},
		WebSearch:   true,
	})
	if err != nil {
		return "", eris.Wrap(err, "analysis: generate free text")
	}
	return text, nil
}

func (s *Service) extract(ctx context.Context, text string) (nelda.Record, error) {
	p, err := s.Prompts.ExtractionPrompt(text)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: build extraction prompt")
	}
	out, err := s.Extractor.GenerateStructured(ctx, ai.StructuredRequest{
		Prompt: p,
		Schema: CodingSchema(nelda.ExpectedFields()),
	})
	if err != nil {
		return nil, eris.Wrap(err, "analysis: extract structured record")
	}
	return nelda.RecordFrom(out), nil
}

func (s *Service) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.L()
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func describe(c ai.Client) string {
	if d, ok := c.(ai.Describer); ok {
		return d.Provider() + "/" + d.Model()
	}
	return ""
}
