package pipeline

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	apperrors "agri-pipeline/internal/common/errors"
	"agri-pipeline/internal/common/logger"
	"agri-pipeline/internal/failover"
	"agri-pipeline/internal/generation"
	"agri-pipeline/internal/models"
	"agri-pipeline/internal/normalize"
	"agri-pipeline/internal/retrieval"
	"agri-pipeline/internal/schema"
)

type stubRetriever struct {
	bundle *models.ContextBundle
	err    error
	calls  atomic.Int32
}

func (s *stubRetriever) Retrieve(ctx context.Context, query string, opts retrieval.Options) (*models.ContextBundle, error) {
	s.calls.Add(1)
	return s.bundle, s.err
}

type stubGenerator struct {
	responses []string
	errs      []error
	block     bool
	calls     atomic.Int32
	gotMedia  *models.Media
	gotPrompt string
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string, node *schema.Node, media *models.Media) (string, error) {
	n := int(s.calls.Add(1)) - 1
	s.gotPrompt = prompt
	if media != nil {
		s.gotMedia = &models.Media{Data: append([]byte(nil), media.Data...), MIMEType: media.MIMEType}
	}
	if s.block {
		<-ctx.Done()
		return "", apperrors.Normalize(apperrors.StageInvocation, ctx.Err())
	}
	if n < len(s.errs) && s.errs[n] != nil {
		return "", s.errs[n]
	}
	if n < len(s.responses) {
		return s.responses[n], nil
	}
	return s.responses[len(s.responses)-1], nil
}

const planJSON = `{
	"planTitle_en": "Wheat and cotton plan",
	"planTitle_ur": "گندم اور کپاس کا منصوبہ",
	"summary_en": "A balanced year.",
	"summary_ur": "متوازن سال۔",
	"annualPlan": [],
	"recommendations_en": ["Test soil"],
	"recommendations_ur": ["مٹی کا ٹیسٹ کریں"]
}`

func newRunner(t *testing.T, cfg Config, retrievers []*stubRetriever, gens ...*stubGenerator) *Runner {
	t.Helper()
	log := logger.NewTestLogger(t)

	var rs []failover.Named[retrieval.Retriever]
	for i, r := range retrievers {
		rs = append(rs, failover.Named[retrieval.Retriever]{Name: []string{"tavily", "knowledge-index"}[i], Provider: r})
	}
	var gs []failover.Named[generation.Generator]
	for i, g := range gens {
		gs = append(gs, failover.Named[generation.Generator]{Name: []string{"primary-model", "fallback-model"}[i], Provider: g})
	}

	r := NewRunner(cfg, Dependencies{
		Retrievers: retrieval.NewChain(log, rs...),
		Generators: generation.NewChain(log, gs...),
		Normalizer: normalize.New(normalize.Options{MinSupplied: 1}, log),
		Logger:     log,
	})
	r.newID = func() string { return "req-1" }
	return r
}

func planTask(withQuery bool) Task[*models.AnnualPlanRequest, models.AnnualPlan] {
	task := Task[*models.AnnualPlanRequest, models.AnnualPlan]{
		TaskType: "generate-annual-plan",
		Schema:   schema.AnnualPlan,
		Compose: func(req *models.AnnualPlanRequest, bundle *models.ContextBundle) string {
			if bundle != nil {
				return "plan for " + req.Location + " using " + bundle.Summary
			}
			return "plan for " + req.Location
		},
		Finalize: func(req *models.AnnualPlanRequest, res *models.AnnualPlan, _ time.Time) {
			res.Year = req.Year
		},
	}
	if withQuery {
		task.Query = func(req *models.AnnualPlanRequest) string { return "farming calendar " + req.Location }
	}
	return task
}

func validPlanRequest() *models.AnnualPlanRequest {
	return &models.AnnualPlanRequest{
		Location:     "Multan, Punjab",
		FarmSize:     "12 acres",
		SoilType:     "Loam",
		PrimaryCrops: []string{"Wheat", "Cotton"},
		Year:         2026,
	}
}

func TestExecute_Success(t *testing.T) {
	retriever := &stubRetriever{bundle: models.NewContextBundle("Sow wheat in November.", nil, "tavily")}
	gen := &stubGenerator{responses: []string{planJSON}}
	r := newRunner(t, Config{}, []*stubRetriever{retriever}, gen)

	out, err := Execute(context.Background(), r, planTask(true), validPlanRequest())
	require.NoError(t, err)

	assert.Equal(t, "req-1", out.RequestID)
	assert.Equal(t, "Wheat and cotton plan", out.Result.PlanTitle)
	assert.Equal(t, 2026, out.Result.Year)
	assert.Same(t, retriever.bundle, out.Context)
	assert.Equal(t, "tavily", out.Provenance.RetrievedBy)
	assert.Equal(t, "primary-model", out.Provenance.GeneratedBy)
	assert.Len(t, out.Provenance.Attempts, 2)
	assert.False(t, out.GeneratedAt.IsZero())
	assert.Contains(t, gen.gotPrompt, "Sow wheat in November.")
}

func TestExecute_ValidationBeforeAnyCall(t *testing.T) {
	retriever := &stubRetriever{bundle: &models.ContextBundle{}}
	gen := &stubGenerator{responses: []string{planJSON}}
	r := newRunner(t, Config{}, []*stubRetriever{retriever}, gen)

	_, err := Execute(context.Background(), r, planTask(true), &models.AnnualPlanRequest{Location: "Multan"})

	pe, ok := apperrors.AsPipelineError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeParamValidation, pe.Code)
	assert.Equal(t, apperrors.StageValidation, pe.Stage)
	assert.Equal(t, int32(0), retriever.calls.Load())
	assert.Equal(t, int32(0), gen.calls.Load())
}

func TestExecute_SkipsRetrievalWithoutQuery(t *testing.T) {
	retriever := &stubRetriever{bundle: &models.ContextBundle{}}
	gen := &stubGenerator{responses: []string{planJSON}}
	r := newRunner(t, Config{}, []*stubRetriever{retriever}, gen)

	out, err := Execute(context.Background(), r, planTask(false), validPlanRequest())
	require.NoError(t, err)
	assert.Nil(t, out.Context)
	assert.Empty(t, out.Provenance.RetrievedBy)
	assert.Equal(t, int32(0), retriever.calls.Load())
}

func TestExecute_NoRetrieverConfigured(t *testing.T) {
	gen := &stubGenerator{responses: []string{planJSON}}
	r := newRunner(t, Config{}, nil, gen)

	_, err := Execute(context.Background(), r, planTask(true), validPlanRequest())
	pe, ok := apperrors.AsPipelineError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeRetrievalConfigError, pe.Code)
	assert.Equal(t, int32(0), gen.calls.Load())
}

func TestExecute_RetrievalFailureStopsPipeline(t *testing.T) {
	retriever := &stubRetriever{err: apperrors.NewContextRetrievalError("tavily", stderrors.New("502"))}
	gen := &stubGenerator{responses: []string{planJSON}}
	r := newRunner(t, Config{}, []*stubRetriever{retriever}, gen)

	_, err := Execute(context.Background(), r, planTask(true), validPlanRequest())
	pe, ok := apperrors.AsPipelineError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeContextRetrievalFailure, pe.Code)
	assert.True(t, pe.Retryable)
	assert.Equal(t, int32(1), retriever.calls.Load())
	assert.Equal(t, int32(0), gen.calls.Load())
}

func TestExecute_EmptyPrompt(t *testing.T) {
	gen := &stubGenerator{responses: []string{planJSON}}
	r := newRunner(t, Config{}, nil, gen)

	task := planTask(false)
	task.Compose = func(*models.AnnualPlanRequest, *models.ContextBundle) string { return "  " }

	_, err := Execute(context.Background(), r, task, validPlanRequest())
	pe, ok := apperrors.AsPipelineError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodePromptCompositionFailed, pe.Code)
	assert.Equal(t, int32(0), gen.calls.Load())
}

func TestExecute_RetriesRetryableInvocation(t *testing.T) {
	gen := &stubGenerator{
		errs:      []error{apperrors.NewInvocationBackendError(stderrors.New("503"), true)},
		responses: []string{"", planJSON},
	}
	cfg := Config{Retry: failover.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}}
	r := newRunner(t, cfg, nil, gen)

	out, err := Execute(context.Background(), r, planTask(false), validPlanRequest())
	require.NoError(t, err)
	assert.Equal(t, int32(2), gen.calls.Load())
	assert.Len(t, out.Provenance.Attempts, 2)
}

func TestExecute_DefaultPolicyDoesNotRetry(t *testing.T) {
	gen := &stubGenerator{errs: []error{apperrors.NewInvocationQuotaError(stderrors.New("429"))}, responses: []string{planJSON}}
	r := newRunner(t, Config{}, nil, gen)

	_, err := Execute(context.Background(), r, planTask(false), validPlanRequest())
	pe, ok := apperrors.AsPipelineError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeInvocationQuotaExceeded, pe.Code)
	assert.Equal(t, int32(1), gen.calls.Load())
}

func TestExecute_FallbackModel(t *testing.T) {
	primary := &stubGenerator{errs: []error{apperrors.NewInvocationQuotaError(nil)}, responses: []string{""}}
	fallback := &stubGenerator{responses: []string{planJSON}}
	r := newRunner(t, Config{}, nil, primary, fallback)

	out, err := Execute(context.Background(), r, planTask(false), validPlanRequest())
	require.NoError(t, err)
	assert.Equal(t, "fallback-model", out.Provenance.GeneratedBy)
	assert.Equal(t, []string{"primary-model", "fallback-model"}, r.Generators())
}

func TestExecute_ParseFailure(t *testing.T) {
	gen := &stubGenerator{responses: []string{"I cannot help with that."}}
	r := newRunner(t, Config{}, nil, gen)

	_, err := Execute(context.Background(), r, planTask(false), validPlanRequest())
	pe, ok := apperrors.AsPipelineError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeResponseParseFailure, pe.Code)
	assert.NotContains(t, pe.Error(), "cannot help")
}

func TestExecute_DegradedOutput(t *testing.T) {
	gen := &stubGenerator{responses: []string{`{"planTitle_en": "Only English"}`}}
	r := newRunner(t, Config{}, nil, gen)

	out, err := Execute(context.Background(), r, planTask(false), validPlanRequest())
	require.NoError(t, err)
	assert.True(t, out.Provenance.Degraded)
	assert.Equal(t, normalize.UrduFallback, out.Result.PlanTitleUR)
}

func TestExecute_ReleasesMediaAfterInvocation(t *testing.T) {
	gen := &stubGenerator{responses: []string{`{"isHealthy": true, "cropType": "Tomato"}`}}
	r := newRunner(t, Config{}, nil, gen)

	task := Task[*models.CropDiagnosisRequest, models.CropDiagnosis]{
		TaskType: "diagnose-crop",
		Schema:   schema.CropDiagnosis,
		Compose:  func(req *models.CropDiagnosisRequest, _ *models.ContextBundle) string { return "diagnose " + req.CropType },
		Media:    func(req *models.CropDiagnosisRequest) *models.Media { return req.Image },
	}
	req := &models.CropDiagnosisRequest{
		Image:    &models.Media{Data: []byte{0xff, 0xd8, 0xff, 0xe0}, MIMEType: "image/jpeg"},
		CropType: "Tomato",
	}

	out, err := Execute(context.Background(), r, task, req)
	require.NoError(t, err)
	assert.True(t, out.Result.IsHealthy)
	require.NotNil(t, gen.gotMedia)
	assert.Len(t, gen.gotMedia.Data, 4)
	assert.Nil(t, req.Image.Data)
}

func TestExecute_CallerCancellation(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	gen := &stubGenerator{block: true}
	r := newRunner(t, Config{}, nil, gen)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := Execute(ctx, r, planTask(false), validPlanRequest())
	pe, ok := apperrors.AsPipelineError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeInvocationBackendError, pe.Code)
	assert.False(t, pe.Retryable)
}

func TestExecute_RequestTimeout(t *testing.T) {
	gen := &stubGenerator{block: true}
	r := newRunner(t, Config{RequestTimeout: 20 * time.Millisecond}, nil, gen)

	start := time.Now()
	_, err := Execute(context.Background(), r, planTask(false), validPlanRequest())
	pe, ok := apperrors.AsPipelineError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeInvocationBackendError, pe.Code)
	assert.True(t, pe.Retryable)
	assert.Less(t, time.Since(start), 2*time.Second)
}
