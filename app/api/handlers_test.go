package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/ykarpov/inboxflow/app/labels"
	"github.com/ykarpov/inboxflow/app/llm"
	"github.com/ykarpov/inboxflow/app/mail"
	"github.com/ykarpov/inboxflow/app/mailsource"
	"github.com/ykarpov/inboxflow/app/memo"
	"github.com/ykarpov/inboxflow/app/repository"
	"github.com/ykarpov/inboxflow/app/tasks"
	"github.com/ykarpov/inboxflow/app/taxonomy"
)

// MockClassifier implements a simple mock for testing
type MockClassifier struct {
	result  *taxonomy.ClassificationResult
	raw     string
	err     error
	lastReq *mail.Item
	mode    llm.Mode
}

var _ ClassifierInterface = (*MockClassifier)(nil)

func (m *MockClassifier) Classify(ctx context.Context, item *mail.Item, mode llm.Mode, params map[string]string) (*taxonomy.ClassificationResult, error) {
	m.lastReq = item
	m.mode = mode
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *MockClassifier) ClassifyRaw(ctx context.Context, item *mail.Item, mode llm.Mode, params map[string]string) (string, error) {
	m.lastReq = item
	m.mode = mode
	if m.err != nil {
		return "", m.err
	}
	return m.raw, nil
}

// MockScheduler records enqueued tasks
type MockScheduler struct {
	enqueued []tasks.TaskInterface
	err      error
}

var _ tasks.TaskSchedulerInterface = (*MockScheduler)(nil)

func (m *MockScheduler) Start() {}
func (m *MockScheduler) Stop()  {}

func (m *MockScheduler) EnqueueTask(task tasks.TaskInterface) error {
	if m.err != nil {
		return m.err
	}
	m.enqueued = append(m.enqueued, task)
	return nil
}

type nullMailSource struct{}

func (nullMailSource) FetchIDs(ctx context.Context, pageToken string) (*mail.Page, error) {
	return &mail.Page{}, nil
}

func (nullMailSource) FetchByIDs(ctx context.Context, ids []string) ([]*mail.Item, error) {
	return nil, nil
}

func (nullMailSource) GetOrCreateLabel(ctx context.Context, name string) (string, error) {
	return "", nil
}

func (nullMailSource) AddLabel(ctx context.Context, ids []string, labelID string) (*mailsource.LabelResult, error) {
	return &mailsource.LabelResult{}, nil
}

type testEnv struct {
	classifier *MockClassifier
	scheduler  *MockScheduler
	workset    *repository.Repository
	router     *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	classifier := &MockClassifier{}
	scheduler := &MockScheduler{}
	workset := repository.New(nil)
	labelCache := labels.NewConfigCache(t.TempDir())
	if err := labelCache.Run(); err != nil {
		t.Fatal(err)
	}

	handler := NewHandler(classifier, workset, labelCache, scheduler,
		nullMailSource{}, nil, memo.NewCache(), nil)

	return &testEnv{
		classifier: classifier,
		scheduler:  scheduler,
		workset:    workset,
		router:     NewServer(handler, "test-key"),
	}
}

func (e *testEnv) request(t *testing.T, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("X-API-Key", "test-key")
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return out
}

func TestSummarizeSuccess(t *testing.T) {
	env := newTestEnv(t)
	stage := taxonomy.StageInterview
	env.classifier.result = &taxonomy.ClassificationResult{
		Category:     taxonomy.CategoryJob,
		Summary:      "Interview invitation",
		TransitionTo: &stage,
		JobStage:     &stage,
	}

	w := env.request(t, http.MethodPost, "/classify/summarize",
		`{"from":"hr@acme.io","subject":"Interview","content":"We would like to interview you"}`, false)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["summary"] != "Interview invitation" {
		t.Errorf("Expected summary in response, got %v", body)
	}
	if env.classifier.mode != llm.ModeSummarize {
		t.Errorf("Expected summarize mode, got %s", env.classifier.mode)
	}
}

func TestSummarizeResponseKeys(t *testing.T) {
	env := newTestEnv(t)
	stage := taxonomy.StageInterview
	env.classifier.result = &taxonomy.ClassificationResult{
		Category:     taxonomy.CategoryJob,
		Summary:      "s",
		TransitionTo: &stage,
		JobStage:     &stage,
	}

	w := env.request(t, http.MethodPost, "/classify/summarize",
		`{"content":"We would like to interview you"}`, false)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	for _, key := range []string{"summary", "category", "hasUnsubscribe", "jobStage", "transitionTo"} {
		if _, ok := body[key]; !ok {
			t.Errorf("Expected key %q in response, got %s", key, w.Body.String())
		}
	}
	if body["jobStage"] != "Interview" {
		t.Errorf("Expected jobStage Interview, got %v", body["jobStage"])
	}
	if body["hasUnsubscribe"] != false {
		t.Errorf("Expected hasUnsubscribe false, got %v", body["hasUnsubscribe"])
	}
	for _, key := range []string{"has_unsubscribe", "job_stage", "transition_to"} {
		if _, ok := body[key]; ok {
			t.Errorf("Unexpected key %q in response", key)
		}
	}
}

func TestSummarizeMissingContent(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodPost, "/classify/summarize", `{"from":"a@b.c"}`, false)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["error"] == nil {
		t.Error("Expected error envelope")
	}
}

func TestSummarizeInvalidJSON(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodPost, "/classify/summarize", `{not json`, false)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", w.Code)
	}
}

func TestSummarizeUpstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	env.classifier.err = &taxonomy.FormatError{Reason: "no JSON object found", Raw: "garbage"}

	w := env.request(t, http.MethodPost, "/classify/summarize", `{"content":"hello"}`, false)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["error"] == nil {
		t.Error("Expected error envelope")
	}
}

func TestCategorize(t *testing.T) {
	env := newTestEnv(t)
	env.classifier.raw = `{"category": "job application", "confidence": 0.92}`

	w := env.request(t, http.MethodPost, "/classify/categorize", `{"content":"your application"}`, false)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["category"] != string(taxonomy.CategoryJob) {
		t.Errorf("Expected job category, got %v", body["category"])
	}
	if body["confidence"] != 0.92 {
		t.Errorf("Expected confidence 0.92, got %v", body["confidence"])
	}
}

func TestCategorizeFencedReply(t *testing.T) {
	env := newTestEnv(t)
	env.classifier.raw = "Here is the result:\n```json\n{\"category\": \"Other\", \"confidence\": 0.4}\n```"

	w := env.request(t, http.MethodPost, "/classify/categorize", `{"content":"weekly digest"}`, false)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["category"] != string(taxonomy.CategoryOther) {
		t.Errorf("Expected other category, got %v", body["category"])
	}
	if body["confidence"] != 0.4 {
		t.Errorf("Expected confidence 0.4, got %v", body["confidence"])
	}
}

func TestCategorizeNoObjectInReply(t *testing.T) {
	env := newTestEnv(t)
	env.classifier.raw = "I cannot categorize this email."

	w := env.request(t, http.MethodPost, "/classify/categorize", `{"content":"hello"}`, false)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", w.Code)
	}
}

func TestMatchLabelRequiresLabelName(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodPost, "/classify/match-label", `{"content":"hello"}`, false)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", w.Code)
	}
}

func TestMatchLabel(t *testing.T) {
	env := newTestEnv(t)
	env.classifier.raw = `{"match": true}`

	w := env.request(t, http.MethodPost, "/classify/match-label",
		`{"content":"hello","labelName":"applications"}`, false)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["match"] != true {
		t.Errorf("Expected match true, got %v", body["match"])
	}
	if env.classifier.mode != llm.ModeMatchLabel {
		t.Errorf("Expected match-label mode, got %s", env.classifier.mode)
	}
}

func TestMatchLabelProseWrappedReply(t *testing.T) {
	env := newTestEnv(t)
	env.classifier.raw = `Sure! The answer is {"match": true} based on the content.`

	w := env.request(t, http.MethodPost, "/classify/match-label",
		`{"content":"hello","labelName":"applications"}`, false)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["match"] != true {
		t.Errorf("Expected match true, got %v", body["match"])
	}
}

func TestAPIRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodPost, "/api/sync", "", false)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 without key, got %d", w.Code)
	}

	w = env.request(t, http.MethodPost, "/api/sync", "", true)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202 with key, got %d", w.Code)
	}
	if len(env.scheduler.enqueued) != 1 {
		t.Fatalf("Expected 1 enqueued task, got %d", len(env.scheduler.enqueued))
	}
	if env.scheduler.enqueued[0].GetType() != tasks.TaskTypeSyncMailbox {
		t.Errorf("Expected sync task, got %s", env.scheduler.enqueued[0].GetType())
	}
}

func TestAPISyncMoreWithoutCursor(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodPost, "/api/sync/more", "", true)
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected 409 without cursor, got %d", w.Code)
	}
}

func TestAPISyncMore(t *testing.T) {
	env := newTestEnv(t)
	env.workset.AdvanceCursor("p2")

	w := env.request(t, http.MethodPost, "/api/sync/more", "", true)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", w.Code)
	}
	if env.scheduler.enqueued[0].GetType() != tasks.TaskTypeLoadMore {
		t.Errorf("Expected load-more task, got %s", env.scheduler.enqueued[0].GetType())
	}
}

func TestAPIListItemsByBucket(t *testing.T) {
	env := newTestEnv(t)
	env.workset.AppendPage([]*mail.Item{
		{ID: "1", Subject: "offer"},
		{ID: "2", Subject: "newsletter"},
	})
	env.workset.Attach("1", taxonomy.ClassificationResult{Category: taxonomy.CategoryJob, Summary: "s"})

	w := env.request(t, http.MethodGet, "/api/items?bucket=job", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	body := decodeBody(t, w)
	if body["total"] != float64(1) {
		t.Errorf("Expected 1 job item, got %v", body["total"])
	}

	w = env.request(t, http.MethodGet, "/api/items?bucket=all", "", true)
	body = decodeBody(t, w)
	if body["total"] != float64(2) {
		t.Errorf("Expected 2 items in all bucket, got %v", body["total"])
	}
}

func TestAPIListItemsUnknownBucket(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodGet, "/api/items?bucket=spam", "", true)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", w.Code)
	}
}

func TestAPIGetFlow(t *testing.T) {
	env := newTestEnv(t)
	stage := taxonomy.StageInterview
	env.workset.AppendPage([]*mail.Item{{ID: "1"}, {ID: "2"}})
	env.workset.Attach("1", taxonomy.ClassificationResult{
		Category: taxonomy.CategoryJob, Summary: "s", TransitionTo: &stage, JobStage: &stage,
	})
	env.workset.Attach("2", taxonomy.ClassificationResult{
		Category: taxonomy.CategoryJob, Summary: "s", TransitionTo: &stage, JobStage: &stage,
	})

	w := env.request(t, http.MethodGet, "/api/flow", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	body := decodeBody(t, w)
	edges := body["edges"].([]interface{})
	if len(edges) != 1 {
		t.Fatalf("Expected 1 edge, got %d", len(edges))
	}
	edge := edges[0].(map[string]interface{})
	if edge["from"] != "applications_sent" || edge["to"] != "interview" || edge["count"] != float64(2) {
		t.Errorf("Unexpected edge: %v", edge)
	}
}

func TestAPISetStage(t *testing.T) {
	env := newTestEnv(t)
	env.workset.AppendPage([]*mail.Item{{ID: "1"}})

	w := env.request(t, http.MethodPut, "/api/items/1/stage", `{"stage":"offer"}`, true)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	result, ok := env.workset.Classification("1")
	if !ok || result.UserOverrideStage == nil || *result.UserOverrideStage != taxonomy.StageOffer {
		t.Errorf("Expected override stored, got %+v", result)
	}
}

func TestAPISetStageUnknownStage(t *testing.T) {
	env := newTestEnv(t)
	env.workset.AppendPage([]*mail.Item{{ID: "1"}})

	w := env.request(t, http.MethodPut, "/api/items/1/stage", `{"stage":"hired-by-aliens"}`, true)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", w.Code)
	}
}

func TestAPISetStageMissingItem(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodPut, "/api/items/404/stage", `{"stage":"offer"}`, true)
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", w.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodGet, "/health", "", false)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["timestamp"] == nil {
		t.Error("Expected timestamp in health response")
	}
}

func TestStatsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.workset.AppendPage([]*mail.Item{{ID: "1"}})

	w := env.request(t, http.MethodGet, "/stats", "", false)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["items"] != float64(1) {
		t.Errorf("Expected 1 item, got %v", body["items"])
	}
}
