package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ykarpov/inboxflow/app/classify"
	"github.com/ykarpov/inboxflow/app/flow"
	"github.com/ykarpov/inboxflow/app/labels"
	"github.com/ykarpov/inboxflow/app/llm"
	"github.com/ykarpov/inboxflow/app/mail"
	"github.com/ykarpov/inboxflow/app/memo"
	"github.com/ykarpov/inboxflow/app/repository"
	"github.com/ykarpov/inboxflow/app/tasks"
	"github.com/ykarpov/inboxflow/app/taxonomy"
)

func NewHandler(classifier ClassifierInterface, workset *repository.Repository,
	labelCache *labels.ConfigCache, scheduler tasks.TaskSchedulerInterface,
	source tasks.MailSource, runner *classify.BatchRunner, cache *memo.Cache,
	registry *prometheus.Registry) *Handler {
	return &Handler{
		classifier: classifier,
		workset:    workset,
		labelCache: labelCache,
		scheduler:  scheduler,
		source:     source,
		runner:     runner,
		cache:      cache,
		registry:   registry,
	}
}

type classifyRequest struct {
	From    string `json:"from"`
	Subject string `json:"subject"`
	Content string `json:"content"`

	// LabelName selects the label to test for the match-label mode.
	LabelName string `json:"labelName"`
}

func (r *classifyRequest) item() *mail.Item {
	return &mail.Item{From: r.From, Subject: r.Subject, Content: r.Content}
}

func (h *Handler) Summarize(c *gin.Context) {
	req, ok := h.bindClassifyRequest(c)
	if !ok {
		return
	}

	result, err := h.classifier.Classify(c.Request.Context(), req.item(), llm.ModeSummarize, nil)
	if err != nil {
		h.respondClassifyError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) Categorize(c *gin.Context) {
	req, ok := h.bindClassifyRequest(c)
	if !ok {
		return
	}

	raw, err := h.classifier.ClassifyRaw(c.Request.Context(), req.item(), llm.ModeCategorize, nil)
	if err != nil {
		h.respondClassifyError(c, err)
		return
	}

	obj, ok := taxonomy.ExtractJSONObject(raw)
	if !ok {
		slog.Error("No JSON object in categorize response", "raw", raw)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Malformed classifier response"})
		return
	}

	var parsed struct {
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		slog.Error("Malformed categorize response", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Malformed classifier response"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"category":   string(taxonomy.ParseCategory(parsed.Category)),
		"confidence": parsed.Confidence,
	})
}

func (h *Handler) MatchLabel(c *gin.Context) {
	req, ok := h.bindClassifyRequest(c)
	if !ok {
		return
	}
	if req.LabelName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing labelName field"})
		return
	}

	params := map[string]string{"labelName": req.LabelName}
	if definition, err := h.labelCache.GetDefinition(req.LabelName); err == nil {
		params["labelDescription"] = definition.Description
	}

	raw, err := h.classifier.ClassifyRaw(c.Request.Context(), req.item(), llm.ModeMatchLabel, params)
	if err != nil {
		h.respondClassifyError(c, err)
		return
	}

	obj, ok := taxonomy.ExtractJSONObject(raw)
	if !ok {
		slog.Error("No JSON object in match-label response", "raw", raw)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Malformed classifier response"})
		return
	}

	var parsed struct {
		Match bool `json:"match"`
	}
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		slog.Error("Malformed match-label response", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Malformed classifier response"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"match": parsed.Match})
}

func (h *Handler) bindClassifyRequest(c *gin.Context) (*classifyRequest, bool) {
	var req classifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return nil, false
	}
	if strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing content field"})
		return nil, false
	}
	return &req, true
}

func (h *Handler) respondClassifyError(c *gin.Context, err error) {
	var validationErr *classify.ValidationError
	var formatErr *taxonomy.FormatError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &formatErr):
		slog.Error("Classifier returned malformed answer", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Malformed classifier response"})
	default:
		slog.Error("Classification failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Classification failed"})
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	items, classified := h.workset.Counts()
	health["items"] = items
	health["classified"] = classified
	health["loaded_labels"] = h.labelCache.GetDefinitionCount()

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	items, classified := h.workset.Counts()
	hits, misses := h.cache.Stats()

	c.JSON(http.StatusOK, gin.H{
		"items":      items,
		"classified": classified,
		"cache": gin.H{
			"entries": h.cache.Len(),
			"hits":    hits,
			"misses":  misses,
		},
	})
}

func (h *Handler) APISync(c *gin.Context) {
	task := tasks.NewSyncMailboxTask(h.source, h.workset)
	if err := h.scheduler.EnqueueTask(task); err != nil {
		slog.Error("Error enqueueing sync task", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue sync task"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"task":    gin.H{"id": task.ID, "type": task.Type},
	})
}

func (h *Handler) APISyncMore(c *gin.Context) {
	if h.workset.Cursor() == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "No further pages available"})
		return
	}

	task := tasks.NewLoadMoreTask(h.source, h.workset)
	if err := h.scheduler.EnqueueTask(task); err != nil {
		slog.Error("Error enqueueing load-more task", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue load-more task"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"task":    gin.H{"id": task.ID, "type": task.Type},
	})
}

func (h *Handler) APIClassifyRun(c *gin.Context) {
	task := tasks.NewClassifyBatchTask(h.runner, h.workset)
	if err := h.scheduler.EnqueueTask(task); err != nil {
		slog.Error("Error enqueueing classify task", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue classify task"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"task":    gin.H{"id": task.ID, "type": task.Type},
	})
}

func (h *Handler) APIListItems(c *gin.Context) {
	bucket := repository.Bucket(c.DefaultQuery("bucket", string(h.workset.SelectedBucket())))
	if bucket != repository.BucketAll && bucket != repository.BucketJob {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown bucket"})
		return
	}
	h.workset.SelectBucket(bucket)

	items := h.workset.GetFiltered(bucket)

	out := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		entry := map[string]interface{}{
			"id":         item.ID,
			"from":       item.From,
			"subject":    item.Subject,
			"created_at": item.CreatedAt,
		}
		if result, ok := h.workset.Classification(item.ID); ok {
			entry["classification"] = result
		}
		out = append(out, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"bucket": bucket,
		"items":  out,
		"total":  len(out),
	})
}

func (h *Handler) APIGetFlow(c *gin.Context) {
	var entries []flow.Entry
	for _, item := range h.workset.GetFiltered(repository.BucketJob) {
		entry := flow.Entry{ItemID: item.ID}
		if result, ok := h.workset.Classification(item.ID); ok {
			entry.Result = &result
		}
		entries = append(entries, entry)
	}

	edges := flow.Aggregate(entries)

	out := make([]gin.H, 0, len(edges))
	for _, edge := range edges {
		out = append(out, gin.H{
			"from":  edge.From.Slug(),
			"to":    edge.To.Slug(),
			"count": edge.Count,
		})
	}

	c.JSON(http.StatusOK, gin.H{"edges": out, "total_items": len(entries)})
}

type overrideRequest struct {
	Stage string `json:"stage"`
}

func (h *Handler) APISetStage(c *gin.Context) {
	id := c.Param("id")

	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	stage, ok := taxonomy.ParseStage(req.Stage)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown stage"})
		return
	}

	if _, found := h.workset.Get(id); !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
		return
	}

	if !h.workset.ApplyUserOverride(id, stage) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to apply override"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"item":    id,
		"stage":   stage.Slug(),
	})
}

func (h *Handler) APIListLabels(c *gin.Context) {
	definitions := h.labelCache.GetDefinitions()

	out := make([]gin.H, 0, len(definitions))
	for _, definition := range definitions {
		out = append(out, gin.H{
			"name":              definition.Name,
			"display_name":      definition.DisplayName,
			"description":       definition.Description,
			"bucket":            definition.Bucket,
			"markers":           definition.Markers,
			"apply_on_classify": definition.ApplyOnClassify,
		})
	}

	c.JSON(http.StatusOK, gin.H{"labels": out, "total": len(out)})
}
