package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/match-watch/app/database"
	"github.com/lysyi3m/match-watch/app/match"
	"github.com/lysyi3m/match-watch/app/source"
	"github.com/lysyi3m/match-watch/app/tasks"
)

const defaultTestMessage = "Notifications are working"

func NewHandler(providerRepo database.ProviderRepository, subscriberRepo database.SubscriberRepository,
	matchRepo database.MatchRepository, scheduler tasks.ProviderSchedulerInterface, inspector InspectorInterface,
	sender TestSenderInterface, vapidPublicKey string, metrics http.Handler) *Handler {
	return &Handler{
		providerRepo:   providerRepo,
		subscriberRepo: subscriberRepo,
		matchRepo:      matchRepo,
		scheduler:      scheduler,
		inspector:      inspector,
		sender:         sender,
		vapidPublicKey: vapidPublicKey,
		metrics:        metrics,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	ctx := c.Request.Context()
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if count, err := h.providerRepo.GetProviderCount(ctx); err == nil {
		health["providers"] = count
	}
	if count, err := h.subscriberRepo.GetSubscriberCount(ctx); err == nil {
		health["subscribers"] = count
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()

	providers, err := h.providerRepo.GetProviders(ctx)
	if err != nil {
		slog.Error("Database error", "operation", "get_providers", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	failing := 0
	for _, p := range providers {
		if p.ErrorCount > 0 {
			failing++
		}
	}

	stats := map[string]interface{}{
		"providers":         len(providers),
		"failing_providers": failing,
	}
	if count, err := h.subscriberRepo.GetSubscriberCount(ctx); err == nil {
		stats["subscribers"] = count
	}
	if count, err := h.matchRepo.GetMatchCount(ctx); err == nil {
		stats["matches"] = count
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) GetMetrics(c *gin.Context) {
	h.metrics.ServeHTTP(c.Writer, c.Request)
}

func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	c.String(http.StatusOK, h.vapidPublicKey)
}

func (h *Handler) Subscribe(c *gin.Context) {
	ctx := c.Request.Context()

	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil || !validSubscription(req.PushSubscription) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid push subscription"})
		return
	}

	id := match.SubscriberID(req.Endpoint, req.Keys.P256dh, req.Keys.Auth)

	existing, err := h.subscriberRepo.GetSubscriber(ctx, id)
	if err != nil {
		slog.Error("Database error", "operation", "get_subscriber", "subscriber", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	var previous, providers []string
	if existing != nil {
		previous = existing.ProviderIDs
		providers = existing.ProviderIDs
	}
	if req.Providers != nil {
		providers = dedupe(*req.Providers)
		if !h.providersExist(c, providers) {
			return
		}
	}

	err = h.subscriberRepo.UpsertSubscriber(ctx, database.Subscriber{
		ID:           id,
		Subscription: req.PushSubscription,
		ProviderIDs:  providers,
	})
	if err != nil {
		slog.Error("Database error", "operation", "upsert_subscriber", "subscriber", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	h.releaseOrphans(ctx, removed(previous, providers))

	slog.Info("Subscriber registered", "subscriber", id, "providers", len(providers), "new", existing == nil)
	c.JSON(http.StatusOK, gin.H{"uid": id, "providers": providers})
}

func (h *Handler) SetSubscriberProviders(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	var req setProvidersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	subscriber, ok := h.loadSubscriber(c, id)
	if !ok {
		return
	}

	providers := dedupe(req.Providers)
	if !h.providersExist(c, providers) {
		return
	}

	if err := h.subscriberRepo.SetProviders(ctx, id, providers); err != nil {
		slog.Error("Database error", "operation", "set_providers", "subscriber", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	h.releaseOrphans(ctx, removed(subscriber.ProviderIDs, providers))

	c.JSON(http.StatusOK, gin.H{"uid": id, "providers": providers})
}

func (h *Handler) Unsubscribe(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	subscriber, ok := h.loadSubscriber(c, id)
	if !ok {
		return
	}

	if err := h.subscriberRepo.DeleteSubscriber(ctx, id); err != nil {
		slog.Error("Database error", "operation", "delete_subscriber", "subscriber", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	h.releaseOrphans(ctx, subscriber.ProviderIDs)

	slog.Info("Subscriber removed", "subscriber", id)
	c.Status(http.StatusNoContent)
}

func (h *Handler) SendTestMessage(c *gin.Context) {
	var req testMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || !validSubscription(req.PushSubscription) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid push subscription"})
		return
	}

	msg := strings.TrimSpace(req.Msg)
	if msg == "" {
		msg = defaultTestMessage
	}

	if err := h.sender.SendTest(c.Request.Context(), req.PushSubscription, msg); err != nil {
		slog.Warn("Test message failed", "endpoint", req.Endpoint, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Push delivery failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

func (h *Handler) CreateProvider(c *gin.Context) {
	ctx := c.Request.Context()

	var req createProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing provider URL"})
		return
	}

	parsed, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Provider URL must be an absolute http(s) URL"})
		return
	}
	pageURL := parsed.String()

	existing, err := h.providerRepo.GetProviderByURL(ctx, pageURL)
	if err != nil {
		slog.Error("Database error", "operation", "get_provider_by_url", "url", pageURL, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if existing != nil {
		c.JSON(http.StatusOK, h.toResponse(ctx, existing))
		return
	}

	info, err := h.inspector.Inspect(ctx, pageURL, req.Kind)
	if err != nil {
		slog.Warn("Provider page rejected", "url", pageURL, "error", err)
		status := http.StatusBadGateway
		if errors.Is(err, source.ErrNoRows) || errors.Is(err, source.ErrUnknownFormat) {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"error": "Page does not contain a readable schedule"})
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = info.Title
	}

	provider, err := h.providerRepo.CreateProvider(ctx, database.Provider{URL: pageURL, Name: name, Kind: info.Kind})
	if err != nil {
		slog.Error("Database error", "operation", "create_provider", "url", pageURL, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	h.scheduler.Register(provider.ID)

	slog.Info("Provider registered", "provider", provider.ID, "name", provider.Name, "rows", info.Rows)
	c.JSON(http.StatusCreated, h.toResponse(ctx, provider))
}

func (h *Handler) ListProviders(c *gin.Context) {
	ctx := c.Request.Context()

	providers, err := h.providerRepo.GetProviders(ctx)
	if err != nil {
		slog.Error("Database error", "operation", "get_providers", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	response := make([]providerResponse, 0, len(providers))
	for i := range providers {
		response = append(response, h.toResponse(ctx, &providers[i]))
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"providers": response,
		"total":     len(response),
	})
}

func (h *Handler) DeleteProvider(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	provider, err := h.providerRepo.GetProvider(ctx, id)
	if err != nil {
		slog.Error("Database error", "operation", "get_provider", "provider", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if provider == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Provider not found"})
		return
	}

	subscribers, err := h.subscriberRepo.CountByProvider(ctx, id)
	if err != nil {
		slog.Error("Database error", "operation", "count_by_provider", "provider", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if subscribers > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Provider still has subscribers", "subscribers": subscribers})
		return
	}

	h.scheduler.Cancel(id)
	if err := h.providerRepo.DeleteProvider(ctx, id); err != nil {
		slog.Error("Database error", "operation", "delete_provider", "provider", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	slog.Info("Provider deregistered", "provider", id, "name", provider.Name)
	c.Status(http.StatusNoContent)
}

func (h *Handler) loadSubscriber(c *gin.Context, id string) (*database.Subscriber, bool) {
	subscriber, err := h.subscriberRepo.GetSubscriber(c.Request.Context(), id)
	if err != nil {
		slog.Error("Database error", "operation", "get_subscriber", "subscriber", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return nil, false
	}
	if subscriber == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Subscriber not found"})
		return nil, false
	}
	return subscriber, true
}

func (h *Handler) providersExist(c *gin.Context, providerIDs []string) bool {
	for _, id := range providerIDs {
		provider, err := h.providerRepo.GetProvider(c.Request.Context(), id)
		if err != nil {
			slog.Error("Database error", "operation", "get_provider", "provider", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return false
		}
		if provider == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown provider", "provider": id})
			return false
		}
	}
	return true
}

func (h *Handler) releaseOrphans(ctx context.Context, providerIDs []string) {
	tasks.ReleaseOrphans(ctx, h.subscriberRepo, h.providerRepo, h.scheduler, providerIDs)
}

func (h *Handler) toResponse(ctx context.Context, p *database.Provider) providerResponse {
	resp := providerResponse{
		ID:           p.ID,
		URL:          p.URL,
		Name:         p.Name,
		Kind:         p.Kind,
		ErrorCount:   p.ErrorCount,
		NextPollAt:   p.NextPollAt,
		LastPolledAt: p.LastPolledAt,
	}
	if count, err := h.subscriberRepo.CountByProvider(ctx, p.ID); err == nil {
		resp.Subscribers = count
	}
	return resp
}

func validSubscription(s database.PushSubscription) bool {
	return s.Endpoint != "" && s.Keys.P256dh != "" && s.Keys.Auth != ""
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// removed lists the entries of before that are missing from after.
func removed(before, after []string) []string {
	var out []string
	for _, id := range before {
		if !slices.Contains(after, id) {
			out = append(out, id)
		}
	}
	return out
}
