package chi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog"
	"github.com/marcelsud/formrelay/metrics"
	"github.com/marcelsud/formrelay/ratelimit"
	"github.com/marcelsud/formrelay/routes"
	"github.com/marcelsud/formrelay/webhook"
	"github.com/marcelsud/formrelay/webhook/signature"
)

// Deps bundles the collaborators the HTTP layer needs
type Deps struct {
	Verifier     *signature.Verifier
	Manager      *webhook.Manager
	Executor     webhook.Executor
	Payloads     PayloadWriter
	Destinations *routes.Loader
	Limiter      *ratelimit.Limiter
	Recorder     metrics.Recorder
	Metrics      http.Handler

	// TimestampToleranceMinutes for inbound verification, 0 disables
	TimestampToleranceMinutes int
}

// PayloadWriter stores accepted payloads so retries can re-deliver them
type PayloadWriter interface {
	SavePayload(ctx context.Context, webhookID string, payload []byte, headers map[string]string) error
}

func Handlers(ctx context.Context, deps Deps) *chi.Mux {
	// Logger
	logger := httplog.NewLogger("formrelay", httplog.Options{
		JSON: true,
	})
	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(logger))
	r.Method(http.MethodPost, "/v1/forms/{form_id}/events", postEvent(deps))
	r.Method(http.MethodGet, "/v1/retries/{webhook_id}", getRetryStatus(deps.Manager))
	r.Method(http.MethodPost, "/v1/retries/{webhook_id}", postScheduleRetry(deps.Manager, deps.Destinations))
	r.Method(http.MethodPost, "/v1/retries/process", postProcessDue(deps.Manager))
	r.Method(http.MethodGet, "/v1/ratelimit", getRateLimitStatus(deps.Limiter))
	r.Method(http.MethodGet, "/v1/destinations", getDestinations(deps.Destinations))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	return r
}
