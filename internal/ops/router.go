package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/packclaim/pkg/db/models"
	"github.com/angelmondragon/packclaim/pkg/enums"
	pkgerrors "github.com/angelmondragon/packclaim/pkg/errors"
	"github.com/angelmondragon/packclaim/pkg/logger"
)

type jobStatusReader interface {
	Status(ctx context.Context, dedupeKey string) (*models.Job, error)
}

// RouterParams configure the worker ops surface. Jobs is optional; without
// it the claim status route is not mounted.
type RouterParams struct {
	Env      string
	Logger   *logger.Logger
	Checks   []Check
	Gatherer prometheus.Gatherer
	Jobs     jobStatusReader
}

// NewRouter serves liveness, readiness, Prometheus metrics and a read-only
// claim status lookup.
func NewRouter(params RouterParams) http.Handler {
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	gatherer := params.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(recoverer(logg), requestID(logg), accessLog(logg))

	r.Get("/health/live", healthLive(params.Env))
	r.Get("/health/ready", healthReady(params.Env, logg, params.Checks))
	r.Get("/healthz", healthReady(params.Env, logg, params.Checks))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	if params.Jobs != nil {
		r.Get("/claims/{packId}", claimStatus(logg, params.Jobs))
	}
	return r
}

type jobView struct {
	ID          uuid.UUID       `json:"id"`
	Queue       enums.QueueName `json:"queue"`
	Status      enums.JobStatus `json:"status"`
	Attempts    int             `json:"attempts"`
	RunAt       time.Time       `json:"runAt"`
	LastError   *string         `json:"lastError,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	FailedAt    *time.Time      `json:"failedAt,omitempty"`
	Payload     json.RawMessage `json:"payload"`
}

func claimStatus(logg *logger.Logger, jobs jobStatusReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		packID, err := uuid.Parse(chi.URLParam(r, "packId"))
		if err != nil {
			writeError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "packId must be a uuid"))
			return
		}
		job, err := jobs.Status(r.Context(), packID.String())
		if err != nil {
			writeError(r.Context(), logg, w, err)
			return
		}
		writeSuccess(w, http.StatusOK, jobView{
			ID:          job.ID,
			Queue:       job.Queue,
			Status:      job.Status,
			Attempts:    job.Attempts,
			RunAt:       job.RunAt,
			LastError:   job.LastError,
			CompletedAt: job.CompletedAt,
			FailedAt:    job.FailedAt,
			Payload:     job.Payload,
		})
	}
}
