package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campus-board/enroll-api/internal/models"
	"github.com/campus-board/enroll-api/pkg/jobs"
)

// AuditWriter persists audit records.
type AuditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AuditRecorder decouples request handling from audit persistence. Records
// are enqueued and written by background workers; a slow audit store never
// blocks the request path.
type AuditRecorder struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewAuditRecorder builds the recorder and its worker queue.
func NewAuditRecorder(writer AuditWriter, cfg jobs.QueueConfig, logger *zap.Logger) *AuditRecorder {
	recorder := &AuditRecorder{logger: logger}
	recorder.queue = jobs.NewQueue("audit", func(ctx context.Context, job jobs.Job) error {
		log, ok := job.Payload.(*models.AuditLog)
		if !ok {
			return nil
		}
		return writer.CreateAuditLog(ctx, log)
	}, cfg)
	return recorder
}

// Start launches the audit workers.
func (r *AuditRecorder) Start(ctx context.Context) {
	r.queue.Start(ctx)
}

// Stop drains the workers.
func (r *AuditRecorder) Stop() {
	r.queue.Stop()
}

// Record enqueues one audit record.
func (r *AuditRecorder) Record(log *models.AuditLog) {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if err := r.queue.Enqueue(jobs.Job{ID: log.ID, Payload: log}); err != nil {
		r.logger.Warn("failed to enqueue audit record", zap.String("action", log.Action), zap.Error(err))
	}
}

// Audit records an audit entry after a successful mutating request. The
// resource ID is taken from the named path parameter when present.
func (r *AuditRecorder) Audit(action, resource, idParam string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Status() >= http.StatusBadRequest {
			return
		}

		log := &models.AuditLog{
			Action:    action,
			Resource:  resource,
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}
		if claims, ok := CurrentClaims(c); ok {
			userID := claims.UserID
			log.UserID = &userID
		}
		if idParam != "" {
			if id := c.Param(idParam); id != "" {
				log.ResourceID = &id
			}
		}
		r.Record(log)
	}
}
