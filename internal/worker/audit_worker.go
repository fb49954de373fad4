package worker

import (
	"github.com/spec-kit/ticket-engine/internal/service"
)

// StartAuditWorker registers the history recorder on the event bus.
func StartAuditWorker(auditService *service.AuditService) {
	if auditService == nil {
		return
	}
	auditService.RegisterHandlers()
}
