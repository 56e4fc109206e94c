package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/noah-isme/union-api/internal/models"
	appErrors "github.com/noah-isme/union-api/pkg/errors"
)

// requireAdmin re-checks the admin gate for callers that bypass the router.
func requireAdmin(identity *models.Identity) error {
	if identity == nil {
		return appErrors.ErrUnauthenticated
	}
	if !identity.CanAdminister() {
		return appErrors.ErrForbidden
	}
	return nil
}

func recordAudit(ctx context.Context, audit auditLogger, logger *zap.Logger, identity *models.Identity, action, resource, resourceID string, values interface{}) {
	if audit == nil {
		return
	}
	entry := &models.AuditLog{
		Action:   action,
		Resource: resource,
	}
	if identity != nil && !identity.AdHoc {
		userID := identity.ID
		entry.UserID = &userID
	}
	if resourceID != "" {
		entry.ResourceID = &resourceID
	}
	if values != nil {
		if raw, err := json.Marshal(values); err == nil {
			entry.NewValues = raw
		}
	}
	if meta, ok := RequestMetaFrom(ctx); ok {
		entry.IPAddress = meta.IP
		entry.UserAgent = meta.UserAgent
	}
	if err := audit.CreateAuditLog(ctx, entry); err != nil {
		logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

type requestMetaKey struct{}

// RequestMeta is the client origin attached to audit entries.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// WithRequestMeta returns ctx carrying meta.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFrom extracts request meta set by WithRequestMeta.
func RequestMetaFrom(ctx context.Context) (RequestMeta, bool) {
	meta, ok := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta, ok
}
