package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ReuseIncident describes a presentation of an already revoked refresh token.
// Token values are recorded as fingerprints only.
type ReuseIncident struct {
	ID                 uuid.UUID `json:"id"`
	UserID             uuid.UUID `json:"user_id"`
	PresentedToken     string    `json:"presented_token"`
	IP                 string    `json:"ip"`
	DetectedAt         time.Time `json:"detected_at"`
	RevokedDescendants []string  `json:"revoked_descendants"`
}

// IncidentReporter records reuse incidents for later investigation.
type IncidentReporter interface {
	ReportReuse(ctx context.Context, incident ReuseIncident) error
}
