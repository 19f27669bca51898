// Package incident archives refresh token reuse incidents as JSON documents
// in object storage.
package incident

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/dtroode/refreshkeeper/internal/model"
)

const contentType = "application/json"

var _ model.IncidentReporter = (*Archive)(nil)

type Archive struct {
	storage model.ObjectStorage
	prefix  string
}

func NewArchive(storage model.ObjectStorage, prefix string) *Archive {
	if prefix == "" {
		prefix = "incidents"
	}
	return &Archive{storage: storage, prefix: prefix}
}

// ReportReuse uploads incident under <prefix>/<user>/<unix>-<id>.json.
func (a *Archive) ReportReuse(ctx context.Context, incident model.ReuseIncident) error {
	body, err := json.Marshal(incident)
	if err != nil {
		return fmt.Errorf("failed to marshal incident: %w", err)
	}

	key := a.Key(incident)
	if err := a.storage.Upload(ctx, key, bytes.NewReader(body), int64(len(body)), contentType); err != nil {
		return fmt.Errorf("failed to archive incident %s: %w", incident.ID, err)
	}

	return nil
}

// Key returns the object key incident is stored under.
func (a *Archive) Key(incident model.ReuseIncident) string {
	return fmt.Sprintf("%s/%s/%d-%s.json", a.prefix, incident.UserID, incident.DetectedAt.Unix(), incident.ID)
}
