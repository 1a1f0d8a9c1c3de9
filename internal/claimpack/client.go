package claimpack

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/packclaim/internal/queue"
	"github.com/angelmondragon/packclaim/pkg/db/models"
)

// Enqueue schedules the claim of packID. The pack id is the dedupe key, so a
// pack is only ever claimed by one job.
func Enqueue(ctx context.Context, q *queue.Client, packID uuid.UUID, userID *uuid.UUID) (*models.Job, bool, error) {
	payload, err := ClaimPackData{PackID: packID, UserID: userID}.Encode()
	if err != nil {
		return nil, false, err
	}
	return q.Enqueue(ctx, packID.String(), payload)
}
