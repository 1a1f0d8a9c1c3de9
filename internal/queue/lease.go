package queue

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/angelmondragon/packclaim/pkg/db/models"
)

// ErrLeaseLost is returned when a guarded write matches no row because
// another worker took the job over.
var ErrLeaseLost = errors.New("queue: lease lost")

// Handler runs one leased job. Returning nil completes the job.
type Handler interface {
	Handle(ctx context.Context, lease *Lease) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, lease *Lease) error

func (f HandlerFunc) Handle(ctx context.Context, lease *Lease) error {
	return f(ctx, lease)
}

// Lease is the handle a Handler gets on the job it is running.
type Lease struct {
	job   models.Job
	owner string
	repo  Repository
}

func (l *Lease) Job() models.Job { return l.job }

func (l *Lease) Owner() string { return l.owner }

func (l *Lease) Payload() json.RawMessage { return l.job.Payload }

// SavePayload persists payload as the job's resume cursor.
func (l *Lease) SavePayload(ctx context.Context, payload json.RawMessage) error {
	rows, err := l.repo.SavePayload(ctx, l.job.ID, l.owner, payload)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrLeaseLost
	}
	l.job.Payload = payload
	return nil
}
