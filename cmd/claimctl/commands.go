package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/angelmondragon/packclaim/internal/claimpack"
	"github.com/angelmondragon/packclaim/internal/queue"
	"github.com/angelmondragon/packclaim/pkg/db/models"
	"github.com/angelmondragon/packclaim/pkg/enums"
	pkgerrors "github.com/angelmondragon/packclaim/pkg/errors"
)

const usage = `usage: claimctl <command> [flags]

commands:
  enqueue -pack <id> [-user <id>]   schedule a pack claim (no-op if one exists)
  status  -pack <id>                show the claim job for a pack
  retry   -job <id>                 re-queue a failed claim job
  dlq     [-limit <n>] [-event <id>] list dead-lettered outbox events
`

var validate = validator.New(validator.WithRequiredStructEnabled())

type enqueueInput struct {
	PackID string `validate:"required,uuid"`
	UserID string `validate:"omitempty,uuid"`
}

type statusInput struct {
	PackID string `validate:"required,uuid"`
}

type retryInput struct {
	JobID string `validate:"required,uuid"`
}

type dlqInput struct {
	Limit   int    `validate:"gte=0,lte=500"`
	EventID string `validate:"omitempty,uuid"`
}

// dlqReader is the read side of the outbox dead-letter table.
type dlqReader interface {
	List(ctx context.Context, limit int) ([]models.OutboxDLQ, error)
	FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error)
}

type app struct {
	jobs *queue.Client
	dlq  dlqReader
}

type jobOutput struct {
	Created     *bool           `json:"created,omitempty"`
	ID          uuid.UUID       `json:"id"`
	PackID      string          `json:"packId"`
	Status      enums.JobStatus `json:"status"`
	Attempts    int             `json:"attempts"`
	RunAt       time.Time       `json:"runAt"`
	LockedBy    *string         `json:"lockedBy,omitempty"`
	LastError   *string         `json:"lastError,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	FailedAt    *time.Time      `json:"failedAt,omitempty"`
	Payload     json.RawMessage `json:"payload"`
}

// run dispatches one claimctl command and writes the result as JSON.
func (a *app) run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, strings.TrimSpace(usage))
	}
	cmd, rest := args[0], args[1:]
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	switch cmd {
	case "enqueue":
		in := enqueueInput{}
		fs.StringVar(&in.PackID, "pack", "", "pack id")
		fs.StringVar(&in.UserID, "user", "", "owner user id, used for log context")
		if err := parse(fs, rest, &in); err != nil {
			return err
		}
		var userID *uuid.UUID
		if in.UserID != "" {
			id := uuid.MustParse(in.UserID)
			userID = &id
		}
		job, created, err := claimpack.Enqueue(ctx, a.jobs, uuid.MustParse(in.PackID), userID)
		if err != nil {
			return err
		}
		return writeJob(stdout, job, &created)

	case "status":
		in := statusInput{}
		fs.StringVar(&in.PackID, "pack", "", "pack id")
		if err := parse(fs, rest, &in); err != nil {
			return err
		}
		job, err := a.jobs.Status(ctx, uuid.MustParse(in.PackID).String())
		if err != nil {
			return err
		}
		return writeJob(stdout, job, nil)

	case "retry":
		in := retryInput{}
		fs.StringVar(&in.JobID, "job", "", "job id")
		if err := parse(fs, rest, &in); err != nil {
			return err
		}
		job, err := a.jobs.Retry(ctx, uuid.MustParse(in.JobID))
		if err != nil {
			return err
		}
		return writeJob(stdout, job, nil)

	case "dlq":
		in := dlqInput{}
		fs.IntVar(&in.Limit, "limit", 20, "max entries to list")
		fs.StringVar(&in.EventID, "event", "", "show one dead-lettered event")
		if err := parse(fs, rest, &in); err != nil {
			return err
		}
		return a.showDLQ(ctx, in, stdout)

	default:
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unknown command %q\n%s", cmd, usage)
	}
}

func parse(fs *flag.FlagSet, args []string, in any) error {
	if err := fs.Parse(args); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, fs.Name())
	}
	if err := validate.Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return pkgerrors.Newf(pkgerrors.CodeValidation, "%s: %s failed on %q", fs.Name(), flagName(fe.Field()), fe.Tag())
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, fs.Name())
	}
	return nil
}

func flagName(field string) string {
	switch field {
	case "PackID":
		return "-pack"
	case "UserID":
		return "-user"
	case "JobID":
		return "-job"
	case "Limit":
		return "-limit"
	case "EventID":
		return "-event"
	}
	return field
}

func writeJob(w io.Writer, job *models.Job, created *bool) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	out := jobOutput{
		Created:     created,
		ID:          job.ID,
		PackID:      job.DedupeKey,
		Status:      job.Status,
		Attempts:    job.Attempts,
		RunAt:       job.RunAt,
		LockedBy:    job.LockedBy,
		LastError:   job.LastError,
		CompletedAt: job.CompletedAt,
		FailedAt:    job.FailedAt,
		Payload:     job.Payload,
	}
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func (a *app) showDLQ(ctx context.Context, in dlqInput, w io.Writer) error {
	if a.dlq == nil {
		return errors.New("dead-letter store not configured")
	}
	var rows []models.OutboxDLQ
	if in.EventID != "" {
		row, err := a.dlq.FindByEventID(ctx, uuid.MustParse(in.EventID))
		if err != nil {
			return err
		}
		if row == nil {
			return pkgerrors.Newf(pkgerrors.CodeNotFound, "event %s is not dead-lettered", in.EventID)
		}
		rows = append(rows, *row)
	} else {
		var err error
		if rows, err = a.dlq.List(ctx, in.Limit); err != nil {
			return err
		}
	}

	out := make([]dlqOutput, 0, len(rows))
	for _, row := range rows {
		out = append(out, dlqOutput{
			EventID:       row.EventID,
			EventType:     row.EventType,
			AggregateType: row.AggregateType,
			AggregateID:   row.AggregateID,
			Topic:         row.Topic,
			Reason:        row.ErrorReason,
			Message:       row.ErrorMessage,
			Attempts:      row.AttemptCount,
			FailedAt:      row.FailedAt,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

type dlqOutput struct {
	EventID       uuid.UUID                  `json:"eventId"`
	EventType     enums.OutboxEventType      `json:"eventType"`
	AggregateType enums.OutboxAggregateType  `json:"aggregateType"`
	AggregateID   uuid.UUID                  `json:"aggregateId"`
	Topic         *string                    `json:"topic,omitempty"`
	Reason        enums.OutboxDLQErrorReason `json:"reason"`
	Message       *string                    `json:"message,omitempty"`
	Attempts      int                        `json:"attempts"`
	FailedAt      time.Time                  `json:"failedAt"`
}
