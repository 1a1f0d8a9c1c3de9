package claimpack

import (
	"context"
	"fmt"

	"github.com/angelmondragon/packclaim/internal/queue"
	"github.com/angelmondragon/packclaim/pkg/enums"
	pkgerrors "github.com/angelmondragon/packclaim/pkg/errors"
	"github.com/angelmondragon/packclaim/pkg/logger"
	"github.com/angelmondragon/packclaim/pkg/metrics"
)

type stepFunc func(*Service, context.Context, ClaimPackData) error

type step struct {
	name enums.ClaimPackStep
	run  stepFunc
}

// steps is the fixed execution order of a claim-pack job.
var steps = []step{
	{enums.ClaimPackStepEnsureAccountMinBalance, (*Service).EnsureAccountMinBalanceForPack},
	{enums.ClaimPackStepMintCollectibles, (*Service).MintPackCollectibles},
	{enums.ClaimPackStepTransferPack, (*Service).TransferPack},
	{enums.ClaimPackStepNotifyPackOwner, (*Service).NotifyPackOwner},
}

func stepIndex(name enums.ClaimPackStep) int {
	for i, candidate := range steps {
		if candidate.name == name {
			return i
		}
	}
	return -1
}

// Processor runs claim-pack jobs for the queue worker. After each step the
// next one is saved as the job cursor so a retry resumes where it stopped.
type Processor struct {
	svc     *Service
	logg    *logger.Logger
	metrics *metrics.QueueMetrics
}

var _ queue.Handler = (*Processor)(nil)

func NewProcessor(svc *Service, logg *logger.Logger, m *metrics.QueueMetrics) (*Processor, error) {
	if svc == nil {
		return nil, fmt.Errorf("claimpack service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Processor{svc: svc, logg: logg, metrics: m}, nil
}

func (p *Processor) Handle(ctx context.Context, lease *queue.Lease) error {
	data, err := DecodeClaimPackData(lease.Payload())
	if err != nil {
		return err
	}
	ctx = p.logg.WithPackID(ctx, data.PackID.String())
	if data.UserID != nil {
		ctx = p.logg.WithUserID(ctx, data.UserID.String())
	}

	start := stepIndex(data.CurrentStep())
	if start < 0 {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unknown claim pack step %q", data.Step)
	}

	for i := start; i < len(steps); i++ {
		current := steps[i]
		stepCtx := p.logg.WithStep(ctx, string(current.name))
		p.logg.Debug(stepCtx, "claim pack step started")
		if err := current.run(p.svc, stepCtx, data); err != nil {
			return err
		}
		p.metrics.IncStep(string(enums.QueueClaimPack), string(current.name))

		if i+1 == len(steps) {
			break
		}
		data.Step = steps[i+1].name
		payload, err := data.Encode()
		if err != nil {
			return err
		}
		if err := lease.SavePayload(ctx, payload); err != nil {
			return err
		}
	}
	p.logg.Info(ctx, "pack claimed")
	return nil
}
