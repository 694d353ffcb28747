package probe

import (
	"github.com/jhwbarlow/tcp-audit-listen-eventer/pkg/tracepoint"
)

// Outcome is what happened to a single transition.
type Outcome int

const (
	OutcomeFiltered Outcome = iota // Not LISTEN-related; nothing built
	OutcomeEmitted
	OutcomeDropped // Built, but the output slot was full
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFiltered:
		return "filtered"
	case OutcomeEmitted:
		return "emitted"
	case OutcomeDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Pipeline runs classify, build and emit against an injected output channel.
// It is safe for concurrent use as long as the channel is.
type Pipeline struct {
	out OutputChannel
}

func NewPipeline(out OutputChannel) *Pipeline {
	return &Pipeline{out}
}

// Handle processes one transition.
func (p *Pipeline) Handle(ctx InvocationContext, id Identity, rec tracepoint.InetSockSetState) Outcome {
	if !Classify(rec.OldState, rec.NewState) {
		return OutcomeFiltered
	}

	if p.out.Emit(ctx, Build(rec, id)) != StatusOK {
		return OutcomeDropped
	}

	return OutcomeEmitted
}

// HandleRaw decodes a raw tracepoint record and processes it.
// A truncated record is reported as a *tracepoint.DecodeError.
func (p *Pipeline) HandleRaw(ctx InvocationContext,
	id Identity,
	data []byte,
	decoder *tracepoint.Decoder) (Outcome, error) {
	rec, err := decoder.Decode(data)
	if err != nil {
		return OutcomeFiltered, err
	}

	return p.Handle(ctx, id, rec), nil
}
