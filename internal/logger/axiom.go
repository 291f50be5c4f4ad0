package logger

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/axiomhq/axiom-go/axiom"
	"github.com/axiomhq/axiom-go/axiom/ingest"
)

const (
	axiomBuffer    = 1000
	axiomBatchSize = 200
)

type ingestFunc func(ctx context.Context, dataset string, events []axiom.Event) error

// axiomSink is an io.Writer that batches zerolog JSON lines to Axiom.
// Debug events are not forwarded and events are dropped when the buffer
// is full.
type axiomSink struct {
	ingest  ingestFunc
	dataset string
	every   time.Duration

	events chan axiom.Event
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func dialAxiom(o AxiomOptions, service string) (*axiomSink, error) {
	opts := []axiom.Option{axiom.SetToken(o.Token)}
	if o.OrgID != "" {
		opts = append(opts, axiom.SetOrganizationID(o.OrgID))
	}
	client, err := axiom.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	dataset := o.Dataset
	if dataset == "" {
		dataset = "dev_" + service
	}
	send := func(ctx context.Context, dataset string, events []axiom.Event) error {
		_, err := client.IngestEvents(ctx, dataset, events)
		return err
	}
	return newAxiomSink(send, dataset, o.Flush), nil
}

func newAxiomSink(send ingestFunc, dataset string, every time.Duration) *axiomSink {
	if every <= 0 {
		every = 10 * time.Second
	}
	s := &axiomSink{
		ingest:  send,
		dataset: dataset,
		every:   every,
		events:  make(chan axiom.Event, axiomBuffer),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *axiomSink) Write(p []byte) (int, error) {
	ev := axiom.Event{}
	if err := json.Unmarshal(p, &ev); err != nil {
		ev = axiom.Event{"message": string(p), "level": "info"}
	}
	if ev["level"] == "debug" {
		return len(p), nil
	}
	if _, ok := ev[ingest.TimestampField]; !ok {
		ev[ingest.TimestampField] = time.Now()
	}
	select {
	case s.events <- ev:
	default:
	}
	return len(p), nil
}

func (s *axiomSink) run() {
	defer close(s.done)
	tick := time.NewTicker(s.every)
	defer tick.Stop()

	batch := make([]axiom.Event, 0, axiomBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		_ = s.ingest(ctx, s.dataset, batch)
		cancel()
		batch = make([]axiom.Event, 0, axiomBatchSize)
	}
	for {
		select {
		case ev := <-s.events:
			batch = append(batch, ev)
			if len(batch) >= axiomBatchSize {
				flush()
			}
		case <-tick.C:
			flush()
		case <-s.quit:
			for {
				select {
				case ev := <-s.events:
					batch = append(batch, ev)
				default:
					flush()
					return
				}
			}
		}
	}
}

// Close sends what is buffered and stops the batching goroutine.
func (s *axiomSink) Close() {
	s.once.Do(func() { close(s.quit) })
	<-s.done
}
