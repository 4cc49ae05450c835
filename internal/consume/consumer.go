package consume

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/edgelake/sheetsink/internal/config"
	"github.com/edgelake/sheetsink/internal/ledger"
	"github.com/edgelake/sheetsink/internal/stats"
	syncer "github.com/edgelake/sheetsink/internal/sync"
)

// Processor is the slice of the sync orchestrator the consumer drives.
type Processor interface {
	FetchAndStoreDelta(ctx context.Context) (*syncer.Result, error)
	FetchAndStoreItems(ctx context.Context, ids []string, cursor string, finalize bool) (*syncer.Result, error)
}

// Prober checks Source reachability before a message is dispatched.
type Prober interface {
	Probe(ctx context.Context) error
}

// MessageWriter re-enqueues continuation messages. Satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// reader is the slice of *kafka.Reader the consume loop uses.
type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer pulls notification messages from the topic, dispatches each to
// the processor, and settles the message: commit on success or archive,
// leave uncommitted on transient failure so the broker redelivers.
type Consumer struct {
	cfg    *config.Config
	proc   Processor
	prober Prober
	db     ledger.DBTX
	poison *ledger.PoisonStore
	writer MessageWriter
	stats  *stats.Collector
	logger zerolog.Logger

	newReader   func() reader
	closeWriter func() error
}

// New builds a consumer wired to the configured brokers, topic, and group.
func New(cfg *config.Config, proc Processor, prober Prober, db ledger.DBTX, st *stats.Collector, logger zerolog.Logger) *Consumer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Queue.Brokers...),
		Topic:    cfg.Queue.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	return &Consumer{
		cfg:    cfg,
		proc:   proc,
		prober: prober,
		db:     db,
		poison: ledger.NewPoisonStore(cfg.Warehouse.Schema),
		writer: w,
		stats:  st,
		logger: logger.With().Str("component", "consumer").Logger(),
		newReader: func() reader {
			return kafka.NewReader(kafka.ReaderConfig{
				Brokers:  cfg.Queue.Brokers,
				GroupID:  cfg.Queue.Group,
				Topic:    cfg.Queue.Topic,
				MinBytes: 1,
				MaxBytes: 10 << 20,
			})
		},
		closeWriter: w.Close,
	}
}

// Run starts the worker readers and blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.stats.SetPhase("consuming")
	c.logger.Info().
		Strs("brokers", c.cfg.Queue.Brokers).
		Str("topic", c.cfg.Queue.Topic).
		Str("group", c.cfg.Queue.Group).
		Int("workers", c.cfg.Queue.Workers).
		Msg("consumer starting")

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Queue.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c.worker(ctx, id)
		}(i)
	}
	wg.Wait()

	if c.closeWriter != nil {
		if err := c.closeWriter(); err != nil {
			c.logger.Err(err).Msg("close continuation writer")
		}
	}
	c.logger.Info().Msg("consumer stopped")
	return nil
}

// worker runs one group reader, restarting it with exponential backoff when
// the loop errors out.
func (c *Consumer) worker(ctx context.Context, id int) {
	log := c.logger.With().Int("worker", id).Logger()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = time.Minute
	bo.MaxElapsedTime = 0

	for {
		r := c.newReader()
		err := c.readLoop(ctx, r, log)
		if cerr := r.Close(); cerr != nil {
			log.Err(cerr).Msg("close reader")
		}
		if ctx.Err() != nil {
			return
		}

		wait := bo.NextBackOff()
		log.Warn().Err(err).Dur("retry_in", wait).Msg("read loop stopped, restarting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// readLoop fetches and settles messages one at a time. Offsets are committed
// only after handle returns nil; a transient failure exits the loop with the
// message uncommitted.
func (c *Consumer) readLoop(ctx context.Context, r reader, log zerolog.Logger) error {
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			return err
		}
		if err := c.handle(ctx, m); err != nil {
			return err
		}
		if err := r.CommitMessages(ctx, m); err != nil {
			return fmt.Errorf("commit offset: %w", err)
		}
	}
}

// handle dispatches one message. Returning nil acknowledges it; returning an
// error leaves it for redelivery.
func (c *Consumer) handle(ctx context.Context, m kafka.Message) error {
	c.stats.RecordMessage()
	log := c.logger.With().Int("partition", m.Partition).Int64("offset", m.Offset).Logger()

	payload, err := ParsePayload(m.Value)
	if err != nil {
		log.Warn().Err(err).Msg("dropping unrecognized message")
		return nil
	}

	var res *syncer.Result
	switch p := payload.(type) {
	case *Envelope:
		if len(p.Value) == 0 {
			log.Debug().Msg("handshake envelope, nothing to do")
			return nil
		}
		if p.Actionable(c.cfg.Site.SiteID, c.cfg.Site.ListID, c.cfg.Site.ClientState) == 0 {
			log.Info().Int("entries", len(p.Value)).Msg("no actionable entries, acknowledging")
			return nil
		}
		if err := c.prober.Probe(ctx); err != nil {
			return c.settle(ctx, m, err, log)
		}
		res, err = c.proc.FetchAndStoreDelta(ctx)
		if err != nil {
			return c.settle(ctx, m, err, log)
		}
	case *ContinuationPayload:
		if err := c.prober.Probe(ctx); err != nil {
			return c.settle(ctx, m, err, log)
		}
		res, err = c.proc.FetchAndStoreItems(ctx, p.ItemIDs, p.DeltaLink, true)
		if err != nil {
			return c.settle(ctx, m, err, log)
		}
	}

	c.stats.RecordRun(res.Succeeded, res.Failed, res.Skipped, res.Duplicates)
	if res.Continuation != nil {
		return c.enqueue(ctx, res.Continuation)
	}
	return nil
}

// settle decides the fate of a failed message: archive and acknowledge when
// redelivery cannot help, otherwise surface the error so the offset stays
// uncommitted.
func (c *Consumer) settle(ctx context.Context, m kafka.Message, cause error, log zerolog.Logger) error {
	c.stats.RecordError(cause)

	reason, ok := archiveReason(cause)
	if !ok {
		log.Error().Err(cause).Msg("transient failure, leaving message for redelivery")
		return cause
	}

	log.Warn().Err(cause).Str("reason", reason).Msg("archiving poison message")
	err := c.poison.Archive(ctx, c.db, ledger.PoisonMessage{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Payload:   m.Value,
		Reason:    fmt.Sprintf("%s: %v", reason, cause),
	})
	if err != nil {
		// The archive itself failed; keep the message on the topic rather
		// than lose it.
		log.Err(err).Msg("poison archive failed")
		return err
	}
	c.stats.RecordArchived(reason)
	return nil
}

// enqueue publishes the unprocessed tail of a batch back onto the topic.
func (c *Consumer) enqueue(ctx context.Context, cont *syncer.Continuation) error {
	body, err := json.Marshal(cont)
	if err != nil {
		return fmt.Errorf("marshal continuation: %w", err)
	}
	if err := c.writer.WriteMessages(ctx, kafka.Message{Value: body}); err != nil {
		return fmt.Errorf("enqueue continuation: %w", err)
	}
	c.stats.RecordContinuation()
	c.logger.Info().Int("remaining", len(cont.ItemIDs)).Msg("continuation enqueued")
	return nil
}
