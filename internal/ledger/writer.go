package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	"github.com/mcryptoex/tempo/internal/config"
	"github.com/mcryptoex/tempo/internal/notes"
)

var notesWrittenTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tempo_ledger_writer_notes_total",
		Help: "Valid notes processed by the ledger writer.",
	},
	[]string{"outcome"},
)

type consumer interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msg kafka.Message) error
}

type publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, correlationID string) error
}

// store is satisfied by Repository.
type store interface {
	PersistNote(ctx context.Context, note *notes.ValidNote, entries []notes.LedgerEntry, outbox notes.OutboxEvent) (bool, error)
}

// mirror is satisfied by database.ClickHouse.
type mirror interface {
	InsertTransaction(ctx context.Context, note *notes.ValidNote) error
}

// Writer consumes valid notes and writes them to the ledger. Postgres is
// the source of truth; the proto batch, outbox event and ClickHouse mirror
// must also land before the offset commits, so an outage on any of them
// replays the note instead of dropping the side channels.
type Writer struct {
	topics     config.TopicSettings
	consumer   consumer
	producer   publisher
	repo       store
	clickhouse mirror
	log        *slog.Logger
}

// NewWriter wires a ledger writer loop.
func NewWriter(
	topics config.TopicSettings,
	c consumer,
	p publisher,
	repo store,
	ch mirror,
	log *slog.Logger,
) *Writer {
	return &Writer{
		topics:     topics,
		consumer:   c,
		producer:   p,
		repo:       repo,
		clickhouse: ch,
		log:        log,
	}
}

// Run processes messages until the context is cancelled. Any failure in
// process leaves the offset uncommitted so the note is redelivered; the
// idempotent insert makes the replay harmless.
func (w *Writer) Run(ctx context.Context) error {
	w.log.Info("ledger writer subscribed", "topic", w.topics.Valid)

	for {
		msg, err := w.consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Error("fetch failed", "error", err)
			continue
		}

		if err := w.process(ctx, msg.Value); err != nil {
			w.log.Error("failed to process valid note", "error", err)
			notesWrittenTotal.WithLabelValues("error").Inc()
			continue
		}

		if err := w.consumer.Commit(ctx, msg); err != nil {
			w.log.Error("offset commit failed", "error", err)
		}
	}
}

func (w *Writer) process(ctx context.Context, payload []byte) error {
	var note notes.ValidNote
	if err := note.Unmarshal(payload); err != nil {
		return fmt.Errorf("decode valid note: %w", err)
	}

	entries := BuildEntries(&note)
	outbox := NewOutboxEvent(&note)

	inserted, err := w.repo.PersistNote(ctx, &note, entries, outbox)
	if err != nil {
		return err
	}

	// The side channels run on replays too: a redelivery after a publish
	// failure finds inserted=false and still completes them before the
	// offset commits.
	if err := w.publishLedgerBatch(ctx, &note, entries); err != nil {
		return err
	}
	if err := w.publishOutbox(ctx, outbox); err != nil {
		return err
	}
	if err := w.clickhouse.InsertTransaction(ctx, &note); err != nil {
		return fmt.Errorf("clickhouse mirror: %w", err)
	}

	if inserted {
		notesWrittenTotal.WithLabelValues("inserted").Inc()
	} else {
		notesWrittenTotal.WithLabelValues("duplicate").Inc()
	}

	w.log.Info("ledger write complete",
		"note_id", note.NoteID,
		"tx_id", note.TxID,
		"inserted", inserted,
		"entries", len(entries),
	)
	return nil
}

func (w *Writer) publishLedgerBatch(ctx context.Context, note *notes.ValidNote, entries []notes.LedgerEntry) error {
	batch := notes.LedgerEntryBatch{
		BatchID:       uuid.NewString(),
		TxID:          note.TxID,
		NoteID:        note.NoteID,
		CorrelationID: note.CorrelationID,
		ChainID:       note.ChainID,
		TxHash:        note.TxHash,
		CreatedAt:     time.Now().UTC(),
		Entries:       entries,
	}

	payload, err := batch.Marshal()
	if err != nil {
		return fmt.Errorf("marshal ledger batch: %w", err)
	}
	if err := w.producer.Publish(ctx, w.topics.LedgerEntries, []byte(note.NoteID), payload, note.CorrelationID); err != nil {
		return fmt.Errorf("publish ledger batch: %w", err)
	}
	return nil
}

func (w *Writer) publishOutbox(ctx context.Context, event notes.OutboxEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal outbox event: %w", err)
	}
	if err := w.producer.Publish(ctx, w.topics.Outbox, []byte(event.NoteID), payload, ""); err != nil {
		return fmt.Errorf("publish outbox event: %w", err)
	}
	return nil
}
