// Package validator checks raw notes against the pipeline contract and
// republishes them as valid notes with a stable transaction id. Anything
// that fails validation is quarantined on the DLQ topic.
package validator

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/mcryptoex/tempo/internal/config"
	"github.com/mcryptoex/tempo/internal/notes"
)

// ValidationVersion tags every note this validator passes.
const ValidationVersion = "v1"

var (
	notesValidatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tempo_validator_notes_total",
			Help: "Notes processed by the validator.",
		},
		[]string{"outcome"},
	)
)

// requiredStringFields maps field names to accessors, in check order.
var requiredStringFields = []struct {
	name string
	get  func(*notes.RawNote) string
}{
	{"note_id", func(n *notes.RawNote) string { return n.NoteID }},
	{"correlation_id", func(n *notes.RawNote) string { return n.CorrelationID }},
	{"tx_hash", func(n *notes.RawNote) string { return n.TxHash }},
	{"action", func(n *notes.RawNote) string { return n.Action }},
	{"user_address", func(n *notes.RawNote) string { return n.UserAddress }},
	{"pool_address", func(n *notes.RawNote) string { return n.PoolAddress }},
	{"token_in", func(n *notes.RawNote) string { return n.TokenIn }},
	{"token_out", func(n *notes.RawNote) string { return n.TokenOut }},
}

// Validate checks one raw note and derives the valid note. The tx_id is a
// pure function of (chain_id, tx_hash, note_id) so replays converge on the
// same transaction row.
func Validate(raw *notes.RawNote) (*notes.ValidNote, error) {
	for _, field := range requiredStringFields {
		if strings.TrimSpace(field.get(raw)) == "" {
			return nil, fmt.Errorf("missing field: %s", field.name)
		}
	}

	if raw.ChainID <= 0 {
		return nil, fmt.Errorf("chain_id must be > 0")
	}
	if _, ok := notes.AllowedActions[raw.Action]; !ok {
		return nil, fmt.Errorf("unsupported action: %s", raw.Action)
	}

	if err := validateDecimal(raw.AmountIn, "amount_in"); err != nil {
		return nil, err
	}
	if err := validateDecimal(raw.AmountOut, "amount_out"); err != nil {
		return nil, err
	}
	if err := validateDecimal(raw.FeeUSD, "fee_usd"); err != nil {
		return nil, err
	}
	if err := validateDecimal(raw.GasUsed, "gas_used"); err != nil {
		return nil, err
	}
	if err := validateDecimal(raw.GasCostUSD, "gas_cost_usd"); err != nil {
		return nil, err
	}
	if err := validateDecimal(raw.ProtocolRevenueUSD, "protocol_revenue_usd"); err != nil {
		return nil, err
	}

	minOut := strings.TrimSpace(raw.MinOut)
	if minOut == "" {
		minOut = "0"
	}
	if err := validateDecimal(minOut, "min_out"); err != nil {
		return nil, err
	}

	valid := &notes.ValidNote{
		RawNote:           *raw,
		TxID:              TxID(raw.ChainID, raw.TxHash, raw.NoteID),
		ValidationVersion: ValidationVersion,
	}
	valid.MinOut = minOut
	if valid.OccurredAt.IsZero() {
		valid.OccurredAt = time.Now().UTC()
	}
	return valid, nil
}

// TxID derives the stable transaction id for a note.
func TxID(chainID int64, txHash, noteID string) string {
	name := fmt.Sprintf("%d:%s:%s", chainID, txHash, noteID)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

func validateDecimal(value, field string) error {
	parsed, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid decimal field %s: %q", field, value)
	}
	if parsed.IsNegative() {
		return fmt.Errorf("%s must be >= 0", field)
	}
	return nil
}

// rejectionError marks a contract failure that belongs on the DLQ.
// Infrastructure errors stay untyped so the note is redelivered instead
// of quarantined.
type rejectionError struct {
	cause error
}

func (e *rejectionError) Error() string { return e.cause.Error() }
func (e *rejectionError) Unwrap() error { return e.cause }

func reject(cause error) error {
	return &rejectionError{cause: cause}
}

// consumer is satisfied by stream.Consumer.
type consumer interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msg kafka.Message) error
}

// publisher is satisfied by stream.Producer.
type publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, correlationID string) error
}

// Runner consumes raw notes, validates, and republishes or quarantines.
type Runner struct {
	topics   config.TopicSettings
	consumer consumer
	producer publisher
	log      *slog.Logger
}

// NewRunner wires a validator loop over the given consumer and producer.
func NewRunner(topics config.TopicSettings, c consumer, p publisher, log *slog.Logger) *Runner {
	return &Runner{topics: topics, consumer: c, producer: p, log: log}
}

// Run processes messages until the context is cancelled. Offsets commit
// synchronously after the outcome (valid publish or DLQ publish) is durable,
// so a crash replays rather than drops. The DLQ is reserved for contract
// failures; a broker error on the valid topic leaves the offset uncommitted
// so the note is redelivered.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("validator subscribed", "topic", r.topics.Raw)

	for {
		msg, err := r.consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.log.Error("fetch failed", "error", err)
			continue
		}

		if err := r.process(ctx, msg.Value); err != nil {
			var rejection *rejectionError
			if !errors.As(err, &rejection) {
				r.log.Error("valid note publish failed", "error", err)
				continue
			}
			r.log.Error("note validation failed", "error", err)
			if err := r.publishDLQ(ctx, msg.Value, rejection); err != nil {
				// Leave the offset uncommitted so the note is retried
				// rather than lost.
				r.log.Error("dlq publish failed", "error", err)
				continue
			}
			notesValidatedTotal.WithLabelValues("rejected").Inc()
		} else {
			notesValidatedTotal.WithLabelValues("valid").Inc()
		}

		if err := r.consumer.Commit(ctx, msg); err != nil {
			r.log.Error("offset commit failed", "error", err)
		}
	}
}

func (r *Runner) process(ctx context.Context, payload []byte) error {
	var raw notes.RawNote
	if err := raw.Unmarshal(payload); err != nil {
		return reject(fmt.Errorf("decode raw note: %w", err))
	}

	valid, err := Validate(&raw)
	if err != nil {
		return reject(err)
	}

	// Marshal failure is deterministic; retrying it would loop forever.
	encoded, err := valid.Marshal()
	if err != nil {
		return reject(fmt.Errorf("marshal valid note: %w", err))
	}
	if err := r.producer.Publish(ctx, r.topics.Valid, []byte(valid.NoteID), encoded, valid.CorrelationID); err != nil {
		return err
	}

	r.log.Info("validated",
		"note_id", valid.NoteID,
		"action", valid.Action,
		"tx_hash", valid.TxHash,
		"tx_id", valid.TxID,
	)
	return nil
}

// publishDLQ quarantines an undecodable or invalid payload with the reason.
func (r *Runner) publishDLQ(ctx context.Context, payload []byte, cause error) error {
	record := notes.DLQRecord{
		Error:      cause.Error(),
		PayloadHex: hex.EncodeToString(payload),
	}
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal dlq record: %w", err)
	}
	return r.producer.Publish(ctx, r.topics.DLQ, []byte(uuid.NewString()), encoded, "")
}
