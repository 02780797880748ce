package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcryptoex/tempo/internal/config"
	"github.com/mcryptoex/tempo/internal/notes"
)

type fakeConsumer struct {
	msgs      []kafka.Message
	cancel    context.CancelFunc
	committed []kafka.Message
}

func (c *fakeConsumer) Fetch(ctx context.Context) (kafka.Message, error) {
	if len(c.msgs) == 0 {
		c.cancel()
		return kafka.Message{}, context.Canceled
	}
	msg := c.msgs[0]
	c.msgs = c.msgs[1:]
	return msg, nil
}

func (c *fakeConsumer) Commit(ctx context.Context, msg kafka.Message) error {
	c.committed = append(c.committed, msg)
	return nil
}

type fakePublisher struct {
	failTopics map[string]error
	topics     []string
}

func (p *fakePublisher) Publish(ctx context.Context, topic string, key, value []byte, correlationID string) error {
	if err := p.failTopics[topic]; err != nil {
		return err
	}
	p.topics = append(p.topics, topic)
	return nil
}

type fakeStore struct {
	inserted bool
	err      error
	persists int
}

func (s *fakeStore) PersistNote(ctx context.Context, note *notes.ValidNote, entries []notes.LedgerEntry, outbox notes.OutboxEvent) (bool, error) {
	s.persists++
	return s.inserted, s.err
}

type fakeMirror struct {
	err     error
	noteIDs []string
}

func (m *fakeMirror) InsertTransaction(ctx context.Context, note *notes.ValidNote) error {
	if m.err != nil {
		return m.err
	}
	m.noteIDs = append(m.noteIDs, note.NoteID)
	return nil
}

func writerTopics() config.TopicSettings {
	return config.TopicSettings{
		Raw:           "dex_tx_raw",
		Valid:         "dex_tx_valid",
		LedgerEntries: "dex_ledger_entries",
		Outbox:        "dex_outbox",
		DLQ:           "dex_dlq",
	}
}

func validNoteMessage(t *testing.T) kafka.Message {
	t.Helper()
	payload, err := swapNote().Marshal()
	require.NoError(t, err)
	return kafka.Message{Value: payload}
}

func runWriter(t *testing.T, cons *fakeConsumer, prod *fakePublisher, repo *fakeStore, mir *fakeMirror) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cons.cancel = cancel
	log := slog.New(slog.NewJSONHandler(io.Discard, nil))
	w := NewWriter(writerTopics(), cons, prod, repo, mir, log)
	require.ErrorIs(t, w.Run(ctx), context.Canceled)
}

func TestWriterPersistsPublishesAndCommits(t *testing.T) {
	cons := &fakeConsumer{msgs: []kafka.Message{validNoteMessage(t)}}
	prod := &fakePublisher{}
	repo := &fakeStore{inserted: true}
	mir := &fakeMirror{}

	runWriter(t, cons, prod, repo, mir)

	assert.Equal(t, 1, repo.persists)
	assert.Equal(t, []string{"dex_ledger_entries", "dex_outbox"}, prod.topics)
	assert.Equal(t, []string{"note-1"}, mir.noteIDs)
	assert.Len(t, cons.committed, 1)
}

func TestWriterBatchPublishFailureSkipsCommit(t *testing.T) {
	cons := &fakeConsumer{msgs: []kafka.Message{validNoteMessage(t)}}
	prod := &fakePublisher{failTopics: map[string]error{
		"dex_ledger_entries": errors.New("broker unavailable"),
	}}
	repo := &fakeStore{inserted: true}
	mir := &fakeMirror{}

	runWriter(t, cons, prod, repo, mir)

	assert.Equal(t, 1, repo.persists)
	assert.Empty(t, cons.committed, "offset must stay uncommitted for redelivery")
	assert.Empty(t, mir.noteIDs)
}

func TestWriterOutboxPublishFailureSkipsCommit(t *testing.T) {
	cons := &fakeConsumer{msgs: []kafka.Message{validNoteMessage(t)}}
	prod := &fakePublisher{failTopics: map[string]error{
		"dex_outbox": errors.New("broker unavailable"),
	}}
	repo := &fakeStore{inserted: true}
	mir := &fakeMirror{}

	runWriter(t, cons, prod, repo, mir)

	assert.Equal(t, []string{"dex_ledger_entries"}, prod.topics)
	assert.Empty(t, cons.committed)
}

func TestWriterMirrorFailureSkipsCommit(t *testing.T) {
	cons := &fakeConsumer{msgs: []kafka.Message{validNoteMessage(t)}}
	prod := &fakePublisher{}
	repo := &fakeStore{inserted: true}
	mir := &fakeMirror{err: errors.New("clickhouse down")}

	runWriter(t, cons, prod, repo, mir)

	assert.Equal(t, []string{"dex_ledger_entries", "dex_outbox"}, prod.topics)
	assert.Empty(t, cons.committed)
}

func TestWriterReplayStillPublishesSideChannels(t *testing.T) {
	// A redelivered note finds inserted=false; the side channels must still
	// run so a publish outage heals on retry.
	cons := &fakeConsumer{msgs: []kafka.Message{validNoteMessage(t)}}
	prod := &fakePublisher{}
	repo := &fakeStore{inserted: false}
	mir := &fakeMirror{}

	runWriter(t, cons, prod, repo, mir)

	assert.Equal(t, []string{"dex_ledger_entries", "dex_outbox"}, prod.topics)
	assert.Equal(t, []string{"note-1"}, mir.noteIDs)
	assert.Len(t, cons.committed, 1)
}

func TestWriterPersistFailureSkipsCommit(t *testing.T) {
	cons := &fakeConsumer{msgs: []kafka.Message{validNoteMessage(t)}}
	prod := &fakePublisher{}
	repo := &fakeStore{err: errors.New("connection refused")}
	mir := &fakeMirror{}

	runWriter(t, cons, prod, repo, mir)

	assert.Empty(t, prod.topics)
	assert.Empty(t, cons.committed)
}
