package consume

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/segmentio/kafka-go"

	"github.com/edgelake/sheetsink/internal/config"
	"github.com/edgelake/sheetsink/internal/ledger"
	"github.com/edgelake/sheetsink/internal/schema"
	"github.com/edgelake/sheetsink/internal/source"
	"github.com/edgelake/sheetsink/internal/stats"
	syncer "github.com/edgelake/sheetsink/internal/sync"
	"github.com/edgelake/sheetsink/internal/tabular"
	"github.com/edgelake/sheetsink/internal/testutil"
)

type fakeProcessor struct {
	deltaRes *syncer.Result
	deltaErr error
	itemsRes *syncer.Result
	itemsErr error

	deltaCalls int
	itemsCalls int
	gotIDs     []string
	gotCursor  string
	gotFinal   bool
}

func (f *fakeProcessor) FetchAndStoreDelta(ctx context.Context) (*syncer.Result, error) {
	f.deltaCalls++
	return f.deltaRes, f.deltaErr
}

func (f *fakeProcessor) FetchAndStoreItems(ctx context.Context, ids []string, cursor string, finalize bool) (*syncer.Result, error) {
	f.itemsCalls++
	f.gotIDs = ids
	f.gotCursor = cursor
	f.gotFinal = finalize
	return f.itemsRes, f.itemsErr
}

type fakeProber struct{ err error }

func (f *fakeProber) Probe(ctx context.Context) error { return f.err }

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

// fakeDB records Exec calls; the poison store only uses Exec.
type fakeDB struct {
	execs []string
	err   error
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	return pgconn.CommandTag{}, f.err
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func testConsumer(t *testing.T, proc Processor, prober Prober, db ledger.DBTX, w MessageWriter) (*Consumer, *stats.Collector) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Site.SiteID = "contoso.example,guid1,guid2"
	cfg.Site.ListID = "11111111-2222-3333-4444-555555555555"
	cfg.Site.ClientState = "secret-state"
	cfg.ApplyDefaults()

	st := stats.NewCollector(testutil.Logger())
	t.Cleanup(st.Close)

	c := &Consumer{
		cfg:    cfg,
		proc:   proc,
		prober: prober,
		db:     db,
		poison: ledger.NewPoisonStore(cfg.Warehouse.Schema),
		writer: w,
		stats:  st,
		logger: testutil.Logger(),
	}
	return c, st
}

func envelopeMessage(t *testing.T) kafka.Message {
	t.Helper()
	body := `{"value":[{"subscriptionId":"sub","resource":"sites/contoso.example,guid1,guid2/lists/11111111-2222-3333-4444-555555555555","changeType":"updated","clientState":"secret-state"}]}`
	return kafka.Message{Topic: "sheet-events", Partition: 1, Offset: 42, Value: []byte(body)}
}

func TestHandleEnvelopeDispatchesDelta(t *testing.T) {
	proc := &fakeProcessor{deltaRes: &syncer.Result{Succeeded: 3, Skipped: 1}}
	c, st := testConsumer(t, proc, &fakeProber{}, &fakeDB{}, &fakeWriter{})

	if err := c.handle(context.Background(), envelopeMessage(t)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if proc.deltaCalls != 1 {
		t.Errorf("delta calls = %d, want 1", proc.deltaCalls)
	}
	snap := st.Snapshot()
	if snap.ItemsSucceeded != 3 || snap.ItemsSkipped != 1 {
		t.Errorf("snapshot items = %+v", snap)
	}
}

func TestHandleHandshakeAcks(t *testing.T) {
	proc := &fakeProcessor{}
	c, _ := testConsumer(t, proc, &fakeProber{}, &fakeDB{}, &fakeWriter{})

	m := kafka.Message{Value: []byte(`{"value":[]}`)}
	if err := c.handle(context.Background(), m); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if proc.deltaCalls != 0 {
		t.Errorf("handshake should not dispatch, delta calls = %d", proc.deltaCalls)
	}
}

func TestHandleIrrelevantEnvelopeAcks(t *testing.T) {
	proc := &fakeProcessor{}
	c, _ := testConsumer(t, proc, &fakeProber{}, &fakeDB{}, &fakeWriter{})

	body := `{"value":[{"resource":"sites/other.example,g1,g2/lists/ffffffff-0000-0000-0000-000000000000","changeType":"updated","clientState":"secret-state"}]}`
	if err := c.handle(context.Background(), kafka.Message{Value: []byte(body)}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if proc.deltaCalls != 0 {
		t.Errorf("irrelevant envelope should not dispatch, delta calls = %d", proc.deltaCalls)
	}
}

func TestHandleUnknownPayloadDrops(t *testing.T) {
	proc := &fakeProcessor{}
	db := &fakeDB{}
	c, _ := testConsumer(t, proc, &fakeProber{}, db, &fakeWriter{})

	if err := c.handle(context.Background(), kafka.Message{Value: []byte(`{"hello":"world"}`)}); err != nil {
		t.Fatalf("unknown payload should be dropped with ack, got %v", err)
	}
	if proc.deltaCalls+proc.itemsCalls != 0 {
		t.Error("unknown payload should not dispatch")
	}
	if len(db.execs) != 0 {
		t.Error("unknown payload should not be archived")
	}
}

func TestHandleContinuation(t *testing.T) {
	proc := &fakeProcessor{itemsRes: &syncer.Result{Succeeded: 2}}
	c, _ := testConsumer(t, proc, &fakeProber{}, &fakeDB{}, &fakeWriter{})

	m := kafka.Message{Value: []byte(`{"ItemIds":["201","202"],"DeltaLink":"cursor-next"}`)}
	if err := c.handle(context.Background(), m); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if proc.itemsCalls != 1 {
		t.Fatalf("items calls = %d, want 1", proc.itemsCalls)
	}
	if len(proc.gotIDs) != 2 || proc.gotCursor != "cursor-next" || !proc.gotFinal {
		t.Errorf("dispatch = ids %v cursor %q finalize %v", proc.gotIDs, proc.gotCursor, proc.gotFinal)
	}
}

func TestHandleReenqueuesContinuation(t *testing.T) {
	cont := &syncer.Continuation{ItemIDs: []string{"300", "301"}, DeltaLink: "cursor-pending"}
	proc := &fakeProcessor{deltaRes: &syncer.Result{Succeeded: 5, Continuation: cont}}
	w := &fakeWriter{}
	c, st := testConsumer(t, proc, &fakeProber{}, &fakeDB{}, w)

	if err := c.handle(context.Background(), envelopeMessage(t)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("enqueued messages = %d, want 1", len(w.msgs))
	}
	var got syncer.Continuation
	if err := json.Unmarshal(w.msgs[0].Value, &got); err != nil {
		t.Fatalf("unmarshal continuation: %v", err)
	}
	if len(got.ItemIDs) != 2 || got.DeltaLink != "cursor-pending" {
		t.Errorf("continuation = %+v", got)
	}
	if st.Snapshot().Continuations != 1 {
		t.Errorf("continuations counter = %d", st.Snapshot().Continuations)
	}
}

func TestHandleArchivesUnrecoverable(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason string
	}{
		{
			name:   "schema mismatch",
			err:    &schema.MismatchError{Sheet: "受注一覧", Reason: "sheet is not registered"},
			reason: "schema_mismatch",
		},
		{
			name:   "decode failure",
			err:    &tabular.DecodeError{Format: "xlsb", Err: errors.New("binary workbooks are not supported")},
			reason: "decode_error",
		},
		{
			name:   "source unavailable",
			err:    &source.UnavailableError{Err: errors.New("status 503")},
			reason: "source_unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &fakeProcessor{deltaErr: tt.err}
			db := &fakeDB{}
			c, st := testConsumer(t, proc, &fakeProber{}, db, &fakeWriter{})

			if err := c.handle(context.Background(), envelopeMessage(t)); err != nil {
				t.Fatalf("unrecoverable failure should ack after archiving, got %v", err)
			}
			if len(db.execs) != 1 {
				t.Fatalf("archive execs = %d, want 1", len(db.execs))
			}
			if !strings.Contains(db.execs[0], "poison_messages") {
				t.Errorf("archive went to the wrong table: %s", db.execs[0])
			}
			if st.Snapshot().MessagesArchived != 1 {
				t.Errorf("archived counter = %d", st.Snapshot().MessagesArchived)
			}
		})
	}
}

func TestHandleTransientLeavesUncommitted(t *testing.T) {
	cause := context.DeadlineExceeded
	proc := &fakeProcessor{deltaErr: cause}
	db := &fakeDB{}
	c, _ := testConsumer(t, proc, &fakeProber{}, db, &fakeWriter{})

	err := c.handle(context.Background(), envelopeMessage(t))
	if !errors.Is(err, cause) {
		t.Fatalf("transient failure should propagate, got %v", err)
	}
	if len(db.execs) != 0 {
		t.Error("transient failure must not be archived")
	}
}

func TestHandleProbeFailureArchives(t *testing.T) {
	prober := &fakeProber{err: &source.UnavailableError{Err: errors.New("connection refused")}}
	proc := &fakeProcessor{}
	db := &fakeDB{}
	c, _ := testConsumer(t, proc, prober, db, &fakeWriter{})

	if err := c.handle(context.Background(), envelopeMessage(t)); err != nil {
		t.Fatalf("probe failure should ack after archiving, got %v", err)
	}
	if proc.deltaCalls != 0 {
		t.Error("probe failure must not dispatch")
	}
	if len(db.execs) != 1 {
		t.Errorf("archive execs = %d, want 1", len(db.execs))
	}
}

func TestHandleArchiveFailureKeepsMessage(t *testing.T) {
	proc := &fakeProcessor{deltaErr: &schema.MismatchError{Sheet: "s", Reason: "r"}}
	db := &fakeDB{err: errors.New("warehouse down")}
	c, _ := testConsumer(t, proc, &fakeProber{}, db, &fakeWriter{})

	if err := c.handle(context.Background(), envelopeMessage(t)); err == nil {
		t.Fatal("failed archive must leave the message uncommitted")
	}
}
