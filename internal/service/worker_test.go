package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dispatchlab/notify-gateway/internal/domain"
	"github.com/dispatchlab/notify-gateway/internal/queue"
	"github.com/dispatchlab/notify-gateway/internal/sender"
)

type fakeReader struct {
	records map[string]*domain.NotificationRecord
	err     error
}

func (f *fakeReader) GetByID(ctx context.Context, id string) (*domain.NotificationRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	if r, ok := f.records[id]; ok {
		copied := *r
		return &copied, nil
	}
	return nil, domain.ErrNotFound
}

type fakeResolver struct {
	content  string
	err      error
	lastName string
}

func (f *fakeResolver) Render(ctx context.Context, name, locale string, data map[string]string) (string, error) {
	f.lastName = name
	if f.err != nil {
		return "", f.err
	}
	return f.content, nil
}

type stubSender struct {
	channel    domain.Channel
	providerID string
	err        error
	sent       []string
}

func (s *stubSender) Channel() domain.Channel { return s.channel }

func (s *stubSender) Send(ctx context.Context, recipient, content, locale string, metadata sender.Metadata) (string, error) {
	s.sent = append(s.sent, content)
	if s.err != nil {
		return "", s.err
	}
	return s.providerID, nil
}

type fakeRegistry struct {
	senders map[domain.Channel]sender.Sender
}

func (f *fakeRegistry) Resolve(ch domain.Channel) (sender.Sender, bool) {
	s, ok := f.senders[ch]
	return s, ok
}

type statusUpdate struct {
	id         string
	status     domain.Status
	message    string
	providerID string
}

type fakeState struct {
	updates  []statusUpdate
	attempts []statusUpdate
	err      error
}

func (f *fakeState) UpdateStatus(ctx context.Context, id string, status domain.Status, message, providerMessageID string) error {
	if f.err != nil {
		return f.err
	}
	f.updates = append(f.updates, statusUpdate{id: id, status: status, message: message, providerID: providerMessageID})
	return nil
}

func (f *fakeState) AppendAttempt(ctx context.Context, id string, status domain.Status, message, providerMessageID string) error {
	if f.err != nil {
		return f.err
	}
	f.attempts = append(f.attempts, statusUpdate{id: id, status: status, message: message, providerID: providerMessageID})
	return nil
}

type coldEntry struct {
	n     domain.Notification
	delay time.Duration
}

type fakeCold struct {
	entries []coldEntry
	err     error
}

func (f *fakeCold) Schedule(ctx context.Context, n *domain.Notification, delay time.Duration) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, coldEntry{n: *n, delay: delay})
	return nil
}

type workerFixture struct {
	worker   *Worker
	reader   *fakeReader
	resolver *fakeResolver
	sender   *stubSender
	state    *fakeState
	cold     *fakeCold
}

type noopConsumer struct{}

func (noopConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	return nil
}

func (noopConsumer) Close() error { return nil }

func newWorkerFixture(t *testing.T, record *domain.NotificationRecord) *workerFixture {
	t.Helper()

	reader := &fakeReader{records: map[string]*domain.NotificationRecord{}}
	if record != nil {
		reader.records[record.ID] = record
	}
	resolver := &fakeResolver{content: "rendered"}
	snd := &stubSender{channel: domain.ChannelEmail, providerID: "prov-1"}
	registry := &fakeRegistry{senders: map[domain.Channel]sender.Sender{domain.ChannelEmail: snd}}
	state := &fakeState{}
	cold := &fakeCold{}

	w, err := NewWorker(noopConsumer{}, reader, resolver, registry, state, cold,
		nil, nil, 1, 5*time.Minute)
	if err != nil {
		t.Fatalf("NewWorker() error = %v", err)
	}

	return &workerFixture{worker: w, reader: reader, resolver: resolver, sender: snd, state: state, cold: cold}
}

func queuedRecord(id string) *domain.NotificationRecord {
	return &domain.NotificationRecord{
		ID:           id,
		Recipient:    "a@b.co",
		Channel:      domain.ChannelEmail,
		TemplateName: "welcome",
		Status:       domain.StatusQueued,
		Payload:      domain.Payload{Locale: "en", Data: map[string]string{"name": "Ada"}},
	}
}

func TestProcessMessageDeliversAndMarksSent(t *testing.T) {
	t.Parallel()

	fx := newWorkerFixture(t, queuedRecord("n-1"))

	err := fx.worker.processMessage(context.Background(),
		queue.NotificationMessage{NotificationID: "n-1", Channel: domain.ChannelEmail})
	if err != nil {
		t.Fatalf("processMessage() error = %v", err)
	}

	if fx.resolver.lastName != "email/welcome" {
		t.Fatalf("resolver name = %q, want channel-scoped template name", fx.resolver.lastName)
	}
	if len(fx.sender.sent) != 1 || fx.sender.sent[0] != "rendered" {
		t.Fatalf("sender received %v", fx.sender.sent)
	}

	if len(fx.state.updates) != 1 {
		t.Fatalf("state updates = %d, want 1", len(fx.state.updates))
	}
	update := fx.state.updates[0]
	if update.status != domain.StatusSent || update.providerID != "prov-1" {
		t.Fatalf("update = %+v, want SENT with provider id", update)
	}
	if len(fx.cold.entries) != 0 {
		t.Fatal("successful delivery must not touch the cold queue")
	}
}

func TestProcessMessageRawMessageSkipsResolver(t *testing.T) {
	t.Parallel()

	record := &domain.NotificationRecord{
		ID:        "n-2",
		Recipient: "a@b.co",
		Channel:   domain.ChannelEmail,
		Status:    domain.StatusQueued,
		Payload:   domain.Payload{Locale: "en", Message: "raw body"},
	}
	fx := newWorkerFixture(t, record)

	err := fx.worker.processMessage(context.Background(),
		queue.NotificationMessage{NotificationID: "n-2", Channel: domain.ChannelEmail})
	if err != nil {
		t.Fatalf("processMessage() error = %v", err)
	}

	if fx.resolver.lastName != "" {
		t.Fatal("raw message must not hit the template resolver")
	}
	if len(fx.sender.sent) != 1 || fx.sender.sent[0] != "raw body" {
		t.Fatalf("sender received %v, want the raw message", fx.sender.sent)
	}
}

func TestProcessMessageUnknownNotification(t *testing.T) {
	t.Parallel()

	fx := newWorkerFixture(t, nil)

	err := fx.worker.processMessage(context.Background(),
		queue.NotificationMessage{NotificationID: "ghost", Channel: domain.ChannelEmail})
	if err != nil {
		t.Fatalf("processMessage() error = %v, want ack for unknown record", err)
	}
	if len(fx.state.updates) != 0 {
		t.Fatal("unknown record must not be updated")
	}
}

func TestProcessMessageSkipsFinalizedRecord(t *testing.T) {
	t.Parallel()

	record := queuedRecord("n-3")
	record.Status = domain.StatusSent
	fx := newWorkerFixture(t, record)

	err := fx.worker.processMessage(context.Background(),
		queue.NotificationMessage{NotificationID: "n-3", Channel: domain.ChannelEmail})
	if err != nil {
		t.Fatalf("processMessage() error = %v", err)
	}
	if len(fx.sender.sent) != 0 || len(fx.state.updates) != 0 {
		t.Fatal("finalized record must not be re-sent")
	}
}

func TestProcessMessageTemplateFailureIsTerminal(t *testing.T) {
	t.Parallel()

	fx := newWorkerFixture(t, queuedRecord("n-4"))
	fx.resolver.err = domain.ErrTemplateNotFound

	err := fx.worker.processMessage(context.Background(),
		queue.NotificationMessage{NotificationID: "n-4", Channel: domain.ChannelEmail})
	if err != nil {
		t.Fatalf("processMessage() error = %v", err)
	}

	if len(fx.state.updates) != 1 || fx.state.updates[0].status != domain.StatusFailed {
		t.Fatalf("updates = %+v, want one FAILED", fx.state.updates)
	}
	if len(fx.cold.entries) != 0 {
		t.Fatal("template failures must not be cold-retried")
	}
	if len(fx.sender.sent) != 0 {
		t.Fatal("template failure must not reach the sender")
	}
}

func TestProcessMessageMissingSenderIsTerminal(t *testing.T) {
	t.Parallel()

	record := queuedRecord("n-5")
	record.Channel = domain.ChannelSMS
	record.TemplateName = ""
	record.Payload.Message = "hi"
	fx := newWorkerFixture(t, record)

	err := fx.worker.processMessage(context.Background(),
		queue.NotificationMessage{NotificationID: "n-5", Channel: domain.ChannelSMS})
	if err != nil {
		t.Fatalf("processMessage() error = %v", err)
	}

	if len(fx.state.updates) != 1 || fx.state.updates[0].status != domain.StatusFailed {
		t.Fatalf("updates = %+v, want one FAILED", fx.state.updates)
	}
	if len(fx.cold.entries) != 0 {
		t.Fatal("missing sender must not be cold-retried")
	}
}

func TestProcessMessageTransientFailureGoesCold(t *testing.T) {
	t.Parallel()

	fx := newWorkerFixture(t, queuedRecord("n-6"))
	fx.sender.err = &sender.SendError{Kind: sender.KindSendFailed, Message: "provider down"}

	err := fx.worker.processMessage(context.Background(),
		queue.NotificationMessage{NotificationID: "n-6", Channel: domain.ChannelEmail})
	if err != nil {
		t.Fatalf("processMessage() error = %v", err)
	}

	if len(fx.state.updates) != 1 || fx.state.updates[0].status != domain.StatusFailed {
		t.Fatalf("updates = %+v, want one FAILED", fx.state.updates)
	}
	if len(fx.cold.entries) != 1 {
		t.Fatalf("cold entries = %d, want 1", len(fx.cold.entries))
	}
	entry := fx.cold.entries[0]
	if entry.n.ID != "n-6" || entry.delay != 5*time.Minute {
		t.Fatalf("cold entry = %+v", entry)
	}
}

func TestProcessMessagePermanentFailureStaysOut(t *testing.T) {
	t.Parallel()

	fx := newWorkerFixture(t, queuedRecord("n-7"))
	fx.sender.err = &sender.SendError{Kind: sender.KindInvalidRecipient, Message: "bad address"}

	err := fx.worker.processMessage(context.Background(),
		queue.NotificationMessage{NotificationID: "n-7", Channel: domain.ChannelEmail})
	if err != nil {
		t.Fatalf("processMessage() error = %v", err)
	}

	if len(fx.state.updates) != 1 || fx.state.updates[0].status != domain.StatusFailed {
		t.Fatalf("updates = %+v, want one FAILED", fx.state.updates)
	}
	if len(fx.cold.entries) != 0 {
		t.Fatal("permanent failures must not be cold-retried")
	}
}

func TestProcessMessageStoreFailureNacks(t *testing.T) {
	t.Parallel()

	fx := newWorkerFixture(t, queuedRecord("n-8"))
	fx.reader.err = errors.New("connection refused")

	err := fx.worker.processMessage(context.Background(),
		queue.NotificationMessage{NotificationID: "n-8", Channel: domain.ChannelEmail})
	if err == nil {
		t.Fatal("store failure must propagate so the message is redelivered")
	}
}
