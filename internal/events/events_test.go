package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/settlement/pkg/settlement"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	mutex  sync.Mutex
	events []Event
	err    error
}

func (publisher *recordingPublisher) Publish(_ context.Context, event Event) error {
	publisher.mutex.Lock()
	defer publisher.mutex.Unlock()
	publisher.events = append(publisher.events, event)
	return publisher.err
}

type recordingChannel struct {
	key      string
	messages []amqp.Publishing
}

func (channel *recordingChannel) PublishWithContext(_ context.Context, _ string, key string, _ bool, _ bool, message amqp.Publishing) error {
	channel.key = key
	channel.messages = append(channel.messages, message)
	return nil
}

func (channel *recordingChannel) Close() error { return nil }

type recordingWriter struct {
	messages []kafka.Message
	err      error
}

func (writer *recordingWriter) WriteMessages(_ context.Context, messages ...kafka.Message) error {
	writer.messages = append(writer.messages, messages...)
	return writer.err
}

func (writer *recordingWriter) Close() error { return nil }

func fixedNow() time.Time {
	return time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)
}

func mustEntry(test *testing.T, paymentStatus settlement.PaymentStatus) settlement.OperationLog {
	test.Helper()
	merchantRef, err := settlement.NewMerchantRef("FLT-0f3c")
	if err != nil {
		test.Fatalf("merchant ref: %v", err)
	}
	reservationID, err := settlement.NewReservationID("20251001FLT0001")
	if err != nil {
		test.Fatalf("reservation id: %v", err)
	}
	return settlement.OperationLog{
		Operation:       "verify",
		ReservationType: settlement.ReservationTypeFlight,
		MerchantRef:     merchantRef,
		ReservationIDs:  []settlement.ReservationID{reservationID},
		Amount:          80000,
		PaymentStatus:   paymentStatus,
		Status:          "ok",
	}
}

func TestSinkPublishesSuccessfulOperations(test *testing.T) {
	test.Parallel()
	first := &recordingPublisher{}
	second := &recordingPublisher{err: errors.New("broker down")}
	sink, err := NewSink(zap.NewNop(), []Publisher{first, nil, second}, WithSinkClock(fixedNow))
	if err != nil {
		test.Fatalf("new sink: %v", err)
	}

	sink.LogOperation(context.Background(), mustEntry(test, settlement.PaymentStatusPaid))

	if len(first.events) != 1 || len(second.events) != 1 {
		test.Fatalf("expected fan-out to both publishers, got %d/%d", len(first.events), len(second.events))
	}
	event := first.events[0]
	if event.Type != "settlement.verify" || event.MerchantRef != "FLT-0f3c" || event.PaymentStatus != "PAID" {
		test.Fatalf("unexpected event %+v", event)
	}
	if len(event.ReservationIDs) != 1 || event.ReservationIDs[0] != "20251001FLT0001" || !event.OccurredAt.Equal(fixedNow()) {
		test.Fatalf("unexpected event details %+v", event)
	}
}

func TestSinkSkipsFailedOperations(test *testing.T) {
	test.Parallel()
	publisher := &recordingPublisher{}
	sink, err := NewSink(nil, []Publisher{publisher})
	if err != nil {
		test.Fatalf("new sink: %v", err)
	}
	failed := mustEntry(test, settlement.PaymentStatusPaid)
	failed.Status = "error"
	failed.Error = errors.New("boom")
	sink.LogOperation(context.Background(), failed)

	if len(publisher.events) != 0 {
		test.Fatalf("expected no events, got %d", len(publisher.events))
	}
}

func TestNewSinkRequiresPublisher(test *testing.T) {
	test.Parallel()
	if _, err := NewSink(nil, []Publisher{nil}); !errors.Is(err, ErrNoPublishers) {
		test.Fatalf("expected ErrNoPublishers, got %v", err)
	}
}

func TestAMQPPublisherSendsPersistentJSON(test *testing.T) {
	test.Parallel()
	channel := &recordingChannel{}
	publisher := &AMQPPublisher{channel: channel, queue: "settlement.events"}
	event := eventOf(mustEntry(test, settlement.PaymentStatusPaid), fixedNow())

	if err := publisher.Publish(context.Background(), event); err != nil {
		test.Fatalf("publish: %v", err)
	}
	if channel.key != "settlement.events" || len(channel.messages) != 1 {
		test.Fatalf("unexpected publish %q %d", channel.key, len(channel.messages))
	}
	message := channel.messages[0]
	if message.DeliveryMode != amqp.Persistent || message.ContentType != contentTypeJSON {
		test.Fatalf("unexpected message properties %+v", message)
	}
	var decoded Event
	if err := json.Unmarshal(message.Body, &decoded); err != nil {
		test.Fatalf("decode: %v", err)
	}
	if decoded.MerchantRef != event.MerchantRef || decoded.Amount != 80000 {
		test.Fatalf("unexpected body %+v", decoded)
	}
}

func TestKafkaPublisherKeysByMerchantRef(test *testing.T) {
	test.Parallel()
	writer := &recordingWriter{}
	publisher := &KafkaPublisher{writer: writer}
	event := eventOf(mustEntry(test, settlement.PaymentStatusRefunded), fixedNow())

	if err := publisher.Publish(context.Background(), event); err != nil {
		test.Fatalf("publish: %v", err)
	}
	if len(writer.messages) != 1 || string(writer.messages[0].Key) != "FLT-0f3c" {
		test.Fatalf("unexpected messages %+v", writer.messages)
	}

	writer.err = errors.New("leader not available")
	if err := publisher.Publish(context.Background(), event); !errors.Is(err, writer.err) {
		test.Fatalf("expected wrapped write error, got %v", err)
	}
}

func TestNewKafkaPublisherValidates(test *testing.T) {
	test.Parallel()
	if _, err := NewKafkaPublisher(nil, "topic"); err == nil {
		test.Fatalf("expected broker error")
	}
	if _, err := NewKafkaPublisher([]string{"localhost:9092"}, ""); err == nil {
		test.Fatalf("expected topic error")
	}
}
