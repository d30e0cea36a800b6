package stream

import (
	"encoding/json"
	"time"
)

// Notification event shapes. Consumers are enumerable: the notification
// worker group reads each topic; nothing else subscribes in-process.

type TransactionCompletedEvent struct {
	TransactionID       string `json:"transaction_id"`
	SourceWalletID      string `json:"source_wallet_id"`
	DestinationWalletID string `json:"destination_wallet_id"`
	Amount              string `json:"amount"`
	Currency            string `json:"currency"`
	Type                string `json:"type"`
	CompletedAt         string `json:"completed_at"`
}

type BookingExpiredEvent struct {
	BookingID string `json:"booking_id"`
	ExpiredAt string `json:"expired_at"`
}

type PayoutReleasedEvent struct {
	PayoutID      string `json:"payout_id"`
	TransactionID string `json:"transaction_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	ReleasedAt    string `json:"released_at"`
}

// Notifier publishes domain notifications to the stream. It satisfies the
// ledger and worker notifier interfaces.
type Notifier struct {
	stream *KafkaStream
}

func NewNotifier(stream *KafkaStream) *Notifier {
	return &Notifier{stream: stream}
}

func (n *Notifier) TransactionCompleted(event *TransactionCompletedEvent) error {
	if event.CompletedAt == "" {
		event.CompletedAt = time.Now().UTC().Format(time.RFC3339)
	}
	return n.publish(TransactionCompletedTopic, event)
}

func (n *Notifier) BookingExpired(event *BookingExpiredEvent) error {
	if event.ExpiredAt == "" {
		event.ExpiredAt = time.Now().UTC().Format(time.RFC3339)
	}
	return n.publish(BookingExpiredTopic, event)
}

func (n *Notifier) PayoutReleased(event *PayoutReleasedEvent) error {
	if event.ReleasedAt == "" {
		event.ReleasedAt = time.Now().UTC().Format(time.RFC3339)
	}
	return n.publish(PayoutReleasedTopic, event)
}

func (n *Notifier) publish(topic string, event any) error {
	message, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return n.stream.ProduceMessage(topic, string(message))
}
