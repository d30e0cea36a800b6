// Completed-transaction events are consumed off the stream and turned into
// email alerts. Delivery is fire-and-forget: a failed send is logged and the
// ledger record is untouched.
package worker

import (
	"encoding/json"
	"log"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/kelani/settled/internal/stream"
)

func (wk *Worker) NotificationWorker() {
	consumer, err := wk.KafkaStream.CreateConsumer(&stream.StreamConsumer{
		GroupId: transactionAlertGroupID,
		Topic:   stream.TransactionCompletedTopic,
	})

	if err != nil {
		log.Fatalf("Error creating consumer: %v", err)
	}
	defer consumer.Close()

	for {
		select {
		case <-wk.Ctx.Done():
			log.Println("NotificationWorker received cancellation signal, shutting down...")
			return
		default:
			event := consumer.Poll(100)
			switch e := event.(type) {
			case *kafka.Message:
				var completed stream.TransactionCompletedEvent
				if err := json.Unmarshal(e.Value, &completed); err != nil {
					log.Printf("Error decoding transaction completed event: %v", err)
					continue
				}

				wk.sendTransactionAlert(&completed)
			case kafka.Error:
				log.Printf("Error: %v\n", e)
			case *kafka.AssignedPartitions:
				consumer.Assign(e.Partitions)
			case *kafka.RevokedPartitions:
				consumer.Unassign()
			}
		}
	}
}

func (wk *Worker) sendTransactionAlert(event *stream.TransactionCompletedEvent) {
	if wk.NotificationsEmail == "" {
		return
	}

	wk.Helper.BackgroundTask(nil, func() error {
		emailData := wk.Helper.NewEmailData()
		emailData["TransactionID"] = event.TransactionID
		emailData["Amount"] = event.Amount
		emailData["Currency"] = event.Currency
		emailData["Type"] = event.Type
		emailData["SourceWalletID"] = event.SourceWalletID
		emailData["DestinationWalletID"] = event.DestinationWalletID
		emailData["CompletedAt"] = event.CompletedAt

		err := wk.Mailer.Send(wk.NotificationsEmail, emailData, "transaction-alert.tmpl")
		if err != nil {
			log.Printf("Error sending transaction alert: %v", err)
			return err
		}

		return nil
	})
}
