package stream

import (
	"log"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Topics carrying fire-and-forget notifications out of the ledger core.
// Delivery failure here must never roll back a committed ledger mutation.
const (
	TransactionCompletedTopic = "ledger.transaction.completed"
	BookingExpiredTopic       = "booking.expired"
	PayoutReleasedTopic       = "payout.released"
)

type KafkaStream struct {
	kafkaServers string
	producer     *kafka.Producer
}

func New(kafkaServers string) (*KafkaStream, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{"bootstrap.servers": kafkaServers})
	if err != nil {
		return nil, err
	}

	return &KafkaStream{
		kafkaServers: kafkaServers,
		producer:     producer,
	}, nil
}

func (st *KafkaStream) ProduceMessage(topic, message string) error {
	err := st.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Value:          []byte(message),
	}, nil)

	if err != nil {
		log.Printf("Failed to produce message: %v", err)
		return err
	}

	return nil
}

func (st *KafkaStream) Close() {
	st.producer.Flush(int((5 * time.Second).Milliseconds()))
	st.producer.Close()
}

type StreamConsumer struct {
	GroupId string
	Topic   string
}

func (st *KafkaStream) CreateConsumer(consumerStruct *StreamConsumer) (*kafka.Consumer, error) {
	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": st.kafkaServers,
		"group.id":          consumerStruct.GroupId,
		"auto.offset.reset": "earliest",
	})
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(consumerStruct.Topic, nil); err != nil {
		return nil, err
	}

	return consumer, nil
}
