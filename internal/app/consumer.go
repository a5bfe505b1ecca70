package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"presencegate/internal/events"
	"presencegate/internal/messaging/kafka/consumer"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// RunConsumer reads presence alerts and forwards them to the notifier.
func RunConsumer() error {
	logger := zap.L().Named("app.consumer")

	kafkaBroker := os.Getenv("KAFKA_BROKER")
	if kafkaBroker == "" {
		return fmt.Errorf("KAFKA_BROKER is required")
	}

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        []string{kafkaBroker},
		Topic:          events.PresenceAlertTopic,
		GroupID:        "presencegate-alerts",
		CommitInterval: 0,
		StartOffset:    kafkago.FirstOffset,
	})
	defer reader.Close()

	notifier := &consumer.LogNotifier{Logger: logger}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go consumer.ConsumePresenceAlerts(ctx, reader, notifier, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("consumer shutting down")
	cancel()

	return nil
}
