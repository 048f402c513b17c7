package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/teleguard/internal/lib/sl"
)

// ConsumerMessage запускает потребителя очереди. Не больше concurrency сообщений
// обрабатываются одновременно; ошибка обработчика возвращает сообщение в очередь.
// Возвращённый канал закрывается, когда потребитель остановился и все начатые
// обработчики подтвердили свои сообщения, после этого канал можно закрывать.
func ConsumerMessage(ctx context.Context, ch *amqp.Channel, queueName string, concurrency int, log *slog.Logger, handler func([]byte) error) (<-chan struct{}, error) {
	const op = "rabbitmq.ConsumerMessage"
	delivery, err := ch.Consume(
		queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return consume(ctx, delivery, queueName, concurrency, log, handler), nil
}

func consume(ctx context.Context, deliveries <-chan amqp.Delivery, queueName string, concurrency int, log *slog.Logger, handler func([]byte) error) <-chan struct{} {
	if concurrency < 1 {
		concurrency = 1
	}
	done := make(chan struct{})
	sem := make(chan struct{}, concurrency)
	go func() {
		var wg sync.WaitGroup
		defer close(done)
		defer wg.Wait()
		for {
			select {
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				select {
				case sem <- struct{}{}:
				case <-ctx.Done():
					// не дождались свободного обработчика, отдаём сообщение обратно
					if err := d.Nack(false, true); err != nil {
						log.Error("failed to nack message", sl.Err(err))
					}
					return
				}
				wg.Add(1)
				go func(delivery amqp.Delivery) {
					defer wg.Done()
					defer func() { <-sem }()
					handle(delivery, queueName, log, handler)
				}(d)
			case <-ctx.Done():
				return
			}
		}
	}()
	return done
}

func handle(d amqp.Delivery, queueName string, log *slog.Logger, handler func([]byte) error) {
	if err := handler(d.Body); err != nil {
		log.Warn("handler failed, requeueing message", slog.String("queue", queueName), sl.Err(err))
		if nackErr := d.Nack(false, true); nackErr != nil {
			log.Error("failed to nack message", sl.Err(nackErr))
		}
		return
	}
	if ackErr := d.Ack(false); ackErr != nil {
		log.Error("failed to ack message", sl.Err(ackErr))
	}
}
