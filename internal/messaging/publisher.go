package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// PanelTaskPublisher defines the interface for publishing panel generation tasks.
type PanelTaskPublisher interface {
	PublishPanelTask(ctx context.Context, payload PanelTaskPayload) error
}

// rabbitMQPublisher implements PanelTaskPublisher for RabbitMQ.
type rabbitMQPublisher struct {
	channel   *amqp.Channel
	queueName string
}

// NewRabbitMQPanelTaskPublisher creates a new instance of PanelTaskPublisher.
// Паблишер объявляет очередь сам, чтобы не зависеть от порядка запуска
// сервисов. Параметры очереди (DLX) должны совпадать с консьюмером.
func NewRabbitMQPanelTaskPublisher(conn *amqp.Connection, queueName string) (PanelTaskPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("panel task publisher: не удалось открыть канал: %w", err)
	}
	args := amqp.Table{
		"x-dead-letter-exchange":    PanelTaskDLX,
		"x-dead-letter-routing-key": PanelTaskRoutingDLQ,
	}
	_, err = ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		args,
	)
	if err != nil {
		log.Printf("PanelTaskPublisher ERROR: Не удалось объявить очередь '%s': %v", queueName, err)
		ch.Close()
		return nil, fmt.Errorf("panel task publisher: не удалось объявить очередь '%s': %w", queueName, err)
	}
	log.Printf("PanelTaskPublisher: Очередь '%s' успешно объявлена/найдена.", queueName)
	// Канал не закрываем здесь, он должен управляться извне или при остановке приложения
	return &rabbitMQPublisher{channel: ch, queueName: queueName}, nil
}

// PublishPanelTask publishes a single panel generation task.
func (p *rabbitMQPublisher) PublishPanelTask(ctx context.Context, payload PanelTaskPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[TaskID: %s][UserID: %s] Ошибка сериализации PanelTaskPayload: %v", payload.TaskID, payload.UserID, err)
		return fmt.Errorf("ошибка сериализации задачи генерации панели для TaskID %s: %w", payload.TaskID, err)
	}

	if err := p.publishMessage(ctx, body); err != nil {
		log.Printf("[TaskID: %s][UserID: %s] Ошибка публикации PanelTask: %v", payload.TaskID, payload.UserID, err)
		return fmt.Errorf("ошибка публикации задачи генерации панели для TaskID %s: %w", payload.TaskID, err)
	}
	return nil
}

// publishMessage is a helper method for publishing a message.
func (p *rabbitMQPublisher) publishMessage(ctx context.Context, body []byte) error {
	if p.channel == nil {
		log.Println("Ошибка публикации: канал RabbitMQ не инициализирован (nil)")
		return errors.New("канал RabbitMQ не инициализирован")
	}
	// Устанавливаем таймаут на публикацию
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var err error
	// Попытка публикации с retry до 3 раз
	for attempt := 1; attempt <= 3; attempt++ {
		err = p.channel.PublishWithContext(ctx,
			"",          // exchange (используем default)
			p.queueName, // routing key (имя очереди)
			false,       // mandatory
			false,       // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Body:         body,
				Timestamp:    time.Now(),
				AppId:        "comic-server",
			},
		)
		if err == nil {
			break
		}
		log.Printf("Ошибка публикации (attempt %d) в очередь '%s': %v", attempt, p.queueName, err)
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	if err != nil {
		return fmt.Errorf("ошибка публикации в очередь %s после retries: %w", p.queueName, err)
	}
	log.Printf("Сообщение успешно опубликовано в очередь '%s'", p.queueName)
	return nil
}
