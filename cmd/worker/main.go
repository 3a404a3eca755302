package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"comic-server/internal/config"
	"comic-server/internal/database"
	"comic-server/internal/logger"
	"comic-server/internal/messaging"
	"comic-server/internal/service"
	"comic-server/internal/storage"
	"comic-server/internal/worker"
)

func main() {
	log.Println("Запуск воркера генерации панелей...")

	_ = godotenv.Load()

	// Загружаем конфигурацию
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	zlog, err := logger.New(logger.Config{
		Level:    cfg.LogLevel,
		Encoding: "json",
	})
	if err != nil {
		log.Fatalf("Ошибка инициализации логгера: %v", err)
	}
	defer zlog.Sync()
	zap.ReplaceGlobals(zlog)

	// --- Метрики Prometheus (Pushgateway) ---
	if err := worker.InitMetricsPusher(cfg.PushgatewayURL); err != nil {
		log.Printf("ПРЕДУПРЕЖДЕНИЕ: Pushgateway недоступен: %v. Метрики не будут отправляться.", err)
	} else {
		worker.StartMetricsPusher(cfg.MetricsPushInterval)
		defer worker.CleanupMetrics()
	}

	// Метрики AI-клиентов регистрируются в глобальном реестре и отдаются
	// через собственный /metrics эндпоинт воркера
	startMetricsServer(cfg.MetricsPort)

	// Инициализация AI клиентов
	log.Println("Инициализация клиента описания сцен...")
	describer, err := service.NewSceneDescriber(cfg)
	if err != nil {
		log.Fatalf("Ошибка инициализации клиента описания сцен: %v", err)
	}
	compositor := service.NewImageCompositor(cfg, zlog)

	// Подключаемся к PostgreSQL
	log.Println("Подключение к PostgreSQL...")
	dbPool, err := setupDatabase(cfg)
	if err != nil {
		log.Fatalf("Не удалось подключиться к базе данных: %v", err)
	}
	defer dbPool.Close()
	log.Println("Успешное подключение к PostgreSQL")

	// Подключаемся к Redis
	log.Println("Подключение к Redis...")
	redisClient, err := setupRedis(cfg)
	if err != nil {
		log.Fatalf("Не удалось подключиться к Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Успешное подключение к Redis")

	// Подключаемся к RabbitMQ с логикой повторных попыток
	conn, err := connectRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Не удалось подключиться к RabbitMQ: %v", err)
	}
	defer conn.Close()
	log.Println("Успешное подключение к RabbitMQ")

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("Не удалось открыть канал: %v", err)
	}
	defer ch.Close()
	log.Println("Канал успешно открыт")

	// --- Настройка Dead Letter Queue (DLQ) ---
	log.Printf("Настройка Dead Letter Exchange ('%s') и Queue ('%s')...", messaging.PanelTaskDLX, messaging.PanelTaskDLQ)

	err = ch.ExchangeDeclare(
		messaging.PanelTaskDLX, // name
		"direct",               // type
		true,                   // durable
		false,                  // auto-deleted
		false,                  // internal
		false,                  // no-wait
		nil,                    // arguments
	)
	if err != nil {
		log.Fatalf("Не удалось объявить DLX: %v", err)
	}

	_, err = ch.QueueDeclare(
		messaging.PanelTaskDLQ, // name
		true,                   // durable
		false,                  // delete when unused
		false,                  // exclusive
		false,                  // no-wait
		nil,                    // arguments
	)
	if err != nil {
		log.Fatalf("Не удалось объявить Dead Letter Queue '%s': %v", messaging.PanelTaskDLQ, err)
	}

	err = ch.QueueBind(
		messaging.PanelTaskDLQ,
		messaging.PanelTaskRoutingDLQ,
		messaging.PanelTaskDLX,
		false,
		nil,
	)
	if err != nil {
		log.Fatalf("Не удалось связать DLQ '%s' с DLX '%s': %v", messaging.PanelTaskDLQ, messaging.PanelTaskDLX, err)
	}

	// Основная очередь задач с маршрутизацией отказов в DLX
	_, err = ch.QueueDeclare(
		cfg.PanelTaskQueue, // name
		true,               // durable
		false,              // delete when unused
		false,              // exclusive
		false,              // no-wait
		amqp.Table{
			"x-dead-letter-exchange":    messaging.PanelTaskDLX,
			"x-dead-letter-routing-key": messaging.PanelTaskRoutingDLQ,
		},
	)
	if err != nil {
		log.Fatalf("Не удалось объявить очередь '%s': %v", cfg.PanelTaskQueue, err)
	}
	log.Printf("Очередь '%s' успешно объявлена.", cfg.PanelTaskQueue)

	// Устанавливаем QoS
	err = ch.Qos(1, 0, false)
	if err != nil {
		log.Fatalf("Не удалось установить QoS: %v", err)
	}
	log.Println("QoS (prefetch count=1) установлен")

	// Инициализация зависимостей воркера
	log.Println("Инициализация репозиториев и трекера...")
	panelRepo := database.NewPgPanelRepository(dbPool, zlog)
	profileRepo := database.NewPgProfileRepository(dbPool, zlog)
	fileStore, err := storage.NewLocalFileStore(cfg.MediaDir, zlog)
	if err != nil {
		log.Fatalf("Не удалось инициализировать файловое хранилище: %v", err)
	}
	tracker := service.NewRedisSubmissionTracker(redisClient, cfg.SubmissionTTL, zlog)

	taskHandler := worker.NewTaskHandler(cfg, describer, compositor, panelRepo, profileRepo, tracker, fileStore)

	// Начинаем потреблять сообщения из очереди
	msgs, err := ch.Consume(
		cfg.PanelTaskQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("Не удалось зарегистрировать консьюмера: %v", err)
	}

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)

	// Контекст обработки: отменяется при получении сигнала завершения
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})

	log.Println(" [*] Ожидание задач генерации панелей. Для выхода нажмите CTRL+C")

	go func() {
		defer close(done)
		for msg := range msgs {
			var payload messaging.PanelTaskPayload
			err := json.Unmarshal(msg.Body, &payload)
			if err != nil {
				log.Printf("[TaskID: %s] Ошибка десериализации JSON: %v. Отклоняем сообщение (nack, no requeue).", "N/A", err)
				worker.MetricsIncrementTaskFailed("deserialization")
				msg.Nack(false, false)
				continue
			}

			err = taskHandler.Handle(ctx, payload)
			if err != nil {
				// Requeue=false: терминальная неудача уходит в DLQ,
				// повторная доставка 'плохой' задачи бессмысленна.
				log.Printf("[TaskID: %s] Ошибка обработки задачи: %v. Отклоняем сообщение (nack, no requeue).", payload.TaskID, err)
				msg.Nack(false, false)
			} else {
				log.Printf("[TaskID: %s] Задача успешно обработана. Подтверждаем сообщение (ack).", payload.TaskID)
				msg.Ack(false)
			}
		}
		log.Println("Канал сообщений закрыт, горутина обработки завершается.")
	}()

	select {
	case <-stopChan:
		log.Println("Получен сигнал завершения. Останавливаем консьюмера...")
		// Закрытие канала завершает доставку сообщений, горутина обработки
		// дорабатывает текущее сообщение и выходит.
		ch.Close()
		cancel()
		<-done
	case <-done:
	}

	log.Println("Воркер генерации панелей остановлен.")
}

// newMetricsMux собирает маршруты служебного HTTP-сервера воркера.
func newMetricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "ok"}`))
	})
	return mux
}

// startMetricsServer запускает HTTP-сервер для эндпоинта /metrics
func startMetricsServer(metricsPort string) {
	mux := newMetricsMux()
	go func() {
		log.Printf("Запуск HTTP-сервера для метрик Prometheus и health на :%s...", metricsPort)
		if err := http.ListenAndServe(":"+metricsPort, mux); err != nil {
			log.Fatalf("Ошибка запуска HTTP-сервера для метрик: %v", err)
		}
	}()
}

// setupDatabase инициализирует и возвращает пул соединений с БД
func setupDatabase(cfg *config.Config) (*pgxpool.Pool, error) {
	var dbPool *pgxpool.Pool
	var err error
	maxRetries := 50
	retryDelay := 3 * time.Second

	poolConfig, err := pgxpool.ParseConfig(cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("не удалось разобрать конфигурацию postgres: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.DBMaxConns)
	poolConfig.MaxConnIdleTime = cfg.DBIdleTimeout

	for i := 0; i < maxRetries; i++ {
		attempt := i + 1
		connectCtx, connectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		dbPool, err = pgxpool.NewWithConfig(connectCtx, poolConfig)
		connectCancel()

		if err == nil {
			pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
			err = dbPool.Ping(pingCtx)
			pingCancel()
			if err == nil {
				log.Printf("Успешное подключение к PostgreSQL (попытка %d)", attempt)
				return dbPool, nil
			}
			dbPool.Close()
		}

		log.Printf("Попытка подключения к PostgreSQL %d/%d не удалась: %v. Повтор через %v...", attempt, maxRetries, err, retryDelay)
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	return nil, fmt.Errorf("не удалось подключиться к postgres после %d попыток: %w", maxRetries, err)
}

// setupRedis инициализирует клиент Redis с повторными попытками
func setupRedis(cfg *config.Config) (*redis.Client, error) {
	var client *redis.Client
	var err error
	maxRetries := 50
	retryDelay := 3 * time.Second

	for i := 0; i < maxRetries; i++ {
		attempt := i + 1
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err = client.Ping(pingCtx).Result()
		pingCancel()

		if err == nil {
			log.Printf("Успешное подключение к Redis (попытка %d)", attempt)
			return client, nil
		}

		client.Close()
		log.Printf("Попытка подключения к Redis %d/%d не удалась: %v. Повтор через %v...", attempt, maxRetries, err, retryDelay)
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	return nil, fmt.Errorf("не удалось подключиться к redis после %d попыток: %w", maxRetries, err)
}

// connectRabbitMQ пытается подключиться к RabbitMQ с несколькими попытками
func connectRabbitMQ(url string) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	maxRetries := 50
	retryDelay := 5 * time.Second

	for i := 0; i < maxRetries; i++ {
		attempt := i + 1
		conn, err = amqp.Dial(url)
		if err == nil {
			log.Printf("Успешное подключение к RabbitMQ (попытка %d)", attempt)
			return conn, nil
		}
		log.Printf("Попытка подключения к RabbitMQ %d/%d не удалась: %v. Повтор через %v...", attempt, maxRetries, err, retryDelay)
		time.Sleep(retryDelay)
	}
	return nil, fmt.Errorf("не удалось подключиться к RabbitMQ после %d попыток: %w", maxRetries, err)
}
