package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"tg-importance-bot/internal/domain"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv   string `envconfig:"APP_ENV" default:"dev"`
	LogLevel string `envconfig:"LOG_LEVEL"`
	Port     int    `envconfig:"PORT" default:"8080"`

	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	Telegram struct {
		Token      string  `envconfig:"TG_BOT_TOKEN"`
		WebhookURL string  `envconfig:"TG_WEBHOOK_URL"`
		APIID      int     `envconfig:"TG_API_ID"`
		APIHash    string  `envconfig:"TG_API_HASH"`
		SendRPS    float64 `envconfig:"TG_SEND_RPS" default:"20"`
		SendBurst  int     `envconfig:"TG_SEND_BURST" default:"5"`
		// WebhookPath — путь, на который Telegram присылает обновления бота.
		WebhookPath    string        `envconfig:"TG_WEBHOOK_PATH" default:"/bot/webhook"`
		InitDataMaxAge time.Duration `envconfig:"TG_INIT_DATA_MAX_AGE" default:"24h"`
	} `envconfig:""`

	MTProto struct {
		SessionName string `envconfig:"MTPROTO_SESSION_NAME" default:"listener"`
	} `envconfig:""`

	Storage string `envconfig:"STORAGE" default:"postgres"`
	PGDSN   string `envconfig:"PG_DSN"`
	PGConns int32  `envconfig:"PG_MAX_CONNS" default:"5"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Kafka struct {
		Brokers []string `envconfig:"KAFKA_BROKERS"`
		Topic   string   `envconfig:"KAFKA_TOPIC" default:"inbound-messages"`
		GroupID string   `envconfig:"KAFKA_GROUP_ID" default:"tg-importance-collector"`
	} `envconfig:""`

	Queues struct {
		Messages string `envconfig:"MESSAGE_QUEUE_KEY" default:"score_jobs"`
		Prefetch int    `envconfig:"MESSAGE_QUEUE_PREFETCH" default:"8"`
	} `envconfig:""`

	Oracle struct {
		APIKey  string        `envconfig:"ORACLE_API_KEY"`
		BaseURL string        `envconfig:"ORACLE_BASE_URL" default:"https://api.openai.com/v1"`
		Model   string        `envconfig:"ORACLE_MODEL" default:"gpt-4o-mini"`
		Timeout time.Duration `envconfig:"ORACLE_TIMEOUT" default:"15s"`
		Retries int           `envconfig:"ORACLE_RETRIES" default:"2"`
		// CacheTTL ограничивает повторные запросы к оракулу для одинаковых текстов.
		CacheTTL time.Duration `envconfig:"ORACLE_CACHE_TTL" default:"6h"`
	} `envconfig:""`

	Pipeline struct {
		Workers             int           `envconfig:"PIPELINE_WORKERS" default:"4"`
		HeuristicFullLength int           `envconfig:"HEURISTIC_FULL_LENGTH" default:"500"`
		PublishTimeout      time.Duration `envconfig:"PUBLISH_TIMEOUT" default:"10s"`
		PublishRetries      int           `envconfig:"PUBLISH_RETRIES" default:"3"`
		PublishBackoffMax   time.Duration `envconfig:"PUBLISH_BACKOFF_MAX" default:"5s"`
		MaxPublishAttempts  int           `envconfig:"MAX_PUBLISH_ATTEMPTS" default:"5"`
		NotifyTimeout       time.Duration `envconfig:"NOTIFY_TIMEOUT" default:"5s"`
		RetryInterval       time.Duration `envconfig:"PUBLISH_RETRY_INTERVAL" default:"1m"`
		LockTTL             time.Duration `envconfig:"POST_LOCK_TTL" default:"2m"`
		DedupeTTL           time.Duration `envconfig:"DEDUPE_TTL" default:"24h"`
		DedupeSize          int           `envconfig:"DEDUPE_SIZE" default:"50000"`
		// ReloadInterval задаёт, как часто процессы перечитывают критерии, роли и подписки из хранилища.
		ReloadInterval time.Duration `envconfig:"RELOAD_INTERVAL" default:"30s"`
		MaxJobAttempts int           `envconfig:"MAX_JOB_ATTEMPTS" default:"5"`
	} `envconfig:""`

	SubscriptionLimit int `envconfig:"SUBSCRIPTION_LIMIT" default:"50"`

	AdminIDs     []int64 `envconfig:"ADMIN_IDS"`
	CriteriaFile string  `envconfig:"CRITERIA_FILE"`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("некорректный конфиг: %v", err)
	}
	return cfg
}

// lockSafetyMargin покрывает запись попытки и результата публикации под блокировкой.
const lockSafetyMargin = 5 * time.Second

// PublishLockBudget возвращает худшее время, на которое публикация удерживает блокировку поста:
// все попытки по PUBLISH_TIMEOUT и паузы между ними с учётом разброса backoff (до 1.5 от максимума).
func (c AppConfig) PublishLockBudget() time.Duration {
	attempts := c.Pipeline.PublishRetries
	if attempts < 1 {
		attempts = 1
	}
	pauses := time.Duration(attempts-1) * c.Pipeline.PublishBackoffMax * 3 / 2
	return time.Duration(attempts)*c.Pipeline.PublishTimeout + pauses + lockSafetyMargin
}

// Validate проверяет согласованность настроек.
func (c AppConfig) Validate() error {
	if c.Pipeline.LockTTL <= 0 {
		return fmt.Errorf("POST_LOCK_TTL must be positive, got %s", c.Pipeline.LockTTL)
	}
	if budget := c.PublishLockBudget(); c.Pipeline.LockTTL < budget {
		return fmt.Errorf("POST_LOCK_TTL %s is shorter than worst-case publish time %s (PUBLISH_TIMEOUT*PUBLISH_RETRIES plus backoff)",
			c.Pipeline.LockTTL, budget)
	}
	return nil
}

// LoadCriteriaFile читает начальные критерии из YAML-файла.
// Поля, отсутствующие в файле, берутся из критериев по умолчанию.
func LoadCriteriaFile(path string) (domain.Criteria, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Criteria{}, fmt.Errorf("read criteria file: %w", err)
	}
	return ParseCriteria(data)
}

// ParseCriteria разбирает YAML с критериями.
func ParseCriteria(data []byte) (domain.Criteria, error) {
	c := domain.DefaultCriteria()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return domain.Criteria{}, fmt.Errorf("parse criteria yaml: %w", err)
	}
	c.Normalize()
	if err := c.Validate(); err != nil {
		return domain.Criteria{}, err
	}
	return c, nil
}
