package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	MessagesScored = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "messages_scored_total",
		Help: "Количество оценённых сообщений по происхождению оценки",
	}, []string{"origin"})
	ScoreValue = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "importance_score",
		Help:    "Распределение итоговых оценок важности",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})
	OracleFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oracle_fallback_total",
		Help: "Переходы на эвристику при недоступности оракула",
	}, []string{"reason"})
	CriteriaMisconfig = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "criteria_source_conflicts_total",
		Help: "Срабатывания источника, указанного в обоих списках",
	})
	Dispositions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispositions_total",
		Help: "Решения фильтра по сообщениям",
	}, []string{"action"})
	SubscriberAlerts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "subscriber_alerts_total",
		Help: "Персональные уведомления подписчикам",
	})
	PendingPosts = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "moderation_pending_posts",
		Help: "Постов в очереди модерации при последнем просмотре",
	})
	ModerationDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moderation_decisions_total",
		Help: "Решения администраторов по постам",
	}, []string{"verdict", "result"})
	PublishAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "publish_attempts_total",
		Help: "Попытки публикации постов в канал",
	}, []string{"status"})
	StuckPosts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "posts_stuck_total",
		Help: "Посты, исчерпавшие попытки публикации",
	})
	Notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Отправленные уведомления по типу события",
	}, []string{"event", "status"})
	JobsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "score_jobs_total",
		Help: "Обработанные задачи оценки",
	}, []string{"outcome"})
	InboundDuplicates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inbound_duplicates_total",
		Help: "Повторно полученные входящие сообщения",
	})
	PipelineSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_process_seconds",
		Help:    "Время обработки сообщения конвейером",
		Buckets: prometheus.DefBuckets,
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 45, 60, 90, 120},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	LLMGenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_generation_duration_seconds",
		Help:    "Длительность генерации ответа LLM",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	LLMTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_tokens_total",
		Help: "Количество токенов, использованных LLM",
	}, []string{"model", "type"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		MessagesScored,
		ScoreValue,
		OracleFallbacks,
		CriteriaMisconfig,
		Dispositions,
		SubscriberAlerts,
		PendingPosts,
		ModerationDecisions,
		PublishAttempts,
		StuckPosts,
		Notifications,
		JobsProcessed,
		InboundDuplicates,
		PipelineSeconds,
		NetworkRequestDuration,
		NetworkRequestTotal,
		LLMGenerationDuration,
		LLMTokensTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveLLMGeneration записывает длительность и токены генерации LLM.
func ObserveLLMGeneration(model string, duration time.Duration, promptTokens, completionTokens, totalTokens int) {
	if model == "" {
		model = "unknown"
	}
	LLMGenerationDuration.WithLabelValues(model).Observe(duration.Seconds())
	if promptTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
	if totalTokens <= 0 {
		totalTokens = promptTokens + completionTokens
	}
	if totalTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "total").Add(float64(totalTokens))
	}
}

// ObserveScore учитывает итоговую оценку сообщения.
func ObserveScore(origin string, final float64) {
	MessagesScored.WithLabelValues(origin).Inc()
	ScoreValue.Observe(final)
}

// ObserveNotification учитывает результат отправки уведомления.
func ObserveNotification(event string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	Notifications.WithLabelValues(event, status).Inc()
}
