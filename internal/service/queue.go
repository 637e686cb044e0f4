package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/batchpix/training-archive/internal/models"
)

// QueueService runs the archive pipeline asynchronously: jobs are
// published to RabbitMQ, workers consume them, and terminal envelopes are
// written to the job store for polling.
type QueueService struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	logger     *zap.Logger
	queueName  string
	downloader *Downloader
	cache      *ResultCache
}

func NewQueueService(rabbitmqURL string, downloader *Downloader, cache *ResultCache, logger *zap.Logger) (*QueueService, error) {
	conn, err := amqp.Dial(rabbitmqURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	queueName := "archive_jobs"

	_, err = channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	return &QueueService{
		conn:       conn,
		channel:    channel,
		logger:     logger,
		queueName:  queueName,
		downloader: downloader,
		cache:      cache,
	}, nil
}

// PublishJob records the job as pending and enqueues it.
func (q *QueueService) PublishJob(ctx context.Context, job *models.ArchiveJob) error {
	if err := q.cache.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to record job: %w", err)
	}

	jobBytes, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	err = q.channel.Publish(
		"",          // exchange
		q.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         jobBytes,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}

	q.logger.Info("Archive job published", zap.String("job_id", job.ID))
	return nil
}

// StartWorker starts consuming archive jobs from the queue.
func (q *QueueService) StartWorker(ctx context.Context, workerID int) error {
	msgs, err := q.channel.Consume(
		q.queueName,                        // queue
		fmt.Sprintf("worker-%d", workerID), // consumer
		false,                              // auto-ack
		false,                              // exclusive
		false,                              // no-local
		false,                              // no-wait
		nil,                                // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	q.logger.Info("Archive worker started", zap.Int("worker_id", workerID))

	go func() {
		for {
			select {
			case <-ctx.Done():
				q.logger.Info("Archive worker stopping", zap.Int("worker_id", workerID))
				return
			case msg, ok := <-msgs:
				if !ok {
					q.logger.Warn("Message channel closed", zap.Int("worker_id", workerID))
					return
				}
				q.processMessage(ctx, msg, workerID)
			}
		}
	}()

	return nil
}

func (q *QueueService) processMessage(ctx context.Context, msg amqp.Delivery, workerID int) {
	var job models.ArchiveJob
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		q.logger.Error("Failed to unmarshal job",
			zap.Error(err),
			zap.Int("worker_id", workerID))
		msg.Nack(false, false) // don't requeue malformed messages
		return
	}

	q.logger.Info("Processing archive job",
		zap.String("job_id", job.ID),
		zap.Int("worker_id", workerID))

	job.Status = models.StatusProcessing
	if err := q.cache.SaveJob(ctx, &job); err != nil {
		q.logger.Error("Failed to store job status",
			zap.String("job_id", job.ID),
			zap.Error(err))
	}

	resp := q.runJob(ctx, &job)
	result := &models.ArchiveResult{
		StatusCode:  resp.StatusCode,
		ProcessedAt: time.Now(),
	}
	if resp.StatusCode == http.StatusOK {
		job.Status = models.StatusCompleted
		if zipData, ok := resp.Body.(string); ok {
			result.ZipData = zipData
			result.ByteSize = int64(len(zipData))
		}
		q.logger.Info("Archive job completed", zap.String("job_id", job.ID))
	} else {
		job.Status = models.StatusFailed
		result.ErrorDetail = errorMessage(resp)
		job.Error = result.ErrorDetail
		q.logger.Error("Archive job failed",
			zap.String("job_id", job.ID),
			zap.String("error", job.Error))
	}
	job.Result = result

	if err := q.cache.SaveJob(ctx, &job); err != nil {
		q.logger.Error("Failed to store job result",
			zap.String("job_id", job.ID),
			zap.Error(err))
	}

	if err := msg.Ack(false); err != nil {
		q.logger.Error("Failed to ack message",
			zap.String("job_id", job.ID),
			zap.Error(err))
	}
}

// runJob executes the same pipeline the synchronous endpoint uses.
func (q *QueueService) runJob(ctx context.Context, job *models.ArchiveJob) models.HTTPResponse {
	store, err := NewStoreClient(ctx, job.Request.ImageStore, q.logger)
	if err != nil {
		return models.NewErrorResponse(
			models.NewClassifiedError(http.StatusInternalServerError,
				"Unable to download image from store (auth)"))
	}
	return q.downloader.CreateArchive(ctx, store, job.Request.Locations)
}

// GetQueueStats returns queue statistics.
func (q *QueueService) GetQueueStats() (map[string]interface{}, error) {
	queueInfo, err := q.channel.QueueInspect(q.queueName)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect queue: %w", err)
	}

	return map[string]interface{}{
		"messages":  queueInfo.Messages,
		"consumers": queueInfo.Consumers,
		"name":      queueInfo.Name,
	}, nil
}

// Close closes the queue connection.
func (q *QueueService) Close() error {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		q.conn.Close()
	}
	return nil
}

// HealthCheck checks if RabbitMQ is available.
func (q *QueueService) HealthCheck() string {
	if q == nil {
		return "not configured"
	}
	if q.conn == nil || q.conn.IsClosed() {
		return "unhealthy: connection closed"
	}
	if q.channel == nil {
		return "unhealthy: channel not available"
	}
	return "healthy"
}
