// Package outbox relays events written to the transactional outbox table
// out to Kafka. Rows are committed in the same transaction as the order
// mutation, so the relay delivers every event at least once even across
// process crashes.
package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dinedesk/dinedesk/internal/models"
	"github.com/dinedesk/dinedesk/internal/repository"
	"github.com/dinedesk/dinedesk/pkg/logger"
)

// MessageHandler defines the interface for handling outbox messages
type MessageHandler interface {
	HandleMessage(ctx context.Context, message *models.OutboxMessage) error
}

// Processor polls the outbox table and dispatches pending messages to the
// handler registered for their event type. Messages that exhaust their
// retries are moved to the dead letter queue.
type Processor struct {
	outboxRepo      *repository.OutboxRepository
	dlqRepo         *repository.DeadLetterRepository
	handlers        map[string]MessageHandler
	pollingInterval time.Duration
	batchSize       int
	maxRetries      int
	logger          logger.Logger
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	running         bool
	mu              sync.Mutex
}

// ProcessorConfig holds the configuration for the Processor
type ProcessorConfig struct {
	PollingInterval time.Duration
	BatchSize       int
	MaxRetries      int
}

// NewProcessor creates a new Processor
func NewProcessor(
	outboxRepo *repository.OutboxRepository,
	dlqRepo *repository.DeadLetterRepository,
	config *ProcessorConfig,
	logger logger.Logger,
) *Processor {
	ctx, cancel := context.WithCancel(context.Background())

	return &Processor{
		outboxRepo:      outboxRepo,
		dlqRepo:         dlqRepo,
		handlers:        make(map[string]MessageHandler),
		pollingInterval: config.PollingInterval,
		batchSize:       config.BatchSize,
		maxRetries:      config.MaxRetries,
		logger:          logger,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// RegisterHandler registers a message handler for a specific event type.
// Not safe to call after Start.
func (p *Processor) RegisterHandler(eventType string, handler MessageHandler) {
	p.handlers[eventType] = handler
}

// Start starts the outbox processor
func (p *Processor) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	p.running = true
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		p.run()
	}()

	p.logger.Info("Outbox processor started",
		"pollingInterval", p.pollingInterval,
		"batchSize", p.batchSize)
}

// Stop stops the outbox processor and waits for the in-flight batch
func (p *Processor) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	p.cancel()
	p.wg.Wait()
	p.running = false

	p.logger.Info("Outbox processor stopped")
}

func (p *Processor) run() {
	ticker := time.NewTicker(p.pollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if err := p.processBatch(); err != nil {
				p.logger.Error("Failed to process outbox batch", "error", err)
			}
		}
	}
}

func (p *Processor) processBatch() error {
	ctx, cancel := context.WithTimeout(p.ctx, p.pollingInterval)
	defer cancel()

	messages, err := p.outboxRepo.GetPendingMessages(ctx, p.batchSize)

	if err != nil {
		return fmt.Errorf("failed to get pending messages: %w", err)
	}

	if len(messages) == 0 {
		return nil
	}

	p.logger.Debug("Processing batch of outbox messages", "count", len(messages))

	for _, msg := range messages {
		if err := p.processMessage(ctx, msg); err != nil {
			p.logger.Error("Failed to process outbox message",
				"error", err,
				"messageID", msg.ID,
				"aggregateID", msg.AggregateID,
				"eventType", msg.EventType)
			// Keep going; other messages may still deliver.
			continue
		}
	}

	return nil
}

func (p *Processor) processMessage(ctx context.Context, msg *models.OutboxMessage) error {
	if err := p.outboxRepo.MarkAsProcessing(ctx, msg.ID); err != nil {
		return fmt.Errorf("failed to mark message as processing: %w", err)
	}

	handler, exists := p.handlers[msg.EventType]

	if !exists {
		errorMsg := fmt.Sprintf("no handler registered for event type: %s", msg.EventType)
		return p.moveToDeadLetter(ctx, msg, errorMsg, "unroutable")
	}

	err := handler.HandleMessage(ctx, msg)

	if err == nil {
		if err := p.outboxRepo.MarkAsCompleted(ctx, msg.ID); err != nil {
			return fmt.Errorf("failed to mark message as completed: %w", err)
		}
		p.logger.Info("Relayed outbox message",
			"messageID", msg.ID,
			"aggregateID", msg.AggregateID,
			"eventType", msg.EventType)
		return nil
	}

	// MarkAsProcessing already counted this attempt.
	if msg.ProcessingAttempts+1 >= p.maxRetries {
		return p.moveToDeadLetter(ctx, msg, err.Error(), "max retries exceeded")
	}

	if markErr := p.outboxRepo.MarkAsPending(ctx, msg.ID, err.Error()); markErr != nil {
		p.logger.Error("Failed to requeue message", "error", markErr, "messageID", msg.ID)
	}

	p.logger.Warn("Message delivery failed, will retry",
		"error", err,
		"messageID", msg.ID,
		"attempt", msg.ProcessingAttempts+1)
	return err
}

// moveToDeadLetter parks an undeliverable message for operator review and
// marks the outbox row failed so polling stops picking it up.
func (p *Processor) moveToDeadLetter(ctx context.Context, msg *models.OutboxMessage, errorMsg, reason string) error {
	deadLetter := models.NewDeadLetterMessage(msg, errorMsg, reason)

	if err := p.dlqRepo.Create(ctx, deadLetter); err != nil {
		return fmt.Errorf("failed to create dead letter message: %w", err)
	}

	if err := p.outboxRepo.MarkAsFailed(ctx, msg.ID, errorMsg); err != nil {
		return fmt.Errorf("failed to mark message as failed: %w", err)
	}

	p.logger.Error("Moved outbox message to dead letter queue",
		"messageID", msg.ID,
		"aggregateID", msg.AggregateID,
		"eventType", msg.EventType,
		"reason", reason)
	return nil
}
