package queue

import (
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// ChangeSignal 外部日志处理器投递的数据变更信号
type ChangeSignal struct {
	Kind      string `json:"kind"`      // records / mappings
	Source    string `json:"source"`    // 触发变更的数据源标识
	Timestamp int64  `json:"timestamp"` // Unix 毫秒
}

// SignalHandler 变更信号处理函数
type SignalHandler func(signal *ChangeSignal) error

// Consumer 变更信号消费者。
// 信号处理是幂等的（只触发数据集重载), 处理失败直接丢弃而非重入队。
type Consumer struct {
	mq       *RabbitMQ
	handler  SignalHandler
	logger   *logrus.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewConsumer 创建消费者
func NewConsumer(mq *RabbitMQ, handler SignalHandler, logger *logrus.Logger) *Consumer {
	return &Consumer{
		mq:       mq,
		handler:  handler,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start 启动消费者
func (c *Consumer) Start() error {
	msgs, err := c.mq.Consume()
	if err != nil {
		return err
	}

	c.wg.Add(1)
	go c.loop(msgs)

	// 处理重连
	go c.handleReconnect()

	c.logger.Info("Change signal consumer started")
	return nil
}

// loop 消费循环
func (c *Consumer) loop(msgs <-chan amqp.Delivery) {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopChan:
			c.logger.Debug("Consumer loop stopping")
			return

		case msg, ok := <-msgs:
			if !ok {
				c.logger.Warn("Message channel closed, waiting for reconnect")
				return
			}
			c.processMessage(msg)
		}
	}
}

// processMessage 处理单条消息
func (c *Consumer) processMessage(msg amqp.Delivery) {
	var signal ChangeSignal
	if err := json.Unmarshal(msg.Body, &signal); err != nil {
		c.logger.WithError(err).Error("Failed to unmarshal change signal")
		// 信号格式错误, 丢弃不重入队
		msg.Nack(false, false)
		return
	}

	c.logger.WithFields(logrus.Fields{
		"kind":   signal.Kind,
		"source": signal.Source,
	}).Debug("Change signal received")

	if err := c.handler(&signal); err != nil {
		c.logger.WithError(err).WithField("kind", signal.Kind).Error("Failed to handle change signal")
		msg.Nack(false, false)
		return
	}

	msg.Ack(false)
}

// handleReconnect 处理重连信号
func (c *Consumer) handleReconnect() {
	for {
		select {
		case <-c.stopChan:
			return

		case <-c.mq.ReconnectC():
			c.logger.Warn("RabbitMQ connection lost, attempting to reconnect...")

			if err := c.mq.Reconnect(); err != nil {
				c.logger.WithError(err).Error("Failed to reconnect to RabbitMQ")
				continue
			}

			// 重新开始消费
			msgs, err := c.mq.Consume()
			if err != nil {
				c.logger.WithError(err).Error("Failed to resume consuming after reconnect")
				continue
			}

			c.wg.Add(1)
			go c.loop(msgs)
			c.logger.Info("Consumer resumed after reconnect")
		}
	}
}

// Stop 停止消费者
func (c *Consumer) Stop() {
	close(c.stopChan)

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Change signal consumer stopped")
	case <-time.After(10 * time.Second):
		c.logger.Warn("Consumer stop timed out")
	}
}
