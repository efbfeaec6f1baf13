package queue

import (
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// 重连最多尝试次数, 退避间隔按次数线性增长
const maxReconnectAttempts = 10

// RabbitMQConfig RabbitMQ 配置
type RabbitMQConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	VHost     string
	Heartbeat time.Duration // 心跳间隔，默认 10 秒
}

// RabbitMQ RabbitMQ 客户端。
// 外部日志处理器向队列投递变更信号, 本服务只消费。
type RabbitMQ struct {
	config    *RabbitMQConfig
	logger    *logrus.Logger
	queueName string
	reconnect chan bool

	mu            sync.RWMutex
	closed        bool
	conn          *amqp.Connection
	channel       *amqp.Channel
	connNotify    chan *amqp.Error
	channelNotify chan *amqp.Error
}

// NewRabbitMQ 创建 RabbitMQ 客户端并建立首次连接
func NewRabbitMQ(config *RabbitMQConfig, queueName string, logger *logrus.Logger) (*RabbitMQ, error) {
	if config.Heartbeat == 0 {
		config.Heartbeat = 10 * time.Second
	}

	mq := &RabbitMQ{
		config:    config,
		logger:    logger,
		queueName: queueName,
		reconnect: make(chan bool, 1),
	}

	if err := mq.connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	return mq, nil
}

func (mq *RabbitMQ) connect() error {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	url := fmt.Sprintf("amqp://%s:%s@%s:%d/%s",
		mq.config.User, mq.config.Password,
		mq.config.Host, mq.config.Port, mq.config.VHost)

	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: mq.config.Heartbeat,
		Locale:    "en_US",
	})
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	// 变更信号轻量且可合并, 一次预取一条足够
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	if _, err := ch.QueueDeclare(mq.queueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare queue %s: %w", mq.queueName, err)
	}

	mq.conn = conn
	mq.channel = ch
	mq.connNotify = conn.NotifyClose(make(chan *amqp.Error, 1))
	mq.channelNotify = ch.NotifyClose(make(chan *amqp.Error, 1))

	mq.logger.WithFields(logrus.Fields{
		"host":      mq.config.Host,
		"port":      mq.config.Port,
		"queue":     mq.queueName,
		"heartbeat": mq.config.Heartbeat,
	}).Info("Connected to RabbitMQ")

	return nil
}

// StartConnectionWatcher 监听连接与信道的关闭事件, 掉线时发出重连信号。
// 持续运行直到客户端被 Close。
func (mq *RabbitMQ) StartConnectionWatcher() {
	go func() {
		for {
			mq.mu.RLock()
			if mq.closed {
				mq.mu.RUnlock()
				mq.logger.Info("Connection watcher stopped")
				return
			}
			connNotify, channelNotify := mq.connNotify, mq.channelNotify
			mq.mu.RUnlock()

			var amqpErr *amqp.Error
			var source string
			select {
			case amqpErr = <-connNotify:
				source = "connection"
			case amqpErr = <-channelNotify:
				source = "channel"
			}

			if mq.isClosed() {
				mq.logger.Info("Connection watcher stopped")
				return
			}
			if amqpErr != nil {
				mq.logger.WithError(amqpErr).WithField("source", source).Error("RabbitMQ link lost")
			} else {
				mq.logger.WithField("source", source).Warn("RabbitMQ link closed")
			}
			mq.triggerReconnect()
		}
	}()
}

func (mq *RabbitMQ) isClosed() bool {
	mq.mu.RLock()
	defer mq.mu.RUnlock()
	return mq.closed
}

// triggerReconnect 非阻塞投递重连信号, 已有待处理信号时合并
func (mq *RabbitMQ) triggerReconnect() {
	select {
	case mq.reconnect <- true:
	default:
	}
}

// Reconnect 丢弃旧连接并重试建连
func (mq *RabbitMQ) Reconnect() error {
	mq.closeLink()

	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		mq.logger.Infof("Reconnecting to RabbitMQ (attempt %d/%d)", attempt, maxReconnectAttempts)

		if err := mq.connect(); err != nil {
			mq.logger.WithError(err).Error("Failed to reconnect")
			time.Sleep(time.Duration(attempt) * time.Second)
			continue
		}
		return nil
	}

	return fmt.Errorf("failed to reconnect after %d attempts", maxReconnectAttempts)
}

// closeLink 关闭现有连接, 不置 closed 标志
func (mq *RabbitMQ) closeLink() {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.channel != nil {
		mq.channel.Close()
		mq.channel = nil
	}
	if mq.conn != nil {
		mq.conn.Close()
		mq.conn = nil
	}
}

// Consume 打开手动确认的消费通道
func (mq *RabbitMQ) Consume() (<-chan amqp.Delivery, error) {
	mq.mu.RLock()
	ch := mq.channel
	mq.mu.RUnlock()

	if ch == nil {
		return nil, fmt.Errorf("channel is not open")
	}

	msgs, err := ch.Consume(mq.queueName, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume: %w", err)
	}
	return msgs, nil
}

// Close 关闭客户端, 之后不再重连
func (mq *RabbitMQ) Close() error {
	mq.mu.Lock()
	mq.closed = true
	mq.mu.Unlock()

	mq.closeLink()
	mq.logger.Info("RabbitMQ connection closed")
	return nil
}

// ReconnectC 重连信号通道, 由消费循环监听
func (mq *RabbitMQ) ReconnectC() <-chan bool {
	return mq.reconnect
}

// IsConnected 检查连接状态
func (mq *RabbitMQ) IsConnected() bool {
	mq.mu.RLock()
	defer mq.mu.RUnlock()
	return mq.conn != nil && !mq.conn.IsClosed()
}
