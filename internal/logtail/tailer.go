package logtail

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// LineHandler 增量行处理函数
type LineHandler func(ctx context.Context, line string) error

// Tailer 日志目录追踪器。
// 监听目录里的访问日志, 记录每个文件的读取偏移, 只消费新追加的行;
// 文件被轮转(变小或被替换)时偏移归零从头重读。
type Tailer struct {
	watcher  *fsnotify.Watcher
	watchDir string
	pattern  string // 文件匹配模式 (如 "*.log")
	handler  LineHandler
	logger   *logrus.Logger
	debounce time.Duration
	mu       sync.Mutex // 串行化 consume, 保护 offsets
	offsets  map[string]int64
	stopChan chan struct{}
}

// NewTailer 创建日志追踪器
func NewTailer(watchDir, pattern string, handler LineHandler, logger *logrus.Logger) (*Tailer, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := os.MkdirAll(watchDir, 0755); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to create watch directory: %w", err)
	}

	if err := watcher.Add(watchDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to add watch directory: %w", err)
	}

	t := &Tailer{
		watcher:  watcher,
		watchDir: watchDir,
		pattern:  pattern,
		handler:  handler,
		logger:   logger,
		debounce: 200 * time.Millisecond,
		offsets:  make(map[string]int64),
		stopChan: make(chan struct{}),
	}

	logger.WithFields(logrus.Fields{
		"watch_dir": watchDir,
		"pattern":   pattern,
	}).Info("Log tailer created")

	return t, nil
}

// Start 启动追踪。先把现存日志从头消费一遍补齐历史, 再进入增量事件循环。
func (t *Tailer) Start(ctx context.Context) error {
	t.logger.Info("Starting log tailer")

	if err := t.scanExistingFiles(ctx); err != nil {
		t.logger.WithError(err).Warn("Failed to scan existing log files")
	}

	go t.eventLoop(ctx)

	t.logger.Info("Log tailer started successfully")
	return nil
}

// scanExistingFiles 消费启动前已存在的日志内容
func (t *Tailer) scanExistingFiles(ctx context.Context) error {
	entries, err := os.ReadDir(t.watchDir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !t.matchPattern(entry.Name()) {
			continue
		}

		filePath := filepath.Join(t.watchDir, entry.Name())
		t.logger.WithField("file", entry.Name()).Info("Found existing log file")
		if err := t.consume(ctx, filePath); err != nil {
			t.logger.WithError(err).WithField("file", filePath).Error("Failed to consume log file")
		}
	}

	return nil
}

// eventLoop 事件循环
func (t *Tailer) eventLoop(ctx context.Context) {
	debounceTimer := make(map[string]*time.Timer)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Log tailer context done")
			return
		case <-t.stopChan:
			t.logger.Info("Log tailer stopped")
			return
		case event, ok := <-t.watcher.Events:
			if !ok {
				t.logger.Warn("Watcher events channel closed")
				return
			}

			if event.Op&fsnotify.Create != fsnotify.Create &&
				event.Op&fsnotify.Write != fsnotify.Write {
				continue
			}

			fileName := filepath.Base(event.Name)
			if !t.matchPattern(fileName) {
				continue
			}

			// 防抖: 高频写入合并为一次消费
			if timer, exists := debounceTimer[event.Name]; exists {
				timer.Stop()
			}
			debounceTimer[event.Name] = time.AfterFunc(t.debounce, func() {
				delete(debounceTimer, event.Name)
				if err := t.consume(ctx, event.Name); err != nil {
					t.logger.WithError(err).WithField("file", event.Name).Error("Failed to consume log file")
				}
			})

		case err, ok := <-t.watcher.Errors:
			if !ok {
				t.logger.Warn("Watcher errors channel closed")
				return
			}
			t.logger.WithError(err).Error("Watcher error")
		}
	}
}

// consume 读取文件中偏移之后的新行, 逐行交给处理函数
func (t *Tailer) consume(ctx context.Context, filePath string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			delete(t.offsets, filePath)
			return nil
		}
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	offset := t.offsets[filePath]
	if info.Size() < offset {
		// 文件被轮转或截断, 从头重读
		t.logger.WithFields(logrus.Fields{
			"file":       filePath,
			"old_offset": offset,
			"size":       info.Size(),
		}).Info("Log file truncated, resetting offset")
		offset = 0
	}

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek log file: %w", err)
	}

	reader := bufio.NewReaderSize(file, 512*1024)
	consumed := offset
	lines := 0

	for {
		select {
		case <-ctx.Done():
			t.offsets[filePath] = consumed
			return ctx.Err()
		default:
		}

		line, err := reader.ReadString('\n')
		if err == io.EOF {
			// 不带换行的尾部是未写完的行, 留到下次
			break
		}
		if err != nil {
			t.offsets[filePath] = consumed
			return fmt.Errorf("failed to read log line: %w", err)
		}

		consumed += int64(len(line))
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			continue
		}
		if err := t.handler(ctx, trimmed); err != nil {
			t.logger.WithError(err).Debug("Line handler returned error")
		}
		lines++
	}

	t.offsets[filePath] = consumed
	if lines > 0 {
		t.logger.WithFields(logrus.Fields{
			"file":  filepath.Base(filePath),
			"lines": lines,
		}).Debug("Consumed new log lines")
	}
	return nil
}

// matchPattern 检查文件名是否匹配模式
func (t *Tailer) matchPattern(fileName string) bool {
	if t.pattern == "*" {
		return true
	}
	if strings.HasPrefix(t.pattern, "*.") {
		ext := strings.TrimPrefix(t.pattern, "*")
		return strings.HasSuffix(strings.ToLower(fileName), strings.ToLower(ext))
	}
	return fileName == t.pattern
}

// Stop 停止追踪
func (t *Tailer) Stop() error {
	t.logger.Info("Stopping log tailer")
	close(t.stopChan)

	if t.watcher != nil {
		return t.watcher.Close()
	}
	return nil
}
