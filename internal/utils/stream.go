package utils

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
)

// JSONLReader 流式 JSONL 读取器。
// depot 映射字典这类社区维护的数据集通常以 JSONL 分发, 逐行读取避免整文件进内存。
type JSONLReader struct {
	file    *os.File
	scanner *bufio.Scanner
	line    int
}

// NewJSONLReader 打开 JSONL 文件
func NewJSONLReader(path string) (*JSONLReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(file)
	// 单行上限 10MB, 初始 1MB
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024)

	return &JSONLReader{file: file, scanner: scanner}, nil
}

// Next 读取下一条记录, 空行跳过, 文件读完返回 io.EOF
func (r *JSONLReader) Next(v interface{}) error {
	for r.scanner.Scan() {
		r.line++
		raw := r.scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		return json.Unmarshal(raw, v)
	}
	if err := r.scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

// Line 当前行号 (含跳过的空行)
func (r *JSONLReader) Line() int {
	return r.line
}

func (r *JSONLReader) Close() error {
	return r.file.Close()
}

// JSONLWriter 流式 JSONL 写入器, 追加模式
type JSONLWriter struct {
	file *os.File
	buf  *bufio.Writer
}

// NewJSONLWriter 创建 JSONL 写入器
func NewJSONLWriter(path string) (*JSONLWriter, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	return &JSONLWriter{
		file: file,
		buf:  bufio.NewWriterSize(file, 64*1024),
	}, nil
}

// Write 追加一条记录
func (w *JSONLWriter) Write(v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}

	if _, err := w.buf.Write(raw); err != nil {
		return err
	}
	return w.buf.WriteByte('\n')
}

// Flush 刷新缓冲区
func (w *JSONLWriter) Flush() error {
	return w.buf.Flush()
}

func (w *JSONLWriter) Close() error {
	if err := w.buf.Flush(); err != nil {
		return err
	}
	return w.file.Close()
}
