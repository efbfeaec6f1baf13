package logtail

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// LogEntry 访问日志里的一次请求
type LogEntry struct {
	Timestamp   time.Time
	ClientIP    string
	Service     string
	URL         string
	StatusCode  int
	BytesServed int64
	CacheStatus string // HIT / MISS / UNKNOWN
	DepotID     *uint32
}

// Parser 访问日志行解析器。
// 行格式: [service] ip / - - - [timestamp] "METHOD URL HTTP/ver" status bytes "referer" "ua" "cache-status" "upstream" "..."
type Parser struct {
	mainRegex  *regexp.Regexp
	depotRegex *regexp.Regexp
}

func NewParser() *Parser {
	return &Parser{
		mainRegex: regexp.MustCompile(
			`^(?:\[(?P<service>[^\]]+)\]\s+)?(?P<ip>\S+)\s+/\s+-\s+-\s+-\s+\[(?P<time>[^\]]+)\]\s+"(?P<method>[A-Z]+)\s+(?P<url>\S+)(?:\s+HTTP/(?P<httpVersion>[^"\s]+))?"\s+(?P<status>\d{3})\s+(?P<bytes>-|\d+)(?P<rest>.*)$`),
		depotRegex: regexp.MustCompile(`/depot/(\d+)/`),
	}
}

// ParseLine 解析一行日志, 格式不匹配或时间戳非法时返回 nil
func (p *Parser) ParseLine(line string) *LogEntry {
	m := p.mainRegex.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	fields := make(map[string]string, len(m))
	for i, name := range p.mainRegex.SubexpNames() {
		if name != "" {
			fields[name] = m[i]
		}
	}

	service := fields["service"]
	if service == "" {
		service = "unknown"
	}
	service = NormalizeService(service)

	status, err := strconv.Atoi(fields["status"])
	if err != nil {
		return nil
	}

	var bytesServed int64
	if fields["bytes"] != "-" {
		bytesServed, err = strconv.ParseInt(fields["bytes"], 10, 64)
		if err != nil {
			return nil
		}
	}

	ts, ok := parseTimestamp(fields["time"])
	if !ok {
		return nil
	}

	entry := &LogEntry{
		Timestamp:   ts,
		ClientIP:    fields["ip"],
		Service:     service,
		URL:         fields["url"],
		StatusCode:  status,
		BytesServed: bytesServed,
		CacheStatus: extractCacheStatus(fields["rest"]),
	}

	// depot 编号只对 steam 有意义
	if service == "steam" {
		if dm := p.depotRegex.FindStringSubmatch(entry.URL); dm != nil {
			if id, err := strconv.ParseUint(dm[1], 10, 32); err == nil {
				depot := uint32(id)
				entry.DepotID = &depot
			}
		}
	}

	return entry
}

var timestampLayouts = []string{
	"02/Jan/2006:15:04:05", // nginx 默认
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTimestamp 解析日志时间戳, 时区偏移直接截掉（沿用既有账面口径）
func parseTimestamp(raw string) (time.Time, bool) {
	trimmed := raw
	if pos := strings.LastIndexAny(raw, "+-"); pos > 0 {
		trimmed = strings.TrimSpace(raw[:pos])
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, trimmed); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

// extractCacheStatus 取 rest 中第三个引号字段, 即 upstream cache status
func extractCacheStatus(rest string) string {
	quoteCount := 0
	start := -1
	for i, ch := range rest {
		if ch != '"' {
			continue
		}
		quoteCount++
		if quoteCount == 5 {
			start = i + 1
		} else if quoteCount == 6 {
			status := rest[start:i]
			if status == "HIT" || status == "MISS" {
				return status
			}
			break
		}
	}
	return "UNKNOWN"
}

// ShouldSkipURL 心跳和健康检查请求不计入流量
func ShouldSkipURL(url string) bool {
	return strings.Contains(url, "/lancache-heartbeat") ||
		strings.Contains(url, "/health") ||
		strings.Contains(url, "/ping")
}

// NormalizeService 规整服务名: 小写, 回环地址归并为 localhost,
// 裸 IP 归并为 ip-address, 保证各来源的记录落到同一账目
func NormalizeService(service string) string {
	lower := strings.ToLower(service)

	if strings.HasPrefix(lower, "127.") || lower == "127" || lower == "localhost" {
		return "localhost"
	}

	if strings.Contains(lower, ".") {
		isIP := true
		hasDigit := false
		for _, ch := range lower {
			if ch >= '0' && ch <= '9' {
				hasDigit = true
				continue
			}
			if ch != '.' {
				isIP = false
				break
			}
		}
		if isIP && hasDigit {
			return "ip-address"
		}
	}

	return lower
}
