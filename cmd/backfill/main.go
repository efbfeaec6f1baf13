package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/lancache-dash/lancache-dash-go/internal/config"
	"github.com/lancache-dash/lancache-dash-go/internal/domain"
	"github.com/lancache-dash/lancache-dash-go/internal/logtail"
	"github.com/lancache-dash/lancache-dash-go/internal/repository"
	"github.com/lancache-dash/lancache-dash-go/internal/utils"
	"github.com/sirupsen/logrus"
)

// depotMappingLine depot 映射字典的 JSONL 行格式
type depotMappingLine struct {
	DepotID uint32 `json:"depotId"`
	AppID   uint32 `json:"appId"`
	AppName string `json:"appName"`
	IsOwner bool   `json:"isOwner"`
}

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "config file path")
	logFile := flag.String("log", "", "access log file to backfill")
	dataSource := flag.String("source", "", "data source label for backfilled records")
	mappingsFile := flag.String("mappings", "", "depot mappings JSONL file to import")
	pruneDays := flag.Int("prune-days", 0, "delete finished records older than N days")
	flag.Parse()

	if *logFile == "" && *mappingsFile == "" && *pruneDays <= 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := config.InitLogger(&cfg.Log)

	db, err := repository.InitDB(&cfg.Database, cfg.DataDir, logger)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}

	ctx := context.Background()
	downloadRepo := repository.NewDownloadRepository(db, logger)
	depotRepo := repository.NewDepotMappingRepository(db, logger)

	if *mappingsFile != "" {
		if err := importMappings(ctx, *mappingsFile, depotRepo, logger); err != nil {
			log.Fatalf("Mapping import failed: %v", err)
		}
	}

	if *logFile != "" {
		gap := time.Duration(cfg.Cache.SessionGapSeconds) * time.Second
		if err := backfillLog(ctx, *logFile, *dataSource, gap, downloadRepo, depotRepo, logger); err != nil {
			log.Fatalf("Backfill failed: %v", err)
		}
	}

	if *pruneDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -*pruneDays)
		deleted, err := downloadRepo.DeleteBefore(ctx, cutoff)
		if err != nil {
			log.Fatalf("Prune failed: %v", err)
		}
		fmt.Printf("✓ Pruned %d records older than %s\n", deleted, cutoff.Format("2006-01-02"))
	}
}

// importMappings 从 JSONL 字典导入 depot 映射
func importMappings(ctx context.Context, path string, repo repository.DepotMappingRepository, logger *logrus.Logger) error {
	reader, err := utils.NewJSONLReader(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	imported, skipped := 0, 0
	for {
		var line depotMappingLine
		err := reader.Next(&line)
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.WithError(err).WithField("line", reader.Line()).Warn("Skipping malformed mapping line")
			skipped++
			continue
		}
		if line.DepotID == 0 || line.AppName == "" {
			skipped++
			continue
		}

		mapping := &domain.SteamDepotMapping{
			DepotID: line.DepotID,
			AppID:   line.AppID,
			AppName: line.AppName,
			IsOwner: line.IsOwner,
		}
		if err := repo.Upsert(ctx, mapping); err != nil {
			return fmt.Errorf("failed to upsert depot %d: %w", line.DepotID, err)
		}
		imported++
	}

	fmt.Printf("✓ Imported %d depot mappings (%d skipped)\n", imported, skipped)
	return nil
}

// backfillLog 一次性回灌历史访问日志
func backfillLog(ctx context.Context, path, dataSource string, gap time.Duration, store repository.DownloadRepository, resolver repository.DepotMappingRepository, logger *logrus.Logger) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	collector := logtail.NewCollector(gap, store, resolver, nil, nil, dataSource, logger, nil)

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 1024*1024)
	scanner.Buffer(buf, 10*1024*1024)

	lines := 0
	for scanner.Scan() {
		if err := collector.HandleLine(ctx, scanner.Text()); err != nil {
			logger.WithError(err).WithField("line", lines+1).Warn("Failed to ingest log line")
		}
		lines++
		if lines%100000 == 0 {
			fmt.Printf("  ... %d lines processed\n", lines)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	// 历史日志都早于当前时间, 以 now+gap 为基准可以收尾全部在途会话
	collector.Flush(ctx, time.Now().UTC().Add(2*gap))

	fmt.Printf("✓ Backfilled %d log lines from %s\n", lines, path)
	return nil
}
