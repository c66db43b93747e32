// register-reprocess — офлайн-повтор обработки документов.
//
// Прогоняет конвейер для списка документов без HTTP-сервера и диспетчера:
// идентификаторы передаются аргументами или файлом (по одному на строку,
// строки с # пропускаются). Конфигурация та же, что у Register Module
// (переменные RM_*). По завершении печатает итоговый статус каждого документа.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/bigkaa/complyreg/register-module/internal/analyzer"
	"github.com/bigkaa/complyreg/register-module/internal/config"
	"github.com/bigkaa/complyreg/register-module/internal/database"
	"github.com/bigkaa/complyreg/register-module/internal/repository"
	"github.com/bigkaa/complyreg/register-module/internal/service"
	"github.com/bigkaa/complyreg/register-module/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var idsFile string
	var timeout time.Duration

	flagSet := pflag.NewFlagSet("register-reprocess", pflag.ContinueOnError)
	flagSet.StringVarP(&idsFile, "file", "f", "", "файл со списком идентификаторов документов")
	flagSet.DurationVar(&timeout, "timeout", 0, "общий лимит времени (0 — без лимита)")
	flagSet.BoolP("help", "h", false, "показать справку")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	var fromFile io.Reader
	if idsFile != "" {
		f, err := os.Open(idsFile)
		if err != nil {
			return fmt.Errorf("открытие файла %s: %w", idsFile, err)
		}
		defer f.Close()
		fromFile = f
	}
	ids, err := collectIDs(flagSet.Args(), fromFile)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		printHelp(flagSet)
		return fmt.Errorf("не указаны идентификаторы документов")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := config.SetupLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()
	store := repository.NewStore(pool)

	objects, err := storage.NewFromConfig(cfg, logger)
	if err != nil {
		return err
	}

	pipeline := service.NewPipeline(
		store,
		objects,
		analyzer.NewClient(cfg, logger),
		service.NewHierarchyReconciler(logger),
		service.NewTenantCache(store, cfg.TenantCacheSize, cfg.TenantCacheTTL),
		logger,
	)

	failed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return fmt.Errorf("прервано: %w", ctx.Err())
		}
		pipeline.Process(ctx, id)

		status := "not_found"
		doc, err := store.Repos().Documents.GetByID(context.WithoutCancel(ctx), id)
		switch {
		case err == nil:
			status = string(doc.Status)
		case !errors.Is(err, repository.ErrNotFound):
			status = "unknown"
		}
		if status != "completed" {
			failed++
		}
		fmt.Printf("%s\t%s\n", id, status)
	}

	if failed > 0 {
		return fmt.Errorf("%d из %d документов не обработаны", failed, len(ids))
	}
	return nil
}

// collectIDs объединяет идентификаторы из аргументов и файла, проверяет
// формат UUID и убирает повторы с сохранением порядка.
func collectIDs(args []string, file io.Reader) ([]string, error) {
	raw := append([]string(nil), args...)
	if file != nil {
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			raw = append(raw, line)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("чтение списка документов: %w", err)
		}
	}

	seen := make(map[string]struct{}, len(raw))
	ids := make([]string, 0, len(raw))
	for _, s := range raw {
		parsed, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("некорректный идентификатор документа %q", s)
		}
		id := parsed.String()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Повторная обработка документов Register Module.

Использование:
  register-reprocess [флаги] <document-id>...

Флаги:
%s`, flagSet.FlagUsages())
}
