package dispatch

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestRedis запускает Redis контейнер и возвращает клиент.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "docker.io/redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Не удалось запустить Redis контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Не удалось получить endpoint контейнера: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newTestRedis(client *redis.Client, proc Processor) *Redis {
	return NewRedis(client, proc, RedisOptions{
		Queue:        "register:test",
		Workers:      2,
		LockTTL:      time.Minute,
		PollTimeout:  200 * time.Millisecond,
		RequeueDelay: 100 * time.Millisecond,
	}, testLogger())
}

func TestRedis_DispatchAndProcess(t *testing.T) {
	client := setupTestRedis(t)
	proc := newFakeProcessor()
	d := newTestRedis(client, proc)

	if status, msg := d.CheckReady(); status != "ok" {
		t.Fatalf("CheckReady() = %s, %s", status, msg)
	}

	d.Start(context.Background())
	defer d.Stop()

	if err := d.Dispatch(context.Background(), "doc-1"); err != nil {
		t.Fatalf("Dispatch() ошибка: %v", err)
	}
	waitStarted(t, proc, "doc-1")

	// Ключи снимаются после прогона
	deadline := time.After(2 * time.Second)
	for {
		n, err := client.Exists(context.Background(), d.queuedKey("doc-1"), d.lockKey("doc-1")).Result()
		if err != nil {
			t.Fatalf("Exists() ошибка: %v", err)
		}
		if n == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("блокировки документа не сняты после обработки")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestRedis_AlreadyQueued(t *testing.T) {
	client := setupTestRedis(t)
	proc := newFakeProcessor()
	d := newTestRedis(client, proc)

	// Воркеры не запущены: задача остаётся в очереди
	if err := d.Dispatch(context.Background(), "doc-1"); err != nil {
		t.Fatalf("Dispatch() ошибка: %v", err)
	}
	if err := d.Dispatch(context.Background(), "doc-1"); !errors.Is(err, ErrAlreadyQueued) {
		t.Errorf("ожидали ErrAlreadyQueued, получили %v", err)
	}

	n, err := client.LLen(context.Background(), "register:test").Result()
	if err != nil || n != 1 {
		t.Errorf("длина очереди = %d, %v, ожидали 1", n, err)
	}
}

func TestRedis_LockedDocumentRequeued(t *testing.T) {
	client := setupTestRedis(t)
	proc := newFakeProcessor()
	d := newTestRedis(client, proc)
	ctx := context.Background()

	// Другая реплика держит блокировку документа
	if err := client.Set(ctx, d.lockKey("doc-1"), "other-job", time.Minute).Err(); err != nil {
		t.Fatalf("Set() ошибка: %v", err)
	}

	d.Start(ctx)
	defer d.Stop()

	if err := d.Dispatch(ctx, "doc-1"); err != nil {
		t.Fatalf("Dispatch() ошибка: %v", err)
	}

	select {
	case id := <-proc.started:
		t.Fatalf("документ %s обработан при чужой блокировке", id)
	case <-time.After(500 * time.Millisecond):
	}

	if err := client.Del(ctx, d.lockKey("doc-1")).Err(); err != nil {
		t.Fatalf("Del() ошибка: %v", err)
	}
	waitStarted(t, proc, "doc-1")
}

func TestRedis_MalformedJobSkipped(t *testing.T) {
	client := setupTestRedis(t)
	proc := newFakeProcessor()
	d := newTestRedis(client, proc)
	ctx := context.Background()

	if err := client.LPush(ctx, "register:test", "not-json").Err(); err != nil {
		t.Fatalf("LPush() ошибка: %v", err)
	}

	d.Start(ctx)
	defer d.Stop()

	if err := d.Dispatch(ctx, "doc-2"); err != nil {
		t.Fatalf("Dispatch() ошибка: %v", err)
	}
	waitStarted(t, proc, "doc-2")
}
