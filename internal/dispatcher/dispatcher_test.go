package dispatcher

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iaros/marketwatch/internal/config"
	"github.com/iaros/marketwatch/internal/models"
	"github.com/iaros/marketwatch/internal/queue"
)

type fakeCmdable struct {
	redis.Cmdable
	mu    sync.Mutex
	lists map[string][]string
}

func newFakeCmdable() *fakeCmdable {
	return &fakeCmdable{lists: map[string][]string{}}
}

func (f *fakeCmdable) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range values {
		f.lists[key] = append(f.lists[key], v.(string))
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(f.lists[key])))
	return cmd
}

func (f *fakeCmdable) listLen(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.lists[key])
}

type fakeStore struct {
	monitored   []models.MonitoredProduct
	competitors []models.CompetitorProduct
}

func (s *fakeStore) DueMonitoredProducts(ctx context.Context, limit int) ([]models.MonitoredProduct, error) {
	if limit < len(s.monitored) {
		return s.monitored[:limit], nil
	}
	return s.monitored, nil
}

func (s *fakeStore) DueCompetitorProducts(ctx context.Context, limit int) ([]models.CompetitorProduct, error) {
	if limit < len(s.competitors) {
		return s.competitors[:limit], nil
	}
	return s.competitors, nil
}

type fakeSuspender struct{ suspended bool }

func (f fakeSuspender) IsGloballySuspended(ctx context.Context) (bool, error) {
	return f.suspended, nil
}

type fakeHeartbeater struct {
	mu   sync.Mutex
	seen []string
}

func (f *fakeHeartbeater) Heartbeat(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, key)
	return nil
}

func TestRecheckMonitoredProductsEnqueuesOneTaskPerProduct(t *testing.T) {
	client := newFakeCmdable()
	broker := queue.New(client)
	store := &fakeStore{monitored: []models.MonitoredProduct{
		{ID: uuid.New(), UserID: uuid.New(), URL: "https://example.com/a", TargetPrice: decimal.NewFromFloat(10)},
		{ID: uuid.New(), UserID: uuid.New(), URL: "https://example.com/b", TargetPrice: decimal.NewFromFloat(20)},
	}}
	heartbeat := &fakeHeartbeater{}

	d := New(store, broker, fakeSuspender{suspended: false}, heartbeat, nil, nil,
		config.Dispatch{MonitoredBatchSize: 10, CompetitorBatchSize: 20}, nil, zap.NewNop())

	d.RecheckMonitoredProducts(context.Background())

	if got := client.listLen("queue:scraping"); got != 2 {
		t.Fatalf("expected 2 scraping tasks enqueued, got %d", got)
	}
	if len(heartbeat.seen) != 1 || heartbeat.seen[0] != HeartbeatScraping {
		t.Fatalf("expected scraping heartbeat recorded, got %v", heartbeat.seen)
	}
}

func TestRecheckMonitoredProductsSkipsWhenSuspended(t *testing.T) {
	client := newFakeCmdable()
	broker := queue.New(client)
	store := &fakeStore{monitored: []models.MonitoredProduct{
		{ID: uuid.New(), UserID: uuid.New(), URL: "https://example.com/a"},
	}}
	heartbeat := &fakeHeartbeater{}

	d := New(store, broker, fakeSuspender{suspended: true}, heartbeat, nil, nil,
		config.Dispatch{MonitoredBatchSize: 10, CompetitorBatchSize: 20}, nil, zap.NewNop())

	d.RecheckMonitoredProducts(context.Background())

	if got := client.listLen("queue:scraping"); got != 0 {
		t.Fatalf("expected no tasks enqueued while suspended, got %d", got)
	}
	if len(heartbeat.seen) != 0 {
		t.Fatal("expected no heartbeat recorded while suspended")
	}
}

func TestRecheckCompetitorProductsTriggersComparisonPerMonitoredID(t *testing.T) {
	client := newFakeCmdable()
	broker := queue.New(client)
	monitoredA := uuid.New()
	monitoredB := uuid.New()
	store := &fakeStore{competitors: []models.CompetitorProduct{
		{ID: uuid.New(), MonitoredID: monitoredA, URL: "https://example.com/c1"},
		{ID: uuid.New(), MonitoredID: monitoredA, URL: "https://example.com/c2"},
		{ID: uuid.New(), MonitoredID: monitoredB, URL: "https://example.com/c3"},
	}}
	heartbeat := &fakeHeartbeater{}

	var mu sync.Mutex
	triggered := map[uuid.UUID]int{}

	d := New(store, broker, fakeSuspender{suspended: false}, heartbeat, nil, nil,
		config.Dispatch{MonitoredBatchSize: 10, CompetitorBatchSize: 20},
		func(ctx context.Context, monitoredID uuid.UUID) {
			mu.Lock()
			defer mu.Unlock()
			triggered[monitoredID]++
		},
		zap.NewNop())

	d.RecheckCompetitorProducts(context.Background())

	if got := client.listLen("queue:scraping"); got != 3 {
		t.Fatalf("expected 3 scraping tasks enqueued, got %d", got)
	}
	if triggered[monitoredA] != 1 || triggered[monitoredB] != 1 {
		t.Fatalf("expected exactly one comparison trigger per distinct monitored id, got %v", triggered)
	}
}
