package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	grpcsvc "github.com/vladislavdragonenkov/orderstore/internal/service/grpc"
)

const dateLayout = "2006-01-02T15:04:05.000Z"

type loadMode string

const (
	modeCreate    loadMode = "create"
	modeCreateGet loadMode = "create-get"
	modeLifecycle loadMode = "lifecycle"
)

// orderClient реализуется *grpcsvc.OrderServiceClient.
type orderClient interface {
	CreateOrder(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetOrder(ctx context.Context, orderID string, opts ...grpc.CallOption) (*structpb.Struct, error)
	ReplaceOrder(ctx context.Context, orderID string, order *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	DeleteOrder(ctx context.Context, orderID string, opts ...grpc.CallOption) (bool, error)
}

type config struct {
	addr        string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	connections int
	timeout     time.Duration
	mode        loadMode
	deleteRate  int
	itemID      string
	quantity    int
	itemValue   float64
	orderPrefix string
	outputPath  string
}

func parseConfig() (config, error) {
	var cfg config
	var modeValue string

	flag.StringVar(&cfg.addr, "addr", "localhost:50051", "gRPC target address")
	flag.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	flag.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m, 15m)")
	flag.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	flag.IntVar(&cfg.connections, "connections", 20, "number of gRPC client connections")
	flag.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-RPC timeout")
	flag.StringVar(&modeValue, "mode", string(modeCreate), "load mode: create | create-get | lifecycle")
	flag.IntVar(&cfg.deleteRate, "delete-rate", 0, "delete probability in percent for create-get mode (0..100)")
	flag.StringVar(&cfg.itemID, "item-id", "LOAD-ITEM", "order item id")
	flag.IntVar(&cfg.quantity, "quantity", 1, "order item quantity")
	flag.Float64Var(&cfg.itemValue, "item-value", 10, "order item unit value")
	flag.StringVar(&cfg.orderPrefix, "order-prefix", "load", "order number prefix")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := flag.CommandLine.Parse(os.Args[1:]); err != nil {
		return cfg, err
	}

	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.duration > 0 && cfg.totalSet && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.connections <= 0 {
		return cfg, errors.New("connections must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if cfg.quantity <= 0 {
		return cfg, errors.New("quantity must be > 0")
	}
	if cfg.itemValue < 0 {
		return cfg, errors.New("item-value must be >= 0")
	}
	if cfg.deleteRate < 0 || cfg.deleteRate > 100 {
		return cfg, errors.New("delete-rate must be between 0 and 100")
	}
	if strings.TrimSpace(cfg.itemID) == "" {
		return cfg, errors.New("item-id is required")
	}
	if strings.TrimSpace(cfg.orderPrefix) == "" {
		return cfg, errors.New("order-prefix is required")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeCreate, modeCreateGet, modeLifecycle:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	conns := make([]*grpc.ClientConn, 0, cfg.connections)
	clients := make([]orderClient, 0, cfg.connections)
	for i := 0; i < cfg.connections; i++ {
		conn, dialErr := grpc.NewClient(cfg.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if dialErr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to create grpc client connection: %v\n", dialErr)
			os.Exit(1)
		}
		conns = append(conns, conn)
		clients = append(clients, grpcsvc.NewOrderServiceClient(conn))
	}
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()

	result := runLoad(cfg, clients)

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// runLoad раздаёт сценарии воркерам и собирает отчёт.
func runLoad(cfg config, clients []orderClient) report {
	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var failures int64
	var wg sync.WaitGroup

	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func(cli orderClient) {
			defer wg.Done()
			for id := range jobs {
				if runErr := runScenario(cli, cfg, id, runID, col); runErr != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}(clients[workerID%len(clients)])
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt))
	if result.FailedScenarios == 0 && failures > 0 {
		result.FailedScenarios = failures
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}
	return result
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

// buildOrder собирает заказ с одной позицией во внешнем формате.
func buildOrder(cfg config, orderID string, itemValue float64) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"numeroPedido": orderID,
		"valorTotal":   itemValue * float64(cfg.quantity),
		"dataCriacao":  time.Now().UTC().Format(dateLayout),
		"items": []any{
			map[string]any{
				"idItem":         cfg.itemID,
				"quantidadeItem": float64(cfg.quantity),
				"valorItem":      itemValue,
			},
		},
	})
}

func runScenario(client orderClient, cfg config, index int, runID string, col *collector) error {
	scenarioStart := time.Now()
	scenarioCode := codes.OK
	defer func() {
		col.record("scenario", time.Since(scenarioStart), scenarioCode)
	}()

	orderID := fmt.Sprintf("%s-%s-%d", cfg.orderPrefix, runID, index)
	order, err := buildOrder(cfg, orderID, cfg.itemValue)
	if err != nil {
		scenarioCode = codes.InvalidArgument
		return err
	}

	created, err := timed(col, "CreateOrder", cfg.timeout, func(ctx context.Context) (*structpb.Struct, error) {
		return client.CreateOrder(ctx, order)
	})
	if err != nil {
		scenarioCode = grpcCode(err)
		return err
	}
	if created.GetFields()["numeroPedido"].GetStringValue() != orderID {
		scenarioCode = codes.Internal
		return errors.New("create response returned unexpected order id")
	}

	if cfg.mode == modeCreate {
		return nil
	}

	if _, err := timed(col, "GetOrder", cfg.timeout, func(ctx context.Context) (*structpb.Struct, error) {
		return client.GetOrder(ctx, orderID)
	}); err != nil {
		scenarioCode = grpcCode(err)
		return err
	}

	if cfg.mode == modeLifecycle {
		replacement, err := buildOrder(cfg, orderID, cfg.itemValue+1)
		if err != nil {
			scenarioCode = codes.InvalidArgument
			return err
		}
		if _, err := timed(col, "ReplaceOrder", cfg.timeout, func(ctx context.Context) (*structpb.Struct, error) {
			return client.ReplaceOrder(ctx, orderID, replacement)
		}); err != nil {
			scenarioCode = grpcCode(err)
			return err
		}
	}

	if cfg.mode == modeLifecycle || shouldDeleteScenario(index, cfg.deleteRate) {
		if _, err := timed(col, "DeleteOrder", cfg.timeout, func(ctx context.Context) (bool, error) {
			return client.DeleteOrder(ctx, orderID)
		}); err != nil {
			scenarioCode = grpcCode(err)
			return err
		}
	}

	return nil
}

// timed выполняет RPC с таймаутом и пишет латентность в collector.
func timed[T any](col *collector, method string, timeout time.Duration, call func(ctx context.Context) (T, error)) (T, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	resp, err := call(ctx)
	col.record(method, time.Since(start), grpcCode(err))
	return resp, err
}

func grpcCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	return status.Code(err)
}

func shouldDeleteScenario(index, deleteRate int) bool {
	if deleteRate <= 0 {
		return false
	}
	if deleteRate >= 100 {
		return true
	}
	return index%100 < deleteRate
}
