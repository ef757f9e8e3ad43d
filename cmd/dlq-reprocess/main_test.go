package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderstore/internal/messaging/kafka"
)

const (
	dlqRecord          = `{"original_topic":"orders.inbound","original_key":"order-1","original_value":"{\"numeroPedido\":\"order-1\"}","error_message":"connection reset","retry_count":3}`
	dlqPermanentRecord = `{"original_topic":"orders.inbound","original_key":"order-2","original_value":"{}","error_message":"numeroPedido is required","permanent":true}`
)

func testConfig() config {
	return config{
		sourceTopic: kafka.DefaultDLQTopic,
		targetTopic: kafka.DefaultIngestTopic,
		limit:       10,
		idleTimeout: 20 * time.Millisecond,
	}
}

func dlqMessage(partition int32, offset int64, value string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{Partition: partition, Offset: offset, Value: []byte(value)}
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, parseBrokers(" broker-1:9092, ,broker-2:9092 "))
	assert.Empty(t, parseBrokers(" , "))
}

func TestExtractReplayMessage(t *testing.T) {
	cfg := testConfig()

	got, err := extractReplayMessage(dlqMessage(0, 0, dlqRecord), cfg)
	require.NoError(t, err)
	assert.Equal(t, "orders.inbound", got.topic)
	assert.Equal(t, "order-1", got.key)
	assert.JSONEq(t, `{"numeroPedido":"order-1"}`, string(got.value))

	got, err = extractReplayMessage(dlqMessage(0, 0, `{"original_key":"k","original_value":"{}"}`), cfg)
	require.NoError(t, err)
	assert.Equal(t, kafka.DefaultIngestTopic, got.topic, "fallback to target topic")
}

func TestExtractReplayMessage_Skips(t *testing.T) {
	cfg := testConfig()

	cases := map[string]string{
		"not json":  `not-json`,
		"no value":  `{"original_topic":"orders.inbound"}`,
		"permanent": dlqPermanentRecord,
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := extractReplayMessage(dlqMessage(0, 0, value), cfg)
			assert.Error(t, err)
		})
	}

	cfg.includePermanent = true
	got, err := extractReplayMessage(dlqMessage(0, 0, dlqPermanentRecord), cfg)
	require.NoError(t, err)
	assert.Equal(t, "order-2", got.key)
}

func TestReadConfig_FromFlags(t *testing.T) {
	withFlagArgs(t, []string{
		"-brokers=broker-1:9092,broker-2:9092",
		"-source-topic=dead",
		"-target-topic=inbound",
		"-limit=10",
		"-execute=true",
		"-from-newest=true",
		"-include-permanent=true",
		"-idle-timeout=3s",
	}, func() {
		cfg, err := readConfig()
		require.NoError(t, err)
		assert.Len(t, cfg.brokers, 2)
		assert.Equal(t, "dead", cfg.sourceTopic)
		assert.Equal(t, "inbound", cfg.targetTopic)
		assert.Equal(t, 10, cfg.limit)
		assert.True(t, cfg.execute)
		assert.True(t, cfg.fromNewest)
		assert.True(t, cfg.includePermanent)
		assert.Equal(t, 3*time.Second, cfg.idleTimeout)
	})
}

func TestReadConfig_BrokersFromEnv(t *testing.T) {
	t.Setenv("ORDERS_KAFKA_BROKERS", "env-broker:9092")
	withFlagArgs(t, nil, func() {
		cfg, err := readConfig()
		require.NoError(t, err)
		assert.Equal(t, []string{"env-broker:9092"}, cfg.brokers)
		assert.Equal(t, kafka.DefaultDLQTopic, cfg.sourceTopic)
		assert.Equal(t, kafka.DefaultIngestTopic, cfg.targetTopic)
	})
}

func TestReadConfig_ValidationErrors(t *testing.T) {
	t.Setenv("ORDERS_KAFKA_BROKERS", "")

	cases := []struct {
		args []string
		want string
	}{
		{args: []string{"-brokers="}, want: "kafka brokers are required"},
		{args: []string{"-brokers=broker:9092", "-source-topic="}, want: "source-topic is required"},
		{args: []string{"-brokers=broker:9092", "-target-topic="}, want: "target-topic is required"},
		{args: []string{"-brokers=broker:9092", "-limit=0"}, want: "limit must be > 0"},
		{args: []string{"-brokers=broker:9092", "-idle-timeout=0s"}, want: "idle-timeout must be > 0"},
	}
	for _, tc := range cases {
		withFlagArgs(t, tc.args, func() {
			_, err := readConfig()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("args %v: expected %q, got %v", tc.args, tc.want, err)
			}
		})
	}
}

func TestProcessPartition_DryRun(t *testing.T) {
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{
				dlqMessage(0, 0, dlqRecord),
				dlqMessage(0, 1, dlqPermanentRecord),
			}),
		},
	}

	stats, err := processPartition(context.Background(), consumer, client, nil, testConfig(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, partitionStats{processed: 2, replayed: 1, skipped: 1}, stats)
	require.Len(t, consumer.calls, 1)
	assert.Equal(t, int64(0), consumer.calls[0].offset)
}

func TestProcessPartition_Execute(t *testing.T) {
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{dlqMessage(0, 0, dlqRecord)}),
		},
	}
	producer := &stubReplayProducer{}

	cfg := testConfig()
	cfg.execute = true

	stats, err := processPartition(context.Background(), consumer, client, producer, cfg, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.replayed)
	require.Len(t, producer.published, 1)

	published := producer.published[0]
	assert.Equal(t, "orders.inbound", published.topic)
	assert.Equal(t, "order-1", published.key)
	assert.Equal(t, kafka.DefaultDLQTopic, published.headers[headerReplayedFrom])
}

func TestProcessPartition_FromNewest(t *testing.T) {
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 10}}}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{0: closedPartitionConsumer(nil)},
	}

	cfg := testConfig()
	cfg.fromNewest = true

	_, err := processPartition(context.Background(), consumer, client, nil, cfg, 0, 3)
	require.NoError(t, err)
	require.Len(t, consumer.calls, 1)
	assert.Equal(t, int64(7), consumer.calls[0].offset)
}

func TestProcessPartition_ErrorBranches(t *testing.T) {
	cfg := testConfig()
	cfg.execute = true

	clientOffsetErr := &stubOffsetClient{offsetErr: map[int32]error{0: errors.New("offset")}}
	_, err := processPartition(context.Background(), &stubPartitionConsumerSource{}, clientOffsetErr, &stubReplayProducer{}, cfg, 0, 1)
	assert.Error(t, err)

	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}
	consumerErr := &stubPartitionConsumerSource{consumeErr: errors.New("consume")}
	_, err = processPartition(context.Background(), consumerErr, client, &stubReplayProducer{}, cfg, 0, 1)
	assert.Error(t, err)

	pcWithErr := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError, 1),
	}
	pcWithErr.errors <- &sarama.ConsumerError{Err: errors.New("consumer boom")}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: pcWithErr}}
	_, err = processPartition(context.Background(), consumer, client, &stubReplayProducer{}, cfg, 0, 1)
	assert.Error(t, err)

	consumer = &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{
		0: closedPartitionConsumer([]*sarama.ConsumerMessage{dlqMessage(0, 0, dlqRecord)}),
	}}
	producer := &stubReplayProducer{sendErr: errors.New("send fail")}
	_, err = processPartition(context.Background(), consumer, client, producer, cfg, 0, 1)
	assert.ErrorContains(t, err, "publish replay message")
}

func TestProcessPartition_EmptyPartition(t *testing.T) {
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 5, newest: 5}}}
	consumer := &stubPartitionConsumerSource{}

	stats, err := processPartition(context.Background(), consumer, client, nil, testConfig(), 0, 1)
	require.NoError(t, err)
	assert.Equal(t, partitionStats{}, stats)
	assert.Empty(t, consumer.calls)
}

func TestProcessPartition_IdleTimeoutAndContext(t *testing.T) {
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}
	cfg := testConfig()
	cfg.idleTimeout = 10 * time.Millisecond

	idleConsumer := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError),
	}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: idleConsumer}}

	stats, err := processPartition(context.Background(), consumer, client, nil, cfg, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.processed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	canceledPC := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError),
	}
	canceledConsumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: canceledPC}}
	_, err = processPartition(ctx, canceledConsumer, client, nil, cfg, 0, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunReplay(t *testing.T) {
	cfg := testConfig()
	cfg.limit = 1

	assert.Error(t, runReplay(context.Background(), cfg, nil, nil, nil))

	client := &stubOffsetClient{
		partitions: []int32{2, 0},
		offsets: map[int32]offsetRange{
			0: {oldest: 0, newest: 2},
			2: {oldest: 0, newest: 2},
		},
	}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{dlqMessage(0, 0, dlqRecord)}),
			2: closedPartitionConsumer([]*sarama.ConsumerMessage{dlqMessage(2, 0, dlqRecord)}),
		},
	}

	require.NoError(t, runReplay(context.Background(), cfg, client, consumer, nil))
	require.Len(t, consumer.calls, 1, "limit=1 stops after the first partition")
	assert.Equal(t, int32(0), consumer.calls[0].partition)

	executeCfg := cfg
	executeCfg.execute = true
	assert.Error(t, runReplay(context.Background(), executeCfg, client, consumer, nil))

	client.partitionsErr = errors.New("metadata")
	assert.Error(t, runReplay(context.Background(), cfg, client, consumer, nil))

	assert.NoError(t, runReplay(context.Background(), cfg, &stubOffsetClient{}, consumer, nil))
}

func TestRun_UsesDependencies(t *testing.T) {
	oldDeps := newReplayDependencies
	defer func() { newReplayDependencies = oldDeps }()

	cfg := testConfig()
	cfg.limit = 1
	cfg.execute = true

	newReplayDependencies = func(config) (offsetClient, partitionConsumerSource, replayProducer, error) {
		return nil, nil, nil, errors.New("deps failed")
	}
	assert.ErrorContains(t, run(context.Background(), cfg), "deps failed")

	client := &stubOffsetClient{
		partitions: []int32{0},
		offsets:    map[int32]offsetRange{0: {oldest: 0, newest: 2}},
	}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{dlqMessage(0, 0, dlqRecord)}),
		},
	}
	producer := &stubReplayProducer{}

	newReplayDependencies = func(config) (offsetClient, partitionConsumerSource, replayProducer, error) {
		return client, consumer, producer, nil
	}
	require.NoError(t, run(context.Background(), cfg))
	assert.Len(t, producer.published, 1)
	assert.True(t, client.closed && consumer.closed && producer.closed, "all deps must be closed")
}

func TestFailExits(t *testing.T) {
	if os.Getenv("DLQ_TEST_FAIL_EXIT") == "1" {
		fail("boom")
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "DLQ_TEST_FAIL_EXIT=1")
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected subprocess to exit with error")
	}
	if exitErr, ok := err.(*exec.ExitError); !ok || exitErr.ExitCode() == 0 {
		t.Fatalf("expected non-zero exit code, got %v", err)
	}
}

func withFlagArgs(t *testing.T, args []string, fn func()) {
	t.Helper()

	oldArgs := os.Args
	oldCommandLine := flag.CommandLine

	os.Args = append([]string{"dlq-reprocess"}, args...)
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)

	defer func() {
		os.Args = oldArgs
		flag.CommandLine = oldCommandLine
	}()

	fn()
}

type offsetRange struct {
	oldest int64
	newest int64
}

type stubOffsetClient struct {
	partitions    []int32
	partitionsErr error
	offsets       map[int32]offsetRange
	offsetErr     map[int32]error
	closed        bool
}

func (s *stubOffsetClient) GetOffset(_ string, partition int32, marker int64) (int64, error) {
	if err, ok := s.offsetErr[partition]; ok {
		return 0, err
	}

	r := s.offsets[partition]
	switch marker {
	case sarama.OffsetOldest:
		return r.oldest, nil
	case sarama.OffsetNewest:
		return r.newest, nil
	default:
		return 0, fmt.Errorf("unsupported marker %d", marker)
	}
}

func (s *stubOffsetClient) Partitions(string) ([]int32, error) {
	if s.partitionsErr != nil {
		return nil, s.partitionsErr
	}
	return append([]int32(nil), s.partitions...), nil
}

func (s *stubOffsetClient) Close() error {
	s.closed = true
	return nil
}

type consumeCall struct {
	partition int32
	offset    int64
}

type stubPartitionConsumerSource struct {
	consumers  map[int32]partitionConsumer
	consumeErr error
	calls      []consumeCall
	closed     bool
}

func (s *stubPartitionConsumerSource) ConsumePartition(_ string, partition int32, offset int64) (partitionConsumer, error) {
	s.calls = append(s.calls, consumeCall{partition: partition, offset: offset})
	if s.consumeErr != nil {
		return nil, s.consumeErr
	}
	pc, ok := s.consumers[partition]
	if !ok {
		return nil, fmt.Errorf("partition %d not configured", partition)
	}
	return pc, nil
}

func (s *stubPartitionConsumerSource) Close() error {
	s.closed = true
	return nil
}

type stubPartitionConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
	closed   bool
}

func (s *stubPartitionConsumer) Messages() <-chan *sarama.ConsumerMessage { return s.messages }
func (s *stubPartitionConsumer) Errors() <-chan *sarama.ConsumerError     { return s.errors }
func (s *stubPartitionConsumer) Close() error {
	s.closed = true
	return nil
}

func closedPartitionConsumer(messages []*sarama.ConsumerMessage) *stubPartitionConsumer {
	msgCh := make(chan *sarama.ConsumerMessage, len(messages))
	errCh := make(chan *sarama.ConsumerError)
	for _, msg := range messages {
		msgCh <- msg
	}
	close(msgCh)
	close(errCh)
	return &stubPartitionConsumer{messages: msgCh, errors: errCh}
}

type publishedMessage struct {
	topic   string
	key     string
	value   string
	headers map[string]string
}

type stubReplayProducer struct {
	sendErr   error
	published []publishedMessage
	closed    bool
}

func (s *stubReplayProducer) PublishRaw(topic, key string, value []byte, headers map[string]string) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.published = append(s.published, publishedMessage{topic: topic, key: key, value: string(value), headers: headers})
	return nil
}

func (s *stubReplayProducer) Close() error {
	s.closed = true
	return nil
}
