// Package kafkabus is a provider.Bus for a provider collaborator
// running as a separate service, reached over Kafka request/reply and
// push topics. Grounded on internal/msgtransfer's
// sarama.ConsumerGroupHandler shape (Setup/Cleanup/ConsumeClaim) for
// the consumer side; the producer side and the correlation-id
// request/reply pattern are new, since the teacher delegates its own
// producer construction to an unvendored wrapper package
// (github.com/openimsdk/tools/mq/kafka) this tree doesn't carry.
package kafkabus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/openimsdk/tools/log"

	"github.com/nssresponder/responderd/internal/provider"
)

const (
	requestTopic        = "nss-account-requests"
	replyTopic          = "nss-account-replies"
	domainsRefreshTopic    = "nss-domains-refresh"
	domainsRefreshAckTopic = "nss-domains-refresh-ack"
	initgrUpdatesTopic     = "nss-initgr-updates"

	replyTimeout = 10 * time.Second
)

type wireRequest struct {
	CorrelationID string               `json:"correlation_id"`
	Domain        string               `json:"domain"`
	Kind          provider.RequestKind `json:"kind"`
	Key           string               `json:"key"`
	FastReply     bool                 `json:"fast_reply"`
}

type wireReply struct {
	CorrelationID string `json:"correlation_id"`
	MajorErr      int    `json:"major_err"`
	MinorErr      int    `json:"minor_err"`
	Msg           []byte `json:"msg"`
}

type wireDomainsRefresh struct {
	CorrelationID string `json:"correlation_id"`
	HintDomain    string `json:"hint_domain"`
}

type wireDomainsRefreshAck struct {
	CorrelationID string `json:"correlation_id"`
}

// Bus is a Kafka-backed provider.Bus.
type Bus struct {
	producer sarama.SyncProducer
	group    sarama.ConsumerGroup

	mu      sync.Mutex
	waiters map[string]chan wireReply

	domainMu      sync.Mutex
	domainWaiters map[string]chan struct{}

	pushMu   sync.Mutex
	pushSubs []chan provider.UpdateInitgr
}

// Config is the minimal sarama wiring this bus needs.
type Config struct {
	Brokers []string
	GroupID string
}

// New connects a producer and a consumer group for the request/reply
// and push topics. The caller must run Run in its own goroutine to
// start consuming replies and pushes.
func New(cfg Config) (*Bus, error) {
	prodCfg := sarama.NewConfig()
	prodCfg.Producer.Return.Successes = true
	prodCfg.Producer.RequiredAcks = sarama.WaitForLocal
	producer, err := sarama.NewSyncProducer(cfg.Brokers, prodCfg)
	if err != nil {
		return nil, err
	}

	consCfg := sarama.NewConfig()
	consCfg.Consumer.Return.Errors = true
	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, consCfg)
	if err != nil {
		producer.Close()
		return nil, err
	}

	return &Bus{
		producer:      producer,
		group:         group,
		waiters:       make(map[string]chan wireReply),
		domainWaiters: make(map[string]chan struct{}),
	}, nil
}

// Close releases the producer and consumer group.
func (b *Bus) Close() error {
	err1 := b.producer.Close()
	err2 := b.group.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Run drives the consumer group against the reply and push topics until
// ctx is cancelled. Call it once, in its own goroutine, per Bus.
func (b *Bus) Run(ctx context.Context) error {
	h := &consumerHandler{bus: b}
	for {
		if err := b.group.Consume(ctx, []string{replyTopic, domainsRefreshAckTopic, initgrUpdatesTopic}, h); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

type consumerHandler struct {
	bus *Bus
}

func (h *consumerHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *consumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			switch msg.Topic {
			case replyTopic:
				h.bus.handleReply(msg.Value)
			case domainsRefreshAckTopic:
				h.bus.handleDomainsAck(ctx, msg.Value)
			case initgrUpdatesTopic:
				h.bus.handlePush(ctx, msg.Value)
			}
			session.MarkMessage(msg, "")
		case <-ctx.Done():
			return nil
		}
	}
}

func (b *Bus) handleReply(raw []byte) {
	var reply wireReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		log.ZWarn(context.Background(), "kafkabus: discard malformed reply", err)
		return
	}
	b.mu.Lock()
	ch, ok := b.waiters[reply.CorrelationID]
	delete(b.waiters, reply.CorrelationID)
	b.mu.Unlock()
	if ok {
		ch <- reply
	}
}

func (b *Bus) handleDomainsAck(ctx context.Context, raw []byte) {
	var ack wireDomainsRefreshAck
	if err := json.Unmarshal(raw, &ack); err != nil {
		log.ZWarn(ctx, "kafkabus: discard malformed domains-refresh ack", err)
		return
	}
	b.domainMu.Lock()
	done, ok := b.domainWaiters[ack.CorrelationID]
	delete(b.domainWaiters, ack.CorrelationID)
	b.domainMu.Unlock()
	if ok {
		done <- struct{}{}
	}
}

func (b *Bus) handlePush(ctx context.Context, raw []byte) {
	var upd provider.UpdateInitgr
	if err := json.Unmarshal(raw, &upd); err != nil {
		log.ZWarn(ctx, "kafkabus: discard malformed initgr update", err)
		return
	}
	b.pushMu.Lock()
	defer b.pushMu.Unlock()
	for _, ch := range b.pushSubs {
		select {
		case ch <- upd:
		default:
		}
	}
}

// AccountRequest implements provider.Bus.
func (b *Bus) AccountRequest(ctx context.Context, req provider.AccountRequest) (provider.AccountResult, error) {
	correlationID := uuid.NewString()
	wr := wireRequest{CorrelationID: correlationID, Domain: req.Domain, Kind: req.Kind, Key: req.Key, FastReply: req.FastReply}
	payload, err := json.Marshal(wr)
	if err != nil {
		return provider.AccountResult{}, err
	}

	ch := make(chan wireReply, 1)
	b.mu.Lock()
	b.waiters[correlationID] = ch
	b.mu.Unlock()

	if _, _, err := b.producer.SendMessage(&sarama.ProducerMessage{
		Topic: requestTopic,
		Key:   sarama.StringEncoder(req.Domain),
		Value: sarama.ByteEncoder(payload),
	}); err != nil {
		b.mu.Lock()
		delete(b.waiters, correlationID)
		b.mu.Unlock()
		return provider.AccountResult{}, err
	}

	select {
	case reply := <-ch:
		return provider.AccountResult{MajorErr: reply.MajorErr, MinorErr: reply.MinorErr, Msg: reply.Msg}, nil
	case <-time.After(replyTimeout):
		b.mu.Lock()
		delete(b.waiters, correlationID)
		b.mu.Unlock()
		return provider.AccountResult{}, context.DeadlineExceeded
	case <-ctx.Done():
		return provider.AccountResult{}, ctx.Err()
	}
}

// DomainsRefresh implements provider.Bus.
func (b *Bus) DomainsRefresh(ctx context.Context, hintDomain string) error {
	correlationID := uuid.NewString()
	payload, err := json.Marshal(wireDomainsRefresh{CorrelationID: correlationID, HintDomain: hintDomain})
	if err != nil {
		return err
	}
	done := make(chan struct{}, 1)
	b.domainMu.Lock()
	b.domainWaiters[correlationID] = done
	b.domainMu.Unlock()

	if _, _, err := b.producer.SendMessage(&sarama.ProducerMessage{
		Topic: domainsRefreshTopic,
		Value: sarama.ByteEncoder(payload),
	}); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-time.After(replyTimeout):
		return context.DeadlineExceeded
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe returns a channel fed by Run as initgr-update messages
// arrive on the Kafka push topic.
func (b *Bus) Subscribe(ctx context.Context) (<-chan provider.UpdateInitgr, error) {
	ch := make(chan provider.UpdateInitgr, 16)
	b.pushMu.Lock()
	b.pushSubs = append(b.pushSubs, ch)
	b.pushMu.Unlock()

	go func() {
		<-ctx.Done()
		b.pushMu.Lock()
		defer b.pushMu.Unlock()
		for i, s := range b.pushSubs {
			if s == ch {
				b.pushSubs = append(b.pushSubs[:i], b.pushSubs[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}
