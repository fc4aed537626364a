package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/IBM/sarama"

	"costa/internal/logging"
	"costa/sink"
)

type Config struct {
	Brokers  []string `koanf:"brokers"`
	Topic    string   `koanf:"topic"`
	Acks     int16    `koanf:"required_acks"` // 0,1,-1
	ClientID string   `koanf:"client_id"`
}

var newProducer = sarama.NewAsyncProducer

type driver struct {
	cfg  Config
	p    sarama.AsyncProducer
	done chan struct{}
	once sync.Once
}

func (d *driver) Configure(c any) error {
	cfg, ok := c.(Config)
	if !ok {
		return fmt.Errorf("kafka-sink: want Config, got %T", c)
	}
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return errors.New("kafka-sink: brokers and topic are required")
	}
	d.cfg = cfg

	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.RequiredAcks(cfg.Acks)
	sc.Producer.Return.Errors = true
	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}
	p, err := newProducer(cfg.Brokers, sc)
	if err != nil {
		return fmt.Errorf("kafka-sink: %w", err)
	}
	d.p = p
	d.done = make(chan struct{})
	go d.drainErrors()
	return nil
}

func (d *driver) drainErrors() {
	defer close(d.done)
	for perr := range d.p.Errors() {
		logging.L().Warn("kafka-sink: produce failed", "topic", d.cfg.Topic, "err", perr.Err)
	}
}

// Push keys every event by run id so one run stays on one partition.
func (d *driver) Push(ev sink.Event) error {
	if d.p == nil {
		return errors.New("kafka-sink: not configured")
	}
	val, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	d.p.Input() <- &sarama.ProducerMessage{
		Topic: d.cfg.Topic,
		Key:   sarama.StringEncoder(ev.RunID),
		Value: sarama.ByteEncoder(val),
	}
	return nil
}

func (d *driver) Close() error {
	var err error
	d.once.Do(func() {
		if d.p == nil {
			return
		}
		err = d.p.Close()
		<-d.done
	})
	return err
}

func init() { sink.Register("kafka", func() sink.Adapter { return &driver{} }) }
