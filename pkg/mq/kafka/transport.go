package kafka

import (
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

func newSASLMechanism(cfg *SASLConfig) (sasl.Mechanism, error) {
	switch strings.ToUpper(cfg.Mechanism) {
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, cfg.Username, cfg.Password)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, cfg.Username, cfg.Password)
	default:
		return plain.Mechanism{Username: cfg.Username, Password: cfg.Password}, nil
	}
}

// newTransport 生产者使用的 Transport
func newTransport(cfg *Config) (*kafka.Transport, error) {
	t := &kafka.Transport{}
	if cfg.SASL != nil && cfg.SASL.Username != "" {
		m, err := newSASLMechanism(cfg.SASL)
		if err != nil {
			return nil, err
		}
		t.SASL = m
	}
	return t, nil
}

// newDialer 消费者使用的 Dialer
func newDialer(cfg *Config) (*kafka.Dialer, error) {
	d := &kafka.Dialer{Timeout: 10 * time.Second}
	if cfg.SASL != nil && cfg.SASL.Username != "" {
		m, err := newSASLMechanism(cfg.SASL)
		if err != nil {
			return nil, err
		}
		d.SASLMechanism = m
	}
	return d, nil
}
