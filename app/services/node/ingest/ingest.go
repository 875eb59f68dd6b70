// Package ingest subscribes to an MQTT broker and turns field-device
// telemetry messages into mined ledger entries. It is a thin transport
// adapter: everything it does with a message goes through the chain's
// normal submission path.
package ingest

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/medledger/ledger/foundation/ledger/chain"
	"github.com/medledger/ledger/foundation/ledger/state"
	"github.com/medledger/ledger/foundation/ledger/transaction"
)

// Config represents the configuration for the MQTT ingestion adapter.
type Config struct {
	Broker   string
	Topic    string
	ClientID string

	// TLS material for brokers such as AWS IoT Core. All three must be
	// set for a TLS connection; otherwise the connection is plain.
	CAFile   string
	CertFile string
	KeyFile  string

	Chain     *chain.Chain
	State     *state.State
	DeviceID  string
	EvHandler chain.EventHandler
}

// Ingest owns the broker connection and the subscription.
type Ingest struct {
	client    mqtt.Client
	topic     string
	chain     *chain.Chain
	state     *state.State
	deviceID  string
	evHandler chain.EventHandler
}

// New constructs the ingestion adapter without connecting.
func New(cfg Config) (*Ingest, error) {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	ing := Ingest{
		topic:     cfg.Topic,
		chain:     cfg.Chain,
		state:     cfg.State,
		deviceID:  cfg.DeviceID,
		evHandler: ev,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)

	if cfg.CAFile != "" && cfg.CertFile != "" && cfg.KeyFile != "" {
		tlsCfg, err := newTLSConfig(cfg.CAFile, cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		ev("ingest: connected to broker: %s", cfg.Broker)

		if token := client.Subscribe(ing.topic, 1, ing.onMessage); token.Wait() && token.Error() != nil {
			ev("ingest: subscribe %s: ERROR: %s", ing.topic, token.Error())
			return
		}
		ev("ingest: subscribed: topic[%s]", ing.topic)
	})

	ing.client = mqtt.NewClient(opts)

	return &ing, nil
}

// Start connects to the broker. The subscription is placed by the
// on-connect handler so it survives reconnects.
func (ing *Ingest) Start() error {
	if token := ing.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect to broker: %w", token.Error())
	}
	return nil
}

// Shutdown unsubscribes and disconnects, allowing in-flight work a moment
// to drain.
func (ing *Ingest) Shutdown() {
	ing.evHandler("ingest: shutdown: started")
	defer ing.evHandler("ingest: shutdown: completed")

	if token := ing.client.Unsubscribe(ing.topic); token.Wait() && token.Error() != nil {
		ing.evHandler("ingest: unsubscribe: ERROR: %s", token.Error())
	}
	ing.client.Disconnect(250)
}

// onMessage handles one telemetry message. Non-JSON payloads are ignored
// silently; field devices share topics with chatter we don't record.
func (ing *Ingest) onMessage(_ mqtt.Client, msg mqtt.Message) {
	var content map[string]any
	if err := json.Unmarshal(msg.Payload(), &content); err != nil {
		return
	}

	ing.evHandler("ingest: message: topic[%s]", msg.Topic())

	deviceID := ing.deviceID
	if id, ok := content["device_id"].(string); ok && id != "" {
		deviceID = id
	}

	tx := transaction.New(content, deviceID)
	if _, err := ing.chain.AddTransaction(tx); err != nil {
		ing.evHandler("ingest: add transaction: ERROR: %s", err)
		return
	}

	b, _ := ing.chain.MinePendingTransactions(ing.deviceID)

	if err := ing.state.Save(); err != nil {
		ing.evHandler("ingest: save: ERROR: %s", err)
	}

	ing.evHandler("ingest: mined: index[%d] hash[%s] tx[%s]", b.Index, b.Hash, tx.TransactionID)
}

// newTLSConfig builds the mutual-TLS configuration for the broker
// connection.
func newTLSConfig(caFile, certFile, keyFile string) (*tls.Config, error) {
	ca, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read ca file: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(ca) {
		return nil, fmt.Errorf("parse ca file %s", caFile)
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}

	return &tls.Config{
		RootCAs:      pool,
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
