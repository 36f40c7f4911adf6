package notify

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/gridkey/horizon/core/model"
	"github.com/gridkey/horizon/core/optimizer"
	"github.com/gridkey/horizon/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT notifier.
type Config struct {
	Enabled       bool        `json:"enabled"`
	Broker        string      `json:"broker"`
	ClientID      string      `json:"client_id"`
	Username      string      `json:"username"`
	Password      string      `json:"password"`
	InputTopic    string      `json:"input_topic"`
	ScheduleTopic string      `json:"schedule_topic"`
	QoS           byte        `json:"qos"`
	Retain        bool        `json:"retain"`
	UseTLS        bool        `json:"use_tls"`
	ClientCert    string      `json:"client_cert"`
	ClientKey     string      `json:"client_key"`
	CABundle      string      `json:"ca_bundle"`
	TLSConfig     *tls.Config `json:"-"`
}

// SetDefaults fills unset topics and identifiers.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "horizon-notifier"
	}
	if c.InputTopic == "" {
		c.InputTopic = "horizon/input/ready"
	}
	if c.ScheduleTopic == "" {
		c.ScheduleTopic = "horizon/schedule"
	}
}

// MQTTNotifier publishes milestones via Eclipse Paho.
type MQTTNotifier struct {
	cli           paho.Client
	inputTopic    string
	scheduleTopic string
	qos           byte
	retain        bool
	log           logger.Logger
}

// NewMQTT connects to the broker and returns a notifier.
func NewMQTT(cfg Config) (*MQTTNotifier, error) {
	cfg.SetDefaults()
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}

	log := logger.New("notifier")
	opts.OnConnect = func(paho.Client) { log.Infof("MQTT connected") }
	opts.OnConnectionLost = func(_ paho.Client, err error) { log.Errorf("connection lost: %v", err) }
	opts.OnReconnecting = func(paho.Client, *paho.ClientOptions) { log.Warnf("reconnecting to MQTT broker") }

	cli := paho.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &MQTTNotifier{
		cli:           cli,
		inputTopic:    cfg.InputTopic,
		scheduleTopic: cfg.ScheduleTopic,
		qos:           cfg.QoS,
		retain:        cfg.Retain,
		log:           log,
	}, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// InputReady publishes an announcement for a fresh input. The full record is
// not sent; consumers fetch it by run id.
func (n *MQTTNotifier) InputReady(in *model.OptimizationInput) error {
	msg := struct {
		RunID       string                      `json:"run_id"`
		Start       string                      `json:"start"`
		Degraded    bool                        `json:"degraded"`
		Provenance  map[model.FeedName][]string `json:"provenance"`
		AssembledAt int64                       `json:"assembled_at"`
	}{
		RunID:       in.RunID,
		Start:       in.Horizon.Start.Format(model.WireTimeLayout),
		Degraded:    in.Degraded(),
		Provenance:  in.ProvenanceSummary(),
		AssembledAt: in.AssembledAt.UnixMilli(),
	}
	return n.publish(n.inputTopic, msg)
}

// ScheduleReady publishes the solved schedule summary.
func (n *MQTTNotifier) ScheduleReady(s *optimizer.Schedule) error {
	msg := struct {
		RunID        string  `json:"run_id"`
		Variant      string  `json:"variant"`
		ObjectiveEUR float64 `json:"objective_eur"`
		Points       int     `json:"points"`
		SolverStatus string  `json:"solver_status"`
		Timestamp    int64   `json:"timestamp"`
	}{
		RunID:        s.RunID,
		Variant:      string(s.Variant),
		ObjectiveEUR: s.ObjectiveEUR,
		Points:       len(s.Points),
		SolverStatus: s.SolverStatus,
		Timestamp:    time.Now().UnixMilli(),
	}
	return n.publish(n.scheduleTopic, msg)
}

func (n *MQTTNotifier) publish(topic string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	token := n.cli.Publish(topic, n.qos, n.retain, payload)
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	n.log.Debugf("published to %s", topic)
	return nil
}

// Close disconnects from the broker.
func (n *MQTTNotifier) Close() {
	n.cli.Disconnect(250)
}
