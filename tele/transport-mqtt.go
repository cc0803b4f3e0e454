package tele

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"os"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/temoto/linkctl/helpers"
	"github.com/temoto/linkctl/log2"
)

type transportMqtt struct {
	log            *log2.Log
	onControl      func([]byte) bool
	m              mqtt.Client
	mopt           *mqtt.ClientOptions
	networkTimeout time.Duration

	topicPrefix  string
	topicControl string
}

func (self *transportMqtt) Init(ctx context.Context, log *log2.Log, config Config, onControl func([]byte) bool, willPayload []byte) error {
	self.log = log
	self.onControl = onControl
	mqttLog := log.Clone(log2.LDebug)
	mqttLog.SetPrefix("mqtt: ")
	mqtt.CRITICAL = mqttLog
	mqtt.ERROR = mqttLog
	mqtt.WARN = mqttLog
	if config.MqttLogDebug {
		mqtt.DEBUG = mqttLog
	}

	self.topicPrefix = strings.TrimSuffix(config.TopicPrefix, "/")
	if self.topicPrefix == "" {
		self.topicPrefix = defaultTopicPrefix
	}
	self.topicControl = self.topic(TopicControl)
	clientID := config.ClientID
	if clientID == "" {
		clientID = self.topicPrefix
	}

	self.networkTimeout = helpers.IntSecondDefault(config.NetworkTimeoutSec, defaultNetworkTimeout)
	if self.networkTimeout < 1*time.Second {
		self.networkTimeout = 1 * time.Second
	}
	connectTimeout := self.networkTimeout * 3
	keepaliveTimeout := helpers.IntSecondDefault(config.KeepaliveSec, self.networkTimeout/2)

	defaultHandler := func(_ mqtt.Client, msg mqtt.Message) {
		self.log.Errorf("tele: unexpected mqtt message topic=%s", msg.Topic())
	}
	self.mopt = mqtt.NewClientOptions().
		AddBroker(config.MqttBroker).
		SetAutoReconnect(true).
		SetBinaryWill(self.topic(TopicStatus), willPayload, 1, true).
		SetCleanSession(true).
		SetClientID(clientID).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Second).
		SetConnectTimeout(connectTimeout).
		SetDefaultPublishHandler(defaultHandler).
		SetKeepAlive(keepaliveTimeout).
		SetMaxReconnectInterval(connectTimeout).
		SetOnConnectHandler(self.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			self.log.Errorf("tele: mqtt connection lost err=%v", err)
		}).
		SetOrderMatters(true).
		SetPingTimeout(self.networkTimeout).
		SetWriteTimeout(self.networkTimeout)
	if config.MqttUsername != "" {
		self.mopt.SetUsername(config.MqttUsername).SetPassword(config.MqttPassword)
	}
	if config.TlsCaFile != "" {
		cabytes, err := os.ReadFile(config.TlsCaFile)
		if err != nil {
			return errors.Annotate(err, "tls_ca_file")
		}
		tlsconf := &tls.Config{RootCAs: x509.NewCertPool()}
		if !tlsconf.RootCAs.AppendCertsFromPEM(cabytes) {
			return errors.NotValidf("tls_ca_file=%s no certificates", config.TlsCaFile)
		}
		self.mopt.SetTLSConfig(tlsconf)
	}
	self.m = mqtt.NewClient(self.mopt)

	// ConnectRetry keeps trying in background, token completes on first success
	t := self.m.Connect()
	go func() {
		if err := self.tokenWait(t, connectTimeout, "connect"); err != nil {
			self.log.Debugf("tele: first connect err=%v, retrying in background", err)
		}
	}()
	return nil
}

func (self *transportMqtt) Close() {
	self.m.Disconnect(250)
}

func (self *transportMqtt) Publish(topicSuffix string, retained bool, payload []byte) bool {
	t := self.m.Publish(self.topic(topicSuffix), 1, retained, payload)
	err := self.tokenWait(t, self.networkTimeout, "publish "+topicSuffix)
	return err == nil
}

func (self *transportMqtt) topic(suffix string) string { return self.topicPrefix + "/" + suffix }

// clean session, so subscribe on every (re)connect
func (self *transportMqtt) onConnect(c mqtt.Client) {
	self.log.Infof("tele: mqtt connected, subscribe %s", self.topicControl)
	t := c.Subscribe(self.topicControl, 1, self.mqttSubControl)
	go func() { _ = self.tokenWait(t, self.networkTimeout, "subscribe "+self.topicControl) }()
}

func (self *transportMqtt) mqttSubControl(_ mqtt.Client, msg mqtt.Message) {
	if self.onControl(msg.Payload()) {
		msg.Ack()
	}
}

func (self *transportMqtt) tokenWait(t mqtt.Token, timeout time.Duration, tag string) error {
	if !t.WaitTimeout(timeout) {
		err := errors.Errorf("%s timeout", tag)
		self.log.Errorf("tele: MQTT %s", err.Error())
		return err
	}
	if err := t.Error(); err != nil {
		err = errors.Annotate(err, tag)
		self.log.Errorf("tele: MQTT %s", err.Error())
		return err
	}
	return nil
}
