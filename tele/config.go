package tele

type Config struct {
	Enabled           bool   `hcl:"enable" yaml:"enable"`
	LogDebug          bool   `hcl:"log_debug" yaml:"log_debug"`
	ClientID          string `hcl:"client_id" yaml:"client_id"`
	KeepaliveSec      int    `hcl:"keepalive_sec" yaml:"keepalive_sec"`
	MqttBroker        string `hcl:"mqtt_broker" yaml:"mqtt_broker"`
	MqttLogDebug      bool   `hcl:"mqtt_log_debug" yaml:"mqtt_log_debug"`
	MqttUsername      string `hcl:"mqtt_username" yaml:"mqtt_username"`
	MqttPassword      string `hcl:"mqtt_password" yaml:"mqtt_password"` // secret
	NetworkTimeoutSec int    `hcl:"network_timeout_sec" yaml:"network_timeout_sec"`
	QueueSize         int    `hcl:"queue_size" yaml:"queue_size"`
	TlsCaFile         string `hcl:"tls_ca_file" yaml:"tls_ca_file"`
	TopicPrefix       string `hcl:"topic_prefix" yaml:"topic_prefix"`
}
