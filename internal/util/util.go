package util

import (
	"time"

	"github.com/berfenger/gridpoll2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel:           zap.DebugLevel,
		FetchTimeout:       5 * time.Second,
		SetupRetryInterval: time.Second,
		MQTT: config.MQTTConfig{
			Host:                 "localhost",
			Port:                 1883,
			BaseTopic:            "gridpoll",
			HADiscoveryEnable:    true,
			HADiscoveryTopic:     "homeassistant",
			HADiscoveryInterval:  10 * time.Minute,
			StateRefreshInterval: 5 * time.Minute,
		},
		Port: 8080,
	}
}
