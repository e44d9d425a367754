package config

import (
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	HTTP struct {
		Port int
	}
	DB struct {
		Host     string
		Port     int
		Username string
		Password string
		Database string
	}
	Redis struct {
		Addr string
	}
	Queue struct {
		URI             string
		Exchange        string
		Queue           string
		RoutingKey      string
		DeadLetterQueue string
		DeadLetterKey   string
	}
	Processor struct {
		Enabled     bool
		Market      string
		FlatFee     string
		MaxAttempts int
		TxRetries   int
	}
	Ticker struct {
		Enabled         bool
		Market          string
		IntervalSeconds int
	}
	History struct {
		Enabled           bool
		Market            string
		CloseDelayMinutes int
	}
}

func Read(appName string, cfg interface{}) error {
	v := viper.New()

	v.SetConfigName(appName)
	v.AddConfigPath("../../configs/")
	v.AddConfigPath("./configs/")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	err := v.ReadInConfig()
	if err != nil {
		return err
	}
	if cfg != nil {
		err := v.Unmarshal(cfg)
		if err != nil {
			return err
		}
	}
	return nil
}
