package xviper

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"

	"github.com/sbomtools/sbomdiff/common"
)

// Thin wrapper around viper holding persistent tool state under the
// product home. Loaded lazily, written through on every Set.
var (
	pipeline  chan command
	lifeline  sync.Once
)

type command func(*viper.Viper)

func runner(commands chan command) {
	config := viper.New()
	config.SetConfigFile(configLocation())
	config.ReadInConfig()
	for todo := range commands {
		todo(config)
	}
}

func ensure() {
	lifeline.Do(func() {
		pipeline = make(chan command)
		go runner(pipeline)
	})
}

func configLocation() string {
	return filepath.Join(common.Home(), "sbomdiff.yaml")
}

func Set(key string, value interface{}) {
	ensure()
	done := make(chan bool)
	pipeline <- func(config *viper.Viper) {
		defer close(done)
		config.Set(key, value)
		os.MkdirAll(common.Home(), 0o750)
		if err := config.WriteConfigAs(configLocation()); err != nil {
			common.Uncritical("config write", err)
		}
	}
	<-done
}

func GetString(key string) string {
	ensure()
	result := make(chan string)
	pipeline <- func(config *viper.Viper) {
		result <- config.GetString(key)
	}
	return <-result
}

func GetBool(key string) bool {
	ensure()
	result := make(chan bool)
	pipeline <- func(config *viper.Viper) {
		result <- config.GetBool(key)
	}
	return <-result
}

func GetInt(key string) int {
	ensure()
	result := make(chan int)
	pipeline <- func(config *viper.Viper) {
		result <- config.GetInt(key)
	}
	return <-result
}
