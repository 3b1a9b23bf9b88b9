package utils

import (
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// LoadConfig reads the optional .env file in path and wires viper to the
// environment so flags and env vars share one lookup surface.
func LoadConfig(path string) {
	envFile := filepath.Join(path, ".env")
	if err := godotenv.Load(envFile); err == nil {
		logrus.Debugf("[CONFIG] loaded environment from %s", envFile)
	}

	viper.AutomaticEnv()
}
