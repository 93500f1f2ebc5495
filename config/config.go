package config

import (
	"github.com/kelseyhightower/envconfig"
)

type (
	// Env holds the values of environment variable based configuration
	Env struct {
		Host           string `envconfig:"HOST" default:"127.0.0.1"`
		Port           int    `envconfig:"PORT" default:"8080"`
		RulesFilePath  string `envconfig:"HTTPSRV_RULES" default:"./httpsrv.yaml"`
		ConfigBasePath string `envconfig:"HTTPSRV_BASE_PATH" default:"/httpsrv"`
		LogLevel       string `envconfig:"LOG_LEVEL" default:"debug"`
	}
)

// New returns a new Env config
func New() *Env {
	cfg := &Env{}

	envconfig.MustProcess("", cfg)

	return cfg
}
