package config

import "fmt"

// Redis configures the shared cache (C1) and OAuth/invitation state backing
// store.
type Redis struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (r Redis) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func loadRedisConfig() Redis {
	return Redis{
		Host:     getEnv("REDIS_HOST", "localhost"),
		Port:     getEnvInt("REDIS_PORT", 6379),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvInt("REDIS_DB", 0),
	}
}
