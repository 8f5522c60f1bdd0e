// internal/workers/churn/score-batch/config.go
package scorebatch

import "time"

type Config struct {
	Timeout time.Duration
	// MaxRows caps the records accepted in one job; 0 disables the cap.
	MaxRows int
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 5 * time.Minute,
		MaxRows: 10000,
	}
}
