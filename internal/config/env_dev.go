//go:build dev

package config

import (
	"os"

	"github.com/joho/godotenv"
)

// loadDotEnv reads .env.local and then .env; values already in the environment win, and
// .env.local wins over .env.
func loadDotEnv() error {
	var files []string
	for _, name := range []string{".env.local", ".env"} {
		if _, err := os.Stat(name); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		files = append(files, name)
	}
	if len(files) == 0 {
		return nil
	}
	return godotenv.Load(files...)
}
