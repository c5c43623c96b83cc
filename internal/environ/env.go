package environ

import (
	"os"
	"strconv"
	"time"

	"github.com/c2h5oh/datasize"
	"k8s.io/kube-openapi/pkg/validation/strfmt"
)

func GetString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}

	return fallback
}

func GetInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}

	return fallback
}

func GetFloat64(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}

	return fallback
}

func GetBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		return value == "true"
	}

	return fallback
}

func GetDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if t, err := strfmt.ParseDuration(value); err == nil {
			return t
		}
	}
	return fallback
}

// GetSize parses sizes such as "10MB" or "512kb".
func GetSize(key string, fallback datasize.ByteSize) datasize.ByteSize {
	if value, ok := os.LookupEnv(key); ok {
		var size datasize.ByteSize
		if err := size.UnmarshalText([]byte(value)); err == nil {
			return size
		}
	}
	return fallback
}
