package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// secretsDir - стандартный каталог монтирования Docker Secrets.
const secretsDir = "/run/secrets"

// ReadSecret читает значение секрета из файла в каталоге Docker Secrets.
// Fallback на переменную окружения не делаем: все секреты приходят
// одним путем.
func ReadSecret(name string) (string, error) {
	path := filepath.Join(secretsDir, name)
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", path, err)
	}
	value := strings.TrimSpace(string(raw))
	if value == "" {
		return "", fmt.Errorf("secret file %s is empty", path)
	}
	return value, nil
}
