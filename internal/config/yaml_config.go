package config

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// YamlOnlyKeys are configuration keys that must live in config.yaml rather
// than the metadata index's config table, because they gate how the process
// starts up and so must be readable before the database is opened.
var YamlOnlyKeys = map[string]bool{
	"storage_path":   true,
	"enable_git":     true,
	"trust_boundary": true,
}

// IsYamlOnlyKey returns true if key should be stored in config.yaml rather
// than the database.
func IsYamlOnlyKey(key string) bool {
	return YamlOnlyKeys[key]
}

// SetYamlConfig sets key=value in path, preserving surrounding content and
// comments. It updates the key in place if present (even commented out), or
// appends it otherwise.
func SetYamlConfig(path, key, value string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config.yaml: %w", err)
	}
	newContent := updateYamlKey(string(content), key, value)
	if err := os.WriteFile(path, []byte(newContent), 0o600); err != nil {
		return fmt.Errorf("write config.yaml: %w", err)
	}
	return nil
}

// GetYamlConfig reads key from the live viper instance populated by Init.
// Returns "" if Init has not run or the key is unset.
func GetYamlConfig(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// updateYamlKey updates key in content, handling commented-out keys. If key
// exists (commented or not) it is replaced in place and uncommented; if
// absent it is appended.
func updateYamlKey(content, key, value string) string {
	newLine := fmt.Sprintf("%s: %s", key, formatYamlValue(value))
	keyPattern := regexp.MustCompile(`^(\s*)(#\s*)?` + regexp.QuoteMeta(key) + `\s*:`)

	found := false
	var result []string
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		if keyPattern.MatchString(line) {
			indent := ""
			if m := keyPattern.FindStringSubmatch(line); len(m) > 1 {
				indent = m[1]
			}
			result = append(result, indent+newLine)
			found = true
			continue
		}
		result = append(result, line)
	}

	if !found {
		if len(result) > 0 && result[len(result)-1] != "" {
			result = append(result, "")
		}
		result = append(result, newLine)
	}
	return strings.Join(result, "\n")
}

func formatYamlValue(value string) string {
	lower := strings.ToLower(value)
	if lower == "true" || lower == "false" {
		return lower
	}
	if isNumeric(value) {
		return value
	}
	if needsQuoting(value) {
		return fmt.Sprintf("%q", value)
	}
	return value
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		if c == '-' && i == 0 {
			continue
		}
		if c == '.' {
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func needsQuoting(s string) bool {
	special := []string{":", "#", "[", "]", "{", "}", ",", "&", "*", "!", "|", ">", "'", "\"", "%", "@", "`"}
	for _, c := range special {
		if strings.Contains(s, c) {
			return true
		}
	}
	return strings.TrimSpace(s) != s
}
