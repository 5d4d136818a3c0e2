package configuration

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds INI-style settings keyed by section and key
type Config struct {
	settings map[string]map[string]string
	filePath string
	mu       sync.RWMutex
}

var (
	globalConfig *Config
	once         sync.Once
)

// sectionOrder fixes the layout of generated files
var sectionOrder = []string{"Server", "Engine", "Runner", "Network", "WebSocket", "Authentication", "JWT", "Database", "TLS", "Debug"}

// Initialize loads the global configuration. A missing file is created with
// defaults; settings.local.cfg, if present, overrides individual keys.
func Initialize(configPath string) error {
	var err error
	once.Do(func() {
		globalConfig, err = loadWithOverrides(configPath, "settings.local.cfg")
	})
	return err
}

// loadWithOverrides loads configPath and merges localPath over it when that
// file exists. An unreadable override file is an error, not a silent skip.
func loadWithOverrides(configPath, localPath string) (*Config, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(localPath); statErr == nil {
		if err := config.loadLocalConfig(localPath); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", localPath, err)
		}
	}
	return config, nil
}

// LoadFile parses a configuration file without touching the global config.
func LoadFile(filePath string) (*Config, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	config := &Config{
		settings: make(map[string]map[string]string),
		filePath: filePath,
	}
	if err := parseINI(file, config.settings); err != nil {
		return nil, err
	}
	return config, nil
}

func loadConfig(filePath string) (*Config, error) {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		config := &Config{
			settings: make(map[string]map[string]string),
			filePath: filePath,
		}
		config.createDefaultConfig()
		if err := config.saveToFile(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %v", err)
		}
		return config, nil
	}
	return LoadFile(filePath)
}

// parseINI merges sections and keys from r into settings
func parseINI(r io.Reader, settings map[string]map[string]string) error {
	scanner := bufio.NewScanner(r)
	currentSection := ""

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			currentSection = line[1 : len(line)-1]
			if settings[currentSection] == nil {
				settings[currentSection] = make(map[string]string)
			}
			continue
		}

		if strings.Contains(line, "=") && currentSection != "" {
			parts := strings.SplitN(line, "=", 2)
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			settings[currentSection][key] = value
		}
	}
	return scanner.Err()
}

func (c *Config) loadLocalConfig(filePath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	return parseINI(file, c.settings)
}

// createDefaultConfig fills in every section the application reads
func (c *Config) createDefaultConfig() {
	c.settings["Server"] = map[string]string{
		"http_port":  "8080",
		"static_dir": "./static",
	}

	// random_seed = 0 seeds '?' from the clock
	c.settings["Engine"] = map[string]string{
		"random_seed": "0",
	}

	c.settings["Runner"] = map[string]string{
		"max_steps":    "10000000",
		"max_run_time": "30s",
		"yield_every":  "4096",
	}

	c.settings["Network"] = map[string]string{
		"pong_timeout":        "90s",
		"write_wait_timeout":  "10s",
		"max_message_size_kb": "64",
		"max_channel_buffer":  "1024",
	}

	c.settings["WebSocket"] = map[string]string{
		"allowed_origins":            "http://localhost:8080,http://127.0.0.1:8080",
		"max_connections_per_minute": "30",
		"read_buffer_size":           "16384",
		"write_buffer_size":          "16384",
	}

	c.settings["Authentication"] = map[string]string{
		"max_username_length": "20",
		"min_username_length": "3",
		"max_password_length": "100",
		"min_password_length": "6",
		"password_hash_cost":  "12",
		"enable_guest_access": "true",
	}

	c.settings["JWT"] = map[string]string{
		"secret_key":             "",
		"token_expiration_hours": "24",
	}

	c.settings["Database"] = map[string]string{
		"path": "retrofunge.db",
	}

	c.settings["TLS"] = map[string]string{
		"enable_tls":           "false",
		"enable_letsencrypt":   "false",
		"self_signed":          "false",
		"domain":               "",
		"letsencrypt_email":    "",
		"cert_cache_dir":       "./certs",
		"force_https_redirect": "false",
		"cert_file":            "./certs/server.crt",
		"key_file":             "./certs/server.key",
		"http_port":            "8080",
		"https_port":           "8443",
	}

	c.settings["Debug"] = map[string]string{
		"enable_debug_logging": "true",
		"log_level":            "INFO",
		"log_file":             "retrofunge.log",
		"max_log_size_mb":      "10",
		"log_rotation_count":   "3",
		"log_engine":           "false",
		"log_runner":           "true",
		"log_websocket":        "false",
		"log_terminal":         "false",
		"log_auth":             "true",
		"log_database":         "false",
		"log_security":         "true",
		"log_session":          "false",
		"log_config":           "true",
		"log_general":          "true",
	}
}

func (c *Config) saveToFile() error {
	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	file, err := os.Create(c.filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	w.WriteString("; retrofunge configuration file\n")
	w.WriteString("; Generated automatically - modify with care\n")
	w.WriteString(";\n\n")

	written := make(map[string]bool)
	sections := append([]string(nil), sectionOrder...)
	var extra []string
	for name := range c.settings {
		extra = append(extra, name)
	}
	sort.Strings(extra)
	sections = append(sections, extra...)

	for _, section := range sections {
		settings, exists := c.settings[section]
		if !exists || written[section] {
			continue
		}
		written[section] = true
		fmt.Fprintf(w, "[%s]\n", section)

		keys := make([]string, 0, len(settings))
		for key := range settings {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(w, "%s = %s\n", key, settings[key])
		}
		w.WriteString("\n")
	}

	return w.Flush()
}

// GetString returns the raw value of section.key
func (c *Config) GetString(section, key, defaultValue string) string {
	if c == nil {
		return defaultValue
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if sectionMap, exists := c.settings[section]; exists {
		if value, exists := sectionMap[key]; exists {
			return value
		}
	}

	return defaultValue
}

// GetString returns a string value from the global configuration
func GetString(section, key, defaultValue string) string {
	return globalConfig.GetString(section, key, defaultValue)
}

// GetInt returns an integer value from the global configuration
func GetInt(section, key string, defaultValue int) int {
	str := GetString(section, key, "")
	if str == "" {
		return defaultValue
	}

	if value, err := strconv.Atoi(str); err == nil {
		return value
	}

	return defaultValue
}

// GetInt64 returns a 64-bit integer value from the global configuration
func GetInt64(section, key string, defaultValue int64) int64 {
	str := GetString(section, key, "")
	if str == "" {
		return defaultValue
	}

	if value, err := strconv.ParseInt(str, 10, 64); err == nil {
		return value
	}

	return defaultValue
}

// GetBool returns a boolean value from the global configuration
func GetBool(section, key string, defaultValue bool) bool {
	str := GetString(section, key, "")
	if str == "" {
		return defaultValue
	}

	if value, err := strconv.ParseBool(str); err == nil {
		return value
	}

	return defaultValue
}

// GetDuration returns a duration value from the global configuration
func GetDuration(section, key string, defaultValue time.Duration) time.Duration {
	str := GetString(section, key, "")
	if str == "" {
		return defaultValue
	}

	if value, err := time.ParseDuration(str); err == nil {
		return value
	}

	return defaultValue
}
