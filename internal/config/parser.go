// Package config provides configuration file parsing.
package config

import (
	"fmt"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fgeck/wake-on-arp/internal/models"
	"github.com/spf13/viper"
)

// Format is the viper config type a Parser reads.
type Format string

const (
	// FormatConf is the flat "key value" file, read as Java properties.
	FormatConf Format = "properties"
	// FormatYAML is YAML with the same keys.
	FormatYAML Format = "yaml"
)

// DefaultPath is where the daemon looks for its configuration.
const DefaultPath = "/etc/wake-on-arp.conf"

// Parser handles configuration file parsing.
type Parser struct {
	v      *viper.Viper
	format Format
}

// NewParser creates a new configuration parser reading format.
func NewParser(format Format) *Parser {
	v := viper.New()
	v.SetConfigType(string(format))

	v.SetDefault("mode", string(models.ModeActive))
	v.SetDefault("broadcast_ip", "255.255.255.255")
	v.SetDefault("subnet", 24)
	v.SetDefault("probe_window", "500ms")
	v.SetDefault("poll_interval", "5s")
	v.SetDefault("promiscuous", true)

	return &Parser{v: v, format: format}
}

// FormatFor picks the format from a file extension. Anything that is not
// YAML is read as a flat conf file.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatConf
	}
}

// LoadFile loads configuration from a file path.
func LoadFile(path string) (*models.Config, error) {
	return NewParser(FormatFor(path)).LoadFile(path)
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.Config, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a string (useful for testing).
func (p *Parser) LoadReader(content string) (*models.Config, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

//nolint:gocognit,gocyclo // parsing config requires checking many fields
func (p *Parser) parse() (*models.Config, error) {
	cfg := &models.Config{
		Mode:         models.Mode(strings.ToLower(p.v.GetString("mode"))),
		ProbeDevice:  p.v.GetString("net_device"),
		LANDevice:    p.v.GetString("lan_device"),
		Subnet:       p.v.GetInt("subnet"),
		AllowGateway: parseBool(p.v.GetString("allow_gateway")),
		ProbeWindow:  p.v.GetDuration("probe_window"),
		PollInterval: p.v.GetDuration("poll_interval"),
		Promiscuous:  parseBool(p.v.GetString("promiscuous")),
	}

	var err error
	if cfg.BroadcastIP, err = parseIPv4("broadcast_ip", p.v.GetString("broadcast_ip")); err != nil {
		return nil, err
	}

	if cfg.ProbeDevice == "" {
		return nil, fmt.Errorf("net_device is required")
	}
	if cfg.LANDevice == "" {
		return nil, fmt.Errorf("lan_device is required")
	}

	if cfg.Targets, err = p.parseTargets(); err != nil {
		return nil, err
	}

	// Parse optional Telegram config.
	if p.v.IsSet("telegram") {
		cfg.Telegram = &models.TelegramConfig{
			BotToken: p.expandEnv(p.v.GetString("telegram.bot_token")),
			ChatID:   p.expandEnv(p.v.GetString("telegram.chat_id")),
		}

		if cfg.Telegram.BotToken == "" {
			return nil, fmt.Errorf("telegram.bot_token is required when telegram is configured")
		}
		if cfg.Telegram.ChatID == "" {
			return nil, fmt.Errorf("telegram.chat_id is required when telegram is configured")
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parseTargets reads target_ip_N, target_mac_N and target_server_N for
// N = 1, 2, ... until the first missing target_ip_N.
func (p *Parser) parseTargets() ([]models.Target, error) {
	var targets []models.Target

	for n := 1; p.v.IsSet(targetKey("ip", n)); n++ {
		if n > models.MaxTargets {
			return nil, fmt.Errorf("at most %d targets are supported, found %s", models.MaxTargets, targetKey("ip", n))
		}

		ip, err := parseIPv4(targetKey("ip", n), p.v.GetString(targetKey("ip", n)))
		if err != nil {
			return nil, err
		}

		macKey := targetKey("mac", n)
		if !p.v.IsSet(macKey) {
			return nil, fmt.Errorf("%s is required when %s is set", macKey, targetKey("ip", n))
		}
		mac, err := net.ParseMAC(p.v.GetString(macKey))
		if err != nil || len(mac) != 6 {
			return nil, fmt.Errorf("%s: invalid MAC address %q", macKey, p.v.GetString(macKey))
		}

		target := models.Target{IP: ip, MAC: mac}
		if serverKey := targetKey("server", n); p.v.IsSet(serverKey) {
			if target.ServerIP, err = parseIPv4(serverKey, p.v.GetString(serverKey)); err != nil {
				return nil, err
			}
		}

		targets = append(targets, target)
	}

	// Anything numbered past the first gap would be silently ignored.
	for n := len(targets) + 1; n <= models.MaxTargets+1; n++ {
		for _, field := range []string{"ip", "mac", "server"} {
			if key := targetKey(field, n); p.v.IsSet(key) {
				return nil, fmt.Errorf("%s is set but %s is missing; targets must be numbered from 1 without gaps",
					key, targetKey("ip", n))
			}
		}
	}

	return targets, nil
}

func targetKey(field string, n int) string {
	return fmt.Sprintf("target_%s_%d", field, n)
}

func parseIPv4(key, value string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(value))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%s: %w", key, err)
	}
	if !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("%s: %s is not an IPv4 address", key, addr)
	}
	return addr, nil
}

// parseBool accepts "yes" in addition to the strconv forms.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "yes" {
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate performs validation on the loaded configuration.
func Validate(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if cfg.Mode != models.ModeActive && cfg.Mode != models.ModePassive {
		return fmt.Errorf("mode must be one of: active, passive")
	}
	if cfg.ProbeDevice == "" {
		return fmt.Errorf("net_device is required")
	}
	if cfg.LANDevice == "" {
		return fmt.Errorf("lan_device is required")
	}
	if !cfg.BroadcastIP.Is4() {
		return fmt.Errorf("broadcast_ip must be an IPv4 address")
	}
	if cfg.Subnet < 1 || cfg.Subnet > 32 {
		return fmt.Errorf("subnet must be between 1 and 32, got %d", cfg.Subnet)
	}
	if cfg.ProbeWindow <= 0 {
		return fmt.Errorf("probe_window must be positive")
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}

	if len(cfg.Targets) == 0 {
		return fmt.Errorf("at least one target is required (target_ip_1, target_mac_1)")
	}
	if len(cfg.Targets) > models.MaxTargets {
		return fmt.Errorf("at most %d targets are supported, got %d", models.MaxTargets, len(cfg.Targets))
	}

	paired := 0
	for i, t := range cfg.Targets {
		if !t.IP.Is4() {
			return fmt.Errorf("target %d: IPv4 address required", i+1)
		}
		if len(t.MAC) != 6 {
			return fmt.Errorf("target %d: 6-byte MAC address required", i+1)
		}
		if t.HasServer() {
			if !t.ServerIP.Is4() {
				return fmt.Errorf("target %d: server must be an IPv4 address", i+1)
			}
			paired++
		}
	}

	if cfg.Mode == models.ModePassive && paired == 0 {
		return fmt.Errorf("passive mode requires at least one target_server_N")
	}

	return nil
}
