package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"

	"github.com/annel0/voxel-core/internal/logging"
	"github.com/annel0/voxel-core/internal/network"
)

// Config корневая структура конфигурации сервера и клиента.
// После Load значение не меняется и передаётся по указателю.
type Config struct {
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Network    NetworkConfig    `yaml:"network" toml:"network"`
	Scheduling SchedulingConfig `yaml:"scheduling" toml:"scheduling"`
	World      WorldConfig      `yaml:"world" toml:"world"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
	EventBus   EventBusConfig   `yaml:"eventbus" toml:"eventbus"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" toml:"telemetry"`
}

type ServerConfig struct {
	UDPPort          int     `yaml:"udp_port" toml:"udp_port"`
	HTTPPort         int     `yaml:"http_port" toml:"http_port"`
	MapDir           string  `yaml:"map_dir" toml:"map_dir"`
	StorageBackend   string  `yaml:"storage_backend" toml:"storage_backend"`
	CreativeMode     bool    `yaml:"creative_mode" toml:"creative_mode"`
	SaveInterval     float64 `yaml:"save_interval" toml:"save_interval"`
	AdminTokenSecret string  `yaml:"admin_token_secret" toml:"admin_token_secret"`
}

// Порты по умолчанию
const (
	DefaultUDPPort  = 30000
	DefaultHTTPPort = 30080
)

// GetUDPPort возвращает UDP порт с поддержкой fallback значений
func (s *ServerConfig) GetUDPPort() int {
	return getPortWithEnvFallback(s.UDPPort, "VOXEL_UDP_PORT", DefaultUDPPort)
}

// GetHTTPPort возвращает порт admin API с поддержкой fallback значений
func (s *ServerConfig) GetHTTPPort() int {
	return getPortWithEnvFallback(s.HTTPPort, "VOXEL_HTTP_PORT", DefaultHTTPPort)
}

// NetworkConfig - параметры транспорта. Времена в секундах.
type NetworkConfig struct {
	ProtocolID       uint32  `yaml:"protocol_id" toml:"protocol_id"`
	MaxPacketSize    int     `yaml:"max_packet_size" toml:"max_packet_size"`
	PeerTimeout      float64 `yaml:"peer_timeout" toml:"peer_timeout"`
	ResendTimeout    float64 `yaml:"resend_timeout" toml:"resend_timeout"`
	MaxResendTimeout float64 `yaml:"max_resend_timeout" toml:"max_resend_timeout"`
	PingInterval     float64 `yaml:"ping_interval" toml:"ping_interval"`
}

// Options переводит конфигурацию в параметры network.Connection.
func (n *NetworkConfig) Options() network.Options {
	opts := network.DefaultOptions()
	opts.ProtocolID = n.ProtocolID
	opts.MaxPacketSize = n.MaxPacketSize
	opts.PeerTimeout = seconds(n.PeerTimeout)
	opts.ResendTimeout = seconds(n.ResendTimeout)
	opts.MaxResendTimeout = seconds(n.MaxResendTimeout)
	opts.PingInterval = seconds(n.PingInterval)
	return opts
}

// SchedulingConfig - ограничения рассылки блоков клиентам.
type SchedulingConfig struct {
	MaxBlockSendsPerClient      int     `yaml:"max_simultaneous_block_sends_per_client" toml:"max_simultaneous_block_sends_per_client"`
	MaxBlockSendsServerTotal    int     `yaml:"max_simultaneous_block_sends_server_total" toml:"max_simultaneous_block_sends_server_total"`
	LimitedMaxBlockSends        int     `yaml:"limited_max_simultaneous_block_sends" toml:"limited_max_simultaneous_block_sends"`
	FullSendMinTimeFromBuilding float64 `yaml:"full_block_send_enable_min_time_from_building" toml:"full_block_send_enable_min_time_from_building"`
	DisableLimitsMaxD           int     `yaml:"block_send_disable_limits_max_d" toml:"block_send_disable_limits_max_d"`
	MaxBlockSendDistance        int     `yaml:"max_block_send_distance" toml:"max_block_send_distance"`
	MaxBlockGenerateDistance    int     `yaml:"max_block_generate_distance" toml:"max_block_generate_distance"`
	ObjectDataInterval          float64 `yaml:"objectdata_interval" toml:"objectdata_interval"`
	NearestUnsentResetInterval  float64 `yaml:"nearest_unsent_reset_interval" toml:"nearest_unsent_reset_interval"`
	EmergeTriggerInterval       float64 `yaml:"emerge_trigger_interval" toml:"emerge_trigger_interval"`
	ClientInfoInterval          float64 `yaml:"client_info_interval" toml:"client_info_interval"`
}

type WorldConfig struct {
	Seed            int64 `yaml:"seed" toml:"seed"`
	GenerationLimit int   `yaml:"generation_limit" toml:"generation_limit"`
}

type LoggingConfig struct {
	ConsoleLevel string `yaml:"console_level" toml:"console_level"`
	FileLevel    string `yaml:"file_level" toml:"file_level"`
	FileEnabled  bool   `yaml:"file_enabled" toml:"file_enabled"`
	Dir          string `yaml:"dir" toml:"dir"`
}

// Settings переводит конфигурацию в настройки логгера.
func (l *LoggingConfig) Settings() (logging.Settings, error) {
	s := logging.DefaultSettings()
	var err error
	if s.ConsoleLevel, err = logging.ParseLevel(l.ConsoleLevel); err != nil {
		return s, err
	}
	if s.FileLevel, err = logging.ParseLevel(l.FileLevel); err != nil {
		return s, err
	}
	s.FileEnabled = l.FileEnabled
	if l.Dir != "" {
		s.Dir = l.Dir
	}
	return s, nil
}

type EventBusConfig struct {
	URL       string `yaml:"url" toml:"url"`
	Stream    string `yaml:"stream" toml:"stream"`
	Retention int    `yaml:"retention_hours" toml:"retention_hours"`
}

type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled" toml:"enabled"`
	ServiceName string  `yaml:"service_name" toml:"service_name"`
	Endpoint    string  `yaml:"endpoint" toml:"endpoint"`
	Insecure    bool    `yaml:"insecure" toml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio" toml:"sample_ratio"`
}

// Default возвращает полностью заполненную конфигурацию.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			MapDir:         "map",
			StorageBackend: "badger",
			SaveInterval:   60,
		},
		Network: NetworkConfig{
			ProtocolID:       network.ProtocolID,
			MaxPacketSize:    network.MaxPacketSize,
			PeerTimeout:      network.DefaultPeerTimeout.Seconds(),
			ResendTimeout:    network.DefaultResendTimeout.Seconds(),
			MaxResendTimeout: network.DefaultMaxResendTimeout.Seconds(),
			PingInterval:     network.DefaultPingInterval.Seconds(),
		},
		Scheduling: SchedulingConfig{
			MaxBlockSendsPerClient:      1,
			MaxBlockSendsServerTotal:    4,
			LimitedMaxBlockSends:        1,
			FullSendMinTimeFromBuilding: 2.0,
			DisableLimitsMaxD:           1,
			MaxBlockSendDistance:        8,
			MaxBlockGenerateDistance:    5,
			ObjectDataInterval:          0.2,
			NearestUnsentResetInterval:  5,
			EmergeTriggerInterval:       2,
			ClientInfoInterval:          30,
		},
		World: WorldConfig{
			GenerationLimit: 31000,
		},
		Logging: LoggingConfig{
			ConsoleLevel: "info",
			FileLevel:    "debug",
			Dir:          "logs",
		},
		EventBus: EventBusConfig{
			Stream:    "VOXEL_EVENTS",
			Retention: 24,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "voxel-server",
		},
	}
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}
	return defaultPort
}

// Load читает файл конфигурации: YAML или TOML по расширению.
// Если path == "", берётся VOXEL_CONFIG; если и она пуста, возвращаются
// значения по умолчанию. Отсутствующие в файле поля тоже берутся из Default.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("VOXEL_CONFIG")
	}
	def := Default()
	if path == "" {
		return def, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.fillZeros(def)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fillZeros подставляет значения по умолчанию вместо нулевых.
func (c *Config) fillZeros(def *Config) {
	setStr := func(v *string, d string) {
		if *v == "" {
			*v = d
		}
	}
	setInt := func(v *int, d int) {
		if *v == 0 {
			*v = d
		}
	}
	setF := func(v *float64, d float64) {
		if *v == 0 {
			*v = d
		}
	}

	setStr(&c.Server.MapDir, def.Server.MapDir)
	setStr(&c.Server.StorageBackend, def.Server.StorageBackend)
	setF(&c.Server.SaveInterval, def.Server.SaveInterval)

	if c.Network.ProtocolID == 0 {
		c.Network.ProtocolID = def.Network.ProtocolID
	}
	setInt(&c.Network.MaxPacketSize, def.Network.MaxPacketSize)
	setF(&c.Network.PeerTimeout, def.Network.PeerTimeout)
	setF(&c.Network.ResendTimeout, def.Network.ResendTimeout)
	setF(&c.Network.MaxResendTimeout, def.Network.MaxResendTimeout)
	setF(&c.Network.PingInterval, def.Network.PingInterval)

	s, d := &c.Scheduling, &def.Scheduling
	setInt(&s.MaxBlockSendsPerClient, d.MaxBlockSendsPerClient)
	setInt(&s.MaxBlockSendsServerTotal, d.MaxBlockSendsServerTotal)
	setInt(&s.LimitedMaxBlockSends, d.LimitedMaxBlockSends)
	setF(&s.FullSendMinTimeFromBuilding, d.FullSendMinTimeFromBuilding)
	setInt(&s.DisableLimitsMaxD, d.DisableLimitsMaxD)
	setInt(&s.MaxBlockSendDistance, d.MaxBlockSendDistance)
	setInt(&s.MaxBlockGenerateDistance, d.MaxBlockGenerateDistance)
	setF(&s.ObjectDataInterval, d.ObjectDataInterval)
	setF(&s.NearestUnsentResetInterval, d.NearestUnsentResetInterval)
	setF(&s.EmergeTriggerInterval, d.EmergeTriggerInterval)
	setF(&s.ClientInfoInterval, d.ClientInfoInterval)

	setInt(&c.World.GenerationLimit, def.World.GenerationLimit)

	setStr(&c.Logging.ConsoleLevel, def.Logging.ConsoleLevel)
	setStr(&c.Logging.FileLevel, def.Logging.FileLevel)
	setStr(&c.Logging.Dir, def.Logging.Dir)

	setStr(&c.EventBus.Stream, def.EventBus.Stream)
	setInt(&c.EventBus.Retention, def.EventBus.Retention)
	setStr(&c.Telemetry.ServiceName, def.Telemetry.ServiceName)
}

// Validate отвергает бессмысленные значения.
func (c *Config) Validate() error {
	var errs []error
	s := c.Scheduling
	if s.MaxBlockSendsPerClient < 1 || s.MaxBlockSendsServerTotal < 1 || s.LimitedMaxBlockSends < 1 {
		errs = append(errs, errors.New("scheduling: block send caps must be positive"))
	}
	if s.MaxBlockGenerateDistance > s.MaxBlockSendDistance {
		errs = append(errs, fmt.Errorf("scheduling: max_block_generate_distance %d exceeds max_block_send_distance %d",
			s.MaxBlockGenerateDistance, s.MaxBlockSendDistance))
	}
	if s.MaxBlockSendDistance < 0 || s.DisableLimitsMaxD < 0 {
		errs = append(errs, errors.New("scheduling: distances must not be negative"))
	}
	if c.Network.MaxPacketSize <= network.BaseHeaderSize+network.ReliableHeaderSize+network.SplitHeaderSize {
		errs = append(errs, fmt.Errorf("network: max_packet_size %d too small", c.Network.MaxPacketSize))
	}
	if c.Network.MaxResendTimeout < c.Network.ResendTimeout {
		errs = append(errs, errors.New("network: max_resend_timeout below resend_timeout"))
	}
	switch c.Server.StorageBackend {
	case "badger", "leveldb", "memory":
	default:
		errs = append(errs, fmt.Errorf("server: unknown storage_backend %q", c.Server.StorageBackend))
	}
	if c.World.GenerationLimit <= 0 || c.World.GenerationLimit > 32767 {
		errs = append(errs, fmt.Errorf("world: generation_limit %d out of range", c.World.GenerationLimit))
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("telemetry: sample_ratio %v out of [0,1]", c.Telemetry.SampleRatio))
	}
	if _, err := c.Logging.Settings(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
