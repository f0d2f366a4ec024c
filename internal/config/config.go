/*
 * Copyright (c) 2024. Frits1980 -- All Rights Reserved
 *
 * This file is part of HEATING-PID project.
 *
 * HEATING-PID is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as the Free Software Foundation,
 * either version 3 of the License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pborman/getopt/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/Frits1980/heating-pid/internal/heatsource"
	"github.com/Frits1980/heating-pid/internal/logger"
	"github.com/Frits1980/heating-pid/internal/valve"
	"github.com/Frits1980/heating-pid/internal/zone"
)

const (
	defaultMQTTURL           = "tcp://127.0.0.1:1883"
	defaultControlTopic      = "heatingpid/control"
	defaultDBFile            = "~/.heatingpid.db"
	defaultConfigFile        = "config.yaml"
	defaultTickInterval      = 30 * time.Second
	defaultSaveInterval      = 60 * time.Minute
	defaultSensorTimeout     = 30 * time.Minute
	defaultSensorMaxAge      = 15 * time.Minute
	defaultFrostTemperature  = 7.0
	defaultOutdoorReference  = 15.0
	defaultSyncLookAhead     = 45 * time.Minute
	defaultSolarThreshold    = 2000.0
	defaultSolarDrop         = 5.0
	DefaultAverageType       = "mean"
	zoneDefaultSetpoint      = 20.0
	zoneDefaultAwayTemp      = 15.0
	zoneDefaultWindowDrop    = 5.0
	defaultKp                = 30.0
	defaultKi                = 0.5
	defaultKd                = 10.0
	defaultKe                = 0.02
	defaultWindowDebounce    = 30 * time.Second
	defaultManualDebounce    = 5 * time.Second
	defaultPresenceAwayDelay = 30 * time.Minute
)

var averageTypes = []string{"mean", "min", "max"}

type MQTTConfig struct {
	URL          string `yaml:"url"`
	ControlTopic string `yaml:"control_topic"`
}

func NewMQTTConfig() *MQTTConfig {
	return &MQTTConfig{URL: defaultMQTTURL, ControlTopic: defaultControlTopic}
}

// HeatSourceConfig is the strategy tuning plus the MQTT wiring of the boiler.
type HeatSourceConfig struct {
	heatsource.Config `yaml:",inline"`

	FlowTempTopic string          `yaml:"flow_temp_topic"`
	CHEnableTopic string          `yaml:"ch_enable_topic,omitempty"`
	PumpTopic     string          `yaml:"pump_topic,omitempty"`
	FlowSensors   []*SensorConfig `yaml:"flow_sensors,omitempty"`
	ReturnSensors []*SensorConfig `yaml:"return_sensors,omitempty"`
}

func (c *HeatSourceConfig) FillDefaults() {
	c.Config.FillDefaults()
	for _, s := range append(append([]*SensorConfig{}, c.FlowSensors...), c.ReturnSensors...) {
		s.FillDefaults()
	}
}

type OutsideConfig struct {
	TemperatureSensors     []*SensorConfig `yaml:"temperature_sensors"`
	TemperatureAverageType string          `yaml:"temperature_average_type"`
	ReferenceTemperature   *float64        `yaml:"reference_temperature"`
}

func (c *OutsideConfig) FillDefaults() {
	for _, s := range c.TemperatureSensors {
		s.FillDefaults()
	}
	if c.TemperatureAverageType == "" {
		c.TemperatureAverageType = DefaultAverageType
	}
	if c.ReferenceTemperature == nil {
		c.ReferenceTemperature = GetPTR(defaultOutdoorReference)
	}
}

type PresenceConfig struct {
	StateConfig `yaml:",inline"`
	AwayDelay   time.Duration `yaml:"away_delay"`
}

type DebounceConfig struct {
	Window time.Duration `yaml:"window"`
	Manual time.Duration `yaml:"manual"`
}

type SolarConfig struct {
	Sensor    *SensorConfig `yaml:"sensor"`
	Threshold float64       `yaml:"threshold"`
	Drop      float64       `yaml:"drop"`
}

type SyncConfig struct {
	Enabled   *bool         `yaml:"enabled"`
	LookAhead time.Duration `yaml:"look_ahead"`
}

type AdaptiveConfig struct {
	zone.LearnerConfig `yaml:",inline"`
	Enabled            *bool `yaml:"enabled"`
}

type Config struct {
	LogLevel             zapcore.Level          `yaml:"log_level"`
	MQTTConfig           *MQTTConfig            `yaml:"mqtt"`
	DBFile               string                 `yaml:"db_file"`
	MetricsListen        string                 `yaml:"metrics_listen,omitempty"`
	TickInterval         time.Duration          `yaml:"tick_interval"`
	SaveInterval         time.Duration          `yaml:"save_interval"`
	SensorFailureTimeout time.Duration          `yaml:"sensor_failure_timeout"`
	FrostTemperature     *float64               `yaml:"frost_temperature"`
	HeatSource           *HeatSourceConfig      `yaml:"heat_source"`
	Outside              *OutsideConfig         `yaml:"outside"`
	Presence             *PresenceConfig        `yaml:"presence,omitempty"`
	Debounce             DebounceConfig         `yaml:"debounce"`
	Valves               valve.Config           `yaml:"valves"`
	Adaptive             AdaptiveConfig         `yaml:"adaptive"`
	Sync                 SyncConfig             `yaml:"sync"`
	Solar                *SolarConfig           `yaml:"solar,omitempty"`
	Zones                map[string]*ZoneConfig `yaml:"zones"`
}

func defConfig() *Config {
	return &Config{
		LogLevel:   zapcore.InfoLevel,
		Zones:      make(map[string]*ZoneConfig),
		HeatSource: &HeatSourceConfig{},
		Outside:    &OutsideConfig{},
		MQTTConfig: NewMQTTConfig(),
		DBFile:     defaultDBFile,
	}
}

func prettyPrint(cfg *Config) {
	d, err := yaml.Marshal(cfg)
	if err != nil {
		logger.L().Error("Failed to marshal config for pretty print", err)
		return
	}
	logger.L().Debugf("--- Config ---\n%s\n\n", string(d))
}

func (cfg *Config) FillDefaults() {
	if cfg.MQTTConfig == nil {
		cfg.MQTTConfig = NewMQTTConfig()
	}
	if cfg.MQTTConfig.URL == "" {
		cfg.MQTTConfig.URL = defaultMQTTURL
	}
	if cfg.MQTTConfig.ControlTopic == "" {
		cfg.MQTTConfig.ControlTopic = defaultControlTopic
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.SaveInterval == 0 {
		cfg.SaveInterval = defaultSaveInterval
	}
	if cfg.SensorFailureTimeout == 0 {
		cfg.SensorFailureTimeout = defaultSensorTimeout
	}
	if cfg.FrostTemperature == nil {
		cfg.FrostTemperature = GetPTR(defaultFrostTemperature)
	}
	if cfg.HeatSource == nil {
		cfg.HeatSource = &HeatSourceConfig{}
	}
	cfg.HeatSource.FillDefaults()
	if cfg.Outside == nil {
		cfg.Outside = &OutsideConfig{}
	}
	cfg.Outside.FillDefaults()
	if cfg.Presence != nil && cfg.Presence.AwayDelay == 0 {
		cfg.Presence.AwayDelay = defaultPresenceAwayDelay
	}
	if cfg.Debounce.Window == 0 {
		cfg.Debounce.Window = defaultWindowDebounce
	}
	if cfg.Debounce.Manual == 0 {
		cfg.Debounce.Manual = defaultManualDebounce
	}
	cfg.Valves.FillDefaults()
	cfg.Adaptive.FillDefaults()
	if cfg.Adaptive.Enabled == nil {
		cfg.Adaptive.Enabled = GetPTR(true)
	}
	if cfg.Sync.Enabled == nil {
		cfg.Sync.Enabled = GetPTR(true)
	}
	if cfg.Sync.LookAhead == 0 {
		cfg.Sync.LookAhead = defaultSyncLookAhead
	}
	if cfg.Solar != nil {
		if cfg.Solar.Threshold == 0 {
			cfg.Solar.Threshold = defaultSolarThreshold
		}
		if cfg.Solar.Drop == 0 {
			cfg.Solar.Drop = defaultSolarDrop
		}
		if cfg.Solar.Sensor != nil {
			cfg.Solar.Sensor.FillDefaults()
		}
	}
	for _, z := range cfg.Zones {
		if z != nil {
			z.FillDefaults()
		}
	}
}

// Validate checks the filled configuration and parses zone schedules.
func (cfg *Config) Validate() error {
	if len(cfg.Zones) == 0 {
		return errors.New("no zones configured")
	}
	hs := cfg.HeatSource
	if hs.FlowTempTopic == "" {
		return errors.New("heat_source: flow_temp_topic is required")
	}
	if hs.MinOutput <= 0 || hs.MinOutput >= hs.MaxOutput {
		return errors.Errorf("heat_source: need 0 < min_output (%v) < max_output (%v)", hs.MinOutput, hs.MaxOutput)
	}
	if hs.HardwareMax < hs.MinOutput {
		return errors.Errorf("heat_source: hardware_max %v below min_output %v", hs.HardwareMax, hs.MinOutput)
	}
	if hs.MinIgnitionLevel < 0 || hs.MinIgnitionLevel > 100 {
		return errors.Errorf("heat_source: min_ignition_level %v out of 0..100", hs.MinIgnitionLevel)
	}
	if h := *hs.IgnitionHysteresis; h < 0 || h > hs.MinIgnitionLevel {
		return errors.Errorf("heat_source: ignition_hysteresis %v out of 0..min_ignition_level", h)
	}
	if err := checkAverageType(cfg.Outside.TemperatureAverageType); err != nil {
		return errors.WithMessage(err, "outside")
	}
	if h := *cfg.Valves.MaintenanceHour; h < 0 || h > 23 {
		return errors.Errorf("valves: maintenance_hour %d out of 0..23", h)
	}
	a := cfg.Adaptive
	if a.Min <= 0 || a.Min > a.Max || a.Initial < a.Min || a.Initial > a.Max {
		return errors.Errorf("adaptive: need 0 < min_factor <= initial_factor <= max_factor, got %v/%v/%v",
			a.Min, a.Initial, a.Max)
	}
	if cfg.Presence != nil && cfg.Presence.Topic == "" {
		return errors.New("presence: topic is required")
	}
	if cfg.Solar != nil && (cfg.Solar.Sensor == nil || cfg.Solar.Sensor.Topic == "") {
		return errors.New("solar: sensor topic is required")
	}

	for _, name := range cfg.ZoneNames() {
		z := cfg.Zones[name]
		if z == nil {
			return errors.Errorf("zone %s: empty definition", name)
		}
		if strings.ContainsAny(name, "/#+") {
			return errors.Errorf("zone %s: name must not contain MQTT wildcards or '/'", name)
		}
		if err := z.validate(name); err != nil {
			return err
		}
	}
	return nil
}

// ZoneNames returns zone names in a stable order.
func (cfg *Config) ZoneNames() []string {
	names := make([]string, 0, len(cfg.Zones))
	for n := range cfg.Zones {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (cfg *Config) StatusTopic() string {
	return cfg.MQTTConfig.ControlTopic + "/status"
}

// Load reads, fills and validates a configuration file.
func Load(configFile string) (*Config, error) {
	cfg := defConfig()
	if err := readFile(cfg, configFile); err != nil {
		return nil, err
	}
	cfg.FillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Get parses command line flags and loads the configuration they point to.
func Get() (*Config, error) {
	helpFlag := false
	getopt.FlagLong(&helpFlag, "help", 'h', "display help")
	logLevel := getopt.StringLong("log-level", 'l', "", "log levels: debug, info, warn, error, dpanic, panic, fatal")
	configFile := getopt.StringLong("config", 'c', defaultConfigFile, "config file pathname")
	dbFile := getopt.StringLong("db", 'd', "", "DB file pathname")

	getopt.Parse()
	if helpFlag {
		getopt.Usage()
		os.Exit(0)
	}

	logger.L().Infof("Using config file `%v`", *configFile)
	cfg, err := Load(*configFile)
	if err != nil {
		return nil, errors.WithMessagef(err, "config %s", *configFile)
	}

	if *dbFile != "" {
		cfg.DBFile = *dbFile
	}
	cfg.DBFile = expandHome(cfg.DBFile)
	logger.L().Infof("Using DB file `%v`", cfg.DBFile)

	if *logLevel != "" {
		if err := cfg.LogLevel.Set(*logLevel); err != nil {
			logger.L().Errorf("Wrong log level `%v`: %v", *logLevel, err)
		}
	}
	logger.SetLogLevel(cfg.LogLevel)

	prettyPrint(cfg)

	return cfg, nil
}

func checkAverageType(t string) error {
	for _, a := range averageTypes {
		if a == t {
			return nil
		}
	}
	return errors.Errorf("unknown average type `%v`, expected one of %v", t, averageTypes)
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	return err == nil && !info.IsDir()
}

func readFile(cfg *Config, configFileName string) error {
	if !fileExists(configFileName) {
		return fmt.Errorf("config file `%v` not found", configFileName)
	}

	f, err := os.Open(configFileName)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	return nil
}
