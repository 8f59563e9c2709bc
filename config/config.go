// Package config loads the application configuration from struct-tag
// defaults, an ini file, and environment variables, in that ascending
// priority order.
package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-viper/encoding/ini"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	App = new(Config)

	configPaths = []string{}
	configFile  = ""
	configName  = "config"
	configType  = "ini"

	registeredConfigs = make(map[string]any)
	registeredTypes   = make(map[string]reflect.Type)

	inited  bool
	tempdir string
	mu      sync.RWMutex
	cv      *viper.Viper
)

// Config is the root configuration, embedding one section struct per
// concern named in the system overview: the application identity, server
// discovery, session policy, the backing database, the tenant runtime, and
// logging.
type Config struct {
	AppInfo   `json:"app" mapstructure:"app" ini:"app" yaml:"app"`
	Discovery `json:"discovery" mapstructure:"discovery" ini:"discovery" yaml:"discovery"`
	Session   `json:"session" mapstructure:"session" ini:"session" yaml:"session"`
	Database  `json:"database" mapstructure:"database" ini:"database" yaml:"database"`
	Runtime   `json:"runtime" mapstructure:"runtime" ini:"runtime" yaml:"runtime"`
	Logger    `json:"logger" mapstructure:"logger" ini:"logger" yaml:"logger"`
}

// AppInfo identifies the running process and its log directory.
type AppInfo struct {
	Name string `json:"name" mapstructure:"name" ini:"name" yaml:"name" default:"sqlwhitelist"`
	Mode string `json:"mode" mapstructure:"mode" ini:"mode" yaml:"mode" default:"prod"`
	Dir  string `json:"dir" mapstructure:"dir" ini:"dir" yaml:"dir" default:"./data"`
}

func (a *AppInfo) setDefault() {
	cv.SetDefault("app.name", "sqlwhitelist")
	cv.SetDefault("app.mode", "prod")
	cv.SetDefault("app.dir", "./data")
}

// Discovery configures how session.Client locates a server host: either a
// literal, shuffled server list, or a discovery endpoint polled and cached
// for TTL.
type Discovery struct {
	URL     string        `json:"url" mapstructure:"url" ini:"url" yaml:"url"`
	TTL     time.Duration `json:"ttl" mapstructure:"ttl" ini:"ttl" yaml:"ttl" default:"60s"`
	Servers []string      `json:"servers" mapstructure:"servers" ini:"servers" yaml:"servers"`
}

func (d *Discovery) setDefault() {
	cv.SetDefault("discovery.url", "")
	cv.SetDefault("discovery.ttl", "60s")
	cv.SetDefault("discovery.servers", []string{})
}

// Session configures the client-side session core.
type Session struct {
	PreventUnload   bool   `json:"prevent_unload" mapstructure:"prevent_unload" ini:"prevent_unload" yaml:"prevent_unload" default:"true"`
	ProtocolVersion string `json:"protocol_version" mapstructure:"protocol_version" ini:"protocol_version" yaml:"protocol_version" default:"1.0"`
	AppVersion      string `json:"app_version" mapstructure:"app_version" ini:"app_version" yaml:"app_version"`
	AccountID       string `json:"account_id" mapstructure:"account_id" ini:"account_id" yaml:"account_id"`
	VendorHost      string `json:"vendor_host" mapstructure:"vendor_host" ini:"vendor_host" yaml:"vendor_host"`
}

func (s *Session) setDefault() {
	cv.SetDefault("session.prevent_unload", true)
	cv.SetDefault("session.protocol_version", "1.0")
}

// Database configures the gorm-backed executor behind the tenant runtime's
// query execution.
type Database struct {
	Type            string        `json:"type" mapstructure:"type" ini:"type" yaml:"type" default:"sqlite"`
	DSN             string        `json:"dsn" mapstructure:"dsn" ini:"dsn" yaml:"dsn"`
	MaxIdleConns    int           `json:"max_idle_conns" mapstructure:"max_idle_conns" ini:"max_idle_conns" yaml:"max_idle_conns" default:"10"`
	MaxOpenConns    int           `json:"max_open_conns" mapstructure:"max_open_conns" ini:"max_open_conns" yaml:"max_open_conns" default:"100"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" mapstructure:"conn_max_lifetime" ini:"conn_max_lifetime" yaml:"conn_max_lifetime" default:"1h"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" mapstructure:"conn_max_idle_time" ini:"conn_max_idle_time" yaml:"conn_max_idle_time" default:"30m"`
}

func (d *Database) setDefault() {
	cv.SetDefault("database.type", "sqlite")
	cv.SetDefault("database.max_idle_conns", 10)
	cv.SetDefault("database.max_open_conns", 100)
	cv.SetDefault("database.conn_max_lifetime", "1h")
	cv.SetDefault("database.conn_max_idle_time", "30m")
}

// Runtime configures the sandboxed tenant runtime.
type Runtime struct {
	TimerCeiling  int `json:"timer_ceiling" mapstructure:"timer_ceiling" ini:"timer_ceiling" yaml:"timer_ceiling" default:"10"`
	TickBudgetMS  int `json:"tick_budget_ms" mapstructure:"tick_budget_ms" ini:"tick_budget_ms" yaml:"tick_budget_ms" default:"50"`
}

func (r *Runtime) setDefault() {
	cv.SetDefault("runtime.timer_ceiling", 10)
	cv.SetDefault("runtime.tick_budget_ms", 50)
}

// Logger configures the zap-backed structured logging facade.
type Logger struct {
	Level      string `json:"level" mapstructure:"level" ini:"level" yaml:"level" default:"info"`
	Format     string `json:"format" mapstructure:"format" ini:"format" yaml:"format" default:"json"`
	Encoder    string `json:"encoder" mapstructure:"encoder" ini:"encoder" yaml:"encoder" default:"json"`
	File       string `json:"file" mapstructure:"file" ini:"file" yaml:"file" default:"sqlwhitelist.log"`
	MaxAge     int    `json:"max_age" mapstructure:"max_age" ini:"max_age" yaml:"max_age" default:"7"`
	MaxSize    int    `json:"max_size" mapstructure:"max_size" ini:"max_size" yaml:"max_size" default:"100"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups" ini:"max_backups" yaml:"max_backups" default:"10"`
}

func (l *Logger) setDefault() {
	cv.SetDefault("logger.level", "info")
	cv.SetDefault("logger.format", "json")
	cv.SetDefault("logger.encoder", "json")
	cv.SetDefault("logger.file", "sqlwhitelist.log")
	cv.SetDefault("logger.max_age", 7)
	cv.SetDefault("logger.max_size", 100)
	cv.SetDefault("logger.max_backups", 10)
}

// setDefault sets every section's default values.
func (c *Config) setDefault() {
	c.AppInfo.setDefault()
	c.Discovery.setDefault()
	c.Session.setDefault()
	c.Database.setDefault()
	c.Runtime.setDefault()
	c.Logger.setDefault()
}

// Init initializes the application configuration.
//
// Configuration priority (from highest to lowest):
// 1. Environment variables
// 2. Configuration file
// 3. Default values
func Init() (err error) {
	if flag.Lookup("test.v") == nil {
		if tempdir, err = os.MkdirTemp("", "sqlwhitelist_"); err != nil {
			return errors.Wrap(err, "failed to create temp dir")
		}
		fmt.Fprintf(os.Stdout, "create temp dir: %s\n", tempdir)
	}

	codecRegistry := viper.NewCodecRegistry()
	if err = codecRegistry.RegisterCodec("ini", ini.Codec{}); err != nil {
		return err
	}
	cv = viper.NewWithOptions(viper.WithCodecRegistry(codecRegistry))
	cv.AutomaticEnv()
	cv.AllowEmptyEnv(true)
	cv.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	App = new(Config)
	App.setDefault()

	if len(configFile) > 0 {
		cv.SetConfigFile(configFile)
	} else {
		cv.SetConfigName(configName)
		cv.SetConfigType(configType)
	}
	cv.AddConfigPath(".")
	cv.AddConfigPath("/etc/")
	for _, path := range configPaths {
		cv.AddConfigPath(path)
	}

	if err = cv.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			if flag.Lookup("test.v") == nil {
				if err = os.WriteFile(filepath.Join(tempdir, fmt.Sprintf("%s.%s", configName, configType)), nil, 0o600); err != nil {
					return errors.Wrap(err, "failed to create config file")
				}
			}
		} else {
			return errors.Wrap(err, "failed to read config file")
		}
	}
	if err = cv.Unmarshal(App); err != nil {
		return errors.Wrap(err, "failed to unmarshal config")
	}

	for name, typ := range registeredTypes {
		registerType(name, typ)
	}
	inited = true

	return nil
}

func Clean() {
	if len(tempdir) == 0 {
		return
	}
	if err := os.RemoveAll(tempdir); err != nil {
		zap.S().Errorw("failed to remove temp dir", "error", err, "dir", tempdir)
	} else {
		zap.S().Infow("successfully removed temp dir", "dir", tempdir)
	}
}

func Tempdir() string {
	return tempdir
}

// Register registers a custom configuration section into the config
// system. T may be a struct type or a pointer to one; any other kind is
// skipped silently.
//
// Configuration values are loaded in priority order: environment variables
// (SECTION_FIELD), then the config file, then the "default" struct tag.
//
// Register may be called before or after Init; calls before Init are
// deferred until initialization runs.
func Register[T any]() {
	mu.Lock()
	defer mu.Unlock()

	var t T
	typ := reflect.TypeOf(t)
	if typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return
	}

	cfgName := strings.ToLower(typ.Name())
	if inited {
		registerType(cfgName, typ)
	} else {
		registeredTypes[cfgName] = typ
	}
}

func registerType(name string, typ reflect.Type) {
	name = strings.ToLower(name)

	cfg := reflect.New(typ).Interface()
	if err := defaults.Set(cfg); err != nil {
		zap.S().Warnw("failed to set default value", "name", name, "type", typ, "error", err)
	}
	setDefaultDurationFields(typ, reflect.ValueOf(cfg).Elem())

	if err := cv.UnmarshalKey(name, cfg); err != nil {
		zap.S().Warnw("failed to unmarshal config", "name", name, "type", typ, "error", err)
	}

	envCfg := reflect.New(typ).Interface()
	envPrefix := strings.ToUpper(name) + "_"
	v := reflect.ValueOf(envCfg).Elem()
	t := v.Type()
	for i := range t.NumField() {
		field := t.Field(i)
		mapstructureTag := field.Tag.Get("mapstructure")
		if len(mapstructureTag) == 0 {
			continue
		}
		envKey := envPrefix + strings.ToUpper(mapstructureTag)
		envVal, exists := os.LookupEnv(envKey)
		if !exists {
			continue
		}
		fieldVal := v.Field(i)
		switch fieldVal.Kind() {
		case reflect.String:
			fieldVal.SetString(envVal)
		case reflect.Bool:
			if boolVal, err := strconv.ParseBool(envVal); err == nil {
				fieldVal.SetBool(boolVal)
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if field.Type == reflect.TypeFor[time.Duration]() {
				if duration, err := time.ParseDuration(envVal); err == nil {
					fieldVal.SetInt(int64(duration))
				}
			} else if intVal, err := strconv.ParseInt(envVal, 10, 64); err == nil {
				fieldVal.SetInt(intVal)
			}
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if uintVal, err := strconv.ParseUint(envVal, 10, 64); err == nil {
				fieldVal.SetUint(uintVal)
			}
		case reflect.Float32, reflect.Float64:
			if floatVal, err := strconv.ParseFloat(envVal, 64); err == nil {
				fieldVal.SetFloat(floatVal)
			}
		}
	}
	mergeNonZeroFields(reflect.ValueOf(cfg).Elem(), v)

	registeredConfigs[name] = cfg
}

func setDefaultDurationFields(typ reflect.Type, val reflect.Value) {
	if typ.Kind() != reflect.Struct {
		return
	}
	for i := range typ.NumField() {
		fieldTyp := typ.Field(i)
		fieldVal := val.Field(i)

		if fieldTyp.Anonymous && fieldTyp.Type.Kind() == reflect.Struct {
			setDefaultDurationFields(fieldTyp.Type, fieldVal)
			continue
		}

		if fieldTyp.Type == reflect.TypeFor[time.Duration]() {
			if defaultValue, ok := fieldTyp.Tag.Lookup("default"); ok && fieldVal.Interface().(time.Duration) == 0 { //nolint:errcheck
				if duration, err := time.ParseDuration(defaultValue); err == nil {
					fieldVal.Set(reflect.ValueOf(duration))
				} else {
					zap.S().Warnw("failed to parse duration default value", "field", fieldTyp.Name, "default", defaultValue, "error", err)
				}
			}
		}

		if fieldTyp.Type.Kind() == reflect.Struct && !fieldTyp.Anonymous {
			setDefaultDurationFields(fieldTyp.Type, fieldVal)
		}

		if fieldTyp.Type.Kind() == reflect.Pointer && fieldTyp.Type.Elem().Kind() == reflect.Struct {
			if fieldVal.IsNil() {
				fieldVal.Set(reflect.New(fieldTyp.Type.Elem()))
			}
			setDefaultDurationFields(fieldTyp.Type.Elem(), fieldVal.Elem())
		}
	}
}

func mergeNonZeroFields(dst, src reflect.Value) {
	for i := range src.NumField() {
		srcField := src.Field(i)
		if !isZeroValue(srcField) {
			dst.Field(i).Set(srcField)
		}
	}
}

func isZeroValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Bool:
		return !v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.String:
		return v.String() == ""
	case reflect.Slice, reflect.Map:
		return v.Len() == 0
	case reflect.Interface, reflect.Pointer:
		return v.IsNil()
	}
	return false
}

// Get returns the registered custom configuration section. T must match the
// registered type, or a pointer to it; a mismatch returns the zero value.
func Get[T any]() (t T) {
	mu.RLock()
	defer mu.RUnlock()

	var temp T
	typ := reflect.TypeOf(temp)
	if typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return t
	}
	cfgName := strings.ToLower(typ.Name())

	config, exists := registeredConfigs[cfgName]
	if !exists {
		zap.S().Warnw("config not found", "name", cfgName)
		return t
	}

	storedVal := reflect.ValueOf(config)
	storedTyp := storedVal.Elem().Type()
	destTyp := reflect.TypeOf(t)

	if storedTyp == destTyp {
		return storedVal.Elem().Interface().(T) //nolint:errcheck
	}
	if destTyp.Kind() == reflect.Pointer && storedTyp == destTyp.Elem() {
		return storedVal.Interface().(T) //nolint:errcheck
	}

	zap.S().Warnw("config type mismatch", "name", cfgName, "stored", storedTyp.Name(), "dest", destTyp.Name())
	return t
}

// SetConfigFile sets the config file path. Call before Init.
func SetConfigFile(file string) {
	mu.Lock()
	defer mu.Unlock()
	configFile = file
}

// SetConfigName sets the config file name, default "config". Call before Init.
func SetConfigName(name string) {
	mu.Lock()
	defer mu.Unlock()
	configName = name
}

// SetConfigType sets the config file type, default "ini". Call before Init.
func SetConfigType(typ string) {
	mu.Lock()
	defer mu.Unlock()
	configType = typ
}

// AddPath adds a custom config search path. Call before Init.
func AddPath(paths ...string) {
	mu.Lock()
	defer mu.Unlock()
	configPaths = append(configPaths, paths...)
}

// Save writes the config instance to out.
func Save(out io.Writer) error {
	return cv.WriteConfigTo(out)
}
