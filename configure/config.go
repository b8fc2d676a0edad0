package configure

import (
	"strings"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/kr/pretty"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type ServerCfg struct {
	Level           string        `mapstructure:"level"`
	ConfigFile      string        `mapstructure:"config_file"`
	ListenerNetwork string        `mapstructure:"listener_network"`
	ListenerAddress string        `mapstructure:"listener_address"`
	Store           string        `mapstructure:"store"`
	RedisURI        string        `mapstructure:"redis_uri"`
	MongoURI        string        `mapstructure:"mongo_uri"`
	MongoDB         string        `mapstructure:"mongo_db"`
	ExitCode        int           `mapstructure:"exit_code"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	RateWindow      time.Duration `mapstructure:"rate_window"`
	RateLimit       int           `mapstructure:"rate_limit"`
	NotifyBuffer    int           `mapstructure:"notify_buffer"`
	FrontendURL     string        `mapstructure:"frontend_url"`
	AllowedOrigins  string        `mapstructure:"allowed_origins"`
}

const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

// default config
var defaultConf = ServerCfg{
	Level:           "info",
	ConfigFile:      "config.yaml",
	ListenerNetwork: "tcp",
	ListenerAddress: ":3001",
	Store:           StoreMongo,
	MongoDB:         "easyvote",
	SweepInterval:   time.Minute,
	RateWindow:      5 * time.Minute,
	RateLimit:       10,
	NotifyBuffer:    256,
	FrontendURL:     "http://localhost:5173",
	AllowedOrigins:  "*",
}

func initLog(config *viper.Viper) {
	if l, err := log.ParseLevel(config.GetString("level")); err == nil {
		log.SetLevel(l)
	}
	log.SetFormatter(&nested.Formatter{
		HideKeys:    true,
		FieldsOrder: []string{"component", "category"},
	})
}

func setDefaults(config *viper.Viper) {
	d := defaultConf
	config.SetDefault("level", d.Level)
	config.SetDefault("config_file", d.ConfigFile)
	config.SetDefault("listener_network", d.ListenerNetwork)
	config.SetDefault("listener_address", d.ListenerAddress)
	config.SetDefault("store", d.Store)
	config.SetDefault("redis_uri", d.RedisURI)
	config.SetDefault("mongo_uri", d.MongoURI)
	config.SetDefault("mongo_db", d.MongoDB)
	config.SetDefault("exit_code", d.ExitCode)
	config.SetDefault("sweep_interval", d.SweepInterval)
	config.SetDefault("rate_window", d.RateWindow)
	config.SetDefault("rate_limit", d.RateLimit)
	config.SetDefault("notify_buffer", d.NotifyBuffer)
	config.SetDefault("frontend_url", d.FrontendURL)
	config.SetDefault("allowed_origins", d.AllowedOrigins)
}

func flags() *pflag.FlagSet {
	d := defaultConf
	fs := pflag.NewFlagSet("easyvote", pflag.ContinueOnError)
	fs.String("config_file", d.ConfigFile, "configure filename")
	fs.String("level", d.Level, "Log level")
	fs.String("listener_network", d.ListenerNetwork, "Network for the http listener.")
	fs.String("listener_address", d.ListenerAddress, "Address for the http listener.")
	fs.String("store", d.Store, "Backing store, mongo or memory.")
	fs.String("redis_uri", d.RedisURI, "Address for the redis server.")
	fs.String("mongo_uri", d.MongoURI, "Address for the mongodb server.")
	fs.String("mongo_db", d.MongoDB, "Database for the mongodb connection.")
	fs.Duration("sweep_interval", d.SweepInterval, "How often expired polls are closed.")
	fs.Duration("rate_window", d.RateWindow, "Trailing window for per-ip vote counting.")
	fs.Int("rate_limit", d.RateLimit, "Votes allowed from one ip inside the rate window.")
	fs.Int("notify_buffer", d.NotifyBuffer, "Queued poll events before new ones are dropped.")
	fs.String("frontend_url", d.FrontendURL, "Base url used in invitation links.")
	fs.String("allowed_origins", d.AllowedOrigins, "Comma separated origins allowed by CORS and websockets.")
	fs.Int("exit_code", d.ExitCode, "Status code for successful and graceful shutdown, [0-125].")
	return fs
}

// Load layers defaults, the config file, the environment and the given command
// line arguments (highest wins), then configures the global logger.
func Load(args []string) (*viper.Viper, error) {
	config := viper.New()

	// Default config
	setDefaults(config)

	// Flags
	fs := flags()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := config.BindPFlags(fs); err != nil {
		return nil, err
	}

	// Environment
	replacer := strings.NewReplacer(".", "_")
	config.SetEnvKeyReplacer(replacer)
	config.AutomaticEnv()

	// File
	config.SetConfigFile(config.GetString("config_file"))
	if err := config.ReadInConfig(); err != nil {
		log.Debug(err)
		log.Debug("Using default config")
	}

	// Log
	initLog(config)

	// Print final config
	c, err := Unmarshal(config)
	if err != nil {
		return nil, err
	}
	log.Debugf("Current configurations: \n%# v", pretty.Formatter(c))

	return config, nil
}

func Unmarshal(config *viper.Viper) (ServerCfg, error) {
	c := ServerCfg{}
	err := config.Unmarshal(&c)
	return c, err
}
