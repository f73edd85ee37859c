package config

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Application config structure
type AppConfig struct {
	Name     string `mapstructure:"service_name" validate:"required"`
	Version  string `mapstructure:"version" validate:"required"`
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"required"`

	Gateway GatewayConfig `mapstructure:"gateway" validate:"required"`
}

// GatewayConfig configures the WHIP publishing gateway.
type GatewayConfig struct {
	IngestURL   string `mapstructure:"ingest_url" validate:"required,url"`
	BearerToken string `mapstructure:"bearer_token"`

	StunServers []string `mapstructure:"stun_servers"`

	TurnURL        string `mapstructure:"turn_url"`
	TurnUsername   string `mapstructure:"turn_username"`
	TurnCredential string `mapstructure:"turn_credential"`

	VideoCodec   string `mapstructure:"video_codec"`
	AudioCodec   string `mapstructure:"audio_codec"`
	VideoProfile string `mapstructure:"video_profile"`

	ConnectTimeoutMs   int `mapstructure:"connect_timeout_ms"`
	IceGatherTimeoutMs int `mapstructure:"ice_gather_timeout_ms"`
	MetricsIntervalMs  int `mapstructure:"metrics_interval_ms"`
}

// reading config and intializing configs for application
func InitConfig() (*viper.Viper, error) {
	vConfig := viper.NewWithOptions(viper.KeyDelimiter("__"))

	vConfig.AddConfigPath(".")
	vConfig.SetConfigName(".env")
	path := os.Getenv("ENV_PATH")
	if path != "" {
		log.Printf("env path %v", path)
		vConfig.SetConfigFile(path)
	}
	vConfig.SetConfigType("env")
	vConfig.AutomaticEnv()

	setDefault(vConfig)
	if err := vConfig.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		log.Printf("Reading from env variables.")
	}

	return vConfig, nil
}

func setDefault(v *viper.Viper) {
	// setting all default values
	// keeping watch on https://github.com/spf13/viper/issues/188

	v.SetDefault("SERVICE_NAME", "studio-gateway")
	v.SetDefault("VERSION", "0.0.1")
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 9090)
	v.SetDefault("LOG_LEVEL", "debug")

	v.SetDefault("GATEWAY__INGEST_URL", "http://localhost:8080/whip")
	v.SetDefault("GATEWAY__BEARER_TOKEN", "")
	v.SetDefault("GATEWAY__STUN_SERVERS", "stun:stun.l.google.com:19302,stun:stun1.l.google.com:19302")

	v.SetDefault("GATEWAY__TURN_URL", "")
	v.SetDefault("GATEWAY__TURN_USERNAME", "")
	v.SetDefault("GATEWAY__TURN_CREDENTIAL", "")

	v.SetDefault("GATEWAY__VIDEO_CODEC", "video/H264")
	v.SetDefault("GATEWAY__AUDIO_CODEC", "audio/opus")
	v.SetDefault("GATEWAY__VIDEO_PROFILE", "42e01f")

	v.SetDefault("GATEWAY__CONNECT_TIMEOUT_MS", 10000)
	v.SetDefault("GATEWAY__ICE_GATHER_TIMEOUT_MS", 5000)
	v.SetDefault("GATEWAY__METRICS_INTERVAL_MS", 1000)
}

// Getting application config from viper
func GetApplicationConfig(v *viper.Viper) (*AppConfig, error) {
	var config AppConfig
	err := v.Unmarshal(&config)
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}

	// valdating the app config
	validate := validator.New()
	err = validate.Struct(&config)
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}
	return &config, nil
}
