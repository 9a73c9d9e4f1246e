package config

import (
	"errors"
	"fmt"
	"os"
	"raremblems/internal/telemetry"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ErrFatalConfig is returned when the configuration cannot be used, before any network call is made.
var ErrFatalConfig = errors.New("invalid configuration")

const EnvPrefix = "RAREMBLEMS"

type CacheConfig struct {
	// Dir is the directory of the file cache, used when Dsn is empty.
	Dir string `json:"dir" envconfig:"DIR"`
	// Dsn is a sqlite path or a libsql url, when set the cache lives in a database instead.
	Dsn string `json:"dsn" envconfig:"DSN"`
}

type Config struct {
	ApiKey       string `json:"api_key" envconfig:"API_KEY" validate:"required"`
	ClientId     string `json:"client_id" envconfig:"CLIENT_ID" validate:"required"`
	ClientSecret string `json:"client_secret" envconfig:"CLIENT_SECRET" validate:"required"`

	AuthorizeUrl string `json:"authorize_url" envconfig:"AUTHORIZE_URL" validate:"required,url"`
	TokenUrl     string `json:"token_url" envconfig:"TOKEN_URL" validate:"required,url"`
	ApiBaseUrl   string `json:"api_base_url" envconfig:"API_BASE_URL" validate:"required,url"`
	RedirectUri  string `json:"redirect_uri" envconfig:"REDIRECT_URI" validate:"required,url"`
	TlsCertFile  string `json:"tls_cert_file" envconfig:"TLS_CERT_FILE" validate:"required_with=TlsKeyFile"`
	TlsKeyFile   string `json:"tls_key_file" envconfig:"TLS_KEY_FILE" validate:"required_with=TlsCertFile"`

	RarityBaseUrl string `json:"rarity_base_url" envconfig:"RARITY_BASE_URL" validate:"required,url"`
	Locale        string `json:"locale" envconfig:"LOCALE" validate:"required"`

	TopN   int    `json:"top_n" envconfig:"TOP_N" validate:"gte=0"`
	Output string `json:"output" envconfig:"OUTPUT"`

	CallbackTimeout string `json:"callback_timeout" envconfig:"CALLBACK_TIMEOUT" validate:"required,duration"`
	PoliteDelay     string `json:"polite_delay" envconfig:"POLITE_DELAY" validate:"required,duration"`
	// Retries is the amount of times a failed platform request is retried, 0 means fail on the first error.
	Retries int `json:"retries" envconfig:"RETRIES" validate:"gte=0,lte=10"`

	// HttpDumpDir is a directory every platform and rarity exchange is written to, for debugging.
	HttpDumpDir string `json:"http_dump_dir" envconfig:"HTTP_DUMP_DIR"`

	Cache     CacheConfig      `json:"cache" envconfig:"CACHE"`
	Telemetry telemetry.Config `json:"telemetry" ignored:"true"`
}

func Defaults() Config {
	return Config{
		AuthorizeUrl:    "https://www.bungie.net/en/OAuth/Authorize",
		TokenUrl:        "https://www.bungie.net/platform/app/oauth/token/",
		ApiBaseUrl:      "https://www.bungie.net",
		RedirectUri:     "https://localhost:8721/callback",
		RarityBaseUrl:   "https://www.light.gg/db/items/",
		Locale:          "en",
		TopN:            25,
		Output:          "my_emblems_rarity.csv",
		CallbackTimeout: "5m",
		PoliteDelay:     "500ms",
		Cache: CacheConfig{
			Dir: ".cache_raremblems",
		},
	}
}

// CallbackTimeoutDuration is only valid on a config returned by Load.
func (c Config) CallbackTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.CallbackTimeout)
	return d
}

// PoliteDelayDuration is only valid on a config returned by Load.
func (c Config) PoliteDelayDuration() time.Duration {
	d, _ := time.ParseDuration(c.PoliteDelay)
	return d
}

func validateDuration(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d >= 0
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("duration", validateDuration)
	return v
}

// Load builds the configuration from the following layers, later layers win.
// 1. Defaults()
// 2. the json5 file at path (and its .local override), searched upwards from the cwd
// 3. RAREMBLEMS_* environment variables, a .env file in the cwd is loaded first
//
// Every layer only sets what it names, so a zero set explicitly is kept.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	out := Defaults()
	err := decodeNearest(&out, path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("%w: %w", ErrFatalConfig, err)
	}

	err = envconfig.Process(EnvPrefix, &out)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrFatalConfig, err)
	}

	err = newValidator().Struct(out)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrFatalConfig, err)
	}

	return out, nil
}
