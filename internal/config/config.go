package config

import (
	"time"

	"github.com/quickcart/usersync/internal/platform/envconfig"
)

type Config struct {
	Port        string `validate:"required"`
	Environment string `validate:"required"`
	Store       StoreConfig
	Webhook     WebhookConfig
	EventBus    EventBusConfig
	Auth        AuthConfig
}

type StoreConfig struct {
	DataStore    string `validate:"required,oneof=mongo firestore memory"`
	GCPProjectID string `validate:"required_if=DataStore firestore"`
	Mongo        MongoConfig
	Firestore    FirestoreConfig
}

type MongoConfig struct {
	URI                    string `validate:"required_if=Enabled true"`
	Database               string `validate:"required_if=Enabled true"`
	MaxPoolSize            int    `validate:"gte=1,lte=500"`
	ServerSelectionTimeout time.Duration
	SocketTimeout          time.Duration
	Enabled                bool
}

type FirestoreConfig struct {
	EmulatorHost string
}

type WebhookConfig struct {
	ClerkSecret string `validate:"required"`
}

type EventBusConfig struct {
	AppID      string `validate:"required"`
	BaseURL    string `validate:"required,url"`
	EventKey   string
	SigningKey string `validate:"required_unless=Dev true"`
	// Dev points the client at a local Inngest dev server, which does not sign requests.
	Dev bool
}

type AuthConfig struct {
	Mode     string `validate:"required,oneof=clerk token none"`
	Token    string `validate:"required_if=Mode token"`
	JWKSURL  string `validate:"required_if=Mode clerk"`
	Audience string
	Issuer   string
	Role     string
}

// Development reports whether APP_ENV asks for debug logging and error detail.
func (c Config) Development() bool {
	return c.Environment == "development"
}

func Load() (Config, error) {
	cfg := Config{
		Port:        envconfig.Get("PORT", "8080"),
		Environment: envconfig.Get("APP_ENV", "production"),
		Store:       loadStore(),
		Webhook: WebhookConfig{
			ClerkSecret: envconfig.Get("CLERK_WEBHOOK_SECRET", ""),
		},
		EventBus: loadEventBus(),
		Auth: AuthConfig{
			Mode:     envconfig.Get("OPERATOR_AUTH_MODE", "token"),
			Token:    envconfig.Get("OPERATOR_TOKEN", ""),
			JWKSURL:  envconfig.Get("CLERK_JWKS_URL", ""),
			Audience: envconfig.Get("CLERK_AUDIENCE", ""),
			Issuer:   envconfig.Get("CLERK_ISSUER", ""),
			Role:     envconfig.Get("OPERATOR_ROLE", "admin"),
		},
	}
	return cfg, envconfig.Validate(cfg)
}

// CLIConfig is the subset needed by the operator command line tool.
type CLIConfig struct {
	Environment string `validate:"required"`
	Store       StoreConfig
	EventBus    CLIEventBusConfig
}

type CLIEventBusConfig struct {
	AppID    string `validate:"required"`
	BaseURL  string `validate:"required,url"`
	EventKey string
	Dev      bool
}

// LoadStore reads the settings the CLI needs. Webhook and signing secrets are not required.
func LoadStore() (CLIConfig, error) {
	bus := loadEventBus()
	cfg := CLIConfig{
		Environment: envconfig.Get("APP_ENV", "production"),
		Store:       loadStore(),
		EventBus:    CLIEventBusConfig{AppID: bus.AppID, BaseURL: bus.BaseURL, EventKey: bus.EventKey, Dev: bus.Dev},
	}
	return cfg, envconfig.Validate(cfg)
}

func loadStore() StoreConfig {
	dataStore := envconfig.Get("DATASTORE", "mongo")
	return StoreConfig{
		DataStore:    dataStore,
		GCPProjectID: envconfig.Get("GCP_PROJECT_ID", "quickcart-dev"),
		Mongo: MongoConfig{
			URI:                    envconfig.Get("MONGODB_URI", ""),
			Database:               envconfig.Get("MONGODB_DATABASE", "quickcart"),
			MaxPoolSize:            envconfig.GetInt("MONGODB_MAX_POOL_SIZE", 10),
			ServerSelectionTimeout: 5 * time.Second,
			SocketTimeout:          30 * time.Second,
			Enabled:                dataStore == "mongo",
		},
		Firestore: FirestoreConfig{
			EmulatorHost: envconfig.Get("FIRESTORE_EMULATOR_HOST", ""),
		},
	}
}

func loadEventBus() EventBusConfig {
	return EventBusConfig{
		AppID:      envconfig.Get("EVENTBUS_APP_ID", "quickcart-next"),
		BaseURL:    envconfig.Get("EVENTBUS_URL", "https://inn.gs"),
		EventKey:   envconfig.Get("EVENTBUS_EVENT_KEY", ""),
		SigningKey: envconfig.Get("EVENTBUS_SIGNING_KEY", ""),
		Dev:        envconfig.GetBool("EVENTBUS_DEV", false),
	}
}
