package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const defaultPath = "."

type Config struct {
	Env struct {
		Env         string `json:"env" yaml:"env"`
		ServiceName string `json:"serviceName" yaml:"serviceName"`
		Debug       bool   `json:"debug" yaml:"debug"`
		Log         Log    `json:"log" yaml:"log"`
	} `json:"env" yaml:"env"`

	HTTP struct {
		Port     int `json:"port" yaml:"port"`
		Timeouts struct {
			ReadTimeout       time.Duration `json:"readTimeout" yaml:"readTimeout"`
			ReadHeaderTimeout time.Duration `json:"readHeaderTimeout" yaml:"readHeaderTimeout"`
			WriteTimeout      time.Duration `json:"writeTimeout" yaml:"writeTimeout"`
			IdleTimeout       time.Duration `json:"idleTimeout" yaml:"idleTimeout"`
		} `json:"timeouts" yaml:"timeouts"`
	} `json:"http" yaml:"http"`

	// Firebase configuration shared by the identity provider and the document store
	Firebase *FirebaseConfig `json:"firebase" yaml:"firebase"`

	// Identity selects and tunes the identity provider implementation
	Identity *IdentityConfig `json:"identity" yaml:"identity"`

	// Upload configuration for the image upload pipeline
	Upload *UploadConfig `json:"upload" yaml:"upload"`

	// Feed configuration for the live profile feed
	Feed *FeedConfig `json:"feed" yaml:"feed"`

	// PubSub configuration for domain event publishing
	PubSub *PubSubConfig `json:"pubsub" yaml:"pubsub"`

	// QRCode configuration for profile share codes
	QRCode *QRCodeConfig `json:"qrcode" yaml:"qrcode"`

	// TestRoutes configuration for testing endpoints
	TestRoutes *TestRoutesConfig `json:"testRoutes" yaml:"testRoutes"`
}

type Log struct {
	Pretty bool   `json:"pretty" yaml:"pretty"`
	Level  string `json:"level" yaml:"level"`
}

// FirebaseConfig defines the Firebase project used for identity and Firestore.
type FirebaseConfig struct {
	ProjectID       string `json:"projectId" yaml:"projectId"`
	CredentialsPath string `json:"credentialsPath" yaml:"credentialsPath"`
	// WebAPIKey is the client API key used by the Identity Toolkit
	// credential endpoints (password sign-up / sign-in).
	WebAPIKey string `json:"webApiKey" yaml:"webApiKey"`
}

// IdentityConfig selects the identity provider implementation.
type IdentityConfig struct {
	// Provider type: "firebase" for the hosted provider or "local" for
	// the in-memory development provider.
	Provider string `json:"provider" yaml:"provider"`

	// Local provider settings (ignored for the firebase provider)
	LocalSecret   string        `json:"localSecret" yaml:"localSecret"`
	LocalTokenTTL time.Duration `json:"localTokenTtl" yaml:"localTokenTtl"`
	BcryptCost    int           `json:"bcryptCost" yaml:"bcryptCost"`
}

// UploadConfig defines limits and the blob backend for image uploads.
type UploadConfig struct {
	// Provider type: "cloudinary" or "bucket"
	Provider string `json:"provider" yaml:"provider"`

	MaxSizeBytes int64    `json:"maxSizeBytes" yaml:"maxSizeBytes"`
	AllowedTypes []string `json:"allowedTypes" yaml:"allowedTypes"`

	Cloudinary *CloudinaryConfig `json:"cloudinary" yaml:"cloudinary"`
	Bucket     *BucketConfig     `json:"bucket" yaml:"bucket"`
}

// CloudinaryConfig defines the unsigned upload target on the image CDN.
type CloudinaryConfig struct {
	CloudName    string `json:"cloudName" yaml:"cloudName"`
	UploadPreset string `json:"uploadPreset" yaml:"uploadPreset"`
	Folder       string `json:"folder" yaml:"folder"`
}

// BucketConfig defines a gocloud.dev blob bucket upload target.
type BucketConfig struct {
	// URL is a gocloud.dev bucket URL, e.g. "gs://my-bucket" or "file:///tmp/blobs"
	URL string `json:"url" yaml:"url"`
	// PublicBaseURL is prepended to the object key to form the returned public URL
	PublicBaseURL string `json:"publicBaseUrl" yaml:"publicBaseUrl"`
}

// FeedConfig defines tunables for the live profile feed.
type FeedConfig struct {
	// RefreshSettleDelay is the cosmetic settle window for pull-to-refresh
	RefreshSettleDelay time.Duration `json:"refreshSettleDelay" yaml:"refreshSettleDelay"`
}

// PubSubConfig defines Pub/Sub configuration for event publishing.
type PubSubConfig struct {
	// Provider type: "local" for local HTTP or "google" for Google Pub/Sub
	Provider string `json:"provider" yaml:"provider"`

	// Google Cloud project ID (for google provider)
	ProjectID string `json:"projectId" yaml:"projectId"`

	// Pub/Sub topic ID (for google provider)
	TopicID string `json:"topicId" yaml:"topicId"`

	// Local HTTP endpoint for development (for local provider)
	LocalEndpoint string `json:"localEndpoint" yaml:"localEndpoint"`
}

// QRCodeConfig defines QR code generation configuration.
type QRCodeConfig struct {
	Size                 int    `json:"size" yaml:"size"`
	ErrorCorrectionLevel string `json:"errorCorrectionLevel" yaml:"errorCorrectionLevel"`
	// ShareBaseURL is the public link prefix encoded into profile share codes
	ShareBaseURL string `json:"shareBaseUrl" yaml:"shareBaseUrl"`
}

// TestRoutesConfig defines configuration for testing endpoints.
type TestRoutesConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// LoadWithEnv loads .yaml files through koanf.
func LoadWithEnv[T any](currEnv string, configPath ...string) (*T, error) {
	cfg := new(T)
	koanfInstance := koanf.New(".")

	// Build list of paths to search for config file
	searchPaths := []string{defaultPath}
	if len(configPath) != 0 {
		pwd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(err, "os.Getwd")
		}
		for _, path := range configPath {
			abs := filepath.Join(pwd, path)
			searchPaths = append(searchPaths, abs)
		}
	}

	// Try to find and load the config file
	var configFile string
	var found bool
	for _, path := range searchPaths {
		candidate := filepath.Join(path, currEnv+".yaml")
		if _, err := os.Stat(candidate); err == nil {
			configFile = candidate
			found = true

			break
		}
	}

	if !found {
		return nil, errors.Errorf("config file %s.yaml not found in any search path", currEnv)
	}

	// Load YAML config file
	if err := koanfInstance.Load(file.Provider(configFile), yaml.Parser()); err != nil {
		return nil, errors.Wrapf(err, "read %s config failed", currEnv)
	}

	existingConfigMap := koanfInstance.Raw()

	// Load environment variables
	if err := koanfInstance.Load(env.Provider(".", env.Opt{
		TransformFunc: func(k, v string) (string, any) {
			// Convert ENV_VAR_NAME to path and align each segment with existing YAML keys.
			// Example: FIREBASE_WEBAPIKEY -> firebase.webApiKey (not firebase.webapikey)
			key := canonicalizeEnvKey(k, existingConfigMap)

			return key, v
		},
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load env variables failed")
	}

	// Unmarshal into the config struct (case-insensitive to match env vars)
	if err := koanfInstance.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
			MatchName: func(mapKey, fieldName string) bool {
				// Case-insensitive matching for env var overrides
				return strings.EqualFold(mapKey, fieldName)
			},
		},
	}); err != nil {
		return nil, errors.Wrapf(err, "unmarshal %s config failed", currEnv)
	}

	return cfg, nil
}

func New() (*Config, error) {
	return LoadWithEnv[Config]("config", "config", "../config", "../../config")
}

func canonicalizeEnvKey(rawKey string, existing map[string]any) string {
	segments := strings.Split(strings.ToLower(rawKey), "_")
	canonical := make([]string, 0, len(segments))
	current := existing

	for _, segment := range segments {
		if segment == "" {
			continue
		}

		if matched, next, ok := findExistingSegment(current, segment); ok {
			canonical = append(canonical, matched)
			current = next
		} else {
			canonical = append(canonical, segment)
			current = nil
		}
	}

	return strings.Join(canonical, ".")
}

func findExistingSegment(current map[string]any, segment string) (matched string, next map[string]any, ok bool) {
	if len(current) == 0 {
		return "", nil, false
	}

	needle := normalizeToken(segment)
	for key, value := range current {
		if normalizeToken(key) != needle {
			continue
		}

		child, _ := value.(map[string]any)

		return key, child, true
	}

	return "", nil, false
}

func normalizeToken(s string) string {
	var normalized strings.Builder
	normalized.Grow(len(s))

	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		normalized.WriteRune(unicode.ToLower(r))
	}

	return normalized.String()
}
