package config

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

var (
	portalOnce   sync.Once
	portalConfig *PortalConfig
)

type PortalConfig struct {
	Env     string
	APIKey  string
	BaseURL string
	// Timeout bounds a single portal request. Zero means no limit.
	Timeout   time.Duration
	SSMRegion string
}

func GetPortalConfig() *PortalConfig {
	portalOnce.Do(func() {
		portalConfig = LoadPortalConfig()
	})
	return portalConfig
}

func LoadPortalConfig() *PortalConfig {
	loadEnv()
	return &PortalConfig{
		Env:       getEnv("ENV", "local"),
		APIKey:    getEnv("API_KEY", "test"),
		BaseURL:   getEnv("PORTAL_API_URL", "http://host.docker.internal:8000/api/v1/external"),
		Timeout:   getDuration("PORTAL_TIMEOUT", 0),
		SSMRegion: getEnv("SSM_REGION", "ap-southeast-1"),
	}
}

// APIKeyParameter is the parameter store name holding the signing key.
func (c *PortalConfig) APIKeyParameter() string {
	return fmt.Sprintf("/%s/data_access/API_KEY", c.Env)
}

// ParameterStore is the part of the SSM client used to resolve secrets.
type ParameterStore interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// NewParameterStore builds an SSM client from the default AWS credential
// chain.
func NewParameterStore(ctx context.Context, region string) (*ssm.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return ssm.NewFromConfig(awsCfg), nil
}

// ResolveAPIKey returns the signing key. A key that looks like a parameter
// path is a reference: the secret is read from /<ENV>/data_access/API_KEY.
func ResolveAPIKey(ctx context.Context, cfg *PortalConfig, store ParameterStore) (string, error) {
	if !strings.HasPrefix(cfg.APIKey, "/") {
		return cfg.APIKey, nil
	}
	if store == nil {
		return "", fmt.Errorf("API_KEY references a parameter but no parameter store is configured")
	}
	out, err := store.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(cfg.APIKeyParameter()),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", cfg.APIKeyParameter(), err)
	}
	if out.Parameter == nil || aws.ToString(out.Parameter.Value) == "" {
		return "", fmt.Errorf("parameter %s is empty", cfg.APIKeyParameter())
	}
	return aws.ToString(out.Parameter.Value), nil
}

// ResolvePortalConfig loads the portal settings and resolves the API key,
// creating an SSM client only when the key is a reference.
func ResolvePortalConfig(ctx context.Context) (*PortalConfig, error) {
	cfg := *GetPortalConfig()
	if !strings.HasPrefix(cfg.APIKey, "/") {
		return &cfg, nil
	}
	store, err := NewParameterStore(ctx, cfg.SSMRegion)
	if err != nil {
		return nil, err
	}
	key, err := ResolveAPIKey(ctx, &cfg, store)
	if err != nil {
		return nil, err
	}
	cfg.APIKey = key
	return &cfg, nil
}
