package config

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// secretValueFetcher is the subset of the Secrets Manager client we call
type secretValueFetcher interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// applyAWSSecrets fetches the configured secret and overlays known keys
func applyAWSSecrets(cfg *Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Secrets.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Secrets.AWSRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	return overlaySecrets(ctx, secretsmanager.NewFromConfig(awsCfg), cfg)
}

func overlaySecrets(ctx context.Context, client secretValueFetcher, cfg *Config) error {
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(cfg.Secrets.AWSSecretID),
		VersionStage: aws.String("AWSCURRENT"),
	})
	if err != nil {
		return fmt.Errorf("failed to fetch secret %s: %w", cfg.Secrets.AWSSecretID, err)
	}

	var payload []byte
	switch {
	case out.SecretString != nil:
		payload = []byte(*out.SecretString)
	case len(out.SecretBinary) > 0:
		payload = out.SecretBinary
	default:
		return fmt.Errorf("secret %s has no payload", cfg.Secrets.AWSSecretID)
	}

	var kv map[string]string
	if err := json.Unmarshal(payload, &kv); err != nil {
		return fmt.Errorf("secret %s is not a flat JSON object: %w", cfg.Secrets.AWSSecretID, err)
	}

	targets := map[string]*string{
		"access_secret":     &cfg.Security.Tokens.AccessSecret,
		"refresh_secret":    &cfg.Security.Tokens.RefreshSecret,
		"mfa_secret":        &cfg.Security.Tokens.MFASecret,
		"reset_secret":      &cfg.Security.Tokens.ResetSecret,
		"captcha_secret":    &cfg.Security.Captcha.Secret,
		"database_password": &cfg.Database.Password,
		"redis_password":    &cfg.Redis.Password,
	}
	for key, dst := range targets {
		if val, ok := kv[key]; ok && val != "" {
			*dst = val
		}
	}
	return nil
}
