// Package config loads environment-driven configuration structs for the
// billing services.
//
// Each package that needs configuration declares its own struct with
// `env` tags and the composition root loads it once:
//
//	type StripeConfig struct {
//		SecretKey     string `env:"STRIPE_SECRET_KEY,required"`
//		WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET,required"`
//	}
//
//	var cfg StripeConfig
//	config.MustLoad(&cfg)
//
// A .env file is loaded once per process if present; real environment
// variables always win over .env values.
package config
