package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/jrsteele09/go-auth-client/auth"
	"github.com/jrsteele09/go-auth-client/backend"
	"github.com/jrsteele09/go-auth-client/backend/backendfake"
	"github.com/jrsteele09/go-auth-client/backend/securetoken"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/rs/zerolog/log"
)

const demoEmail = "demo@example.com"

// demoBackend is the in-process identity backend with one seeded account.
type demoBackend struct {
	fake     *backendfake.Backend
	password string
}

func newDemoBackend(projectID string) *demoBackend {
	return &demoBackend{fake: backendfake.New(backendfake.WithProjectID(projectID))}
}

// client refreshes tokens through the emulator's secure token endpoint when
// one is configured.
func (d *demoBackend) client(c config.AppConfig) backend.Client {
	if c.GetEmulatorHost() == "" {
		return d.fake
	}
	log.Info().Str("host", c.GetEmulatorHost()).Msg("🧪 refreshing tokens through emulator")
	return backend.Join(d.fake, securetoken.New())
}

// seed creates the demo account with a generated password.
func (d *demoBackend) seed() error {
	password, err := generatePassword()
	if err != nil {
		return err
	}
	if _, err := d.fake.CreateAccount("", demoEmail, password); err != nil {
		return fmt.Errorf("creating demo account: %w", err)
	}
	d.password = password

	log.Info().Msg("👤 Demo Credentials:")
	log.Info().Msgf("   Email:       %s", demoEmail)
	log.Info().Msgf("   Password:    %s", password)
	return nil
}

func (d *demoBackend) signIn(ctx context.Context, a *auth.Auth) error {
	if restored := a.CurrentUser(); restored != nil {
		// Tokens minted by a previous run are unknown to this process.
		log.Info().Str("uid", restored.UID).Msg("restored stored session, signing it out")
		if err := a.SignOut(ctx); err != nil {
			return fmt.Errorf("SignOut: %w", err)
		}
	}

	if err := d.seed(); err != nil {
		return err
	}
	if _, err := a.SignInWithEmailPassword(ctx, demoEmail, d.password); err != nil {
		return fmt.Errorf("SignInWithEmailPassword: %w", err)
	}

	token, err := a.GetIDTokenResult(ctx, true)
	if err != nil {
		log.Warn().Err(err).Msg("forced token refresh failed")
		return nil
	}
	log.Info().
		Str("provider", token.SignInProvider).
		Time("issued", token.IssuedAt).
		Time("expires", token.ExpirationTime).
		Msg("🔐 ID token refreshed")
	return nil
}

func generatePassword() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
