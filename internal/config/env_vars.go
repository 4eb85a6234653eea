package config

type EnvVars struct {
	AppName      string `env:"APP_NAME" envDefault:"[DEFAULT]"`
	APIKey       string `env:"AUTH_API_KEY"`
	ProjectID    string `env:"PROJECT_ID"`
	TenantID     string `env:"AUTH_TENANT_ID"`
	LanguageCode string `env:"AUTH_LANGUAGE_CODE"`
	EmulatorHost string `env:"AUTH_EMULATOR_HOST"`
	Env          string `env:"ENV" envDefault:"DEV"`
}

var _ AppConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetAPIKey() string {
	return e.APIKey
}

func (e EnvVars) GetProjectID() string {
	return e.ProjectID
}

// GetTenantID returns the tenant every session must belong to, empty for none.
func (e EnvVars) GetTenantID() string {
	return e.TenantID
}

func (e EnvVars) GetLanguageCode() string {
	return e.LanguageCode
}

// GetEmulatorHost returns "host:port" of a local backend emulator, empty for production.
func (e EnvVars) GetEmulatorHost() string {
	return e.EmulatorHost
}

func (e EnvVars) GetEnv() string {
	return e.Env
}
