package config

type StorageConfig interface {
	GetAccessGroup() string
	GetShareAcrossDevices() bool
	GetRedisURL() string
	GetDataFolder() string
	GetDeviceID() string
}

type Storage struct {
	AccessGroup        string `env:"AUTH_ACCESS_GROUP"`
	ShareAcrossDevices bool   `env:"AUTH_SHARE_ACROSS_DEVICES" envDefault:"false"`
	RedisURL           string `env:"REDIS_URL"`
	DataFolder         string `env:"FOLDER" envDefault:"./data"`
	DeviceID           string `env:"DEVICE_ID" envDefault:"local"`
}

var _ StorageConfig = Storage{}

func (s Storage) GetAccessGroup() string {
	return s.AccessGroup
}

func (s Storage) GetShareAcrossDevices() bool {
	return s.ShareAcrossDevices
}

// GetRedisURL returns the shared keychain location; empty keeps everything local.
func (s Storage) GetRedisURL() string {
	return s.RedisURL
}

func (s Storage) GetDataFolder() string {
	return s.DataFolder
}

func (s Storage) GetDeviceID() string {
	return s.DeviceID
}
