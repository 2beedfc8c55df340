package config

// StoreConfig configures session history persistence.
type StoreConfig struct {
	// DatabasePath is the SQLite file holding sessions and resolutions.
	DatabasePath string `yaml:"database_path"`
}
