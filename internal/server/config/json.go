package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/keepotp/internal/flagx"
	"github.com/dmitrijs2005/keepotp/internal/timex"
)

// JsonConfig is the intermediate DTO used only for reading JSON
// configuration files. Interval fields use timex.Duration so both string
// values such as "10s" and integer nanoseconds parse. After
// unmarshalling, the fields are copied into the runtime Config.
type JsonConfig struct {
	EndpointAddrHTTP            string         `json:"endpoint_addr_http"`
	DatabaseDSN                 string         `json:"database_dsn"`
	SecretKey                   string         `json:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`
	ScanInterval                timex.Duration `json:"scan_interval"`
	ImportDir                   string         `json:"import_dir"`
	S3RootUser                  string         `json:"s3_root_user"`
	S3RootPassword              string         `json:"s3_root_password"`
	S3Bucket                    string         `json:"s3_bucket"`
	S3Region                    string         `json:"s3_region"`
	S3BaseEndpoint              string         `json:"s3_base_endpoint"`
	Watches                     []JsonWatch    `json:"watches"`
}

// JsonWatch mirrors WatchVault in the JSON config file.
type JsonWatch struct {
	User     string `json:"user"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	Password string `json:"password"`
	KeyFile  string `json:"key_file"`
}

// parseJson loads configuration values from the JSON file named by the
// -c/-config flags into config. When no flag is given, nothing is
// loaded. An unreadable or invalid file panics: the process cannot run
// with half a config.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.EndpointAddrHTTP = c.EndpointAddrHTTP
	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.AccessTokenValidityDuration = time.Duration(c.AccessTokenValidityDuration.Duration)
	config.ScanInterval = time.Duration(c.ScanInterval.Duration)
	config.ImportDir = c.ImportDir
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint

	for _, w := range c.Watches {
		config.Watches = append(config.Watches, WatchVault{
			User:     w.User,
			Name:     w.Name,
			Path:     w.Path,
			Password: w.Password,
			KeyFile:  w.KeyFile,
		})
	}
}
