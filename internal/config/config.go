// Package config loads the tool configuration from a YAML file, the
// environment and command line flags, in that order of precedence.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/yabinmeng/opscs3restore/internal/debug"
	"github.com/yabinmeng/opscs3restore/internal/errors"
)

// Config contains all settings. It is passed by value to the components.
type Config struct {
	ContactPoint string `yaml:"dse_contact_point"      env:"OPSCS3RESTORE_DSE_CONTACT_POINT"`
	Port         int    `yaml:"dse_port"`
	User         string `yaml:"dse_user"               flag:"user"     env:"OPSCS3RESTORE_USER"`
	Password     string `yaml:"-"                      flag:"password" env:"OPSCS3RESTORE_PASSWORD"`
	UserAuth     bool   `yaml:"user_auth"`
	UseSSL       bool   `yaml:"use_ssl"`

	SSLCAFile           string `yaml:"ssl_ca_file"`
	SSLCertFile         string `yaml:"ssl_cert_file"`
	SSLKeyFile          string `yaml:"ssl_key_file"`
	SSLHostVerification bool   `yaml:"ssl_host_verification"`

	IPMatchingNIC string `yaml:"ip_matching_nic" env:"OPSCS3RESTORE_NIC"`

	DownloadHome    string `yaml:"local_download_home" env:"OPSCS3RESTORE_DOWNLOAD_HOME"`
	DownloadThreads int    `yaml:"download_threads"    flag:"threads"`
	DownloadLimitKB int    `yaml:"download_limit_kb"   flag:"limit-download"`
	FileSizeCheck   bool   `yaml:"file_size_chk"`

	S3Endpoint    string `yaml:"opsc_s3_endpoint"    env:"OPSCS3RESTORE_S3_ENDPOINT"`
	S3UseHTTP     bool   `yaml:"opsc_s3_use_http"`
	S3Region      string `yaml:"opsc_s3_aws_region"  env:"OPSCS3RESTORE_S3_REGION"`
	S3Bucket      string `yaml:"opsc_s3_bucket_name" env:"OPSCS3RESTORE_S3_BUCKET"`
	S3KeyID       string `yaml:"opsc_s3_key_id"      env:"OPSCS3RESTORE_S3_KEY_ID"`
	S3Secret      string `yaml:"opsc_s3_secret"      env:"OPSCS3RESTORE_S3_SECRET"`
	S3Connections uint   `yaml:"opsc_s3_connections"`
	S3Retries     uint   `yaml:"opsc_s3_retries"`

	S3CACerts     []string `yaml:"opsc_s3_cacert"`
	S3InsecureTLS bool     `yaml:"opsc_s3_insecure_tls"`

	SnapshotBasePrefix string `yaml:"snapshot_base_prefix"`
	OpscMarker         string `yaml:"opsc_marker"`
	SSTablesMarker     string `yaml:"sstables_marker"`
	ManifestFile       string `yaml:"manifest_file"`
	ManifestField      string `yaml:"manifest_field"`
}

// Default returns a Config with all defaults set.
func Default() Config {
	return Config{
		Port:               9042,
		DownloadThreads:    5,
		S3Connections:      5,
		S3Retries:          10,
		SnapshotBasePrefix: "snapshots",
		OpscMarker:         "opscenter_adhoc",
		SSTablesMarker:     "sstables",
		ManifestFile:       "backup.json",
		ManifestField:      "sstables",
	}
}

// Parse decodes buf on top of the defaults. Unknown keys are rejected.
func Parse(buf []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)

	err := dec.Decode(&cfg)
	if errors.Is(err, io.EOF) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, errors.Wrap(err, "decode")
	}

	return cfg, nil
}

// Load reads and parses the config file filename.
func Load(filename string) (Config, error) {
	buf, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, errors.WithStack(err)
	}

	cfg, err := Parse(buf)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config file %v", filename)
	}

	return cfg, nil
}

// Validate checks that all required settings are present.
func (cfg Config) Validate() error {
	var missing []string
	for name, v := range map[string]string{
		"dse_contact_point":   cfg.ContactPoint,
		"local_download_home": cfg.DownloadHome,
		"opsc_s3_bucket_name": cfg.S3Bucket,
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return errors.Errorf("missing required settings: %v", strings.Join(missing, ", "))
	}

	// a missing password is asked for when connecting
	if cfg.UserAuth && cfg.User == "" {
		return errors.New("user_auth requires a user name")
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return errors.Errorf("invalid dse_port %d", cfg.Port)
	}

	fi, err := os.Stat(cfg.DownloadHome)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// created before downloading
	case err != nil:
		return errors.WithStack(err)
	case !fi.IsDir():
		return errors.Errorf("local_download_home %v is not a directory", cfg.DownloadHome)
	}

	return nil
}

func getFieldsForTag(tagname string, target interface{}) map[string]reflect.Value {
	v := reflect.ValueOf(target).Elem()
	// resolve indirection
	vi := reflect.Indirect(reflect.ValueOf(target))

	attr := make(map[string]reflect.Value)
	for i := 0; i < vi.NumField(); i++ {
		typeField := vi.Type().Field(i)
		tag := typeField.Tag.Get(tagname)
		if tag == "" {
			continue
		}

		field := v.FieldByName(typeField.Name)

		if !field.CanSet() {
			continue
		}

		attr[tag] = field
	}

	return attr
}

// ApplyFlags takes the values from the flag set and applies them to cfg. Only
// flags changed on the command line are applied.
func ApplyFlags(cfg interface{}, fset *pflag.FlagSet) error {
	if reflect.TypeOf(cfg).Kind() != reflect.Ptr {
		panic("target config is not a pointer")
	}

	debug.Log("apply flags")

	attr := getFieldsForTag("flag", cfg)

	var visitError error
	fset.VisitAll(func(flag *pflag.Flag) {
		if visitError != nil {
			return
		}

		field, ok := attr[flag.Name]
		if !ok {
			return
		}

		if !flag.Changed {
			return
		}

		debug.Log("apply flag %v, to field %v\n", flag.Name, field.Type().Name())

		switch flag.Value.Type() {
		case "bool":
			v, err := fset.GetBool(flag.Name)
			if err != nil {
				visitError = err
				return
			}
			field.SetBool(v)
		case "string":
			v, err := fset.GetString(flag.Name)
			if err != nil {
				visitError = err
				return
			}
			field.SetString(v)
		case "int":
			v, err := fset.GetInt(flag.Name)
			if err != nil {
				visitError = err
				return
			}
			field.SetInt(int64(v))
		case "uint":
			v, err := fset.GetUint(flag.Name)
			if err != nil {
				visitError = err
				return
			}
			field.SetUint(uint64(v))
		default:
			visitError = errors.Errorf("flag %v has unknown type %v", flag.Name, flag.Value.Type())
			return
		}
	})

	return visitError
}

// ApplyEnv takes the list of environment variables and applies them to the
// config.
func ApplyEnv(cfg interface{}, env []string) error {
	attr := getFieldsForTag("env", cfg)

	for _, s := range env {
		name, value, ok := strings.Cut(s, "=")
		if !ok {
			continue
		}

		field, ok := attr[name]
		if !ok {
			continue
		}

		debug.Log("apply env %v to %v\n", name, field.Type().Name())
		if err := setValue(field, value); err != nil {
			return errors.Wrapf(err, "environment variable %v", name)
		}
	}

	return nil
}

func setValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		v, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(v)
	case reflect.Int:
		v, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		field.SetInt(int64(v))
	case reflect.Uint:
		v, err := strconv.ParseUint(value, 10, 0)
		if err != nil {
			return err
		}
		field.SetUint(v)
	default:
		panic(fmt.Sprintf("unsupported field type %v", field.Kind()))
	}
	return nil
}
