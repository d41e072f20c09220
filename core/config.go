package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host string
		Port string

		// AccessTokenDelta is deliberately short; it forces every request to be
		// re-checked against the Session of record on expiry.
		AccessTokenDelta       time.Duration
		RefreshTokenDelta      time.Duration
		SessionExpirationDelta time.Duration // added to Session.ExpiresAt on each refresh
	}

	DatabaseConfig struct {
		Engine        string
		Name          string
		Host          string
		Port          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	StorageConfig struct {
		Root           string // object store root dir
		BaseURL        string
		SignedURLDelta time.Duration
	}

	Config struct {
		Debug    bool
		TestMode bool
		Env      string
		Build    string
		AppName  string

		SecretKey        []byte
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		SendgridApiKey   string
		RollbarToken     string
		WorkDir          string

		PasswordResetTimeoutDelta time.Duration
		AssessmentPasswordTimeout time.Duration
		AttendanceSessionDelta    time.Duration

		Server   ServerConfig
		Database DatabaseConfig
		Storage  StorageConfig
	}
)

func (c DatabaseConfig) Address() string { return net.JoinHostPort(c.Host, c.Port) }
func (c ServerConfig) Address() string   { return net.JoinHostPort(c.Host, c.Port) }

// Conf is the app-wide configuration, loaded once at startup.
var Conf *Config

func init() {
	Conf = loadConfig()
}

func loadConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Elimu")
	v.SetDefault("secretKey", "w3e+9resp0q5-#*c2(h!x)wernb$+57=dz&uoxh2(#yg4h^$ce")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("assessmentPasswordTimeout", 20*time.Minute)
	v.SetDefault("attendanceSessionDelta", 15*time.Minute)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.accessTokenDelta", time.Minute)
	v.SetDefault("server.refreshTokenDelta", 7*24*time.Hour)
	v.SetDefault("server.sessionExpirationDelta", 4*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.name", "elimu")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("storage.root", "objectstore")
	v.SetDefault("storage.baseURL", "http://localhost:8000")
	v.SetDefault("storage.signedURLDelta", 15*time.Minute)

	env := os.Getenv("ENV") // DEV (local; default), TEST, QA, PROD
	var testMode bool
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		testMode = true
	}
	v.SetEnvPrefix(env)

	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Config{
		Debug:    v.GetBool("debug"),
		TestMode: testMode,
		Env:      env,
		Build:    v.GetString("build"),
		AppName:  v.GetString("appName"),

		SecretKey:        []byte(v.GetString("secretKey")),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		DefaultFromEmail: mail.Address{Name: v.GetString("appName"), Address: v.GetString("defaultFromEmail")},
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		WorkDir:          wd,

		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		AssessmentPasswordTimeout: v.GetDuration("assessmentPasswordTimeout"),
		AttendanceSessionDelta:    v.GetDuration("attendanceSessionDelta"),

		Server: ServerConfig{
			Host:                   v.GetString("server.host"),
			Port:                   v.GetString("server.port"),
			AccessTokenDelta:       v.GetDuration("server.accessTokenDelta"),
			RefreshTokenDelta:      v.GetDuration("server.refreshTokenDelta"),
			SessionExpirationDelta: v.GetDuration("server.sessionExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Name:          v.GetString("database.name"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Storage: StorageConfig{
			Root:           v.GetString("storage.root"),
			BaseURL:        v.GetString("storage.baseURL"),
			SignedURLDelta: v.GetDuration("storage.signedURLDelta"),
		},
	}
}
