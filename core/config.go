package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	AppName          string
	Env              string // DEV (local; default), TEST, QA, PROD
	Build            string
	Debug            bool
	TestMode         bool
	WorkDir          string
	RollbarToken     string
	SendgridApiKey   string
	defaultFromEmail string

	Server struct {
		Host            string
		Address         string
		DebugHost       string
		ShutdownTimeout time.Duration
		DisableReqLogs  bool
	}

	Database struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	Calendar struct {
		ArtifactDir   string
		MaxUploadSize int64
		MaxPages      int
		NotifyEmails  []string
	}
}

// NewConfig loads the configuration from the environment (and `config/.env.<env>` if it exists).
func NewConfig() *Config {
	v := viper.New()
	env := loadEnv(v)

	conf := &Config{
		AppName:          v.GetString("appName"),
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		WorkDir:          v.GetString("workDir"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
	}

	conf.Server.Host = v.GetString("serverHost")
	conf.Server.Address = v.GetString("serverAddress")
	conf.Server.DebugHost = v.GetString("serverDebugHost")
	conf.Server.ShutdownTimeout = v.GetDuration("serverShutdownTimeout")
	conf.Server.DisableReqLogs = v.GetBool("serverDisableReqLogs")

	conf.Database.Engine = v.GetString("dbEngine")
	conf.Database.Host = v.GetString("dbHost")
	conf.Database.Port = v.GetInt("dbPort")
	conf.Database.Name = v.GetString("dbName")
	conf.Database.User = v.GetString("dbUser")
	conf.Database.Password = v.GetString("dbPassword")
	conf.Database.AdminUser = v.GetString("dbAdminUser")
	conf.Database.AdminPassword = v.GetString("dbAdminPassword")
	conf.Database.DisableTLS = v.GetBool("dbDisableTLS")

	conf.Calendar.ArtifactDir = v.GetString("calendarArtifactDir")
	if !filepath.IsAbs(conf.Calendar.ArtifactDir) {
		conf.Calendar.ArtifactDir = filepath.Join(conf.WorkDir, conf.Calendar.ArtifactDir)
	}
	conf.Calendar.MaxUploadSize = v.GetInt64("calendarMaxUploadSize")
	conf.Calendar.MaxPages = v.GetInt("calendarMaxPages")
	conf.Calendar.NotifyEmails = splitList(v.GetString("calendarNotifyEmails"))

	return conf
}

func loadEnv(v *viper.Viper) string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("config.os.Getwd(): %v", err)
	}

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Esmeraldinha")
	v.SetDefault("build", "dev")
	v.SetDefault("workDir", wd)
	v.SetDefault("defaultFromEmail", "Esmeraldinha <noreply@localhost>")
	v.SetDefault("serverHost", "localhost")
	v.SetDefault("serverAddress", ":8000")
	v.SetDefault("serverDebugHost", ":4000")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("serverDisableReqLogs", false)
	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", 5432)
	v.SetDefault("dbName", "esmeraldinha")
	v.SetDefault("dbUser", "esmeraldinha")
	v.SetDefault("dbPassword", "esmeraldinha")
	v.SetDefault("dbDisableTLS", true)
	v.SetDefault("calendarArtifactDir", "images")
	v.SetDefault("calendarMaxUploadSize", 5*1024*1024)
	v.SetDefault("calendarMaxPages", 20)
	v.SetDefault("calendarNotifyEmails", "")

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	case "QA", "PROD":
		v.SetDefault("debug", false)
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()
	return env
}

func (conf *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(conf.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: conf.AppName, Address: "noreply@" + conf.Server.Host}
	}
	return *addr
}

func (conf *Config) SetDefaultFromEmail(addr string) { conf.defaultFromEmail = addr }

// DatabaseAddress returns the database "host:port".
func (conf *Config) DatabaseAddress() string {
	return net.JoinHostPort(conf.Database.Host, strconv.Itoa(conf.Database.Port))
}

func (conf *Config) String() string {
	return fmt.Sprintf("%s [%s] build=%s debug=%t", conf.AppName, conf.Env, conf.Build, conf.Debug)
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
