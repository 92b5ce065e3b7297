package main

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/sprig"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/knadh/stuffbin"
	flag "github.com/spf13/pflag"
	"github.com/trackfit/trackfit/internal/otp"
	"github.com/trackfit/trackfit/internal/providers/logger"
	"github.com/trackfit/trackfit/internal/providers/pinpoint"
	"github.com/trackfit/trackfit/internal/providers/smtp"
	"github.com/trackfit/trackfit/internal/providers/webhook"
	"github.com/trackfit/trackfit/internal/store"
	"github.com/trackfit/trackfit/internal/store/mem"
	"github.com/trackfit/trackfit/internal/store/redis"
	"github.com/trackfit/trackfit/pkg/models"
	"github.com/zerodha/logf"
)

const envPrefix = "TRACKFIT_"

type constants struct {
	OtpTTL time.Duration

	// Exported to templates.
	AppName  string
	RootURL  string
	AuthPath string
	Redirect string
}

func initConfig() {
	// Register --help handler.
	f := flag.NewFlagSet("config", flag.ContinueOnError)
	f.Usage = func() {
		fmt.Println(f.FlagUsages())
		os.Exit(0)
	}
	f.StringSlice("config", []string{"config.toml"},
		"Path to one or more TOML config files to load in order")
	f.String("env-file", "", "Path to a .env file to load into the environment")
	f.Bool("version", false, "Show build version")
	f.Parse(os.Args[1:])

	// Display version.
	if ok, _ := f.GetBool("version"); ok {
		fmt.Println(buildString)
		os.Exit(0)
	}

	// Optional .env file. Variables already in the environment win.
	if envFile, _ := f.GetString("env-file"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			lo.Fatal("error loading env file", "file", envFile, "error", err)
		}
	}

	// Read the config files.
	cFiles, _ := f.GetStringSlice("config")
	for _, f := range cFiles {
		lo.Info("reading config", "file", f)
		if err := ko.Load(file.Provider(f), toml.Parser()); err != nil {
			lo.Error("error reading config", "error", err)
		}
	}

	// Load environment variables and merge into the loaded config.
	if err := ko.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, envPrefix)), "__", ".", -1)
	}), nil); err != nil {
		lo.Error("error loading env config", "error", err)
	}

	ko.Load(posflag.Provider(f, ".", ko), nil)
}

func initLogger(debug bool) logf.Logger {
	opts := logf.Opts{
		Writer:       os.Stdout,
		EnableCaller: true,
	}
	if debug {
		opts.Level = logf.DebugLevel
		opts.EnableColor = true
	}

	return logf.New(opts)
}

// initStore loads the session and OTP store named by app.store.
func initStore() (store.Store, error) {
	switch typ := ko.String("app.store"); typ {
	case "", "memory":
		lo.Warn("using the in-memory store. OTPs and sessions are lost on restart")
		return mem.New(), nil
	case "redis":
		var rc redis.Conf
		if err := ko.UnmarshalWithConf("store.redis", &rc, koanf.UnmarshalConf{Tag: "json"}); err != nil {
			return nil, fmt.Errorf("error reading store.redis config: %v", err)
		}
		return redis.New(rc), nil
	default:
		return nil, fmt.Errorf("unknown store type '%s'", typ)
	}
}

// initProviders loads the enabled message providers from the provider.*
// config blocks and compiles their templates.
func initProviders(fs stuffbin.FileSystem) ([]otp.Channel, error) {
	var out []otp.Channel
	for _, id := range ko.MapKeys("provider") {
		var (
			path = "provider." + id
			cfg  models.ProviderConfig
		)
		if err := ko.UnmarshalWithConf(path, &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
			return nil, fmt.Errorf("error reading config '%s': %v", path, err)
		}
		if !cfg.Enabled {
			continue
		}

		p, err := newProvider(id, path)
		if err != nil {
			return nil, fmt.Errorf("error initializing provider '%s': %v", id, err)
		}

		ch, err := initProviderTemplates(p, cfg, fs)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)

		lo.Info("loaded provider", "id", id, "channel", p.ChannelName())
	}

	if len(out) == 0 {
		lo.Warn("no providers enabled. OTPs will be written to the log")
		out = append(out, otp.Channel{Provider: logger.New(lo)})
	}

	return out, nil
}

// newProvider initializes a provider from its config block.
func newProvider(id, path string) (models.Provider, error) {
	uc := koanf.UnmarshalConf{Tag: "json"}

	switch id {
	case "log":
		return logger.New(lo), nil

	case "smtp":
		var c smtp.Config
		if err := ko.UnmarshalWithConf(path, &c, uc); err != nil {
			return nil, err
		}
		return smtp.New(c)

	case "webhook":
		var c webhook.Config
		if err := ko.UnmarshalWithConf(path, &c, uc); err != nil {
			return nil, err
		}
		return webhook.New(c)

	case "pinpoint":
		var c pinpoint.Config
		if err := ko.UnmarshalWithConf(path, &c, uc); err != nil {
			return nil, err
		}
		return pinpoint.New(c)
	}

	return nil, fmt.Errorf("unknown provider '%s'", id)
}

// initProviderTemplates compiles a provider's subject and body templates.
// The body template is read from the stuffed filesystem and then the local
// disk.
func initProviderTemplates(p models.Provider, cfg models.ProviderConfig, fs stuffbin.FileSystem) (otp.Channel, error) {
	var (
		out     = otp.Channel{Provider: p}
		funcMap = sprig.FuncMap()
	)

	if cfg.Subject != "" {
		tpl, err := template.New("subject").Funcs(funcMap).Parse(cfg.Subject)
		if err != nil {
			return out, fmt.Errorf("error parsing subject template for %s: %v", p.ID(), err)
		}
		out.Subject = tpl
	}

	if cfg.Template != "" {
		tpl, err := stuffbin.ParseTemplates(funcMap, fs, cfg.Template)
		if err != nil {
			tpl, err = template.New(filepath.Base(cfg.Template)).Funcs(funcMap).ParseFiles(cfg.Template)
		}
		if err != nil {
			return out, fmt.Errorf("error parsing template %s for %s: %v", cfg.Template, p.ID(), err)
		}
		out.Body = tpl
	}

	return out, nil
}

func initFS(exe string) stuffbin.FileSystem {
	// Read stuffed data from self.
	fs, err := stuffbin.UnStuff(exe)
	if err != nil {
		// Binary is unstuffed or is running in dev mode.
		if err == stuffbin.ErrNoID {
			fs, err = stuffbin.NewLocalFS("/", "static/")
			if err != nil {
				lo.Fatal("error falling back to local filesystem", "error", err)
			}
		} else {
			lo.Fatal("error reading stuffed binary", "error", err)
		}
	}

	return fs
}
