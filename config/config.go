package config

import (
	"errors"
	"flag"
	"net"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
)

type Config struct {
	Addr        string
	DBUrl       string
	TokenSecret string
	TokenTTL    time.Duration
	Debug       bool

	// Debounce is the quiet period after the last edit before an answer is written.
	Debounce time.Duration
	// SavedFlash is how long a question reports "saved" before reverting to idle.
	SavedFlash time.Duration
	// SaveTimeout bounds saves that outlive the request that triggered them.
	SaveTimeout time.Duration
}

func ParseFlags() (Config, error) {
	return Parse(os.Args[1:])
}

func Parse(args []string) (cfg Config, err error) {
	fs := flag.NewFlagSet("intake-survey", flag.ContinueOnError)

	var host string
	fs.StringVar(&host, "host", "0.0.0.0", "listen host name (default 0.0.0.0)")
	var port uint
	fs.UintVar(&port, "port", 80, "listen port number (default 80)")
	fs.StringVar(&cfg.DBUrl, "db-url", "intake.sqlite", "path to SQLite3 DB file (default intake.sqlite)")
	fs.StringVar(&cfg.TokenSecret, "token-secret", "", "secret key for token encryption and decryption")
	var ttl uint
	fs.UintVar(&ttl, "token-ttl", 120, "token TTL in seconds (default 120)")
	fs.BoolVar(&cfg.Debug, "debug", false, "log at DEBUG level")
	fs.DurationVar(&cfg.Debounce, "debounce", 800*time.Millisecond, "answer autosave debounce window")
	fs.DurationVar(&cfg.SavedFlash, "saved-flash", 800*time.Millisecond, "how long a saved answer shows as saved")
	fs.DurationVar(&cfg.SaveTimeout, "save-timeout", 10*time.Second, "timeout of a single answer save")

	err = fs.Parse(args)
	if err != nil {
		return
	}

	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(int(port)))
	cfg.TokenTTL = time.Duration(ttl) * time.Second

	err = cfg.Validate()
	return
}

func (cfg Config) Validate() error {
	var result *multierror.Error
	if cfg.TokenSecret == "" {
		result = multierror.Append(result, errors.New("missing parameter -token-secret"))
	}
	if cfg.DBUrl == "" {
		result = multierror.Append(result, errors.New("missing parameter -db-url"))
	}
	if cfg.Debounce <= 0 {
		result = multierror.Append(result, errors.New("-debounce must be positive"))
	}
	if cfg.SavedFlash <= 0 {
		result = multierror.Append(result, errors.New("-saved-flash must be positive"))
	}
	if cfg.SaveTimeout <= 0 {
		result = multierror.Append(result, errors.New("-save-timeout must be positive"))
	}
	return result.ErrorOrNil()
}

func (cfg Config) Url() (url string) {
	url = cfg.Addr
	url = regexp.MustCompile(`^0.0.0.0`).ReplaceAllString(url, "localhost")
	url = "http://" + url
	return
}
