package config

import (
	"errors"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/pflag"
)

type Config struct {
	Addr        string
	DBUrl       string
	TokenSecret string
	TokenTTL    time.Duration
	Debug       bool
	LogFile     string
	PublicDir   string

	StationID  string
	BackendUrl string
	BackendKey string
	Bucket     string

	BlobStore    string
	COSBucketUrl string
	COSSecretID  string
	COSSecretKey string

	ProbeUrl      string
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration

	Timezone        string
	OutboxRetention time.Duration

	host string
	port uint
	ttl  uint
}

const (
	BlobStoreSupabase = "supabase"
	BlobStoreCOS      = "cos"
)

// BindFlags registers every option on fs. Defaults may be overridden by
// KIOSK_* environment variables, e.g. KIOSK_BACKEND_URL for --backend-url.
func (cfg *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&cfg.host, "host", env("host", "0.0.0.0"), "listen host name")
	fs.UintVar(&cfg.port, "port", envUint("port", 8080), "listen port number")
	fs.StringVar(&cfg.DBUrl, "db-url", env("db-url", "kiosk.sqlite"), "path to SQLite3 DB file")
	fs.StringVar(&cfg.TokenSecret, "token-secret", env("token-secret", ""), "secret key for admin token encryption and decryption")
	fs.UintVar(&cfg.ttl, "token-ttl", envUint("token-ttl", 120), "admin token TTL in seconds")
	fs.BoolVar(&cfg.Debug, "debug", env("debug", "") == "true", "log at DEBUG level")
	fs.StringVar(&cfg.LogFile, "log-file", env("log-file", ""), "also write logs to this rotated file")
	fs.StringVar(&cfg.PublicDir, "public-dir", env("public-dir", "public"), "directory served as the kiosk UI")

	fs.StringVar(&cfg.StationID, "station-id", env("station-id", "TOTEM-1"), "kiosk station identifier")
	fs.StringVar(&cfg.BackendUrl, "backend-url", env("backend-url", ""), "remote backend base URL")
	fs.StringVar(&cfg.BackendKey, "backend-key", env("backend-key", ""), "remote backend API key")
	fs.StringVar(&cfg.Bucket, "bucket", env("bucket", "audio"), "storage bucket for audio answers")

	fs.StringVar(&cfg.BlobStore, "blob-store", env("blob-store", BlobStoreSupabase), "blob store for audio uploads (supabase|cos)")
	fs.StringVar(&cfg.COSBucketUrl, "cos-bucket-url", env("cos-bucket-url", ""), "COS bucket URL, e.g. https://bucket-123.cos.ap-hongkong.myqcloud.com")
	fs.StringVar(&cfg.COSSecretID, "cos-secret-id", env("cos-secret-id", ""), "COS secret id")
	fs.StringVar(&cfg.COSSecretKey, "cos-secret-key", env("cos-secret-key", ""), "COS secret key")

	fs.StringVar(&cfg.ProbeUrl, "probe-url", env("probe-url", ""), "URL probed for connectivity (defaults to --backend-url)")
	fs.DurationVar(&cfg.ProbeInterval, "probe-interval", envDuration("probe-interval", 15*time.Second), "connectivity probe interval")
	fs.DurationVar(&cfg.ProbeTimeout, "probe-timeout", envDuration("probe-timeout", 5*time.Second), "connectivity probe timeout")

	fs.StringVar(&cfg.Timezone, "timezone", env("timezone", "UTC"), "time zone of the daily counter")
	fs.DurationVar(&cfg.OutboxRetention, "outbox-retention", envDuration("outbox-retention", 0), "delete synced outbox tasks older than this (0 keeps them)")
}

// Resolve computes derived fields once flags are parsed.
func (cfg *Config) Resolve() {
	cfg.Addr = net.JoinHostPort(cfg.host, strconv.Itoa(int(cfg.port)))
	cfg.TokenTTL = time.Duration(cfg.ttl) * time.Second
	cfg.BackendUrl = strings.TrimRight(cfg.BackendUrl, "/")
	if cfg.ProbeUrl == "" {
		cfg.ProbeUrl = cfg.BackendUrl
	}
}

func (cfg Config) ValidateServer() error {
	if cfg.TokenSecret == "" {
		return errors.New("missing parameter --token-secret")
	}
	return cfg.ValidateBackend()
}

func (cfg Config) ValidateBackend() error {
	switch {
	case cfg.BackendUrl == "":
		return errors.New("missing parameter --backend-url")
	case cfg.BlobStore != BlobStoreSupabase && cfg.BlobStore != BlobStoreCOS:
		return errors.New("--blob-store must be supabase or cos")
	case cfg.BlobStore == BlobStoreCOS && cfg.COSBucketUrl == "":
		return errors.New("missing parameter --cos-bucket-url")
	}
	_, err := cfg.Location()
	return err
}

func (cfg Config) Location() (*time.Location, error) {
	return time.LoadLocation(cfg.Timezone)
}

// KeyExpiry reads the expiry of the backend key when it is a JWT.
// The signature is not verified; only the backend can do that.
func (cfg Config) KeyExpiry() (exp time.Time, ok bool) {
	claims := jwt.RegisteredClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(cfg.BackendKey, &claims)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

func (cfg Config) Url() (url string) {
	url = cfg.Addr
	url = regexp.MustCompile(`^0.0.0.0`).ReplaceAllString(url, "localhost")
	url = "http://" + url
	return
}

func envName(flag string) string {
	return "KIOSK_" + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

func env(flag, def string) string {
	if v, ok := os.LookupEnv(envName(flag)); ok {
		return v
	}
	return def
}

func envUint(flag string, def uint) uint {
	if v, err := strconv.ParseUint(env(flag, ""), 10, 0); err == nil {
		return uint(v)
	}
	return def
}

func envDuration(flag string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(env(flag, "")); err == nil {
		return v
	}
	return def
}
