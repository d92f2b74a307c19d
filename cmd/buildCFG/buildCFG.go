package buildCFG

import (
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"

	"confreg/internal/mailer"
	"confreg/internal/proof"
)

type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
	AllowOrigins    []string
}

type RabbitConfig struct {
	Url      string
	Exchange string
	Queue    string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type UploadConfig struct {
	Dir      string
	MaxBytes int64
}

type CSRFConfig struct {
	Secret string
	TTL    time.Duration
}

type SessionConfig struct {
	Cookie string
	TTL    time.Duration
}

func BuildServerConfig(cfg *config.Config, log *zerolog.Logger) ServerConfig {
	sc := ServerConfig{
		Port:            cfg.GetString("server.port"),
		ShutdownTimeout: cfg.GetDuration("server.shutdown_timeout"),
		AllowOrigins:    splitList(cfg.GetString("server.allow_origins")),
	}
	if sc.Port == "" {
		log.Warn().Msg("server.port not set, using 8080")
		sc.Port = "8080"
	}
	if sc.ShutdownTimeout <= 0 {
		sc.ShutdownTimeout = 10 * time.Second
	}
	return sc
}

func BuildDBConfig(cfg *config.Config, log *zerolog.Logger) (string, []string, *dbpg.Options, error) {
	masterDSN := cfg.GetString("postgres.master_dsn")
	if masterDSN == "" {
		return "", nil, nil, errors.New("postgres.master_dsn is required")
	}
	slaveDSNs := splitList(cfg.GetString("postgres.slave_dsns"))

	opts := &dbpg.Options{
		MaxOpenConns:    cfg.GetInt("postgres.max_open_conns"),
		MaxIdleConns:    cfg.GetInt("postgres.max_idle_conns"),
		ConnMaxLifetime: cfg.GetDuration("postgres.conn_max_lifetime"),
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 10
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 5
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = 30 * time.Minute
	}
	log.Info().Int("slaves", len(slaveDSNs)).Int("max_open_conns", opts.MaxOpenConns).Msg("DB config loaded")
	return masterDSN, slaveDSNs, opts, nil
}

func BuildRedisConfig(cfg *config.Config, log *zerolog.Logger) (RedisConfig, error) {
	rc := RedisConfig{
		Addr:     cfg.GetString("redis.addr"),
		Password: cfg.GetString("redis.password"),
		DB:       cfg.GetInt("redis.db"),
	}
	if rc.Addr == "" {
		return rc, errors.New("redis.addr is required")
	}
	log.Info().Str("addr", rc.Addr).Int("db", rc.DB).Msg("Redis config loaded")
	return rc, nil
}

func BuildRabbitConfig(cfg *config.Config, log *zerolog.Logger) (RabbitConfig, error) {
	rc := RabbitConfig{
		Url:      cfg.GetString("rabbitmq.url"),
		Exchange: cfg.GetString("rabbitmq.exchange"),
		Queue:    cfg.GetString("rabbitmq.queue"),
	}
	if rc.Url == "" {
		return rc, errors.New("rabbitmq.url is required")
	}
	if rc.Exchange == "" {
		rc.Exchange = "payments"
	}
	if rc.Queue == "" {
		rc.Queue = "payment_notifications"
	}
	log.Info().Str("exchange", rc.Exchange).Str("queue", rc.Queue).Msg("RabbitMQ config loaded")
	return rc, nil
}

func BuildUploadConfig(cfg *config.Config) UploadConfig {
	uc := UploadConfig{
		Dir:      cfg.GetString("upload.dir"),
		MaxBytes: int64(cfg.GetInt("upload.max_bytes")),
	}
	if uc.Dir == "" {
		uc.Dir = "uploads/payment-slips"
	}
	if uc.MaxBytes <= 0 {
		uc.MaxBytes = proof.DefaultMaxBytes
	}
	return uc
}

func BuildCSRFConfig(cfg *config.Config) (CSRFConfig, error) {
	cc := CSRFConfig{
		Secret: cfg.GetString("csrf.secret"),
		TTL:    cfg.GetDuration("csrf.ttl"),
	}
	if cc.Secret == "" {
		return cc, errors.New("csrf.secret is required")
	}
	if cc.TTL <= 0 {
		cc.TTL = time.Hour
	}
	return cc, nil
}

func BuildSessionConfig(cfg *config.Config) SessionConfig {
	sc := SessionConfig{
		Cookie: cfg.GetString("session.cookie"),
		TTL:    cfg.GetDuration("session.ttl"),
	}
	if sc.Cookie == "" {
		sc.Cookie = "session_id"
	}
	if sc.TTL <= 0 {
		sc.TTL = 12 * time.Hour
	}
	return sc
}

func BuildMailConfig(cfg *config.Config) mailer.Config {
	return mailer.Config{
		Enabled:  cfg.GetBool("mail.enabled"),
		Host:     cfg.GetString("mail.host"),
		Port:     cfg.GetInt("mail.port"),
		From:     cfg.GetString("mail.from"),
		Password: cfg.GetString("mail.password"),
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
