package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/dorominseok/festival-pj/app/api"
	"github.com/dorominseok/festival-pj/app/gateway"
	"github.com/dorominseok/festival-pj/app/proc"
	"github.com/dorominseok/festival-pj/app/review"
	"github.com/dorominseok/festival-pj/app/session"
	"github.com/dorominseok/festival-pj/app/store"
	"github.com/dorominseok/festival-pj/app/wishlist"
)

type options struct {
	Conf string `short:"f" long:"conf" env:"FP_CONF" default:"festival-pj.yml" description:"config file (yml), optional"`
	DB   string `short:"c" long:"db" env:"FP_DB" default:"var/festival-pj.bdb" description:"bolt db file for the catalog snapshot"`

	API        string        `long:"api" env:"FP_API_URL" description:"festival backend url"`
	Classifier string        `long:"classifier" env:"FP_CLASSIFIER_URL" description:"text classifier url"`
	Timeout    time.Duration `long:"timeout" env:"FP_TIMEOUT" default:"5s" description:"backend call timeout"`
	Port       int           `long:"port" env:"FP_PORT" default:"8090" description:"rest server port"`

	RefreshInterval time.Duration `long:"refresh-interval" env:"FP_REFRESH_INTERVAL" description:"catalog refresh interval, overrides config"`

	TelegramServer  string        `long:"telegram_server" env:"TELEGRAM_SERVER" default:"https://api.telegram.org" description:"telegram bot api server"`
	TelegramToken   string        `long:"telegram_token" env:"TELEGRAM_TOKEN" description:"telegram token, notifications disabled without it"`
	TelegramChannel string        `long:"telegram_chan" env:"TELEGRAM_CHAN" description:"telegram channel for wishlist notifications"`
	TelegramTimeout time.Duration `long:"telegram_timeout" env:"TELEGRAM_TIMEOUT" default:"1m" description:"telegram timeout"`

	Dbg bool `long:"dbg" env:"DEBUG" description:"debug mode"`
}

var revision = "local"

func main() {
	fmt.Printf("festival-pj %s\n", revision)

	// .env of the mobile app is honoured, a missing file is fine
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Printf("can't load .env, %v\n", err)
	}

	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}
	setupLog(opts.Dbg)
	applyEnvFallbacks(&opts)

	conf, err := loadConfig(opts.Conf)
	if err != nil {
		log.Fatalf("[ERROR] can't load config %s, %v", opts.Conf, err)
	}
	if opts.RefreshInterval > 0 {
		conf.System.UpdateInterval = opts.RefreshInterval
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts, conf); err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	log.Print("[INFO] terminated")
}

func run(ctx context.Context, opts options, conf *proc.Conf) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client := gateway.NewClient(opts.API, opts.Classifier, opts.Timeout)
	log.Printf("[INFO] backend %s, classifier %s", client.BaseURL, client.ClassifierURL)

	db, err := store.NewBoltStore(opts.DB)
	if err != nil {
		return errors.Wrapf(err, "can't open db %s", opts.DB)
	}
	defer func() {
		if e := db.Close(); e != nil {
			log.Printf("[WARN] can't close db, %v", e)
		}
	}()

	moderator, err := review.NewModerator(client, review.Opts{
		BadWords:   conf.Moderation.BadWords,
		CacheTTL:   conf.Moderation.CacheTTL,
		CacheSize:  conf.Moderation.CacheSize,
		Concurrent: conf.System.Concurrent,
	})
	if err != nil {
		return errors.Wrap(err, "can't make review moderator")
	}
	defer moderator.Close() // nolint

	sess := session.NewStore(client)
	wl := wishlist.NewStore(client, sess)
	defer wl.Close()

	refresher := &proc.Refresher{Conf: conf, Source: client, Store: db}
	refreshDone := make(chan struct{})
	go func() {
		defer close(refreshDone)
		refresher.Do(ctx)
	}()
	defer func() {
		cancel()
		<-refreshDone
	}()

	if opts.TelegramToken != "" {
		bot, err := proc.NewTelegramBot(opts.TelegramToken, opts.TelegramServer, opts.TelegramTimeout)
		if err != nil {
			return errors.Wrap(err, "failed to initialize telegram client")
		}
		if opts.TelegramChannel != "" {
			notifier := &proc.TelegramNotifier{Sender: bot, Channel: opts.TelegramChannel}
			defer notifier.Wait()
			defer notifier.Watch(sess, wl)()
			log.Printf("[INFO] wishlist notifications to telegram %s", opts.TelegramChannel)
		}
		go proc.StartCommands(ctx, bot, client.GetUpcomingFestivals)
	}

	server := api.Server{
		Version:   revision,
		Conf:      *conf,
		Backend:   client,
		Session:   sess,
		Wishlist:  wl,
		Snapshots: db,
		Moderator: moderator,
	}
	return server.Run(ctx, opts.Port)
}

// applyEnvFallbacks fills backend urls from the mobile app variables when not set directly
func applyEnvFallbacks(opts *options) {
	if opts.API == "" {
		opts.API = os.Getenv("EXPO_PUBLIC_API_BASE_URL")
	}
	if opts.Classifier == "" {
		opts.Classifier = os.Getenv("EXPO_PUBLIC_UNSMILE_URL")
	}
}

// loadConfig reads yml config, a missing file means all defaults
func loadConfig(fname string) (res *proc.Conf, err error) {
	res = &proc.Conf{}
	data, err := os.ReadFile(fname) // nolint
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, res); err != nil {
			return nil, errors.Wrapf(err, "can't parse %s", fname)
		}
	} else {
		log.Printf("[INFO] no config %s, defaults used", fname)
	}

	res.SetDefaults()
	return res, nil
}

func setupLog(dbg bool) {
	if dbg {
		log.Setup(log.Debug, log.CallerFile, log.Msec, log.LevelBraces)
		return
	}
	log.Setup(log.Msec, log.LevelBraces)
}
