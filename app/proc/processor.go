// Package proc provides the catalog refresh loop, its config and the telegram notifier
package proc

import (
	"context"
	"sync"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/syncs"
	"github.com/pkg/errors"

	"github.com/dorominseok/festival-pj/app/feed"
	"github.com/dorominseok/festival-pj/app/models"
)

// Conf for the yml config
type Conf struct {
	Feed struct {
		Origin          feed.Point `yaml:"origin"`
		EndedWindowDays int        `yaml:"ended_window_days"`
	} `yaml:"feed"`
	System struct {
		UpdateInterval time.Duration `yaml:"update"`
		MaxKeepInDB    int           `yaml:"max_keep"`
		Concurrent     int           `yaml:"concurrent"`
	} `yaml:"system"`
	Moderation struct {
		CacheTTL  time.Duration `yaml:"cache_ttl"`
		CacheSize int           `yaml:"cache_size"`
		BadWords  string        `yaml:"bad_words"`
	} `yaml:"moderation"`
	Server struct {
		RateLimit float64 `yaml:"rate_limit"`
	} `yaml:"server"`
}

// DefaultBadWords matches reviews flagged locally regardless of the classifier
const DefaultBadWords = `(병신|존나|좆)`

// SetDefaults fills zero values
func (c *Conf) SetDefaults() {
	if c.Feed.Origin.IsZero() {
		c.Feed.Origin = feed.DefaultOrigin
	}
	if c.Feed.EndedWindowDays == 0 {
		c.Feed.EndedWindowDays = feed.DefaultEndedWindowDays
	}
	if c.System.Concurrent == 0 {
		c.System.Concurrent = 8
	}
	if c.System.MaxKeepInDB == 0 {
		c.System.MaxKeepInDB = 5000
	}
	if c.System.UpdateInterval == 0 {
		c.System.UpdateInterval = time.Minute * 5
	}
	if c.Moderation.CacheTTL == 0 {
		c.Moderation.CacheTTL = time.Hour
	}
	if c.Moderation.CacheSize == 0 {
		c.Moderation.CacheSize = 1000
	}
	if c.Moderation.BadWords == "" {
		c.Moderation.BadWords = DefaultBadWords
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = 10
	}
}

// CatalogSource fetches the catalog from the backend
type CatalogSource interface {
	GetFestivals(ctx context.Context) ([]models.Festival, error)
	GetFestivalProducts(ctx context.Context, festivalID int64) ([]models.Product, error)
}

// SnapshotStore keeps the last fetched catalog
type SnapshotStore interface {
	SaveFestivals(list []models.Festival, max int) (int, error)
	SaveProducts(festivalID int64, products []models.Product) error
	RemoveProducts(keep []int64) (int, error)
}

// Refresher copies the backend catalog into the snapshot store periodically
type Refresher struct {
	Conf   *Conf
	Source CatalogSource
	Store  SnapshotStore
}

// Do runs refresh loop until ctx canceled, first refresh happens right away
func (r *Refresher) Do(ctx context.Context) {
	log.Printf("[INFO] activate catalog refresher, every %v", r.Conf.System.UpdateInterval)
	for {
		if err := r.Refresh(ctx); err != nil {
			log.Printf("[WARN] catalog refresh failed, %v", err)
		}
		log.Printf("[DEBUG] refresh completed. Next iteration after: '%v'", r.Conf.System.UpdateInterval)

		select {
		case <-ctx.Done():
			log.Printf("[INFO] catalog refresher terminated, %v", ctx.Err())
			return
		case <-time.After(r.Conf.System.UpdateInterval):
		}
	}
}

// Refresh fetches festivals and their products once. Products are fetched concurrently,
// limited by Conf.System.Concurrent. A failed product fetch keeps the previously stored products.
func (r *Refresher) Refresh(ctx context.Context) error {
	festivals, err := r.Source.GetFestivals(ctx)
	if err != nil {
		return errors.Wrap(err, "can't fetch festivals")
	}

	saved, err := r.Store.SaveFestivals(festivals, r.Conf.System.MaxKeepInDB)
	if err != nil {
		return errors.Wrap(err, "can't save festivals")
	}
	festivals = festivals[:saved]

	var failed int
	var mu sync.Mutex
	swg := syncs.NewSizedGroup(r.Conf.System.Concurrent, syncs.Preemptive)
	for _, f := range festivals {
		f := f
		swg.Go(func(context.Context) {
			products, err := r.Source.GetFestivalProducts(ctx, f.ID)
			if err == nil {
				err = r.Store.SaveProducts(f.ID, products)
			}
			if err != nil {
				log.Printf("[WARN] failed to refresh products of festival %d, %v", f.ID, err)
				mu.Lock()
				failed++
				mu.Unlock()
			}
		})
	}
	swg.Wait()

	keep := make([]int64, 0, len(festivals))
	for _, f := range festivals {
		keep = append(keep, f.ID)
	}
	removed, err := r.Store.RemoveProducts(keep)
	if err != nil {
		log.Printf("[WARN] failed to remove old products, %v", err)
	}
	if removed > 0 {
		log.Printf("[DEBUG] removed products of %d festivals", removed)
	}

	log.Printf("[INFO] catalog refreshed, %d festivals, %d product fetches failed", saved, failed)
	return nil
}
