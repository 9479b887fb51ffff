// Package review adds moderation hints to festival reviews: sanitized content,
// the classifier verdict and a local bad-word flag.
package review

import (
	"context"
	"crypto/sha1" //nolint:gosec // cache key only
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"github.com/go-pkgz/lcw"
	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/syncs"
	"github.com/microcosm-cc/bluemonday"
	"github.com/pkg/errors"
	"golang.org/x/net/html"

	"github.com/dorominseok/festival-pj/app/models"
)

// Classifier rates text toxicity
type Classifier interface {
	ClassifyText(ctx context.Context, text string) (models.Toxicity, error)
}

// Opts for NewModerator
type Opts struct {
	BadWords   string        // regexp, matched case-insensitive
	CacheTTL   time.Duration // how long a verdict is reused for the same text
	CacheSize  int
	Concurrent int // parallel classifier calls in ModerateAll
}

// Moderator sanitizes and classifies reviews
type Moderator struct {
	classifier Classifier
	cache      *lcw.ExpirableCache
	badWords   *regexp.Regexp
	policy     *bluemonday.Policy
	concurrent int
}

// NewModerator makes a moderator. classifier can be nil, then only the local pattern applies.
func NewModerator(classifier Classifier, opts Opts) (*Moderator, error) {
	if opts.Concurrent <= 0 {
		opts.Concurrent = 4
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1000
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}

	res := Moderator{classifier: classifier, policy: bluemonday.StrictPolicy(), concurrent: opts.Concurrent}

	if opts.BadWords != "" {
		rx, err := regexp.Compile("(?i)" + opts.BadWords)
		if err != nil {
			return nil, errors.Wrapf(err, "can't compile bad words %q", opts.BadWords)
		}
		res.badWords = rx
	}

	cache, err := lcw.NewExpirableCache(lcw.MaxKeys(opts.CacheSize), lcw.TTL(opts.CacheTTL))
	if err != nil {
		return nil, errors.Wrap(err, "can't make classifier cache")
	}
	res.cache = cache
	return &res, nil
}

// Sanitize strips all markup from text, entities are unescaped back to plain characters
func (m *Moderator) Sanitize(text string) string {
	// bluemonday doesn't remove escaped HTML tags
	return strings.TrimSpace(html.UnescapeString(m.policy.Sanitize(html.UnescapeString(text))))
}

// IsToxic reports whether text hits the local bad-word pattern
func (m *Moderator) IsToxic(text string) bool {
	return m.badWords != nil && m.badWords.MatchString(text)
}

// Classify returns the classifier verdict for text, cached by text.
// Returns nil verdict without a classifier or for blank text.
func (m *Moderator) Classify(ctx context.Context, text string) (*models.Toxicity, error) {
	if m.classifier == nil || strings.TrimSpace(text) == "" {
		return nil, nil
	}
	sum := sha1.Sum([]byte(text)) //nolint:gosec
	v, err := m.cache.Get(hex.EncodeToString(sum[:]), func() (interface{}, error) {
		return m.classifier.ClassifyText(ctx, text)
	})
	if err != nil {
		return nil, errors.Wrap(err, "can't classify text")
	}
	t, ok := v.(models.Toxicity)
	if !ok {
		return nil, errors.Errorf("unexpected cached verdict %T", v)
	}
	return &t, nil
}

// Moderate returns r with sanitized content and moderation hints set.
// A failed classification leaves Toxicity nil, the local flag is set regardless.
func (m *Moderator) Moderate(ctx context.Context, r models.Review) models.Review {
	r.Toxic = m.IsToxic(r.Content)
	r.Content = m.Sanitize(r.Content)
	r.Toxicity = nil
	tox, err := m.Classify(ctx, r.Content)
	if err != nil {
		log.Printf("[WARN] review %d not classified, %v", r.ID, err)
		return r
	}
	r.Toxicity = tox
	return r
}

// ModerateAll moderates reviews concurrently, keeping the order. Input is not modified.
func (m *Moderator) ModerateAll(ctx context.Context, reviews []models.Review) []models.Review {
	res := make([]models.Review, len(reviews))
	swg := syncs.NewSizedGroup(m.concurrent)
	for i := range reviews {
		i := i
		swg.Go(func(context.Context) {
			res[i] = m.Moderate(ctx, reviews[i])
		})
	}
	swg.Wait()
	return res
}

// Close releases the cache
func (m *Moderator) Close() error {
	return m.cache.Close()
}
