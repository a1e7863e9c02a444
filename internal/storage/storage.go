package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/LJTian/HoopsHub/internal/processor"
)

const (
	listCacheTTL   = 5 * time.Minute
	connectMaxWait = 30 * time.Second
	maxListLimit   = 500
	saveBatchSize  = 100
	generationKey  = "hoopshub:articles:gen"
	summaryColumns = 600
)

// Channel is a source known to the site; curated sources are seeded at startup.
type Channel struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	Code    string `gorm:"size:64;uniqueIndex" json:"code"`
	Name    string `gorm:"size:128" json:"name"`
	BaseURL string `gorm:"size:256" json:"baseUrl"`
	Status  string `gorm:"size:32;index" json:"status"` // active / disabled

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Article is one stored news item, unique by URLHash.
type Article struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	URLHash     string            `gorm:"column:url_hash;size:32;uniqueIndex" json:"urlHash"`
	URL         string            `gorm:"type:text" json:"url"`
	Source      string            `gorm:"size:128;index" json:"source"`
	Title       string            `gorm:"size:512" json:"title"`
	Author      string            `gorm:"size:256" json:"author,omitempty"`
	Summary     string            `gorm:"size:600" json:"summary"`
	Content     string            `gorm:"type:text" json:"content,omitempty"`
	PublishedAt time.Time         `gorm:"index" json:"publishedAt"`
	FetchedAt   time.Time         `json:"fetchedAt"`
	Extra       datatypes.JSONMap `gorm:"type:jsonb" json:"extra,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

type Store struct {
	DB    *gorm.DB
	Redis *redis.Client
}

// NewStore connects to Postgres (retrying until connectMaxWait), applies
// migrations and attaches Redis when redisAddr is set.
func NewStore(ctx context.Context, dsn, redisAddr string) (*Store, error) {
	var db *gorm.DB
	connect := func() error {
		d, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
		if err != nil {
			return err
		}
		db = d
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = connectMaxWait
	notify := func(err error, wait time.Duration) {
		log.Warnf("storage: postgres not ready, retry in %s: %v", wait.Round(time.Millisecond), err)
	}
	if err := backoff.RetryNotify(connect, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, fmt.Errorf("storage: connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	if err := migrateUp(sqlDB); err != nil {
		return nil, err
	}

	s := &Store{DB: db}
	if redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Warnf("storage: redis ping failed: %v", err)
		}
		s.Redis = rdb
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// EnsureChannel returns the channel with code, creating it if missing.
func (s *Store) EnsureChannel(ctx context.Context, code, name, baseURL string) (*Channel, error) {
	ch := &Channel{}
	err := s.DB.WithContext(ctx).Where("code = ?", code).First(ch).Error
	if err == nil {
		return ch, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	ch = &Channel{
		Code:    code,
		Name:    name,
		BaseURL: baseURL,
		Status:  "active",
	}
	if err := s.DB.WithContext(ctx).Create(ch).Error; err != nil {
		return nil, err
	}
	return ch, nil
}

// SaveBatch inserts articles whose url_hash is new and reports how many were inserted.
func (s *Store) SaveBatch(ctx context.Context, items []processor.Article) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	rows := make([]Article, 0, len(items))
	for _, it := range items {
		rows = append(rows, toRow(it))
	}

	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "url_hash"}}, DoNothing: true}).
		CreateInBatches(rows, saveBatchSize)
	if res.Error != nil {
		return 0, fmt.Errorf("storage: save batch: %w", res.Error)
	}

	inserted := int(res.RowsAffected)
	if inserted > 0 {
		s.bumpGeneration(ctx)
	}
	return inserted, nil
}

func toRow(it processor.Article) Article {
	var extra datatypes.JSONMap
	if len(it.Extra) > 0 {
		extra = datatypes.JSONMap(it.Extra)
	}
	return Article{
		URLHash:     it.URLHash,
		URL:         toValidUTF8(it.URL),
		Source:      truncateRunesDB(toValidUTF8(it.Source), 128),
		Title:       truncateRunesDB(toValidUTF8(it.Title), 512),
		Author:      truncateRunesDB(toValidUTF8(it.Author), 256),
		Summary:     truncateRunesDB(toValidUTF8(it.Summary), summaryColumns),
		Content:     toValidUTF8(it.Content),
		PublishedAt: it.PublishedAt,
		FetchedAt:   it.FetchedAt,
		Extra:       extra,
	}
}

// ListLatest returns the newest articles, optionally for a single source.
func (s *Store) ListLatest(ctx context.Context, source string, limit int) ([]Article, error) {
	limit = clampLimit(limit)
	key := s.cacheKey(ctx, "latest", source, limit)
	if cached, ok := s.cached(ctx, key); ok {
		return cached, nil
	}

	var list []Article
	db := s.DB.WithContext(ctx).Model(&Article{})
	if source != "" {
		db = db.Where("source = ?", source)
	}
	if err := db.Order("published_at DESC").Order("id DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, fmt.Errorf("storage: list latest: %w", err)
	}

	s.fill(ctx, key, list)
	return list, nil
}

// Search matches q case-insensitively against title, summary and source.
// An empty query behaves like ListLatest.
func (s *Store) Search(ctx context.Context, q string, limit int) ([]Article, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return s.ListLatest(ctx, "", limit)
	}
	limit = clampLimit(limit)
	key := s.cacheKey(ctx, "search", strings.ToLower(q), limit)
	if cached, ok := s.cached(ctx, key); ok {
		return cached, nil
	}

	pattern := likePattern(q)
	var list []Article
	err := s.DB.WithContext(ctx).
		Where("LOWER(title) LIKE ? OR LOWER(summary) LIKE ? OR LOWER(source) LIKE ?", pattern, pattern, pattern).
		Order("published_at DESC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("storage: search: %w", err)
	}

	s.fill(ctx, key, list)
	return list, nil
}

// SearchAny returns articles whose title or summary contains any of terms.
func (s *Store) SearchAny(ctx context.Context, terms []string, limit int) ([]Article, error) {
	limit = clampLimit(limit)
	where, args := anyTermClause(terms)
	if where == "" {
		return nil, nil
	}

	var list []Article
	err := s.DB.WithContext(ctx).
		Where(where, args...).
		Order("published_at DESC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("storage: search terms: %w", err)
	}
	return list, nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&Article{}).Count(&n).Error
	return n, err
}

func anyTermClause(terms []string) (string, []any) {
	parts := make([]string, 0, len(terms))
	args := make([]any, 0, 2*len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		p := likePattern(t)
		parts = append(parts, "(LOWER(title) LIKE ? OR LOWER(summary) LIKE ?)")
		args = append(args, p, p)
	}
	return strings.Join(parts, " OR "), args
}

// likePattern lowercases q and escapes LIKE wildcards (Postgres default escape is '\').
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(q)) + "%"
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// Cached list keys embed a generation counter bumped on every insert, so
// new articles show up without wildcard deletes.
func (s *Store) cacheKey(ctx context.Context, kind, arg string, limit int) string {
	if s.Redis == nil {
		return ""
	}
	gen, err := s.Redis.Get(ctx, generationKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return ""
	}
	return listKey(gen, kind, arg, limit)
}

func listKey(gen int64, kind, arg string, limit int) string {
	return fmt.Sprintf("hoopshub:articles:v%d:%s:%s:%d", gen, kind, arg, limit)
}

func (s *Store) bumpGeneration(ctx context.Context) {
	if s.Redis == nil {
		return
	}
	if err := s.Redis.Incr(ctx, generationKey).Err(); err != nil {
		log.Debugf("storage: bump cache generation: %v", err)
	}
}

func (s *Store) cached(ctx context.Context, key string) ([]Article, bool) {
	if key == "" {
		return nil, false
	}
	bs, err := s.Redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var list []Article
	if err := json.Unmarshal(bs, &list); err != nil {
		return nil, false
	}
	return list, true
}

func (s *Store) fill(ctx context.Context, key string, list []Article) {
	if key == "" || len(list) == 0 {
		return
	}
	if bs, err := json.Marshal(list); err == nil {
		_ = s.Redis.Set(ctx, key, bs, listCacheTTL).Err()
	}
}

// toValidUTF8 replaces invalid byte sequences Postgres would reject.
func toValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "�")
}

// truncateRunesDB keeps s within a varchar(limit) column.
func truncateRunesDB(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit])
}
