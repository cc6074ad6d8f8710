package domain

import "time"

// Subscription is a followed official account.
type Subscription struct {
	ID           int64     `db:"id"`
	Name         string    `db:"name"`
	WechatID     string    `db:"wechat_id"`
	BoundAccount string    `db:"bound_account"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// DiscoveredArticle is the transient result of one discovery call. It only
// lives until the sync coordinator has deduplicated and stored it.
type DiscoveredArticle struct {
	SubscriptionID  int64
	ExternalID      string
	Title           string
	URL             string // full URL, query parameters preserved
	PublishedAt     time.Time
	Excerpt         string
	Fingerprint     string
	Strategy        string
	MidnightPublish bool
}

// Article is the canonical, durable record of a discovered article. Identity
// is (subscription, normalized URL) with the content fingerprint as fallback.
type Article struct {
	ID             int64     `db:"id"`
	SubscriptionID int64     `db:"subscription_id"`
	ExternalID     string    `db:"external_id"`
	Title          string    `db:"title"`
	URL            string    `db:"url"`
	PublishedAt    time.Time `db:"published_at"`
	CalendarDate   string    `db:"calendar_date"` // YYYY-MM-DD, after midnight shift
	FetchedAt      time.Time `db:"fetched_at"`
	Excerpt        string    `db:"excerpt"`
	Fingerprint    string    `db:"fingerprint"`
	SummaryText    string    `db:"summary_text"`
	SummaryModel   string    `db:"summary_model"`
	VectorJSON     string    `db:"vector_json"`
}

// ReadState tracks whether an article has been read.
type ReadState struct {
	ArticleID int64     `db:"article_id"`
	IsRead    bool      `db:"is_read"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ArticleItem is one row of an assembled day view: the canonical article
// joined with its per-day id, read state and recommendation score.
type ArticleItem struct {
	DayID        int
	ArticleID    int64
	Subscription string
	Title        string
	URL          string
	PublishedAt  time.Time
	Summary      string
	IsRead       bool
	Score        float64
	Cached       bool
	Staleness    time.Duration
}

// DayCount summarizes one calendar date for history listings.
type DayCount struct {
	Date  string `db:"date"`
	Total int    `db:"total"`
	Read  int    `db:"read"`
}

// Snapshot is the last successfully rendered article list for one
// (subscription, date), kept so failed runs can degrade to stale data.
type Snapshot struct {
	SubscriptionID int64
	Date           string
	Items          []ArticleItem
	CachedAt       time.Time
}
