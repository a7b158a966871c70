package db

import (
	"encoding/json"
	"time"
)

// Source maps sources. One row per originating AT-proto identity, created
// lazily on the first observed post from an unknown DID.
type Source struct {
	SourceID        int64      `gorm:"column:source_id;primaryKey;autoIncrement"`
	DID             string     `gorm:"column:did;type:text;not null;unique"`
	Handle          *string    `gorm:"column:handle;type:text"`
	DisplayName     *string    `gorm:"column:display_name;type:text"`
	AvatarURL       *string    `gorm:"column:avatar_url;type:text"`
	ProfileSyncedAt *time.Time `gorm:"column:profile_synced_at;type:timestamptz"`
	CreatedAt       time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Source) TableName() string { return "sources" }

// Post maps posts. Key is the canonical at:// URI; rows are immutable after
// creation and duplicate URIs are no-ops.
type Post struct {
	PostID      int64           `gorm:"column:post_id;primaryKey;autoIncrement"`
	URI         string          `gorm:"column:uri;type:text;not null;unique"`
	SourceID    int64           `gorm:"column:source_id;type:bigint;not null"`
	Payload     json.RawMessage `gorm:"column:payload;type:jsonb"`
	PublishedAt time.Time       `gorm:"column:published_at;type:timestamptz;not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (Post) TableName() string { return "posts" }

// Article maps articles. One row per distinct external URL; fields are
// populated on first creation only and never overwritten by later shares.
type Article struct {
	ArticleID   int64           `gorm:"column:article_id;primaryKey;autoIncrement"`
	URL         string          `gorm:"column:url;type:text;not null;unique"`
	Title       string          `gorm:"column:title;type:text;not null"`
	Author      *string         `gorm:"column:author;type:text"`
	Description *string         `gorm:"column:description;type:text"`
	ImageURL    *string         `gorm:"column:image_url;type:text"`
	PublishedAt *time.Time      `gorm:"column:published_at;type:timestamptz"`
	HTMLContent string          `gorm:"column:html_content;type:text;not null;default:''"`
	BodyText    string          `gorm:"column:body_text;type:text;not null;default:''"`
	CleanedText *string         `gorm:"column:cleaned_text;type:text"`
	Language    string          `gorm:"column:language;type:text;not null;default:''"`
	JSONLDData  json.RawMessage `gorm:"column:jsonld_data;type:jsonb"`
	CreatedAt   time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Article) TableName() string { return "articles" }

// ArticlePost maps article_posts, the share join. One row per (article, post)
// pair; its creation is the "share recorded" event that drives ranking.
type ArticlePost struct {
	ArticlePostID int64     `gorm:"column:article_post_id;primaryKey;autoIncrement"`
	ArticleID     int64     `gorm:"column:article_id;type:bigint;not null"`
	PostID        int64     `gorm:"column:post_id;type:bigint;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (ArticlePost) TableName() string { return "article_posts" }

// ArticleChunk maps article_chunks. One row per (article, chunk_index) with a
// pgvector embedding column sized for the enrichment backend's model.
type ArticleChunk struct {
	ArticleChunkID   int64     `gorm:"column:article_chunk_id;primaryKey;autoIncrement"`
	ArticleID        int64     `gorm:"column:article_id;type:bigint;not null"`
	ChunkIndex       int       `gorm:"column:chunk_index;type:integer;not null"`
	Text             string    `gorm:"column:text;type:text;not null"`
	TokenCount       int       `gorm:"column:token_count;type:integer;not null"`
	Checksum         string    `gorm:"column:checksum;type:text;not null"`
	EmbeddingVersion string    `gorm:"column:embedding_version;type:text;not null"`
	Embedding        string    `gorm:"column:embedding;type:vector(384)"`
	CreatedAt        time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (ArticleChunk) TableName() string { return "article_chunks" }

// Entity maps entities, the canonical record for a named entity.
type Entity struct {
	EntityID       int64     `gorm:"column:entity_id;primaryKey;autoIncrement"`
	Name           string    `gorm:"column:name;type:text;not null"`
	NormalizedName string    `gorm:"column:normalized_name;type:text;not null"`
	EntityType     string    `gorm:"column:entity_type;type:text;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (Entity) TableName() string { return "entities" }

// ArticleEntity maps article_entities. Frequency accumulates across
// extraction passes; positions stay sorted and de-duplicated.
type ArticleEntity struct {
	ArticleEntityID int64           `gorm:"column:article_entity_id;primaryKey;autoIncrement"`
	ArticleID       int64           `gorm:"column:article_id;type:bigint;not null"`
	EntityID        int64           `gorm:"column:entity_id;type:bigint;not null"`
	Frequency       int             `gorm:"column:frequency;type:integer;not null"`
	Positions       json.RawMessage `gorm:"column:positions;type:jsonb;not null;default:'[]'"`
	ConfidenceScore float64         `gorm:"column:confidence_score;type:double precision;not null"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (ArticleEntity) TableName() string { return "article_entities" }

func autoMigrateModels() []any {
	return []any{
		&Source{},
		&Post{},
		&Article{},
		&ArticlePost{},
		&ArticleChunk{},
		&Entity{},
		&ArticleEntity{},
	}
}
