// Package model defines the canonical records produced by a crawl and the
// run context passed to every collaborator.
package model

// Crawler types.
const (
	CrawlerSearch  = "search"
	CrawlerDetail  = "detail"
	CrawlerCreator = "creator"
)

// RunContext carries the active crawl mode and keyword into each call.
type RunContext struct {
	CrawlerType string
	Keyword     string
}

// WithKeyword returns a copy of rc for keyword.
func (rc RunContext) WithKeyword(keyword string) RunContext {
	rc.Keyword = keyword
	return rc
}

// Record is implemented by every canonical record.
type Record interface {
	// Key is the record's primary identifier.
	Key() string
	// Valid reports whether the record may be stored.
	Valid() bool
}

// ContentRecord is a normalized video.
type ContentRecord struct {
	VideoID          string `json:"video_id" yaml:"video_id"`
	Title            string `json:"title" yaml:"title"`
	Desc             string `json:"desc" yaml:"desc"`
	CreateTime       int64  `json:"create_time" yaml:"create_time"`
	UserID           string `json:"user_id" yaml:"user_id"`
	SecUID           string `json:"sec_uid" yaml:"sec_uid"`
	UserUniqueID     string `json:"user_unique_id" yaml:"user_unique_id"`
	Nickname         string `json:"nickname" yaml:"nickname"`
	Avatar           string `json:"avatar" yaml:"avatar"`
	UserSignature    string `json:"user_signature" yaml:"user_signature"`
	LikedCount       int64  `json:"liked_count" yaml:"liked_count"`
	CollectedCount   int64  `json:"collected_count" yaml:"collected_count"`
	CommentCount     int64  `json:"comment_count" yaml:"comment_count"`
	ShareCount       int64  `json:"share_count" yaml:"share_count"`
	PlayCount        int64  `json:"play_count" yaml:"play_count"`
	IPLocation       string `json:"ip_location" yaml:"ip_location"`
	VideoURL         string `json:"video_url" yaml:"video_url"`
	CoverURL         string `json:"cover_url" yaml:"cover_url"`
	VideoDownloadURL string `json:"video_download_url" yaml:"video_download_url"`
	MusicDownloadURL string `json:"music_download_url" yaml:"music_download_url"`
	SourceKeyword    string `json:"source_keyword" yaml:"source_keyword"`
	LastModifyTS     int64  `json:"last_modify_ts" yaml:"last_modify_ts"`
}

func (r ContentRecord) Key() string { return r.VideoID }
func (r ContentRecord) Valid() bool { return r.VideoID != "" }

// CommentRecord is a normalized comment on a video.
type CommentRecord struct {
	CommentID       string `json:"comment_id" yaml:"comment_id"`
	VideoID         string `json:"video_id" yaml:"video_id"`
	Content         string `json:"content" yaml:"content"`
	CreateTime      int64  `json:"create_time" yaml:"create_time"`
	LikeCount       int64  `json:"like_count" yaml:"like_count"`
	SubCommentCount int64  `json:"sub_comment_count" yaml:"sub_comment_count"`
	ParentCommentID string `json:"parent_comment_id" yaml:"parent_comment_id"`
	UserID          string `json:"user_id" yaml:"user_id"`
	SecUID          string `json:"sec_uid" yaml:"sec_uid"`
	UserUniqueID    string `json:"user_unique_id" yaml:"user_unique_id"`
	Nickname        string `json:"nickname" yaml:"nickname"`
	Avatar          string `json:"avatar" yaml:"avatar"`
	UserSignature   string `json:"user_signature" yaml:"user_signature"`
	IPLocation      string `json:"ip_location" yaml:"ip_location"`
	LastModifyTS    int64  `json:"last_modify_ts" yaml:"last_modify_ts"`
}

func (r CommentRecord) Key() string { return r.CommentID }
func (r CommentRecord) Valid() bool { return r.CommentID != "" }

// CreatorRecord is a normalized creator profile.
type CreatorRecord struct {
	UserID       string `json:"user_id" yaml:"user_id"`
	UserUniqueID string `json:"user_unique_id" yaml:"user_unique_id"`
	SecUID       string `json:"sec_uid" yaml:"sec_uid"`
	Nickname     string `json:"nickname" yaml:"nickname"`
	Avatar       string `json:"avatar" yaml:"avatar"`
	Desc         string `json:"desc" yaml:"desc"`
	Gender       string `json:"gender" yaml:"gender"`
	Follows      int64  `json:"follows" yaml:"follows"`
	Fans         int64  `json:"fans" yaml:"fans"`
	Interaction  int64  `json:"interaction" yaml:"interaction"`
	VideosCount  int64  `json:"videos_count" yaml:"videos_count"`
	IPLocation   string `json:"ip_location" yaml:"ip_location"`
	LastModifyTS int64  `json:"last_modify_ts" yaml:"last_modify_ts"`
}

func (r CreatorRecord) Key() string { return r.UserID }
func (r CreatorRecord) Valid() bool { return r.UserID != "" }

var (
	_ Record = ContentRecord{}
	_ Record = CommentRecord{}
	_ Record = CreatorRecord{}
)
