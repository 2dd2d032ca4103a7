package normalize

// Path is a sequence of object keys leading to a value.
type Path []string

// Candidate key paths per logical field, in priority order. The camelCase
// paths match items from the list APIs and embedded page data; the
// snake_case paths match the comment API and older item payloads.

// ContentKeys locates ContentRecord fields in a video item.
var ContentKeys = struct {
	VideoID, Desc, CreateTime                       []Path
	UserID, SecUID, UniqueID, Nickname, Avatar, Bio []Path
	Likes, Collects, Comments, Shares, Plays        []Path
	Location, Cover, PlayAddr, MusicURL             []Path
}{
	VideoID:    []Path{{"id"}, {"aweme_id"}},
	Desc:       []Path{{"desc"}},
	CreateTime: []Path{{"createTime"}, {"create_time"}},

	UserID:   []Path{{"author", "id"}, {"author", "uid"}},
	SecUID:   []Path{{"author", "secUid"}, {"author", "sec_uid"}},
	UniqueID: []Path{{"author", "uniqueId"}, {"author", "unique_id"}},
	Nickname: []Path{{"author", "nickname"}},
	Avatar:   []Path{{"author", "avatarThumb"}, {"author", "avatar_thumb"}, {"author", "avatarMedium"}},
	Bio:      []Path{{"author", "signature"}},

	Likes:    []Path{{"stats", "diggCount"}, {"statsV2", "diggCount"}, {"statistics", "digg_count"}},
	Collects: []Path{{"stats", "collectCount"}, {"statsV2", "collectCount"}, {"statistics", "collect_count"}},
	Comments: []Path{{"stats", "commentCount"}, {"statsV2", "commentCount"}, {"statistics", "comment_count"}},
	Shares:   []Path{{"stats", "shareCount"}, {"statsV2", "shareCount"}, {"statistics", "share_count"}},
	Plays:    []Path{{"stats", "playCount"}, {"statsV2", "playCount"}, {"statistics", "play_count"}},

	Location: []Path{{"locationCreated"}, {"ip_label"}},
	Cover:    []Path{{"video", "cover"}, {"video", "originCover"}, {"video", "origin_cover"}},
	PlayAddr: []Path{{"video", "playAddr"}, {"video", "play_addr"}, {"video", "downloadAddr"}},
	MusicURL: []Path{{"music", "playUrl"}, {"music", "play_url"}},
}

// CommentKeys locates CommentRecord fields in a comment item.
var CommentKeys = struct {
	CommentID, Text, CreateTime, Likes, Replies, ParentID []Path
	UserID, SecUID, UniqueID, Nickname, Avatar, Bio       []Path
	Location                                              []Path
}{
	CommentID:  []Path{{"cid"}, {"id"}},
	Text:       []Path{{"text"}},
	CreateTime: []Path{{"create_time"}, {"createTime"}},
	Likes:      []Path{{"digg_count"}, {"diggCount"}},
	Replies:    []Path{{"reply_comment_total"}, {"replyCommentTotal"}},
	ParentID:   []Path{{"reply_id"}, {"replyID"}, {"replyId"}},

	UserID:   []Path{{"user", "uid"}, {"user", "id"}},
	SecUID:   []Path{{"user", "sec_uid"}, {"user", "secUid"}},
	UniqueID: []Path{{"user", "unique_id"}, {"user", "uniqueId"}},
	Nickname: []Path{{"user", "nickname"}},
	Avatar:   []Path{{"user", "avatar_thumb"}, {"user", "avatarThumb"}},
	Bio:      []Path{{"user", "signature"}},

	Location: []Path{{"ip_label"}},
}

// CreatorKeys locates CreatorRecord fields in a creator profile
// ({"user": {...}, "stats": {...}}).
var CreatorKeys = struct {
	UserID, UniqueID, SecUID, Nickname, Avatar, Desc []Path
	Follows, Fans, Interaction, Videos, Location     []Path
}{
	UserID:   []Path{{"user", "id"}, {"user", "uid"}},
	UniqueID: []Path{{"user", "uniqueId"}, {"user", "unique_id"}},
	SecUID:   []Path{{"user", "secUid"}, {"user", "sec_uid"}},
	Nickname: []Path{{"user", "nickname"}},
	Avatar: []Path{
		{"user", "avatarLarger"}, {"user", "avatar_larger"},
		{"user", "avatarMedium"}, {"user", "avatarThumb"},
	},
	Desc: []Path{{"user", "signature"}},

	Follows:     []Path{{"stats", "followingCount"}, {"statsV2", "followingCount"}, {"stats", "following_count"}},
	Fans:        []Path{{"stats", "followerCount"}, {"statsV2", "followerCount"}, {"stats", "follower_count"}},
	Interaction: []Path{{"stats", "heartCount"}, {"stats", "heart"}, {"statsV2", "heartCount"}, {"stats", "total_favorited"}},
	Videos:      []Path{{"stats", "videoCount"}, {"statsV2", "videoCount"}, {"stats", "aweme_count"}},
	Location:    []Path{{"user", "ip_label"}},
}
