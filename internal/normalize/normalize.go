// Package normalize maps captured items onto canonical records.
//
// Every function is total: fields that cannot be found, or that have an
// unexpected type, take their zero value instead of failing.
package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jmylchreest/mediacrawl/internal/model"
)

// BaseURL is the site root used to build video URLs.
const BaseURL = "https://www.tiktok.com"

// now is replaced in tests.
var now = time.Now

// Content builds a ContentRecord from a video item.
func Content(raw map[string]any, rc model.RunContext) model.ContentRecord {
	k := ContentKeys
	desc := str(raw, k.Desc)
	r := model.ContentRecord{
		VideoID:          str(raw, k.VideoID),
		Title:            desc,
		Desc:             desc,
		CreateTime:       integer(raw, k.CreateTime),
		UserID:           str(raw, k.UserID),
		SecUID:           str(raw, k.SecUID),
		UserUniqueID:     str(raw, k.UniqueID),
		Nickname:         str(raw, k.Nickname),
		Avatar:           image(raw, k.Avatar),
		UserSignature:    str(raw, k.Bio),
		LikedCount:       integer(raw, k.Likes),
		CollectedCount:   integer(raw, k.Collects),
		CommentCount:     integer(raw, k.Comments),
		ShareCount:       integer(raw, k.Shares),
		PlayCount:        integer(raw, k.Plays),
		IPLocation:       str(raw, k.Location),
		CoverURL:         image(raw, k.Cover),
		VideoDownloadURL: image(raw, k.PlayAddr),
		MusicDownloadURL: image(raw, k.MusicURL),
		SourceKeyword:    rc.Keyword,
		LastModifyTS:     now().UnixMilli(),
	}
	r.VideoURL = VideoURL(r.UserUniqueID, r.VideoID)
	return r
}

// Comment builds a CommentRecord for videoID from a comment item in either
// the comment API shape or the camelCase item shape.
func Comment(videoID string, raw map[string]any) model.CommentRecord {
	k := CommentKeys
	t := now()

	createTime := integer(raw, k.CreateTime)
	if _, ok := first(raw, k.CreateTime); !ok {
		createTime = t.Unix()
	}
	parent := str(raw, k.ParentID)
	if parent == "" {
		parent = "0"
	}

	return model.CommentRecord{
		CommentID:       str(raw, k.CommentID),
		VideoID:         videoID,
		Content:         str(raw, k.Text),
		CreateTime:      createTime,
		LikeCount:       integer(raw, k.Likes),
		SubCommentCount: integer(raw, k.Replies),
		ParentCommentID: parent,
		UserID:          str(raw, k.UserID),
		SecUID:          str(raw, k.SecUID),
		UserUniqueID:    str(raw, k.UniqueID),
		Nickname:        str(raw, k.Nickname),
		Avatar:          image(raw, k.Avatar),
		UserSignature:   str(raw, k.Bio),
		IPLocation:      str(raw, k.Location),
		LastModifyTS:    t.UnixMilli(),
	}
}

// Creator builds a CreatorRecord from a creator profile. It returns false
// when the profile has no nested user object.
func Creator(raw map[string]any) (model.CreatorRecord, bool) {
	if _, ok := raw["user"].(map[string]any); !ok {
		return model.CreatorRecord{}, false
	}

	k := CreatorKeys
	return model.CreatorRecord{
		UserID:       str(raw, k.UserID),
		UserUniqueID: str(raw, k.UniqueID),
		SecUID:       str(raw, k.SecUID),
		Nickname:     str(raw, k.Nickname),
		Avatar:       image(raw, k.Avatar),
		Desc:         str(raw, k.Desc),
		Follows:      integer(raw, k.Follows),
		Fans:         integer(raw, k.Fans),
		Interaction:  integer(raw, k.Interaction),
		VideosCount:  integer(raw, k.Videos),
		IPLocation:   str(raw, k.Location),
		LastModifyTS: now().UnixMilli(),
	}, true
}

// VideoURL returns the canonical page URL of a video, or "" when either
// part is unknown.
func VideoURL(uniqueID, videoID string) string {
	if uniqueID == "" || videoID == "" {
		return ""
	}
	return BaseURL + "/@" + uniqueID + "/video/" + videoID
}

// lookup follows p through nested objects. Null counts as absent.
func lookup(raw map[string]any, p Path) (any, bool) {
	var cur any = raw
	for _, key := range p {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[key]; !ok {
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// first returns the value at the first path holding a usable value. Empty
// strings fall through to the next candidate.
func first(raw map[string]any, paths []Path) (any, bool) {
	for _, p := range paths {
		v, ok := lookup(raw, p)
		if !ok {
			continue
		}
		if s, isStr := v.(string); isStr && s == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

func str(raw map[string]any, paths []Path) string {
	v, ok := first(raw, paths)
	if !ok {
		return ""
	}
	return toString(v)
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

func integer(raw map[string]any, paths []Path) int64 {
	v, ok := first(raw, paths)
	if !ok {
		return 0
	}
	return toInt(v)
}

func toInt(v any) int64 {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return floatToInt(f)
		}
	case float64:
		return floatToInt(x)
	case int64:
		return x
	case int:
		return int64(x)
	case string:
		s := strings.TrimSpace(x)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return floatToInt(f)
		}
	}
	return 0
}

func floatToInt(f float64) int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0
	}
	return int64(f)
}

// image returns a URL held either as a plain string, as a list of URLs, or
// as an object with a url_list.
func image(raw map[string]any, paths []Path) string {
	for _, p := range paths {
		v, ok := lookup(raw, p)
		if !ok {
			continue
		}
		if u := imageURL(v); u != "" {
			return u
		}
	}
	return ""
}

func imageURL(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []any:
		for _, e := range x {
			if s, ok := e.(string); ok && s != "" {
				return s
			}
		}
	case map[string]any:
		return imageURL(x["url_list"])
	}
	return ""
}
