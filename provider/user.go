package provider

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/pkg/conv"
)

// UserProvider 提供用户画像与交互历史。
type UserProvider struct {
	store core.DocumentStore
	synth *SyntheticData
	log   zerolog.Logger
	now   func() time.Time
}

// NewUserProvider 创建用户数据提供方。synth 为 nil 表示关闭演示数据。
func NewUserProvider(store core.DocumentStore, synth *SyntheticData, log zerolog.Logger) *UserProvider {
	return &UserProvider{store: store, synth: synth, log: log, now: time.Now}
}

// Get 返回用户画像，不存在时返回 nil。
func (p *UserProvider) Get(ctx context.Context, userID string) *core.UserProfile {
	doc, err := p.store.FindOne(ctx, CollectionUsers, core.Filter{"id": userID})
	if err != nil {
		p.log.Error().Err(err).Str("user_id", userID).Msg("get user profile")
		return nil
	}
	if doc == nil {
		if p.synth.IsUser(userID) {
			return p.synth.User(userID)
		}
		return nil
	}
	return decodeUser(doc)
}

// History 返回最近 limit 条交互，按时间倒序。
func (p *UserProvider) History(ctx context.Context, userID string, limit int) []core.Interaction {
	docs, err := p.store.FindMany(ctx, CollectionInteractions, core.Filter{"user_id": userID}, core.FindOptions{
		Sort:  []core.SortField{{Field: "timestamp", Desc: true}},
		Limit: int64(limit),
	})
	if err != nil {
		p.log.Error().Err(err).Str("user_id", userID).Msg("get interaction history")
		return nil
	}
	if len(docs) == 0 && p.synth.IsUser(userID) {
		return p.synth.History(userID, limit)
	}
	out := make([]core.Interaction, 0, len(docs))
	for _, d := range docs {
		out = append(out, decodeInteraction(d))
	}
	return out
}

// RecordInteraction 追加一条交互。Timestamp 为零值时使用当前时间。
func (p *UserProvider) RecordInteraction(ctx context.Context, in core.Interaction) error {
	if in.Timestamp.IsZero() {
		in.Timestamp = p.now().UTC()
	}
	_, err := p.store.InsertOne(ctx, CollectionInteractions, core.Document{
		"user_id":          in.UserID,
		"product_id":       in.ProductID,
		"interaction_type": string(in.Kind),
		"timestamp":        in.Timestamp,
	})
	if err != nil {
		if core.IsDomainError(err) {
			return err
		}
		return core.Unavailable(core.ModuleProvider, "record interaction", err)
	}
	return nil
}

// Segments 返回用户所属分群，用户不存在时为空。
func (p *UserProvider) Segments(ctx context.Context, userID string) []string {
	u := p.Get(ctx, userID)
	if u == nil {
		return nil
	}
	return u.Segments
}

// userPageSize 是 IDs 分页读取的页大小。
const userPageSize = 1000

// IDs 按 id 升序列出已存储用户，供批量任务使用。与其他读操作不同，存储错误会返回给调用方。
func (p *UserProvider) IDs(ctx context.Context) ([]string, error) {
	var ids []string
	for skip := int64(0); ; skip += userPageSize {
		docs, err := p.store.FindMany(ctx, CollectionUsers, core.Filter{}, core.FindOptions{
			Sort:  []core.SortField{{Field: "id"}},
			Limit: userPageSize,
			Skip:  skip,
		})
		if err != nil {
			if core.IsDomainError(err) {
				return nil, err
			}
			return nil, core.Unavailable(core.ModuleProvider, "list users", err)
		}
		for _, d := range docs {
			if id := conv.Get(d, "id", ""); id != "" {
				ids = append(ids, id)
			}
		}
		if len(docs) < userPageSize {
			return ids, nil
		}
	}
}

// SaveUser 写入（或覆盖）用户画像。
func (p *UserProvider) SaveUser(ctx context.Context, u *core.UserProfile) error {
	_, err := p.store.UpdateOne(ctx, CollectionUsers, core.Filter{"id": u.ID}, encodeUser(u), true)
	return err
}

func decodeUser(doc core.Document) *core.UserProfile {
	u := &core.UserProfile{
		ID:       conv.Get(doc, "id", ""),
		Name:     conv.Get(doc, "name", ""),
		Email:    conv.Get(doc, "email", ""),
		Tier:     core.ParseTier(conv.Get(doc, "subscription_tier", "")),
		Segments: conv.SliceAnyToString(doc["segments"]),
	}
	if prefs := conv.GetMap(doc, "preferences"); prefs != nil {
		u.Preferences.Categories = conv.SliceAnyToString(prefs["categories"])
	}
	return u
}

func encodeUser(u *core.UserProfile) core.Document {
	segments := u.Segments
	if segments == nil {
		segments = []string{}
	}
	categories := u.Preferences.Categories
	if categories == nil {
		categories = []string{}
	}
	return core.Document{
		"id":                u.ID,
		"name":              u.Name,
		"email":             u.Email,
		"subscription_tier": string(u.Tier),
		"segments":          segments,
		"preferences":       map[string]any{"categories": categories},
	}
}

func decodeInteraction(doc core.Document) core.Interaction {
	ts, _ := conv.ToTime(doc["timestamp"])
	return core.Interaction{
		UserID:    conv.Get(doc, "user_id", ""),
		ProductID: conv.Get(doc, "product_id", ""),
		Kind:      core.InteractionKind(conv.Get(doc, "interaction_type", "")),
		Timestamp: ts,
	}
}
