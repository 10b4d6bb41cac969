package core

import "slices"

// SubscriptionTier 是用户订阅等级。
type SubscriptionTier string

const (
	TierBasic   SubscriptionTier = "basic"
	TierPlus    SubscriptionTier = "plus"
	TierPremium SubscriptionTier = "premium"
)

// ParseTier 解析订阅等级，未知值按 basic 处理。
func ParseTier(s string) SubscriptionTier {
	switch SubscriptionTier(s) {
	case TierPlus:
		return TierPlus
	case TierPremium:
		return TierPremium
	default:
		return TierBasic
	}
}

// Preferences 是用户的偏好属性。
type Preferences struct {
	Categories []string `json:"categories,omitempty"`
}

// UserProfile 是用户画像。
//
// 用户画像驱动两件事：
//   - 打分：偏好类别参与内容打分
//   - 业务规则：订阅等级决定是否加权
//
// 画像缺失时编排层使用 EmptyProfile 继续，不会让请求失败。
type UserProfile struct {
	ID          string           `json:"id"`
	Name        string           `json:"name,omitempty"`
	Email       string           `json:"email,omitempty"`
	Tier        SubscriptionTier `json:"subscription_tier"`
	Segments    []string         `json:"segments,omitempty"`
	Preferences Preferences      `json:"preferences"`
}

// EmptyProfile 返回只有 ID 的空画像（basic 等级，无偏好）。
func EmptyProfile(userID string) *UserProfile {
	return &UserProfile{ID: userID, Tier: TierBasic}
}

// IsPremium 是否为 premium 用户。
func (p *UserProfile) IsPremium() bool {
	return p != nil && p.Tier == TierPremium
}

// HasSegment 检查用户是否属于某个分群。
func (p *UserProfile) HasSegment(segment string) bool {
	if p == nil {
		return false
	}
	return slices.Contains(p.Segments, segment)
}

// PrefersCategory 检查用户是否偏好某个类别。
func (p *UserProfile) PrefersCategory(category string) bool {
	if p == nil || category == "" {
		return false
	}
	return slices.Contains(p.Preferences.Categories, category)
}
