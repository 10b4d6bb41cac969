package core

// RecommendContext 承载用户/场景信息，贯穿打分与业务规则透传。
type RecommendContext struct {
	UserID string

	// Scene 是请求上下文标签（homepage / cart / product_page ...），可为空
	Scene string

	// Category 是类别过滤，可为空
	Category string

	// AlgorithmVersion 是本次请求实际使用的算法版本
	AlgorithmVersion string

	// User 是用户画像，缺失时为 EmptyProfile
	User *UserProfile

	// History 是交互历史，按时间倒序
	History []Interaction
}

// GetUserProfile 获取用户画像，为空时返回空画像。
func (rctx *RecommendContext) GetUserProfile() *UserProfile {
	if rctx == nil {
		return EmptyProfile("")
	}
	if rctx.User != nil {
		return rctx.User
	}
	return EmptyProfile(rctx.UserID)
}
