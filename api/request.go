package api

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/rushteam/recserve/core"
)

// maxBodyBytes 是请求体上限。
const maxBodyBytes = 1 << 20

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// getValidator 返回单例 validator，错误信息使用 json 字段名。
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})
		validate = v
	})
	return validate
}

// RecommendQuery 是推荐接口的查询参数。Limit 为 0 表示使用默认条数，上限由服务端配置校验。
type RecommendQuery struct {
	Limit            int    `json:"limit" validate:"gte=0"`
	AlgorithmVersion string `json:"algorithm_version" validate:"omitempty,max=64"`
	Category         string `json:"category" validate:"omitempty,max=64"`
	Context          string `json:"context" validate:"omitempty,max=64"`
}

// FeedbackRequest 是反馈接口的请求体（或查询参数）。
type FeedbackRequest struct {
	ProductID       string `json:"product_id" validate:"required,max=128"`
	InteractionType string `json:"interaction_type" validate:"required,oneof=view click add_to_cart purchase rate"`
}

func parseRecommendQuery(r *http.Request) (RecommendQuery, error) {
	q := r.URL.Query()
	out := RecommendQuery{
		AlgorithmVersion: q.Get("algorithm_version"),
		Category:         q.Get("category"),
		Context:          q.Get("context"),
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return out, core.InvalidInput(core.ModuleService, "limit must be an integer")
		}
		out.Limit = n
	}
	return out, validateStruct(out)
}

// parseFeedback 优先读取 JSON 请求体，请求体为空时读取查询参数。
func parseFeedback(w http.ResponseWriter, r *http.Request) (FeedbackRequest, error) {
	var out FeedbackRequest
	if r.Body != nil && r.ContentLength != 0 {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&out); err != nil {
			return out, core.InvalidInput(core.ModuleService, "invalid JSON body")
		}
	} else {
		q := r.URL.Query()
		out.ProductID = q.Get("product_id")
		out.InteractionType = q.Get("interaction_type")
	}
	return out, validateStruct(out)
}

func validateStruct(v any) error {
	err := getValidator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return core.InvalidInput(core.ModuleService, "%s", fieldMessage(verrs[0]))
	}
	return core.InvalidInput(core.ModuleService, "invalid request")
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
