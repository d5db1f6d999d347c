package gate

import (
	"encoding/json"

	"github.com/straja-ai/tonegate/internal/entitlement"
	"github.com/straja-ai/tonegate/internal/inference"
)

// Meta carries the caller's entitlement state alongside a rewrite.
type Meta struct {
	Plan  string          `json:"plan"`
	Usage json.RawMessage `json:"usage"`
}

// Response is the successful gateway answer.
type Response struct {
	IsOffensive bool   `json:"isOffensive"`
	Suggestion  string `json:"suggestion"`
	Meta        Meta   `json:"meta"`
}

// Assemble merges a rewrite with the verdict that authorized it.
func Assemble(res inference.RewriteResult, v entitlement.Verdict) Response {
	return Response{
		IsOffensive: res.IsOffensive,
		Suggestion:  res.Suggestion,
		Meta: Meta{
			Plan:  v.Plan,
			Usage: v.Usage,
		},
	}
}
