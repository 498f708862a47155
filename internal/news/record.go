package news

import (
	"fmt"
	"strings"
)

// Bilingual is one piece of text carried in both languages the digest renders.
type Bilingual struct {
	EN string `json:"en"`
	ZH string `json:"zh"`
}

// Analysis is the model's three-part commentary on an article.
type Analysis struct {
	Overview    Bilingual `json:"overview"`
	KeyEntities Bilingual `json:"key_entities"`
	Impact      Bilingual `json:"impact"`
}

// Record is one analyzed news article as the model returns it. Records are
// treated as immutable once parsed: incomplete ones are dropped, never
// repaired.
type Record struct {
	Title       Bilingual `json:"title"`
	PublishTime string    `json:"publish_time,omitempty"`
	Description Bilingual `json:"description"`
	URL         string    `json:"url"`
	ImageURL    string    `json:"image_url,omitempty"`
	Analysis    Analysis  `json:"analysis"`
}

// Validate reports the first required field the record is missing. Only
// title, description, url and the three analysis sections are required;
// publish_time and image_url may be absent.
func (r *Record) Validate() error {
	checks := []struct {
		field string
		value string
	}{
		{"title.en", r.Title.EN},
		{"title.zh", r.Title.ZH},
		{"description.en", r.Description.EN},
		{"description.zh", r.Description.ZH},
		{"url", r.URL},
		{"analysis.overview.en", r.Analysis.Overview.EN},
		{"analysis.overview.zh", r.Analysis.Overview.ZH},
		{"analysis.key_entities.en", r.Analysis.KeyEntities.EN},
		{"analysis.key_entities.zh", r.Analysis.KeyEntities.ZH},
		{"analysis.impact.en", r.Analysis.Impact.EN},
		{"analysis.impact.zh", r.Analysis.Impact.ZH},
	}
	for _, c := range checks {
		if strings.TrimSpace(c.value) == "" {
			return fmt.Errorf("missing %s", c.field)
		}
	}
	return nil
}

// placeholderTitleEN marks the sentinel record produced when analysis fails.
const placeholderTitleEN = "AI analysis failed"

// Placeholder builds the sentinel record delivered in place of real articles
// when the model produced nothing usable. Callers must check IsPlaceholder
// before delivering a digest built from parser output.
func Placeholder(reasonEN, reasonZH string) Record {
	return Record{
		Title: Bilingual{
			EN: placeholderTitleEN,
			ZH: "AI分析失败，部分新闻内容无法获取",
		},
		Description: Bilingual{
			EN: reasonEN,
			ZH: reasonZH,
		},
		Analysis: Analysis{
			Overview: Bilingual{
				EN: "The AI service was unavailable or returned an unusable response.",
				ZH: "AI服务异常或返回了无法使用的内容。",
			},
			KeyEntities: Bilingual{
				EN: "",
				ZH: "",
			},
			Impact: Bilingual{
				EN: "No news content is available for this run.",
				ZH: "本次运行暂无新闻内容。",
			},
		},
	}
}

// IsPlaceholder reports whether records is the failure sentinel rather than
// real content.
func IsPlaceholder(records []Record) bool {
	return len(records) > 0 && strings.Contains(records[0].Title.EN, placeholderTitleEN)
}
