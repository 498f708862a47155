// Package digest renders validated news records into the HTML email
// document.
package digest

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"time"

	"github.com/newspulse/newspulse/internal/news"
)

// Template is the visual configuration of the digest email.
type Template struct {
	Subject         string
	HeaderColor     string
	BackgroundColor string
	CardColor       string
	TextColor       string
	LinkColor       string
	MutedColor      string
	MaxWidth        string
	FontFamily      string
}

// DefaultTemplate returns the stock digest look.
func DefaultTemplate() *Template {
	return &Template{
		Subject:         "每日新闻摘要 {{.Date}}",
		HeaderColor:     "#2c3e50",
		BackgroundColor: "#f5f5f5",
		CardColor:       "#ffffff",
		TextColor:       "#222222",
		LinkColor:       "#2980b9",
		MutedColor:      "#95a5a6",
		MaxWidth:        "800px",
		FontFamily:      `-apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif`,
	}
}

// Article is one rendered card.
type Article struct {
	TitleEN, TitleZH             string
	URL                          string
	PublishTime                  string
	ImageURL                     string
	DescriptionEN, DescriptionZH string
	OverviewEN, OverviewZH       string
	KeyEntitiesEN, KeyEntitiesZH string
	ImpactEN, ImpactZH           string
}

const digestHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0, maximum-scale=1.0, user-scalable=no">
<style type="text/css">{{.CSS}}</style>
</head>
<body>
<div class="container">
<h2 class="title">{{.Title}}</h2>
{{range .Articles}}<div class="article">
<h3 class="translation-title"><a href="{{.URL}}" target="_blank">{{.TitleEN}}</a></h3>
<div class="translation-title">{{.TitleZH}}</div>
{{if .PublishTime}}<div class="publish-time">发布时间: {{.PublishTime}}</div>
{{end}}{{if .ImageURL}}<div class="image-container"><img src="{{.ImageURL}}" alt="{{.TitleEN}}" class="news-image" loading="lazy"></div>
{{end}}<div class="summary translation-summary">{{.DescriptionEN}}</div>
<div class="translation-summary">{{.DescriptionZH}}</div>
<div class="ai-analysis">
<p><strong>主要事件：</strong>{{.OverviewEN}}</p>
<div class="translation-analysis">{{.OverviewZH}}</div>
{{if .KeyEntitiesEN}}<p><strong>关键人物和机构：</strong>{{.KeyEntitiesEN}}</p>
<div class="translation-analysis">{{.KeyEntitiesZH}}</div>
{{end}}<p><strong>事件影响：</strong>{{.ImpactEN}}</p>
<div class="translation-analysis">{{.ImpactZH}}</div>
</div>
</div>
{{end}}</div>
</body>
</html>`

var digestTmpl = template.Must(template.New("digest").Parse(digestHTML))

func buildCSS(t *Template) string {
	return fmt.Sprintf(`* { box-sizing: border-box; }
body { margin: 0; padding: 10px; background: %s; font-family: %s; }
.container { max-width: %s; width: 100%%; margin: 0 auto; padding: 20px; }
.title { color: %s; padding-bottom: 15px; text-align: center; font-size: 20px; margin: 0; }
.article { background: %s; padding: 15px; margin-bottom: 20px; border-radius: 10px; box-shadow: 0 2px 8px rgba(0,0,0,0.05); }
.article h3, .article .translation-title { font-size: 16px; line-height: 1.4; color: %s; margin: 0 0 10px 0; }
.summary, .translation-summary { margin: 10px 0; line-height: 1.5; font-size: 14px; color: %s; }
.ai-analysis p, .ai-analysis .translation-analysis { margin: 6px 0; font-size: 13px; color: %s; }
.article a { color: %s; text-decoration: none; display: block; word-break: break-all; }
.news-image { width: 100%%; max-width: 100%%; height: auto; border-radius: 8px; margin: 10px 0; }
.image-container { position: relative; width: 100%%; margin: 10px 0; }
.publish-time { color: %s; font-size: 12px; margin: 5px 0; }
@media screen and (max-width: 480px) {
  .container { padding: 10px; }
  .article { padding: 12px; margin-bottom: 15px; }
  .article h3 { font-size: 15px; }
  .summary { font-size: 13px; }
  .ai-analysis p { font-size: 12px; }
}`,
		t.BackgroundColor, t.FontFamily, t.MaxWidth, t.HeaderColor, t.CardColor,
		t.HeaderColor, t.TextColor, t.TextColor, t.LinkColor, t.MutedColor)
}

// Render turns validated records into the digest HTML. Records are laid out
// newest first; publish times are normalized for display in loc, and
// resolveURL (optional) absolutizes links lifted from scraped pages. The
// input slice is not mutated.
func Render(tmpl *Template, records []news.Record, loc *time.Location, resolveURL func(string) string) (string, error) {
	if tmpl == nil {
		tmpl = DefaultTemplate()
	}
	if resolveURL == nil {
		resolveURL = func(raw string) string { return raw }
	}

	articles := make([]Article, 0, len(records))
	for _, record := range records {
		article := Article{
			TitleEN:       record.Title.EN,
			TitleZH:       record.Title.ZH,
			URL:           resolveURL(record.URL),
			ImageURL:      record.ImageURL,
			DescriptionEN: record.Description.EN,
			DescriptionZH: record.Description.ZH,
			OverviewEN:    record.Analysis.Overview.EN,
			OverviewZH:    record.Analysis.Overview.ZH,
			KeyEntitiesEN: record.Analysis.KeyEntities.EN,
			KeyEntitiesZH: record.Analysis.KeyEntities.ZH,
			ImpactEN:      record.Analysis.Impact.EN,
			ImpactZH:      record.Analysis.Impact.ZH,
		}
		if record.PublishTime != "" {
			article.PublishTime = news.NormalizePublishTime(record.PublishTime, loc)
		}
		articles = append(articles, article)
	}

	// The normalized display form sorts lexically in time order; values
	// that stayed free-form sink to the end.
	sort.SliceStable(articles, func(i, j int) bool {
		return sortKey(articles[i].PublishTime) > sortKey(articles[j].PublishTime)
	})

	data := struct {
		Title    string
		Articles []Article
		CSS      template.CSS
	}{
		Title:    fmt.Sprintf("TOP%d 新闻摘要", len(articles)),
		Articles: articles,
		CSS:      template.CSS(buildCSS(tmpl)),
	}

	var buf bytes.Buffer
	if err := digestTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render digest: %w", err)
	}
	return buf.String(), nil
}

func sortKey(publishTime string) string {
	if _, err := time.Parse("2006-01-02 15:04", publishTime); err != nil {
		return ""
	}
	return publishTime
}

// Subject renders the email subject for the given date.
func Subject(tmpl *Template, now time.Time) (string, error) {
	if tmpl == nil {
		tmpl = DefaultTemplate()
	}
	subjectTmpl, err := template.New("subject").Parse(tmpl.Subject)
	if err != nil {
		return "", fmt.Errorf("failed to parse subject template: %w", err)
	}

	var buf bytes.Buffer
	err = subjectTmpl.Execute(&buf, struct{ Date string }{Date: now.Format("2006-01-02")})
	if err != nil {
		return "", fmt.Errorf("failed to render subject: %w", err)
	}
	return buf.String(), nil
}
