// Package prompt builds the model instructions for every acquisition mode.
// Building is pure string work: given the same material and clock, the same
// prompt comes out.
package prompt

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Task selects which instruction template wraps the source material.
type Task int

const (
	// TaskExtract points the model at a raw front-page HTML fragment.
	TaskExtract Task = iota
	// TaskDigest points the model at pre-fetched search results, feed items
	// or headlines.
	TaskDigest
	// TaskAgent lets the model drive acquisition itself through the
	// registered web-search tool.
	TaskAgent
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "2006-01-02 15:04:05"

	// maxMaterialRunes caps the embedded source material. Front pages can be
	// arbitrarily large; everything below the cap is embedded verbatim.
	maxMaterialRunes = 80000
)

// recordSchema is the exact JSON array shape the parser expects back. Every
// template appends it so the model's output stays machine-readable.
const recordSchema = `[
    {
        "title": {
            "en": "英文标题",
            "zh": "中文标题"
        },
        "publish_time": "发布时间（如果有）",
        "description": {
            "en": "英文描述",
            "zh": "中文描述"
        },
        "url": "新闻链接",
        "image_url": "图片链接（如果有）",
        "analysis": {
            "overview": {
                "en": "英文概述",
                "zh": "中文概述"
            },
            "key_entities": {
                "en": "英文关键人物和机构",
                "zh": "中文关键人物和机构"
            },
            "impact": {
                "en": "英文影响",
                "zh": "中文影响"
            }
        }
    }
]`

// jsonRules closes every template; the "must be complete" line measurably
// reduces mid-object truncation.
const jsonRules = `请确保返回的是有效的JSON格式，并按照新闻重要性排序。每条新闻的JSON对象必须完整，不要截断。`

const extractTemplate = `请分析以下新闻页面的HTML内容，提取最重要的前%d条新闻。请按重要性排序，对于每条新闻，请提供：
1. 标题（英文原文和中文翻译）
2. 发布时间（如果有）
3. 简要描述（英文原文和中文翻译）
4. 新闻链接
5. 相关图片链接（如果有的话）
6. 主要事件概述（英文原文和中文翻译）
7. 关键人物和机构（英文原文和中文翻译）
8. 事件影响（英文原文和中文翻译）

请特别注意提取h2、h3标题下的重要新闻内容。请以JSON格式返回，格式如下：
%s

HTML内容：
%s

%s`

const digestTemplate = `你是一位专业的新闻分析师。我将为你提供一些最近新闻的搜索结果，你的任务是整合这些信息并提取当前最重要的全球新闻事件。

数据时间：%s
时间范围：%s 至 %s

这是最近的新闻搜索结果：
%s

请基于以上搜索结果和你的知识，分析并提取最重要的前%d条全球新闻，按重要性排序，确保内容的时效性。如果搜索结果中没有足够信息，请基于你的知识来补充可能的重要新闻。请以JSON格式返回，格式如下：
%s

%s`

const agentTemplate = `今天是%s。请使用你拥有的网络搜索工具，查找%s至%s期间全球范围内受到广泛关注的重要新闻，然后整合搜索结果并提取最重要的前%d条，按重要性排序。请以JSON格式返回，格式如下：
%s

%s`

// Build composes the instruction for task around the source material. The
// lookback window is injected as literal dates because the model has no
// reliable notion of "the last 24 hours".
func Build(task Task, material string, count int, now time.Time, lookback time.Duration) string {
	material = truncate(material, maxMaterialRunes)
	from := now.Add(-lookback)

	switch task {
	case TaskExtract:
		return fmt.Sprintf(extractTemplate, count, recordSchema, material, jsonRules)
	case TaskAgent:
		return fmt.Sprintf(agentTemplate,
			now.Format(dateLayout), from.Format(dateLayout), now.Format(dateLayout),
			count, recordSchema, jsonRules)
	default:
		return fmt.Sprintf(digestTemplate,
			now.Format(timeLayout), from.Format(timeLayout), now.Format(timeLayout),
			material, count, recordSchema, jsonRules)
	}
}

// SearchQuery builds the time-scoped, source-restricted query for search
// mode, e.g. "重要新闻 after:2025-06-03 before:2025-06-04 site:reuters.com OR
// site:bloomberg.com".
func SearchQuery(now time.Time, lookback time.Duration, sources []string) string {
	from := now.Add(-lookback).Format(dateLayout)
	to := now.Format(dateLayout)

	query := fmt.Sprintf("重要新闻 after:%s before:%s", from, to)

	sites := make([]string, 0, len(sources))
	for _, source := range sources {
		source = strings.TrimSpace(source)
		if source == "" {
			continue
		}
		if !strings.Contains(source, ".") {
			source += ".com"
		}
		sites = append(sites, "site:"+source)
	}
	if len(sites) > 0 {
		query += " " + strings.Join(sites, " OR ")
	}
	return query
}

// truncate cuts material on a rune boundary and marks the cut, so the model
// never sees a prompt that silently stops mid-page.
func truncate(material string, maxRunes int) string {
	if utf8.RuneCountInString(material) <= maxRunes {
		return material
	}
	runes := []rune(material)
	return string(runes[:maxRunes]) + "\n[TRUNCATED]"
}
