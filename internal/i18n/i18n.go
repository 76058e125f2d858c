// Package i18n holds the label translation tables shared by export
// artifacts and the dashboard. Pure lookup data: a static mapping with a
// case-insensitive fallback, untranslated keys come back unchanged.
package i18n

import "strings"

const (
	LangEN = "en"
	LangZH = "zh"
)

// DefaultLang matches the dashboard's default locale.
const DefaultLang = LangZH

var labels = map[string]map[string]string{
	LangEN: {
		"time":     "Time",
		"ip":       "IP",
		"location": "Location",
		"request":  "Request",
		"status":   "Status",
		"bytes":    "Bytes",
		"referer":  "Referer",
		"browser":  "Browser",
		"os":       "OS",
		"device":   "Device",
		"pv":       "PV",

		"yes": "Yes",
		"no":  "No",

		"unknown":         "Unknown",
		"pending":         "Resolving",
		"local":           "Local",
		"intranet":        "Intranet",
		"local network":   "Local network",
		"bot":             "Bot",
		"unknown browser": "Unknown browser",
		"unknown os":      "Unknown OS",
		"desktop":         "Desktop",
		"mobile":          "Mobile",
		"tablet":          "Tablet",
		"other device":    "Other device",
		"direct":          "Direct",
		"internal":        "Internal",
	},
	LangZH: {
		"time":     "时间",
		"ip":       "IP",
		"location": "位置",
		"request":  "请求",
		"status":   "状态码",
		"bytes":    "流量",
		"referer":  "来源",
		"browser":  "浏览器",
		"os":       "系统",
		"device":   "设备",
		"pv":       "PV",

		"yes": "是",
		"no":  "否",

		"unknown":         "未知",
		"pending":         "待解析",
		"local":           "本地",
		"intranet":        "内网",
		"local network":   "本地网络",
		"bot":             "蜘蛛",
		"unknown browser": "未知浏览器",
		"unknown os":      "未知操作系统",
		"desktop":         "桌面设备",
		"mobile":          "手机",
		"tablet":          "平板",
		"other device":    "其他设备",
		"direct":          "直接输入网址访问",
		"internal":        "站内访问",
	},
}

// Normalize maps locale spellings ("EN", "en-US", "zh-CN") onto the two
// supported languages; anything unrecognized yields "".
func Normalize(lang string) string {
	lower := strings.ToLower(strings.TrimSpace(lang))
	switch {
	case lower == LangEN, strings.HasPrefix(lower, "en-"):
		return LangEN
	case lower == LangZH, strings.HasPrefix(lower, "zh-"):
		return LangZH
	}
	return ""
}

// Table returns a copy of the full label table for lang, for callers that
// serve the whole dictionary at once.
func Table(lang string) map[string]string {
	normalized := Normalize(lang)
	if normalized == "" {
		normalized = DefaultLang
	}
	source := labels[normalized]
	table := make(map[string]string, len(source))
	for key, text := range source {
		table[key] = text
	}
	return table
}

// Label translates key for lang. Lookup is exact first, then
// case-insensitive; a key with no entry is returned unchanged.
func Label(lang, key string) string {
	normalized := Normalize(lang)
	if normalized == "" {
		normalized = DefaultLang
	}
	table := labels[normalized]
	if text, ok := table[key]; ok {
		return text
	}
	if text, ok := table[strings.ToLower(key)]; ok {
		return text
	}
	return key
}
