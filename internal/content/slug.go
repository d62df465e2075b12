package content

import "regexp"

// 小写字母数字，中间可用单个连字符分隔
var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

const (
	// SlugMinLen 常规 slug 最短长度
	SlugMinLen = 5
	// ShortSlugMinLen page 等短路径允许的最短长度
	ShortSlugMinLen = 3
)

// IsValidSlug 长度 >= 5 且符合 slug 格式
func IsValidSlug(s string) bool {
	return len(s) >= SlugMinLen && slugPattern.MatchString(s)
}

// IsValidShortSlug 长度 >= 3 且符合 slug 格式
func IsValidShortSlug(s string) bool {
	return len(s) >= ShortSlugMinLen && slugPattern.MatchString(s)
}

// matchesSlugPattern 只校验格式，不校验长度
func matchesSlugPattern(s string) bool {
	return slugPattern.MatchString(s)
}
