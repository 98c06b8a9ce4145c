package utils

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxNameLength    = 255
	MaxContentLength = 10000
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateID 校验实体 ID：1-64 个字母数字、下划线或连字符
func ValidateID(id string) bool {
	return idPattern.MatchString(id)
}

// ValidateIDs 所有 ID 均合法时返回 true
func ValidateIDs(ids []string) bool {
	for _, id := range ids {
		if !ValidateID(id) {
			return false
		}
	}
	return true
}

// ValidateName 房间名或任务标题：去除首尾空白后非空且不超过 255 个字符
func ValidateName(name string) bool {
	name = strings.TrimSpace(name)
	return name != "" && utf8.RuneCountInString(name) <= MaxNameLength
}

func ValidateContent(content string) bool {
	return strings.TrimSpace(content) != "" && utf8.RuneCountInString(content) <= MaxContentLength
}

// SanitizeFilename 去掉路径部分与控制字符
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		name = string([]rune(name)[:MaxNameLength])
	}
	return name
}
