package output

import (
	"strings"

	"github.com/zx06/sshpin/internal/errors"
)

type Format string

const (
	FormatAuto  Format = "auto"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatTable Format = "table"
	FormatCSV   Format = "csv"
)

// Formats 按帮助文本中的顺序列出全部格式。
func Formats() []Format {
	return []Format{FormatAuto, FormatJSON, FormatYAML, FormatTable, FormatCSV}
}

func IsValid(f Format) bool {
	switch f {
	case FormatAuto, FormatJSON, FormatYAML, FormatTable, FormatCSV:
		return true
	default:
		return false
	}
}

// ParseFormat 解析 --format / SSHPIN_FORMAT 的值（大小写不敏感）；"auto" 原样返回。
func ParseFormat(s string) (Format, *errors.XError) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return FormatAuto, nil
	}
	if !IsValid(f) {
		return "", errors.New(errors.CodeCfgInvalid, "invalid output format",
			map[string]any{"format": s, "allowed": FormatList()})
	}
	return f, nil
}

// FormatList 返回 "auto|json|yaml|table|csv"。
func FormatList() string {
	names := make([]string, 0, 5)
	for _, f := range Formats() {
		names = append(names, string(f))
	}
	return strings.Join(names, "|")
}
