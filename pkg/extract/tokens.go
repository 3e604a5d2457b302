package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/merlian/merlian/pkg/backend"
)

// Tokenize 把文本切成检索用的词元
// 小写化，按非字母数字边界切分，丢弃长度小于2的词元
// 长度按字符数而不是字节数计算，单个CJK字符同样被丢弃
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) >= 2 {
			tokens = append(tokens, f)
		}
	}

	return tokens
}

// Textiness 计算图片被文字占据的面积比例
// 由OCR包围盒面积之和除以像素总面积得到，截断到 [0, 1]
func Textiness(tokens []backend.OCRToken, width, height int) float64 {
	if width <= 0 || height <= 0 || len(tokens) == 0 {
		return 0
	}

	var covered float64
	for _, t := range tokens {
		if t.W > 0 && t.H > 0 {
			covered += float64(t.W) * float64(t.H)
		}
	}

	ratio := covered / (float64(width) * float64(height))
	if ratio > 1 {
		return 1
	}
	return ratio
}
