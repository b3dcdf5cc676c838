package services

import (
	"strings"

	"golang.org/x/text/language"

	"github.com/ymzhao/go-car-advisor/internal/domain"
)

// canonicalLanguage folds client-supplied BCP 47 tags onto the supported
// conversation languages: "zh-CN", "zh-Hant", and "ZH" all become "zh",
// "en-US" becomes "en". Tags outside the supported set come back as their
// base so validation can reject them with the value the client sent.
func canonicalLanguage(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return ""
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return strings.ToLower(lang)
	}
	base, conf := tag.Base()
	if conf == language.No {
		return strings.ToLower(lang)
	}
	switch base.String() {
	case "en":
		return domain.LangEnglish
	case "zh":
		return domain.LangChinese
	}
	return base.String()
}
