package autocomplete

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

const hashtagLabelKey = "hashtag"

var (
	labelLanguages = []language.Tag{
		language.English,
		language.Japanese,
		language.SimplifiedChinese,
		language.TraditionalChinese,
		language.Korean,
		language.Russian,
	}
	labelCatalog = newLabelCatalog()
	labelMatcher = language.NewMatcher(labelLanguages)
)

func newLabelCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	_ = b.SetString(language.English, hashtagLabelKey, "Hashtag")
	_ = b.SetString(language.Japanese, hashtagLabelKey, "ハッシュタグ")
	_ = b.SetString(language.SimplifiedChinese, hashtagLabelKey, "话题标签")
	_ = b.SetString(language.TraditionalChinese, hashtagLabelKey, "主題標籤")
	_ = b.SetString(language.Korean, hashtagLabelKey, "해시태그")
	_ = b.SetString(language.Russian, hashtagLabelKey, "Хештег")
	return b
}

// hashtagLabel returns the secondary text for hashtag rows in locale.
// Unknown or empty locales use English.
func hashtagLabel(locale string) string {
	tag := language.English
	if locale != "" {
		if parsed, err := language.Parse(locale); err == nil {
			if _, i, conf := labelMatcher.Match(parsed); conf != language.No {
				tag = labelLanguages[i]
			}
		}
	}
	return message.NewPrinter(tag, message.Catalog(labelCatalog)).Sprintf(hashtagLabelKey)
}
