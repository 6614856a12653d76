package config

func disabled() *bool {
	v := false
	return &v
}

// BuiltinSites returns the descriptors written into a fresh config.
func BuiltinSites() []Site {
	return []Site{
		{
			Name:                "iryokikan-portal",
			BaseURL:             "https://iryohokenjyoho.service-now.com/csm?id=csm_index",
			TargetURL:           "https://iryohokenjyoho.service-now.com/csm?id=kb_search",
			WaitSelector:        "div.summary-templates",
			WaitNetworkIdle:     true,
			ContainerSelector:   "div.summary-templates > div.kb-template.ng-scope > div:nth-child(2) > div > div > div",
			DateSelector:        "sn-time-ago > time",
			DateAttr:            "title",
			DateFormat:          DefaultDateFormat,
			TitleTemplate:       `更新情報: {{.Date.Format "2006-01-02"}}`,
			DescriptionSelector: "div.kb-description",
			Output:              "IryokikanPortal.xml",
			FeedTitle:           "医療機関向等総合ポータルサイト",
			FeedDescription:     "医療機関向等総合ポータルサイトページの更新履歴",
			Language:            DefaultLanguage,
		},
		{
			Name:                "articles-example",
			BaseURL:             "https://example.com/",
			TargetURL:           "https://example.com/news/",
			WaitSelector:        "ul.article-list",
			ContainerSelector:   "ul.article-list > li",
			DateSelector:        "time",
			DateAttr:            "datetime",
			DateFormat:          "2006-01-02",
			DateTimezone:        "Asia/Tokyo",
			TitleSelector:       "a",
			CategorySelector:    "span.category",
			DescriptionTemplate: `{{if .Categories}}[{{join .Categories " / "}}] {{end}}{{.Title}}`,
			MaxItems:            20,
			Output:              "Articles.xml",
			FeedTitle:           "記事一覧",
			FeedDescription:     "記事一覧ページの新着記事",
			Language:            DefaultLanguage,
			Enabled:             disabled(),
		},
	}
}
