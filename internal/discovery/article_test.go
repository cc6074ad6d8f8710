package discovery

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "sorts query parameters",
			raw:  "https://mp.weixin.qq.com/s?sn=abc&mid=2&__biz=MzA=&idx=1",
			want: "https://mp.weixin.qq.com/s?__biz=MzA%3D&idx=1&mid=2&sn=abc",
		},
		{
			name: "lowercases scheme and host",
			raw:  "HTTPS://MP.Weixin.QQ.com/s?sn=abc",
			want: "https://mp.weixin.qq.com/s?sn=abc",
		},
		{
			name: "drops fragment",
			raw:  "https://mp.weixin.qq.com/s?sn=abc#rd",
			want: "https://mp.weixin.qq.com/s?sn=abc",
		},
		{
			name: "trims surrounding whitespace",
			raw:  "  https://mp.weixin.qq.com/s?sn=abc ",
			want: "https://mp.weixin.qq.com/s?sn=abc",
		},
		{
			name: "unparseable input returned trimmed",
			raw:  " not a url ",
			want: "not a url",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeURL(tc.raw))
		})
	}
}

func TestNormalizeURLCollapsesReorderedLinks(t *testing.T) {
	a := NormalizeURL("https://mp.weixin.qq.com/s?__biz=MzA=&mid=2&idx=1&sn=abc")
	b := NormalizeURL("https://MP.weixin.qq.com/s?sn=abc&idx=1&__biz=MzA=&mid=2#wechat_redirect")
	assert.Equal(t, a, b)
}

func TestExternalID(t *testing.T) {
	t.Run("from wechat parameters", func(t *testing.T) {
		id := ExternalID("https://mp.weixin.qq.com/s?__biz=MzA=&mid=2650001&idx=1&sn=deadbeef")
		assert.Equal(t, "MzA=|2650001|1|deadbeef", id)
	})

	t.Run("stable across parameter order", func(t *testing.T) {
		a := ExternalID("https://mp.weixin.qq.com/s?__biz=MzA=&mid=2&idx=1&sn=abc")
		b := ExternalID("https://mp.weixin.qq.com/s?sn=abc&idx=1&mid=2&__biz=MzA=")
		assert.Equal(t, a, b)
	})

	t.Run("hash fallback without wechat parameters", func(t *testing.T) {
		id := ExternalID("https://example.com/post/42")
		require.Len(t, id, 40)
		assert.NotContains(t, id, "|")
		assert.Equal(t, id, ExternalID("https://example.com/post/42"))
	})
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("标题", "https://mp.weixin.qq.com/s?sn=a", "excerpt")
	b := Fingerprint("标题", "https://mp.weixin.qq.com/s?sn=a", "excerpt")
	c := Fingerprint("标题", "https://mp.weixin.qq.com/s?sn=b", "excerpt")
	require.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestExtractTitle(t *testing.T) {
	t.Run("prefers og:title", func(t *testing.T) {
		page := `<html><head><meta property="og:title" content="深度学习周报 &amp; 笔记"/><title>ignored</title></head></html>`
		assert.Equal(t, "深度学习周报 & 笔记", extractTitle(page, "hint"))
	})

	t.Run("falls back to title tag and strips suffix", func(t *testing.T) {
		page := "<html><head><title>\n  本周要闻_微信公众平台\n</title></head></html>"
		assert.Equal(t, "本周要闻", extractTitle(page, ""))
	})

	t.Run("uses hint when page has no title", func(t *testing.T) {
		assert.Equal(t, "from feed", extractTitle("<html></html>", "from feed"))
	})

	t.Run("untitled when nothing available", func(t *testing.T) {
		assert.Equal(t, "Untitled", extractTitle("<html></html>", ""))
	})
}

func TestExtractPublishTime(t *testing.T) {
	t.Run("ct unix timestamp wins over hint", func(t *testing.T) {
		hint := time.Date(2026, 2, 23, 14, 30, 0, 0, time.UTC)
		got, midnight := extractPublishTime(`var ct = "1771857001";`, hint)
		assert.Equal(t, time.Unix(1771857001, 0).UTC(), got)
		assert.False(t, midnight)
	})

	t.Run("midnight ct flagged", func(t *testing.T) {
		local := time.Date(2026, 2, 24, 0, 0, 0, 0, time.Local)
		page := `ct = "` + strconv.FormatInt(local.Unix(), 10) + `"`
		got, midnight := extractPublishTime(page, time.Time{})
		assert.Equal(t, local.UTC(), got)
		assert.True(t, midnight)
	})

	t.Run("publish_time fallback parsed in local zone", func(t *testing.T) {
		page := `"publish_time":"2026-02-23 09:15:00"`
		want := time.Date(2026, 2, 23, 9, 15, 0, 0, time.Local).UTC()
		got, midnight := extractPublishTime(page, time.Time{})
		assert.Equal(t, want, got)
		assert.False(t, midnight)
	})

	t.Run("hint used when page has no timestamp", func(t *testing.T) {
		hint := time.Date(2026, 2, 22, 18, 0, 0, 0, time.UTC)
		got, _ := extractPublishTime("<html></html>", hint)
		assert.Equal(t, hint, got)
	})
}

func TestExtractExcerpt(t *testing.T) {
	page := `<html><head><style>.x{color:red}</style><script>var a=1;</script></head>
<body><p>第一段   内容</p><p>第二段 &amp; 更多</p></body></html>`
	assert.Equal(t, "第一段 内容 第二段 & 更多", extractExcerpt(page))
}
