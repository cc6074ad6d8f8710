package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"wechat_digest/internal/domain"
)

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "科技早知道", normalizeName("  科技·早知道 "))
	assert.Equal(t, "techdaily", normalizeName("Tech Daily!"))
	assert.Equal(t, "", normalizeName("***"))
}

func TestMatchScore(t *testing.T) {
	assert.Equal(t, 100, matchScore("科技早知道", "科技早知道"))
	assert.Equal(t, len("科技早知道"), matchScore("科技早知道", "科技早知道周刊"))
	assert.Equal(t, 0, matchScore("科技早知道", "财经日报"))
	assert.Equal(t, 0, matchScore("", "anything"))
}

func TestBestMatch(t *testing.T) {
	entries := []directoryEntry{
		{name: "财经日报", url: "https://feeds.example.com/feed/caijing.xml", normalized: "财经日报"},
		{name: "科技早知道", url: "https://feeds.example.com/feed/keji.xml", normalized: "科技早知道"},
		{name: "科技", url: "https://feeds.example.com/feed/short.xml", normalized: "科技"},
	}
	s := &DirectoryStrategy{}

	t.Run("exact name wins", func(t *testing.T) {
		best := s.bestMatch(entries, domain.Subscription{Name: "科技早知道"})
		assert.NotNil(t, best)
		assert.Equal(t, "https://feeds.example.com/feed/keji.xml", best.url)
	})

	t.Run("near miss below baseline rejected", func(t *testing.T) {
		best := s.bestMatch(entries, domain.Subscription{Name: "科"})
		assert.Nil(t, best)
	})

	t.Run("wechat id must match when set", func(t *testing.T) {
		best := s.bestMatch(entries, domain.Subscription{Name: "科技早知道", WechatID: "otherid9"})
		assert.Nil(t, best)
	})

	t.Run("unlisted subscription", func(t *testing.T) {
		best := s.bestMatch(entries, domain.Subscription{Name: "读书笔记"})
		assert.Nil(t, best)
	})
}
