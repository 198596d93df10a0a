package services

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/run-bigpig/warroom/internal/logger"
	"github.com/run-bigpig/warroom/internal/models"

	"github.com/PuerkitoBio/goquery"
)

var newsLog = logger.New("news")

// 财联社电报页
const telegraphURL = "https://www.cls.cn/telegraph"

// telegraphCacheTTL 快讯缓存有效期
const telegraphCacheTTL = 30 * time.Second

// NewsService 财经快讯服务，抓取财联社电报页
type NewsService struct {
	client *http.Client

	mu        sync.RWMutex
	cache     []models.Telegraph
	fetchedAt time.Time
}

// NewNewsService 创建快讯服务
func NewNewsService() *NewsService {
	return &NewsService{
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// GetTelegraphList 获取最新快讯列表，带缓存
func (s *NewsService) GetTelegraphList() ([]models.Telegraph, error) {
	s.mu.RLock()
	if len(s.cache) > 0 && time.Since(s.fetchedAt) < telegraphCacheTTL {
		cached := make([]models.Telegraph, len(s.cache))
		copy(cached, s.cache)
		s.mu.RUnlock()
		return cached, nil
	}
	s.mu.RUnlock()

	req, err := http.NewRequest(http.MethodGet, telegraphURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求快讯页面失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("快讯页面返回 HTTP %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("解析快讯页面失败: %w", err)
	}

	telegraphs := parseTelegraphDoc(doc)
	if len(telegraphs) == 0 {
		newsLog.Warn("快讯页面没有解析到任何条目，选择器可能已失效")
	}

	s.mu.Lock()
	s.cache = telegraphs
	s.fetchedAt = time.Now()
	s.mu.Unlock()

	return telegraphs, nil
}

// parseTelegraphDoc 从电报页 DOM 中解析快讯条目
func parseTelegraphDoc(doc *goquery.Document) []models.Telegraph {
	var telegraphs []models.Telegraph

	doc.Find(".telegraph-content-box").Each(func(_ int, sel *goquery.Selection) {
		timeText := strings.TrimSpace(sel.Find(".telegraph-time-box").First().Text())
		content := strings.TrimSpace(sel.Find(".telegraph-content").First().Text())
		if content == "" {
			// 回退：整块文本去掉时间前缀
			content = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(sel.Text()), timeText))
		}
		if content == "" {
			return
		}

		url, _ := sel.Find("a").First().Attr("href")
		if url != "" && strings.HasPrefix(url, "/") {
			url = "https://www.cls.cn" + url
		}

		telegraphs = append(telegraphs, models.Telegraph{
			Time:    timeText,
			Content: content,
			URL:     url,
		})
	})

	return telegraphs
}

// GetLatestTelegraph 返回缓存中的最新一条快讯，缓存为空返回 nil
func (s *NewsService) GetLatestTelegraph() *models.Telegraph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.cache) == 0 {
		return nil
	}
	latest := s.cache[0]
	return &latest
}
