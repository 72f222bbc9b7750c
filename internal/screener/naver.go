package screener

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"quant-trader/internal/logger"
)

const defaultRankingURL = "https://finance.naver.com/sise/sise_rise.naver"

// riskMarkers are the caution grades attached to flagged listings.
var riskMarkers = []string{"투자주의", "투자경고", "투자위험", "거래정지", "관리종목"}

// NaverSource scrapes the daily rise ranking from Naver Finance.
type NaverSource struct {
	baseURL string
	timeout time.Duration
}

func NewNaverSource(baseURL string, timeout time.Duration) *NaverSource {
	if baseURL == "" {
		baseURL = defaultRankingURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NaverSource{baseURL: baseURL, timeout: timeout}
}

// FetchRanking visits the ranking page and parses every stock row.
func (n *NaverSource) FetchRanking(ctx context.Context) ([]Candidate, error) {
	parsed, err := url.Parse(n.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ranking url: %w", err)
	}

	c := colly.NewCollector(
		colly.AllowedDomains(parsed.Host),
		colly.MaxDepth(1),
	)
	c.SetRequestTimeout(n.timeout)
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	})

	var (
		candidates []Candidate
		scrapeErr  error
	)
	c.OnHTML("table.type_2 tr", func(e *colly.HTMLElement) {
		if candidate, ok := parseRankingRow(e.DOM); ok {
			candidates = append(candidates, candidate)
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		scrapeErr = err
	})

	if err := c.Visit(n.baseURL); err != nil {
		return nil, fmt.Errorf("visit %s: %w", n.baseURL, err)
	}
	c.Wait()

	if scrapeErr != nil {
		return nil, fmt.Errorf("scrape %s: %w", n.baseURL, scrapeErr)
	}
	logger.Debug(ctx, "Ranking scraped", "url", n.baseURL, "rows", len(candidates))
	return candidates, nil
}

// parseRankingRow extracts one candidate from a ranking table row. Header,
// spacer and ad rows have no item link and are skipped.
func parseRankingRow(row *goquery.Selection) (Candidate, bool) {
	link := row.Find("a[href*='code=']").First()
	href, ok := link.Attr("href")
	if !ok {
		return Candidate{}, false
	}
	code := codeFromHref(href)
	if code == "" {
		return Candidate{}, false
	}

	cells := row.Find("td")
	if cells.Length() < 7 {
		return Candidate{}, false
	}

	// Columns: rank, name, price, change, change rate, volume, trade amount.
	price := parseNumber(cells.Eq(2).Text())
	changeRate := parsePercent(cells.Eq(4).Text())
	volume := parseNumber(cells.Eq(5).Text())
	// Trade amount is quoted in millions of won.
	tradeAmount := parseNumber(cells.Eq(6).Text()) * 1000000

	if price <= 0 {
		return Candidate{}, false
	}

	risky := false
	row.Find("img[alt]").Each(func(_ int, img *goquery.Selection) {
		alt, _ := img.Attr("alt")
		for _, marker := range riskMarkers {
			if strings.Contains(alt, marker) {
				risky = true
			}
		}
	})

	return Candidate{
		Code:        code,
		Name:        strings.TrimSpace(link.Text()),
		Price:       price,
		ChangeRate:  changeRate,
		Volume:      volume,
		TradeAmount: tradeAmount,
		Risky:       risky,
	}, true
}

func codeFromHref(href string) string {
	idx := strings.Index(href, "code=")
	if idx < 0 {
		return ""
	}
	code := href[idx+len("code="):]
	if amp := strings.IndexByte(code, '&'); amp >= 0 {
		code = code[:amp]
	}
	if len(code) != 6 {
		return ""
	}
	return code
}

func parseNumber(s string) float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parsePercent(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "%")
	s = strings.TrimPrefix(s, "+")
	return parseNumber(s) / 100
}
