package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"

	"gameindex/catalog"

	"github.com/gocolly/colly/v2"
	"golang.org/x/net/proxy"
)

const (
	bodyKey   = "body"
	statusKey = "status"
)

// IGDBSource pages through the IGDB games endpoint.
type IGDBSource struct {
	collector   *colly.Collector
	endpoint    string
	clientID    string
	accessToken string
}

func NewIGDBSource(config *Config) (*IGDBSource, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.ClientID == "" || config.AccessToken == "" {
		return nil, ErrMissingCredentials
	}

	c := colly.NewCollector(
		colly.UserAgent(config.UserAgent),
		colly.AllowURLRevisit(),
	)

	if config.ProxyURL != "" {
		dialer, err := proxy.SOCKS5("tcp", config.ProxyURL, nil, proxy.Direct)
		if err != nil {
			return nil, err
		}
		dialContext := func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
		c.WithTransport(&http.Transport{DialContext: dialContext})
	}
	if config.RequestTimeout > 0 {
		c.SetRequestTimeout(config.RequestTimeout)
	}
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       config.RequestDelay,
	}); err != nil {
		return nil, err
	}

	// Every status reaches OnResponse; FetchPage decides what is a failure.
	c.ParseHTTPErrorResponse = true
	c.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(statusKey, r.StatusCode)
		r.Ctx.Put(bodyKey, r.Body)
	})

	return &IGDBSource{
		collector:   c,
		endpoint:    strings.TrimRight(config.BaseURL, "/") + "/games",
		clientID:    config.ClientID,
		accessToken: config.AccessToken,
	}, nil
}

// Query builds the Apicalypse body for one page.
func Query(offset, limit int) string {
	return fmt.Sprintf("fields %s;\nsort id asc;\nlimit %d;\noffset %d;\n",
		strings.Join(catalog.QueryFields, ","), limit, offset)
}

func (s *IGDBSource) FetchPage(ctx context.Context, offset, limit int) ([]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hdr := http.Header{}
	hdr.Set("Accept", "application/json")
	hdr.Set("Content-Type", "text/plain")
	hdr.Set("Client-ID", s.clientID)
	hdr.Set("Authorization", "Bearer "+s.accessToken)

	reqCtx := colly.NewContext()
	err := s.collector.Request(http.MethodPost, s.endpoint, bytes.NewReader([]byte(Query(offset, limit))), reqCtx, hdr)
	if err != nil {
		return nil, fmt.Errorf("request games page: %w", err)
	}

	status, _ := reqCtx.GetAny(statusKey).(int)
	body, _ := reqCtx.GetAny(bodyKey).([]byte)
	if status/100 != 2 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, status, strings.TrimSpace(string(body)))
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("decode games page: %w", err)
	}
	return records, nil
}
