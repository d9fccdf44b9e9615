package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/zeebo/xxh3"
)

// CategorizerGateway calls the external classification endpoint to tag
// a report with a category. Results are cached in memcached keyed on a
// hash of the normalized text; repeated filings of the same complaint
// skip the upstream call.
type CategorizerGateway struct {
	client   *http.Client
	endpoint string
	mc       *memcache.Client
}

func NewCategorizerGateway(endpoint string, mc *memcache.Client) *CategorizerGateway {
	return &CategorizerGateway{
		client:   &http.Client{Timeout: 3 * time.Second},
		endpoint: endpoint,
		mc:       mc,
	}
}

type categorizeRequest struct {
	Text string `json:"text"`
}

type categorizeResponse struct {
	Category string `json:"category"`
}

func (g *CategorizerGateway) Categorize(ctx context.Context, text string) (string, error) {
	normalized := strings.ToLower(strings.Join(strings.Fields(text), " "))
	key := "categorize:" + strconv.FormatUint(xxh3.HashString(normalized), 16)

	if g.mc != nil {
		if item, err := g.mc.Get(key); err == nil {
			return string(item.Value), nil
		}
	}

	body, err := json.Marshal(categorizeRequest{Text: text})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("categorizer returned %d", resp.StatusCode)
	}

	var decoded categorizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	if decoded.Category == "" {
		return "", fmt.Errorf("categorizer returned an empty category")
	}

	if g.mc != nil {
		g.mc.Set(&memcache.Item{
			Key:        key,
			Value:      []byte(decoded.Category),
			Expiration: int32((24 * time.Hour).Seconds()),
		})
	}

	return decoded.Category, nil
}
