package comfyui

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

// ParseCookies resolves a cookie setting into a name/value map.
// The setting is either a URL serving the cookies, a JSON object, or "k=v; k2=v2".
func ParseCookies(ctx context.Context, httpClient *http.Client, raw string) (map[string]string, error) {
	content := strings.TrimSpace(raw)
	if content == "" {
		return nil, nil
	}

	if strings.HasPrefix(content, "http://") || strings.HasPrefix(content, "https://") {
		fetched, err := fetchCookieText(ctx, httpClient, content)
		if err != nil {
			return nil, err
		}
		content = strings.TrimSpace(fetched)
	}

	if strings.HasPrefix(content, "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(content), &obj); err != nil {
			return nil, fmt.Errorf("invalid cookie JSON: %w", err)
		}
		cookies := make(map[string]string, len(obj))
		for k, v := range obj {
			if s, ok := v.(string); ok {
				cookies[k] = s
			} else {
				cookies[k] = fmt.Sprint(v)
			}
		}
		return cookies, nil
	}

	cookies := make(map[string]string)
	for _, pair := range strings.Split(content, ";") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		cookies[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return cookies, nil
}

func fetchCookieText(ctx context.Context, httpClient *http.Client, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get cookies from URL: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to get cookies from URL: HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// CookieHeader renders cookies as a Cookie header value with names in sorted order.
func CookieHeader(cookies map[string]string) string {
	names := make([]string, 0, len(cookies))
	for k := range cookies {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, k := range names {
		parts = append(parts, k+"="+cookies[k])
	}
	return strings.Join(parts, "; ")
}

func itoa(i int) string { return strconv.Itoa(i) }
