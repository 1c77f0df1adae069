package common

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// The context builder and provider workers both need declared context
// windows and pricing per (provider, model) pair; rather than hand-maintain
// that table we mirror models.dev, a community-run catalog, into a local
// cache with a TTL and a stale-on-error fallback.
const (
	modelsCatalogURL      = "https://models.dev/api.json"
	modelsCatalogCacheTTL = 2 * time.Hour
	modelsCatalogFilename = "models.dev.json"
	modelsCatalogTimeout  = 30 * time.Second
)

type Modalities struct {
	Input  []string `json:"input"`
	Output []string `json:"output"`
}

type Cost struct {
	Input      float64 `json:"input"`
	Output     float64 `json:"output"`
	CacheRead  float64 `json:"cache_read,omitempty"`
	CacheWrite float64 `json:"cache_write,omitempty"`
}

type Limit struct {
	Context int `json:"context"`
	Output  int `json:"output"`
}

type ModelInfo struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Attachment  bool       `json:"attachment,omitempty"`
	Reasoning   bool       `json:"reasoning"`
	Temperature bool       `json:"temperature,omitempty"`
	ToolCall    bool       `json:"tool_call,omitempty"`
	Knowledge   string     `json:"knowledge,omitempty"`
	ReleaseDate string     `json:"release_date,omitempty"`
	LastUpdated string     `json:"last_updated,omitempty"`
	Modalities  Modalities `json:"modalities,omitempty"`
	OpenWeights bool       `json:"open_weights,omitempty"`
	Cost        Cost       `json:"cost,omitempty"`
	Limit       Limit      `json:"limit,omitempty"`
}

type ProviderInfo struct {
	Models map[string]ModelInfo `json:"models"`
}

type modelsCatalogData map[string]ProviderInfo

var (
	cachedCatalog    modelsCatalogData
	catalogLoadMutex sync.Mutex
	catalogLoadedAt  time.Time
)

func getModelsCatalogCachePath() (string, error) {
	cacheHome, err := GetGatewayCacheHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheHome, modelsCatalogFilename), nil
}

// LoadModelsCatalog returns the cached models.dev snapshot, refreshing it
// from the network if the on-disk cache is stale. A download failure falls
// back to a stale cache rather than failing the caller outright.
func LoadModelsCatalog() (modelsCatalogData, error) {
	catalogLoadMutex.Lock()
	defer catalogLoadMutex.Unlock()

	if cachedCatalog != nil && time.Since(catalogLoadedAt) < modelsCatalogCacheTTL {
		return cachedCatalog, nil
	}

	cachePath, err := getModelsCatalogCachePath()
	if err != nil {
		log.Error().Err(err).Msg("failed to resolve models catalog cache path")
		return nil, err
	}

	info, statErr := os.Stat(cachePath)
	cacheExists := statErr == nil
	cacheIsFresh := cacheExists && time.Since(info.ModTime()) < modelsCatalogCacheTTL

	if cacheIsFresh {
		if data, err := readCatalogCacheFile(cachePath); err == nil {
			cachedCatalog = data
			catalogLoadedAt = time.Now()
			return data, nil
		} else {
			log.Warn().Err(err).Msg("failed to read fresh models catalog cache, refetching")
		}
	}

	data, err := downloadModelsCatalog(cachePath)
	if err != nil {
		if cacheExists {
			log.Error().Err(err).Msg("failed to refresh models catalog, using stale cache")
			staleData, readErr := readCatalogCacheFile(cachePath)
			if readErr != nil {
				return nil, readErr
			}
			cachedCatalog = staleData
			catalogLoadedAt = time.Now()
			return staleData, nil
		}
		return nil, err
	}

	cachedCatalog = data
	catalogLoadedAt = time.Now()
	return data, nil
}

func readCatalogCacheFile(path string) (modelsCatalogData, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open models catalog cache: %w", err)
	}
	defer file.Close()

	var data modelsCatalogData
	if err := json.NewDecoder(file).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode models catalog cache: %w", err)
	}
	return data, nil
}

func downloadModelsCatalog(cachePath string) (modelsCatalogData, error) {
	client := &http.Client{Timeout: modelsCatalogTimeout}
	resp, err := client.Get(modelsCatalogURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch models catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("models catalog returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read models catalog response: %w", err)
	}

	var data modelsCatalogData
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to parse models catalog JSON: %w", err)
	}

	if err := os.WriteFile(cachePath, body, 0644); err != nil {
		log.Error().Err(err).Msg("failed to persist models catalog cache")
	}

	return data, nil
}

// GetModel looks up model info by provider+model, falling back to a
// cross-provider match (returning matched=false) when the provider name
// doesn't line up exactly with the catalog's provider key.
func GetModel(provider string, model string) (info *ModelInfo, matchedProvider bool) {
	data, err := LoadModelsCatalog()
	if err != nil {
		return nil, false
	}

	providerLower := strings.ToLower(provider)
	for providerKey, providerData := range data {
		if strings.ToLower(providerKey) == providerLower {
			if modelData, exists := providerData.Models[model]; exists {
				return &modelData, true
			}
			return nil, false
		}
	}

	for providerKey, providerData := range data {
		if modelData, exists := providerData.Models[model]; exists {
			log.Debug().
				Str("requestedProvider", provider).
				Str("matchedProvider", providerKey).
				Str("model", model).
				Msg("provider not found in catalog, matched model under a different provider")
			return &modelData, false
		}
	}

	return nil, false
}

func ModelSupportsReasoning(provider string, model string) bool {
	info, _ := GetModel(provider, model)
	return info != nil && info.Reasoning
}

func ModelSupportsNativeToolCalls(provider string, model string) bool {
	info, _ := GetModel(provider, model)
	return info != nil && info.ToolCall
}

func ClearModelsCatalogCache() {
	catalogLoadMutex.Lock()
	defer catalogLoadMutex.Unlock()
	cachedCatalog = nil
	catalogLoadedAt = time.Time{}
}
