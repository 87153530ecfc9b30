package forecastcache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dmccrea/forecast-cache-service/internal/models"
	"github.com/dmccrea/forecast-cache-service/internal/observability"
)

const (
	textPrefix  = "forecast_text_"
	audioPrefix = "forecast_audio_"
	stampLayout = "2006-01-02_150405"
)

// FileCache is the zero-dependency facade backend for development and
// testing. Each forecast is a text/audio file pair under dir/{city}/, named
// with a shared timestamp token so the pair is matched exactly rather than
// by timestamp proximity. Freshness is derived from the filename stamp.
type FileCache struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

// NewFileCache creates a filesystem cache rooted at dir with the given TTL.
func NewFileCache(dir string, ttl time.Duration) *FileCache {
	return &FileCache{dir: dir, ttl: ttl, now: time.Now}
}

// Lookup scans dir/{city}/ for the newest text file within TTL that has an
// audio file carrying the same timestamp token. A missing directory or a
// stale pair is a plain miss.
func (c *FileCache) Lookup(ctx context.Context, city string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	cityDir := filepath.Join(c.dir, normalizeCity(city))
	entries, err := os.ReadDir(cityDir)
	if os.IsNotExist(err) {
		observability.ForecastLookupsTotal.WithLabelValues("miss").Inc()
		return Result{Cached: false}, nil
	}
	if err != nil {
		observability.ForecastLookupsTotal.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("read cache dir %s: %w", cityDir, err)
	}

	audioStamps := make(map[string]string)
	var textStamps []string
	textFiles := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if stamp, ok := parseStamp(name, textPrefix, ".txt"); ok {
			textStamps = append(textStamps, stamp)
			textFiles[stamp] = filepath.Join(cityDir, name)
		}
		if stamp, ok := parseStamp(name, audioPrefix, ".wav"); ok {
			audioStamps[stamp] = filepath.Join(cityDir, name)
		}
	}
	// Newest first; stamps sort lexicographically in time order.
	sort.Sort(sort.Reverse(sort.StringSlice(textStamps)))

	now := c.now().UTC()
	for _, stamp := range textStamps {
		at, err := time.Parse(stampLayout, stamp)
		if err != nil {
			continue
		}
		age := now.Sub(at)
		if age >= c.ttl {
			break // older stamps are only older
		}
		audioPath, ok := audioStamps[stamp]
		if !ok {
			continue // text without its audio half is not a complete forecast
		}
		text, err := os.ReadFile(textFiles[stamp])
		if err != nil {
			observability.ForecastLookupsTotal.WithLabelValues("error").Inc()
			return Result{}, fmt.Errorf("read cached text: %w", err)
		}
		audio, err := os.ReadFile(audioPath)
		if err != nil {
			observability.ForecastLookupsTotal.WithLabelValues("error").Inc()
			return Result{}, fmt.Errorf("read cached audio: %w", err)
		}
		observability.ForecastLookupsTotal.WithLabelValues("hit").Inc()
		return Result{
			Cached:     true,
			Text:       string(text),
			Audio:      audio,
			AgeSeconds: int64(age.Seconds()),
		}, nil
	}
	observability.ForecastLookupsTotal.WithLabelValues("miss").Inc()
	return Result{Cached: false}, nil
}

// Store writes the text/audio pair under a shared timestamp token derived
// from ForecastAt.
func (c *FileCache) Store(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cityDir := filepath.Join(c.dir, normalizeCity(e.City))
	if err := os.MkdirAll(cityDir, 0o755); err != nil {
		return fmt.Errorf("create cache dir %s: %w", cityDir, err)
	}
	at := e.ForecastAt
	if at.IsZero() {
		at = c.now()
	}
	stamp := at.UTC().Format(stampLayout)
	textPath := filepath.Join(cityDir, textPrefix+stamp+".txt")
	audioPath := filepath.Join(cityDir, audioPrefix+stamp+".wav")
	if err := os.WriteFile(textPath, []byte(e.Text), 0o644); err != nil {
		return fmt.Errorf("write cached text: %w", err)
	}
	if err := os.WriteFile(audioPath, e.Audio, 0o644); err != nil {
		// Remove the text half so a later Lookup does not see an unpaired file.
		_ = os.Remove(textPath)
		return fmt.Errorf("write cached audio: %w", err)
	}
	return nil
}

// Stats walks the cache directory and aggregates currently-valid pairs per
// city. Everything cached through this backend is plain utf-8 text.
func (c *FileCache) Stats(ctx context.Context) (models.StorageStats, error) {
	stats := models.StorageStats{
		EncodingsUsed: map[string]int{},
		LanguagesUsed: map[string]int{},
	}
	cities, err := os.ReadDir(c.dir)
	if os.IsNotExist(err) {
		return stats, nil
	}
	if err != nil {
		return stats, fmt.Errorf("read cache dir %s: %w", c.dir, err)
	}

	now := c.now().UTC()
	for _, cityEntry := range cities {
		if !cityEntry.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		cs, err := c.cityStats(cityEntry.Name(), now)
		if err != nil {
			return stats, err
		}
		if cs.ForecastCount == 0 {
			continue
		}
		stats.TotalForecasts += cs.ForecastCount
		stats.TotalTextBytes += cs.TotalTextBytes
		stats.TotalAudioBytes += cs.TotalAudioBytes
		stats.EncodingsUsed["utf-8"] += cs.ForecastCount
		stats.CityBreakdown = append(stats.CityBreakdown, cs)
	}
	sort.Slice(stats.CityBreakdown, func(i, j int) bool {
		a, b := stats.CityBreakdown[i], stats.CityBreakdown[j]
		if a.ForecastCount != b.ForecastCount {
			return a.ForecastCount > b.ForecastCount
		}
		return a.City < b.City
	})
	return stats, nil
}

func (c *FileCache) cityStats(city string, now time.Time) (models.CityStats, error) {
	cs := models.CityStats{City: city}
	cityDir := filepath.Join(c.dir, city)
	entries, err := os.ReadDir(cityDir)
	if err != nil {
		return cs, fmt.Errorf("read cache dir %s: %w", cityDir, err)
	}

	audioSizes := make(map[string]int64)
	for _, e := range entries {
		if stamp, ok := parseStamp(e.Name(), audioPrefix, ".wav"); ok {
			if info, err := e.Info(); err == nil {
				audioSizes[stamp] = info.Size()
			}
		}
	}
	for _, e := range entries {
		stamp, ok := parseStamp(e.Name(), textPrefix, ".txt")
		if !ok {
			continue
		}
		at, err := time.Parse(stampLayout, stamp)
		if err != nil || now.Sub(at) >= c.ttl {
			continue
		}
		audioSize, paired := audioSizes[stamp]
		if !paired {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		cs.ForecastCount++
		cs.TotalTextBytes += info.Size()
		cs.TotalAudioBytes += audioSize
		if at.After(cs.LatestForecast) {
			cs.LatestForecast = at
		}
	}
	return cs, nil
}

// Cleanup removes forecast file pairs older than the TTL and reports how
// many forecasts were deleted and how many valid ones remain.
func (c *FileCache) Cleanup(ctx context.Context) (CleanupResult, error) {
	var res CleanupResult
	cities, err := os.ReadDir(c.dir)
	if os.IsNotExist(err) {
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("read cache dir %s: %w", c.dir, err)
	}

	now := c.now().UTC()
	for _, cityEntry := range cities {
		if !cityEntry.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		cityDir := filepath.Join(c.dir, cityEntry.Name())
		entries, err := os.ReadDir(cityDir)
		if err != nil {
			return res, fmt.Errorf("read cache dir %s: %w", cityDir, err)
		}
		textStamps := make(map[string]bool)
		for _, e := range entries {
			if stamp, ok := parseStamp(e.Name(), textPrefix, ".txt"); ok {
				textStamps[stamp] = true
			}
		}
		for _, e := range entries {
			if stamp, ok := parseStamp(e.Name(), textPrefix, ".txt"); ok {
				at, err := time.Parse(stampLayout, stamp)
				if err != nil {
					continue
				}
				if now.Sub(at) >= c.ttl {
					_ = os.Remove(filepath.Join(cityDir, textPrefix+stamp+".txt"))
					_ = os.Remove(filepath.Join(cityDir, audioPrefix+stamp+".wav"))
					res.Deleted++
				} else {
					res.Remaining++
				}
				continue
			}
			// Audio whose text half is gone would otherwise accumulate
			// forever. Only expired orphans are removed, so a pair mid-write
			// by a concurrent Store is left alone.
			if stamp, ok := parseStamp(e.Name(), audioPrefix, ".wav"); ok && !textStamps[stamp] {
				at, err := time.Parse(stampLayout, stamp)
				if err != nil {
					continue
				}
				if now.Sub(at) >= c.ttl {
					_ = os.Remove(filepath.Join(cityDir, e.Name()))
				}
			}
		}
	}
	observability.CleanupDeletedTotal.Add(float64(res.Deleted))
	return res, nil
}

func parseStamp(name, prefix, ext string) (string, bool) {
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ext) {
		return "", false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ext)
	if stamp == "" {
		return "", false
	}
	return stamp, true
}

func normalizeCity(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}
