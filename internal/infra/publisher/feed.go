// Package publisher maintains the public podcast feed: an episode
// catalog persisted as JSON and an RSS 2.0 document regenerated from it
// on every publish.
package publisher

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"briefcast/internal/domain/entity"
)

// maxFeedEpisodes bounds how many episodes the feed carries.
const maxFeedEpisodes = 30

// FeedConfig describes the feed's channel-level fields.
type FeedConfig struct {
	Title       string
	Link        string
	Description string
}

// Feed regenerates the RSS document from the episode catalog. Safe for
// concurrent use, though the pipeline publishes sequentially.
type Feed struct {
	feedPath    string
	catalogPath string
	cfg         FeedConfig
	mu          sync.Mutex
}

// NewFeed creates a feed publisher. The episode catalog lives next to the
// feed file.
func NewFeed(feedPath string, cfg FeedConfig) *Feed {
	if cfg.Title == "" {
		cfg.Title = "Daily Briefing"
	}
	return &Feed{
		feedPath:    feedPath,
		catalogPath: filepath.Join(filepath.Dir(feedPath), "episodes.json"),
		cfg:         cfg,
	}
}

// Publish adds the episode to the catalog and rewrites the feed.
func (f *Feed) Publish(ctx context.Context, episode entity.Episode) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	episodes, err := f.loadCatalog()
	if err != nil {
		return err
	}

	// Re-publishing the same day replaces that day's episode.
	replaced := false
	for i := range episodes {
		if sameDay(episodes[i].ProducedAt, episode.ProducedAt) {
			episodes[i] = episode
			replaced = true
			break
		}
	}
	if !replaced {
		episodes = append(episodes, episode)
	}

	sort.Slice(episodes, func(i, j int) bool {
		return episodes[i].ProducedAt.After(episodes[j].ProducedAt)
	})
	if len(episodes) > maxFeedEpisodes {
		episodes = episodes[:maxFeedEpisodes]
	}

	if err := f.saveCatalog(episodes); err != nil {
		return err
	}
	if err := f.writeFeed(episodes); err != nil {
		return err
	}

	slog.Info("feed regenerated",
		slog.String("path", f.feedPath),
		slog.Int("episodes", len(episodes)))
	return nil
}

func (f *Feed) loadCatalog() ([]entity.Episode, error) {
	data, err := os.ReadFile(f.catalogPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read episode catalog: %w", err)
	}
	var episodes []entity.Episode
	if err := json.Unmarshal(data, &episodes); err != nil {
		slog.Warn("episode catalog corrupt, starting fresh",
			slog.String("path", f.catalogPath),
			slog.Any("error", err))
		return nil, nil
	}
	return episodes, nil
}

func (f *Feed) saveCatalog(episodes []entity.Episode) error {
	data, err := json.MarshalIndent(episodes, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal episode catalog: %w", err)
	}
	return atomicWrite(f.catalogPath, data)
}

// rss is the RSS 2.0 document shape.
type rss struct {
	XMLName xml.Name `xml:"rss"`
	Version string   `xml:"version,attr"`
	Channel channel  `xml:"channel"`
}

type channel struct {
	Title       string `xml:"title"`
	Link        string `xml:"link,omitempty"`
	Description string `xml:"description"`
	Items       []item `xml:"item"`
}

type item struct {
	Title       string     `xml:"title"`
	Description string     `xml:"description"`
	PubDate     string     `xml:"pubDate"`
	GUID        string     `xml:"guid"`
	Enclosure   *enclosure `xml:"enclosure,omitempty"`
}

type enclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

func (f *Feed) writeFeed(episodes []entity.Episode) error {
	ch := channel{
		Title:       f.cfg.Title,
		Link:        f.cfg.Link,
		Description: f.cfg.Description,
	}
	for _, ep := range episodes {
		it := item{
			Title:       ep.Title,
			Description: describeEpisode(ep),
			PubDate:     ep.ProducedAt.Format(time.RFC1123Z),
			GUID:        ep.ProducedAt.UTC().Format("2006-01-02"),
		}
		if ep.ArtifactURL != "" {
			it.Enclosure = &enclosure{
				URL:    ep.ArtifactURL,
				Length: ep.SizeBytes,
				Type:   "audio/mpeg",
			}
		}
		ch.Items = append(ch.Items, it)
	}

	doc, err := xml.MarshalIndent(rss{Version: "2.0", Channel: ch}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal feed: %w", err)
	}
	return atomicWrite(f.feedPath, append([]byte(xml.Header), doc...))
}

// describeEpisode renders the item description from the covered stories.
func describeEpisode(ep entity.Episode) string {
	if len(ep.StoryTitles) == 0 {
		return ep.Title
	}
	desc := "Covering: "
	for i, title := range ep.StoryTitles {
		if i > 0 {
			desc += "; "
		}
		desc += title
	}
	return desc
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// atomicWrite writes data via temp file and rename.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-feed-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
