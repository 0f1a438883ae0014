package module

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/realDragonium/Slumber/core"
	"github.com/realDragonium/Slumber/mc"
	log "github.com/sirupsen/logrus"
)

const (
	BannedIPsFileName = "banned-ips.json"
	banTimeLayout     = "2006-01-02 15:04:05 -0700"
	banForever        = "forever"
	banCleanup        = time.Minute
)

type BanEntry struct {
	IP      string
	Created time.Time
	Source  string
	// Expires is the zero time for bans without an end.
	Expires time.Time
	Reason  string
}

func (entry BanEntry) Expired(now time.Time) bool {
	return !entry.Expires.IsZero() && !now.Before(entry.Expires)
}

type banEntryJSON struct {
	IP      string `json:"ip"`
	Created string `json:"created"`
	Source  string `json:"source"`
	Expires string `json:"expires"`
	Reason  string `json:"reason"`
}

// ParseBannedIPs reads the banned-ips.json format of the server.
func ParseBannedIPs(bb []byte) ([]BanEntry, error) {
	var raw []banEntryJSON
	if err := json.Unmarshal(bb, &raw); err != nil {
		return nil, err
	}
	entries := make([]BanEntry, 0, len(raw))
	for _, r := range raw {
		entry := BanEntry{
			IP:     strings.TrimSpace(r.IP),
			Source: r.Source,
			Reason: r.Reason,
		}
		if t, err := time.Parse(banTimeLayout, r.Created); err == nil {
			entry.Created = t
		}
		if r.Expires != "" && !strings.EqualFold(r.Expires, banForever) {
			t, err := time.Parse(banTimeLayout, r.Expires)
			if err != nil {
				log.Warnf("ignoring invalid ban expiry %q for %s", r.Expires, r.IP)
			} else {
				entry.Expires = t
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// BanList is a read only snapshot of banned-ips.json. Entries leave the
// snapshot by themselves once they expire.
type BanList struct {
	path    string
	refresh time.Duration
	drop    bool

	mu      sync.RWMutex
	cache   *gocache.Cache
	modTime time.Time
}

func NewBanList(serverDir string, refresh time.Duration, drop bool) *BanList {
	return &BanList{
		path:    filepath.Join(serverDir, BannedIPsFileName),
		refresh: refresh,
		drop:    drop,
		cache:   gocache.New(gocache.NoExpiration, banCleanup),
	}
}

// Reload reads the file again, a missing file means nobody is banned.
func (list *BanList) Reload() error {
	info, err := os.Stat(list.path)
	if errors.Is(err, os.ErrNotExist) {
		list.replace(nil, time.Time{})
		return nil
	} else if err != nil {
		return err
	}

	bb, err := ioutil.ReadFile(list.path)
	if err != nil {
		return err
	}
	entries, err := ParseBannedIPs(bb)
	if err != nil {
		return fmt.Errorf("could not parse %s: %w", list.path, err)
	}
	list.replace(entries, info.ModTime())
	return nil
}

func (list *BanList) replace(entries []BanEntry, modTime time.Time) {
	now := time.Now()
	cache := gocache.New(gocache.NoExpiration, banCleanup)
	for _, entry := range entries {
		ttl := gocache.NoExpiration
		if !entry.Expires.IsZero() {
			if entry.Expired(now) {
				continue
			}
			ttl = entry.Expires.Sub(now)
		}
		cache.Set(entry.IP, entry, ttl)
	}

	list.mu.Lock()
	list.cache = cache
	list.modTime = modTime
	list.mu.Unlock()
	log.Debugf("loaded %d ban entries from %s", cache.ItemCount(), list.path)
}

func (list *BanList) changed() bool {
	info, err := os.Stat(list.path)
	list.mu.RLock()
	defer list.mu.RUnlock()
	if err != nil {
		return !list.modTime.IsZero()
	}
	return !info.ModTime().Equal(list.modTime)
}

// Run polls the modification time of the file until ctx is done.
func (list *BanList) Run(ctx context.Context) {
	ticker := time.NewTicker(list.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !list.changed() {
				continue
			}
			if err := list.Reload(); err != nil {
				log.Errorf("failed to reload ban list: %v", err)
			}
		}
	}
}

// IsBanned returns the active ban of ip.
func (list *BanList) IsBanned(ip string) (BanEntry, bool) {
	list.mu.RLock()
	cache := list.cache
	list.mu.RUnlock()

	v, ok := cache.Get(ip)
	if !ok {
		return BanEntry{}, false
	}
	entry := v.(BanEntry)
	if entry.Expired(time.Now()) {
		return BanEntry{}, false
	}
	return entry, true
}

func (list *BanList) Len() int {
	list.mu.RLock()
	defer list.mu.RUnlock()
	return list.cache.ItemCount()
}

// Refuse reports whether connections from addr are dropped before anything
// is read from them.
func (list *BanList) Refuse(addr net.Addr) bool {
	if !list.drop {
		return false
	}
	_, banned := list.IsBanned(FilterIpFromAddr(addr))
	return banned
}

// Allow drops banned ips or, when dropping is off, lets them see the status
// but kicks their logins.
func (list *BanList) Allow(req core.RequestData) (bool, error) {
	entry, banned := list.IsBanned(req.IP())
	if !banned {
		return true, nil
	}
	if list.drop {
		return false, &Rejection{Err: core.ErrBanned, Drop: true}
	}
	if req.Type != mc.Login {
		return true, nil
	}
	return false, &Rejection{
		Err:     core.ErrBanned,
		Message: BanMessage(entry),
	}
}

func BanMessage(entry BanEntry) string {
	if entry.Reason == "" {
		return "Banned"
	}
	return "Banned: " + entry.Reason
}
