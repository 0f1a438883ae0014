package module

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gocache "github.com/patrickmn/go-cache"
	"github.com/realDragonium/Slumber/core"
	"github.com/realDragonium/Slumber/mc"
	log "github.com/sirupsen/logrus"
)

const (
	WhitelistFileName  = "whitelist.json"
	whitelistProperty  = "white-list"
	NotWhitelistedKick = "You are not white-listed on this server!"
)

type whitelistEntryJSON struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// Whitelist is a snapshot of whitelist.json, only enforced when the server
// has white-list=true in its server.properties.
type Whitelist struct {
	dir string

	mu      sync.RWMutex
	enabled bool
	names   *gocache.Cache
}

func NewWhitelist(serverDir string) *Whitelist {
	return &Whitelist{
		dir:   serverDir,
		names: gocache.New(gocache.NoExpiration, 0),
	}
}

func (wl *Whitelist) Reload() error {
	enabled := false
	props, err := ReadProperties(filepath.Join(wl.dir, ServerPropertiesFileName))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if props != nil {
		enabled = strings.EqualFold(props[whitelistProperty], "true")
	}

	names := gocache.New(gocache.NoExpiration, 0)
	path := filepath.Join(wl.dir, WhitelistFileName)
	bb, err := ioutil.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return err
	default:
		var entries []whitelistEntryJSON
		if err := json.Unmarshal(bb, &entries); err != nil {
			return fmt.Errorf("could not parse %s: %w", path, err)
		}
		for _, entry := range entries {
			names.Set(strings.ToLower(entry.Name), entry.UUID, gocache.NoExpiration)
		}
	}

	wl.mu.Lock()
	wl.enabled = enabled
	wl.names = names
	wl.mu.Unlock()
	log.Debugf("whitelist enabled: %v, %d players", enabled, names.ItemCount())
	return nil
}

func (wl *Whitelist) Enabled() bool {
	wl.mu.RLock()
	defer wl.mu.RUnlock()
	return wl.enabled
}

func (wl *Whitelist) Contains(username string) bool {
	wl.mu.RLock()
	names := wl.names
	wl.mu.RUnlock()
	_, ok := names.Get(strings.ToLower(username))
	return ok
}

// Allow only looks at logins, and only while the server enforces its
// whitelist.
func (wl *Whitelist) Allow(req core.RequestData) (bool, error) {
	if req.Type != mc.Login || !wl.Enabled() {
		return true, nil
	}
	if wl.Contains(req.Username) {
		return true, nil
	}
	return false, &Rejection{
		Err:     core.ErrNotWhitelisted,
		Message: NotWhitelistedKick,
	}
}
