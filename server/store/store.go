// Package store provides methods for registering and accessing database
// adapters and exposes the persistence mappers used by the live core.
package store

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/tinode/snowflake"

	"github.com/discoursio/core/server/store/adapter"
	t "github.com/discoursio/core/server/store/types"
)

var adp adapter.Adapter
var availableAdapters = make(map[string]adapter.Adapter)

// Unique ID generator for chat ids.
var uGen *snowflake.SnowFlake

type configType struct {
	// Adapter name to use. Should be one of those specified in `Adapters`.
	UseAdapter string `json:"use_adapter"`
	// Configurations for individual adapters.
	Adapters map[string]json.RawMessage `json:"adapters"`
}

func openAdapter(workerId int, jsonconf json.RawMessage) error {
	var config configType
	if err := json.Unmarshal(jsonconf, &config); err != nil {
		return errors.New("store: failed to parse config: " + err.Error() + "(" + string(jsonconf) + ")")
	}

	if adp == nil {
		if len(config.UseAdapter) > 0 {
			// Adapter name specified explicitly.
			if ad, ok := availableAdapters[config.UseAdapter]; ok {
				adp = ad
			} else {
				return errors.New("store: " + config.UseAdapter + " adapter is not available in this binary")
			}
		} else if len(availableAdapters) == 1 {
			// Default to the only entry in availableAdapters.
			for _, v := range availableAdapters {
				adp = v
			}
		} else {
			return errors.New("store: db adapter is not specified. Please set `store_config.use_adapter` in config")
		}
	}

	if adp.IsOpen() {
		return errors.New("store: connection is already opened")
	}

	if workerId < 0 || workerId > 1023 {
		return errors.New("store: invalid worker ID " + strconv.Itoa(workerId))
	}

	var err error
	uGen, err = snowflake.NewSnowFlake(uint32(workerId))
	if err != nil {
		return errors.New("store: failed to init snowflake: " + err.Error())
	}

	var adapterConfig json.RawMessage
	if config.Adapters != nil {
		adapterConfig = config.Adapters[adp.GetName()]
	}

	return adp.Open(adapterConfig)
}

// Open initializes the persistence system. Adapter holds a connection pool
// for a database instance.
//
//	workerId - unique integer id of the app instance, used for id generation
//	jsonconf - configuration string
func Open(workerId int, jsonconf json.RawMessage) error {
	return openAdapter(workerId, jsonconf)
}

// Close terminates connection to the persistent storage.
func Close() error {
	if adp != nil && adp.IsOpen() {
		return adp.Close()
	}
	return nil
}

// IsOpen checks if persistent storage connection has been initialized.
func IsOpen() bool {
	return adp != nil && adp.IsOpen()
}

// GetAdapterName returns the name of the current adapter.
func GetAdapterName() string {
	if adp != nil {
		return adp.GetName()
	}
	return ""
}

// RegisterAdapter makes a persistence adapter available.
// If RegisterAdapter is called twice or if the adapter is nil, it panics.
func RegisterAdapter(a adapter.Adapter) {
	if a == nil {
		panic("store: register adapter is nil")
	}

	name := a.GetName()
	if _, ok := availableAdapters[name]; ok {
		panic("store: adapter '" + name + "' is already registered")
	}
	availableAdapters[name] = a
}

// GetUidString generates a unique ID suitable for use as a chat id.
func GetUidString() string {
	id, _ := uGen.Next()
	return strconv.FormatUint(id, 32)
}

// DbStats returns a callback returning db connection stats object.
func DbStats() func() any {
	if !IsOpen() {
		return nil
	}
	return adp.Stats
}

// ZineObjMapper is a struct to hold methods for reading the published
// content tables used by the aggregation caches.
type ZineObjMapper struct{}

// Zine is the zine read mapper instance.
var Zine ZineObjMapper

// ShoutRecords returns every shout with its counters.
func (ZineObjMapper) ShoutRecords() ([]t.ShoutRecord, error) {
	return adp.ShoutRecords()
}

// ShoutTopicLinks returns the shout-topic link table.
func (ZineObjMapper) ShoutTopicLinks() ([]t.ShoutTopicLink, error) {
	return adp.ShoutTopicLinks()
}

// ShoutAuthorLinks returns the shout-author link table.
func (ZineObjMapper) ShoutAuthorLinks() ([]t.ShoutAuthorLink, error) {
	return adp.ShoutAuthorLinks()
}

// TopicFollowers returns the topic-follower table.
func (ZineObjMapper) TopicFollowers() ([]t.TopicFollowerLink, error) {
	return adp.TopicFollowers()
}

// ViewsObjMapper is a struct to hold methods for the one write path the core
// owns in the source of record: the per-shout view counters.
type ViewsObjMapper struct{}

// Views is the view counter mapper instance.
var Views ViewsObjMapper

// Increment adds amount to the shout's counter of the given source.
// Durability before cache visibility: callers update in-memory mirrors only
// after this returns nil.
func (ViewsObjMapper) Increment(slug string, amount int, source t.ViewSource) error {
	return adp.IncrementShoutViews(slug, amount, source)
}
