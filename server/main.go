/******************************************************************************
 *
 *  Description :
 *
 *    Setup & initialization.
 *
 *****************************************************************************/

package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gorilla/handlers"
	jcr "github.com/tinode/jsonco"

	"github.com/discoursio/core/server/cache"
	"github.com/discoursio/core/server/fanout"
	"github.com/discoursio/core/server/inbox"
	"github.com/discoursio/core/server/kv"
	"github.com/discoursio/core/server/logs"
	"github.com/discoursio/core/server/stats"
	"github.com/discoursio/core/server/store"

	_ "github.com/discoursio/core/server/db/mysql"
	_ "github.com/discoursio/core/server/db/postgres"
	_ "github.com/discoursio/core/server/kv/mem"
	_ "github.com/discoursio/core/server/kv/mongodb"
	_ "github.com/discoursio/core/server/kv/redis"
)

const (
	// currentVersion is the version of the server reported to monitoring.
	currentVersion = "0.4"

	// Terminate idle websocket connections after this timeout.
	idleSessionTimeout = time.Second * 55

	defaultCachePeriod = 30 * time.Minute
	defaultFeedPeriod  = time.Hour
)

// Build timestamp set by the compiler.
var buildstamp = "undef"

var globals struct {
	inbox   *inbox.Store
	events  *fanout.Registry
	viewed  *cache.Viewed
	topics  *cache.Topics
	shouts  *cache.Shouts
	authors *cache.Authors

	// Single-tenant deployment: multi-tenant grouping of content is off.
	singleUserMode bool
}

type cacheConfig struct {
	// Rebuild period of the topic/shout/author caches, seconds.
	RefreshPeriod int `json:"refresh_period"`
	// Poll period of the external page view feed, seconds.
	FeedPeriod int `json:"feed_period"`
	// Ackee GraphQL endpoint and access token. Both empty disables the feed.
	AckeeURL   string `json:"ackee_url"`
	AckeeToken string `json:"ackee_token"`
}

type configType struct {
	// Address:port to listen on for websocket and API clients.
	Listen string `json:"listen"`
	// URL path for exposing runtime stats.
	ExpvarPath string `json:"expvar"`

	// Database adapter name and raw adapter configs.
	StoreConfig json.RawMessage `json:"store_config"`
	// Key-value store adapter name and raw adapter configs.
	KvConfig json.RawMessage `json:"kv_config"`

	// Unique ID of this server instance, used in message id generation.
	WorkerID int `json:"worker_id"`

	SingleUserMode bool `json:"single_user_mode"`

	Cache cacheConfig `json:"cache"`
}

func main() {
	executable, _ := os.Executable()
	logs.Info.Printf("Server v%s:%s pid %d started with processes: %d",
		currentVersion, buildstamp, os.Getpid(), runtime.GOMAXPROCS(runtime.NumCPU()))

	var configfile = flag.String("config", "core.conf", "Path to config file.")
	var listenOn = flag.String("listen", "", "Override address and port to listen on.")
	var expvarPath = flag.String("expvar", "", "Override the URL path where runtime stats are exposed. Use '-' to disable.")
	flag.Parse()

	logs.Info.Printf("Using config from '%s' (%s)", *configfile, executable)

	var config configType
	if file, err := os.Open(*configfile); err != nil {
		logs.Error.Fatal("Failed to read config file: ", err)
	} else {
		jr := jcr.New(file)
		if err = json.NewDecoder(jr).Decode(&config); err != nil {
			switch jerr := err.(type) {
			case *json.UnmarshalTypeError:
				lnum, cnum, _ := jr.LineAndChar(jerr.Offset)
				logs.Error.Fatalf("Unmarshall error in config file in %s at %d:%d (offset %d bytes): %s",
					jerr.Field, lnum, cnum, jerr.Offset, jerr.Error())
			case *json.SyntaxError:
				lnum, cnum, _ := jr.LineAndChar(jerr.Offset)
				logs.Error.Fatalf("Syntax error in config file at %d:%d (offset %d bytes): %s",
					lnum, cnum, jerr.Offset, jerr.Error())
			default:
				logs.Error.Fatal("Failed to parse config file: ", err)
			}
		}
		file.Close()
	}

	if *listenOn != "" {
		config.Listen = *listenOn
	}
	if *expvarPath != "" {
		config.ExpvarPath = *expvarPath
	}
	if config.ExpvarPath == "" {
		config.ExpvarPath = "/stats/expvar/"
	}
	globals.singleUserMode = config.SingleUserMode

	if err := store.Open(config.WorkerID, config.StoreConfig); err != nil {
		logs.Error.Fatal("Failed to connect to DB: ", err)
	}
	logs.Info.Println("DB adapter opened:", store.GetAdapterName())
	defer func() {
		store.Close()
		logs.Info.Println("Closed database connection(s)")
	}()

	kvAdapter, err := kv.Open(config.KvConfig)
	if err != nil {
		logs.Error.Fatal("Failed to connect to key-value store: ", err)
	}
	defer func() {
		kv.Close()
		logs.Info.Println("Closed key-value store connection(s)")
	}()

	mux := http.NewServeMux()
	if config.ExpvarPath != "-" {
		stats.Init(mux, config.ExpvarPath)
		stats.RegisterDbStats(store.DbStats())
		logs.Info.Println("Stats exposed at", config.ExpvarPath)
	}
	globals.events = fanout.NewRegistry()
	globals.inbox = inbox.NewStore(kvAdapter, globals.events)

	var feed cache.PageViewsFeed
	if config.Cache.AckeeURL != "" && config.Cache.AckeeToken != "" {
		feed = cache.NewAckeeFeed(config.Cache.AckeeURL, config.Cache.AckeeToken)
		logs.Info.Println("Page view feed enabled:", config.Cache.AckeeURL)
	}

	cachePeriod := defaultCachePeriod
	if config.Cache.RefreshPeriod > 0 {
		cachePeriod = time.Duration(config.Cache.RefreshPeriod) * time.Second
	}
	feedPeriod := defaultFeedPeriod
	if config.Cache.FeedPeriod > 0 {
		feedPeriod = time.Duration(config.Cache.FeedPeriod) * time.Second
	}

	globals.viewed = cache.NewViewed(store.Zine, store.Views, feed)
	globals.viewed.Start(cachePeriod, feedPeriod)
	defer globals.viewed.Stop()

	globals.topics = cache.NewTopics(store.Zine, globals.viewed)
	globals.topics.Start(cachePeriod)
	defer globals.topics.Stop()

	globals.shouts = cache.NewShouts(store.Zine)
	globals.shouts.Start(cachePeriod)
	defer globals.shouts.Stop()

	globals.authors = cache.NewAuthors(store.Zine)
	globals.authors.Start(cachePeriod)
	defer globals.authors.Stop()

	mux.HandleFunc("/live", serveWebSocket)

	logs.Info.Printf("Listening on [%s]", config.Listen)
	handler := handlers.CombinedLoggingHandler(logs.Info.Writer(), mux)
	if err := listenAndServe(config.Listen, handler, signalHandler()); err != nil {
		logs.Error.Fatal(err)
	}

	stats.Shutdown()
	logs.Info.Println("All done, good bye")
}
