// Package mongodb is a key-value adapter for MongoDB. Documents, sets,
// lists and counters live in separate collections keyed by _id; list and
// set operations map to array update operators, counters to $inc with
// FindOneAndUpdate, which keeps every kv.Adapter call atomic per key.
package mongodb

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	b "go.mongodb.org/mongo-driver/bson"
	mdb "go.mongodb.org/mongo-driver/mongo"
	mdbopts "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/discoursio/core/server/kv"
	t "github.com/discoursio/core/server/store/types"
)

// adapter holds the MongoDB connection data.
type adapter struct {
	conn   *mdb.Client
	db     *mdb.Database
	dbName string
}

const (
	defaultHost     = "localhost:27017"
	defaultDatabase = "discours_kv"

	adapterName = "mongodb"

	collDocs     = "docs"
	collSets     = "sets"
	collLists    = "lists"
	collCounters = "counters"
)

type configType struct {
	Addresses      any    `json:"addresses,omitempty"`
	ConnectTimeout int    `json:"timeout,omitempty"`
	Database       string `json:"database,omitempty"`
	ReplicaSet     string `json:"replica_set,omitempty"`
	AuthSource     string `json:"auth_source,omitempty"`
	Username       string `json:"username,omitempty"`
	Password       string `json:"password,omitempty"`
}

// Open initializes the MongoDB session.
func (a *adapter) Open(jsonconf json.RawMessage) error {
	if a.conn != nil {
		return errors.New("mongodb adapter is already connected")
	}

	var config configType
	if len(jsonconf) > 0 {
		if err := json.Unmarshal(jsonconf, &config); err != nil {
			return errors.New("mongodb adapter failed to parse config: " + err.Error())
		}
	}

	var opts mdbopts.ClientOptions

	if config.Addresses == nil {
		opts.SetHosts([]string{defaultHost})
	} else if host, ok := config.Addresses.(string); ok {
		opts.SetHosts([]string{host})
	} else if ihosts, ok := config.Addresses.([]any); ok && len(ihosts) > 0 {
		hosts := make([]string, 0, len(ihosts))
		for _, ih := range ihosts {
			h, ok := ih.(string)
			if !ok || h == "" {
				return errors.New("mongodb adapter failed to parse config.Addresses")
			}
			hosts = append(hosts, h)
		}
		opts.SetHosts(hosts)
	} else {
		return errors.New("mongodb adapter failed to parse config.Addresses")
	}

	if config.Database == "" {
		config.Database = defaultDatabase
	}
	a.dbName = config.Database

	if config.ReplicaSet != "" {
		opts.SetReplicaSet(config.ReplicaSet)
	}

	if config.Username != "" {
		var passwordSet bool
		if config.AuthSource == "" {
			config.AuthSource = "admin"
		}
		if config.Password != "" {
			passwordSet = true
		}
		opts.SetAuth(mdbopts.Credential{
			AuthMechanism: "SCRAM-SHA-256",
			AuthSource:    config.AuthSource,
			Username:      config.Username,
			Password:      config.Password,
			PasswordSet:   passwordSet,
		})
	}

	ctx := context.Background()
	if config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(config.ConnectTimeout)*time.Second)
		defer cancel()
	}

	conn, err := mdb.Connect(ctx, &opts)
	if err != nil {
		return err
	}

	a.conn = conn
	a.db = conn.Database(a.dbName)

	return nil
}

// Close the adapter.
func (a *adapter) Close() error {
	var err error
	if a.conn != nil {
		err = a.conn.Disconnect(context.Background())
		a.conn = nil
	}
	return err
}

// IsOpen checks if the adapter is ready for use.
func (a *adapter) IsOpen() bool {
	return a.conn != nil
}

// GetName returns the name of the adapter.
func (a *adapter) GetName() string {
	return adapterName
}

func (a *adapter) Get(ctx context.Context, key string) (string, error) {
	var doc struct {
		Value string `bson:"value"`
	}
	err := a.db.Collection(collDocs).FindOne(ctx, b.M{"_id": key}).Decode(&doc)
	if err == mdb.ErrNoDocuments {
		return "", t.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return doc.Value, nil
}

func (a *adapter) MGet(ctx context.Context, keys ...string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	cur, err := a.db.Collection(collDocs).Find(ctx, b.M{"_id": b.M{"$in": keys}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	found := make(map[string]string, len(keys))
	for cur.Next(ctx) {
		var doc struct {
			Key   string `bson:"_id"`
			Value string `bson:"value"`
		}
		if err = cur.Decode(&doc); err != nil {
			return nil, err
		}
		found[doc.Key] = doc.Value
	}
	if err = cur.Err(); err != nil {
		return nil, err
	}

	// Preserve the requested order, empty strings for missing keys.
	out := make([]string, len(keys))
	for i, key := range keys {
		out[i] = found[key]
	}
	return out, nil
}

func (a *adapter) Set(ctx context.Context, key, value string) error {
	_, err := a.db.Collection(collDocs).UpdateOne(ctx,
		b.M{"_id": key},
		b.M{"$set": b.M{"value": value}},
		mdbopts.Update().SetUpsert(true))
	return err
}

func (a *adapter) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	filter := b.M{"_id": b.M{"$in": keys}}
	for _, coll := range []string{collDocs, collSets, collLists, collCounters} {
		if _, err := a.db.Collection(coll).DeleteMany(ctx, filter); err != nil {
			return err
		}
	}
	return nil
}

func (a *adapter) SetAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	_, err := a.db.Collection(collSets).UpdateOne(ctx,
		b.M{"_id": key},
		b.M{"$addToSet": b.M{"members": b.M{"$each": members}}},
		mdbopts.Update().SetUpsert(true))
	return err
}

func (a *adapter) SetRemove(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	_, err := a.db.Collection(collSets).UpdateOne(ctx,
		b.M{"_id": key},
		b.M{"$pull": b.M{"members": b.M{"$in": members}}})
	return err
}

func (a *adapter) SetMembers(ctx context.Context, key string) ([]string, error) {
	var doc struct {
		Members []string `bson:"members"`
	}
	err := a.db.Collection(collSets).FindOne(ctx, b.M{"_id": key}).Decode(&doc)
	if err == mdb.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.Members, nil
}

func (a *adapter) ListPush(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	// LPUSH pushes values one by one, each landing at the head.
	reversed := make([]string, len(values))
	for i, v := range values {
		reversed[len(values)-1-i] = v
	}
	_, err := a.db.Collection(collLists).UpdateOne(ctx,
		b.M{"_id": key},
		b.M{"$push": b.M{"items": b.M{"$each": reversed, "$position": 0}}},
		mdbopts.Update().SetUpsert(true))
	return err
}

func (a *adapter) ListRemove(ctx context.Context, key, value string) error {
	_, err := a.db.Collection(collLists).UpdateOne(ctx,
		b.M{"_id": key},
		b.M{"$pull": b.M{"items": value}})
	return err
}

func (a *adapter) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	items, err := a.listItems(ctx, key)
	if err != nil {
		return nil, err
	}
	return sliceRange(items, start, stop), nil
}

func (a *adapter) ListLen(ctx context.Context, key string) (int64, error) {
	items, err := a.listItems(ctx, key)
	if err != nil {
		return 0, err
	}
	return int64(len(items)), nil
}

func (a *adapter) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	var doc struct {
		Value int64 `bson:"value"`
	}
	err := a.db.Collection(collCounters).FindOneAndUpdate(ctx,
		b.M{"_id": key},
		b.M{"$inc": b.M{"value": delta}},
		mdbopts.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(mdbopts.After)).
		Decode(&doc)
	if err != nil {
		return 0, err
	}
	return doc.Value, nil
}

func (a *adapter) listItems(ctx context.Context, key string) ([]string, error) {
	var doc struct {
		Items []string `bson:"items"`
	}
	err := a.db.Collection(collLists).FindOne(ctx, b.M{"_id": key}).Decode(&doc)
	if err == mdb.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.Items, nil
}

// sliceRange implements LRANGE index semantics over a materialized list.
func sliceRange(items []string, start, stop int64) []string {
	length := int64(len(items))
	if start < 0 {
		start += length
		if start < 0 {
			start = 0
		}
	}
	if stop < 0 {
		stop += length
	}
	if start >= length || stop < start {
		return nil
	}
	if stop >= length {
		stop = length - 1
	}
	out := make([]string, 0, stop-start+1)
	out = append(out, items[start:stop+1]...)
	return out
}

func init() {
	kv.RegisterAdapter(&adapter{})
}
