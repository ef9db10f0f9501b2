// Package adapter contains the interface to be implemented by the SQL
// database adapter.
package adapter

import (
	"encoding/json"

	t "github.com/discoursio/core/server/store/types"
)

// Adapter is the interface the source-of-record adapters must implement.
// The live core only reads from the source of record, except for the view
// counters which it owns.
type Adapter interface {
	// Open and configure the adapter.
	Open(jsonconf json.RawMessage) error
	// Close the adapter.
	Close() error
	// IsOpen checks if the adapter is ready for use.
	IsOpen() bool
	// GetName returns the name of the adapter.
	GetName() string
	// Stats returns the DB connection stats object.
	Stats() any

	// ShoutRecords reads every shout with its persisted counters in one scan.
	ShoutRecords() ([]t.ShoutRecord, error)
	// ShoutTopicLinks reads the shout-topic link table.
	ShoutTopicLinks() ([]t.ShoutTopicLink, error)
	// ShoutAuthorLinks reads the shout-author link table with captions.
	ShoutAuthorLinks() ([]t.ShoutAuthorLink, error)
	// TopicFollowers reads the topic-follower table.
	TopicFollowers() ([]t.TopicFollowerLink, error)

	// IncrementShoutViews adds the amount to the shout's view counter of the
	// given source. The two sources are independent columns and must never
	// be conflated.
	IncrementShoutViews(slug string, amount int, source t.ViewSource) error
}
