// Package mysql is a database adapter for MySQL.
package mysql

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/discoursio/core/server/store"
	t "github.com/discoursio/core/server/store/types"
)

// adapter holds MySQL connection data.
type adapter struct {
	db     *sqlx.DB
	dsn    string
	dbName string
}

const (
	defaultDSN      = "root:@tcp(localhost:3306)/discours?parseTime=true"
	defaultDatabase = "discours"

	adapterName = "mysql"
)

type configType struct {
	DSN    string `json:"dsn,omitempty"`
	DBName string `json:"database,omitempty"`

	// Connection pool settings.
	//
	// Maximum number of open connections to the database.
	MaxOpenConns int `json:"max_open_conns,omitempty"`
	// Maximum number of connections in the idle connection pool.
	MaxIdleConns int `json:"max_idle_conns,omitempty"`
	// Maximum amount of time a connection may be reused (in seconds).
	ConnMaxLifetime int `json:"conn_max_lifetime,omitempty"`
}

// Open initializes the database connection.
func (a *adapter) Open(jsonconfig json.RawMessage) error {
	if a.db != nil {
		return errors.New("mysql adapter is already connected")
	}

	var err error
	var config configType
	if len(jsonconfig) > 0 {
		if err = json.Unmarshal(jsonconfig, &config); err != nil {
			return errors.New("mysql adapter failed to parse config: " + err.Error())
		}
	}

	a.dsn = config.DSN
	if a.dsn == "" {
		a.dsn = defaultDSN
	}

	a.dbName = config.DBName
	if a.dbName == "" {
		a.dbName = defaultDatabase
	}

	a.db, err = sqlx.Open("mysql", a.dsn)
	if err != nil {
		return err
	}

	// sql.Open does not open the network connection.
	// Force network connection here.
	if err = a.db.Ping(); err != nil {
		a.db.Close()
		a.db = nil
		return err
	}

	if config.MaxOpenConns > 0 {
		a.db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		a.db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		a.db.SetConnMaxLifetime(time.Duration(config.ConnMaxLifetime) * time.Second)
	}

	return nil
}

// Close closes the underlying database connection.
func (a *adapter) Close() error {
	var err error
	if a.db != nil {
		err = a.db.Close()
		a.db = nil
	}
	return err
}

// IsOpen returns true if connection to database has been established. It does not check if
// connection is actually live.
func (a *adapter) IsOpen() bool {
	return a.db != nil
}

// GetName returns string that adapter uses to register itself with store.
func (a *adapter) GetName() string {
	return adapterName
}

// Stats returns DB connection stats object.
func (a *adapter) Stats() any {
	if a.db == nil {
		return nil
	}
	return a.db.Stats()
}

// ShoutRecords loads every shout with its persisted counters in one scan.
// Comment counts, reaction counts and rating are folded in from the
// reactions table.
func (a *adapter) ShoutRecords() ([]t.ShoutRecord, error) {
	rows, err := a.db.Queryx(
		"SELECT s.slug,s.title,s.created_at,s.published_at,s.views_ackee,s.views_old," +
			"COALESCE(r.comments,0),COALESCE(r.reactions,0),COALESCE(r.rating,0) " +
			"FROM shouts AS s LEFT JOIN " +
			"(SELECT shout,SUM(kind='COMMENT') AS comments,COUNT(*) AS reactions," +
			"SUM(CASE WHEN kind='LIKE' THEN 1 WHEN kind='DISLIKE' THEN -1 ELSE 0 END) AS rating " +
			"FROM reactions GROUP BY shout) AS r ON r.shout=s.slug")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shouts []t.ShoutRecord
	for rows.Next() {
		var sr t.ShoutRecord
		var published sql.NullTime
		if err = rows.Scan(&sr.Slug, &sr.Title, &sr.CreatedAt, &published,
			&sr.ViewsAckee, &sr.ViewsLegacy, &sr.Comments, &sr.Reactions, &sr.Rating); err != nil {
			return nil, err
		}
		if published.Valid {
			sr.PublishedAt = published.Time
		}
		shouts = append(shouts, sr)
	}

	return shouts, rows.Err()
}

// ShoutTopicLinks loads the shout-topic link table.
func (a *adapter) ShoutTopicLinks() ([]t.ShoutTopicLink, error) {
	rows, err := a.db.Queryx("SELECT shout,topic FROM shout_topics")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []t.ShoutTopicLink
	for rows.Next() {
		var link t.ShoutTopicLink
		if err = rows.Scan(&link.Shout, &link.Topic); err != nil {
			return nil, err
		}
		links = append(links, link)
	}

	return links, rows.Err()
}

// ShoutAuthorLinks loads the shout-author link table with captions.
func (a *adapter) ShoutAuthorLinks() ([]t.ShoutAuthorLink, error) {
	rows, err := a.db.Queryx("SELECT shout,author,COALESCE(caption,'') FROM shout_authors")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []t.ShoutAuthorLink
	for rows.Next() {
		var link t.ShoutAuthorLink
		if err = rows.Scan(&link.Shout, &link.Author, &link.Caption); err != nil {
			return nil, err
		}
		links = append(links, link)
	}

	return links, rows.Err()
}

// TopicFollowers loads the topic-follower table.
func (a *adapter) TopicFollowers() ([]t.TopicFollowerLink, error) {
	rows, err := a.db.Queryx("SELECT topic,follower FROM topic_followers")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []t.TopicFollowerLink
	for rows.Next() {
		var link t.TopicFollowerLink
		if err = rows.Scan(&link.Topic, &link.Follower); err != nil {
			return nil, err
		}
		links = append(links, link)
	}

	return links, rows.Err()
}

// IncrementShoutViews adds the amount to the shout's per-source view counter.
func (a *adapter) IncrementShoutViews(slug string, amount int, source t.ViewSource) error {
	var column string
	switch source {
	case t.ViewSourceAckee:
		column = "views_ackee"
	case t.ViewSourceLegacy:
		column = "views_old"
	default:
		return t.ErrMalformed
	}

	res, err := a.db.Exec("UPDATE shouts SET "+column+"="+column+"+? WHERE slug=?", amount, slug)
	if err != nil {
		return err
	}
	if count, _ := res.RowsAffected(); count == 0 {
		return t.ErrNotFound
	}

	return nil
}

func init() {
	store.RegisterAdapter(&adapter{})
}
