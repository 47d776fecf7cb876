package storage

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/deusflow/issuedesk/internal/news"
)

// Mongo is the corpus as a document collection with three unique indexes.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
	log    *zap.Logger
}

func NewMongo(ctx context.Context, uri, database, collection string, log *zap.Logger) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connect mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, "ping mongo")
	}
	if log == nil {
		log = zap.NewNop()
	}

	m := &Mongo{
		client: client,
		coll:   client.Database(database).Collection(collection),
		log:    log.With(zap.String("component", "mongo")),
	}
	if err := m.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	m.log.Info("mongo corpus connected", zap.String("database", database), zap.String("collection", collection))
	return m, nil
}

func indexModels() []mongo.IndexModel {
	unique := func(field string) mongo.IndexModel {
		return mongo.IndexModel{
			Keys:    bson.D{{Key: field, Value: 1}},
			Options: options.Index().SetUnique(true),
		}
	}
	return []mongo.IndexModel{
		unique("article_id"),
		unique("headline"),
		unique("url"),
		{Keys: bson.D{{Key: "published_date", Value: -1}}},
		{Keys: bson.D{{Key: "stored_at", Value: -1}}},
	}
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
	if _, err := m.coll.Indexes().CreateMany(ctx, indexModels()); err != nil {
		return errors.Wrap(err, "create indexes")
	}
	return nil
}

func (m *Mongo) exists(ctx context.Context, filter bson.M) (bool, error) {
	err := m.coll.FindOne(ctx, filter, options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "find one")
	}
	return true, nil
}

func (m *Mongo) HasArticleID(ctx context.Context, id string) (bool, error) {
	return m.exists(ctx, bson.M{"article_id": id})
}

func (m *Mongo) HasURL(ctx context.Context, url string) (bool, error) {
	return m.exists(ctx, bson.M{"url": url})
}

func (m *Mongo) Headlines(ctx context.Context) ([]string, error) {
	cur, err := m.coll.Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"headline": 1, "source_title": 1, "_id": 0}))
	if err != nil {
		return nil, errors.Wrap(err, "find headlines")
	}
	var docs []struct {
		Headline    string `bson:"headline"`
		SourceTitle string `bson:"source_title"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode headlines")
	}
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Headline)
		if d.SourceTitle != "" && d.SourceTitle != d.Headline {
			out = append(out, d.SourceTitle)
		}
	}
	return out, nil
}

func (m *Mongo) Insert(ctx context.Context, a news.StoredArticle) error {
	if _, err := m.coll.InsertOne(ctx, a); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errors.Wrap(ErrDuplicate, err.Error())
		}
		return errors.Wrap(err, "insert article")
	}
	return nil
}

func windowFilter(from, to string) bson.M {
	return bson.M{"published_date": bson.M{"$gte": from, "$lte": to}}
}

func (m *Mongo) PublishedBetween(ctx context.Context, from, to string) ([]news.StoredArticle, error) {
	opts := options.Find().SetSort(bson.D{{Key: "published_date", Value: -1}})
	return m.find(ctx, windowFilter(from, to), opts)
}

func (m *Mongo) Recent(ctx context.Context, limit int) ([]news.StoredArticle, error) {
	opts := options.Find().SetSort(bson.D{{Key: "stored_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return m.find(ctx, bson.M{}, opts)
}

func (m *Mongo) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]news.StoredArticle, error) {
	cur, err := m.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find articles")
	}
	var out []news.StoredArticle
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Wrap(err, "decode articles")
	}
	return out, nil
}

func (m *Mongo) Count(ctx context.Context) (int64, error) {
	n, err := m.coll.CountDocuments(ctx, bson.M{})
	return n, errors.Wrap(err, "count articles")
}

func (m *Mongo) Close() error {
	return m.client.Disconnect(context.Background())
}
