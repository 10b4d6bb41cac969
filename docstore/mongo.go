package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/rushteam/recserve/core"
)

// MongoOptions 是 MongoStore 的连接参数。
type MongoOptions struct {
	URI            string
	Database       string
	MaxPoolSize    uint64
	ConnectTimeout time.Duration
}

// MongoStore 是 MongoDB 实现的 DocumentStore，使用驱动自带的连接池。
// core.Filter 的写法与 MongoDB 查询语法一致，直接透传。
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// ConnectMongo 建立连接。驱动的连接是惰性的，调用方应通过 Ping 确认可达。
func ConnectMongo(ctx context.Context, opts MongoOptions) (*MongoStore, error) {
	copts := options.Client().ApplyURI(opts.URI)
	if opts.MaxPoolSize > 0 {
		copts.SetMaxPoolSize(opts.MaxPoolSize)
	}
	if opts.ConnectTimeout > 0 {
		copts.SetConnectTimeout(opts.ConnectTimeout)
		copts.SetServerSelectionTimeout(opts.ConnectTimeout)
	}
	client, err := mongo.Connect(ctx, copts)
	if err != nil {
		return nil, core.Unavailable(core.ModuleDocStore, "mongo: connect", err)
	}
	return &MongoStore{client: client, db: client.Database(opts.Database)}, nil
}

func (m *MongoStore) Name() string { return "mongo" }

func (m *MongoStore) Ping(ctx context.Context) error {
	if err := m.client.Ping(ctx, readpref.Primary()); err != nil {
		return core.Unavailable(core.ModuleDocStore, "mongo: ping", err)
	}
	return nil
}

func (m *MongoStore) FindOne(ctx context.Context, collection string, filter core.Filter) (core.Document, error) {
	var raw bson.M
	err := m.db.Collection(collection).FindOne(ctx, toBSON(filter)).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapMongo("find_one", err)
	}
	return fromBSON(raw), nil
}

func (m *MongoStore) FindMany(ctx context.Context, collection string, filter core.Filter, opts core.FindOptions) ([]core.Document, error) {
	fopts := options.Find()
	if len(opts.Sort) > 0 {
		sort := make(bson.D, 0, len(opts.Sort))
		for _, f := range opts.Sort {
			sort = append(sort, bson.E{Key: f.Field, Value: direction(f)})
		}
		fopts.SetSort(sort)
	}
	if opts.Limit > 0 {
		fopts.SetLimit(opts.Limit)
	}
	if opts.Skip > 0 {
		fopts.SetSkip(opts.Skip)
	}

	cur, err := m.db.Collection(collection).Find(ctx, toBSON(filter), fopts)
	if err != nil {
		return nil, wrapMongo("find", err)
	}
	var raws []bson.M
	if err := cur.All(ctx, &raws); err != nil {
		return nil, wrapMongo("find", err)
	}
	docs := make([]core.Document, 0, len(raws))
	for _, r := range raws {
		docs = append(docs, fromBSON(r))
	}
	return docs, nil
}

func (m *MongoStore) InsertOne(ctx context.Context, collection string, doc core.Document) (string, error) {
	res, err := m.db.Collection(collection).InsertOne(ctx, bson.M(doc))
	if err != nil {
		return "", wrapMongo("insert", err)
	}
	return idString(res.InsertedID), nil
}

func (m *MongoStore) InsertMany(ctx context.Context, collection string, docs []core.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	batch := make([]any, 0, len(docs))
	for _, d := range docs {
		batch = append(batch, bson.M(d))
	}
	res, err := m.db.Collection(collection).InsertMany(ctx, batch)
	if err != nil {
		return 0, wrapMongo("insert_many", err)
	}
	return len(res.InsertedIDs), nil
}

func (m *MongoStore) UpdateOne(ctx context.Context, collection string, filter core.Filter, update core.Document, upsert bool) (bool, error) {
	res, err := m.db.Collection(collection).UpdateOne(ctx, toBSON(filter),
		bson.M{"$set": bson.M(update)}, options.Update().SetUpsert(upsert))
	if err != nil {
		return false, wrapMongo("update", err)
	}
	return res.MatchedCount > 0 || res.UpsertedCount > 0, nil
}

func (m *MongoStore) DeleteOne(ctx context.Context, collection string, filter core.Filter) (bool, error) {
	res, err := m.db.Collection(collection).DeleteOne(ctx, toBSON(filter))
	if err != nil {
		return false, wrapMongo("delete", err)
	}
	return res.DeletedCount > 0, nil
}

func (m *MongoStore) CreateIndex(ctx context.Context, collection string, index core.IndexSpec) (string, error) {
	if len(index.Fields) == 0 {
		return "", core.InvalidInput(core.ModuleDocStore, "index on %s has no fields", collection)
	}
	keys := make(bson.D, 0, len(index.Fields))
	for _, f := range index.Fields {
		keys = append(keys, bson.E{Key: f.Field, Value: direction(f)})
	}
	iopts := options.Index().SetUnique(index.Unique)
	if index.Name != "" {
		iopts.SetName(index.Name)
	}
	name, err := m.db.Collection(collection).Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys, Options: iopts})
	if err != nil {
		return "", wrapMongo("create_index", err)
	}
	return name, nil
}

func (m *MongoStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func direction(f core.SortField) int {
	if f.Desc {
		return -1
	}
	return 1
}

func toBSON(filter core.Filter) bson.M {
	if filter == nil {
		return bson.M{}
	}
	return bson.M(filter)
}

// fromBSON 把 BSON 解码结果转换为 JSON 兼容的普通类型。
func fromBSON(raw bson.M) core.Document {
	doc := make(core.Document, len(raw))
	for k, v := range raw {
		doc[k] = normalize(v)
	}
	return doc
}

func normalize(v any) any {
	switch val := v.(type) {
	case bson.M:
		return map[string]any(fromBSON(val))
	case bson.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = normalize(e)
		}
		return out
	case primitive.DateTime:
		return val.Time().UTC()
	case primitive.ObjectID:
		return val.Hex()
	default:
		return v
	}
}

func idString(id any) string {
	if oid, ok := id.(primitive.ObjectID); ok {
		return oid.Hex()
	}
	return fmt.Sprint(id)
}

func wrapMongo(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if mongo.IsDuplicateKeyError(err) {
		return core.InvalidInput(core.ModuleDocStore, "mongo: %s: duplicate key", op)
	}
	return core.Unavailable(core.ModuleDocStore, "mongo: "+op, err)
}

var _ core.DocumentStore = (*MongoStore)(nil)
