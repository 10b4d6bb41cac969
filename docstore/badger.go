package docstore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/rushteam/recserve/core"
)

const (
	docKeyPrefix   = "d/"
	indexKeyPrefix = "i/"
	idField        = "_id"
)

// BadgerOptions 是 BadgerStore 的参数。Path 为空时使用内存模式（测试/演示）。
type BadgerOptions struct {
	Path string
}

// BadgerStore 是基于 Badger 的嵌入式 DocumentStore。
//
// 文档以 JSON 编码存储在 d/{collection}/{_id} 下；查询按集合前缀全量迭代后在内存中
// 过滤、排序、分页，适用于单机与开发场景。索引只用于唯一约束校验，不加速查询。
type BadgerStore struct {
	db *badger.DB

	mu      sync.RWMutex
	indexes map[string][]core.IndexSpec // collection -> specs
}

// OpenBadger 打开（或创建）Badger 文档库。
func OpenBadger(opts BadgerOptions) (*BadgerStore, error) {
	bopts := badger.DefaultOptions(opts.Path).WithLogger(nil)
	if opts.Path == "" {
		bopts = bopts.WithInMemory(true)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, core.Unavailable(core.ModuleDocStore, "badger: open", err)
	}
	s := &BadgerStore{db: db, indexes: make(map[string][]core.IndexSpec)}
	if err := s.loadIndexes(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *BadgerStore) Name() string { return "badger" }

func (s *BadgerStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return core.Unavailable(core.ModuleDocStore, "badger: closed", nil)
	}
	return nil
}

func (s *BadgerStore) FindOne(ctx context.Context, collection string, filter core.Filter) (core.Document, error) {
	docs, err := s.FindMany(ctx, collection, filter, core.FindOptions{Limit: 1})
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

func (s *BadgerStore) FindMany(ctx context.Context, collection string, filter core.Filter, opts core.FindOptions) ([]core.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 没有排序时可以在达到 skip+limit 后提前结束迭代
	want := int64(-1)
	if len(opts.Sort) == 0 && opts.Limit > 0 {
		want = opts.Skip + opts.Limit
	}

	var docs []core.Document
	err := s.db.View(func(txn *badger.Txn) error {
		return iterate(txn, collection, func(_ string, doc core.Document) (bool, error) {
			ok, err := Match(doc, filter)
			if err != nil {
				return true, err
			}
			if ok {
				docs = append(docs, doc)
			}
			return want > 0 && int64(len(docs)) >= want, nil
		})
	})
	if err != nil {
		return nil, wrapBadger("find", err)
	}

	sortDocs(docs, opts.Sort)
	return page(docs, opts.Skip, opts.Limit), nil
}

func (s *BadgerStore) InsertOne(ctx context.Context, collection string, doc core.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	doc, id := withID(doc)
	err := s.db.Update(func(txn *badger.Txn) error {
		return s.insert(txn, collection, id, doc)
	})
	if err != nil {
		return "", wrapBadger("insert", err)
	}
	return id, nil
}

func (s *BadgerStore) InsertMany(ctx context.Context, collection string, docs []core.Document) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, d := range docs {
			d, id := withID(d)
			if err := s.insert(txn, collection, id, d); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, wrapBadger("insert_many", err)
	}
	return n, nil
}

func (s *BadgerStore) UpdateOne(ctx context.Context, collection string, filter core.Filter, update core.Document, upsert bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	matched := false
	err := s.db.Update(func(txn *badger.Txn) error {
		var (
			targetID  string
			targetDoc core.Document
		)
		err := iterate(txn, collection, func(id string, doc core.Document) (bool, error) {
			ok, err := Match(doc, filter)
			if err != nil || !ok {
				return err != nil, err
			}
			targetID, targetDoc = id, doc
			return true, nil
		})
		if err != nil {
			return err
		}

		if targetDoc == nil {
			if !upsert {
				return nil
			}
			// 与 MongoDB 一致：upsert 时过滤条件中的等值字段写入新文档
			doc := make(core.Document, len(filter)+len(update))
			for k, v := range filter {
				if _, isOp := operators(v); !isOp {
					doc[k] = v
				}
			}
			maps.Copy(doc, update)
			doc, id := withID(doc)
			matched = true
			return s.insert(txn, collection, id, doc)
		}

		maps.Copy(targetDoc, update)
		targetDoc[idField] = targetID
		if err := s.checkUnique(txn, collection, targetID, targetDoc); err != nil {
			return err
		}
		matched = true
		return putDoc(txn, collection, targetID, targetDoc)
	})
	if err != nil {
		return false, wrapBadger("update", err)
	}
	return matched, nil
}

func (s *BadgerStore) DeleteOne(ctx context.Context, collection string, filter core.Filter) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	deleted := false
	err := s.db.Update(func(txn *badger.Txn) error {
		var target string
		err := iterate(txn, collection, func(id string, doc core.Document) (bool, error) {
			ok, err := Match(doc, filter)
			if err != nil || !ok {
				return err != nil, err
			}
			target = id
			return true, nil
		})
		if err != nil || target == "" {
			return err
		}
		deleted = true
		return txn.Delete(docKey(collection, target))
	})
	if err != nil {
		return false, wrapBadger("delete", err)
	}
	return deleted, nil
}

// CreateIndex 记录索引定义；已存在同名索引时直接返回。唯一索引在写入时校验。
func (s *BadgerStore) CreateIndex(ctx context.Context, collection string, index core.IndexSpec) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(index.Fields) == 0 {
		return "", core.InvalidInput(core.ModuleDocStore, "index on %s has no fields", collection)
	}
	if index.Name == "" {
		index.Name = IndexName(index.Fields)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, spec := range s.indexes[collection] {
		if spec.Name == index.Name {
			return index.Name, nil
		}
	}

	data, err := json.Marshal(index)
	if err != nil {
		return "", fmt.Errorf("marshal index: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(indexKeyPrefix+collection+"/"+index.Name), data)
	})
	if err != nil {
		return "", wrapBadger("create_index", err)
	}
	s.indexes[collection] = append(s.indexes[collection], index)
	return index.Name, nil
}

func (s *BadgerStore) Close(ctx context.Context) error {
	return s.db.Close()
}

func (s *BadgerStore) loadIndexes() error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(indexKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			collection, _, _ := strings.Cut(strings.TrimPrefix(string(item.Key()), indexKeyPrefix), "/")
			var spec core.IndexSpec
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &spec) }); err != nil {
				return fmt.Errorf("load index %s: %w", item.Key(), err)
			}
			s.indexes[collection] = append(s.indexes[collection], spec)
		}
		return nil
	})
}

func (s *BadgerStore) insert(txn *badger.Txn, collection, id string, doc core.Document) error {
	key := docKey(collection, id)
	if _, err := txn.Get(key); err == nil {
		return errDuplicate(collection, idField, id)
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	if err := s.checkUnique(txn, collection, id, doc); err != nil {
		return err
	}
	return putDoc(txn, collection, id, doc)
}

// checkUnique 检查 doc 是否与集合中其他文档在唯一索引上冲突。
func (s *BadgerStore) checkUnique(txn *badger.Txn, collection, id string, doc core.Document) error {
	s.mu.RLock()
	specs := s.indexes[collection]
	s.mu.RUnlock()

	for _, spec := range specs {
		if !spec.Unique {
			continue
		}
		err := iterate(txn, collection, func(otherID string, other core.Document) (bool, error) {
			if otherID == id {
				return false, nil
			}
			for _, f := range spec.Fields {
				if !equal(doc[f.Field], other[f.Field]) {
					return false, nil
				}
			}
			return true, errDuplicate(collection, spec.Name, fmt.Sprint(doc[spec.Fields[0].Field]))
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// iterate 按 _id 顺序遍历集合中的文档，fn 返回 true 时停止。
func iterate(txn *badger.Txn, collection string, fn func(id string, doc core.Document) (bool, error)) error {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	prefix := []byte(docKeyPrefix + collection + "/")
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		var doc core.Document
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &doc) }); err != nil {
			return fmt.Errorf("decode %s: %w", item.Key(), err)
		}
		stop, err := fn(string(item.Key()[len(prefix):]), doc)
		if err != nil || stop {
			return err
		}
	}
	return nil
}

func putDoc(txn *badger.Txn, collection, id string, doc core.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return core.InvalidInput(core.ModuleDocStore, "encode document: %v", err)
	}
	return txn.Set(docKey(collection, id), data)
}

func docKey(collection, id string) []byte {
	return []byte(docKeyPrefix + collection + "/" + id)
}

// withID 返回带 _id 的文档副本。
func withID(doc core.Document) (core.Document, string) {
	out := maps.Clone(doc)
	if out == nil {
		out = make(core.Document)
	}
	id, _ := out[idField].(string)
	if id == "" {
		id = uuid.NewString()
		out[idField] = id
	}
	return out, id
}

func errDuplicate(collection, index, value string) error {
	return core.InvalidInput(core.ModuleDocStore, "duplicate key on %s.%s: %s", collection, index, value)
}

// wrapBadger 将非领域错误包装为 UNAVAILABLE。
func wrapBadger(op string, err error) error {
	if core.IsDomainError(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return core.Unavailable(core.ModuleDocStore, "badger: "+op, err)
}

// IndexName 按 MongoDB 的默认规则生成索引名，例如 user_id_1_timestamp_-1。
func IndexName(fields []core.SortField) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		dir := "1"
		if f.Desc {
			dir = "-1"
		}
		parts = append(parts, f.Field+"_"+dir)
	}
	return strings.Join(parts, "_")
}

var _ core.DocumentStore = (*BadgerStore)(nil)
