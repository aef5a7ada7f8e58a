package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

var (
	// ErrNotFound 目标记录不存在。
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateEmail 邮箱已被占用（唯一索引冲突）。
	ErrDuplicateEmail = errors.New("email already taken")
)

const (
	usersCollection  = "users"
	tokensCollection = "tokens"
)

// Store 持有 Mongo 连接以及各个集合的访问对象。
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger

	Users  *Users
	Tokens *Tokens
}

// Connect 连接 MongoDB 并初始化索引。
//
// 会创建 users.email 的唯一索引、tokens 的查询索引，
// 以及 tokens.expireAfter 的 TTL 索引（到期文档由 Mongo 自动清除）。
func Connect(ctx context.Context, uri string, database string, logger *slog.Logger) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client: client,
		db:     db,
		logger: logger,
	}
	s.Tokens = &Tokens{coll: db.Collection(tokensCollection)}
	s.Users = &Users{coll: db.Collection(usersCollection), tokens: s.Tokens}

	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	return s, nil
}

// Ping 检查数据库连通性。
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close 断开数据库连接。
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}

	_, err = s.db.Collection(tokensCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "token", Value: 1}, {Key: "type", Value: 1}},
		},
		{
			// TTL 索引：expireAfter 一到即视为过期，后台自动删除
			Keys:    bson.D{{Key: "expireAfter", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
		{
			Keys: bson.D{{Key: "userId", Value: 1}},
		},
	})
	return err
}
