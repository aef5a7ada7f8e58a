package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/alexcool68/ST-backend/internal/model"
	"github.com/alexcool68/ST-backend/internal/pkg/token"
)

// Tokens 提供一次性动作令牌的持久化访问。
//
// 集合里只保存明文令牌的 SHA-256 摘要。按值查找时先对
// 请求方提交的值做同样的摘要再查询。
type Tokens struct {
	coll *mongo.Collection
}

// Create 为用户铸造一个新的动作令牌。
//
// 随机明文只在这里返回一次（调用方负责通过邮件送达），
// 数据库中只落摘要。ttl 为 0 表示不过期（confirm-email）。
func (s *Tokens) Create(ctx context.Context, userID bson.ObjectID, typ model.TokenType, ttl time.Duration) (string, error) {
	plain, digest, err := token.GenerateSecret()
	if err != nil {
		return "", err
	}

	doc := model.ActionToken{
		UserID:    userID,
		Token:     digest,
		Type:      typ,
		CreatedAt: time.Now(),
	}
	if ttl > 0 {
		exp := doc.CreatedAt.Add(ttl)
		doc.ExpireAfter = &exp
	}

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return "", err
	}
	return plain, nil
}

// liveFilter 按明文值与类型构造查询条件，并排除已过期的记录。
//
// Mongo 的 TTL 清理是周期性的，刚过期的文档可能尚未删除，
// 因此查询本身也带过期判断。
func liveFilter(plain string, typ model.TokenType) bson.M {
	return bson.M{
		"token": token.HashSecret(plain),
		"type":  typ,
		"$or": bson.A{
			bson.M{"expireAfter": bson.M{"$exists": false}},
			bson.M{"expireAfter": bson.M{"$gt": time.Now()}},
		},
	}
}

// FindByValueAndType 按明文令牌值与类型查找记录，不消费。
func (s *Tokens) FindByValueAndType(ctx context.Context, plain string, typ model.TokenType) (*model.ActionToken, error) {
	var t model.ActionToken
	err := s.coll.FindOne(ctx, liveFilter(plain, typ)).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Consume 原子地查找并删除一条令牌记录。
//
// 查找与删除是同一次 FindOneAndDelete，两个并发请求持同一令牌
// 时至多一个成功，没删到任何记录按 ErrNotFound 处理。
func (s *Tokens) Consume(ctx context.Context, plain string, typ model.TokenType) (*model.ActionToken, error) {
	var t model.ActionToken
	err := s.coll.FindOneAndDelete(ctx, liveFilter(plain, typ)).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteByID 删除指定令牌。
func (s *Tokens) DeleteByID(ctx context.Context, id bson.ObjectID) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAllForUser 删除某个用户名下的全部令牌（用户删除时级联）。
func (s *Tokens) DeleteAllForUser(ctx context.Context, userID bson.ObjectID) error {
	_, err := s.coll.DeleteMany(ctx, bson.M{"userId": userID})
	return err
}

// CountOutstanding 返回当前未消费的令牌数量。
func (s *Tokens) CountOutstanding(ctx context.Context) (int64, error) {
	return s.coll.CountDocuments(ctx, bson.M{})
}
